package model

import (
	"time"
)

// Run 一次批量采集的运行记录
type Run struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	TargetList  string    `json:"target_list" gorm:"type:varchar(512);not null"`
	OutputPath  string    `json:"output_path" gorm:"type:varchar(512);not null"`
	Strategy    string    `json:"strategy" gorm:"type:varchar(32);not null"`
	Concurrency int       `json:"concurrency" gorm:"not null"`
	Status      string    `json:"status" gorm:"type:varchar(16);not null;default:'running'"`
	Total       int       `json:"total"`
	Recorded    int       `json:"recorded"`
	Failed      int       `json:"failed"`
	ObjectKey   string    `json:"object_key" gorm:"type:varchar(512)"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Duration    int64     `json:"duration"` // 执行时长，毫秒
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 表名
func (Run) TableName() string {
	return "runs"
}

// RunStatus 运行状态枚举
const (
	RunStatusRunning  = "running"
	RunStatusFinished = "finished"
	RunStatusFailed   = "failed"
)

// RunLog 单台设备的采集结果
type RunLog struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	RunID        string    `json:"run_id" gorm:"type:varchar(64);not null;index"`
	Address      string    `json:"address" gorm:"type:varchar(255);not null"`
	Outcome      string    `json:"outcome" gorm:"type:varchar(32);not null"`
	ProductID    string    `json:"product_id" gorm:"type:varchar(64)"`
	SerialNumber string    `json:"serial_number" gorm:"type:varchar(64)"`
	License      string    `json:"license" gorm:"type:varchar(64)"`
	Message      string    `json:"message" gorm:"type:text"`
	Duration     int64     `json:"duration"` // 毫秒
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 表名
func (RunLog) TableName() string {
	return "run_logs"
}
