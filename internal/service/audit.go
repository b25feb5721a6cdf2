package service

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sshcollectorpro/switchinfo/internal/database"
	"github.com/sshcollectorpro/switchinfo/internal/model"
	"github.com/sshcollectorpro/switchinfo/pkg/logger"
)

// AuditRecorder 运行审计：记录每次运行及每台设备的结果
type AuditRecorder interface {
	Begin(run *model.Run) error
	Record(runID string, o PollOutcome)
	Finish(run *model.Run) error
}

// NoopAudit 未启用数据库时使用
type NoopAudit struct{}

func (NoopAudit) Begin(*model.Run) error { return nil }
func (NoopAudit) Record(string, PollOutcome) {}
func (NoopAudit) Finish(*model.Run) error { return nil }

// SQLiteAudit 写入 database 包初始化的 SQLite
type SQLiteAudit struct {
	attempts int
}

// NewSQLiteAudit 调用前需先完成 database.InitSQLite
func NewSQLiteAudit() *SQLiteAudit {
	return &SQLiteAudit{attempts: 5}
}

// Begin 保存运行记录
func (a *SQLiteAudit) Begin(run *model.Run) error {
	return database.WithRetry(func(db *gorm.DB) error {
		return db.Create(run).Error
	}, a.attempts, 0)
}

// Record 保存单台设备结果，失败只记日志不影响采集
func (a *SQLiteAudit) Record(runID string, o PollOutcome) {
	entry := &model.RunLog{
		ID:           uuid.NewString(),
		RunID:        runID,
		Address:      o.Target.Address,
		Outcome:      string(o.Kind),
		ProductID:    o.Record.ProductID,
		SerialNumber: o.Record.SerialNumber,
		License:      o.Record.LicenseEntitlement,
		Duration:     o.Duration.Milliseconds(),
		CreatedAt:    time.Now(),
	}
	if o.Err != nil {
		entry.Message = o.Err.Error()
	}
	err := database.WithRetry(func(db *gorm.DB) error {
		return db.Create(entry).Error
	}, a.attempts, 0)
	if err != nil {
		logger.WithField("run_id", runID).Errorf("Failed to save run log: %v", err)
	}
}

// Finish 更新运行状态与计数
func (a *SQLiteAudit) Finish(run *model.Run) error {
	return database.WithRetry(func(db *gorm.DB) error {
		return db.Save(run).Error
	}, a.attempts, 0)
}
