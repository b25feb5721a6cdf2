package extract

import (
	"errors"
	"fmt"
)

// DeviceRecord 单台交换机的身份与授权信息，字段不做校验
type DeviceRecord struct {
	ProductID          string `json:"product_id"`
	SerialNumber       string `json:"serial_number"`
	LicenseEntitlement string `json:"license_entitlement"`
}

// ErrExtraction 所有提取失败的公共哨兵错误
var ErrExtraction = errors.New("extraction failed")

// MissingFieldError 某个字段在回显中未匹配到
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %q in command output", e.Field)
}

func (e *MissingFieldError) Unwrap() error { return ErrExtraction }

// OutOfRangeError 按位置取词时下标越界
type OutOfRangeError struct {
	Field  string
	Output int // 第几份命令输出（从 1 开始）
	Index  int // 期望的词序号（从 1 开始，-1 表示最后一个）
	Tokens int // 实际词数
}

func (e *OutOfRangeError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("field %q: output %d has no tokens", e.Field, e.Output)
	}
	return fmt.Sprintf("field %q: token %d out of range in output %d (%d tokens)", e.Field, e.Index, e.Output, e.Tokens)
}

func (e *OutOfRangeError) Unwrap() error { return ErrExtraction }

// Strategy 提取策略：声明需要执行的命令，并把原始回显转换为 DeviceRecord
type Strategy interface {
	Name() string
	// Commands 按顺序执行的命令，Extract 收到的 outputs 与之一一对应
	Commands() []string
	// Header 输出文件表头
	Header() []string
	// Row 把记录转换为与 Header 对齐的一行
	Row(rec DeviceRecord) []string
	Extract(outputs []string) (DeviceRecord, error)
}
