package sink

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var (
	// ErrSinkNotInitialized Initialize 之前调用 Append
	ErrSinkNotInitialized = errors.New("record sink not initialized")
	// ErrSinkClosed Close 之后调用 Append
	ErrSinkClosed = errors.New("record sink closed")
)

// CSVSink 多个采集协程共享的结果文件
//
// 每次 Append 在同一把锁内完成格式化、写入与刷盘，保证行不会交错；
// 行序为完成顺序，不保证与清单顺序一致。
type CSVSink struct {
	path string

	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
	rows   int
	closed bool
}

// NewCSVSink 创建结果文件写入器，文件在 Initialize 时才会创建
func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

// Path 结果文件路径
func (s *CSVSink) Path() string { return s.path }

// Initialize 创建或截断结果文件并写入表头，必须在任何 Append 之前完成
func (s *CSVSink) Initialize(header []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	if s.file != nil {
		return fmt.Errorf("record sink %s already initialized", s.path)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}

	s.file = f
	s.writer = w
	return nil
}

// Append 追加一行并立即刷盘，错误原样返回给调用方
func (s *CSVSink) Append(row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	if s.writer == nil {
		return ErrSinkNotInitialized
	}
	if err := s.writer.Write(row); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return fmt.Errorf("failed to flush row: %w", err)
	}
	s.rows++
	return nil
}

// Rows 已成功写入的数据行数（不含表头）
func (s *CSVSink) Rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// Close 刷盘并关闭文件，可重复调用
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.file == nil {
		return nil
	}
	s.writer.Flush()
	werr := s.writer.Error()
	cerr := s.file.Close()
	s.file = nil
	s.writer = nil
	if werr != nil {
		return werr
	}
	return cerr
}
