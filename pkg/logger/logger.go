package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu  sync.RWMutex
	log *logrus.Logger
)

// Config 日志配置
type Config struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"` // console | file | both
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// Init 按配置初始化全局日志实例
func Init(cfg Config) error {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	l.SetFormatter(newFormatter(cfg.Format))

	writers, err := buildWriters(cfg)
	if err != nil {
		return err
	}
	if len(writers) > 0 {
		l.SetOutput(io.MultiWriter(writers...))
	}

	mu.Lock()
	log = l
	mu.Unlock()
	return nil
}

func newFormatter(format string) logrus.Formatter {
	if format == "json" {
		return &logrus.JSONFormatter{
			TimestampFormat:   "2006-01-02 15:04:05",
			DisableHTMLEscape: true,
		}
	}
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	}
}

// buildWriters 组装输出目标：控制台与 lumberjack 滚动文件
func buildWriters(cfg Config) ([]io.Writer, error) {
	var writers []io.Writer
	out := cfg.Output
	if out == "" {
		out = "console"
	}
	if out == "console" || out == "both" {
		writers = append(writers, os.Stdout)
	}
	if (out == "file" || out == "both") && cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}
	return writers, nil
}

// GetLogger 获取日志实例
func GetLogger() *logrus.Logger {
	mu.RLock()
	l := log
	mu.RUnlock()
	if l != nil {
		return l
	}
	mu.Lock()
	defer mu.Unlock()
	if log == nil {
		log = logrus.New()
	}
	return log
}

// SetOutput 重定向日志输出（测试中用于捕获进度行）
func SetOutput(w io.Writer) {
	GetLogger().SetOutput(w)
}

func Debugf(format string, args ...interface{}) { GetLogger().Debugf(format, args...) }

func Info(args ...interface{}) { GetLogger().Info(args...) }

func Infof(format string, args ...interface{}) { GetLogger().Infof(format, args...) }

func Warn(args ...interface{}) { GetLogger().Warn(args...) }

func Warnf(format string, args ...interface{}) { GetLogger().Warnf(format, args...) }

func Error(args ...interface{}) { GetLogger().Error(args...) }

func Errorf(format string, args ...interface{}) { GetLogger().Errorf(format, args...) }

// WithField 添加字段
func WithField(key string, value interface{}) *logrus.Entry {
	return GetLogger().WithField(key, value)
}

// WithFields 添加多个字段
func WithFields(fields logrus.Fields) *logrus.Entry {
	return GetLogger().WithFields(fields)
}
