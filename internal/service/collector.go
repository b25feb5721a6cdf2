package service

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sshcollectorpro/switchinfo/addone/extract"
	"github.com/sshcollectorpro/switchinfo/internal/config"
	"github.com/sshcollectorpro/switchinfo/internal/database"
	"github.com/sshcollectorpro/switchinfo/internal/inventory"
	"github.com/sshcollectorpro/switchinfo/internal/model"
	"github.com/sshcollectorpro/switchinfo/internal/sink"
	"github.com/sshcollectorpro/switchinfo/pkg/logger"
	"github.com/sshcollectorpro/switchinfo/pkg/ssh"
)

// RunOptions 一次批量采集的参数
type RunOptions struct {
	TargetList  string
	Concurrency int
	// Strategy 为空时使用 collector.strategy
	Strategy string
	// OutputPath 为空时使用 collector.output_path
	OutputPath string
}

// RunReport 运行结果
type RunReport struct {
	RunID      string
	Strategy   string
	OutputPath string
	Summary    Summary
	// SessionPeak 同时在线 SSH 会话峰值，使用外部 SessionOpener 时为 0
	SessionPeak int
	Object      *StoredObject
}

// Collector 采集器服务：加载清单、初始化结果文件、调度采集、收尾
type Collector struct {
	config   *config.Config
	opener   SessionOpener
	audit    AuditRecorder
	uploader Uploader
}

// Option Collector 可选项
type Option func(*Collector)

// WithOpener 替换默认的 SSH 会话实现
func WithOpener(o SessionOpener) Option { return func(c *Collector) { c.opener = o } }

// WithAudit 启用运行审计
func WithAudit(a AuditRecorder) Option { return func(c *Collector) { c.audit = a } }

// WithUploader 启用结果文件上传
func WithUploader(u Uploader) Option { return func(c *Collector) { c.uploader = u } }

// NewCollector 创建采集器服务
func NewCollector(cfg *config.Config, opts ...Option) *Collector {
	c := &Collector{config: cfg, audit: NoopAudit{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewCollectorFromConfig 按配置启用 SQLite 审计与 MinIO 上传，返回的 cleanup 负责关闭数据库
func NewCollectorFromConfig(cfg *config.Config) (*Collector, func(), error) {
	var opts []Option
	cleanup := func() {}

	if cfg.Database.SQLite.Enabled {
		if err := database.InitSQLite(cfg.Database.SQLite); err != nil {
			return nil, cleanup, err
		}
		cleanup = func() {
			if err := database.Close(); err != nil {
				logger.Warnf("Failed to close database: %v", err)
			}
		}
		opts = append(opts, WithAudit(NewSQLiteAudit()))
	}
	if cfg.Storage.Minio.Enabled {
		w, err := NewMinioStorageWriter(cfg.Storage.Minio)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		opts = append(opts, WithUploader(w))
	}
	return NewCollector(cfg, opts...), cleanup, nil
}

// Run 执行一次批量采集
//
// 参数、策略名、清单表头错误在任何网络活动之前返回；结果文件在调度开始前截断并写入表头。
// 单台设备的失败只体现在 Summary 中，不作为错误返回。
func (c *Collector) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	if opts.Concurrency <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidConcurrency, opts.Concurrency)
	}
	strategyName := opts.Strategy
	if strategyName == "" {
		strategyName = c.config.Collector.Strategy
	}
	strategy, err := extract.Get(strategyName)
	if err != nil {
		return nil, err
	}
	outputPath := opts.OutputPath
	if outputPath == "" {
		outputPath = c.config.Collector.OutputPath
	}

	targets, err := inventory.LoadTargets(opts.TargetList, inventory.Options{
		DefaultPort: c.config.SSH.Port,
		SecretKey:   c.config.Credentials.SecretKey,
	})
	if err != nil {
		return nil, err
	}

	opener := c.opener
	var pool *ssh.Pool
	if opener == nil {
		pool = ssh.NewPool(&ssh.PoolConfig{MaxActive: opts.Concurrency, SSHConfig: c.config.SSH.ClientConfig()})
		defer pool.Close()
		opener = NewExecAdapter(pool)
	}

	out := sink.NewCSVSink(outputPath)
	if err := out.Initialize(strategy.Header()); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	start := time.Now()
	run := &model.Run{
		ID:          runID,
		TargetList:  opts.TargetList,
		OutputPath:  outputPath,
		Strategy:    strategy.Name(),
		Concurrency: opts.Concurrency,
		Status:      model.RunStatusRunning,
		Total:       len(targets),
		StartTime:   start,
	}
	if err := c.audit.Begin(run); err != nil {
		logger.WithField("run_id", runID).Warnf("Failed to save run: %v", err)
	}

	log := logger.WithFields(logrus.Fields{"run_id": runID, "strategy": strategy.Name()})
	log.Infof("Polling %d switches with concurrency %d", len(targets), opts.Concurrency)

	worker := &DeviceWorker{
		Opener:     opener,
		Strategy:   strategy,
		Sink:       out,
		DeviceType: c.config.Collector.DeviceType,
		OutputName: filepath.Base(outputPath),
		RunID:      runID,
	}
	sched := &Scheduler{OnOutcome: func(o PollOutcome) { c.audit.Record(runID, o) }}
	summary, err := sched.Run(ctx, targets, opts.Concurrency, worker)
	closeErr := out.Close()
	if err != nil {
		return nil, err
	}

	report := &RunReport{
		RunID:      runID,
		Strategy:   strategy.Name(),
		OutputPath: outputPath,
		Summary:    summary,
	}
	if pool != nil {
		report.SessionPeak = pool.GetStats().Peak
	}

	run.Status = model.RunStatusFinished
	if closeErr != nil {
		run.Status = model.RunStatusFailed
	}
	if closeErr == nil && c.uploader != nil {
		obj, err := c.uploader.Upload(ctx, UploadMeta{RunID: runID, StartTime: start}, outputPath)
		if err != nil {
			log.Warnf("Failed to upload %s: %v", outputPath, err)
		} else {
			report.Object = &obj
			run.ObjectKey = obj.URI
			log.WithField("uri", obj.URI).Info("Result file uploaded")
		}
	}

	run.Recorded = summary.Count(OutcomeRecorded)
	run.Failed = summary.Failed()
	run.EndTime = time.Now()
	run.Duration = run.EndTime.Sub(start).Milliseconds()
	if err := c.audit.Finish(run); err != nil {
		log.Warnf("Failed to update run: %v", err)
	}

	log.WithFields(logrus.Fields{
		"total":             summary.Total,
		"recorded":          summary.Count(OutcomeRecorded),
		"connection_failed": summary.Count(OutcomeConnectionFailed),
		"extraction_failed": summary.Count(OutcomeExtractionFailed),
		"sink_failed":       summary.Count(OutcomeSinkFailed),
		"internal_failed":   summary.Count(OutcomeInternalFailed),
		"elapsed":           summary.Elapsed.String(),
	}).Info("Run finished")

	if closeErr != nil {
		return report, fmt.Errorf("failed to close %s: %w", outputPath, closeErr)
	}
	return report, nil
}
