package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sshcollectorpro/switchinfo/addone/extract"
	"github.com/sshcollectorpro/switchinfo/internal/inventory"
	"github.com/sshcollectorpro/switchinfo/internal/util"
	"github.com/sshcollectorpro/switchinfo/pkg/logger"
	"github.com/sshcollectorpro/switchinfo/pkg/ssh"
)

// Session 已登录的设备会话
type Session interface {
	// Execute 执行一条命令并返回原始回显
	Execute(ctx context.Context, command string) (string, error)
	Close() error
}

// SessionOpener 建立设备会话，失败时返回的错误应能区分认证失败、超时与不可达
type SessionOpener interface {
	Open(ctx context.Context, target inventory.Target, deviceType string) (Session, error)
}

// RecordSink 结果行的共享写入端
type RecordSink interface {
	Append(row []string) error
}

// OutcomeKind 单台设备的采集结果分类
type OutcomeKind string

const (
	OutcomeRecorded         OutcomeKind = "recorded"
	OutcomeConnectionFailed OutcomeKind = "connection_failed"
	OutcomeExtractionFailed OutcomeKind = "extraction_failed"
	OutcomeSinkFailed       OutcomeKind = "sink_failed"
	OutcomeInternalFailed   OutcomeKind = "internal_failed"
)

// PollOutcome 单台设备的采集结果，只用于日志与汇总
type PollOutcome struct {
	Target   inventory.Target
	Kind     OutcomeKind
	Record   extract.DeviceRecord
	Err      error
	Duration time.Duration
}

// DeviceWorker 对单台设备执行 登录 -> 命令 -> 提取 -> 写入 流程
type DeviceWorker struct {
	Opener     SessionOpener
	Strategy   extract.Strategy
	Sink       RecordSink
	DeviceType string
	// OutputName 进度日志中显示的结果文件名
	OutputName string
	RunID      string
}

// Poll 采集一台设备，任何失败都转换为 PollOutcome 而不是向上返回或 panic
func (w *DeviceWorker) Poll(ctx context.Context, target inventory.Target) (out PollOutcome) {
	start := time.Now()
	out.Target = target
	log := logger.WithFields(logrus.Fields{"run_id": w.RunID, "address": target.Address})

	defer func() {
		if r := recover(); r != nil {
			out.Kind = OutcomeInternalFailed
			out.Record = extract.DeviceRecord{}
			out.Err = fmt.Errorf("worker panic: %v", r)
			log.WithField("stack", string(debug.Stack())).Errorf("Internal error while polling switch %s: %v", target.Address, r)
		}
		out.Duration = time.Since(start)
	}()

	if target.Invalid != nil {
		out.Kind = OutcomeConnectionFailed
		out.Err = target.Invalid
		log.WithFields(logrus.Fields{"outcome": out.Kind, "reason": connectReason(target.Invalid)}).Warnf("Skipping switch %s: %v", target.Address, target.Invalid)
		return out
	}

	log.Infof("Connecting to switch %s", target.Address)
	sess, err := w.Opener.Open(ctx, target, w.DeviceType)
	if err != nil {
		out.Kind = OutcomeConnectionFailed
		out.Err = err
		log.WithFields(logrus.Fields{"outcome": out.Kind, "reason": connectReason(err)}).Warnf("Connection to switch %s failed: %v", target.Address, err)
		return out
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.WithField("error", cerr).Debug("session close failed")
		}
	}()

	commands := w.Strategy.Commands()
	outputs := make([]string, 0, len(commands))
	for _, cmd := range commands {
		raw, err := sess.Execute(ctx, cmd)
		if err != nil {
			out.Kind = OutcomeConnectionFailed
			out.Err = fmt.Errorf("command %q: %w", cmd, err)
			log.WithFields(logrus.Fields{"outcome": out.Kind, "command": cmd}).Warnf("Command failed on switch %s: %v", target.Address, err)
			return out
		}
		outputs = append(outputs, util.NormalizeOutput(raw))
	}

	rec, err := w.Strategy.Extract(outputs)
	if err != nil {
		out.Kind = OutcomeExtractionFailed
		out.Err = err
		log.WithFields(logrus.Fields{"outcome": out.Kind, "strategy": w.Strategy.Name()}).Warnf("Regex match error. Missing info for device %s: %v", target.Address, err)
		for i, cmd := range commands {
			logger.DebugOutput(target.Address, cmd, outputs[i])
		}
		return out
	}
	log.Infof("Collection successful from switch %s", target.Address)

	if err := w.Sink.Append(w.Strategy.Row(rec)); err != nil {
		out.Kind = OutcomeSinkFailed
		out.Err = err
		log.WithField("outcome", out.Kind).Errorf("Failed to write data for switch %s: %v", target.Address, err)
		return out
	}

	out.Kind = OutcomeRecorded
	out.Record = rec
	log.WithField("outcome", out.Kind).Infof("Data for switch %s successfully written to %s", target.Address, w.OutputName)
	return out
}

// connectReason 连接失败原因：authentication | timeout | unreachable | handshake
func connectReason(err error) string {
	var ce *ssh.ConnectError
	if errors.As(err, &ce) {
		return string(ce.Kind)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return string(ssh.KindTimeout)
	}
	if errors.Is(err, ssh.ErrPoolFull) {
		return "pool_full"
	}
	var re *inventory.RowError
	if errors.As(err, &re) {
		return "invalid_target"
	}
	return "unknown"
}
