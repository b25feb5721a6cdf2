package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sshcollectorpro/switchinfo/internal/inventory"
	"github.com/sshcollectorpro/switchinfo/pkg/logger"
)

// ErrInvalidConcurrency 并发数必须为正整数
var ErrInvalidConcurrency = errors.New("invalid concurrency: must be a positive integer")

// Poller 单台设备采集器，DeviceWorker 是其实现
type Poller interface {
	Poll(ctx context.Context, target inventory.Target) PollOutcome
}

// Summary 一次调度的汇总
type Summary struct {
	Total    int
	Counts   map[OutcomeKind]int
	Outcomes []PollOutcome
	// Peak 同时在途的设备数峰值
	Peak    int
	Elapsed time.Duration
}

// Count 某一类结果的数量
func (s Summary) Count(kind OutcomeKind) int { return s.Counts[kind] }

// Failed 未写入结果文件的设备数
func (s Summary) Failed() int { return s.Total - s.Counts[OutcomeRecorded] }

// Scheduler 有界并发调度：同一时刻最多 concurrency 台设备在采集
type Scheduler struct {
	// OnOutcome 每台设备完成后回调，会在多个协程中并发调用
	OnOutcome func(PollOutcome)
}

// Run 为每个目标调用一次 worker.Poll，全部完成后返回；单台失败不影响其他目标，也不重试
func (s *Scheduler) Run(ctx context.Context, targets []inventory.Target, concurrency int, worker Poller) (Summary, error) {
	if concurrency <= 0 {
		return Summary{}, fmt.Errorf("%w: %d", ErrInvalidConcurrency, concurrency)
	}

	start := time.Now()
	outcomes := make([]PollOutcome, len(targets))

	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i := range targets {
		i := i
		g.Go(func() error {
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()
			defer func() {
				mu.Lock()
				inFlight--
				mu.Unlock()
			}()

			outcomes[i] = s.pollSafe(ctx, targets[i], worker)
			if s.OnOutcome != nil {
				s.OnOutcome(outcomes[i])
			}
			return nil
		})
	}
	// 所有任务都返回 nil，Wait 只作为完成屏障
	_ = g.Wait()

	sum := Summary{
		Total:    len(targets),
		Counts:   make(map[OutcomeKind]int),
		Outcomes: outcomes,
		Peak:     peak,
		Elapsed:  time.Since(start),
	}
	for _, o := range outcomes {
		sum.Counts[o.Kind]++
	}
	return sum, nil
}

// pollSafe 兜底捕获 Poller 实现中逃逸的 panic
func (s *Scheduler) pollSafe(ctx context.Context, target inventory.Target, worker Poller) (out PollOutcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("address", target.Address).Errorf("poller panicked: %v", r)
			out = PollOutcome{Target: target, Kind: OutcomeInternalFailed, Err: fmt.Errorf("poller panic: %v", r)}
		}
	}()
	return worker.Poll(ctx, target)
}
