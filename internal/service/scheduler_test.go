package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/switchinfo/addone/extract/platforms/cisco_ios"
	"github.com/sshcollectorpro/switchinfo/internal/inventory"
	"github.com/sshcollectorpro/switchinfo/internal/sink"
)

// slowPoller 记录同时在途数，按地址决定结果
type slowPoller struct {
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
	panicOn  string

	mu    sync.Mutex
	calls map[string]int
}

func (p *slowPoller) Poll(_ context.Context, t inventory.Target) PollOutcome {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}
	p.mu.Lock()
	if p.calls == nil {
		p.calls = map[string]int{}
	}
	p.calls[t.Address]++
	p.mu.Unlock()

	if t.Address == p.panicOn {
		panic("poller exploded")
	}
	time.Sleep(p.delay)
	return PollOutcome{Target: t, Kind: OutcomeRecorded}
}

func makeTargets(n int) []inventory.Target {
	out := make([]inventory.Target, n)
	for i := range out {
		out[i] = inventory.Target{Address: fmt.Sprintf("10.1.0.%d", i+1), Port: 22, Username: "admin"}
	}
	return out
}

func TestScheduler_InvalidConcurrency(t *testing.T) {
	p := &slowPoller{}
	for _, c := range []int{0, -3} {
		_, err := (&Scheduler{}).Run(context.Background(), makeTargets(2), c, p)
		assert.ErrorIs(t, err, ErrInvalidConcurrency)
	}
	assert.Empty(t, p.calls)
}

func TestScheduler_BoundedConcurrency(t *testing.T) {
	for _, c := range []int{1, 2, 3, 8, 50} {
		t.Run(fmt.Sprintf("concurrency=%d", c), func(t *testing.T) {
			p := &slowPoller{delay: 20 * time.Millisecond}
			targets := makeTargets(12)
			var cb atomic.Int32
			s := &Scheduler{OnOutcome: func(PollOutcome) { cb.Add(1) }}

			sum, err := s.Run(context.Background(), targets, c, p)
			require.NoError(t, err)
			assert.Equal(t, 12, sum.Total)
			assert.Len(t, sum.Outcomes, 12)
			assert.Equal(t, 12, sum.Count(OutcomeRecorded))
			assert.Equal(t, 0, sum.Failed())
			assert.Equal(t, int32(12), cb.Load())
			assert.LessOrEqual(t, int(p.peak.Load()), c)
			assert.LessOrEqual(t, sum.Peak, c)
			for _, tg := range targets {
				assert.Equal(t, 1, p.calls[tg.Address], tg.Address)
			}
		})
	}
}

func TestScheduler_PanicIsolated(t *testing.T) {
	p := &slowPoller{panicOn: "10.1.0.2"}
	sum, err := (&Scheduler{}).Run(context.Background(), makeTargets(4), 2, p)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Count(OutcomeRecorded))
	assert.Equal(t, 1, sum.Count(OutcomeInternalFailed))
	assert.Equal(t, "10.1.0.2", sum.Outcomes[1].Target.Address)
	assert.Equal(t, OutcomeInternalFailed, sum.Outcomes[1].Kind)
}

func TestScheduler_EmptyTargets(t *testing.T) {
	sum, err := (&Scheduler{}).Run(context.Background(), nil, 4, &slowPoller{})
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Total)
	assert.Empty(t, sum.Outcomes)
}

// 数据行数始终等于 Recorded 数量
func TestScheduler_RowsMatchRecorded(t *testing.T) {
	outputs := map[string]map[string]string{}
	errs := map[string]error{}
	targets := makeTargets(20)
	for i, tg := range targets {
		switch i % 3 {
		case 0:
			outputs[tg.Address] = map[string]string{"show version": versionSample}
		case 1:
			outputs[tg.Address] = map[string]string{"show version": "no identity here\n"}
		case 2:
			errs[tg.Address] = context.DeadlineExceeded
		}
	}
	op := &fakeOpener{outputs: outputs, errs: errs}

	for _, c := range []int{1, 4, 20} {
		path := filepath.Join(t.TempDir(), "device_info.csv")
		st := &cisco_ios.VersionStrategy{}
		out := sink.NewCSVSink(path)
		require.NoError(t, out.Initialize(st.Header()))

		sum, err := (&Scheduler{}).Run(context.Background(), targets, c, newWorker(op, st, out))
		require.NoError(t, err)
		require.NoError(t, out.Close())

		assert.Equal(t, 7, sum.Count(OutcomeRecorded))
		assert.Equal(t, 7, sum.Count(OutcomeExtractionFailed))
		assert.Equal(t, 6, sum.Count(OutcomeConnectionFailed))
		assert.Equal(t, sum.Count(OutcomeRecorded), out.Rows())
	}
}
