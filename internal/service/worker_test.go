package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/switchinfo/addone/extract"
	"github.com/sshcollectorpro/switchinfo/addone/extract/platforms/cisco_ios"
	"github.com/sshcollectorpro/switchinfo/internal/inventory"
	"github.com/sshcollectorpro/switchinfo/pkg/ssh"
)

const versionSample = "cisco WS-C3650-24PS (MIPS) processor\r\n" +
	"Processor board ID FDO2031E1AB\r\n" +
	"License Level: ipbasek9\r\n"

// fakeOpener 按地址返回预置回显或连接错误
type fakeOpener struct {
	outputs map[string]map[string]string
	errs    map[string]error
	execErr error

	mu     sync.Mutex
	closed int
}

func (f *fakeOpener) Open(_ context.Context, t inventory.Target, _ string) (Session, error) {
	if err := f.errs[t.Address]; err != nil {
		return nil, err
	}
	return &fakeSession{owner: f, outputs: f.outputs[t.Address]}, nil
}

type fakeSession struct {
	owner   *fakeOpener
	outputs map[string]string
}

func (s *fakeSession) Execute(_ context.Context, cmd string) (string, error) {
	if s.owner.execErr != nil {
		return "", s.owner.execErr
	}
	return s.outputs[cmd], nil
}

func (s *fakeSession) Close() error {
	s.owner.mu.Lock()
	s.owner.closed++
	s.owner.mu.Unlock()
	return nil
}

type memSink struct {
	mu   sync.Mutex
	rows [][]string
	err  error
}

func (m *memSink) Append(row []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, row)
	return nil
}

type panicStrategy struct{ *cisco_ios.VersionStrategy }

func (panicStrategy) Extract([]string) (extract.DeviceRecord, error) { panic("boom") }

func newWorker(op SessionOpener, st extract.Strategy, sk RecordSink) *DeviceWorker {
	return &DeviceWorker{Opener: op, Strategy: st, Sink: sk, DeviceType: "cisco_ios", OutputName: "device_info.csv", RunID: "test"}
}

func TestDeviceWorker_Recorded(t *testing.T) {
	op := &fakeOpener{outputs: map[string]map[string]string{"10.0.0.1": {"show version": versionSample}}}
	sk := &memSink{}
	out := newWorker(op, &cisco_ios.VersionStrategy{}, sk).Poll(context.Background(), inventory.Target{Address: "10.0.0.1"})

	require.NoError(t, out.Err)
	assert.Equal(t, OutcomeRecorded, out.Kind)
	assert.Equal(t, extract.DeviceRecord{ProductID: "WS-C3650-24PS", SerialNumber: "FDO2031E1AB", LicenseEntitlement: "ipbasek9"}, out.Record)
	assert.Equal(t, [][]string{{"WS-C3650-24PS", "FDO2031E1AB", "ipbasek9"}}, sk.rows)
	assert.Equal(t, 1, op.closed)
	assert.Positive(t, out.Duration)
}

func TestDeviceWorker_ConnectionFailed(t *testing.T) {
	connErr := &ssh.ConnectError{Host: "10.0.0.2", Kind: ssh.KindAuth, Err: errors.New("unable to authenticate")}
	op := &fakeOpener{errs: map[string]error{"10.0.0.2": connErr}}
	sk := &memSink{}
	out := newWorker(op, &cisco_ios.VersionStrategy{}, sk).Poll(context.Background(), inventory.Target{Address: "10.0.0.2"})

	assert.Equal(t, OutcomeConnectionFailed, out.Kind)
	assert.ErrorIs(t, out.Err, connErr)
	assert.Equal(t, "authentication", connectReason(out.Err))
	assert.Empty(t, sk.rows)
}

func TestDeviceWorker_InvalidTarget(t *testing.T) {
	op := &fakeOpener{}
	sk := &memSink{}
	invalid := &inventory.RowError{Line: 3, Err: errors.New("invalid port \"ssh\"")}
	out := newWorker(op, &cisco_ios.VersionStrategy{}, sk).Poll(context.Background(), inventory.Target{Address: "core_sw1", Invalid: invalid})

	assert.Equal(t, OutcomeConnectionFailed, out.Kind)
	assert.ErrorIs(t, out.Err, invalid)
	assert.Equal(t, "invalid_target", connectReason(out.Err))
	assert.Equal(t, 0, op.closed)
	assert.Empty(t, sk.rows)
}

func TestDeviceWorker_CommandFailed(t *testing.T) {
	op := &fakeOpener{execErr: context.DeadlineExceeded}
	out := newWorker(op, &cisco_ios.VersionStrategy{}, &memSink{}).Poll(context.Background(), inventory.Target{Address: "10.0.0.3"})

	assert.Equal(t, OutcomeConnectionFailed, out.Kind)
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
	assert.Equal(t, 1, op.closed)
}

func TestDeviceWorker_ExtractionFailed(t *testing.T) {
	op := &fakeOpener{outputs: map[string]map[string]string{"10.0.0.4": {"show version": "Processor board ID FDO2031E1AB\n"}}}
	sk := &memSink{}
	out := newWorker(op, &cisco_ios.VersionStrategy{}, sk).Poll(context.Background(), inventory.Target{Address: "10.0.0.4"})

	assert.Equal(t, OutcomeExtractionFailed, out.Kind)
	assert.ErrorIs(t, out.Err, extract.ErrExtraction)
	assert.Equal(t, extract.DeviceRecord{}, out.Record)
	assert.Empty(t, sk.rows)
}

func TestDeviceWorker_SinkFailed(t *testing.T) {
	op := &fakeOpener{outputs: map[string]map[string]string{"10.0.0.5": {"show version": versionSample}}}
	sinkErr := errors.New("disk full")
	out := newWorker(op, &cisco_ios.VersionStrategy{}, &memSink{err: sinkErr}).Poll(context.Background(), inventory.Target{Address: "10.0.0.5"})

	assert.Equal(t, OutcomeSinkFailed, out.Kind)
	assert.ErrorIs(t, out.Err, sinkErr)
	assert.Equal(t, extract.DeviceRecord{}, out.Record)
}

func TestDeviceWorker_PanicRecovered(t *testing.T) {
	op := &fakeOpener{outputs: map[string]map[string]string{"10.0.0.6": {"show version": versionSample}}}
	var out PollOutcome
	assert.NotPanics(t, func() {
		out = newWorker(op, panicStrategy{&cisco_ios.VersionStrategy{}}, &memSink{}).Poll(context.Background(), inventory.Target{Address: "10.0.0.6"})
	})
	assert.Equal(t, OutcomeInternalFailed, out.Kind)
	assert.Error(t, out.Err)
	assert.Equal(t, 1, op.closed)
}

func TestDeviceWorker_OffsetStrategy(t *testing.T) {
	inv := `NAME: "c38xx Stack", DESCR: "c38xx Stack"` + "\r\n" + `PID: WS-C3850-48P      , VID: V07  , SN: FCW2023C0QK` + "\r\n"
	op := &fakeOpener{outputs: map[string]map[string]string{"10.0.0.7": {
		"show inventory":                    inv,
		"show license right-to-use summary": "License Level In Use: ipservicesk9\r\n",
	}}}
	sk := &memSink{}
	out := newWorker(op, &cisco_ios.InventoryStrategy{}, sk).Poll(context.Background(), inventory.Target{Address: "10.0.0.7"})

	require.NoError(t, out.Err)
	assert.Equal(t, [][]string{{"FCW2023C0QK", "ipservicesk9"}}, sk.rows)
}
