package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pingmon/internal/registry"
	"pingmon/internal/storage/models"
	"pingmon/internal/stream"
	pkgerrors "pingmon/pkg/errors"
)

type fakeProber struct {
	queue    *stream.Queue
	nextID   uint64
	started  []string
	stops    int
	waits    int
	failNext bool
}

func (p *fakeProber) Start(address string) (uint64, error) {
	p.nextID++
	p.started = append(p.started, address)
	if p.failNext {
		p.failNext = false
		err := &pkgerrors.LaunchError{Address: address, Command: "ping", Err: errors.New("executable file not found")}
		p.queue.Push(stream.Diagnostic(p.nextID, "probe failed: "+err.Error()))
		return p.nextID, err
	}
	return p.nextID, nil
}

func (p *fakeProber) Stop() { p.stops++ }
func (p *fakeProber) Wait() { p.waits++ }

type fakeSnapshots struct {
	mu    sync.Mutex
	err   error
	calls int
	saved [][]models.Device
}

func (f *fakeSnapshots) Save(_ context.Context, devices []models.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, devices)
	return nil
}

func (f *fakeSnapshots) last() []models.Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saved) == 0 {
		return nil
	}
	return f.saved[len(f.saved)-1]
}

func (f *fakeSnapshots) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeSnapshots) count() (calls, saved int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, len(f.saved)
}

type fakeHistory struct {
	mu      sync.Mutex
	err     error
	samples []*models.Sample
}

func (f *fakeHistory) RecordSamples(_ context.Context, samples []*models.Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.samples = append(f.samples, samples...)
	return nil
}

func (f *fakeHistory) all() []*models.Sample {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.Sample(nil), f.samples...)
}

type recordingPresenter struct {
	mu        sync.Mutex
	lines     []string
	refreshes int
	devices   []models.Device
	states    []State
}

func (p *recordingPresenter) LineAppended(text string) {
	p.mu.Lock()
	p.lines = append(p.lines, text)
	p.mu.Unlock()
}

func (p *recordingPresenter) RegistryRefreshed(devices []models.Device) {
	p.mu.Lock()
	p.refreshes++
	p.devices = devices
	p.mu.Unlock()
}

func (p *recordingPresenter) SessionChanged(st Status) {
	p.mu.Lock()
	p.states = append(p.states, st.State)
	p.mu.Unlock()
}

func (p *recordingPresenter) lineCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lines)
}

type fixture struct {
	ctrl      *Controller
	queue     *stream.Queue
	prober    *fakeProber
	snapshots *fakeSnapshots
	history   *fakeHistory
	presenter *recordingPresenter
	now       time.Time
}

func newFixture(t *testing.T, devices ...models.Device) *fixture {
	t.Helper()
	q := stream.NewQueue()
	reg, warnings := registry.New(devices)
	require.Empty(t, warnings)

	f := &fixture{
		queue:     q,
		prober:    &fakeProber{queue: q},
		snapshots: &fakeSnapshots{},
		history:   &fakeHistory{},
		presenter: &recordingPresenter{},
		now:       time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC),
	}
	f.ctrl = New(Options{
		Queue:     q,
		Prober:    f.prober,
		Registry:  reg,
		Snapshots: f.snapshots,
		History:   f.history,
		Presenter: f.presenter,
		Logger:    zap.NewNop(),
		Now:       func() time.Time { return f.now },
	})
	t.Cleanup(f.ctrl.Close)
	return f
}

func (f *fixture) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.ctrl.Flush(ctx))
}

func device(t *testing.T, c *Controller, address string) models.Device {
	t.Helper()
	for _, d := range c.Devices() {
		if d.Address == address {
			return d
		}
	}
	t.Fatalf("device %s not found", address)
	return models.Device{}
}

func TestStartAndDrain(t *testing.T) {
	f := newFixture(t, models.Device{Address: "10.0.0.1"})

	require.NoError(t, f.ctrl.Start("10.0.0.1"))
	st := f.ctrl.Status()
	assert.Equal(t, StateRunning, st.State)
	assert.Equal(t, "10.0.0.1", st.Target)
	assert.Equal(t, uint64(1), st.Session)

	f.queue.Push(stream.Line(1, "Reply from 10.0.0.1: bytes=32 time=30ms TTL=64"))
	f.queue.Push(stream.Line(1, ""))
	f.queue.Push(stream.Line(1, "Request timed out."))

	assert.Equal(t, 3, f.ctrl.Drain())
	assert.Equal(t, []string{"Reply from 10.0.0.1: bytes=32 time=30ms TTL=64", "", "Request timed out."}, f.presenter.lines)

	d := device(t, f.ctrl, "10.0.0.1")
	assert.Equal(t, models.StatusDown, d.Status)
	assert.Nil(t, d.LatencyMs)
	require.NotNil(t, d.LastSuccessAt)
	assert.True(t, f.now.Equal(*d.LastSuccessAt))

	f.flush(t)
	saved := f.snapshots.last()
	require.Len(t, saved, 1)
	assert.Equal(t, models.StatusDown, saved[0].Status)

	samples := f.history.all()
	require.Len(t, samples, 2)
	assert.Equal(t, models.StatusFast, samples[0].Status)
	assert.Equal(t, 30.0, *samples[0].LatencyMs)
	assert.Equal(t, models.StatusDown, samples[1].Status)
}

func TestDrain_EmptyDoesNoIO(t *testing.T) {
	f := newFixture(t, models.Device{Address: "a"})

	assert.Zero(t, f.ctrl.Drain())
	f.flush(t)

	calls, _ := f.snapshots.count()
	assert.Zero(t, calls)
	assert.Zero(t, f.presenter.refreshes)
}

func TestDrain_RefreshMarkerOnly(t *testing.T) {
	f := newFixture(t, models.Device{Address: "a"})

	f.ctrl.RequestRefresh()
	assert.Zero(t, f.ctrl.Drain())
	f.flush(t)

	assert.Equal(t, 1, f.presenter.refreshes)
	calls, _ := f.snapshots.count()
	assert.Zero(t, calls)
}

func TestDrain_IgnoresStaleSession(t *testing.T) {
	f := newFixture(t, models.Device{Address: "a"}, models.Device{Address: "b"})

	require.NoError(t, f.ctrl.Start("a"))
	require.NoError(t, f.ctrl.Start("b"))
	assert.Equal(t, []string{"a", "b"}, f.prober.started)
	assert.Equal(t, 1, f.prober.stops)

	f.queue.Push(stream.Line(1, "Reply from a: time=5ms"))
	f.queue.Push(stream.Line(2, "64 bytes from b: time=150 ms"))
	f.queue.Push(stream.Item{Kind: stream.KindEnded, Session: 1})

	assert.Equal(t, 1, f.ctrl.Drain())
	assert.Equal(t, StateRunning, f.ctrl.Status().State)
	assert.Equal(t, models.StatusUnknown, device(t, f.ctrl, "a").Status)
	assert.Equal(t, models.StatusSlow, device(t, f.ctrl, "b").Status)
	assert.Equal(t, []string{"64 bytes from b: time=150 ms"}, f.presenter.lines)
}

func TestStart_ClearsQueuedOutput(t *testing.T) {
	f := newFixture(t, models.Device{Address: "a"})

	require.NoError(t, f.ctrl.Start("a"))
	f.queue.Push(stream.Line(1, "Reply from a: time=5ms"))
	require.NoError(t, f.ctrl.Start("a"))

	assert.Zero(t, f.ctrl.Drain())
	assert.Equal(t, models.StatusUnknown, device(t, f.ctrl, "a").Status)
}

func TestToggle(t *testing.T) {
	f := newFixture(t, models.Device{Address: "a"})

	require.NoError(t, f.ctrl.Toggle("a"))
	assert.Equal(t, StateRunning, f.ctrl.Status().State)

	require.NoError(t, f.ctrl.Toggle("a"))
	assert.Equal(t, StateIdle, f.ctrl.Status().State)
	assert.Equal(t, 1, f.prober.stops)

	assert.Equal(t, []State{StateStarting, StateRunning, StateStopping, StateIdle}, f.presenter.states)

	// stopping twice is harmless
	f.ctrl.Stop()
	assert.Equal(t, 1, f.prober.stops)
}

func TestStart_LaunchFailure(t *testing.T) {
	f := newFixture(t, models.Device{Address: "a", Status: models.StatusFast})
	f.prober.failNext = true

	err := f.ctrl.Start("a")
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrProbeLaunch)
	assert.Equal(t, StateIdle, f.ctrl.Status().State)
	assert.Equal(t, models.StatusDown, device(t, f.ctrl, "a").Status)

	assert.Equal(t, 1, f.ctrl.Drain())
	require.Len(t, f.presenter.lines, 1)
	assert.Contains(t, f.presenter.lines[0], "probe failed")

	// the diagnostic is display only: no sample, no second update
	f.flush(t)
	assert.Empty(t, f.history.all())
	assert.Equal(t, models.StatusDown, device(t, f.ctrl, "a").Status)

	// a later start works normally
	require.NoError(t, f.ctrl.Start("a"))
	assert.Equal(t, StateRunning, f.ctrl.Status().State)
}

func TestStart_InvalidAddressStaysIdle(t *testing.T) {
	q := stream.NewQueue()
	ctrl := New(Options{
		Queue:     q,
		Prober:    invalidProber{},
		Snapshots: &fakeSnapshots{},
	})
	defer ctrl.Close()

	err := ctrl.Start("-x")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidAddress)
	assert.Equal(t, StateIdle, ctrl.Status().State)
}

type invalidProber struct{}

func (invalidProber) Start(string) (uint64, error) { return 0, pkgerrors.ErrInvalidAddress }
func (invalidProber) Stop()                        {}
func (invalidProber) Wait()                        {}

func TestDrain_LinesAfterStopAreNotRecorded(t *testing.T) {
	f := newFixture(t, models.Device{Address: "a"})
	require.NoError(t, f.ctrl.Start("a"))
	f.ctrl.Stop()

	f.queue.Push(stream.Line(1, "Reply from a: bytes=32 time=12ms TTL=64"))
	assert.Equal(t, 1, f.ctrl.Drain())

	assert.Equal(t, StateIdle, f.ctrl.Status().State)
	assert.Equal(t, models.StatusUnknown, device(t, f.ctrl, "a").Status)
	assert.Equal(t, []string{"Reply from a: bytes=32 time=12ms TTL=64"}, f.presenter.lines)
	f.flush(t)
	assert.Empty(t, f.history.all())
}

func TestDrain_EndedMarker(t *testing.T) {
	f := newFixture(t, models.Device{Address: "a"})
	require.NoError(t, f.ctrl.Start("a"))

	f.queue.Push(stream.Line(1, "ping: unknown host a"))
	f.queue.Push(stream.Item{Kind: stream.KindEnded, Session: 1})
	f.ctrl.Drain()

	assert.Equal(t, StateIdle, f.ctrl.Status().State)
	assert.Equal(t, models.StatusDown, device(t, f.ctrl, "a").Status)
}

func TestReconcile(t *testing.T) {
	f := newFixture(t,
		models.Device{Address: "a", Status: models.StatusFast},
		models.Device{Address: "gone"},
	)

	warnings := f.ctrl.Reconcile([]models.Record{{Address: "b"}, {Address: "a"}, {Address: "b"}})
	require.Len(t, warnings, 1)
	assert.ErrorIs(t, warnings[0], pkgerrors.ErrDuplicateAddress)

	f.flush(t)
	saved := f.snapshots.last()
	require.Len(t, saved, 2)
	assert.Equal(t, "b", saved[0].Address)
	assert.Equal(t, "a", saved[1].Address)
	assert.Equal(t, models.StatusFast, saved[1].Status)
	assert.Equal(t, 1, f.presenter.refreshes)
}

func TestDeviceMutations(t *testing.T) {
	f := newFixture(t, models.Device{Address: "a"})

	require.NoError(t, f.ctrl.AddOrReplace(models.Device{Address: "b", Location: "lab"}, false))
	assert.ErrorIs(t, f.ctrl.AddOrReplace(models.Device{Address: "b"}, false), pkgerrors.ErrDuplicateAddress)

	require.NoError(t, f.ctrl.Edit("b", models.Record{Address: "c", DisplayName: "cam"}))
	assert.Equal(t, "cam", device(t, f.ctrl, "c").DisplayName)

	require.NoError(t, f.ctrl.Remove("a"))
	assert.ErrorIs(t, f.ctrl.Remove("a"), pkgerrors.ErrDeviceNotFound)

	f.flush(t)
	saved := f.snapshots.last()
	require.Len(t, saved, 1)
	assert.Equal(t, "c", saved[0].Address)
}

func TestRun_SubmitAndDrain(t *testing.T) {
	f := newFixture(t, models.Device{Address: "a"})
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- f.ctrl.Run(ctx) }()

	err := f.ctrl.Submit(ctx, func(c *Controller) error { return c.Start("a") })
	require.NoError(t, err)

	f.queue.Push(stream.Line(1, "Reply from a: bytes=32 time=75ms TTL=64"))
	require.Eventually(t, func() bool { return f.presenter.lineCount() == 1 }, 5*time.Second, 5*time.Millisecond)

	warnings, err := f.ctrl.Apply(ctx, []models.Record{{Address: "a", DisplayName: "gateway"}})
	require.NoError(t, err)
	assert.Empty(t, warnings)

	var got models.Device
	require.NoError(t, f.ctrl.Submit(ctx, func(c *Controller) error {
		got = device(t, c, "a")
		return nil
	}))
	assert.Equal(t, "gateway", got.DisplayName)
	assert.Equal(t, models.StatusNormal, got.Status)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	err = f.ctrl.Submit(context.Background(), func(*Controller) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
	assert.Error(t, f.ctrl.Run(context.Background()))
}

func TestClose_StopsProbeAndFlushes(t *testing.T) {
	f := newFixture(t, models.Device{Address: "a"})
	require.NoError(t, f.ctrl.Start("a"))
	f.queue.Push(stream.Line(1, "Reply from a: time=1ms"))

	f.ctrl.Close()
	f.ctrl.Close()

	assert.Equal(t, 1, f.prober.stops)
	assert.Equal(t, 1, f.prober.waits)
	assert.Equal(t, StateIdle, f.ctrl.Status().State)
	saved := f.snapshots.last()
	require.Len(t, saved, 1)
	assert.Equal(t, models.StatusFast, saved[0].Status)
}

func TestPersister_RetriesFailedWrites(t *testing.T) {
	snaps := &fakeSnapshots{err: errors.New("disk full")}
	hist := &fakeHistory{err: errors.New("database is locked")}
	p := NewPersister(snaps, hist, nil, zap.NewNop())
	defer p.Close()
	ctx := context.Background()

	p.Submit([]models.Device{{Address: "a"}}, []*models.Sample{{Address: "a", Status: models.StatusDown}})
	require.NoError(t, p.Flush(ctx))
	calls, saved := snaps.count()
	assert.GreaterOrEqual(t, calls, 1)
	assert.Zero(t, saved)
	assert.Empty(t, hist.all())

	snaps.setErr(nil)
	hist.mu.Lock()
	hist.err = nil
	hist.mu.Unlock()

	require.NoError(t, p.Flush(ctx))
	assert.Equal(t, "a", snaps.last()[0].Address)
	assert.Len(t, hist.all(), 1)
}

func TestPersister_CoalescesSnapshots(t *testing.T) {
	snaps := &fakeSnapshots{}
	p := NewPersister(snaps, nil, nil, zap.NewNop())

	for i := 0; i < 50; i++ {
		p.Submit([]models.Device{{Address: "a", DisplayName: string(rune('A' + i%26))}}, nil)
	}
	p.Close()

	_, saved := snaps.count()
	assert.LessOrEqual(t, saved, 50)
	assert.Equal(t, string(rune('A'+49%26)), snaps.last()[0].DisplayName)
}

func TestAllowedTransition(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateIdle, StateStarting, true},
		{StateIdle, StateRunning, false},
		{StateIdle, StateStopping, false},
		{StateStarting, StateRunning, true},
		{StateStarting, StateIdle, true},
		{StateRunning, StateStopping, true},
		{StateRunning, StateIdle, true},
		{StateRunning, StateStarting, false},
		{StateStopping, StateIdle, true},
		{StateStopping, StateRunning, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, allowedTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}

	var b stateBox
	b.status.State = StateIdle
	assert.ErrorIs(t, b.set(StateRunning, "a", 1), pkgerrors.ErrInvalidTransition)
	assert.NoError(t, b.set(StateIdle, "", 0))
}
