// Package controller owns the device registry and the probe lifecycle. All
// registry mutations and presenter callbacks happen on one goroutine: the one
// running Run, or the caller's when no loop is running.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"pingmon/internal/latency"
	"pingmon/internal/metrics"
	"pingmon/internal/registry"
	"pingmon/internal/storage/models"
	"pingmon/internal/stream"
	pkgerrors "pingmon/pkg/errors"
)

// ErrClosed is returned by Submit once the controller loop has exited.
var ErrClosed = errors.New("controller is closed")

// Prober runs at most one probe session.
type Prober interface {
	Start(address string) (uint64, error)
	Stop()
	Wait()
}

// Presenter receives output and registry updates on the controller goroutine.
type Presenter interface {
	LineAppended(text string)
	RegistryRefreshed(devices []models.Device)
}

// SessionObserver is optionally implemented by a Presenter that shows the probe state.
type SessionObserver interface {
	SessionChanged(status Status)
}

// Options wires a Controller.
type Options struct {
	Queue     *stream.Queue
	Prober    Prober
	Registry  *registry.Registry
	Snapshots SnapshotSaver
	History   SampleRecorder // nil disables history
	Presenter Presenter      // nil discards output
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Now       func() time.Time
}

type request struct {
	fn   func(*Controller) error
	done chan error
}

type Controller struct {
	queue     *stream.Queue
	prober    Prober
	registry  *registry.Registry
	persister *Persister
	presenter Presenter
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time

	state stateBox

	requests chan request
	stopped  chan struct{}
	runOnce  sync.Once
	closeMu  sync.Mutex
	closed   bool
}

func New(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Registry == nil {
		opts.Registry, _ = registry.New(nil)
	}
	if opts.Queue == nil {
		opts.Queue = stream.NewQueue()
	}

	c := &Controller{
		queue:     opts.Queue,
		prober:    opts.Prober,
		registry:  opts.Registry,
		persister: NewPersister(opts.Snapshots, opts.History, opts.Metrics, opts.Logger),
		presenter: opts.Presenter,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       opts.Now,
		requests:  make(chan request),
		stopped:   make(chan struct{}),
	}
	c.state.status.State = StateIdle
	c.metrics.SetDevices(c.registry.Len())
	return c
}

// Status can be read from any goroutine.
func (c *Controller) Status() Status {
	return c.state.get()
}

// SetPresenter replaces the presenter. Call it before Run.
func (c *Controller) SetPresenter(p Presenter) {
	c.presenter = p
}

// Run executes submitted work and drains probe output until ctx is done.
// Only one Run may be active.
func (c *Controller) Run(ctx context.Context) error {
	started := false
	c.runOnce.Do(func() { started = true })
	if !started {
		return fmt.Errorf("controller is already running")
	}
	defer close(c.stopped)

	c.Drain()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-c.requests:
			req.done <- req.fn(c)
		case <-c.queue.Ready():
			c.Drain()
		}
	}
}

// Submit runs fn on the controller goroutine and returns its error.
func (c *Controller) Submit(ctx context.Context, fn func(*Controller) error) error {
	req := request{fn: fn, done: make(chan error, 1)}
	select {
	case c.requests <- req:
	case <-c.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestRefresh asks the loop to push the full registry to the presenter.
// Safe from any goroutine.
func (c *Controller) RequestRefresh() {
	c.queue.Push(stream.Item{Kind: stream.KindRefresh})
}

// Toggle starts probing address when idle and stops the probe otherwise.
func (c *Controller) Toggle(address string) error {
	switch c.state.get().State {
	case StateIdle:
		return c.Start(address)
	default:
		c.Stop()
		return nil
	}
}

// Start probes address, replacing any running session. On a launch failure
// the target is marked DOWN and the controller returns to idle.
func (c *Controller) Start(address string) error {
	if c.state.get().State != StateIdle {
		c.Stop()
	}
	if err := c.transition(StateStarting, address, 0); err != nil {
		return err
	}
	// Output of the previous target is of no interest once a new one starts.
	c.queue.Reset()

	id, err := c.prober.Start(address)
	if err != nil {
		var launchErr *pkgerrors.LaunchError
		if errors.As(err, &launchErr) {
			c.state.mu.Lock()
			c.state.status.Session = id
			c.state.mu.Unlock()
			c.metrics.LaunchFailed()
			c.registry.UpdateRuntime(address, nil, c.now(), models.StatusDown)
			c.persistAndRefresh(nil)
		}
		c.logger.Warn("probe start failed", zap.String("address", address), zap.Error(err))
		_ = c.transition(StateIdle, address, id)
		return err
	}

	c.metrics.SessionStarted()
	c.logger.Info("probe running", zap.String("address", address), zap.Uint64("session", id))
	return c.transition(StateRunning, address, id)
}

// Stop ends the running probe. It is a no-op when idle.
func (c *Controller) Stop() {
	st := c.state.get()
	if st.State == StateIdle {
		return
	}
	if st.State == StateRunning {
		_ = c.transition(StateStopping, st.Target, st.Session)
	}
	c.prober.Stop()
	c.metrics.SessionEnded()
	_ = c.transition(StateIdle, st.Target, st.Session)
	c.logger.Info("probe stopped", zap.String("address", st.Target))
}

func (c *Controller) transition(next State, target string, session uint64) error {
	if err := c.state.set(next, target, session); err != nil {
		return err
	}
	if obs, ok := c.presenter.(SessionObserver); ok {
		obs.SessionChanged(c.state.get())
	}
	return nil
}

// Drain processes everything queued without blocking and reports how many
// lines of the current session were handled.
func (c *Controller) Drain() int {
	items := c.queue.Drain()
	if len(items) == 0 {
		return 0
	}

	st := c.state.get()
	var (
		lines   int
		changed bool
		refresh bool
		samples []*models.Sample
	)
	for _, it := range items {
		switch it.Kind {
		case stream.KindRefresh:
			refresh = true

		case stream.KindEnded:
			if it.Session == st.Session && st.State == StateRunning {
				c.metrics.SessionEnded()
				c.logger.Info("probe exited on its own", zap.String("address", st.Target))
				_ = c.transition(StateIdle, st.Target, st.Session)
				st = c.state.get()
			}

		case stream.KindDiagnostic:
			if it.Session != st.Session {
				continue
			}
			lines++
			if c.presenter != nil {
				c.presenter.LineAppended(it.Text)
			}

		case stream.KindLine:
			if st.Session == 0 || it.Session != st.Session {
				continue
			}
			lines++
			if c.presenter != nil {
				c.presenter.LineAppended(it.Text)
			}
			// Output still in flight after a stop is shown but not recorded.
			if st.State != StateRunning || strings.TrimSpace(it.Text) == "" {
				continue
			}

			ms := latency.ParsePtr(it.Text)
			status := latency.Classify(ms)
			at := c.now()
			c.metrics.ObserveLine(ms, status)
			if c.registry.UpdateRuntime(st.Target, ms, at, status) {
				changed = true
			}
			samples = append(samples, &models.Sample{
				Address:   st.Target,
				LatencyMs: ms,
				Status:    status,
				ProbedAt:  at,
			})
		}
	}

	switch {
	case changed || len(samples) > 0:
		c.persistAndRefresh(samples)
	case refresh:
		c.refresh()
	}
	return lines
}

// Reconcile merges imported records and returns per-record warnings.
func (c *Controller) Reconcile(records []models.Record) []error {
	warnings := c.registry.Reconcile(records)
	for _, w := range warnings {
		c.logger.Warn("import record dropped", zap.Error(w))
	}
	c.persistAndRefresh(nil)
	return warnings
}

// Apply reconciles on the controller goroutine. It needs a running loop.
func (c *Controller) Apply(ctx context.Context, records []models.Record) ([]error, error) {
	var warnings []error
	err := c.Submit(ctx, func(c *Controller) error {
		warnings = c.Reconcile(records)
		return nil
	})
	return warnings, err
}

// AddOrReplace registers a device outside the import flow.
func (c *Controller) AddOrReplace(d models.Device, replace bool) error {
	if err := c.registry.AddOrReplace(d, replace); err != nil {
		return err
	}
	c.persistAndRefresh(nil)
	return nil
}

// Edit changes a device's descriptive fields and possibly its address.
func (c *Controller) Edit(oldAddress string, rec models.Record) error {
	if err := c.registry.Edit(oldAddress, rec); err != nil {
		return err
	}
	c.persistAndRefresh(nil)
	return nil
}

// Remove deletes a device.
func (c *Controller) Remove(address string) error {
	if !c.registry.Remove(address) {
		return fmt.Errorf("%w: %s", pkgerrors.ErrDeviceNotFound, address)
	}
	c.persistAndRefresh(nil)
	return nil
}

// Devices returns a copy of the registry.
func (c *Controller) Devices() []models.Device {
	return c.registry.Snapshot()
}

func (c *Controller) persistAndRefresh(samples []*models.Sample) {
	snap := c.registry.Snapshot()
	c.persister.Submit(snap, samples)
	c.metrics.SetDevices(len(snap))
	if c.presenter != nil {
		c.presenter.RegistryRefreshed(c.registry.Snapshot())
	}
}

func (c *Controller) refresh() {
	if c.presenter != nil {
		c.presenter.RegistryRefreshed(c.registry.Snapshot())
	}
}

// Flush waits for pending writes.
func (c *Controller) Flush(ctx context.Context) error {
	return c.persister.Flush(ctx)
}

// Close stops the probe, processes its remaining output and flushes pending
// writes. Call it after Run has returned.
func (c *Controller) Close() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true

	if c.prober != nil {
		c.Stop()
		c.prober.Wait()
	}
	c.Drain()
	c.persister.Close()
}
