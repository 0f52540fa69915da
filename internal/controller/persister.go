package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"pingmon/internal/metrics"
	"pingmon/internal/storage/models"
	pkgerrors "pingmon/pkg/errors"
)

// SnapshotSaver writes the whole device list.
type SnapshotSaver interface {
	Save(ctx context.Context, devices []models.Device) error
}

// SampleRecorder appends history samples.
type SampleRecorder interface {
	RecordSamples(ctx context.Context, samples []*models.Sample) error
}

// maxPendingSamples bounds the samples kept while the history store is failing.
const maxPendingSamples = 10000

const writeTimeout = 10 * time.Second

// Persister writes snapshots and samples off the controller goroutine.
// Snapshots coalesce so only the latest is written; samples accumulate.
// A failed write is kept and retried on the next request or on Flush.
type Persister struct {
	snapshots SnapshotSaver
	history   SampleRecorder
	metrics   *metrics.Metrics
	logger    *zap.Logger

	mu       sync.Mutex
	snapshot []models.Device
	dirty    bool
	samples  []*models.Sample

	wake    chan struct{}
	flushes chan chan struct{}
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewPersister starts the writer goroutine. history may be nil.
func NewPersister(snapshots SnapshotSaver, history SampleRecorder, m *metrics.Metrics, logger *zap.Logger) *Persister {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Persister{
		snapshots: snapshots,
		history:   history,
		metrics:   m,
		logger:    logger,
		wake:      make(chan struct{}, 1),
		flushes:   make(chan chan struct{}),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go p.loop()
	return p
}

// Submit queues a snapshot and samples. It never blocks on I/O.
func (p *Persister) Submit(devices []models.Device, samples []*models.Sample) {
	p.mu.Lock()
	if devices != nil {
		p.snapshot = devices
		p.dirty = true
	}
	if p.history != nil && len(samples) > 0 {
		p.samples = append(p.samples, samples...)
		if over := len(p.samples) - maxPendingSamples; over > 0 {
			p.logger.Warn("history backlog full, dropping oldest samples", zap.Int("dropped", over))
			p.samples = append([]*models.Sample(nil), p.samples[over:]...)
		}
	}
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Flush blocks until everything submitted so far has been attempted.
func (p *Persister) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case p.flushes <- ack:
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes and stops the writer.
func (p *Persister) Close() {
	p.once.Do(func() {
		close(p.quit)
		<-p.done
	})
}

func (p *Persister) loop() {
	defer close(p.done)
	for {
		select {
		case <-p.wake:
			p.write()
		case ack := <-p.flushes:
			p.write()
			close(ack)
		case <-p.quit:
			p.write()
			return
		}
	}
}

func (p *Persister) write() {
	p.mu.Lock()
	devices, dirty := p.snapshot, p.dirty
	samples := p.samples
	p.dirty = false
	p.samples = nil
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if dirty {
		if err := p.snapshots.Save(ctx, devices); err != nil {
			p.fail("snapshot", err)
			// p.snapshot is either this list or a newer one
			p.mu.Lock()
			p.dirty = true
			p.mu.Unlock()
		}
	}

	if len(samples) > 0 {
		if err := p.history.RecordSamples(ctx, samples); err != nil {
			p.fail("history", err)
			p.mu.Lock()
			p.samples = append(samples, p.samples...)
			p.mu.Unlock()
		}
	}
}

func (p *Persister) fail(target string, err error) {
	p.metrics.PersistFailed(target)
	var perr *pkgerrors.PersistenceError
	if !errors.As(err, &perr) {
		err = &pkgerrors.PersistenceError{Path: target, Err: err}
	}
	p.logger.Error("persist failed", zap.String("target", target), zap.Error(err))
}
