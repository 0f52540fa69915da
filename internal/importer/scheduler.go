package importer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"pingmon/internal/storage/models"
)

// Applier merges freshly read records into the live registry.
type Applier interface {
	Apply(ctx context.Context, records []models.Record) ([]error, error)
}

// Pruner drops history older than a cutoff.
type Pruner interface {
	PruneHistory(ctx context.Context, before time.Time) (int64, error)
}

// SchedulerConfig selects which periodic jobs run. A zero duration disables a job.
type SchedulerConfig struct {
	ImportInterval   time.Duration
	PruneInterval    time.Duration
	HistoryRetention time.Duration
}

// Result describes one import run.
type Result struct {
	Path       string
	Records    int
	Warnings   []error
	ImportedAt time.Time
}

// Scheduler handles periodic re-import and history pruning
type Scheduler struct {
	scheduler gocron.Scheduler
	cfg       SchedulerConfig
	source    Source
	applier   Applier
	pruner    Pruner
	logger    *zap.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a new scheduler. source and applier may be nil when no
// import file is configured, pruner when history is disabled.
func NewScheduler(cfg SchedulerConfig, source Source, applier Applier, pruner Pruner, logger *zap.Logger, opts ...gocron.SchedulerOption) (*Scheduler, error) {
	scheduler, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		scheduler: scheduler,
		cfg:       cfg,
		source:    source,
		applier:   applier,
		pruner:    pruner,
		logger:    logger,
	}, nil
}

// Start registers the enabled jobs and starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	if s.cfg.ImportInterval > 0 && s.source != nil && s.applier != nil {
		_, err := s.scheduler.NewJob(
			gocron.DurationJob(s.cfg.ImportInterval),
			gocron.NewTask(func() {
				if _, err := s.Import(ctx); err != nil {
					s.logger.Warn("scheduled import failed", zap.Error(err))
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("failed to create import job: %w", err)
		}
	}

	if s.cfg.PruneInterval > 0 && s.cfg.HistoryRetention > 0 && s.pruner != nil {
		_, err := s.scheduler.NewJob(
			gocron.DurationJob(s.cfg.PruneInterval),
			gocron.NewTask(func() {
				s.Prune(ctx)
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			return fmt.Errorf("failed to create prune job: %w", err)
		}
	}

	s.scheduler.Start()
	s.running = true
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return fmt.Errorf("scheduler is not running")
	}

	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}

	s.running = false
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.scheduler.Jobs())
}

// Import reads the source and applies it. The file is read on the calling
// goroutine; only the merge runs in the controller. A read failure leaves the
// registry unchanged.
func (s *Scheduler) Import(ctx context.Context) (*Result, error) {
	if s.source == nil || s.applier == nil {
		return nil, fmt.Errorf("no import source configured")
	}

	records, warnings, err := s.source.Read(ctx)
	if err != nil {
		return nil, err
	}

	dupes, err := s.applier.Apply(ctx, records)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Records:    len(records),
		Warnings:   append(warnings, dupes...),
		ImportedAt: time.Now(),
	}
	if fs, ok := s.source.(*FileSource); ok {
		result.Path = fs.Path()
	}

	s.logger.Info("devices imported",
		zap.String("path", result.Path),
		zap.Int("records", result.Records),
		zap.Int("warnings", len(result.Warnings)))
	return result, nil
}

// Prune removes history older than the retention period.
func (s *Scheduler) Prune(ctx context.Context) {
	if s.pruner == nil || s.cfg.HistoryRetention <= 0 {
		return
	}
	cutoff := time.Now().Add(-s.cfg.HistoryRetention)
	n, err := s.pruner.PruneHistory(ctx, cutoff)
	if err != nil {
		s.logger.Warn("history prune failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("history pruned", zap.Int64("samples", n), zap.Time("before", cutoff))
	}
}
