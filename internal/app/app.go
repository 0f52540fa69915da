package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pingmon/internal/config"
	"pingmon/internal/controller"
	"pingmon/internal/importer"
	"pingmon/internal/metrics"
	"pingmon/internal/paths"
	"pingmon/internal/probe"
	"pingmon/internal/registry"
	"pingmon/internal/storage"
	"pingmon/internal/storage/models"
	"pingmon/internal/storage/snapshot"
	"pingmon/internal/storage/sqlite"
	"pingmon/internal/stream"
	pkgerrors "pingmon/pkg/errors"
)

// App represents the application context
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Snapshots  *snapshot.Store
	History    storage.History // nil when history is disabled
	Source     *importer.FileSource
	Metrics    *metrics.Metrics
	Queue      *stream.Queue
	Prober     *probe.Prober
	Controller *controller.Controller
}

// Options are the command line settings that shape the application.
type Options struct {
	ConfigFile string
	DataDir    string
	LogLevel   string
	LogToFile  bool // the TUI owns the terminal, so logs go to a file
}

// New creates a new application instance and loads the device registry
func New(opts Options) (*App, error) {
	dirs, err := resolveDirs(opts.DataDir)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(viper.New(), config.Options{
		ConfigFile: opts.ConfigFile,
		DataDir:    dirs.data,
		ConfigDir:  dirs.config,
		CacheDir:   dirs.cache,
		LogLevel:   opts.LogLevel,
	})
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Log, opts.LogToFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
		Queue:   stream.NewQueue(),
	}

	a.Snapshots, err = snapshot.New(cfg.Snapshot.Path, logger.Named("snapshot"))
	if err != nil {
		return nil, err
	}

	if cfg.History.Enabled {
		db, err := sqlite.New(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize history: %w", err)
		}
		a.History = db
	}

	a.Source, err = importer.NewFileSource(cfg.Import.Path, cfg.Import.Sheet, logger.Named("import"))
	if err != nil {
		a.closeStores()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	devices, err := a.Snapshots.Load(ctx)
	if err != nil {
		a.closeStores()
		return nil, err
	}
	reg, warnings := registry.New(devices)
	for _, w := range warnings {
		logger.Warn("snapshot entry dropped", zap.Error(w))
	}

	a.Prober = probe.New(cfg.ProbeSettings(), a.Queue, logger.Named("probe"))

	ctrlOpts := controller.Options{
		Queue:     a.Queue,
		Prober:    a.Prober,
		Registry:  reg,
		Snapshots: a.Snapshots,
		Metrics:   a.Metrics,
		Logger:    logger.Named("controller"),
	}
	if a.History != nil {
		ctrlOpts.History = a.History
	}
	a.Controller = controller.New(ctrlOpts)

	if reg.Len() == 0 {
		a.seedFromImport(ctx)
	}

	logger.Info("pingmon ready",
		zap.Int("devices", reg.Len()),
		zap.String("snapshot", cfg.Snapshot.Path),
		zap.String("import", cfg.Import.Path))
	return a, nil
}

// seedFromImport fills an empty registry from the import file, if present.
func (a *App) seedFromImport(ctx context.Context) {
	if !a.Source.Exists() {
		return
	}
	records, _, err := a.Source.Read(ctx)
	if err != nil {
		a.Logger.Warn("initial import failed", zap.Error(err))
		return
	}
	a.Controller.Reconcile(records)
	a.markImported(ctx)
}

// Import reads the import file (or path when given) and reconciles it into
// the registry without a running controller loop.
func (a *App) Import(ctx context.Context, path string) (int, []error, error) {
	src := a.Source
	if path != "" {
		s, err := importer.NewFileSource(path, a.Config.Import.Sheet, a.Logger.Named("import"))
		if err != nil {
			return 0, nil, err
		}
		src = s
	}
	records, warnings, err := src.Read(ctx)
	if err != nil {
		return 0, warnings, err
	}
	warnings = append(warnings, a.Controller.Reconcile(records)...)
	a.markImported(ctx)
	return len(records), warnings, nil
}

// Scheduler builds the periodic import and pruning jobs.
func (a *App) Scheduler() (*importer.Scheduler, error) {
	cfg := importer.SchedulerConfig{
		ImportInterval: a.Config.Import.Interval,
	}
	var pruner importer.Pruner
	if a.History != nil {
		pruner = a.History
		cfg.PruneInterval = a.Config.History.PruneInterval
		cfg.HistoryRetention = a.Config.History.Retention
	}
	return importer.NewScheduler(cfg, a.Source, importApplier{a}, pruner, a.Logger.Named("scheduler"))
}

// importApplier merges through the controller loop and records the import time.
type importApplier struct {
	a *App
}

func (ap importApplier) Apply(ctx context.Context, records []models.Record) ([]error, error) {
	warnings, err := ap.a.Controller.Apply(ctx, records)
	if err != nil {
		return nil, err
	}
	ap.a.markImported(ctx)
	return warnings, nil
}

// RememberTarget stores the last probed address for the next start.
func (a *App) RememberTarget(ctx context.Context, address string) {
	if a.History == nil {
		return
	}
	if err := a.History.SetSetting(ctx, storage.SettingLastTarget, address); err != nil {
		a.Logger.Debug("failed to store last target", zap.Error(err))
	}
}

// LastTarget returns the address probed most recently, or "".
func (a *App) LastTarget(ctx context.Context) string {
	if a.History == nil {
		return ""
	}
	v, err := a.History.GetSetting(ctx, storage.SettingLastTarget)
	if err != nil {
		return ""
	}
	return v
}

// LastImport returns when the registry was last reconciled from the import file.
func (a *App) LastImport(ctx context.Context) (time.Time, bool) {
	if a.History == nil {
		return time.Time{}, false
	}
	v, err := a.History.GetSetting(ctx, storage.SettingLastImportAt)
	if err != nil {
		return time.Time{}, false
	}
	t, err := models.ParseTimestamp(v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (a *App) markImported(ctx context.Context) {
	if a.History == nil {
		return
	}
	now := time.Now().Format(time.RFC3339)
	if err := a.History.SetSetting(ctx, storage.SettingLastImportAt, now); err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Debug("failed to store import time", zap.Error(err))
	}
}

// Close closes the application and releases resources
func (a *App) Close() error {
	if a.Controller != nil {
		a.Controller.Close()
	}
	err := a.closeStores()
	_ = a.Logger.Sync()
	return err
}

func (a *App) closeStores() error {
	if a.History != nil {
		if err := a.History.Close(); err != nil {
			return &pkgerrors.PersistenceError{Path: a.Config.History.Path, Err: err}
		}
	}
	return nil
}

type dirs struct {
	data, config, cache string
}

func resolveDirs(dataDir string) (dirs, error) {
	var (
		d   dirs
		err error
	)
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return d, fmt.Errorf("failed to create data directory: %w", err)
		}
		d.data = dataDir
		d.cache = filepath.Join(dataDir, "cache")
	} else if d.data, err = paths.DataDir(); err != nil {
		return d, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	if d.config, err = paths.ConfigDir(); err != nil {
		return d, fmt.Errorf("failed to resolve config directory: %w", err)
	}
	if d.cache == "" {
		if d.cache, err = paths.CacheDir(); err != nil {
			return d, fmt.Errorf("failed to resolve cache directory: %w", err)
		}
	}
	return d, nil
}

func newLogger(cfg config.LogConfig, toFile bool) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if toFile && cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, err
		}
		zc.OutputPaths = []string{cfg.File}
		zc.ErrorOutputPaths = []string{cfg.File}
	} else {
		zc.Encoding = "console"
		zc.OutputPaths = []string{"stderr"}
		zc.ErrorOutputPaths = []string{"stderr"}
	}
	return zc.Build()
}
