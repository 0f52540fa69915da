package storage

import (
	"context"
	"time"

	"pingmon/internal/storage/models"
)

// History defines the interface for per-device sample persistence
type History interface {
	// Sample operations
	RecordSamples(ctx context.Context, samples []*models.Sample) error
	GetHistory(ctx context.Context, address string, limit int) ([]*models.Sample, error)
	GetSummary(ctx context.Context, address string) (*models.HistorySummary, error)
	DeleteHistory(ctx context.Context, address string) (int64, error)
	PruneHistory(ctx context.Context, before time.Time) (int64, error)

	// Settings operations
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// Transactions
	BeginTx(ctx context.Context) (Transaction, error)

	// Close closes the storage connection
	Close() error
}

// Well-known setting keys
const (
	SettingLastTarget   = "last_target"
	SettingLastImportAt = "last_import_at"
)

// Transaction represents a database transaction
type Transaction interface {
	Commit() error
	Rollback() error
	History
}
