package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"pingmon/internal/storage"
	"pingmon/internal/storage/models"
	pkgerrors "pingmon/pkg/errors"
)

// dbHandle is the common interface between *sql.DB and *sql.Tx.
type dbHandle interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// DB implements the History interface using SQLite
type DB struct {
	db *sql.DB
}

// New creates a new SQLite history store
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	history := &DB{db: db}

	if err := runMigrations(history); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return history, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) handle() dbHandle { return d.db }

// BeginTx starts a new transaction
func (d *DB) BeginTx(ctx context.Context) (storage.Transaction, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Tx implements the Transaction interface
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Commit() error    { return t.tx.Commit() }
func (t *Tx) Rollback() error  { return t.tx.Rollback() }
func (t *Tx) handle() dbHandle { return t.tx }

func (t *Tx) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return nil, fmt.Errorf("nested transactions not supported")
}

func (t *Tx) Close() error { return nil }

// ─── Sample operations ──────────────────────────────────────────────────────

// RecordSamples inserts a batch atomically.
func (d *DB) RecordSamples(ctx context.Context, samples []*models.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := d.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := tx.RecordSamples(ctx, samples); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
func (t *Tx) RecordSamples(ctx context.Context, samples []*models.Sample) error {
	return recordSamples(ctx, t.handle(), samples)
}

func recordSamples(ctx context.Context, h dbHandle, samples []*models.Sample) error {
	stmt, err := h.PrepareContext(ctx, `
		INSERT INTO samples (address, latency_ms, status, probed_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		result, err := stmt.ExecContext(ctx, s.Address, s.LatencyMs, string(s.Status), s.ProbedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to record sample: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return err
		}
		s.ID = id
	}
	return nil
}

func (d *DB) GetHistory(ctx context.Context, address string, limit int) ([]*models.Sample, error) {
	return getHistory(ctx, d.handle(), address, limit)
}
func (t *Tx) GetHistory(ctx context.Context, address string, limit int) ([]*models.Sample, error) {
	return getHistory(ctx, t.handle(), address, limit)
}

// getHistory returns the newest samples first. A non-positive limit returns all.
func getHistory(ctx context.Context, h dbHandle, address string, limit int) ([]*models.Sample, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT id, address, latency_ms, status, probed_at
		FROM samples
		WHERE address = ?
		ORDER BY probed_at DESC, id DESC
		LIMIT ?
	`
	rows, err := h.QueryContext(ctx, query, address, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []*models.Sample
	for rows.Next() {
		var (
			s        = &models.Sample{}
			latency  sql.NullFloat64
			status   string
			probedAt int64
		)
		if err := rows.Scan(&s.ID, &s.Address, &latency, &status, &probedAt); err != nil {
			return nil, err
		}
		if latency.Valid {
			v := latency.Float64
			s.LatencyMs = &v
		}
		s.Status = models.Status(status)
		s.ProbedAt = time.UnixMilli(probedAt)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

func (d *DB) GetSummary(ctx context.Context, address string) (*models.HistorySummary, error) {
	return getSummary(ctx, d.handle(), address)
}
func (t *Tx) GetSummary(ctx context.Context, address string) (*models.HistorySummary, error) {
	return getSummary(ctx, t.handle(), address)
}

func getSummary(ctx context.Context, h dbHandle, address string) (*models.HistorySummary, error) {
	query := `
		SELECT COUNT(*), COUNT(latency_ms), MIN(latency_ms), AVG(latency_ms), MAX(latency_ms),
		       MIN(probed_at), MAX(probed_at)
		FROM samples WHERE address = ?
	`
	var (
		summary         = &models.HistorySummary{Address: address}
		minMs, avgMs    sql.NullFloat64
		maxMs           sql.NullFloat64
		firstAt, lastAt sql.NullInt64
	)
	err := h.QueryRowContext(ctx, query, address).Scan(
		&summary.Total, &summary.Succeeded, &minMs, &avgMs, &maxMs, &firstAt, &lastAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize history: %w", err)
	}

	summary.MinMs = nullFloat(minMs)
	summary.AvgMs = nullFloat(avgMs)
	summary.MaxMs = nullFloat(maxMs)
	if firstAt.Valid {
		t := time.UnixMilli(firstAt.Int64)
		summary.First = &t
	}
	if lastAt.Valid {
		t := time.UnixMilli(lastAt.Int64)
		summary.Last = &t
	}
	return summary, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func (d *DB) DeleteHistory(ctx context.Context, address string) (int64, error) {
	return deleteHistory(ctx, d.handle(), address)
}
func (t *Tx) DeleteHistory(ctx context.Context, address string) (int64, error) {
	return deleteHistory(ctx, t.handle(), address)
}

func deleteHistory(ctx context.Context, h dbHandle, address string) (int64, error) {
	result, err := h.ExecContext(ctx, "DELETE FROM samples WHERE address = ?", address)
	if err != nil {
		return 0, fmt.Errorf("failed to delete history: %w", err)
	}
	return result.RowsAffected()
}

func (d *DB) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	return pruneHistory(ctx, d.handle(), before)
}
func (t *Tx) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	return pruneHistory(ctx, t.handle(), before)
}

func pruneHistory(ctx context.Context, h dbHandle, before time.Time) (int64, error) {
	result, err := h.ExecContext(ctx, "DELETE FROM samples WHERE probed_at < ?", before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return result.RowsAffected()
}

// ─── Settings operations ────────────────────────────────────────────────────

func (d *DB) GetSetting(ctx context.Context, key string) (string, error) {
	return getSetting(ctx, d.handle(), key)
}
func (t *Tx) GetSetting(ctx context.Context, key string) (string, error) {
	return getSetting(ctx, t.handle(), key)
}

func getSetting(ctx context.Context, h dbHandle, key string) (string, error) {
	var value string
	err := h.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", pkgerrors.ErrSettingNotFound, key)
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (d *DB) SetSetting(ctx context.Context, key, value string) error {
	return setSetting(ctx, d.handle(), key, value)
}
func (t *Tx) SetSetting(ctx context.Context, key, value string) error {
	return setSetting(ctx, t.handle(), key, value)
}

func setSetting(ctx context.Context, h dbHandle, key, value string) error {
	query := `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	_, err := h.ExecContext(ctx, query, key, value)
	return err
}

var _ storage.History = (*DB)(nil)
