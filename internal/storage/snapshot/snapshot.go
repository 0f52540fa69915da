// Package snapshot persists the device registry as a JSON file.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"pingmon/internal/storage/models"
	pkgerrors "pingmon/pkg/errors"
)

const (
	dirPerms  = 0o755
	filePerms = 0o644
)

// Store reads and writes the device snapshot file.
type Store struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// New creates a store for path, creating its directory.
func New(path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("snapshot path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}, nil
}

func (s *Store) Path() string {
	return s.path
}

// Load returns the persisted devices. A missing file yields an empty list.
// A corrupt file is logged and also yields an empty list, so startup continues
// with a fresh registry.
func (s *Store) Load(ctx context.Context) ([]models.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.Device{}, nil
		}
		return nil, &pkgerrors.PersistenceError{Path: s.path, Err: err}
	}
	if len(data) == 0 {
		return []models.Device{}, nil
	}

	var devices []models.Device
	if err := json.Unmarshal(data, &devices); err != nil {
		s.logger.Warn("snapshot is corrupt, starting empty",
			zap.String("path", s.path),
			zap.Error(err))
		return []models.Device{}, nil
	}
	if devices == nil {
		devices = []models.Device{}
	}
	return devices, nil
}

// Save replaces the snapshot. The data is written to a temporary file in the
// same directory, synced and renamed over the old file, so readers see either
// the previous or the new snapshot.
func (s *Store) Save(ctx context.Context, devices []models.Device) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if devices == nil {
		devices = []models.Device{}
	}

	payload, err := json.MarshalIndent(devices, "", "  ")
	if err != nil {
		return &pkgerrors.PersistenceError{Path: s.path, Err: fmt.Errorf("encode snapshot: %w", err)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeAtomic(s.path, payload); err != nil {
		return &pkgerrors.PersistenceError{Path: s.path, Err: err}
	}
	return nil
}

func writeAtomic(path string, payload []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(payload); err != nil {
		cleanup()
		return fmt.Errorf("write temporary snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temporary snapshot: %w", err)
	}
	if err := tmp.Chmod(filePerms); err != nil {
		cleanup()
		return fmt.Errorf("chmod temporary snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temporary snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("persist snapshot: %w", err)
	}

	// Make the rename durable; not supported everywhere.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}
