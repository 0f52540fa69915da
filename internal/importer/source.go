// Package importer reads device lists from spreadsheet files, local or served
// over http(s), and keeps the registry in step with them.
package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	pathpkg "path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"pingmon/internal/storage/models"
	pkgerrors "pingmon/pkg/errors"
)

// Source yields an ordered list of device records.
type Source interface {
	Read(ctx context.Context) ([]models.Record, []error, error)
}

// Writer persists a single edited record back into the source.
type Writer interface {
	Update(ctx context.Context, oldAddress string, rec models.Record) error
}

type format int

const (
	formatXLSX format = iota
	formatCSV
)

// FileSource reads an .xlsx or .csv file, either local or served over
// http(s). Remote sources are read-only.
type FileSource struct {
	path    string
	sheet   string
	format  format
	remote  bool
	fetcher *Fetcher
	logger  *zap.Logger
}

// SourceOption configures a FileSource.
type SourceOption func(*FileSource)

// WithFetcher replaces the HTTP fetcher used for remote sources.
func WithFetcher(f *Fetcher) SourceOption {
	return func(s *FileSource) {
		s.fetcher = f
	}
}

// NewFileSource picks the reader from the file extension. sheet selects the
// worksheet of a workbook; empty means the active sheet.
func NewFileSource(path, sheet string, logger *zap.Logger, opts ...SourceOption) (*FileSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := formatOf(path)
	if err != nil {
		return nil, &pkgerrors.ImportError{Path: path, Err: err}
	}
	s := &FileSource{path: path, sheet: sheet, format: f, remote: IsRemote(path), logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	if s.remote && s.fetcher == nil {
		s.fetcher = NewFetcher(DefaultFetcherConfig())
	}
	return s, nil
}

// CheckPath reports whether path names a supported import source.
func CheckPath(path string) error {
	_, err := formatOf(path)
	return err
}

// IsRemote reports whether path is an http(s) URL.
func IsRemote(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func formatOf(path string) (format, error) {
	ext := filepath.Ext(path)
	if IsRemote(path) {
		u, err := url.Parse(path)
		if err != nil {
			return 0, fmt.Errorf("invalid url: %w", err)
		}
		ext = pathpkg.Ext(u.Path)
	}
	switch strings.ToLower(ext) {
	case ".xlsx", ".xlsm":
		return formatXLSX, nil
	case ".csv":
		return formatCSV, nil
	default:
		return 0, fmt.Errorf("%w: %q", pkgerrors.ErrImportUnsupported, ext)
	}
}

func (s *FileSource) Path() string {
	return s.path
}

// Exists reports whether the file is present. Remote sources are assumed to be.
func (s *FileSource) Exists() bool {
	if s.remote {
		return true
	}
	_, err := os.Stat(s.path)
	return err == nil
}

// Read returns the records in file order and per-row warnings. A file that
// cannot be read, or holds no valid record, yields an *ImportError and no
// records, so callers keep their last good registry.
func (s *FileSource) Read(ctx context.Context) ([]models.Record, []error, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	rows, err := s.rows(ctx)
	if err != nil {
		return nil, nil, &pkgerrors.ImportError{Path: s.path, Err: err}
	}
	if len(rows) == 0 {
		return nil, nil, &pkgerrors.ImportError{Path: s.path, Err: pkgerrors.ErrImportEmpty}
	}

	records, warnings := parseRows(rows)
	for _, w := range warnings {
		s.logger.Warn("import row skipped", zap.String("path", s.path), zap.Error(w))
	}
	if len(records) == 0 {
		return nil, warnings, &pkgerrors.ImportError{Path: s.path, Err: pkgerrors.ErrImportEmpty}
	}
	s.logger.Info("import read",
		zap.String("path", s.path),
		zap.Int("records", len(records)),
		zap.Int("skipped", len(warnings)))
	return records, warnings, nil
}

func (s *FileSource) rows(ctx context.Context) ([][]string, error) {
	if s.remote {
		body, err := s.fetcher.Fetch(ctx, s.path)
		if err != nil {
			return nil, err
		}
		if s.format == formatCSV {
			return decodeCSV(bytes.NewReader(body))
		}
		return decodeXLSX(bytes.NewReader(body), s.sheet)
	}

	switch s.format {
	case formatCSV:
		return readCSV(s.path)
	default:
		return readXLSX(s.path, s.sheet)
	}
}

// Update writes rec into the row currently holding oldAddress, or appends it
// when no such row exists. A missing file is created with a header row.
func (s *FileSource) Update(ctx context.Context, oldAddress string, rec models.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.Address == "" {
		return pkgerrors.ErrInvalidAddress
	}
	if s.remote {
		return &pkgerrors.ImportError{Path: s.path, Err: pkgerrors.ErrImportReadOnly}
	}

	var err error
	switch s.format {
	case formatCSV:
		err = updateCSV(s.path, oldAddress, rec)
	default:
		err = updateXLSX(s.path, s.sheet, oldAddress, rec)
	}
	if err != nil {
		return &pkgerrors.ImportError{Path: s.path, Err: err}
	}
	s.logger.Info("import source updated",
		zap.String("path", s.path),
		zap.String("old_address", oldAddress),
		zap.String("address", rec.Address))
	return nil
}

func notExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
