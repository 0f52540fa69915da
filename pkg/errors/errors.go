package errors

import (
	"errors"
	"fmt"
)

// Common error types
var (
	// Registry errors
	ErrDuplicateAddress = errors.New("duplicate address")
	ErrDeviceNotFound   = errors.New("device not found")
	ErrInvalidAddress   = errors.New("invalid address")

	// Probe errors
	ErrProbeLaunch       = errors.New("failed to launch probe")
	ErrProbeNotRunning   = errors.New("probe is not running")
	ErrInvalidTransition = errors.New("invalid session state transition")

	// Import errors
	ErrImport            = errors.New("import failed")
	ErrImportUnsupported = errors.New("unsupported import format")
	ErrImportEmpty       = errors.New("import source has no rows")
	ErrImportFetch       = errors.New("failed to fetch import source")
	ErrImportReadOnly    = errors.New("import source is read-only")

	// Persistence errors
	ErrPersistence     = errors.New("persistence failed")
	ErrSettingNotFound = errors.New("setting not found")
)

// DuplicateAddressError reports a device address that is already taken.
// It is a warning during reconciliation and an error for explicit inserts.
type DuplicateAddressError struct {
	Address string
	Row     int // 1-based position in the import list, 0 when not from an import
}

func (e *DuplicateAddressError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("address '%s' (record %d): %v", e.Address, e.Row, ErrDuplicateAddress)
	}
	return fmt.Sprintf("address '%s': %v", e.Address, ErrDuplicateAddress)
}

func (e *DuplicateAddressError) Unwrap() error {
	return ErrDuplicateAddress
}

// ImportError represents an unreadable or malformed import source
type ImportError struct {
	Path string
	Err  error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import '%s': %v", e.Path, e.Err)
}

func (e *ImportError) Unwrap() []error {
	return []error{ErrImport, e.Err}
}

// LaunchError represents a probe process that could not be started
type LaunchError struct {
	Address string
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("probe '%s' for %s: %v", e.Command, e.Address, e.Err)
}

func (e *LaunchError) Unwrap() []error {
	return []error{ErrProbeLaunch, e.Err}
}

// PersistenceError represents a failed snapshot or history write
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist '%s': %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}
