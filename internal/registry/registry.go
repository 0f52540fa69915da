// Package registry holds the canonical in-memory device collection.
//
// A Registry is not synchronized. It is owned by the controller, which is the only
// goroutine that mutates it; everyone else works on copies returned by Snapshot.
package registry

import (
	"fmt"
	"time"

	"pingmon/internal/storage/models"
	pkgerrors "pingmon/pkg/errors"
)

// Registry keeps exactly one device per address, in a stable order.
type Registry struct {
	devices []*models.Device
	index   map[string]int
}

// New builds a registry from previously persisted devices. Devices without an
// address are skipped and later duplicates are reported and dropped.
func New(devices []models.Device) (*Registry, []error) {
	r := &Registry{index: make(map[string]int, len(devices))}
	var warnings []error
	for i, d := range devices {
		if d.Address == "" {
			continue
		}
		if _, ok := r.index[d.Address]; ok {
			warnings = append(warnings, &pkgerrors.DuplicateAddressError{Address: d.Address, Row: i + 1})
			continue
		}
		dev := d.Clone()
		if dev.DisplayName == "" {
			dev.DisplayName = dev.Address
		}
		if !dev.Status.Valid() {
			dev.Status = models.StatusUnknown
		}
		r.append(&dev)
	}
	return r, warnings
}

func (r *Registry) append(d *models.Device) {
	r.index[d.Address] = len(r.devices)
	r.devices = append(r.devices, d)
}

func (r *Registry) reindex() {
	r.index = make(map[string]int, len(r.devices))
	for i, d := range r.devices {
		r.index[d.Address] = i
	}
}

// Reconcile merges an imported device list into the registry.
//
// Known addresses keep their runtime fields and take the imported descriptive
// fields; new addresses start with runtime defaults; addresses missing from the
// import are dropped. The resulting order is the import order. A repeated address
// keeps its first occurrence and yields a DuplicateAddressError warning.
// Applying the same list twice leaves the registry unchanged.
func (r *Registry) Reconcile(records []models.Record) []error {
	var warnings []error
	merged := make([]*models.Device, 0, len(records))
	seen := make(map[string]struct{}, len(records))

	for i, rec := range records {
		if rec.Address == "" {
			continue
		}
		if _, dup := seen[rec.Address]; dup {
			warnings = append(warnings, &pkgerrors.DuplicateAddressError{Address: rec.Address, Row: i + 1})
			continue
		}
		seen[rec.Address] = struct{}{}

		if idx, ok := r.index[rec.Address]; ok {
			existing := r.devices[idx]
			existing.Describe(rec)
			merged = append(merged, existing)
			continue
		}
		dev := models.NewDevice(rec)
		merged = append(merged, &dev)
	}

	r.devices = merged
	r.reindex()
	return warnings
}

// UpdateRuntime records a probe result for one device. LastSuccessAt only moves
// when a latency value is present. It reports false when the address is unknown,
// which happens when a reconciliation removed the probe target.
func (r *Registry) UpdateRuntime(address string, latencyMs *float64, at time.Time, status models.Status) bool {
	idx, ok := r.index[address]
	if !ok {
		return false
	}
	d := r.devices[idx]
	if latencyMs != nil {
		v := *latencyMs
		d.LatencyMs = &v
		t := at
		d.LastSuccessAt = &t
	} else {
		d.LatencyMs = nil
	}
	d.Status = status
	return true
}

// AddOrReplace inserts a device registered outside the import flow. When the
// address exists and replace is false it fails with a DuplicateAddressError.
// A replaced device keeps its runtime fields unless the new one carries them.
func (r *Registry) AddOrReplace(d models.Device, replace bool) error {
	if d.Address == "" {
		return pkgerrors.ErrInvalidAddress
	}
	dev := d.Clone()
	if dev.DisplayName == "" {
		dev.DisplayName = dev.Address
	}
	if !dev.Status.Valid() {
		dev.Status = models.StatusUnknown
	}

	idx, ok := r.index[d.Address]
	if !ok {
		r.append(&dev)
		return nil
	}
	if !replace {
		return &pkgerrors.DuplicateAddressError{Address: d.Address}
	}

	existing := r.devices[idx]
	if dev.LatencyMs == nil && dev.LastSuccessAt == nil && dev.Status == models.StatusUnknown {
		existing.Describe(dev.Record())
		return nil
	}
	r.devices[idx] = &dev
	return nil
}

// Edit rewrites the descriptive fields of the device at oldAddress, which may
// move it to a new address. Runtime fields and the position are kept.
func (r *Registry) Edit(oldAddress string, rec models.Record) error {
	idx, ok := r.index[oldAddress]
	if !ok {
		return fmt.Errorf("%w: %s", pkgerrors.ErrDeviceNotFound, oldAddress)
	}
	if rec.Address == "" {
		return pkgerrors.ErrInvalidAddress
	}
	if rec.Address != oldAddress {
		if _, taken := r.index[rec.Address]; taken {
			return &pkgerrors.DuplicateAddressError{Address: rec.Address}
		}
	}
	r.devices[idx].Describe(rec)
	r.reindex()
	return nil
}

// Remove deletes a device. It reports whether the address was present.
func (r *Registry) Remove(address string) bool {
	idx, ok := r.index[address]
	if !ok {
		return false
	}
	r.devices = append(r.devices[:idx], r.devices[idx+1:]...)
	r.reindex()
	return true
}

// Get returns a copy of the device with the given address.
func (r *Registry) Get(address string) (models.Device, bool) {
	idx, ok := r.index[address]
	if !ok {
		return models.Device{}, false
	}
	return r.devices[idx].Clone(), true
}

// Has reports whether the address is registered.
func (r *Registry) Has(address string) bool {
	_, ok := r.index[address]
	return ok
}

// Snapshot returns a deep copy of all devices in registry order.
func (r *Registry) Snapshot() []models.Device {
	out := make([]models.Device, len(r.devices))
	for i, d := range r.devices {
		out[i] = d.Clone()
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.devices)
}
