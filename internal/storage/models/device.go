package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the latency band a device was last classified into.
type Status string

const (
	StatusUnknown  Status = "UNKNOWN"
	StatusFast     Status = "FAST"
	StatusNormal   Status = "NORMAL"
	StatusSlow     Status = "SLOW"
	StatusVerySlow Status = "VERY_SLOW"
	StatusDown     Status = "DOWN"
)

// Valid reports whether s is one of the known bands.
func (s Status) Valid() bool {
	switch s {
	case StatusUnknown, StatusFast, StatusNormal, StatusSlow, StatusVerySlow, StatusDown:
		return true
	}
	return false
}

// legacyTimeLayout is the timestamp format written by older snapshots.
const legacyTimeLayout = "2006-01-02 15:04:05"

// Device represents a monitored network device
type Device struct {
	Address     string `json:"address"`
	DisplayName string `json:"displayName"`

	// Runtime state, written only by the controller
	LatencyMs     *float64   `json:"latencyMs"`
	LastSuccessAt *time.Time `json:"lastSuccessAt"`
	Status        Status     `json:"status"`

	// Descriptive metadata, refreshed by reconciliation
	DeviceType  string `json:"deviceType,omitempty"`
	Model       string `json:"model,omitempty"`
	MACAddress  string `json:"macAddress,omitempty"`
	Location    string `json:"location,omitempty"`
	Unit        string `json:"unit,omitempty"`
	Description string `json:"description,omitempty"`
}

// NewDevice creates a device from an imported record with runtime fields at defaults.
func NewDevice(rec Record) Device {
	d := Device{Status: StatusUnknown}
	d.Describe(rec)
	return d
}

// Describe overwrites the descriptive fields with the record's values.
// Runtime fields are left untouched.
func (d *Device) Describe(rec Record) {
	d.Address = rec.Address
	d.DisplayName = rec.DisplayName
	if d.DisplayName == "" {
		d.DisplayName = rec.Address
	}
	d.DeviceType = rec.DeviceType
	d.Model = rec.Model
	d.MACAddress = rec.MACAddress
	d.Location = rec.Location
	d.Unit = rec.Unit
	d.Description = rec.Description
}

// Record returns the descriptive part of the device.
func (d Device) Record() Record {
	return Record{
		Address:     d.Address,
		DisplayName: d.DisplayName,
		DeviceType:  d.DeviceType,
		Model:       d.Model,
		MACAddress:  d.MACAddress,
		Location:    d.Location,
		Unit:        d.Unit,
		Description: d.Description,
	}
}

// Clone returns a deep copy, so the pointer fields are not shared.
func (d Device) Clone() Device {
	if d.LatencyMs != nil {
		v := *d.LatencyMs
		d.LatencyMs = &v
	}
	if d.LastSuccessAt != nil {
		t := *d.LastSuccessAt
		d.LastSuccessAt = &t
	}
	return d
}

// deviceJSON mirrors Device for decoding, with the keys older snapshots used.
type deviceJSON struct {
	Address       string   `json:"address"`
	DisplayName   string   `json:"displayName"`
	LatencyMs     *float64 `json:"latencyMs"`
	LastSuccessAt *string  `json:"lastSuccessAt"`
	Status        Status   `json:"status"`
	DeviceType    string   `json:"deviceType"`
	Model         string   `json:"model"`
	MACAddress    string   `json:"macAddress"`
	Location      string   `json:"location"`
	Unit          string   `json:"unit"`
	Description   string   `json:"description"`

	LegacyIP       string   `json:"ip"`
	LegacyName     string   `json:"name"`
	LegacyLatency  *float64 `json:"latency"`
	LegacyLastPing *string  `json:"last_ping"`
	LegacyDevice   string   `json:"device"`
	LegacyMAC      string   `json:"mac"`
}

// UnmarshalJSON decodes both the current schema and legacy snapshots.
// Missing fields take their defaults.
func (d *Device) UnmarshalJSON(data []byte) error {
	var raw deviceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := Device{
		Address:     firstNonEmpty(raw.Address, raw.LegacyIP),
		DisplayName: firstNonEmpty(raw.DisplayName, raw.LegacyName),
		LatencyMs:   raw.LatencyMs,
		Status:      raw.Status,
		DeviceType:  firstNonEmpty(raw.DeviceType, raw.LegacyDevice),
		Model:       raw.Model,
		MACAddress:  firstNonEmpty(raw.MACAddress, raw.LegacyMAC),
		Location:    raw.Location,
		Unit:        raw.Unit,
		Description: raw.Description,
	}
	if out.LatencyMs == nil {
		out.LatencyMs = raw.LegacyLatency
	}
	if out.DisplayName == "" {
		out.DisplayName = out.Address
	}
	if !out.Status.Valid() {
		out.Status = StatusUnknown
	}

	ts := raw.LastSuccessAt
	if ts == nil {
		ts = raw.LegacyLastPing
	}
	if ts != nil && *ts != "" {
		t, err := ParseTimestamp(*ts)
		if err != nil {
			return fmt.Errorf("device %s: %w", out.Address, err)
		}
		out.LastSuccessAt = &t
	}

	*d = out
	return nil
}

// ParseTimestamp accepts RFC 3339 and the legacy "YYYY-MM-DD HH:MM:SS" local format.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(legacyTimeLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return t, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
