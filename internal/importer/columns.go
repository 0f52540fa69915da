package importer

import (
	"fmt"
	"strings"

	"pingmon/internal/storage/models"
	pkgerrors "pingmon/pkg/errors"
)

// Column is a device attribute an import row can carry.
type Column int

const (
	ColName Column = iota
	ColAddress
	ColDevice
	ColModel
	ColMAC
	ColLocation
	ColUnit
	ColDescription
	columnCount
)

// Headers is the canonical header row, also the positional fallback order.
var Headers = []string{"Name", "Address", "Device", "Model", "MAC", "Location", "Unit", "Description"}

var headerAliases = map[string]Column{
	"name":        ColName,
	"devicename":  ColName,
	"displayname": ColName,
	"hostname":    ColName,
	"address":     ColAddress,
	"ip":          ColAddress,
	"ipaddress":   ColAddress,
	"host":        ColAddress,
	"device":      ColDevice,
	"devicetype":  ColDevice,
	"type":        ColDevice,
	"model":       ColModel,
	"mac":         ColMAC,
	"macaddress":  ColMAC,
	"location":    ColLocation,
	"site":        ColLocation,
	"unit":        ColUnit,
	"department":  ColUnit,
	"description": ColDescription,
	"desc":        ColDescription,
	"notes":       ColDescription,
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "", "_", "", "-", "", ".", "").Replace(h)
}

// columnMap maps each Column to a cell index, -1 when absent.
type columnMap [columnCount]int

// mapHeader recognises the header row by name. When no address column can be
// found the fixed positional order of Headers is used instead.
func mapHeader(header []string) columnMap {
	var m columnMap
	for i := range m {
		m[i] = -1
	}
	for i, h := range header {
		col, ok := headerAliases[normalizeHeader(h)]
		if ok && m[col] < 0 {
			m[col] = i
		}
	}
	if m[ColAddress] >= 0 {
		return m
	}
	for i := range m {
		m[i] = i
	}
	return m
}

func (m columnMap) cell(row []string, col Column) string {
	idx := m[col]
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func (m columnMap) record(row []string) models.Record {
	rec := models.Record{
		Address:     m.cell(row, ColAddress),
		DisplayName: m.cell(row, ColName),
		DeviceType:  m.cell(row, ColDevice),
		Model:       m.cell(row, ColModel),
		MACAddress:  m.cell(row, ColMAC),
		Location:    m.cell(row, ColLocation),
		Unit:        m.cell(row, ColUnit),
		Description: m.cell(row, ColDescription),
	}
	if rec.DisplayName == "" {
		rec.DisplayName = rec.Address
	}
	return rec
}

// values returns rec laid out for a row of width n under this mapping.
func (m columnMap) values(rec models.Record, row []string) []string {
	width := len(row)
	for _, idx := range m {
		if idx+1 > width {
			width = idx + 1
		}
	}
	out := make([]string, width)
	copy(out, row)
	set := func(col Column, v string) {
		if idx := m[col]; idx >= 0 {
			out[idx] = v
		}
	}
	set(ColName, rec.DisplayName)
	set(ColAddress, rec.Address)
	set(ColDevice, rec.DeviceType)
	set(ColModel, rec.Model)
	set(ColMAC, rec.MACAddress)
	set(ColLocation, rec.Location)
	set(ColUnit, rec.Unit)
	set(ColDescription, rec.Description)
	return out
}

// parseRows turns raw rows into records. The first row is always the header.
// Rows without an address are skipped with a warning; fully blank rows are
// skipped silently.
func parseRows(rows [][]string) ([]models.Record, []error) {
	if len(rows) == 0 {
		return nil, nil
	}
	m := mapHeader(rows[0])

	var (
		records  []models.Record
		warnings []error
	)
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		rec := m.record(row)
		if rec.Address == "" {
			warnings = append(warnings, fmt.Errorf("row %d: %w: address is empty", i+2, pkgerrors.ErrInvalidAddress))
			continue
		}
		records = append(records, rec)
	}
	return records, warnings
}

// findRow returns the index in rows of the data row holding address, or -1.
func findRow(rows [][]string, m columnMap, address string) int {
	for i := 1; i < len(rows); i++ {
		if m.cell(rows[i], ColAddress) == address {
			return i
		}
	}
	return -1
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
