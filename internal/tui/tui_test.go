package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pingmon/internal/controller"
	"pingmon/internal/importer"
	"pingmon/internal/storage/models"
)

func ptr(v float64) *float64 { return &v }

func testDevices() []models.Device {
	return []models.Device{
		{Address: "10.0.0.1", DisplayName: "core", Status: models.StatusFast, LatencyMs: ptr(4)},
		{Address: "10.0.0.2", DisplayName: "edge", Status: models.StatusDown},
		{Address: "10.0.0.3", DisplayName: "printer", Status: models.StatusUnknown},
	}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func sized(t *testing.T, deps Deps) *Model {
	t.Helper()
	m := NewModel(deps)
	_, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return m
}

type fakeImporter struct {
	calls int
}

func (f *fakeImporter) Import(ctx context.Context) (*importer.Result, error) {
	f.calls++
	return &importer.Result{Path: "devices.xlsx", Records: 3}, nil
}

func TestNewModel_SelectsLastTarget(t *testing.T) {
	m := sized(t, Deps{Devices: testDevices(), LastTarget: "10.0.0.2"})

	d := m.devicesTab.selected()
	require.NotNil(t, d)
	assert.Equal(t, "10.0.0.2", d.Address)
}

func TestNewModel_UnknownLastTargetSelectsFirst(t *testing.T) {
	m := sized(t, Deps{Devices: testDevices(), LastTarget: "192.168.1.1"})

	d := m.devicesTab.selected()
	require.NotNil(t, d)
	assert.Equal(t, "10.0.0.1", d.Address)
}

func TestDevicesMsg_KeepsSelection(t *testing.T) {
	m := sized(t, Deps{Devices: testDevices(), LastTarget: "10.0.0.3"})

	// Reordered registry, same selected address.
	devices := testDevices()
	devices[0], devices[2] = devices[2], devices[0]
	_, _ = m.Update(devicesMsg{devices: devices})

	d := m.devicesTab.selected()
	require.NotNil(t, d)
	assert.Equal(t, "10.0.0.3", d.Address)
	assert.Equal(t, 0, m.devicesTab.table.Cursor())
}

func TestDevicesMsg_RemovedSelection(t *testing.T) {
	m := sized(t, Deps{Devices: testDevices(), LastTarget: "10.0.0.3"})

	_, _ = m.Update(devicesMsg{devices: testDevices()[:1]})

	d := m.devicesTab.selected()
	require.NotNil(t, d)
	assert.Equal(t, "10.0.0.1", d.Address)
}

func TestSessionStarting_ResetsOutput(t *testing.T) {
	m := sized(t, Deps{Devices: testDevices()})

	_, _ = m.Update(lineMsg{text: "old line"})
	_, _ = m.Update(sessionMsg{status: controller.Status{State: controller.StateStarting, Target: "10.0.0.2"}})
	_, _ = m.Update(lineMsg{text: "Reply from 10.0.0.2: time=3ms"})

	require.Len(t, m.outputTab.lines, 2)
	assert.Contains(t, m.outputTab.lines[0], "probing 10.0.0.2")
	assert.Equal(t, "Reply from 10.0.0.2: time=3ms", m.outputTab.lines[1])
	assert.Equal(t, controller.StateStarting, m.status.State)
}

func TestOutput_CapsLines(t *testing.T) {
	m := sized(t, Deps{MaxLines: 3})

	for _, s := range []string{"a", "b", "c", "d", "e"} {
		_, _ = m.Update(lineMsg{text: s})
	}
	assert.Equal(t, []string{"c", "d", "e"}, m.outputTab.lines)
}

func TestSessionEndedOnItsOwn_Notifies(t *testing.T) {
	m := sized(t, Deps{Devices: testDevices()})

	_, _ = m.Update(sessionMsg{status: controller.Status{State: controller.StateRunning, Target: "10.0.0.1", Session: 1}})
	_, cmd := m.Update(sessionMsg{status: controller.Status{State: controller.StateIdle, Target: "10.0.0.1", Session: 1}})

	assert.True(t, m.notificationErr)
	assert.Contains(t, m.notification, "10.0.0.1")
	assert.NotNil(t, cmd)
}

func TestProbeResult_Notifications(t *testing.T) {
	tests := []struct {
		name    string
		msg     probeResultMsg
		want    string
		wantErr bool
	}{
		{"started", probeResultMsg{address: "10.0.0.1", started: true}, "Probing 10.0.0.1", false},
		{"stopped", probeResultMsg{address: "10.0.0.1"}, "Probe stopped", false},
		{"failed", probeResultMsg{address: "10.0.0.1", err: errors.New("boom")}, "boom", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sized(t, Deps{})
			m.pending = true

			_, _ = m.Update(tt.msg)

			assert.False(t, m.pending)
			assert.Contains(t, m.notification, tt.want)
			assert.Equal(t, tt.wantErr, m.notificationErr)
		})
	}
}

func TestReimportKey(t *testing.T) {
	imp := &fakeImporter{}
	m := sized(t, Deps{Importer: imp})

	_, cmd := m.Update(runes("r"))
	require.NotNil(t, cmd)
	assert.True(t, m.importing)

	// A second press while importing is ignored.
	_, _ = m.Update(runes("r"))

	_, _ = m.Update(importResultMsg{result: &importer.Result{Path: "devices.xlsx", Records: 3, Warnings: []error{errors.New("row 4")}}})
	assert.False(t, m.importing)
	assert.Equal(t, "Imported 3 records from devices.xlsx (1 skipped)", m.notification)
}

func TestReimportKey_NoImporter(t *testing.T) {
	m := sized(t, Deps{})

	_, _ = m.Update(runes("r"))

	assert.False(t, m.importing)
	assert.True(t, m.notificationErr)
}

func TestToggleKey_WithoutController(t *testing.T) {
	m := sized(t, Deps{Devices: testDevices()})

	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.False(t, m.pending)
}

func TestTabKeys(t *testing.T) {
	m := sized(t, Deps{})

	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, tabOutput, m.activeTab)
	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, tabDetails, m.activeTab)
}

func TestView(t *testing.T) {
	m := sized(t, Deps{Devices: testDevices()})

	view := m.View()
	assert.Contains(t, view, "PINGMON")
	assert.Contains(t, view, "IDLE")
	assert.Contains(t, view, "3 devices")
	assert.Len(t, strings.Split(view, "\n"), 40)

	_, _ = m.Update(sessionMsg{status: controller.Status{State: controller.StateRunning, Target: "10.0.0.1", Session: 2}})
	assert.Contains(t, m.View(), "PROBING 10.0.0.1")

	m.activeTab = tabDetails
	view = m.View()
	assert.Contains(t, view, "core")
	assert.Contains(t, view, "4.0 ms")
}

func TestPresenter_DetachedDropsCallbacks(t *testing.T) {
	p := NewPresenter()

	assert.NotPanics(t, func() {
		p.LineAppended("line")
		p.RegistryRefreshed(testDevices())
		p.SessionChanged(controller.Status{State: controller.StateIdle})
	})
}
