package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pingmon/internal/storage/models"
)

// bands is the display order of the status summary line.
var bands = []models.Status{
	models.StatusFast,
	models.StatusNormal,
	models.StatusSlow,
	models.StatusVerySlow,
	models.StatusDown,
	models.StatusUnknown,
}

type devicesModel struct {
	table   table.Model
	devices []models.Device
	width   int
	height  int

	// preferred is selected on the first load, then forgotten.
	preferred string
	loaded    bool
}

func deviceColumns(w int) []table.Column {
	if w > 100 {
		return []table.Column{
			{Title: "Name", Width: w/4 - 4},
			{Title: "Address", Width: w/5 - 2},
			{Title: "Status", Width: 10},
			{Title: "Latency", Width: 10},
			{Title: "Last Success", Width: 19},
			{Title: "Location", Width: w - (w/4 - 4) - (w/5 - 2) - 10 - 10 - 19 - 14},
		}
	}
	return []table.Column{
		{Title: "Name", Width: 20},
		{Title: "Address", Width: 18},
		{Title: "Status", Width: 10},
		{Title: "Latency", Width: 10},
		{Title: "Last Success", Width: 19},
		{Title: "Location", Width: 14},
	}
}

func newDevicesModel(preferred string) devicesModel {
	t := table.New(
		table.WithColumns(deviceColumns(0)),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorRule).
		BorderBottom(true).
		Bold(true).
		Foreground(colorAccent)
	s.Selected = s.Selected.
		Foreground(colorText).
		Background(lipgloss.AdaptiveColor{Light: "#D8F0EC", Dark: "#12332F"}).
		Bold(true)
	t.SetStyles(s)

	return devicesModel{table: t, preferred: preferred}
}

func (dm *devicesModel) setSize(w, h int) {
	dm.width = w
	dm.height = h
	// One line for the band summary.
	th := h - 1
	if th < 1 {
		th = 1
	}
	dm.table.SetHeight(th)
	dm.table.SetColumns(deviceColumns(w))
}

// setDevices replaces the rows, keeping the selection on the same address.
// target is marked as the device being probed.
func (dm *devicesModel) setDevices(devices []models.Device, target string) {
	selected := dm.preferred
	if d := dm.selected(); dm.loaded && d != nil {
		selected = d.Address
	}
	dm.devices = devices

	rows := make([]table.Row, len(devices))
	cursor := 0
	for i, d := range devices {
		name := d.DisplayName
		if d.Address == target && target != "" {
			name = "> " + name
		}
		rows[i] = table.Row{
			truncate(name, 40),
			d.Address,
			string(d.Status),
			formatLatency(d.LatencyMs),
			formatTime(d.LastSuccessAt),
			d.Location,
		}
		if d.Address == selected {
			cursor = i
		}
	}
	dm.table.SetRows(rows)
	dm.table.SetCursor(cursor)
	dm.loaded = true
	dm.preferred = ""
}

func (dm *devicesModel) selected() *models.Device {
	idx := dm.table.Cursor()
	if idx >= 0 && idx < len(dm.devices) {
		return &dm.devices[idx]
	}
	return nil
}

func (dm *devicesModel) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	dm.table, cmd = dm.table.Update(msg)
	return cmd
}

func (dm *devicesModel) View(s spinner.Model, busy bool) string {
	var b strings.Builder

	if busy {
		b.WriteString(s.View() + " ")
	}
	b.WriteString(dm.summary())
	b.WriteString("\n")

	if len(dm.devices) == 0 {
		b.WriteString(dimStyle.Render("No devices. Import a device list with 'pingmon devices import <file>' or press r."))
	} else {
		b.WriteString(dm.table.View())
	}

	return forceHeight(b.String(), dm.width, dm.height)
}

// summary counts devices per status band.
func (dm *devicesModel) summary() string {
	counts := make(map[models.Status]int, len(bands))
	for _, d := range dm.devices {
		counts[d.Status]++
	}
	parts := []string{dimStyle.Render(fmt.Sprintf("%d devices", len(dm.devices)))}
	for _, st := range bands {
		if counts[st] == 0 {
			continue
		}
		parts = append(parts, StatusStyle(st).Render(fmt.Sprintf("%s %d", st, counts[st])))
	}
	return strings.Join(parts, "  ")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-1] + "~"
}
