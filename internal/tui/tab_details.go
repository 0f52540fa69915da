package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"pingmon/internal/controller"
	"pingmon/internal/storage/models"
)

// detailsModel shows the selected device and the probe session side by side.
type detailsModel struct {
	width  int
	height int
}

func newDetailsModel() detailsModel {
	return detailsModel{}
}

func (dm *detailsModel) setSize(w, h int) {
	dm.width = w
	dm.height = h
}

func (dm *detailsModel) View(d *models.Device, st controller.Status, now time.Time) string {
	var sections []string
	if d == nil {
		sections = append(sections, lipgloss.JoinVertical(lipgloss.Left,
			cardTitleStyle.Render("Device"),
			dimStyle.Render("No device selected"),
		))
	} else {
		sections = append(sections, dm.deviceCard(d))
	}
	sections = append(sections, dm.probeCard(st, now))

	w := dm.width - 6
	if w < 30 {
		w = 30
	}

	var content string
	if dm.width > 80 {
		halfW := (w - 4) / 2
		left := cardStyle.Width(halfW).Render(sections[0])
		right := cardStyle.Width(halfW).Render(sections[1])
		content = lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right)
	} else {
		var rendered []string
		for _, s := range sections {
			rendered = append(rendered, cardStyle.Width(w).Render(s))
		}
		content = lipgloss.JoinVertical(lipgloss.Left, rendered...)
	}
	return forceHeight(content, dm.width, dm.height)
}

func (dm *detailsModel) deviceCard(d *models.Device) string {
	rows := []string{
		cardTitleStyle.Render(d.DisplayName),
		dm.row("Address", d.Address),
		dm.row("Status", StatusStyle(d.Status).Render(string(d.Status))),
		dm.row("Latency", formatLatency(d.LatencyMs)),
		dm.row("Last success", formatTime(d.LastSuccessAt)),
	}
	optional := []struct{ label, value string }{
		{"Type", d.DeviceType},
		{"Model", d.Model},
		{"MAC", d.MACAddress},
		{"Location", d.Location},
		{"Unit", d.Unit},
		{"Description", d.Description},
	}
	for _, o := range optional {
		if o.value != "" {
			rows = append(rows, dm.row(o.label, o.value))
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (dm *detailsModel) probeCard(st controller.Status, now time.Time) string {
	rows := []string{
		cardTitleStyle.Render("Probe"),
		dm.row("State", string(st.State)),
	}
	if st.Target != "" {
		rows = append(rows, dm.row("Target", st.Target))
	}
	if st.State == controller.StateRunning {
		rows = append(rows,
			dm.row("Session", fmt.Sprintf("#%d", st.Session)),
			dm.row("Started", st.StartedAt.Format("15:04:05")),
			dm.row("Uptime", formatDuration(now.Sub(st.StartedAt))),
		)
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (dm *detailsModel) row(label, value string) string {
	return cardLabelStyle.Render(label+":") + " " + cardValueStyle.Render(value)
}

func formatLatency(ms *float64) string {
	if ms == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f ms", *ms)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
