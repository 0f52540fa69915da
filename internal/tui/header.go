package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"pingmon/internal/controller"
)

var tabNames = []string{"Devices", "Output", "Details"}

// renderHeader draws the logo and state pill on one row, then the tab bar
// and a rule.
func renderHeader(activeTab int, st controller.Status, width int) string {
	logo := logoStyle.Render("PINGMON")
	pill := statePill(st)

	gap := max(width-lipgloss.Width(logo)-lipgloss.Width(pill), 1)
	top := logo + strings.Repeat(" ", gap) + pill

	tabs := make([]string, len(tabNames))
	for i, name := range tabNames {
		style := inactiveTabStyle
		if i == activeTab {
			style = activeTabStyle
		}
		tabs[i] = style.Render(name)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		top,
		lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...),
		rule(width))
}

func statePill(st controller.Status) string {
	switch st.State {
	case controller.StateStarting:
		return busyPillStyle.Render(" STARTING " + st.Target + " ")
	case controller.StateStopping:
		return busyPillStyle.Render(" STOPPING ")
	case controller.StateRunning:
		return runningPillStyle.Render(" PROBING " + st.Target + " ")
	default:
		return idlePillStyle.Render(" IDLE ")
	}
}

func renderFooter(full bool, width int) string {
	var help string
	if full {
		lines := make([]string, 0, len(keys.FullHelp()))
		for _, group := range keys.FullHelp() {
			lines = append(lines, joinBindings(group, "  "))
		}
		help = strings.Join(lines, "\n")
	} else {
		help = joinBindings(keys.ShortHelp(), " | ")
	}
	return lipgloss.JoinVertical(lipgloss.Left, rule(width), helpBarStyle.Render(help))
}

// joinBindings renders enabled bindings as "key desc" pairs.
func joinBindings(bindings []key.Binding, sep string) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		if !b.Enabled() {
			continue
		}
		h := b.Help()
		parts = append(parts, helpKeyStyle.Render(h.Key)+" "+helpDescStyle.Render(h.Desc))
	}
	return strings.Join(parts, helpSepStyle.Render(sep))
}

func rule(width int) string {
	return ruleStyle.Render(strings.Repeat("─", max(width, 0)))
}
