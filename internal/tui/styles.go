package tui

import (
	"github.com/charmbracelet/lipgloss"

	"pingmon/internal/storage/models"
)

var (
	colorAccent       = lipgloss.AdaptiveColor{Light: "#00796B", Dark: "#4DD0C4"}
	colorAccentBright = lipgloss.AdaptiveColor{Light: "#00897B", Dark: "#80E8DE"}
	colorText         = lipgloss.AdaptiveColor{Light: "#1C2526", Dark: "#ECEFF1"}
	colorMuted        = lipgloss.AdaptiveColor{Light: "#90A4AE", Dark: "#78909C"}
	colorFaint        = lipgloss.AdaptiveColor{Light: "#B0BEC5", Dark: "#546E7A"}
	colorRule         = lipgloss.AdaptiveColor{Light: "#CFD8DC", Dark: "#37474F"}
	colorOnPill       = lipgloss.Color("#FFFFFF")
)

// Band colours run from green (fast) to red (down).
var bandColors = map[models.Status]lipgloss.AdaptiveColor{
	models.StatusFast:     {Light: "#2E7D32", Dark: "#66BB6A"},
	models.StatusNormal:   {Light: "#9E9D24", Dark: "#D4E157"},
	models.StatusSlow:     {Light: "#EF8F00", Dark: "#FFB74D"},
	models.StatusVerySlow: {Light: "#E65100", Dark: "#FF7043"},
	models.StatusDown:     {Light: "#C62828", Dark: "#EF5350"},
}

// StatusStyle colours a status band. UNKNOWN is muted.
func StatusStyle(st models.Status) lipgloss.Style {
	c, ok := bandColors[st]
	if !ok {
		return lipgloss.NewStyle().Foreground(colorMuted)
	}
	s := lipgloss.NewStyle().Foreground(c)
	if st == models.StatusDown {
		s = s.Bold(true)
	}
	return s
}

func pillStyle(bg lipgloss.TerminalColor) lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(colorOnPill).Background(bg).Padding(0, 1)
}

var (
	logoStyle        = lipgloss.NewStyle().Bold(true).Foreground(colorAccent).PaddingRight(2)
	activeTabStyle   = lipgloss.NewStyle().Bold(true).Underline(true).Foreground(colorAccent).Padding(0, 2)
	inactiveTabStyle = lipgloss.NewStyle().Foreground(colorMuted).Padding(0, 2)
	ruleStyle        = lipgloss.NewStyle().Foreground(colorRule)

	runningPillStyle = pillStyle(bandColors[models.StatusFast])
	idlePillStyle    = pillStyle(colorFaint)
	busyPillStyle    = pillStyle(bandColors[models.StatusSlow])
)

var (
	helpBarStyle  = lipgloss.NewStyle().Foreground(colorMuted).Padding(0, 1)
	helpKeyStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	helpDescStyle = lipgloss.NewStyle().Foreground(colorMuted)
	helpSepStyle  = lipgloss.NewStyle().Foreground(colorFaint)
)

var (
	dimStyle     = lipgloss.NewStyle().Foreground(colorMuted)
	spinnerStyle = lipgloss.NewStyle().Foreground(colorAccent)
	markerStyle  = lipgloss.NewStyle().Foreground(colorAccentBright)

	// Details tab cards.
	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorRule).
			Padding(1, 2)
	cardTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent).MarginBottom(1)
	cardLabelStyle = lipgloss.NewStyle().Foreground(colorMuted).Width(14)
	cardValueStyle = lipgloss.NewStyle().Foreground(colorText)

	notifOKStyle  = lipgloss.NewStyle().Bold(true).Foreground(bandColors[models.StatusFast]).Padding(0, 1)
	notifErrStyle = lipgloss.NewStyle().Bold(true).Foreground(bandColors[models.StatusDown]).Padding(0, 1)
)
