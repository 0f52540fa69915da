package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// DefaultMaxLines caps the output pane when no limit is configured.
const DefaultMaxLines = 1000

// outputModel shows raw probe output, newest at the bottom.
type outputModel struct {
	viewport viewport.Model
	lines    []string
	maxLines int
	follow   bool
	width    int
	height   int
}

func newOutputModel(maxLines int) outputModel {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	return outputModel{
		viewport: viewport.New(80, 10),
		maxLines: maxLines,
		follow:   true,
	}
}

func (om *outputModel) setSize(w, h int) {
	om.width = w
	om.height = h
	om.viewport.Width = w
	om.viewport.Height = max(h-1, 1)
	om.render()
}

// reset clears the pane for a new probe target.
func (om *outputModel) reset(target string) {
	om.lines = om.lines[:0]
	om.append(markerStyle.Render("─── probing " + target + " ───"))
	om.follow = true
}

func (om *outputModel) append(text string) {
	om.lines = append(om.lines, text)
	if over := len(om.lines) - om.maxLines; over > 0 {
		om.lines = append(om.lines[:0], om.lines[over:]...)
	}
	om.render()
}

func (om *outputModel) render() {
	om.viewport.SetContent(strings.Join(om.lines, "\n"))
	if om.follow {
		om.viewport.GotoBottom()
	}
}

func (om *outputModel) Update(msg tea.Msg) tea.Cmd {
	if k, ok := msg.(tea.KeyMsg); ok && key.Matches(k, keys.End) {
		om.follow = true
		om.viewport.GotoBottom()
		return nil
	}

	var cmd tea.Cmd
	om.viewport, cmd = om.viewport.Update(msg)
	switch msg.(type) {
	case tea.KeyMsg, tea.MouseMsg:
		// Scrolling up pauses following; scrolling back to the end resumes it.
		om.follow = om.viewport.AtBottom()
	}
	return cmd
}

func (om *outputModel) View() string {
	status := "following"
	if !om.follow {
		status = "paused, f to jump to end"
	}
	info := dimStyle.Render(status + " · " + strconv.Itoa(len(om.lines)) + " lines")
	return forceHeight(lipgloss.JoinVertical(lipgloss.Left, info, om.viewport.View()), om.width, om.height)
}
