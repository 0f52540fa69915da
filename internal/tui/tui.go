package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pingmon/internal/controller"
	"pingmon/internal/importer"
	"pingmon/internal/storage/models"
)

// Tab indices.
const (
	tabDevices = 0
	tabOutput  = 1
	tabDetails = 2
	tabCount   = 3
)

// Importer re-reads the device list on demand.
type Importer interface {
	Import(ctx context.Context) (*importer.Result, error)
}

// TargetStore remembers the last probed address across runs.
type TargetStore interface {
	RememberTarget(ctx context.Context, address string)
}

// Model is the root BubbleTea model.
type Model struct {
	// Dependencies.
	ctrl     *controller.Controller
	importer Importer
	targets  TargetStore
	now      func() time.Time

	// Dimensions.
	width  int
	height int

	// Navigation.
	activeTab int
	showHelp  bool

	// Probe state, as last reported by the controller.
	status    controller.Status
	pending   bool
	importing bool

	// Tab models.
	devicesTab devicesModel
	outputTab  outputModel
	detailsTab detailsModel

	// Notification.
	notification    string
	notificationErr bool
	notifVersion    int

	// Spinner for async operations.
	spinner spinner.Model
}

// Deps holds all dependencies injected into the TUI.
type Deps struct {
	Controller *controller.Controller
	Importer   Importer    // nil disables re-import
	Targets    TargetStore // nil does not remember targets
	Devices    []models.Device
	LastTarget string
	MaxLines   int
}

// NewModel creates a new root Model.
func NewModel(deps Deps) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	m := &Model{
		ctrl:       deps.Controller,
		importer:   deps.Importer,
		targets:    deps.Targets,
		now:        time.Now,
		activeTab:  tabDevices,
		spinner:    s,
		devicesTab: newDevicesModel(deps.LastTarget),
		outputTab:  newOutputModel(deps.MaxLines),
		detailsTab: newDetailsModel(),
	}
	if deps.Controller != nil {
		m.status = deps.Controller.Status()
	}
	m.devicesTab.setDevices(deps.Devices, m.status.Target)
	return m
}

func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	prevNotifVersion := m.notifVersion
	wasBusy := m.busy()

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		ch := m.contentHeight()
		m.devicesTab.setSize(msg.Width, ch)
		m.outputTab.setSize(msg.Width, ch)
		m.detailsTab.setSize(msg.Width, ch)
		return m, nil

	case tea.KeyMsg:
		if cmd, handled := m.handleGlobalKey(msg); handled {
			cmds = append(cmds, cmd)
			if m.busy() && !wasBusy {
				cmds = append(cmds, m.spinner.Tick)
			}
			return m, tea.Batch(cmds...)
		}

	// Controller callbacks.
	case lineMsg:
		m.outputTab.append(msg.text)
		return m, nil
	case devicesMsg:
		m.devicesTab.setDevices(msg.devices, m.status.Target)
		return m, nil
	case sessionMsg:
		prev := m.status
		m.status = msg.status
		switch {
		case msg.status.State == controller.StateStarting:
			m.outputTab.reset(msg.status.Target)
		case msg.status.State == controller.StateIdle && prev.State == controller.StateRunning && !m.pending:
			m.setNotification(fmt.Sprintf("Probe for %s exited", prev.Target), true)
		}
		m.devicesTab.setDevices(m.devicesTab.devices, m.status.Target)

	// Action results.
	case probeResultMsg:
		m.pending = false
		switch {
		case msg.err != nil:
			m.setNotification(fmt.Sprintf("Probe %s: %v", msg.address, msg.err), true)
		case msg.started:
			m.setNotification(fmt.Sprintf("Probing %s", msg.address), false)
		default:
			m.setNotification("Probe stopped", false)
		}
	case importResultMsg:
		m.importing = false
		if msg.err != nil {
			m.setNotification(fmt.Sprintf("Import failed: %v", msg.err), true)
		} else {
			text := fmt.Sprintf("Imported %d records from %s", msg.result.Records, msg.result.Path)
			if n := len(msg.result.Warnings); n > 0 {
				text += fmt.Sprintf(" (%d skipped)", n)
			}
			m.setNotification(text, false)
		}

	// Notification.
	case clearNotificationMsg:
		if msg.version == m.notifVersion {
			m.notification = ""
			m.notificationErr = false
		}
	}

	// Spinner.
	if m.busy() {
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	// Schedule notification auto-clear when a new notification was set.
	if m.notifVersion > prevNotifVersion && m.notification != "" {
		cmds = append(cmds, clearNotification(4*time.Second, m.notifVersion))
	}

	// Delegate to active tab.
	switch m.activeTab {
	case tabDevices:
		cmds = append(cmds, m.devicesTab.Update(msg))
	case tabOutput:
		cmds = append(cmds, m.outputTab.Update(msg))
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	header := renderHeader(m.activeTab, m.status, m.width)

	var content string
	switch m.activeTab {
	case tabDevices:
		content = m.devicesTab.View(m.spinner, m.busy())
	case tabOutput:
		content = m.outputTab.View()
	case tabDetails:
		content = m.detailsTab.View(m.devicesTab.selected(), m.status, m.now())
	}

	parts := []string{header}
	switch {
	case m.notification == "":
	case m.notificationErr:
		parts = append(parts, notifErrStyle.Render("! "+m.notification))
	default:
		parts = append(parts, notifOKStyle.Render("* "+m.notification))
	}

	footer := renderFooter(m.showHelp, m.width)
	parts = append(parts, content, footer)
	output := lipgloss.JoinVertical(lipgloss.Left, parts...)

	// Force exactly m.height lines to prevent BubbleTea rendering drift.
	return forceHeight(output, m.width, m.height)
}

// forceHeight ensures the string has exactly `height` lines, each padded to `width`.
// This prevents BubbleTea from leaving ghost lines when switching tabs.
func forceHeight(s string, width, height int) string {
	lines := strings.Split(s, "\n")
	// Truncate excess lines.
	if len(lines) > height {
		lines = lines[:height]
	}
	// Pad missing lines with blank space.
	blank := strings.Repeat(" ", width)
	for len(lines) < height {
		lines = append(lines, blank)
	}
	return strings.Join(lines, "\n")
}

func (m *Model) contentHeight() int {
	overhead := 5
	if m.showHelp {
		overhead += 3
	}
	h := m.height - overhead
	if h < 1 {
		h = 1
	}
	return h
}

func (m *Model) busy() bool {
	return m.pending || m.importing ||
		m.status.State == controller.StateStarting ||
		m.status.State == controller.StateStopping
}

// handleGlobalKey reports whether the key was consumed.
func (m *Model) handleGlobalKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, keys.Quit):
		return tea.Quit, true

	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
		ch := m.contentHeight()
		m.devicesTab.setSize(m.width, ch)
		m.outputTab.setSize(m.width, ch)
		m.detailsTab.setSize(m.width, ch)
		return nil, true

	case key.Matches(msg, keys.TabNext):
		m.activeTab = (m.activeTab + 1) % tabCount
		return nil, true

	case key.Matches(msg, keys.TabPrev):
		m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
		return nil, true

	case key.Matches(msg, keys.Toggle) && m.activeTab != tabOutput:
		d := m.devicesTab.selected()
		if d == nil || m.pending || m.ctrl == nil {
			return nil, true
		}
		m.pending = true
		return probeDevice(m.ctrl, m.targets, d.Address), true

	case key.Matches(msg, keys.Stop):
		if m.pending || m.ctrl == nil || m.status.State == controller.StateIdle {
			return nil, true
		}
		m.pending = true
		return stopProbe(m.ctrl, m.status.Target), true

	case key.Matches(msg, keys.Reimport):
		if m.importing {
			return nil, true
		}
		if m.importer == nil {
			m.setNotification("No import source configured", true)
			return clearNotification(4*time.Second, m.notifVersion), true
		}
		m.importing = true
		return reimport(m.importer), true
	}

	return nil, false
}

func (m *Model) setNotification(text string, isErr bool) {
	m.notification = text
	m.notificationErr = isErr
	m.notifVersion++
}

// NewProgram creates a bubbletea program with alt screen and attaches the
// presenter to it.
func NewProgram(deps Deps, presenter *Presenter) *tea.Program {
	m := NewModel(deps)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if presenter != nil {
		presenter.Attach(p)
	}
	return p
}
