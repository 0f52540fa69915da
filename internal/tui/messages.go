package tui

import (
	"pingmon/internal/controller"
	"pingmon/internal/importer"
	"pingmon/internal/storage/models"
)

// Controller callbacks, delivered through Presenter.

type lineMsg struct {
	text string
}

type devicesMsg struct {
	devices []models.Device
}

type sessionMsg struct {
	status controller.Status
}

// Action results.

type probeResultMsg struct {
	address string
	started bool
	err     error
}

type importResultMsg struct {
	result *importer.Result
	err    error
}

// Notification message.

type clearNotificationMsg struct {
	version int
}
