package tui

import (
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"pingmon/internal/controller"
	"pingmon/internal/storage/models"
)

// Presenter forwards controller callbacks into the bubbletea event loop.
// Callbacks made while no program is attached are dropped.
type Presenter struct {
	program atomic.Pointer[tea.Program]
}

var (
	_ controller.Presenter       = (*Presenter)(nil)
	_ controller.SessionObserver = (*Presenter)(nil)
)

func NewPresenter() *Presenter {
	return &Presenter{}
}

// Attach routes callbacks to p. Pass nil to detach.
func (pr *Presenter) Attach(p *tea.Program) {
	pr.program.Store(p)
}

func (pr *Presenter) LineAppended(text string) {
	pr.send(lineMsg{text: text})
}

func (pr *Presenter) RegistryRefreshed(devices []models.Device) {
	pr.send(devicesMsg{devices: devices})
}

func (pr *Presenter) SessionChanged(status controller.Status) {
	pr.send(sessionMsg{status: status})
}

// send blocks until the program accepts msg or has exited.
func (pr *Presenter) send(msg tea.Msg) {
	if p := pr.program.Load(); p != nil {
		p.Send(msg)
	}
}
