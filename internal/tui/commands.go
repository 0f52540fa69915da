package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"pingmon/internal/controller"
)

// actionTimeout bounds how long a key press waits for the controller. Starting
// a probe may first wait for the previous one to exit.
const actionTimeout = 15 * time.Second

// probeDevice starts probing address, switching over from any other target.
// Pressing it again on the running target stops the probe.
func probeDevice(ctrl *controller.Controller, targets TargetStore, address string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		started := false
		err := ctrl.Submit(ctx, func(c *controller.Controller) error {
			st := c.Status()
			if st.State != controller.StateIdle && st.Target != address {
				if err := c.Start(address); err != nil {
					return err
				}
				started = true
				return nil
			}
			if err := c.Toggle(address); err != nil {
				return err
			}
			started = c.Status().State == controller.StateRunning
			return nil
		})
		if err == nil && started && targets != nil {
			targets.RememberTarget(ctx, address)
		}
		return probeResultMsg{address: address, started: started, err: err}
	}
}

// stopProbe ends the running probe, if any.
func stopProbe(ctrl *controller.Controller, address string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		err := ctrl.Submit(ctx, func(c *controller.Controller) error {
			c.Stop()
			return nil
		})
		return probeResultMsg{address: address, err: err}
	}
}

// reimport reads the import source again and reconciles it into the registry.
func reimport(imp Importer) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		result, err := imp.Import(ctx)
		return importResultMsg{result: result, err: err}
	}
}

// clearNotification returns a command that fires after a delay.
func clearNotification(d time.Duration, version int) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return clearNotificationMsg{version: version}
	})
}
