package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pingmon/internal/controller"
	"pingmon/internal/latency"
	"pingmon/internal/probe"
	"pingmon/internal/storage/models"
	"pingmon/internal/tui"
)

// errProbeExited ends the monitor when the probe process exits by itself.
var errProbeExited = errors.New("probe exited")

var monitorCmd = &cobra.Command{
	Use:   "monitor [address]",
	Short: "Probe one device and print annotated output",
	Long: `Probe one device until interrupted, printing each output line with its
parsed latency and status band.

Without an address the last probed target is used. The registry, snapshot and
history are updated exactly as in the TUI. Press Ctrl+C to stop.`,
	Args:              cobra.MaximumNArgs(1),
	ValidArgsFunction: completeDeviceAddresses,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		address := appInstance.LastTarget(ctx)
		if len(args) > 0 {
			address = args[0]
		}
		if address == "" {
			return fmt.Errorf("please specify an address to probe")
		}
		if err := probe.ValidateAddress(address); err != nil {
			return err
		}

		metricsAddr := appInstance.Config.Metrics.Addr
		if cmd.Flags().Changed("metrics-addr") {
			metricsAddr, _ = cmd.Flags().GetString("metrics-addr")
		}
		noColor, _ := cmd.Flags().GetBool("no-color")

		if _, ok := findDevice(appInstance.Controller.Devices(), address); !ok {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s is not in the device list; only history is recorded\n", address)
		}

		out := newConsolePresenter(cmd.OutOrStdout(), !noColor)
		ctrl := appInstance.Controller
		ctrl.SetPresenter(out)

		sched, err := appInstance.Scheduler()
		if err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return ignoreCanceled(ctrl.Run(gctx))
		})
		g.Go(func() error {
			return runScheduler(gctx, sched)
		})
		if metricsAddr != "" {
			g.Go(func() error {
				return serveMetrics(gctx, metricsAddr, appInstance.Metrics.Handler(), appInstance.Logger)
			})
		}
		g.Go(func() error {
			if err := ctrl.Submit(gctx, func(c *controller.Controller) error {
				return c.Start(address)
			}); err != nil {
				return ignoreCanceled(err)
			}
			appInstance.RememberTarget(gctx, address)
			select {
			case <-gctx.Done():
				return nil
			case <-out.ended:
				return errProbeExited
			}
		})

		err = g.Wait()
		out.summary(address)
		if errors.Is(err, errProbeExited) {
			return nil
		}
		return err
	},
}

// consolePresenter prints probe output for the monitor command. Callbacks
// arrive on the controller goroutine; summary runs after it has stopped.
type consolePresenter struct {
	w     io.Writer
	color bool

	mu      sync.Mutex
	devices []models.Device
	state   controller.State

	ended     chan struct{}
	endedOnce sync.Once
}

func newConsolePresenter(w io.Writer, color bool) *consolePresenter {
	return &consolePresenter{w: w, color: color, ended: make(chan struct{})}
}

func (p *consolePresenter) LineAppended(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	ms := latency.ParsePtr(text)
	status := latency.Classify(ms)
	fmt.Fprintf(p.w, "%s  %s  %9s  %s\n",
		time.Now().Format("15:04:05"),
		p.status(status, 9),
		formatLatency(ms),
		text)
}

func (p *consolePresenter) RegistryRefreshed(devices []models.Device) {
	p.mu.Lock()
	p.devices = devices
	p.mu.Unlock()
}

func (p *consolePresenter) SessionChanged(st controller.Status) {
	p.mu.Lock()
	prev := p.state
	p.state = st.State
	p.mu.Unlock()

	switch st.State {
	case controller.StateRunning:
		fmt.Fprintf(p.w, "Probing %s (session %d). Press Ctrl+C to stop.\n\n", st.Target, st.Session)
	case controller.StateIdle:
		if prev == controller.StateRunning {
			p.endedOnce.Do(func() { close(p.ended) })
		}
	}
}

// summary prints the final state of address.
func (p *consolePresenter) summary(address string) {
	p.mu.Lock()
	devices := p.devices
	p.mu.Unlock()

	for _, d := range devices {
		if d.Address != address {
			continue
		}
		fmt.Fprintln(p.w)
		fmt.Fprintf(p.w, "%s (%s): %s, latency %s, last success %s\n",
			d.DisplayName, d.Address,
			p.status(d.Status, 0),
			formatLatency(d.LatencyMs),
			formatTime(d.LastSuccessAt))
		return
	}
}

func (p *consolePresenter) status(st models.Status, width int) string {
	s := string(st)
	if width > 0 {
		s = fmt.Sprintf("%-*s", width, s)
	}
	if !p.color {
		return s
	}
	return tui.StatusStyle(st).Render(s)
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

func init() {
	monitorCmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address (e.g. :9108)")
	monitorCmd.Flags().Bool("no-color", false, "disable coloured status bands")
	rootCmd.AddCommand(monitorCmd)
}

var _ controller.SessionObserver = (*consolePresenter)(nil)
