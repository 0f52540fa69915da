package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pingmon/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive terminal UI",
	Long: `Launch the full-screen interactive terminal UI.

Select a device and press enter to start probing it; pressing enter on another
device switches the probe over. Output streams into the Output tab and the
device table refreshes as replies arrive. Logs are written to the log file
(log.file) while the UI owns the terminal.`,
	Annotations: map[string]string{annotationFullScreen: ""},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		ctrl := appInstance.Controller
		presenter := tui.NewPresenter()
		ctrl.SetPresenter(presenter)

		sched, err := appInstance.Scheduler()
		if err != nil {
			return err
		}

		deps := tui.Deps{
			Controller: ctrl,
			Importer:   sched,
			Targets:    appInstance,
			Devices:    ctrl.Devices(),
			LastTarget: appInstance.LastTarget(ctx),
			MaxLines:   appInstance.Config.Output.MaxLines,
		}
		p := tui.NewProgram(deps, presenter)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return ignoreCanceled(ctrl.Run(gctx))
		})
		g.Go(func() error {
			return runScheduler(gctx, sched)
		})
		if addr := appInstance.Config.Metrics.Addr; addr != "" {
			g.Go(func() error {
				return serveMetrics(gctx, addr, appInstance.Metrics.Handler(), appInstance.Logger)
			})
		}
		// A failed background task takes the UI down with it.
		go func() {
			<-gctx.Done()
			p.Quit()
		}()

		_, runErr := p.Run()
		presenter.Attach(nil)
		cancel()
		if err := g.Wait(); err != nil && runErr == nil {
			runErr = err
		}
		if runErr != nil {
			return fmt.Errorf("TUI error: %w", runErr)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
