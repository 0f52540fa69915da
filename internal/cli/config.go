package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect pingmon settings",
	Long:  "Show the effective configuration after defaults, config file and PINGMON_* environment overrides",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg := appInstance.Config

		fmt.Println("Configuration")
		fmt.Println("═════════════")
		fmt.Println()
		fmt.Printf("  Log level:       %s\n", cfg.Log.Level)
		fmt.Printf("  Log file:        %s\n", cfg.Log.File)
		fmt.Printf("  Snapshot:        %s\n", cfg.Snapshot.Path)
		fmt.Println()
		if cfg.History.Enabled {
			fmt.Printf("  History:         %s\n", cfg.History.Path)
			fmt.Printf("  Retention:       %s\n", cfg.History.Retention)
			fmt.Printf("  Prune every:     %s\n", cfg.History.PruneInterval)
		} else {
			fmt.Printf("  History:         disabled\n")
		}
		fmt.Println()
		fmt.Printf("  Import file:     %s\n", cfg.Import.Path)
		if cfg.Import.Sheet != "" {
			fmt.Printf("  Import sheet:    %s\n", cfg.Import.Sheet)
		}
		if cfg.Import.Interval > 0 {
			fmt.Printf("  Re-import every: %s\n", cfg.Import.Interval)
		} else {
			fmt.Printf("  Re-import every: never\n")
		}
		if t, ok := appInstance.LastImport(ctx); ok {
			fmt.Printf("  Last import:     %s\n", t.Local().Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
		fmt.Printf("  Probe command:   %s %s\n", cfg.Probe.Command, strings.Join(cfg.Probe.Args, " "))
		fmt.Printf("  Grace period:    %s\n", cfg.Probe.GracePeriod)
		if target := appInstance.LastTarget(ctx); target != "" {
			fmt.Printf("  Last target:     %s\n", target)
		}
		fmt.Println()
		if cfg.Metrics.Addr != "" {
			fmt.Printf("  Metrics:         %s/metrics\n", cfg.Metrics.Addr)
		} else {
			fmt.Printf("  Metrics:         disabled\n")
		}
		fmt.Printf("  Output lines:    %d\n", cfg.Output.MaxLines)

		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
