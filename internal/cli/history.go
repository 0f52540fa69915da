package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"pingmon/internal/storage"
)

var historyCmd = &cobra.Command{
	Use:               "history <address>",
	Short:             "Show probe history for a device",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeDeviceAddresses,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		address := args[0]
		limit, _ := cmd.Flags().GetInt("limit")

		history, err := requireHistory()
		if err != nil {
			return err
		}

		summary, err := history.GetSummary(ctx, address)
		if err != nil {
			return err
		}
		if summary.Total == 0 {
			fmt.Printf("No history for %s\n", address)
			return nil
		}

		samples, err := history.GetHistory(ctx, address, limit)
		if err != nil {
			return err
		}

		title := fmt.Sprintf("History: %s", address)
		if d, ok := findDevice(appInstance.Controller.Devices(), address); ok && d.DisplayName != address {
			title = fmt.Sprintf("History: %s (%s)", d.DisplayName, address)
		}
		fmt.Println(title)
		fmt.Println(strings.Repeat("═", 50))
		fmt.Println()
		fmt.Printf("  Samples:  %d (%d with reply, %.1f%% loss)\n",
			summary.Total, summary.Succeeded, summary.LossPercent())
		if summary.MinMs != nil {
			fmt.Printf("  Latency:  min %s / avg %s / max %s\n",
				formatLatency(summary.MinMs), formatLatency(summary.AvgMs), formatLatency(summary.MaxMs))
		}
		fmt.Printf("  Period:   %s - %s\n", formatTime(summary.First), formatTime(summary.Last))
		fmt.Println()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tLATENCY\tSTATUS")
		fmt.Fprintln(w, "----\t-------\t------")
		for _, s := range samples {
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				s.ProbedAt.Local().Format("2006-01-02 15:04:05"),
				formatLatency(s.LatencyMs),
				s.Status)
		}
		w.Flush()

		if len(samples) < summary.Total {
			fmt.Printf("\nShowing the latest %d of %d samples\n", len(samples), summary.Total)
		}
		return nil
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old history samples",
	Long:  "Delete samples older than --older-than, or history.retention when the flag is not set.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		history, err := requireHistory()
		if err != nil {
			return err
		}

		age := appInstance.Config.History.Retention
		if cmd.Flags().Changed("older-than") {
			age, _ = cmd.Flags().GetDuration("older-than")
		}
		if age <= 0 {
			return fmt.Errorf("no retention configured; pass --older-than")
		}

		cutoff := time.Now().Add(-age)
		n, err := history.PruneHistory(ctx, cutoff)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d sample(s) older than %s\n", n, cutoff.Local().Format("2006-01-02 15:04:05"))
		return nil
	},
}

func requireHistory() (storage.History, error) {
	if appInstance.History == nil {
		return nil, fmt.Errorf("history is disabled (history.enabled=false)")
	}
	return appInstance.History, nil
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "number of samples to show (0 for all)")
	historyPruneCmd.Flags().Duration("older-than", 0, "delete samples older than this (e.g. 168h)")

	historyCmd.AddCommand(historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}
