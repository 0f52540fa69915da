package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pingmon/internal/app"
)

var (
	appInstance *app.App
	version     = "dev"
)

// Command annotations read by the root command.
const (
	annotationNoApp      = "pingmon/no-app"      // runs without loading the registry
	annotationFullScreen = "pingmon/full-screen" // owns the terminal, logs go to a file
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pingmon",
	Short: "pingmon - continuous ping monitor for a device inventory",
	Long: `pingmon - continuous ping monitor for a device inventory

  Probe one device at a time, classify its latency into status bands and
  keep a per-device history.

  Quick start:
    pingmon devices import devices.xlsx
    pingmon tui
    pingmon monitor 10.0.0.1 --metrics-addr :9108
    pingmon history 10.0.0.1

  Status bands:
    FAST < 50 ms <= NORMAL < 100 ms <= SLOW < 200 ms <= VERY_SLOW, DOWN without a reply`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if hasAnnotation(cmd, annotationNoApp) {
			return nil
		}
		return initApp(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		// Cleanup
		if appInstance != nil {
			err := appInstance.Close()
			appInstance = nil
			return err
		}
		return nil
	},
}

// initApp builds appInstance from the persistent flags.
func initApp(cmd *cobra.Command) error {
	configFile, _ := cmd.Flags().GetString("config")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	logLevel, _ := cmd.Flags().GetString("log-level")

	var err error
	appInstance, err = app.New(app.Options{
		ConfigFile: configFile,
		DataDir:    dataDir,
		LogLevel:   logLevel,
		LogToFile:  hasAnnotation(cmd, annotationFullScreen),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return nil
}

func hasAnnotation(cmd *cobra.Command, name string) bool {
	_, ok := cmd.Annotations[name]
	return ok
}

// Execute executes the root command
func Execute() {
	err := rootCmd.Execute()
	// PersistentPostRunE is skipped when a command fails.
	if appInstance != nil {
		if cerr := appInstance.Close(); err == nil {
			err = cerr
		}
		appInstance = nil
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path (default ~/.config/pingmon/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("data-dir", "", "directory for devices.json and history.db")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print version information",
	Annotations: map[string]string{annotationNoApp: ""},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pingmon %s\n", version)
	},
}
