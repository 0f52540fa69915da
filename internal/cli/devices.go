package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pingmon/internal/storage/models"
)

var devicesCmd = &cobra.Command{
	Use:     "devices",
	Aliases: []string{"dev"},
	Short:   "Manage the device list",
	Long:    "List, import, add, edit and remove monitored devices",
}

var devicesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		status = strings.ToUpper(status)
		if status != "" && !models.Status(status).Valid() {
			return fmt.Errorf("unknown status %q", status)
		}

		devices := appInstance.Controller.Devices()
		if status != "" {
			filtered := devices[:0]
			for _, d := range devices {
				if string(d.Status) == status {
					filtered = append(filtered, d)
				}
			}
			devices = filtered
		}

		if len(devices) == 0 {
			fmt.Println("No devices found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ADDRESS\tNAME\tSTATUS\tLATENCY\tLAST SUCCESS\tLOCATION")
		fmt.Fprintln(w, "-------\t----\t------\t-------\t------------\t--------")
		for _, d := range devices {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				d.Address,
				truncateString(d.DisplayName, 30),
				d.Status,
				formatLatency(d.LatencyMs),
				formatTime(d.LastSuccessAt),
				d.Location)
		}
		w.Flush()

		fmt.Printf("\nTotal: %d device(s)\n", len(devices))
		return nil
	},
}

var devicesShowCmd = &cobra.Command{
	Use:               "show <address>",
	Short:             "Show device details",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeDeviceAddresses,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, ok := findDevice(appInstance.Controller.Devices(), args[0])
		if !ok {
			return fmt.Errorf("device not found: %s", args[0])
		}

		fmt.Printf("%s\n", d.DisplayName)
		fmt.Println(strings.Repeat("═", len([]rune(d.DisplayName))))
		fmt.Println()
		fmt.Printf("  Address:      %s\n", d.Address)
		fmt.Printf("  Status:       %s\n", d.Status)
		fmt.Printf("  Latency:      %s\n", formatLatency(d.LatencyMs))
		fmt.Printf("  Last success: %s\n", formatTime(d.LastSuccessAt))
		rec := d.Record()
		for _, f := range recordFlags[1:] {
			if v := *f.field(&rec); v != "" {
				fmt.Printf("  %-13s %s\n", f.label+":", v)
			}
		}
		return nil
	},
}

var devicesImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import devices from an xlsx or csv file",
	Long: `Reconcile the registry with a device list.

Devices missing from the file are removed, new ones are added and existing ones
keep their latency and status. Without an argument the configured import file
(import.path) is read. The first row must be a header; recognised columns are
address/ip, name, type, model, mac, location, unit and description.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		path := ""
		if len(args) > 0 {
			path = args[0]
		}

		n, warnings, err := appInstance.Import(ctx, path)
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", w)
		}
		if err != nil {
			return err
		}
		if path == "" {
			path = appInstance.Source.Path()
		}

		fmt.Printf("Imported %d record(s) from %s\n", n, path)
		fmt.Printf("Registry now holds %d device(s)\n", len(appInstance.Controller.Devices()))
		return nil
	},
}

var devicesAddCmd = &cobra.Command{
	Use:   "add <address>",
	Short: "Add a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		rec := models.Record{Address: strings.TrimSpace(args[0])}
		applyRecordFlags(cmd, &rec)
		replace, _ := cmd.Flags().GetBool("replace")

		if err := appInstance.Controller.AddOrReplace(models.NewDevice(rec), replace); err != nil {
			return err
		}

		if writeBack, _ := cmd.Flags().GetBool("write-back"); writeBack {
			if err := appInstance.Source.Update(ctx, rec.Address, rec); err != nil {
				return fmt.Errorf("device added, but the import file was not updated: %w", err)
			}
		}

		fmt.Printf("Device added: %s (%s)\n", displayName(rec), rec.Address)
		return nil
	},
}

var devicesEditCmd = &cobra.Command{
	Use:               "edit <address>",
	Short:             "Edit a device",
	Long:              "Change a device's name, metadata or address. Latency, status and history are kept.",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeDeviceAddresses,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		oldAddress := args[0]

		d, ok := findDevice(appInstance.Controller.Devices(), oldAddress)
		if !ok {
			return fmt.Errorf("device not found: %s", oldAddress)
		}

		rec := d.Record()
		if cmd.Flags().Changed("address") {
			rec.Address, _ = cmd.Flags().GetString("address")
			rec.Address = strings.TrimSpace(rec.Address)
		}
		applyRecordFlags(cmd, &rec)

		if err := appInstance.Controller.Edit(oldAddress, rec); err != nil {
			return err
		}

		if writeBack, _ := cmd.Flags().GetBool("write-back"); writeBack {
			if err := appInstance.Source.Update(ctx, oldAddress, rec); err != nil {
				return fmt.Errorf("device updated, but the import file was not: %w", err)
			}
		}

		fmt.Printf("Device updated: %s (%s)\n", displayName(rec), rec.Address)
		return nil
	},
}

var devicesRemoveCmd = &cobra.Command{
	Use:               "remove <address>",
	Aliases:           []string{"rm"},
	Short:             "Remove a device",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeDeviceAddresses,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		address := args[0]

		if err := appInstance.Controller.Remove(address); err != nil {
			return err
		}
		fmt.Printf("Device removed: %s\n", address)

		if purge, _ := cmd.Flags().GetBool("purge-history"); purge && appInstance.History != nil {
			n, err := appInstance.History.DeleteHistory(ctx, address)
			if err != nil {
				return fmt.Errorf("failed to delete history: %w", err)
			}
			fmt.Printf("Deleted %d history sample(s)\n", n)
		}
		return nil
	},
}

// recordFlags maps flag names onto the descriptive fields of a record.
var recordFlags = []struct {
	name  string
	label string
	usage string
	field func(*models.Record) *string
}{
	{"name", "Name", "display name", func(r *models.Record) *string { return &r.DisplayName }},
	{"type", "Type", "device type", func(r *models.Record) *string { return &r.DeviceType }},
	{"model", "Model", "device model", func(r *models.Record) *string { return &r.Model }},
	{"mac", "MAC", "MAC address", func(r *models.Record) *string { return &r.MACAddress }},
	{"location", "Location", "location", func(r *models.Record) *string { return &r.Location }},
	{"unit", "Unit", "organisational unit", func(r *models.Record) *string { return &r.Unit }},
	{"description", "Description", "free-form description", func(r *models.Record) *string { return &r.Description }},
}

func addRecordFlags(cmd *cobra.Command) {
	for _, f := range recordFlags {
		cmd.Flags().String(f.name, "", f.usage)
	}
	cmd.Flags().Bool("write-back", false, "also write the device to the import file")
}

// applyRecordFlags copies the flags that were set onto rec.
func applyRecordFlags(cmd *cobra.Command, rec *models.Record) {
	for _, f := range recordFlags {
		if cmd.Flags().Changed(f.name) {
			v, _ := cmd.Flags().GetString(f.name)
			*f.field(rec) = strings.TrimSpace(v)
		}
	}
}

func findDevice(devices []models.Device, address string) (models.Device, bool) {
	for _, d := range devices {
		if d.Address == address {
			return d, true
		}
	}
	return models.Device{}, false
}

func displayName(rec models.Record) string {
	if rec.DisplayName != "" {
		return rec.DisplayName
	}
	return rec.Address
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func init() {
	devicesListCmd.Flags().String("status", "", "only show devices in this status band")

	addRecordFlags(devicesAddCmd)
	devicesAddCmd.Flags().Bool("replace", false, "update the device if the address already exists")

	addRecordFlags(devicesEditCmd)
	devicesEditCmd.Flags().String("address", "", "new address")

	devicesRemoveCmd.Flags().Bool("purge-history", false, "also delete the device's history")

	devicesCmd.AddCommand(devicesListCmd)
	devicesCmd.AddCommand(devicesShowCmd)
	devicesCmd.AddCommand(devicesImportCmd)
	devicesCmd.AddCommand(devicesAddCmd)
	devicesCmd.AddCommand(devicesEditCmd)
	devicesCmd.AddCommand(devicesRemoveCmd)
	rootCmd.AddCommand(devicesCmd)
}
