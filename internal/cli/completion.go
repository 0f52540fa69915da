package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// ensureApp lazily initializes appInstance for shell completion.
// Cobra may invoke ValidArgsFunction without running PersistentPreRunE.
func ensureApp(cmd *cobra.Command) error {
	if appInstance != nil {
		return nil
	}
	return initApp(cmd)
}

// completeDeviceAddresses provides shell completion for device addresses,
// described by their display names.
func completeDeviceAddresses(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	if err := ensureApp(cmd); err != nil {
		return nil, cobra.ShellCompDirectiveError
	}

	var completions []string
	for _, d := range appInstance.Controller.Devices() {
		if strings.HasPrefix(d.Address, toComplete) ||
			strings.HasPrefix(strings.ToLower(d.DisplayName), strings.ToLower(toComplete)) {
			completions = append(completions, d.Address+"\t"+d.DisplayName)
		}
	}

	return completions, cobra.ShellCompDirectiveNoFileComp
}

type shellCompletion struct {
	name    string
	install string // %[1]s is the program name
	write   func(root *cobra.Command, w io.Writer) error
}

var completionShells = []shellCompletion{
	{
		name:    "bash",
		install: "source <(%[1]s completion bash)\n  %[1]s completion bash > /etc/bash_completion.d/%[1]s",
		write:   func(root *cobra.Command, w io.Writer) error { return root.GenBashCompletionV2(w, true) },
	},
	{
		name:    "zsh",
		install: "%[1]s completion zsh > \"${fpath[1]}/_%[1]s\"   (needs compinit)",
		write:   func(root *cobra.Command, w io.Writer) error { return root.GenZshCompletion(w) },
	},
	{
		name:    "fish",
		install: "%[1]s completion fish > ~/.config/fish/completions/%[1]s.fish",
		write:   func(root *cobra.Command, w io.Writer) error { return root.GenFishCompletion(w, true) },
	},
	{
		name:    "powershell",
		install: "%[1]s completion powershell | Out-String | Invoke-Expression",
		write:   func(root *cobra.Command, w io.Writer) error { return root.GenPowerShellCompletionWithDesc(w) },
	},
}

// completionHelp lists the install line for every shell. Device addresses
// complete with their display names once the script is loaded.
func completionHelp(program string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate a shell completion script for %s.\n\n", program)
	fmt.Fprintf(&b, "Commands taking a device address (monitor, history, devices show/edit/remove)\n")
	fmt.Fprintf(&b, "complete it from the device list, showing each device's name.\n")
	for _, sh := range completionShells {
		fmt.Fprintf(&b, "\n%s:\n  %s\n", sh.name, fmt.Sprintf(sh.install, program))
	}
	return b.String()
}

func writeCompletion(root *cobra.Command, shell string, w io.Writer) error {
	for _, sh := range completionShells {
		if sh.name == shell {
			return sh.write(root, w)
		}
	}
	return fmt.Errorf("unsupported shell %q", shell)
}

func completionShellNames() []string {
	names := make([]string, len(completionShells))
	for i, sh := range completionShells {
		names[i] = sh.name
	}
	return names
}

var completionCmd = &cobra.Command{
	Use:                   "completion [" + strings.Join(completionShellNames(), "|") + "]",
	Short:                 "Generate shell completion script",
	DisableFlagsInUseLine: true,
	Annotations:           map[string]string{annotationNoApp: ""},
	ValidArgs:             completionShellNames(),
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeCompletion(cmd.Root(), args[0], cmd.OutOrStdout())
	},
}

func init() {
	completionCmd.Long = completionHelp(rootCmd.Name())
	rootCmd.AddCommand(completionCmd)
}
