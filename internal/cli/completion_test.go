package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletionHelp(t *testing.T) {
	help := completionHelp("pingmon")

	for _, want := range []string{
		"source <(pingmon completion bash)",
		`"${fpath[1]}/_pingmon"`,
		"~/.config/fish/completions/pingmon.fish",
		"pingmon completion powershell",
		"device address",
	} {
		assert.Contains(t, help, want)
	}
	assert.Equal(t, help, completionCmd.Long)
}

func TestWriteCompletion(t *testing.T) {
	for _, shell := range completionShellNames() {
		t.Run(shell, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, writeCompletion(rootCmd, shell, &buf))
			assert.Contains(t, buf.String(), "pingmon")
		})
	}

	assert.Error(t, writeCompletion(rootCmd, "tcsh", &bytes.Buffer{}))
}

func TestCompletionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"completion", "fish"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "complete -c pingmon")
	assert.Nil(t, appInstance)
}
