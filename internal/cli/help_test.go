package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/stepflow/internal/commands/shared"
)

func newTestRoot() *cobra.Command {
	root := NewRootCommand()
	sample := &cobra.Command{
		Use:         "sample <file>",
		Short:       "Sample subcommand",
		Annotations: map[string]string{"group": "testing"},
		RunE:        func(*cobra.Command, []string) error { return nil },
	}
	sample.Flags().String("step", "", "Target step")
	_ = sample.MarkFlagRequired("step")
	root.AddCommand(sample)
	root.SetHelpCommand(NewHelpCommand(root))
	return root
}

func runHelp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(shared.ResetFlags)
	root := newTestRoot()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestHelpCommandJSON_All(t *testing.T) {
	out, err := runHelp(t, "help", "--json")
	require.NoError(t, err)

	var resp HelpResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "help", resp.Command)

	var names []string
	for _, c := range resp.Commands {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "sample")

	var globals []string
	for _, f := range resp.GlobalFlags {
		globals = append(globals, f.Name)
	}
	assert.Contains(t, globals, "query")
}

func TestHelpCommandJSON_One(t *testing.T) {
	out, err := runHelp(t, "help", "sample", "--json")
	require.NoError(t, err)

	var resp HelpResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Command)
	assert.Equal(t, "sample", resp.Command.Name)
	assert.Equal(t, "testing", resp.Command.Group)
	require.Len(t, resp.Command.Flags, 1)
	assert.Equal(t, "step", resp.Command.Flags[0].Name)
	assert.True(t, resp.Command.Flags[0].Required)
}

func TestHelpCommand_Unknown(t *testing.T) {
	_, err := runHelp(t, "help", "nope")
	require.Error(t, err)
	assert.Equal(t, shared.ExitFailed, shared.ExitCode(err))
}

func TestHelpCommandHumanOutput(t *testing.T) {
	out, err := runHelp(t, "help", "sample")
	require.NoError(t, err)
	assert.Contains(t, out, "Sample subcommand")
}
