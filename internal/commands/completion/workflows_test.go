package completion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsWorkflowFile(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		expected bool
	}{
		{"yaml definition", "a.yaml", "id: a\nsteps: []\n", true},
		{"json definition", "a.json", `{"steps": []}`, true},
		{"yaml without steps", "b.yaml", "name: other\n", false},
		{"not a mapping", "c.yaml", "- a\n- b\n", false},
		{"invalid yaml", "d.yaml", "steps: [\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			assert.Equal(t, tt.expected, isWorkflowFile(path))
		})
	}

	assert.False(t, isWorkflowFile(filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestDiscoverWorkflowFiles(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string) {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write("top.yaml", "steps: []\n")
	write("flows/nested.yml", "steps: []\n")
	write("a/b/deep.yaml", "steps: []\n")
	write("a/b/c/too-deep.yaml", "steps: []\n")
	write(".hidden/skip.yaml", "steps: []\n")
	write("notes.txt", "steps: []\n")
	write("config.yaml", "log: {}\n")
	require.NoError(t, os.Symlink(filepath.Join(root, "top.yaml"), filepath.Join(root, "link.yaml")))

	files, err := discoverWorkflowFiles(root, maxSearchDepth)
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		rel, err := filepath.Rel(root, f.path)
		require.NoError(t, err)
		names = append(names, rel)
	}
	assert.ElementsMatch(t, []string{
		"top.yaml",
		filepath.Join("flows", "nested.yml"),
		filepath.Join("a", "b", "deep.yaml"),
	}, names)
}

func TestCompleteWorkflowFiles(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile("flow.yaml", []byte("steps: []\n"), 0o644))

	got, _ := CompleteWorkflowFiles(nil, nil, "")
	assert.Equal(t, []string{"flow.yaml"}, got)

	// Only the first argument is a file.
	got, _ = CompleteWorkflowFiles(nil, []string{"flow.yaml"}, "")
	assert.Empty(t, got)
}

func TestSafeCompletionWrapper(t *testing.T) {
	got, directive := SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		panic("boom")
	})
	assert.Empty(t, got)
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)

	got, _ = SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		return nil, cobra.ShellCompDirectiveDefault
	})
	assert.NotNil(t, got)

	got, _ = CompleteModes(nil, nil, "")
	assert.Len(t, got, 2)
}
