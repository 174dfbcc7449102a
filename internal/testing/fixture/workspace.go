// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fixture builds throwaway CLI workspaces for command tests: a
// config file, a registry bundle and definition files in a temp directory.
package fixture

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/tombee/stepflow/internal/commands/shared"
)

// Workspace is a temp directory holding a config file and a registry.
type Workspace struct {
	Dir          string
	ConfigPath   string
	RegistryPath string

	backend   string
	redisURL  string
	schemaDir string
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithSQLite stores workflow records in a SQLite file inside the workspace.
func WithSQLite() Option {
	return func(w *Workspace) { w.backend = "sqlite" }
}

// WithRedis reads payload schemas from the Redis server at url.
func WithRedis(url string) Option {
	return func(w *Workspace) { w.redisURL = url }
}

// WithSchemaDir reads payload schemas from dir.
func WithSchemaDir(dir string) Option {
	return func(w *Workspace) { w.schemaDir = dir }
}

var isolatedEnv = []string{
	"STEPFLOW_DEBUG", "STEPFLOW_LOG_LEVEL", "LOG_LEVEL", "LOG_FORMAT", "LOG_SOURCE",
	"STEPFLOW_STORE_BACKEND", "STEPFLOW_STORE_PATH", "STEPFLOW_REGISTRY_PATH",
	"STEPFLOW_SCHEMAS_DIR", "STEPFLOW_REDIS_URL", "STEPFLOW_LOOKUP_TIMEOUT", "STEPFLOW_TENANT",
	"STEPFLOW_TRACING_ENABLED", "STEPFLOW_TRACING_EXPORTER", "STEPFLOW_TRACING_ENDPOINT",
}

// NewWorkspace writes Registry and a config pointing at it. The process
// environment is isolated from the developer's own configuration.
func NewWorkspace(t testing.TB, opts ...Option) *Workspace {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	for _, k := range isolatedEnv {
		t.Setenv(k, "")
	}

	w := &Workspace{Dir: dir, backend: "memory"}
	for _, opt := range opts {
		opt(w)
	}
	w.RegistryPath = w.WriteFile(t, "registry.yaml", Registry)

	var cfg strings.Builder
	cfg.WriteString("log:\n  level: error\n")
	cfg.WriteString("store:\n  backend: " + w.backend + "\n")
	if w.backend == "sqlite" {
		cfg.WriteString("  path: " + filepath.Join(dir, "stepflow.db") + "\n")
	}
	cfg.WriteString("registry:\n  path: " + w.RegistryPath + "\n")
	if w.redisURL != "" || w.schemaDir != "" {
		cfg.WriteString("schemas:\n")
		if w.redisURL != "" {
			cfg.WriteString("  redis_url: " + w.redisURL + "\n")
		}
		if w.schemaDir != "" {
			cfg.WriteString("  dir: " + w.schemaDir + "\n")
		}
	}
	cfg.WriteString("lookup:\n  timeout: 2s\n")
	w.ConfigPath = w.WriteFile(t, "config.yaml", cfg.String())
	return w
}

// WriteFile writes content to name inside the workspace and returns the path.
func (w *Workspace) WriteFile(t testing.TB, name, content string) string {
	t.Helper()
	path := filepath.Join(w.Dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// Args prefixes args with --config for this workspace.
func (w *Workspace) Args(args ...string) []string {
	return append([]string{"--config", w.ConfigPath}, args...)
}

// Result is the captured outcome of one command run.
type Result struct {
	Stdout   string
	Stderr   string
	Err      error
	ExitCode int
}

// Execute runs root with args and captures its output. Global flags are
// reset afterwards.
func Execute(t testing.TB, root *cobra.Command, args ...string) Result {
	t.Helper()
	t.Cleanup(shared.ResetFlags)

	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Err:      err,
		ExitCode: shared.ExitCode(err),
	}
}
