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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stepflowerrors "github.com/tombee/stepflow/pkg/errors"
)

// isolate clears every variable Load reads.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, k := range []string{
		"STEPFLOW_DEBUG", "STEPFLOW_LOG_LEVEL", "LOG_LEVEL", "LOG_FORMAT", "LOG_SOURCE",
		"STEPFLOW_STORE_BACKEND", "STEPFLOW_STORE_PATH", "STEPFLOW_REGISTRY_PATH",
		"STEPFLOW_SCHEMAS_DIR", "STEPFLOW_REDIS_URL", "STEPFLOW_LOOKUP_TIMEOUT", "STEPFLOW_TENANT",
		"STEPFLOW_TRACING_ENABLED", "STEPFLOW_TRACING_EXPORTER", "STEPFLOW_TRACING_ENDPOINT",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stepflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, 5*time.Second, cfg.Lookup.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFile(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
}

func TestLoad_File(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
log:
  level: debug
store:
  backend: sqlite
  path: /var/lib/stepflow/workflows.db
  wal: true
registry:
  path: ./catalog.yaml
schemas:
  redis_url: redis://localhost:6379/2
lookup:
  timeout: 750ms
tenant: acme
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.True(t, cfg.Store.WAL)
	assert.Equal(t, "./catalog.yaml", cfg.Registry.Path)
	assert.Equal(t, "redis://localhost:6379/2", cfg.Schemas.RedisURL)
	assert.Equal(t, 750*time.Millisecond, cfg.Lookup.Timeout)
	assert.Equal(t, "acme", cfg.Tenant)
}

func TestLoad_DefaultPath(t *testing.T) {
	isolate(t)
	dir, err := ConfigDir()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("tenant: from-home\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-home", cfg.Tenant)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "store:\n  backend: memory\n")
	t.Setenv("STEPFLOW_STORE_BACKEND", "SQLITE")
	t.Setenv("STEPFLOW_STORE_PATH", "/tmp/x.db")
	t.Setenv("STEPFLOW_LOOKUP_TIMEOUT", "2s")
	t.Setenv("STEPFLOW_LOG_LEVEL", "warn")
	t.Setenv("STEPFLOW_SCHEMAS_DIR", "./schemas")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "/tmp/x.db", cfg.Store.Path)
	assert.Equal(t, 2*time.Second, cfg.Lookup.Timeout)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "./schemas", cfg.Schemas.Dir)
}

func TestLoad_Tracing(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
tracing:
  enabled: true
  exporter: otlp
  endpoint: collector:4317
  sample_rate: 0.25
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "otlp", cfg.Tracing.Exporter)
	assert.Equal(t, "collector:4317", cfg.Tracing.Endpoint)
	assert.Equal(t, 0.25, cfg.Tracing.SampleRate)
	assert.Equal(t, "stepflow", cfg.Tracing.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.Tracing.BatchInterval)

	t.Setenv("STEPFLOW_TRACING_ENABLED", "false")
	t.Setenv("STEPFLOW_TRACING_EXPORTER", "CONSOLE")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "console", cfg.Tracing.Exporter)
}

func TestLoad_Errors(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	var ce *stepflowerrors.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "config_file", ce.Key)

	_, err = Load(writeConfig(t, "log: [unclosed\n"))
	require.ErrorAs(t, err, &ce)

	_, err = Load(writeConfig(t, "store:\n  backend: sqlite\n"))
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "validation", ce.Key)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "store.path is required when Backend is sqlite")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{name: "bad level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantMsg: `log.level must be one of [trace, debug, info, warn, warning, error], got "loud"`},
		{name: "bad format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantMsg: `log.format must be one of [json, text], got "xml"`},
		{name: "bad backend", mutate: func(c *Config) { c.Store.Backend = "postgres" }, wantMsg: "store.backend must be one of [memory, sqlite]"},
		{name: "zero timeout", mutate: func(c *Config) { c.Lookup.Timeout = 0 }, wantMsg: "lookup.timeout must be greater than 0"},
		{name: "bad redis url", mutate: func(c *Config) { c.Schemas.RedisURL = "not a url" }, wantMsg: "schemas.redis_url must be a URL"},
		{name: "bad exporter", mutate: func(c *Config) { c.Tracing.Exporter = "jaeger" }, wantMsg: `tracing.exporter must be one of [none, console, otlp, otlp-http], got "jaeger"`},
		{name: "otlp without endpoint", mutate: func(c *Config) { c.Tracing.Exporter = "otlp" }, wantMsg: "tracing.endpoint is required when Exporter is otlp"},
		{name: "sample rate above one", mutate: func(c *Config) { c.Tracing.SampleRate = 1.5 }, wantMsg: "tracing.sample_rate must be at most 1, got 1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "loud"
	cfg.Store.Backend = "postgres"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
	assert.Contains(t, err.Error(), "store.backend")
}

func TestLoggerConfig(t *testing.T) {
	cfg := Default()
	cfg.Log.Format = "json"
	lc := cfg.LoggerConfig()
	assert.Equal(t, "info", lc.Level)
	assert.EqualValues(t, "json", lc.Format)
	assert.NotNil(t, lc.Output)
}
