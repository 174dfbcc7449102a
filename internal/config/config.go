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

// Package config loads stepflow configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/tombee/stepflow/internal/log"
	"github.com/tombee/stepflow/internal/tracing"
	stepflowerrors "github.com/tombee/stepflow/pkg/errors"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config is the complete stepflow configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Store    StoreConfig    `yaml:"store"`
	Registry RegistryConfig `yaml:"registry"`
	Schemas  SchemasConfig  `yaml:"schemas"`
	Lookup   LookupConfig   `yaml:"lookup"`
	Tracing  tracing.Config `yaml:"tracing"`

	// Tenant is passed to event catalog lookups.
	Tenant string `yaml:"tenant,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level     string `yaml:"level" validate:"oneof=trace debug info warn warning error"`
	Format    string `yaml:"format" validate:"oneof=json text"`
	AddSource bool   `yaml:"add_source,omitempty"`
}

// StoreConfig selects where workflow records live.
type StoreConfig struct {
	Backend string `yaml:"backend" validate:"oneof=memory sqlite"`

	// Path is the SQLite database file.
	Path string `yaml:"path,omitempty" validate:"required_if=Backend sqlite"`

	// WAL enables write-ahead logging for SQLite.
	WAL bool `yaml:"wal,omitempty"`
}

// RegistryConfig points at the catalog file providing node types, actions
// and the event catalog.
type RegistryConfig struct {
	Path string `yaml:"path,omitempty"`
}

// SchemasConfig selects the payload schema source. RedisURL wins over Dir;
// with neither, schemas come from the registry file.
type SchemasConfig struct {
	Dir         string `yaml:"dir,omitempty"`
	RedisURL    string `yaml:"redis_url,omitempty" validate:"omitempty,url"`
	RedisPrefix string `yaml:"redis_prefix,omitempty"`
}

// LookupConfig bounds calls to external collaborators.
type LookupConfig struct {
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: string(log.FormatText),
		},
		Store: StoreConfig{
			Backend: BackendMemory,
		},
		Lookup: LookupConfig{
			Timeout: 5 * time.Second,
		},
		Tracing: tracing.DefaultConfig(),
	}
}

// Load loads configuration from an optional YAML file and the environment.
// Environment variables take precedence over the file. If configPath is
// empty, the default path is used when it exists.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		if p, err := ConfigPath(); err == nil {
			if _, err := os.Stat(p); err == nil {
				configPath = p
			}
		}
	}

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &stepflowerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &stepflowerrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}
	return cfg, nil
}

// applyDefaults fills zero values left by a minimal file.
func (c *Config) applyDefaults() {
	defaults := Default()
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	if c.Store.Backend == "" {
		c.Store.Backend = defaults.Store.Backend
	}
	if c.Lookup.Timeout == 0 {
		c.Lookup.Timeout = defaults.Lookup.Timeout
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = defaults.Tracing.ServiceName
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = defaults.Tracing.Exporter
	}
}

func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// loadFromEnv applies STEPFLOW_* overrides. Log settings follow
// log.ApplyEnv.
func (c *Config) loadFromEnv() {
	lc := c.LoggerConfig()
	log.ApplyEnv(lc)
	c.Log.Level = lc.Level
	c.Log.Format = string(lc.Format)
	c.Log.AddSource = lc.AddSource

	if val := os.Getenv("STEPFLOW_STORE_BACKEND"); val != "" {
		c.Store.Backend = strings.ToLower(val)
	}
	if val := os.Getenv("STEPFLOW_STORE_PATH"); val != "" {
		c.Store.Path = val
	}
	if val := os.Getenv("STEPFLOW_REGISTRY_PATH"); val != "" {
		c.Registry.Path = val
	}
	if val := os.Getenv("STEPFLOW_SCHEMAS_DIR"); val != "" {
		c.Schemas.Dir = val
	}
	if val := os.Getenv("STEPFLOW_REDIS_URL"); val != "" {
		c.Schemas.RedisURL = val
	}
	if val := os.Getenv("STEPFLOW_LOOKUP_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Lookup.Timeout = d
		}
	}
	if val := os.Getenv("STEPFLOW_TENANT"); val != "" {
		c.Tenant = val
	}
	if val := os.Getenv("STEPFLOW_TRACING_ENABLED"); val != "" {
		c.Tracing.Enabled = val == "true" || val == "1"
	}
	if val := os.Getenv("STEPFLOW_TRACING_EXPORTER"); val != "" {
		c.Tracing.Exporter = strings.ToLower(val)
	}
	if val := os.Getenv("STEPFLOW_TRACING_ENDPOINT"); val != "" {
		c.Tracing.Endpoint = val
	}
}

// LoggerConfig converts the log section for log.New.
func (c *Config) LoggerConfig() *log.Config {
	return &log.Config{
		Level:     c.Log.Level,
		Format:    log.Format(c.Log.Format),
		Output:    os.Stderr,
		AddSource: c.Log.AddSource,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks that the configuration is valid. Every violation is
// reported.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(msgs, "\n  - "))
}

func describe(fe validator.FieldError) string {
	_, field, _ := strings.Cut(fe.Namespace(), ".")
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	case "required_if":
		return fmt.Sprintf("%s is required when %s", field, strings.Replace(fe.Param(), " ", " is ", 1))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s, got %v", field, fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("%s must be at least %s, got %v", field, fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("%s must be at most %s, got %v", field, fe.Param(), fe.Value())
	case "url":
		return fmt.Sprintf("%s must be a URL, got %q", field, fe.Value())
	}
	return fmt.Sprintf("%s failed %q constraint", field, fe.Tag())
}
