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

package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/tombee/stepflow/internal/config"
	"github.com/tombee/stepflow/internal/log"
	"github.com/tombee/stepflow/internal/metrics"
	"github.com/tombee/stepflow/internal/schemastore"
	"github.com/tombee/stepflow/internal/store/sqlite"
	"github.com/tombee/stepflow/internal/tracing"
	stepflowerrors "github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow"
	"github.com/tombee/stepflow/pkg/workflow/catalog"
	"github.com/tombee/stepflow/pkg/workflow/contract"
	"github.com/tombee/stepflow/pkg/workflow/lifecycle"
	"github.com/tombee/stepflow/pkg/workflow/schema"
)

// Env holds everything a command needs, built from the loaded config.
type Env struct {
	Config   *config.Config
	Logger   *slog.Logger
	Bundle   *catalog.Bundle
	Schemas  catalog.SchemaSource
	Store    lifecycle.Store
	Service  *lifecycle.Service
	Registry *prometheus.Registry
	Tracing  *tracing.Provider

	closers []func() error
}

// OpenEnv loads configuration and wires the registry, schema source,
// record store and lifecycle service. Logs go to stderr. Close must be
// called when the command is done.
func OpenEnv(stderr io.Writer) (*Env, error) {
	cfg, err := config.Load(GetConfigPath())
	if err != nil {
		return nil, err
	}

	lc := cfg.LoggerConfig()
	lc.Output = stderr
	if GetVerbose() {
		lc.Level = "debug"
	}
	env := &Env{
		Config:   cfg,
		Logger:   log.WithComponent(log.New(lc), "cli"),
		Registry: prometheus.NewRegistry(),
	}

	if err := env.open(stderr); err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

func (e *Env) open(stderr io.Writer) error {
	cfg := e.Config

	version, _, _ := GetVersion()
	tp, err := tracing.NewProvider(context.Background(), cfg.Tracing, version, tracing.WithWriter(stderr))
	if err != nil {
		return err
	}
	e.Tracing = tp
	e.closers = append(e.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	})

	e.Bundle = &catalog.Bundle{}
	if cfg.Registry.Path != "" {
		b, err := catalog.LoadFile(cfg.Registry.Path)
		if err != nil {
			return err
		}
		e.Bundle = b
		e.Logger.Debug("loaded registry",
			slog.String("path", cfg.Registry.Path),
			slog.Int("actions", len(b.Actions)),
			slog.Int("events", len(b.Events)))
	}

	switch {
	case cfg.Schemas.RedisURL != "":
		var opts []schemastore.Option
		if cfg.Schemas.RedisPrefix != "" {
			opts = append(opts, schemastore.WithPrefix(cfg.Schemas.RedisPrefix))
		}
		s, err := schemastore.New(cfg.Schemas.RedisURL, opts...)
		if err != nil {
			return err
		}
		e.closers = append(e.closers, s.Close)
		e.Schemas = s
	case cfg.Schemas.Dir != "":
		s, err := catalog.LoadSchemaDir(cfg.Schemas.Dir)
		if err != nil {
			return err
		}
		e.Schemas = s
	default:
		e.Schemas = e.Bundle.SchemaSource()
	}

	switch cfg.Store.Backend {
	case config.BackendSQLite:
		s, err := sqlite.New(sqlite.Config{Path: cfg.Store.Path, WAL: cfg.Store.WAL})
		if err != nil {
			return err
		}
		e.closers = append(e.closers, s.Close)
		e.Store = s
	default:
		e.Store = lifecycle.NewMemoryStore()
	}

	e.Service = lifecycle.NewService(e.Store,
		lifecycle.Collaborators{
			Schemas:  e.Schemas,
			Events:   e.Bundle.EventCatalog(),
			Registry: e.Bundle.Registry(),
			Tenant:   cfg.Tenant,
		},
		lifecycle.WithLogger(e.Logger),
		lifecycle.WithMetrics(metrics.New(e.Registry)),
		lifecycle.WithLookupTimeout(cfg.Lookup.Timeout),
		lifecycle.WithTracer(tp.Tracer("github.com/tombee/stepflow/pkg/workflow/lifecycle")),
	)
	return nil
}

// Close releases the store and schema source connections.
func (e *Env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// LoadDefinition reads a YAML or JSON definition file, checks it against
// the embedded definition schema and decodes it.
func LoadDefinition(path string) (*workflow.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, stepflowerrors.Wrapf(err, "reading workflow %s", path)
	}
	return ParseDefinitionDocument(data)
}

// ParseDefinitionDocument checks data against the embedded definition
// schema and decodes it.
func ParseDefinitionDocument(data []byte) (*workflow.Definition, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &stepflowerrors.ValidationError{
			Field:      "document",
			Message:    fmt.Sprintf("not valid YAML or JSON: %v", err),
			Suggestion: "check the document syntax and indentation",
		}
	}
	doc, err := toJSONValue(doc)
	if err != nil {
		return nil, err
	}
	if err := schema.ValidateDefinitionDocument(doc); err != nil {
		return nil, &stepflowerrors.ValidationError{
			Field:      "document",
			Message:    err.Error(),
			Suggestion: "run 'stepflow schema' to see the definition document schema",
		}
	}
	return workflow.ParseDefinition(data)
}

// toJSONValue converts a YAML-decoded value to the shapes encoding/json
// produces.
func toJSONValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, stepflowerrors.Wrap(err, "definition document is not JSON-compatible")
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DefinitionLoadError reports a LoadDefinition failure. A malformed
// document exits with ExitInvalidWorkflow, anything else with ExitFailed.
// In JSON mode the error is written to w.
func DefinitionLoadError(w io.Writer, command string, err error) error {
	code, exit := ErrorCodeFileNotFound, ExitFailed
	var ve *stepflowerrors.ValidationError
	if errors.As(err, &ve) {
		code, exit = ErrorCodeInvalidYAML, ExitInvalidWorkflow
	}
	if GetJSON() {
		return FailureJSON(w, command, code, err, exit)
	}
	return &ExitError{Code: exit, Cause: err}
}

// EnvError reports an OpenEnv failure.
func EnvError(w io.Writer, command string, err error) error {
	code := ErrorCodeConfig
	var ue *stepflowerrors.UnavailableError
	if errors.As(err, &ue) {
		code = ErrorCodeUnavailable
	}
	if GetJSON() {
		return FailureJSON(w, command, code, err, ExitFailed)
	}
	return NewFailedError("", err)
}

// ParseMode checks a --mode flag value. Empty selects pinned.
func ParseMode(s string) (contract.Mode, error) {
	if s == "" {
		return contract.ModePinned, nil
	}
	m := contract.Mode(s)
	if !m.Valid() {
		return "", &stepflowerrors.ValidationError{
			Field:      "mode",
			Message:    fmt.Sprintf("unknown payload schema mode %q", s),
			Suggestion: "use --mode pinned or --mode inferred",
		}
	}
	return m, nil
}

// OperationError reports a failed service call. Missing workflows, stale
// drafts, denied runs and collaborator outages get their own codes; all
// exit with ExitFailed.
func OperationError(w io.Writer, command string, err error) error {
	code := ErrorCodeInternal
	var (
		nf *stepflowerrors.NotFoundError
		ue *stepflowerrors.UnavailableError
		ve *stepflowerrors.ValidationError
		ce *stepflowerrors.ConflictError
	)
	switch {
	case errors.As(err, &nf):
		code = ErrorCodeNotFound
	case errors.As(err, &ce):
		code = ErrorCodeConflict
	case errors.Is(err, lifecycle.ErrRunDenied):
		code = ErrorCodeRunDenied
	case errors.As(err, &ue):
		code = ErrorCodeUnavailable
	case errors.As(err, &ve):
		code = ErrorCodeInvalidInput
	}
	if GetJSON() {
		return FailureJSON(w, command, code, err, ExitFailed)
	}
	return NewFailedError(command+" failed", err)
}
