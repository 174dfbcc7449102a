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

package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Provider owns the tracer provider built from a Config.
type Provider struct {
	tp     *sdktrace.TracerProvider
	noop   trace.TracerProvider
	writer io.Writer
}

// Option configures a Provider.
type Option func(*Provider)

// WithWriter sets where the console exporter writes. Default: os.Stderr.
func WithWriter(w io.Writer) Option {
	return func(p *Provider) { p.writer = w }
}

// NewProvider builds a tracer provider. A disabled config, or the none
// exporter, yields a provider whose tracers record nothing.
func NewProvider(ctx context.Context, cfg Config, version string, opts ...Option) (*Provider, error) {
	p := &Provider{writer: os.Stderr}
	for _, opt := range opts {
		opt(p)
	}

	if !cfg.Enabled || cfg.Exporter == ExporterNone {
		p.noop = noop.NewTracerProvider()
		return p, nil
	}

	exporter, err := CreateExporter(ctx, cfg, p.writer)
	if err != nil {
		return nil, err
	}

	name := cfg.ServiceName
	if name == "" {
		name = DefaultConfig().ServiceName
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"", // empty schema URL avoids conflicts with the default resource
			semconv.ServiceName(name),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var batchOpts []sdktrace.BatchSpanProcessorOption
	if cfg.BatchInterval > 0 {
		batchOpts = append(batchOpts, sdktrace.WithBatchTimeout(cfg.BatchInterval))
	}

	p.tp = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(NewSampler(cfg.SampleRate)),
		sdktrace.WithBatcher(exporter, batchOpts...),
	)
	return p, nil
}

// NewSampler samples the given fraction of root traces. Child spans follow
// their parent.
func NewSampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case rate <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// Tracer returns a tracer for the given instrumentation scope.
func (p *Provider) Tracer(name string) trace.Tracer {
	if p.tp == nil {
		return p.noop.Tracer(name)
	}
	return p.tp.Tracer(name)
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool {
	return p.tp != nil
}

// Shutdown flushes pending spans and releases the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}
