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
	"time"
)

// Exporter types.
const (
	ExporterNone     = "none"
	ExporterConsole  = "console"
	ExporterOTLP     = "otlp"
	ExporterOTLPHTTP = "otlp-http"
)

// Config holds tracing configuration.
type Config struct {
	// Enabled controls whether tracing is active.
	Enabled bool `yaml:"enabled"`

	// ServiceName identifies this service in traces.
	ServiceName string `yaml:"service_name,omitempty"`

	// Exporter is one of none, console, otlp, otlp-http.
	Exporter string `yaml:"exporter,omitempty" validate:"omitempty,oneof=none console otlp otlp-http"`

	// Endpoint is the OTLP receiver address (host:port).
	Endpoint string `yaml:"endpoint,omitempty" validate:"required_if=Exporter otlp,required_if=Exporter otlp-http"`

	// Insecure disables TLS for OTLP exporters.
	Insecure bool `yaml:"insecure,omitempty"`

	// Headers are sent with every OTLP export.
	Headers map[string]string `yaml:"headers,omitempty"`

	// SampleRate is the fraction of traces recorded (0.0 - 1.0).
	SampleRate float64 `yaml:"sample_rate" validate:"gte=0,lte=1"`

	// BatchInterval is how often spans are flushed (default: 5s).
	BatchInterval time.Duration `yaml:"batch_interval,omitempty"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:       false,
		ServiceName:   "stepflow",
		Exporter:      ExporterConsole,
		SampleRate:    1.0,
		BatchInterval: 5 * time.Second,
	}
}
