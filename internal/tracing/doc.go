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

// Package tracing sets up OpenTelemetry tracing for stepflow.
//
// Tracing is opt-in. When enabled, a TracerProvider with the configured
// exporter and sampler is built and its tracer is handed to the lifecycle
// service, which records one span per save, publish and run. When disabled,
// a no-op tracer is returned and nothing is exported.
//
// Exporters:
//
//   - console: JSON spans written to a writer (stderr in the CLI)
//   - otlp: OTLP over gRPC
//   - otlp-http: OTLP over HTTP
package tracing
