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

// Package metrics exposes Prometheus counters for the workflow lifecycle.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tombee/stepflow/pkg/workflow/lifecycle"
)

var _ lifecycle.Metrics = (*Lifecycle)(nil)

// Lifecycle implements lifecycle.Metrics.
type Lifecycle struct {
	publishes       *prometheus.CounterVec
	publishDuration *prometheus.HistogramVec
	validations     *prometheus.CounterVec
	draftsSaved     prometheus.Counter
	lookupFailures  *prometheus.CounterVec
}

// New registers the lifecycle collectors with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Lifecycle {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Lifecycle{
		publishes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepflow_publish_total",
				Help: "Total publish attempts by outcome",
			},
			[]string{"outcome"},
		),
		publishDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stepflow_publish_duration_seconds",
				Help:    "Duration of publish attempts including collaborator lookups",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		validations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepflow_validation_total",
				Help: "Total full validations by resulting status",
			},
			[]string{"status"},
		),
		draftsSaved: f.NewCounter(prometheus.CounterOpts{
			Name: "stepflow_drafts_saved_total",
			Help: "Total draft saves",
		}),
		lookupFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepflow_lookup_failures_total",
				Help: "Total failed collaborator lookups by service",
			},
			[]string{"service"},
		),
	}
}

// RecordPublish counts a publish attempt.
// outcome is one of lifecycle.OutcomePublished, OutcomeRejected or OutcomeFailed.
func (m *Lifecycle) RecordPublish(outcome string, duration time.Duration) {
	m.publishes.WithLabelValues(outcome).Inc()
	m.publishDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordValidation counts a validation by status.
func (m *Lifecycle) RecordValidation(status string) {
	m.validations.WithLabelValues(status).Inc()
}

// RecordDraftSaved counts a draft save.
func (m *Lifecycle) RecordDraftSaved() {
	m.draftsSaved.Inc()
}

// RecordLookupFailure counts a failed lookup against service.
func (m *Lifecycle) RecordLookupFailure(service string) {
	m.lookupFailures.WithLabelValues(service).Inc()
}
