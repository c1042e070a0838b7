/*
 * Copyright 2025 BulkRT Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package chardev

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bulkrt/bulkrt/api"
)

// Metrics exposes per-device transfer counters. One instance is shared by
// all sessions of a Registry; series are labeled by device name.
type Metrics struct {
	transfersSubmitted *prometheus.CounterVec
	transfersCompleted *prometheus.CounterVec
	transfersInflight  *prometheus.GaugeVec
	bytesTransferred   *prometheus.CounterVec
	latchedErrors      *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transfersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bulkrt",
			Name:      "transfers_submitted_total",
			Help:      "Transfers accepted by the transport.",
		}, []string{"device", "direction"}),
		transfersCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bulkrt",
			Name:      "transfers_completed_total",
			Help:      "Transfer completions by status.",
		}, []string{"device", "direction", "status"}),
		transfersInflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bulkrt",
			Name:      "transfers_inflight",
			Help:      "Transfers submitted but not yet completed.",
		}, []string{"device", "direction"}),
		bytesTransferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bulkrt",
			Name:      "bytes_transferred_total",
			Help:      "Payload bytes moved through completed transfers.",
		}, []string{"device", "direction"}),
		latchedErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bulkrt",
			Name:      "latched_errors_total",
			Help:      "Non-benign completion statuses latched for callers.",
		}, []string{"device"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.transfersSubmitted,
			m.transfersCompleted,
			m.transfersInflight,
			m.bytesTransferred,
			m.latchedErrors,
		)
	}
	return m
}

func (m *Metrics) submitted(device string, dir api.Direction) {
	m.transfersSubmitted.WithLabelValues(device, dir.String()).Inc()
	m.transfersInflight.WithLabelValues(device, dir.String()).Inc()
}

func (m *Metrics) completed(device string, dir api.Direction, st api.Status, n int) {
	m.transfersCompleted.WithLabelValues(device, dir.String(), st.String()).Inc()
	m.transfersInflight.WithLabelValues(device, dir.String()).Dec()
	if n > 0 {
		m.bytesTransferred.WithLabelValues(device, dir.String()).Add(float64(n))
	}
}

func (m *Metrics) latched(device string) {
	m.latchedErrors.WithLabelValues(device).Inc()
}
