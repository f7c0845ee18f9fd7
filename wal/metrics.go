// Copyright 2026 The vxdb Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wal

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the in-process instrumentation this module exposes for
// an external metrics pipeline to scrape (the host process's own
// metrics server is out of scope for this module — see SPEC_FULL.md
// §2). All fields are safe to read concurrently; nil-safe helper
// methods on Buffer no-op when Metrics is nil.
type Metrics struct {
	AppendsTotal       prometheus.Counter
	AppendBytesTotal   prometheus.Counter
	RotationsTotal     prometheus.Counter
	WriterBlockedTotal prometheus.Counter
	RecordsAppliedTotal prometheus.Counter
	ReclaimedSegments  prometheus.Counter
}

// NewMetrics builds a Metrics set and registers it with reg. reg may be
// nil, in which case the returned Metrics is still usable (Collect is
// simply never called by anything).
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		AppendsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "wal", Name: "appends_total",
			Help: "Total number of records successfully appended to the log buffer.",
		}),
		AppendBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "wal", Name: "append_bytes_total",
			Help: "Total bytes of encoded records appended to the log buffer.",
		}),
		RotationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "wal", Name: "segment_rotations_total",
			Help: "Total number of segment rotations performed by the writer.",
		}),
		WriterBlockedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "wal", Name: "writer_blocked_total",
			Help: "Total number of times the writer blocked waiting for the reader to drain a slab.",
		}),
		RecordsAppliedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "wal", Name: "records_applied_total",
			Help: "Total number of records returned to the apply loop via Next.",
		}),
		ReclaimedSegments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "wal", Name: "reclaimed_segments_total",
			Help: "Total number of on-disk segments deleted by RemoveOldFiles.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.AppendsTotal,
			m.AppendBytesTotal,
			m.RotationsTotal,
			m.WriterBlockedTotal,
			m.RecordsAppliedTotal,
			m.ReclaimedSegments,
		)
	}
	return m
}

func (b *Buffer) observeAppend(size int) {
	if b.metrics == nil {
		return
	}
	b.metrics.AppendsTotal.Inc()
	b.metrics.AppendBytesTotal.Add(float64(size))
}

func (b *Buffer) observeRotation() {
	if b.metrics == nil {
		return
	}
	b.metrics.RotationsTotal.Inc()
}

func (b *Buffer) observeWriterBlocked() {
	if b.metrics == nil {
		return
	}
	b.metrics.WriterBlockedTotal.Inc()
}

func (b *Buffer) observeNext() {
	if b.metrics == nil {
		return
	}
	b.metrics.RecordsAppliedTotal.Inc()
}

func (b *Buffer) observeReclaim() {
	if b.metrics == nil {
		return
	}
	b.metrics.ReclaimedSegments.Inc()
}
