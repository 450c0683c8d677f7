// Copyright 2026 The Voltrans Authors
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

// Package metrics is the one observability surface this module keeps:
// Prometheus counters and gauges for the page cache, the upcall
// broadcaster, and the block-device AIO engine. Ambient metrics are kept
// while the OpenCensus/OpenTelemetry export pipeline is dropped, so this
// package talks to github.com/prometheus/client_golang directly instead
// of through an OTel meter provider.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is a handle on this module's Prometheus collectors, built
// against a caller-supplied registerer so cmd/voltransd can choose
// between the global default registerer and a scoped one in tests.
type Registry struct {
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter
	CacheUsedBytes prometheus.Gauge

	UpcallBroadcasts  *prometheus.CounterVec
	UpcallClientCount prometheus.Gauge

	AIOQueueDepth prometheus.Gauge
	AIOSubmitted  prometheus.Counter
	AIOCompleted  prometheus.Counter
}

// New registers and returns a fresh Registry against reg.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voltrans",
			Subsystem: "iocache",
			Name:      "hits_total",
			Help:      "Page cache reads served without a backend fault.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voltrans",
			Subsystem: "iocache",
			Name:      "misses_total",
			Help:      "Page cache reads that faulted through to the backend.",
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voltrans",
			Subsystem: "iocache",
			Name:      "evictions_total",
			Help:      "Cached files (with all their pages) evicted to stay under the configured cache size.",
		}),
		CacheUsedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voltrans",
			Subsystem: "iocache",
			Name:      "used_bytes",
			Help:      "Bytes currently held by the page cache.",
		}),
		UpcallBroadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voltrans",
			Subsystem: "upcall",
			Name:      "broadcasts_total",
			Help:      "Invalidation events broadcast to registered clients, by kind.",
		}, []string{"kind"}),
		UpcallClientCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voltrans",
			Subsystem: "upcall",
			Name:      "registered_clients",
			Help:      "Clients currently registered across all watched inodes.",
		}),
		AIOQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voltrans",
			Subsystem: "blockdevice",
			Name:      "aio_queue_depth",
			Help:      "Requests currently queued in the AIO submission channel.",
		}),
		AIOSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voltrans",
			Subsystem: "blockdevice",
			Name:      "aio_submitted_total",
			Help:      "Requests submitted to the AIO engine.",
		}),
		AIOCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voltrans",
			Subsystem: "blockdevice",
			Name:      "aio_completed_total",
			Help:      "Requests the AIO engine has finished executing.",
		}),
	}

	reg.MustRegister(
		r.CacheHits, r.CacheMisses, r.CacheEvictions, r.CacheUsedBytes,
		r.UpcallBroadcasts, r.UpcallClientCount,
		r.AIOQueueDepth, r.AIOSubmitted, r.AIOCompleted,
	)
	return r
}
