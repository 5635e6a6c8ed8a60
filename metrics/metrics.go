// Copyright 2024 The Erigon Authors
// (modifications)
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package metrics exposes Prometheus instrumentation for the backend
// and VRMap hot paths. None of it is load-bearing for correctness; it
// exists so a VRMap embedded in a long-running service can be observed
// the way Erigon instruments its own storage layer.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	BackendGets = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vrmap",
		Subsystem: "backend",
		Name:      "gets_total",
		Help:      "Number of point Get calls served by the backend.",
	})
	BackendInserts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vrmap",
		Subsystem: "backend",
		Name:      "inserts_total",
		Help:      "Number of point Insert calls served by the backend.",
	})
	BackendRemoves = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vrmap",
		Subsystem: "backend",
		Name:      "removes_total",
		Help:      "Number of point Remove calls served by the backend.",
	})
	BackendPrefixAllocs = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vrmap",
		Subsystem: "backend",
		Name:      "prefix_allocs_total",
		Help:      "Number of prefixes handed out by AllocPrefix.",
	})
	BackendCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vrmap",
		Subsystem: "backend",
		Name:      "cache_hits_total",
		Help:      "Number of Get calls served from the in-memory read cache.",
	})

	PruneDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vrmap",
		Subsystem: "vrmap",
		Name:      "prune_duration_seconds",
		Help:      "Wall-clock duration of VRMap prune runs.",
		Buckets:   prometheus.DefBuckets,
	})
	BranchMergeTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vrmap",
		Subsystem: "vrmap",
		Name:      "branch_merges_total",
		Help:      "Number of successful branch_merge_to operations.",
	})
)

func init() {
	prometheus.MustRegister(
		BackendGets, BackendInserts, BackendRemoves,
		BackendPrefixAllocs, BackendCacheHits,
		PruneDuration, BranchMergeTotal,
	)
}
