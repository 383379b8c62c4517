// Package metrics provides Prometheus metrics for QuizHub.
// Counters, gauges and histograms for streaks, freezes, XP, the store and
// the HTTP API, registered with the default registry via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Streaks ────────────────────────────────────────────────────────────────

// Completions tracks qualifying completions by outcome
// (started, extended, bridged, reset, already_recorded, stale).
var Completions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "quizhub",
	Name:      "streak_completions_total",
	Help:      "Qualifying completions by streak outcome.",
}, []string{"outcome"})

// FreezesUsed tracks freezes spent.
var FreezesUsed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "quizhub",
	Name:      "streak_freezes_used_total",
	Help:      "Total streak freezes consumed.",
})

// FreezesRejected tracks refused freeze attempts by reason.
var FreezesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "quizhub",
	Name:      "streak_freezes_rejected_total",
	Help:      "Freeze attempts refused, by reason.",
}, []string{"reason"})

// MalformedStates tracks stored states that failed invariant checks.
var MalformedStates = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "quizhub",
	Name:      "streak_malformed_states_total",
	Help:      "Stored streak states that violated an invariant.",
})

// ─── XP ─────────────────────────────────────────────────────────────────────

// XPAwarded tracks XP granted by source.
var XPAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "quizhub",
	Name:      "xp_awarded_total",
	Help:      "Total XP awarded, by source.",
}, []string{"source"})

// RankUps tracks title promotions by the title reached.
var RankUps = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "quizhub",
	Name:      "rank_ups_total",
	Help:      "Title promotions, by new title.",
}, []string{"title"})

// ─── Store ──────────────────────────────────────────────────────────────────

// VersionConflicts tracks optimistic-concurrency retries on streak writes.
var VersionConflicts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "quizhub",
	Name:      "store_version_conflicts_total",
	Help:      "Streak writes that lost a compare-and-swap race.",
})

// ─── HTTP ───────────────────────────────────────────────────────────────────

// HTTPDuration tracks API request latency.
var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "quizhub",
	Name:      "http_request_duration_seconds",
	Help:      "HTTP request duration in seconds.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
}, []string{"route", "method", "status"})
