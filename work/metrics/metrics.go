package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SnapshotLookups counts catalog snapshot lookups by result layer: "memory",
// "disk", or "fetch". The ratio between layers shows how well the snapshot
// cache is absorbing catalog traffic.
var SnapshotLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "teleloop_snapshot_lookups_total",
	Help: "Catalog snapshot lookups by serving layer",
}, []string{"layer"})

// FetchErrors counts catalog fetch failures by error class (timeout,
// connection_lost, unauthorized, ...). This metric is a counter and only
// increases.
var FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "teleloop_fetch_errors_total",
	Help: "Catalog fetch failures by error class",
}, []string{"kind"})

// PlansResolved counts stream plan resolutions by delivery mode ("direct" or
// "adaptive"), showing how often passthrough negotiation succeeds.
var PlansResolved = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "teleloop_plans_resolved_total",
	Help: "Stream plans resolved by delivery mode",
}, []string{"mode"})

// PlanFailures counts plan resolutions that exhausted every endpoint and
// token combination, by final error class.
var PlanFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "teleloop_plan_failures_total",
	Help: "Stream plan resolutions that failed, by error class",
}, []string{"kind"})

// Downshifts counts adaptive recovery downshifts by trigger ("stall" or
// "throughput").
var Downshifts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "teleloop_recovery_downshifts_total",
	Help: "Adaptive recovery downshifts by trigger",
}, []string{"trigger"})

// RecoveryOutcomes counts terminated recovery sessions by outcome
// ("recovered" or "exhausted").
var RecoveryOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "teleloop_recovery_outcomes_total",
	Help: "Recovery session terminations by outcome",
}, []string{"outcome"})

// ActiveSessions tracks the number of playback attempts currently supervised
// by the recovery controller. This is a gauge and moves in both directions.
var ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "teleloop_active_sessions",
	Help: "Playback attempts currently under recovery supervision",
})
