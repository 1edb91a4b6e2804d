// Package simulation implements the remediation-effect simulation engine:
// a deterministic reduction model over historical monitoring aggregates,
// the delta/effect classifier, and the run orchestrator that owns the
// durable run ledger.
package simulation

import (
	"math"
	"time"
)

// SeverityCounts breaks an alert total down by severity bucket.
type SeverityCounts struct {
	Critical int64 `json:"critical"`
	High     int64 `json:"high"`
	Medium   int64 `json:"medium"`
	Low      int64 `json:"low"`
}

// BaselineMetrics is a read-only snapshot of a tenant's monitoring
// aggregates over a trailing window. It is never mutated after collection.
type BaselineMetrics struct {
	AlertsTotal        int64          `json:"alertsTotal"`
	AlertsBySeverity   SeverityCounts `json:"alertsBySeverity"`
	IncidentsTotal     int64          `json:"incidentsTotal"`
	CorrelationsTotal  int64          `json:"correlationsTotal"`
	NotificationsTotal int64          `json:"notificationsTotal"`
	AvgRiskScore       float64        `json:"avgRiskScore"`
	WindowDays         int            `json:"windowDays"`
	ComputedAt         time.Time      `json:"computedAt"`
}

// SimulatedMetrics holds the counters as they would have looked had the
// playbook's actions been active during the baseline window.
type SimulatedMetrics struct {
	AlertsTotal        int64          `json:"alertsTotal"`
	AlertsBySeverity   SeverityCounts `json:"alertsBySeverity"`
	IncidentsTotal     int64          `json:"incidentsTotal"`
	CorrelationsTotal  int64          `json:"correlationsTotal"`
	NotificationsTotal int64          `json:"notificationsTotal"`
	AvgRiskScore       float64        `json:"avgRiskScore"`
}

// MetricDelta is the simulated change of one metric.
type MetricDelta struct {
	Absolute float64 `json:"absolute"`
	Percent  float64 `json:"percent"`
}

// DeltaMetrics holds per-metric deltas between baseline and simulation.
type DeltaMetrics struct {
	Alerts        MetricDelta `json:"alerts"`
	Incidents     MetricDelta `json:"incidents"`
	Correlations  MetricDelta `json:"correlations"`
	Notifications MetricDelta `json:"notifications"`
	AvgRiskScore  MetricDelta `json:"avgRiskScore"`
}

// Effect is the three-way classification of a playbook's simulated impact.
type Effect string

const (
	EffectPositive Effect = "positive"
	EffectNeutral  Effect = "neutral"
	EffectNegative Effect = "negative"
)

// RoundScore rounds a risk score to the one-decimal precision the platform
// tracks risk at. Both collected baselines and simulated scores go through
// this, so a no-op simulation reproduces its baseline exactly.
func RoundScore(v float64) float64 {
	return math.Round(v*10) / 10
}
