package simulation

import (
	"fmt"
	"strings"
)

// Classification thresholds. Alert and incident changes of at least 10%
// count as signals; risk-score changes of at least 5%. Notification volume
// is informational and never drives classification.
const (
	countSignalPercent = 10.0
	riskSignalPercent  = 5.0
)

// ComputeDelta returns per-metric absolute and percentage changes between a
// baseline and its simulation. Percentages are rounded to one decimal; a
// zero baseline yields a zero percent by convention, never a division error.
func ComputeDelta(baseline BaselineMetrics, simulated SimulatedMetrics) DeltaMetrics {
	return DeltaMetrics{
		Alerts:        metricDelta(float64(baseline.AlertsTotal), float64(simulated.AlertsTotal)),
		Incidents:     metricDelta(float64(baseline.IncidentsTotal), float64(simulated.IncidentsTotal)),
		Correlations:  metricDelta(float64(baseline.CorrelationsTotal), float64(simulated.CorrelationsTotal)),
		Notifications: metricDelta(float64(baseline.NotificationsTotal), float64(simulated.NotificationsTotal)),
		AvgRiskScore:  metricDelta(baseline.AvgRiskScore, simulated.AvgRiskScore),
	}
}

func metricDelta(baseline, simulated float64) MetricDelta {
	return MetricDelta{
		Absolute: simulated - baseline,
		Percent:  RoundScore(rawPercent(baseline, simulated)),
	}
}

// rawPercent is the unrounded relative change. A zero baseline yields zero
// percent by convention, never a division error.
func rawPercent(baseline, simulated float64) float64 {
	if baseline == 0 {
		return 0
	}
	return (simulated - baseline) / baseline * 100
}

// ClassifyEffect reduces a run's changes to positive, neutral or negative.
// Positive requires at least one improvement signal and no degradation
// signal; negative the reverse. Mixed signals and no significant change both
// collapse to neutral. Thresholds compare against the exact ratios, not the
// one-decimal percentages the delta payload carries, so a -9.96% change
// stays below the 10% bar even though it displays as -10.0%.
func ClassifyEffect(baseline BaselineMetrics, simulated SimulatedMetrics) Effect {
	signals := []struct {
		percent   float64
		threshold float64
	}{
		{rawPercent(float64(baseline.AlertsTotal), float64(simulated.AlertsTotal)), countSignalPercent},
		{rawPercent(float64(baseline.IncidentsTotal), float64(simulated.IncidentsTotal)), countSignalPercent},
		{rawPercent(baseline.AvgRiskScore, simulated.AvgRiskScore), riskSignalPercent},
	}

	var improvements, degradations int
	for _, s := range signals {
		if s.percent <= -s.threshold {
			improvements++
		}
		if s.percent >= s.threshold {
			degradations++
		}
	}

	switch {
	case improvements > 0 && degradations == 0:
		return EffectPositive
	case degradations > 0 && improvements == 0:
		return EffectNegative
	default:
		return EffectNeutral
	}
}

// Summary renders a deterministic human-readable account of the simulation,
// built purely from the numeric deltas. It carries no tenant identifiers.
func Summary(baseline BaselineMetrics, simulated SimulatedMetrics, delta DeltaMetrics, effect Effect, o Overrides) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Simulated over a %d-day window: alerts %d -> %d (%+.1f%%), incidents %d -> %d (%+.1f%%), notifications %d -> %d (%+.1f%%), avg risk score %.1f -> %.1f (%+.1f%%). Overall effect: %s.",
		baseline.WindowDays,
		baseline.AlertsTotal, simulated.AlertsTotal, delta.Alerts.Percent,
		baseline.IncidentsTotal, simulated.IncidentsTotal, delta.Incidents.Percent,
		baseline.NotificationsTotal, simulated.NotificationsTotal, delta.Notifications.Percent,
		baseline.AvgRiskScore, simulated.AvgRiskScore, delta.AvgRiskScore.Percent,
		effect,
	)

	if n := len(o.RuleThresholdDeltas); n > 0 {
		fmt.Fprintf(&b, " %d rule threshold adjustment(s) recorded for transparency; threshold changes do not alter simulated totals in model %s.", n, ModelVersion)
	}

	return b.String()
}
