package simulation

import "math"

// ModelVersion identifies the reduction constants in effect. Every run is
// stamped with the version used so historical results stay reproducible if
// the table below ever changes; any change to these numbers requires a new
// version.
const ModelVersion = "v1"

// Reduction model v1. Fixed heuristic constants; no randomness, no learned
// parameters.
const (
	// Each disabled rule removes an estimated 12% of alert volume,
	// compounding: N disabled rules scale alerts by 0.88^N.
	disabledRuleAlertFactor = 0.88

	// Each suppressed channel removes an estimated 80% of notification
	// volume, compounding: K suppressed channels scale notifications by
	// 0.2^K. (A per-channel share breakdown is not available from the
	// aggregate source, so suppression applies to the total.)
	suppressedChannelNotificationFactor = 0.20

	// Each unit of min-link-count increase scales incidents by 0.95.
	minLinkIncidentFactor = 0.95

	// Correlation-window changes scale incidents by
	//   1 - 0.05 * sign(delta) * min(|delta|/30, 1)
	// so the effect saturates at 5% once the change reaches a full
	// 30-minute step. Widening reduces incidents; narrowing increases them
	// symmetrically.
	windowStepMinutes   = 30.0
	windowMaxStepEffect = 0.05
)

// Apply runs the reduction model: it scales the baseline counters by the
// composite factors the overrides imply. Deterministic; the baseline is
// read-only and never modified. Counts are rounded half away from zero once
// per metric after all factors for that metric are composed; the risk score
// keeps one decimal place.
//
// Threshold adjustments (RuleThresholdDeltas) deliberately do not change any
// number in model v1: the aggregate source carries no per-rule firing
// counts to scale. They are carried on the run record and called out in the
// summary rather than silently ignored.
func Apply(baseline BaselineMetrics, o Overrides) SimulatedMetrics {
	alertFactor := math.Pow(disabledRuleAlertFactor, float64(len(o.DisabledRules)))
	notificationFactor := math.Pow(suppressedChannelNotificationFactor, float64(len(o.SuppressedChannels)))

	incidentFactor := 1.0
	if o.MinLinkCountDelta > 0 {
		incidentFactor *= math.Pow(minLinkIncidentFactor, float64(o.MinLinkCountDelta))
	}
	if d := o.CorrelationWindowMinutesDelta; d != 0 {
		sign := 1.0
		if d < 0 {
			sign = -1.0
		}
		saturation := math.Min(math.Abs(float64(d))/windowStepMinutes, 1.0)
		incidentFactor *= 1.0 - windowMaxStepEffect*sign*saturation
	}

	return SimulatedMetrics{
		AlertsTotal: scaleCount(baseline.AlertsTotal, alertFactor),
		AlertsBySeverity: SeverityCounts{
			Critical: scaleCount(baseline.AlertsBySeverity.Critical, alertFactor),
			High:     scaleCount(baseline.AlertsBySeverity.High, alertFactor),
			Medium:   scaleCount(baseline.AlertsBySeverity.Medium, alertFactor),
			Low:      scaleCount(baseline.AlertsBySeverity.Low, alertFactor),
		},
		IncidentsTotal:     scaleCount(baseline.IncidentsTotal, incidentFactor),
		CorrelationsTotal:  baseline.CorrelationsTotal,
		NotificationsTotal: scaleCount(baseline.NotificationsTotal, notificationFactor),

		// Risk tracks alert volume in this model.
		AvgRiskScore: RoundScore(baseline.AvgRiskScore * alertFactor),
	}
}

func scaleCount(n int64, factor float64) int64 {
	scaled := math.Round(float64(n) * factor)
	if scaled < 0 {
		return 0
	}
	return int64(scaled)
}
