package simulation

import (
	"strings"
	"testing"

	"remsim/internal/playbook"
)

// TestComputeDelta covers percentage math including the zero-baseline
// convention.
func TestComputeDelta(t *testing.T) {
	baseline := BaselineMetrics{
		AlertsTotal:        1000,
		IncidentsTotal:     50,
		CorrelationsTotal:  0,
		NotificationsTotal: 500,
		AvgRiskScore:       65.5,
	}
	simulated := SimulatedMetrics{
		AlertsTotal:        880,
		IncidentsTotal:     48,
		CorrelationsTotal:  0,
		NotificationsTotal: 100,
		AvgRiskScore:       57.6,
	}

	delta := ComputeDelta(baseline, simulated)

	if delta.Alerts.Absolute != -120 || delta.Alerts.Percent != -12.0 {
		t.Errorf("alerts delta = %+v, want {-120 -12.0}", delta.Alerts)
	}
	if delta.Incidents.Absolute != -2 || delta.Incidents.Percent != -4.0 {
		t.Errorf("incidents delta = %+v, want {-2 -4.0}", delta.Incidents)
	}
	if delta.Notifications.Percent != -80.0 {
		t.Errorf("notifications percent = %.1f, want -80.0", delta.Notifications.Percent)
	}
	if delta.AvgRiskScore.Percent != -12.1 {
		t.Errorf("risk percent = %.1f, want -12.1", delta.AvgRiskScore.Percent)
	}

	// Zero baseline yields zero percent, never a division error.
	if delta.Correlations.Percent != 0 {
		t.Errorf("zero-baseline percent = %.1f, want 0", delta.Correlations.Percent)
	}
}

// TestClassifyEffect walks the classification table: improvements require a
// 10% count drop or 5% risk drop, degradations the reverse, and mixed or
// insignificant signals collapse to neutral.
func TestClassifyEffect(t *testing.T) {
	tests := []struct {
		name      string
		baseline  BaselineMetrics
		simulated SimulatedMetrics
		want      Effect
	}{
		{
			"alert drop alone",
			BaselineMetrics{AlertsTotal: 1000},
			SimulatedMetrics{AlertsTotal: 880},
			EffectPositive,
		},
		{
			"risk drop at threshold",
			BaselineMetrics{AvgRiskScore: 60},
			SimulatedMetrics{AvgRiskScore: 57},
			EffectPositive,
		},
		{
			"alert drop below threshold",
			BaselineMetrics{AlertsTotal: 1000},
			SimulatedMetrics{AlertsTotal: 901},
			EffectNeutral,
		},
		{
			"risk drop below threshold",
			BaselineMetrics{AvgRiskScore: 100},
			SimulatedMetrics{AvgRiskScore: 95.1},
			EffectNeutral,
		},
		{
			"incident rise alone",
			BaselineMetrics{IncidentsTotal: 50},
			SimulatedMetrics{IncidentsTotal: 58},
			EffectNegative,
		},
		{
			"mixed signals",
			BaselineMetrics{AlertsTotal: 1000, IncidentsTotal: 50},
			SimulatedMetrics{AlertsTotal: 800, IncidentsTotal: 56},
			EffectNeutral,
		},
		{
			"no change",
			BaselineMetrics{AlertsTotal: 1000, IncidentsTotal: 50, AvgRiskScore: 65.5},
			SimulatedMetrics{AlertsTotal: 1000, IncidentsTotal: 50, AvgRiskScore: 65.5},
			EffectNeutral,
		},
		{
			"notification drop is informational",
			BaselineMetrics{NotificationsTotal: 500},
			SimulatedMetrics{NotificationsTotal: 100},
			EffectNeutral,
		},
		{
			"all improve",
			BaselineMetrics{AlertsTotal: 1000, IncidentsTotal: 50, AvgRiskScore: 65.5},
			SimulatedMetrics{AlertsTotal: 850, IncidentsTotal: 44, AvgRiskScore: 57.6},
			EffectPositive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyEffect(tt.baseline, tt.simulated); got != tt.want {
				t.Errorf("ClassifyEffect() = %s, want %s", got, tt.want)
			}
		})
	}
}

// TestClassifyEffect_UnroundedThreshold verifies the signal thresholds apply
// to the exact ratio: a -9.96% alert drop displays as -10.0% after rounding
// but must not count as an improvement.
func TestClassifyEffect_UnroundedThreshold(t *testing.T) {
	baseline := BaselineMetrics{AlertsTotal: 2500}
	simulated := SimulatedMetrics{AlertsTotal: 2251} // -9.96%

	delta := ComputeDelta(baseline, simulated)
	if delta.Alerts.Percent != -10.0 {
		t.Fatalf("displayed percent = %.2f, want -10.0", delta.Alerts.Percent)
	}
	if got := ClassifyEffect(baseline, simulated); got != EffectNeutral {
		t.Errorf("ClassifyEffect() = %s, want neutral below the exact 10%% bar", got)
	}
}

// TestSummary verifies the summary is deterministic, names the key numbers,
// and calls out transparent threshold adjustments.
func TestSummary(t *testing.T) {
	baseline := BaselineMetrics{
		AlertsTotal:        1000,
		IncidentsTotal:     50,
		NotificationsTotal: 500,
		AvgRiskScore:       65.5,
		WindowDays:         30,
	}
	o := BuildOverrides([]playbook.Action{
		playbook.DisableRule{RuleID: "r1"},
		playbook.SuppressNotificationChannel{Channel: playbook.ChannelEmail, DurationMinutes: 60},
	})
	simulated := Apply(baseline, o)
	delta := ComputeDelta(baseline, simulated)
	effect := ClassifyEffect(baseline, simulated)

	got := Summary(baseline, simulated, delta, effect, o)

	for _, want := range []string{
		"30-day window",
		"alerts 1000 -> 880 (-12.0%)",
		"notifications 500 -> 100 (-80.0%)",
		"avg risk score 65.5 -> 57.6",
		"Overall effect: positive.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}

	if strings.Contains(got, "threshold") {
		t.Errorf("summary mentions thresholds without threshold actions:\n%s", got)
	}

	if again := Summary(baseline, simulated, delta, effect, o); again != got {
		t.Error("summary is not deterministic")
	}

	// With a threshold action the transparency sentence appears.
	o2 := BuildOverrides([]playbook.Action{
		playbook.AdjustRuleThreshold{RuleID: "r1", Metric: playbook.MetricSeverity, Delta: 10},
	})
	sim2 := Apply(baseline, o2)
	delta2 := ComputeDelta(baseline, sim2)
	got2 := Summary(baseline, sim2, delta2, ClassifyEffect(baseline, sim2), o2)
	if !strings.Contains(got2, "threshold adjustment(s) recorded for transparency") {
		t.Errorf("summary missing threshold transparency note:\n%s", got2)
	}
}
