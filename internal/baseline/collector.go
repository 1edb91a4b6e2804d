package baseline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"remsim/internal/simulation"
)

// Collector produces BaselineMetrics snapshots from a Source, optionally
// fronted by a Redis snapshot cache. It implements
// simulation.BaselineCollector.
type Collector struct {
	source Source
	cache  *SnapshotCache // optional
	logger *slog.Logger
}

// NewCollector creates a collector. cache may be nil.
func NewCollector(source Source, cache *SnapshotCache, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{source: source, cache: cache, logger: logger}
}

// Collect reads the tenant's aggregate counters for the trailing windowDays.
// An unresolvable tenant or an unreachable/timed-out source fails fast with
// an error matching simulation.ErrDataUnavailable. An empty window is not an
// error: it yields all-zero counts and a zero risk score.
func (c *Collector) Collect(ctx context.Context, tenantID string, windowDays int) (simulation.BaselineMetrics, error) {
	if c.cache != nil {
		if metrics, ok := c.cache.Get(ctx, tenantID, windowDays); ok {
			return metrics, nil
		}
	}

	exists, err := c.source.TenantExists(ctx, tenantID)
	if err != nil {
		return simulation.BaselineMetrics{}, fmt.Errorf("%w: %v", simulation.ErrDataUnavailable, err)
	}
	if !exists {
		return simulation.BaselineMetrics{}, fmt.Errorf("%w: unknown tenant", simulation.ErrDataUnavailable)
	}

	now := time.Now().UTC()
	since := now.AddDate(0, 0, -windowDays)

	agg, err := c.source.Aggregates(ctx, tenantID, since)
	if err != nil {
		return simulation.BaselineMetrics{}, fmt.Errorf("%w: %v", simulation.ErrDataUnavailable, err)
	}

	metrics := simulation.BaselineMetrics{
		AlertsTotal: agg.AlertsTotal,
		AlertsBySeverity: simulation.SeverityCounts{
			Critical: agg.AlertsCritical,
			High:     agg.AlertsHigh,
			Medium:   agg.AlertsMedium,
			Low:      agg.AlertsLow,
		},
		IncidentsTotal:     agg.IncidentsTotal,
		CorrelationsTotal:  agg.CorrelationsTotal,
		NotificationsTotal: agg.NotificationsTotal,
		AvgRiskScore:       simulation.RoundScore(agg.AvgRiskScore),
		WindowDays:         windowDays,
		ComputedAt:         now,
	}

	if c.cache != nil {
		c.cache.Put(ctx, tenantID, windowDays, metrics)
	}

	return metrics, nil
}
