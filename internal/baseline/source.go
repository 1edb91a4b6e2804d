package baseline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Aggregates are the raw counters one window read returns.
type Aggregates struct {
	AlertsTotal        int64
	AlertsCritical     int64
	AlertsHigh         int64
	AlertsMedium       int64
	AlertsLow          int64
	IncidentsTotal     int64
	CorrelationsTotal  int64
	NotificationsTotal int64
	AvgRiskScore       float64
}

// Source serves tenant-scoped aggregate reads from the monitoring store.
type Source interface {
	// TenantExists reports whether the tenant can be resolved at all.
	TenantExists(ctx context.Context, tenantID string) (bool, error)

	// Aggregates returns the counters for events at or after since. A window
	// with no data yields all-zero aggregates, not an error.
	Aggregates(ctx context.Context, tenantID string, since time.Time) (Aggregates, error)
}

// ClickHouseSource reads aggregates from the monitoring ClickHouse tables.
type ClickHouseSource struct {
	client *ClickHouseClient
}

// NewClickHouseSource wraps a client as a Source.
func NewClickHouseSource(client *ClickHouseClient) *ClickHouseSource {
	return &ClickHouseSource{client: client}
}

// TenantExists resolves the tenant against the platform's tenant dimension.
func (s *ClickHouseSource) TenantExists(ctx context.Context, tenantID string) (bool, error) {
	var count uint64
	row := s.client.conn.QueryRow(ctx,
		`SELECT count() FROM tenants WHERE tenant_id = ?`, tenantID)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("resolve tenant: %w", err)
	}
	return count > 0, nil
}

// Aggregates runs one aggregate scan per monitoring table. All queries are
// counts and averages over pre-aggregated rows; no event payloads leave the
// store.
func (s *ClickHouseSource) Aggregates(ctx context.Context, tenantID string, since time.Time) (Aggregates, error) {
	var agg Aggregates

	var (
		total, critical, high, medium, low uint64
		avgRisk                            float64
	)
	row := s.client.conn.QueryRow(ctx, `
		SELECT
			count() AS total,
			countIf(severity = 'critical') AS critical,
			countIf(severity = 'high') AS high,
			countIf(severity = 'medium') AS medium,
			countIf(severity = 'low') AS low,
			avgOrDefault(risk_score) AS avg_risk
		FROM alerts
		WHERE tenant_id = ? AND created_at >= ?`,
		tenantID, since)
	if err := row.Scan(&total, &critical, &high, &medium, &low, &avgRisk); err != nil {
		return agg, fmt.Errorf("alert aggregates: %w", err)
	}
	agg.AlertsTotal = int64(total)
	agg.AlertsCritical = int64(critical)
	agg.AlertsHigh = int64(high)
	agg.AlertsMedium = int64(medium)
	agg.AlertsLow = int64(low)
	agg.AvgRiskScore = avgRisk

	for _, q := range []struct {
		table string
		dest  *int64
	}{
		{"incidents", &agg.IncidentsTotal},
		{"correlations", &agg.CorrelationsTotal},
		{"notifications", &agg.NotificationsTotal},
	} {
		var count uint64
		row := s.client.conn.QueryRow(ctx,
			fmt.Sprintf(`SELECT count() FROM %s WHERE tenant_id = ? AND created_at >= ?`, q.table),
			tenantID, since)
		if err := row.Scan(&count); err != nil {
			return agg, fmt.Errorf("%s aggregates: %w", q.table, err)
		}
		*q.dest = int64(count)
	}

	return agg, nil
}

// Unavailable is the Source used when no monitoring backend is configured
// (development without ClickHouse). Every read fails, which the collector
// surfaces as data-unavailable, so runs finalize as failed instead of
// fabricating numbers.
type Unavailable struct{}

func (Unavailable) TenantExists(ctx context.Context, tenantID string) (bool, error) {
	return false, errors.New("no baseline metrics source configured")
}

func (Unavailable) Aggregates(ctx context.Context, tenantID string, since time.Time) (Aggregates, error) {
	return Aggregates{}, errors.New("no baseline metrics source configured")
}
