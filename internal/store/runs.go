package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"remsim/internal/simulation"
)

// CreateRun inserts a running record. Result columns stay NULL until the run
// is finalized.
func (s *Store) CreateRun(ctx context.Context, run *simulation.Run) error {
	baseline, err := json.Marshal(run.Baseline)
	if err != nil {
		return fmt.Errorf("encode baseline: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO simulation_runs (id, tenant_id, playbook_id, status, model_version, baseline, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.TenantID, run.PlaybookID, string(run.Status),
		run.ModelVersion, string(baseline), toMillis(run.StartedAt))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinalizeRun writes a run's terminal state. The update is guarded on
// status='running' so a run can only be finalized once: a second attempt
// returns simulation.ErrRunFinalized, an unknown id simulation.ErrRunNotFound.
func (s *Store) FinalizeRun(ctx context.Context, run *simulation.Run) error {
	if run.Status != simulation.StatusCompleted && run.Status != simulation.StatusFailed {
		return fmt.Errorf("finalize run: non-terminal status %q", run.Status)
	}
	if run.FinishedAt == nil {
		return errors.New("finalize run: missing finished_at")
	}

	baseline, err := json.Marshal(run.Baseline)
	if err != nil {
		return fmt.Errorf("encode baseline: %w", err)
	}
	simulated, err := marshalNullable(run.Simulated)
	if err != nil {
		return fmt.Errorf("encode simulated: %w", err)
	}
	delta, err := marshalNullable(run.Delta)
	if err != nil {
		return fmt.Errorf("encode delta: %w", err)
	}
	overrides, err := marshalNullable(run.Overrides)
	if err != nil {
		return fmt.Errorf("encode overrides: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE simulation_runs
		SET status = ?, baseline = ?, simulated = ?, delta = ?, overrides = ?,
		    overall_effect = ?, summary = ?, error_message = ?, finished_at = ?
		WHERE id = ? AND tenant_id = ? AND status = 'running'`,
		string(run.Status), string(baseline), simulated, delta, overrides,
		nullString(string(run.Effect)), nullString(run.Summary),
		nullString(run.ErrorMessage), toMillis(*run.FinishedAt),
		run.ID, run.TenantID)
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	if affected == 0 {
		var status string
		err := s.db.QueryRowContext(ctx,
			`SELECT status FROM simulation_runs WHERE id = ? AND tenant_id = ?`,
			run.ID, run.TenantID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return simulation.ErrRunNotFound
		}
		if err != nil {
			return fmt.Errorf("finalize run: %w", err)
		}
		return fmt.Errorf("%w: status %q", simulation.ErrRunFinalized, status)
	}
	return nil
}

// GetRun returns one run scoped to the tenant.
func (s *Store) GetRun(ctx context.Context, tenantID, id string) (*simulation.Run, error) {
	row := s.db.QueryRowContext(ctx, runSelectColumns+`
		FROM simulation_runs
		WHERE tenant_id = ? AND id = ?`,
		tenantID, id)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, simulation.ErrRunNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns a tenant's runs newest first, with id as a stable
// tiebreaker for runs started in the same millisecond.
func (s *Store) ListRuns(ctx context.Context, tenantID string, limit, offset int) ([]*simulation.Run, error) {
	rows, err := s.db.QueryContext(ctx, runSelectColumns+`
		FROM simulation_runs
		WHERE tenant_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// ListRunsByPlaybook returns a tenant's runs for one playbook, newest first.
func (s *Store) ListRunsByPlaybook(ctx context.Context, tenantID, playbookID string, limit, offset int) ([]*simulation.Run, error) {
	rows, err := s.db.QueryContext(ctx, runSelectColumns+`
		FROM simulation_runs
		WHERE tenant_id = ? AND playbook_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		tenantID, playbookID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs by playbook: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// MarkStaleRuns fails every run still marked running that started before the
// cutoff. Covers process crashes between create and finalize.
func (s *Store) MarkStaleRuns(ctx context.Context, startedBefore time.Time) (int64, error) {
	now := toMillis(time.Now().UTC())
	result, err := s.db.ExecContext(ctx, `
		UPDATE simulation_runs
		SET status = 'failed', error_message = 'timeout', finished_at = ?
		WHERE status = 'running' AND started_at < ?`,
		now, toMillis(startedBefore))
	if err != nil {
		return 0, fmt.Errorf("mark stale runs: %w", err)
	}
	return result.RowsAffected()
}

// ListArchivable returns terminal, not yet archived runs that finished before
// the cutoff, oldest first.
func (s *Store) ListArchivable(ctx context.Context, before time.Time, limit int) ([]*simulation.Run, error) {
	rows, err := s.db.QueryContext(ctx, runSelectColumns+`
		FROM simulation_runs
		WHERE status != 'running' AND archived_at IS NULL AND finished_at < ?
		ORDER BY finished_at ASC, id ASC
		LIMIT ?`,
		toMillis(before), limit)
	if err != nil {
		return nil, fmt.Errorf("list archivable runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// MarkArchived stamps the archival time on the given runs.
func (s *Store) MarkArchived(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mark archived: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE simulation_runs SET archived_at = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("mark archived: %w", err)
	}
	defer stmt.Close()

	millis := toMillis(at)
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, millis, id); err != nil {
			return fmt.Errorf("mark archived %s: %w", id, err)
		}
	}
	return tx.Commit()
}

const runSelectColumns = `
		SELECT id, tenant_id, playbook_id, status, model_version, baseline,
		       simulated, delta, overrides, overall_effect, summary,
		       error_message, started_at, finished_at`

func scanRun(row rowScanner) (*simulation.Run, error) {
	var (
		run        simulation.Run
		status     string
		baseline   string
		simulated  sql.NullString
		delta      sql.NullString
		overrides  sql.NullString
		effect     sql.NullString
		summary    sql.NullString
		errMessage sql.NullString
		startedAt  int64
		finishedAt sql.NullInt64
	)
	if err := row.Scan(&run.ID, &run.TenantID, &run.PlaybookID, &status,
		&run.ModelVersion, &baseline, &simulated, &delta, &overrides,
		&effect, &summary, &errMessage, &startedAt, &finishedAt); err != nil {
		return nil, err
	}

	run.Status = simulation.Status(status)
	if err := json.Unmarshal([]byte(baseline), &run.Baseline); err != nil {
		return nil, fmt.Errorf("decode baseline: %w", err)
	}
	if err := unmarshalNullable(simulated, &run.Simulated); err != nil {
		return nil, fmt.Errorf("decode simulated: %w", err)
	}
	if err := unmarshalNullable(delta, &run.Delta); err != nil {
		return nil, fmt.Errorf("decode delta: %w", err)
	}
	if err := unmarshalNullable(overrides, &run.Overrides); err != nil {
		return nil, fmt.Errorf("decode overrides: %w", err)
	}
	run.Effect = simulation.Effect(effect.String)
	run.Summary = summary.String
	run.ErrorMessage = errMessage.String
	run.StartedAt = fromMillis(startedAt)
	if finishedAt.Valid {
		t := fromMillis(finishedAt.Int64)
		run.FinishedAt = &t
	}
	return &run, nil
}

func collectRuns(rows *sql.Rows) ([]*simulation.Run, error) {
	runs := make([]*simulation.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func marshalNullable[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalNullable[T any](src sql.NullString, dst **T) error {
	if !src.Valid || src.String == "" {
		return nil
	}
	v := new(T)
	if err := json.Unmarshal([]byte(src.String), v); err != nil {
		return err
	}
	*dst = v
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
