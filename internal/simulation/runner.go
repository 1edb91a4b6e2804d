package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"remsim/internal/playbook"
)

// PlaybookSource loads playbooks for validation before a run. Implementations
// must return an error matching playbook.ErrNotFound when the playbook does
// not exist for the tenant.
type PlaybookSource interface {
	GetPlaybook(ctx context.Context, tenantID, id string) (*playbook.Playbook, error)
}

// RunLedger is the durable run store. CreateRun inserts a running record;
// FinalizeRun writes the terminal state exactly once and must return an
// error matching ErrRunFinalized if the run is already terminal.
type RunLedger interface {
	CreateRun(ctx context.Context, run *Run) error
	FinalizeRun(ctx context.Context, run *Run) error
}

// BaselineCollector reads a tenant's aggregate counters for a trailing
// window. Failures must match ErrDataUnavailable when the source cannot
// serve the tenant.
type BaselineCollector interface {
	Collect(ctx context.Context, tenantID string, windowDays int) (BaselineMetrics, error)
}

// Publisher is notified after a run reaches a terminal state. Best effort;
// implementations must not block the request path on delivery.
type Publisher interface {
	RunFinalized(ctx context.Context, run *Run)
}

// RunnerConfig bounds the orchestrator's blocking operations.
type RunnerConfig struct {
	DefaultWindowDays int
	MaxWindowDays     int
	BaselineTimeout   time.Duration
	FinalizeTimeout   time.Duration
}

// DefaultRunnerConfig returns the default orchestrator bounds.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		DefaultWindowDays: 30,
		MaxWindowDays:     365,
		BaselineTimeout:   30 * time.Second,
		FinalizeTimeout:   10 * time.Second,
	}
}

// Runner orchestrates the run lifecycle: create -> compute -> finalize. The
// computation is synchronous within the caller's request; there is no job
// queue. Concurrent runs are safe because each invocation creates its own
// run row and shares no mutable state.
type Runner struct {
	playbooks PlaybookSource
	ledger    RunLedger
	collector BaselineCollector
	publisher Publisher // optional
	cfg       RunnerConfig
	logger    *slog.Logger
}

// NewRunner creates a run orchestrator. publisher may be nil.
func NewRunner(playbooks PlaybookSource, ledger RunLedger, collector BaselineCollector, publisher Publisher, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultWindowDays <= 0 {
		cfg.DefaultWindowDays = 30
	}
	if cfg.MaxWindowDays <= 0 {
		cfg.MaxWindowDays = 365
	}
	if cfg.BaselineTimeout <= 0 {
		cfg.BaselineTimeout = 30 * time.Second
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 10 * time.Second
	}
	return &Runner{
		playbooks: playbooks,
		ledger:    ledger,
		collector: collector,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run executes the simulation pipeline for one playbook. windowDays of 0
// means the configured default.
//
// Errors before a run record exists (unknown playbook, invalid config, bad
// window) are returned to the caller and nothing is persisted. Once the
// running record is created, every failure is absorbed into the run's
// terminal state and the failed run is returned with a nil error: the
// request succeeded, the simulation did not.
func (r *Runner) Run(ctx context.Context, tenantID, playbookID string, windowDays int) (run *Run, err error) {
	if windowDays == 0 {
		windowDays = r.cfg.DefaultWindowDays
	}
	if windowDays < 1 || windowDays > r.cfg.MaxWindowDays {
		return nil, &playbook.ValidationError{
			Errors: []string{fmt.Sprintf("windowDays must be between 1 and %d", r.cfg.MaxWindowDays)},
		}
	}

	pb, err := r.playbooks.GetPlaybook(ctx, tenantID, playbookID)
	if err != nil {
		return nil, err
	}

	// Stored configs are re-checked on every run. A playbook that went bad
	// after creation must not produce a run record.
	if errs := playbook.ValidateConfig(pb.Config); len(errs) > 0 {
		return nil, &playbook.ValidationError{Errors: errs}
	}

	now := time.Now().UTC()
	run = &Run{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		PlaybookID:   pb.ID,
		Status:       StatusRunning,
		ModelVersion: ModelVersion,
		Baseline: BaselineMetrics{
			WindowDays: windowDays,
			ComputedAt: now,
		},
		StartedAt: now,
	}
	if err := r.ledger.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	// From here on the run record exists: panics and errors alike must land
	// in a terminal failed state, never bubble to the caller.
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("simulation panicked",
				"run_id", run.ID,
				"playbook_id", run.PlaybookID,
				"panic", rec,
			)
			r.fail(ctx, run, "simulation failed: internal error")
			err = nil
		}
	}()

	bctx, cancel := context.WithTimeout(ctx, r.cfg.BaselineTimeout)
	baseline, cerr := r.collector.Collect(bctx, tenantID, windowDays)
	cancel()
	if cerr != nil {
		r.logger.Warn("baseline collection failed",
			"run_id", run.ID,
			"window_days", windowDays,
			"error", cerr,
		)
		r.fail(ctx, run, "baseline data unavailable for the requested window")
		return run, nil
	}
	run.Baseline = baseline

	// Pure pipeline; nothing is persisted between these steps.
	overrides := BuildOverrides(pb.Config.Actions)
	simulated := Apply(baseline, overrides)
	delta := ComputeDelta(baseline, simulated)
	effect := ClassifyEffect(baseline, simulated)
	summary := Summary(baseline, simulated, delta, effect, overrides)

	run.Simulated = &simulated
	run.Delta = &delta
	run.Overrides = &overrides
	run.Effect = effect
	run.Summary = summary
	run.Status = StatusCompleted
	r.finalize(ctx, run)

	return run, nil
}

// fail moves a run to the failed terminal state with a sanitized message.
// Result fields stay empty on a failed run.
func (r *Runner) fail(ctx context.Context, run *Run, message string) {
	run.Status = StatusFailed
	run.ErrorMessage = message
	run.Simulated = nil
	run.Delta = nil
	run.Overrides = nil
	run.Effect = ""
	run.Summary = ""
	r.finalize(ctx, run)
}

// finalize writes the terminal state in a single write. It runs on a context
// detached from the caller's so a client disconnect mid-computation never
// strands a running record.
func (r *Runner) finalize(ctx context.Context, run *Run) {
	finishedAt := time.Now().UTC()
	run.FinishedAt = &finishedAt

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.FinalizeTimeout)
	defer cancel()

	if err := r.ledger.FinalizeRun(fctx, run); err != nil {
		r.logger.Error("failed to finalize run",
			"run_id", run.ID,
			"status", run.Status,
			"error", err,
		)
		return
	}

	r.logger.Info("simulation run finalized",
		"run_id", run.ID,
		"playbook_id", run.PlaybookID,
		"status", run.Status,
		"effect", run.Effect,
		"duration_ms", finishedAt.Sub(run.StartedAt).Milliseconds(),
	)

	if r.publisher != nil {
		r.publisher.RunFinalized(fctx, run)
	}
}
