package simulation

import (
	"context"
	"log/slog"
	"time"
)

// StaleRunMarker terminalizes runs stuck in the running state, returning the
// number of runs marked failed.
type StaleRunMarker interface {
	MarkStaleRuns(ctx context.Context, startedBefore time.Time) (int64, error)
}

// SweeperConfig bounds the reconciliation sweep.
type SweeperConfig struct {
	// Ceiling is how long a run may stay running before the sweeper treats
	// it as orphaned by a process crash.
	Ceiling time.Duration

	// Interval between sweeps.
	Interval time.Duration
}

// DefaultSweeperConfig returns the default sweep bounds.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Ceiling:  5 * time.Minute,
		Interval: time.Minute,
	}
}

// Sweeper is the reconciliation loop that guarantees no run stays running
// forever after a hard crash: anything older than the ceiling is marked
// failed with reason "timeout". Under normal operation it finds nothing,
// because finalization runs on a detached server-side context.
type Sweeper struct {
	ledger StaleRunMarker
	cfg    SweeperConfig
	logger *slog.Logger
	stop   chan struct{}
	done   chan struct{}
}

// NewSweeper creates a reconciliation sweeper.
func NewSweeper(ledger StaleRunMarker, cfg SweeperConfig, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = 5 * time.Minute
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Sweeper{
		ledger: ledger,
		cfg:    cfg,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the sweep loop. One immediate sweep runs at startup to
// clean up after a previous crash, then one per interval.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.done)

		s.sweep(ctx)

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sweep(ctx)
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.cfg.Ceiling)

	marked, err := s.ledger.MarkStaleRuns(ctx, cutoff)
	if err != nil {
		s.logger.Error("stale run sweep failed", "error", err)
		return
	}
	if marked > 0 {
		s.logger.Warn("marked stale runs as failed",
			"count", marked,
			"ceiling", s.cfg.Ceiling,
		)
	}
}
