package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"remsim/internal/simulation"
)

// RunLister is the ledger surface the archiver needs.
type RunLister interface {
	ListArchivable(ctx context.Context, before time.Time, limit int) ([]*simulation.Run, error)
	MarkArchived(ctx context.Context, ids []string, at time.Time) error
}

// ObjectStore uploads archived run objects.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// Config holds the archiver settings.
type Config struct {
	Enabled   bool          `yaml:"enabled"`
	Retention time.Duration `yaml:"retention"`
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
	S3        S3Config      `yaml:"s3"`
}

// DefaultConfig returns the default archiver settings.
func DefaultConfig() Config {
	return Config{
		Enabled:   false,
		Retention: 90 * 24 * time.Hour,
		Interval:  24 * time.Hour,
		BatchSize: 500,
		S3:        DefaultS3Config(),
	}
}

// Validate checks the archiver settings.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Retention <= 0 {
		return fmt.Errorf("archive: retention must be positive")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("archive: interval must be positive")
	}
	return c.S3.Validate()
}

// Archiver periodically uploads terminal runs older than the retention
// window and stamps them archived so the next sweep skips them.
type Archiver struct {
	ledger RunLister
	store  ObjectStore
	cfg    Config
	logger *slog.Logger
	done   chan struct{}
}

// NewArchiver creates the archive sweep loop.
func NewArchiver(ledger RunLister, store ObjectStore, cfg Config, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &Archiver{
		ledger: ledger,
		store:  store,
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start launches the sweep loop. It stops when ctx is cancelled or Stop is
// called.
func (a *Archiver) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(a.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := a.sweep(ctx); err != nil {
					a.logger.Error("archive sweep failed", "error", err)
				}
			case <-ctx.Done():
				return
			case <-a.done:
				return
			}
		}
	}()
}

// Stop halts the sweep loop.
func (a *Archiver) Stop() {
	close(a.done)
}

// sweep archives one batch of runs past the retention window.
func (a *Archiver) sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-a.cfg.Retention)

	runs, err := a.ledger.ListArchivable(ctx, cutoff, a.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list archivable: %w", err)
	}
	if len(runs) == 0 {
		return nil
	}

	archived := make([]string, 0, len(runs))
	for _, run := range runs {
		if err := a.archiveRun(ctx, run); err != nil {
			// Skip and retry next sweep; MarkArchived only covers uploads
			// that succeeded.
			a.logger.Warn("failed to archive run", "run_id", run.ID, "error", err)
			continue
		}
		archived = append(archived, run.ID)
	}

	if len(archived) == 0 {
		return nil
	}
	if err := a.ledger.MarkArchived(ctx, archived, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark archived: %w", err)
	}

	a.logger.Info("archived runs", "count", len(archived), "cutoff", cutoff)
	return nil
}

// archiveRun uploads one run as a gzipped JSON object keyed by finish date
// and run id.
func (a *Archiver) archiveRun(ctx context.Context, run *simulation.Run) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return fmt.Errorf("compress run: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("compress run: %w", err)
	}

	finished := run.StartedAt
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	key := fmt.Sprintf("%s/%s.json.gz", finished.UTC().Format("2006-01-02"), run.ID)

	return a.store.Put(ctx, key, buf.Bytes(), "application/gzip")
}
