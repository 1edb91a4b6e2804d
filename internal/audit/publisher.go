// Package audit publishes run lifecycle events to Kafka for downstream
// audit trails. Delivery is best effort: a broker outage never fails a
// simulation run.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"remsim/internal/simulation"
)

// Config holds the audit publisher settings.
type Config struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	RequiredAcks int           `yaml:"required_acks"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultConfig returns the default audit settings.
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		Brokers:      []string{"localhost:9092"},
		Topic:        "remsim.runs.finalized",
		RequiredAcks: 1,
		BatchTimeout: 100 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}
}

// Validate checks the publisher settings.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Brokers) == 0 {
		return fmt.Errorf("audit: at least one broker is required")
	}
	if c.Topic == "" {
		return fmt.Errorf("audit: topic is required")
	}
	return nil
}

// runFinalizedEvent is the wire shape of one audit record.
type runFinalizedEvent struct {
	RunID        string    `json:"runId"`
	TenantID     string    `json:"tenantId"`
	PlaybookID   string    `json:"playbookId"`
	Status       string    `json:"status"`
	ModelVersion string    `json:"modelVersion"`
	Effect       string    `json:"overallEffect,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	WindowDays   int       `json:"windowDays"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
}

// Publisher writes run-finalized events to a Kafka topic. It implements
// simulation.Publisher.
type Publisher struct {
	writer *kafka.Writer
	topic  string
	logger *slog.Logger
	closed atomic.Bool

	published atomic.Int64
	dropped   atomic.Int64
}

// NewPublisher creates the audit publisher. The connection is lazy; a
// broker that is down at startup only surfaces on the first publish.
func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), "component", "audit-writer")
		}),
	}

	logger.Info("audit publisher initialized",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
	)

	return &Publisher{
		writer: writer,
		topic:  cfg.Topic,
		logger: logger,
	}, nil
}

// RunFinalized publishes one audit record for a terminal run. Failures are
// logged and counted, never returned: the run is already durable in the
// ledger and the audit stream is a secondary record.
func (p *Publisher) RunFinalized(ctx context.Context, run *simulation.Run) {
	if p.closed.Load() {
		return
	}

	event := runFinalizedEvent{
		RunID:        run.ID,
		TenantID:     run.TenantID,
		PlaybookID:   run.PlaybookID,
		Status:       string(run.Status),
		ModelVersion: run.ModelVersion,
		Effect:       string(run.Effect),
		ErrorMessage: run.ErrorMessage,
		WindowDays:   run.Baseline.WindowDays,
		StartedAt:    run.StartedAt,
	}
	if run.FinishedAt != nil {
		event.FinishedAt = *run.FinishedAt
	}

	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to encode audit event", "run_id", run.ID, "error", err)
		return
	}

	msg := kafka.Message{
		// Key by tenant so one tenant's audit trail stays ordered.
		Key:   []byte(run.TenantID),
		Value: value,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.dropped.Add(1)
		p.logger.Warn("failed to publish audit event",
			"run_id", run.ID,
			"topic", p.topic,
			"error", err,
		)
		return
	}

	p.published.Add(1)
	p.logger.Debug("published audit event", "run_id", run.ID, "status", event.Status)
}

// Stats returns publish counters for monitoring.
func (p *Publisher) Stats() (published, dropped int64) {
	return p.published.Load(), p.dropped.Load()
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.logger.Info("closing audit publisher",
		"published", p.published.Load(),
		"dropped", p.dropped.Load(),
	)
	return p.writer.Close()
}
