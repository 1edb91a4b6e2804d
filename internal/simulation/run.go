package simulation

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a simulation run. Transitions are
// running -> completed or running -> failed, each exactly once; terminal
// records are immutable audit entries.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var (
	// ErrRunNotFound is returned when a run does not exist for the tenant.
	ErrRunNotFound = errors.New("simulation run not found")

	// ErrRunFinalized is returned when a second finalization of the same run
	// is attempted.
	ErrRunFinalized = errors.New("simulation run already finalized")

	// ErrDataUnavailable is returned when the baseline source cannot serve
	// the tenant's aggregates (unreachable store, unresolved tenant, or a
	// timed-out read).
	ErrDataUnavailable = errors.New("baseline data unavailable")
)

// Run is one immutable, auditable execution record of the simulation
// pipeline. Simulated, Delta, Overrides, Effect and Summary are set iff the
// run completed; ErrorMessage is set iff it failed.
type Run struct {
	ID           string            `json:"id"`
	TenantID     string            `json:"tenantId"`
	PlaybookID   string            `json:"playbookId"`
	Status       Status            `json:"status"`
	ModelVersion string            `json:"modelVersion"`
	Baseline     BaselineMetrics   `json:"baselineMetrics"`
	Simulated    *SimulatedMetrics `json:"simulatedMetrics,omitempty"`
	Delta        *DeltaMetrics     `json:"deltaMetrics,omitempty"`
	Overrides    *Overrides        `json:"overrides,omitempty"`
	Effect       Effect            `json:"overallEffect,omitempty"`
	Summary      string            `json:"summary,omitempty"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	StartedAt    time.Time         `json:"startedAt"`
	FinishedAt   *time.Time        `json:"finishedAt,omitempty"`
}
