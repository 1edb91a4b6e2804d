package playbook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a playbook does not exist for the tenant.
var ErrNotFound = errors.New("playbook not found")

// ErrDuplicateName is returned when a tenant already has a playbook with the
// same name.
var ErrDuplicateName = errors.New("playbook name already in use")

// Playbook is a named, tenant-owned list of remediation actions evaluated
// hypothetically by the simulation engine.
type Playbook struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	IsActive    bool      `json:"isActive"`
	Config      Config    `json:"config"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Config holds the playbook's action list.
type Config struct {
	Actions []Action
	Notes   string
}

// configEnvelope is the wire shape of Config; actions carry a type
// discriminator handled by MarshalAction/UnmarshalAction.
type configEnvelope struct {
	Actions []json.RawMessage `json:"actions"`
	Notes   string            `json:"notes,omitempty"`
}

// MarshalJSON encodes the config with per-action type discriminators.
func (c Config) MarshalJSON() ([]byte, error) {
	env := configEnvelope{
		Actions: make([]json.RawMessage, 0, len(c.Actions)),
		Notes:   c.Notes,
	}
	for i, a := range c.Actions {
		raw, err := MarshalAction(a)
		if err != nil {
			return nil, fmt.Errorf("actions[%d]: %w", i, err)
		}
		env.Actions = append(env.Actions, raw)
	}
	return json.Marshal(env)
}

// UnmarshalJSON decodes the config, rejecting actions with an unknown or
// missing type discriminator.
func (c *Config) UnmarshalJSON(data []byte) error {
	var env configEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	actions := make([]Action, 0, len(env.Actions))
	for i, raw := range env.Actions {
		a, err := UnmarshalAction(raw)
		if err != nil {
			return fmt.Errorf("actions[%d]: %w", i, err)
		}
		actions = append(actions, a)
	}

	c.Actions = actions
	c.Notes = env.Notes
	return nil
}

// ValidationError carries the itemized reasons a playbook config or request
// was rejected.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}
