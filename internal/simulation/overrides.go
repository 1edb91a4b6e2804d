package simulation

import (
	"encoding/json"
	"sort"

	"remsim/internal/playbook"
)

// Overrides is the in-memory folded form of a playbook's action list. Built
// fresh for each run and discarded after use; only its JSON projection is
// persisted, on the run record, for transparency.
type Overrides struct {
	// DisabledRules is the set of rule IDs turned off by the playbook.
	DisabledRules map[string]bool

	// RuleThresholdDeltas accumulates threshold adjustments per rule and
	// metric. Recorded for transparency only; see Apply.
	RuleThresholdDeltas map[string]map[playbook.ThresholdMetric]int

	// SuppressedChannels maps each muted channel to its suppression duration
	// in minutes. When a channel is suppressed more than once the longest
	// duration wins.
	SuppressedChannels map[playbook.Channel]int

	MinLinkCountDelta             int
	CorrelationWindowMinutesDelta int
}

// BuildOverrides folds a validated action list into a single Overrides
// value. Pure: no I/O, and the result is independent of action order.
// Accumulation policies: rule disables have set semantics, channel
// suppressions keep the longest duration, link-count and window deltas sum,
// threshold deltas sum per (rule, metric).
func BuildOverrides(actions []playbook.Action) Overrides {
	o := Overrides{
		DisabledRules:       make(map[string]bool),
		RuleThresholdDeltas: make(map[string]map[playbook.ThresholdMetric]int),
		SuppressedChannels:  make(map[playbook.Channel]int),
	}

	for _, a := range actions {
		switch v := a.(type) {
		case playbook.DisableRule:
			o.DisabledRules[v.RuleID] = true
		case playbook.AdjustRuleThreshold:
			deltas := o.RuleThresholdDeltas[v.RuleID]
			if deltas == nil {
				deltas = make(map[playbook.ThresholdMetric]int)
				o.RuleThresholdDeltas[v.RuleID] = deltas
			}
			deltas[v.Metric] += v.Delta
		case playbook.SuppressNotificationChannel:
			if v.DurationMinutes > o.SuppressedChannels[v.Channel] {
				o.SuppressedChannels[v.Channel] = v.DurationMinutes
			}
		case playbook.IncreaseMinLinkCount:
			o.MinLinkCountDelta += v.Delta
		case playbook.AdjustCorrelationWindow:
			o.CorrelationWindowMinutesDelta += v.WindowMinutesDelta
		}
	}

	return o
}

// DisabledRuleIDs returns the disabled-rule set as a sorted slice.
func (o Overrides) DisabledRuleIDs() []string {
	ids := make([]string, 0, len(o.DisabledRules))
	for id := range o.DisabledRules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// overridesEnvelope is the persisted wire shape: the disabled-rule set
// serializes as a sorted array so run payloads are byte-stable.
type overridesEnvelope struct {
	DisabledRules                 []string                                    `json:"disabledRules"`
	RuleThresholdDeltas           map[string]map[playbook.ThresholdMetric]int `json:"ruleThresholdDeltas"`
	SuppressedChannels            map[playbook.Channel]int                    `json:"suppressedChannels"`
	MinLinkCountDelta             int                                         `json:"minLinkCountDelta"`
	CorrelationWindowMinutesDelta int                                         `json:"correlationWindowMinutesDelta"`
}

func (o Overrides) MarshalJSON() ([]byte, error) {
	return json.Marshal(overridesEnvelope{
		DisabledRules:                 o.DisabledRuleIDs(),
		RuleThresholdDeltas:           o.RuleThresholdDeltas,
		SuppressedChannels:            o.SuppressedChannels,
		MinLinkCountDelta:             o.MinLinkCountDelta,
		CorrelationWindowMinutesDelta: o.CorrelationWindowMinutesDelta,
	})
}

func (o *Overrides) UnmarshalJSON(data []byte) error {
	var env overridesEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	o.DisabledRules = make(map[string]bool, len(env.DisabledRules))
	for _, id := range env.DisabledRules {
		o.DisabledRules[id] = true
	}
	o.RuleThresholdDeltas = env.RuleThresholdDeltas
	if o.RuleThresholdDeltas == nil {
		o.RuleThresholdDeltas = make(map[string]map[playbook.ThresholdMetric]int)
	}
	o.SuppressedChannels = env.SuppressedChannels
	if o.SuppressedChannels == nil {
		o.SuppressedChannels = make(map[playbook.Channel]int)
	}
	o.MinLinkCountDelta = env.MinLinkCountDelta
	o.CorrelationWindowMinutesDelta = env.CorrelationWindowMinutesDelta
	return nil
}
