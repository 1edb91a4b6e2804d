// Package playbook defines the remediation playbook model and its action DSL.
package playbook

import (
	"encoding/json"
	"fmt"
)

// ActionKind discriminates the action union on the wire.
type ActionKind string

const (
	KindAdjustRuleThreshold         ActionKind = "adjust_rule_threshold"
	KindDisableRule                 ActionKind = "disable_rule"
	KindAdjustCorrelationWindow     ActionKind = "adjust_correlation_window"
	KindIncreaseMinLinkCount        ActionKind = "increase_min_link_count"
	KindSuppressNotificationChannel ActionKind = "suppress_notification_channel"
)

// ThresholdMetric names the rule attribute a threshold adjustment targets.
type ThresholdMetric string

const (
	MetricSeverity   ThresholdMetric = "severity"
	MetricThreshold  ThresholdMetric = "threshold"
	MetricConfidence ThresholdMetric = "confidence"
)

// Channel identifies a notification delivery channel.
type Channel string

const (
	ChannelEmail     Channel = "email"
	ChannelSlack     Channel = "slack"
	ChannelWebhook   Channel = "webhook"
	ChannelPagerduty Channel = "pagerduty"
)

// Action is one tuning step in a remediation playbook. The union is closed:
// the validator and reduction engine switch over the concrete types, so a new
// kind cannot be added without the compiler pointing at every site that must
// handle it.
type Action interface {
	Kind() ActionKind
}

// AdjustRuleThreshold shifts one numeric attribute of a detection rule.
type AdjustRuleThreshold struct {
	RuleID string          `json:"ruleId"`
	Metric ThresholdMetric `json:"metric"`
	Delta  int             `json:"delta"`
}

func (AdjustRuleThreshold) Kind() ActionKind { return KindAdjustRuleThreshold }

// DisableRule turns a detection rule off for the simulated window.
type DisableRule struct {
	RuleID string `json:"ruleId"`
}

func (DisableRule) Kind() ActionKind { return KindDisableRule }

// AdjustCorrelationWindow widens or narrows the incident correlation window.
type AdjustCorrelationWindow struct {
	WindowMinutesDelta int `json:"windowMinutesDelta"`
}

func (AdjustCorrelationWindow) Kind() ActionKind { return KindAdjustCorrelationWindow }

// IncreaseMinLinkCount raises the minimum number of linked alerts required
// to open an incident.
type IncreaseMinLinkCount struct {
	Delta int `json:"delta"`
}

func (IncreaseMinLinkCount) Kind() ActionKind { return KindIncreaseMinLinkCount }

// SuppressNotificationChannel mutes one delivery channel for a bounded time.
type SuppressNotificationChannel struct {
	Channel         Channel `json:"channel"`
	DurationMinutes int     `json:"durationMinutes"`
}

func (SuppressNotificationChannel) Kind() ActionKind { return KindSuppressNotificationChannel }

// MarshalAction encodes an action with its type discriminator.
func MarshalAction(a Action) ([]byte, error) {
	switch v := a.(type) {
	case AdjustRuleThreshold:
		return json.Marshal(struct {
			Type ActionKind `json:"type"`
			AdjustRuleThreshold
		}{v.Kind(), v})
	case DisableRule:
		return json.Marshal(struct {
			Type ActionKind `json:"type"`
			DisableRule
		}{v.Kind(), v})
	case AdjustCorrelationWindow:
		return json.Marshal(struct {
			Type ActionKind `json:"type"`
			AdjustCorrelationWindow
		}{v.Kind(), v})
	case IncreaseMinLinkCount:
		return json.Marshal(struct {
			Type ActionKind `json:"type"`
			IncreaseMinLinkCount
		}{v.Kind(), v})
	case SuppressNotificationChannel:
		return json.Marshal(struct {
			Type ActionKind `json:"type"`
			SuppressNotificationChannel
		}{v.Kind(), v})
	default:
		return nil, fmt.Errorf("unsupported action type %T", a)
	}
}

// UnmarshalAction decodes a single action by its type discriminator.
// Unknown discriminators are an error, never silently skipped.
func UnmarshalAction(data []byte) (Action, error) {
	var head struct {
		Type ActionKind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to parse action: %w", err)
	}

	switch head.Type {
	case KindAdjustRuleThreshold:
		var a AdjustRuleThreshold
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("failed to parse %s action: %w", head.Type, err)
		}
		return a, nil
	case KindDisableRule:
		var a DisableRule
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("failed to parse %s action: %w", head.Type, err)
		}
		return a, nil
	case KindAdjustCorrelationWindow:
		var a AdjustCorrelationWindow
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("failed to parse %s action: %w", head.Type, err)
		}
		return a, nil
	case KindIncreaseMinLinkCount:
		var a IncreaseMinLinkCount
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("failed to parse %s action: %w", head.Type, err)
		}
		return a, nil
	case KindSuppressNotificationChannel:
		var a SuppressNotificationChannel
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("failed to parse %s action: %w", head.Type, err)
		}
		return a, nil
	case "":
		return nil, fmt.Errorf("action type is required")
	default:
		return nil, fmt.Errorf("unknown action type: %s", head.Type)
	}
}
