package playbook

import "fmt"

// Parameter bounds for each action kind. A value outside its range is
// rejected, never clamped.
const (
	MaxActions = 20

	minThresholdDelta = -50
	maxThresholdDelta = 50

	minWindowDelta = -30
	maxWindowDelta = 120

	minLinkCountDelta = 1
	maxLinkCountDelta = 5

	minSuppressMinutes = 15
	maxSuppressMinutes = 1440
)

// ValidateAction checks a single action independently of the rest of the
// playbook. It is pure: the same action always yields the same errors. An
// empty result means the action is valid.
func ValidateAction(a Action) []string {
	var errs []string

	switch v := a.(type) {
	case AdjustRuleThreshold:
		if v.RuleID == "" {
			errs = append(errs, "adjust_rule_threshold: ruleId is required")
		}
		switch v.Metric {
		case MetricSeverity, MetricThreshold, MetricConfidence:
		default:
			errs = append(errs, fmt.Sprintf("adjust_rule_threshold: metric must be one of severity, threshold, confidence (got %q)", v.Metric))
		}
		if v.Delta < minThresholdDelta || v.Delta > maxThresholdDelta {
			errs = append(errs, fmt.Sprintf("adjust_rule_threshold: delta must be between %d and %d (got %d)", minThresholdDelta, maxThresholdDelta, v.Delta))
		}
	case DisableRule:
		if v.RuleID == "" {
			errs = append(errs, "disable_rule: ruleId is required")
		}
	case AdjustCorrelationWindow:
		if v.WindowMinutesDelta < minWindowDelta || v.WindowMinutesDelta > maxWindowDelta {
			errs = append(errs, fmt.Sprintf("adjust_correlation_window: windowMinutesDelta must be between %d and %d (got %d)", minWindowDelta, maxWindowDelta, v.WindowMinutesDelta))
		}
	case IncreaseMinLinkCount:
		if v.Delta < minLinkCountDelta || v.Delta > maxLinkCountDelta {
			errs = append(errs, fmt.Sprintf("increase_min_link_count: delta must be between %d and %d (got %d)", minLinkCountDelta, maxLinkCountDelta, v.Delta))
		}
	case SuppressNotificationChannel:
		switch v.Channel {
		case ChannelEmail, ChannelSlack, ChannelWebhook, ChannelPagerduty:
		default:
			errs = append(errs, fmt.Sprintf("suppress_notification_channel: channel must be one of email, slack, webhook, pagerduty (got %q)", v.Channel))
		}
		if v.DurationMinutes < minSuppressMinutes || v.DurationMinutes > maxSuppressMinutes {
			errs = append(errs, fmt.Sprintf("suppress_notification_channel: durationMinutes must be between %d and %d (got %d)", minSuppressMinutes, maxSuppressMinutes, v.DurationMinutes))
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown action type: %s", a.Kind()))
	}

	return errs
}

// ValidateConfig checks the whole playbook config: the action-count bound
// plus every action individually. Errors are keyed by action index so a
// client can point at the offending entry.
func ValidateConfig(cfg Config) []string {
	var errs []string

	if len(cfg.Actions) == 0 || len(cfg.Actions) > MaxActions {
		errs = append(errs, "actions must contain 1-20 entries")
	}

	for i, a := range cfg.Actions {
		for _, e := range ValidateAction(a) {
			errs = append(errs, fmt.Sprintf("actions[%d]: %s", i, e))
		}
	}

	return errs
}

// DescribeAction renders a deterministic human-readable summary of an action.
// Display only; nothing may branch on the returned string.
func DescribeAction(a Action) string {
	switch v := a.(type) {
	case AdjustRuleThreshold:
		return fmt.Sprintf("Adjust %s of rule %s by %+d", v.Metric, v.RuleID, v.Delta)
	case DisableRule:
		return fmt.Sprintf("Disable rule %s", v.RuleID)
	case AdjustCorrelationWindow:
		return fmt.Sprintf("Adjust correlation window by %+d minutes", v.WindowMinutesDelta)
	case IncreaseMinLinkCount:
		return fmt.Sprintf("Increase minimum link count by %d", v.Delta)
	case SuppressNotificationChannel:
		return fmt.Sprintf("Suppress %s notifications for %d minutes", v.Channel, v.DurationMinutes)
	default:
		return fmt.Sprintf("Unknown action (%s)", a.Kind())
	}
}
