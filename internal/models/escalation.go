package models

import "fmt"

// EscalationThreshold binds an action to an accumulated point total
type EscalationThreshold struct {
	Points int64        `json:"points" yaml:"points"`
	Action Action       `json:"action" yaml:"action"`
	Params ActionParams `json:"params" yaml:"params"`
}

type EscalationConfig struct {
	GuildID    string                `json:"guild_id" yaml:"guild_id"`
	Thresholds []EscalationThreshold `json:"thresholds" yaml:"thresholds"`
}

// Validate enforces strictly increasing positive thresholds bound to punitive actions
func (c *EscalationConfig) Validate() error {
	var prev int64
	for i, t := range c.Thresholds {
		field := fmt.Sprintf("thresholds[%d]", i)
		if t.Points <= 0 {
			return &ValidationError{Field: field, Reason: "points must be positive"}
		}
		if i > 0 && t.Points <= prev {
			return &ValidationError{Field: field, Reason: "thresholds must be strictly increasing"}
		}
		if !t.Action.Escalatable() {
			return &ValidationError{Field: field, Reason: fmt.Sprintf("action %q cannot be used for escalation", t.Action)}
		}
		if t.Action == ActionTimeout && t.Params.TimeoutSeconds <= 0 {
			return &ValidationError{Field: field, Reason: "timeout requires a positive duration"}
		}
		prev = t.Points
	}
	return nil
}

// HighestAtOrBelow returns the largest threshold not exceeding total, or 0
func (c *EscalationConfig) HighestAtOrBelow(total int64) int64 {
	if c == nil {
		return 0
	}
	var best int64
	for _, t := range c.Thresholds {
		if t.Points <= total && t.Points > best {
			best = t.Points
		}
	}
	return best
}

// EscalationAction is emitted when a user crosses a configured threshold
type EscalationAction struct {
	GuildID   string       `json:"guild_id"`
	UserID    string       `json:"user_id"`
	Threshold int64        `json:"threshold"`
	Total     int64        `json:"total"`
	Action    Action       `json:"action"`
	Params    ActionParams `json:"params"`
}
