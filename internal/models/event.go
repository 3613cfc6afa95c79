package models

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateName = errors.New("a rule with that name already exists")
)

// Scope is the author context a rule's channel and role filters are checked against
type Scope struct {
	GuildID   string   `json:"guild_id"`
	ChannelID string   `json:"channel_id,omitempty"`
	AuthorID  string   `json:"author_id"`
	RoleIDs   []string `json:"role_ids,omitempty"`
}

// ContentEvent is one piece of targeted content extracted from a platform event
type ContentEvent struct {
	Scope
	Target    Target `json:"target"`
	Content   string `json:"content"`
	MessageID string `json:"message_id,omitempty"`
	// Emoji is the API form of a reaction emoji, needed to remove it again
	Emoji string `json:"emoji,omitempty"`
}

type MatchResult struct {
	Rule                 *AutomodRule `json:"rule"`
	MatchedPatternLabels []string     `json:"matched_pattern_labels"`
	Content              string       `json:"content"`
}

// StepTarget carries every identifier an executor needs to replay a step
type StepTarget struct {
	GuildID   string `json:"guild_id"`
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Emoji     string `json:"emoji,omitempty"`
}

type StepParams struct {
	ActionParams
	Points     int64    `json:"points,omitempty"`
	Total      int64    `json:"total,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	DMTemplate string   `json:"dm_template,omitempty"`
	DMEmbed    *DMEmbed `json:"dm_embed,omitempty"`
	Labels     []string `json:"labels,omitempty"`
}

type ActionStep struct {
	Action Action     `json:"action"`
	RuleID int64      `json:"rule_id,omitempty"`
	Rule   string     `json:"rule,omitempty"`
	Params StepParams `json:"params"`
	Target StepTarget `json:"target"`
	// Escalation is set on steps produced by a threshold crossing rather than a rule
	Escalation *EscalationAction `json:"escalation,omitempty"`
}

// Plan is the ordered, self-contained result of evaluating one delivery
type Plan struct {
	GuildID     string        `json:"guild_id"`
	UserID      string        `json:"user_id"`
	Matches     []MatchResult `json:"matches,omitempty"`
	Steps       []ActionStep  `json:"steps"`
	PointsAdded int64         `json:"points_added,omitempty"`
	Total       int64         `json:"total,omitempty"`
	CreatedAt   int64         `json:"created_at"`
}

func (p *Plan) Empty() bool {
	return p == nil || len(p.Steps) == 0
}

type FaultKind string

const (
	FaultPatternTimeout FaultKind = "pattern_timeout"
	FaultPatternInvalid FaultKind = "pattern_invalid"
)

// Fault is a policy-engine problem surfaced to moderators as a log notice
type Fault struct {
	Kind     FaultKind     `json:"kind"`
	GuildID  string        `json:"guild_id"`
	RuleID   int64         `json:"rule_id"`
	RuleName string        `json:"rule_name"`
	Label    string        `json:"label"`
	Elapsed  time.Duration `json:"elapsed"`
	Detail   string        `json:"detail,omitempty"`
}
