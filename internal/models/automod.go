package models

import (
	"fmt"
	"slices"
)

// Target is the category of content a rule inspects
type Target string

const (
	TargetMessageContent Target = "message_content"
	TargetLink           Target = "link"
	TargetNickname       Target = "nickname"
	TargetMessageEmoji   Target = "message_emoji"
	TargetReactionEmoji  Target = "reaction_emoji"
)

var AllTargets = []Target{
	TargetMessageContent,
	TargetLink,
	TargetNickname,
	TargetMessageEmoji,
	TargetReactionEmoji,
}

func (t Target) Valid() bool {
	return slices.Contains(AllTargets, t)
}

// MatchMode controls whether any or all of a rule's patterns must match
type MatchMode string

const (
	MatchAny MatchMode = "any"
	MatchAll MatchMode = "all"
)

func (m MatchMode) Valid() bool {
	return m == MatchAny || m == MatchAll
}

// Pattern is one independently compiled expression of a rule
type Pattern struct {
	Regex string `json:"regex" yaml:"regex"`
	Flags string `json:"flags,omitempty" yaml:"flags,omitempty"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// DisplayLabel falls back to the raw expression when no label was given
func (p Pattern) DisplayLabel() string {
	if p.Label != "" {
		return p.Label
	}
	return p.Regex
}

// ActionParams holds the tunables of the punitive actions
type ActionParams struct {
	TimeoutSeconds       int64 `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	DeleteMessageSeconds int   `json:"delete_message_seconds,omitempty" yaml:"delete_message_seconds,omitempty"`
}

// DMEmbed is an optional rich notification sent to the offending user
type DMEmbed struct {
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Color       int    `json:"color,omitempty" yaml:"color,omitempty"`
}

type AutomodRule struct {
	ID       int64     `json:"id" yaml:"id"`
	GuildID  string    `json:"guild_id" yaml:"guild_id"`
	Name     string    `json:"name" yaml:"name"`
	Priority int       `json:"priority" yaml:"priority"`
	Enabled  bool      `json:"enabled" yaml:"enabled"`
	Target   Target    `json:"target" yaml:"target"`
	Patterns []Pattern `json:"patterns" yaml:"patterns"`

	MatchMode    MatchMode    `json:"match_mode" yaml:"match_mode"`
	Actions      []Action     `json:"actions" yaml:"actions"`
	WarnPoints   int64        `json:"warn_points" yaml:"warn_points"`
	ActionParams ActionParams `json:"action_params" yaml:"action_params"`

	// Scope filters, exclude always wins over include
	ChannelInclude []string `json:"channel_include,omitempty" yaml:"channel_include,omitempty"`
	ChannelExclude []string `json:"channel_exclude,omitempty" yaml:"channel_exclude,omitempty"`
	RoleInclude    []string `json:"role_include,omitempty" yaml:"role_include,omitempty"`
	RoleExclude    []string `json:"role_exclude,omitempty" yaml:"role_exclude,omitempty"`

	DMTemplate string   `json:"dm_template,omitempty" yaml:"dm_template,omitempty"`
	DMEmbed    *DMEmbed `json:"dm_embed,omitempty" yaml:"dm_embed,omitempty"`

	IsPreset bool   `json:"is_preset" yaml:"is_preset"`
	PresetID string `json:"preset_id,omitempty" yaml:"preset_id,omitempty"`

	CreatedAt int64 `json:"created_at" yaml:"-"`
	UpdatedAt int64 `json:"updated_at" yaml:"-"`
}

// HasAction reports whether the rule carries the given action
func (r *AutomodRule) HasAction(a Action) bool {
	return slices.Contains(r.Actions, a)
}

// Clone returns a deep copy so that callers can mutate it freely
func (r *AutomodRule) Clone() *AutomodRule {
	n := *r
	n.Patterns = slices.Clone(r.Patterns)
	n.Actions = slices.Clone(r.Actions)
	n.ChannelInclude = slices.Clone(r.ChannelInclude)
	n.ChannelExclude = slices.Clone(r.ChannelExclude)
	n.RoleInclude = slices.Clone(r.RoleInclude)
	n.RoleExclude = slices.Clone(r.RoleExclude)
	if r.DMEmbed != nil {
		e := *r.DMEmbed
		n.DMEmbed = &e
	}
	return &n
}

// Validate checks the structural invariants of a rule. Pattern syntax is
// checked separately by the pattern compiler.
func (r *AutomodRule) Validate() error {
	switch {
	case r.GuildID == "":
		return &ValidationError{Field: "guild_id", Reason: "required"}
	case r.Name == "":
		return &ValidationError{Field: "name", Reason: "required"}
	case len(r.Name) > 100:
		return &ValidationError{Field: "name", Reason: "longer than 100 characters"}
	case !r.Target.Valid():
		return &ValidationError{Field: "target", Reason: fmt.Sprintf("unknown target %q", r.Target)}
	case !r.MatchMode.Valid():
		return &ValidationError{Field: "match_mode", Reason: fmt.Sprintf("unknown match mode %q", r.MatchMode)}
	case len(r.Patterns) == 0:
		return &ValidationError{Field: "patterns", Reason: "at least one pattern is required"}
	case len(r.Actions) == 0:
		return &ValidationError{Field: "actions", Reason: "at least one action is required"}
	case r.WarnPoints < 0:
		return &ValidationError{Field: "warn_points", Reason: "must not be negative"}
	case r.ActionParams.TimeoutSeconds < 0:
		return &ValidationError{Field: "action_params.timeout_seconds", Reason: "must not be negative"}
	}

	seen := make(map[Action]bool, len(r.Actions))
	for _, a := range r.Actions {
		if !a.Valid() {
			return &ValidationError{Field: "actions", Reason: fmt.Sprintf("unknown action %q", a)}
		}
		if seen[a] {
			return &ValidationError{Field: "actions", Reason: fmt.Sprintf("duplicate action %q", a)}
		}
		seen[a] = true
	}

	if r.HasAction(ActionRemoveReaction) && r.Target != TargetReactionEmoji {
		return &ValidationError{Field: "actions", Reason: "remove_reaction requires the reaction_emoji target"}
	}
	if r.HasAction(ActionDelete) && r.Target == TargetReactionEmoji {
		return &ValidationError{Field: "actions", Reason: "delete cannot be used on reactions, use remove_reaction"}
	}
	return nil
}

// ValidationError describes a rejected rule or config field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}
