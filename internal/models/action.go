package models

// Action is the closed set of enforcement actions a rule or escalation can take.
// Every switch over Action must handle all variants.
type Action string

const (
	ActionDelete         Action = "delete"
	ActionRemoveReaction Action = "remove_reaction"
	ActionWarn           Action = "warn"
	ActionLog            Action = "log"
	ActionTimeout        Action = "timeout"
	ActionKick           Action = "kick"
	ActionBan            Action = "ban"
)

var AllActions = []Action{
	ActionDelete,
	ActionRemoveReaction,
	ActionWarn,
	ActionLog,
	ActionTimeout,
	ActionKick,
	ActionBan,
}

func (a Action) Valid() bool {
	switch a {
	case ActionDelete, ActionRemoveReaction, ActionWarn, ActionLog, ActionTimeout, ActionKick, ActionBan:
		return true
	}
	return false
}

// Rank orders actions inside a plan: content removal first, then warnings,
// then logging, then punishments by increasing severity.
func (a Action) Rank() int {
	switch a {
	case ActionDelete, ActionRemoveReaction:
		return 0
	case ActionWarn:
		return 1
	case ActionLog:
		return 2
	case ActionTimeout:
		return 3
	case ActionKick:
		return 4
	case ActionBan:
		return 5
	}
	return 6
}

// Escalatable reports whether the action may be bound to a point threshold
func (a Action) Escalatable() bool {
	return a == ActionTimeout || a == ActionKick || a == ActionBan
}
