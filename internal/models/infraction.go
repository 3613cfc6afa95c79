package models

type InfractionSource string

const (
	SourceAutomod InfractionSource = "automod"
	SourceManual  InfractionSource = "manual"
)

// Infraction is an immutable audit record of a point-bearing enforcement event.
// Clearing flips Active, rows are never deleted.
type Infraction struct {
	ID          int64            `json:"id"`
	GuildID     string           `json:"guild_id"`
	UserID      string           `json:"user_id"`
	ModeratorID string           `json:"moderator_id,omitempty"` // empty for system issued
	RuleID      int64            `json:"rule_id,omitempty"`      // 0 for manual
	Points      int64            `json:"points"`
	Reason      string           `json:"reason"`
	Source      InfractionSource `json:"source"`
	CreatedAt   int64            `json:"created_at"`
	Active      bool             `json:"active"`
}
