package planner

import (
	"testing"

	"discord-automod/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var target = models.StepTarget{GuildID: "g1", UserID: "u1", ChannelID: "c1", MessageID: "m1"}

func match(id int64, name string, points int64, actions ...models.Action) models.MatchResult {
	return models.MatchResult{
		Rule: &models.AutomodRule{
			ID:         id,
			Name:       name,
			Actions:    actions,
			WarnPoints: points,
		},
		MatchedPatternLabels: []string{name + "-label"},
	}
}

func actionsOf(steps []models.ActionStep) []models.Action {
	out := make([]models.Action, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.Action)
	}
	return out
}

func TestPlanOrdersByRank(t *testing.T) {
	steps := Plan([]models.MatchResult{
		match(1, "a", 1, models.ActionBan, models.ActionLog, models.ActionDelete, models.ActionWarn),
		match(2, "b", 0, models.ActionKick, models.ActionTimeout),
	}, target)

	assert.Equal(t, []models.Action{
		models.ActionDelete,
		models.ActionWarn,
		models.ActionLog,
		models.ActionTimeout,
		models.ActionKick,
		models.ActionBan,
	}, actionsOf(steps))
}

func TestPlanWarnIsAdditive(t *testing.T) {
	steps := Plan([]models.MatchResult{
		match(1, "a", 2, models.ActionWarn),
		match(2, "b", 3, models.ActionWarn),
	}, target)

	require.Len(t, steps, 2)
	assert.Equal(t, int64(1), steps[0].RuleID)
	assert.Equal(t, int64(2), steps[1].RuleID)
	assert.Equal(t, int64(2), steps[0].Params.Points)
	assert.Equal(t, int64(3), steps[1].Params.Points)
}

func TestPlanDeduplicatesDelete(t *testing.T) {
	steps := Plan([]models.MatchResult{
		match(1, "a", 0, models.ActionDelete, models.ActionLog),
		match(2, "b", 0, models.ActionDelete, models.ActionLog),
	}, target)

	assert.Equal(t, []models.Action{models.ActionDelete, models.ActionLog, models.ActionLog}, actionsOf(steps))
	assert.Equal(t, int64(1), steps[0].RuleID)
}

func TestPlanLongestTimeoutWins(t *testing.T) {
	short := match(1, "short", 0, models.ActionTimeout)
	short.Rule.ActionParams.TimeoutSeconds = 60
	long := match(2, "long", 0, models.ActionTimeout)
	long.Rule.ActionParams.TimeoutSeconds = 3600

	steps := Plan([]models.MatchResult{short, long}, target)
	require.Len(t, steps, 1)
	assert.Equal(t, int64(3600), steps[0].Params.TimeoutSeconds)
	assert.Equal(t, int64(2), steps[0].RuleID)
}

func TestPlanCarriesTargetAndReason(t *testing.T) {
	m := match(9, "phishing-links", 0, models.ActionDelete)
	m.MatchedPatternLabels = []string{"free nitro"}

	steps := Plan([]models.MatchResult{m}, target)
	require.Len(t, steps, 1)
	assert.Equal(t, target, steps[0].Target)
	assert.Equal(t, "Triggered rule: phishing-links (`free nitro`)", steps[0].Params.Reason)
}

func TestPlanEmpty(t *testing.T) {
	assert.Empty(t, Plan(nil, target))
}
