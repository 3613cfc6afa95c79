package automod

import (
	"fmt"
	"testing"

	"discord-automod/internal/models"
	"discord-automod/internal/presets"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func opt(name string, t discordgo.ApplicationCommandOptionType, v interface{}) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: t, Value: v}
}

func str(name, v string) *discordgo.ApplicationCommandInteractionDataOption {
	return opt(name, discordgo.ApplicationCommandOptionString, v)
}

// integers arrive from the gateway as float64
func num(name string, v float64) *discordgo.ApplicationCommandInteractionDataOption {
	return opt(name, discordgo.ApplicationCommandOptionInteger, v)
}

func TestBuildRule(t *testing.T) {
	opts := optionMap([]*discordgo.ApplicationCommandInteractionDataOption{
		str("name", "  invites "),
		str("target", string(models.TargetLink)),
		str("action", string(models.ActionDelete)),
		str("action2", string(models.ActionWarn)),
		num("priority", 3),
	})

	r, err := BuildRule("g1", opts)
	require.NoError(t, err)
	assert.Equal(t, "invites", r.Name)
	assert.Equal(t, "g1", r.GuildID)
	assert.Equal(t, models.TargetLink, r.Target)
	assert.Equal(t, []models.Action{models.ActionDelete, models.ActionWarn}, r.Actions)
	assert.Equal(t, 3, r.Priority)
	assert.True(t, r.Enabled)
	assert.EqualValues(t, 1, r.WarnPoints, "warn without points defaults to one")
}

func TestBuildRuleDuplicateAction(t *testing.T) {
	opts := optionMap([]*discordgo.ApplicationCommandInteractionDataOption{
		str("name", "x"),
		str("target", string(models.TargetMessageContent)),
		str("action", string(models.ActionKick)),
		str("action2", string(models.ActionKick)),
	})

	r, err := BuildRule("g1", opts)
	require.NoError(t, err)
	assert.Len(t, r.Actions, 1)
}

func TestBuildRuleTimeoutNeedsDuration(t *testing.T) {
	opts := optionMap([]*discordgo.ApplicationCommandInteractionDataOption{
		str("name", "x"),
		str("target", string(models.TargetMessageContent)),
		str("action", string(models.ActionTimeout)),
	})
	_, err := BuildRule("g1", opts)
	assert.Error(t, err)

	opts["timeout_minutes"] = num("timeout_minutes", 10)
	r, err := BuildRule("g1", opts)
	require.NoError(t, err)
	assert.EqualValues(t, 600, r.ActionParams.TimeoutSeconds)
}

func TestWithThreshold(t *testing.T) {
	cfg := &models.EscalationConfig{
		GuildID: "g1",
		Thresholds: []models.EscalationThreshold{
			{Points: 10, Action: models.ActionBan},
		},
	}

	cfg = WithThreshold(cfg, models.EscalationThreshold{Points: 5, Action: models.ActionKick})
	require.Len(t, cfg.Thresholds, 2)
	assert.EqualValues(t, 5, cfg.Thresholds[0].Points)
	assert.EqualValues(t, 10, cfg.Thresholds[1].Points)
	assert.Equal(t, "g1", cfg.GuildID)
	require.NoError(t, cfg.Validate())

	cfg = WithThreshold(cfg, models.EscalationThreshold{
		Points: 5, Action: models.ActionTimeout, Params: models.ActionParams{TimeoutSeconds: 60},
	})
	require.Len(t, cfg.Thresholds, 2)
	assert.Equal(t, models.ActionTimeout, cfg.Thresholds[0].Action)
}

func TestWithoutThreshold(t *testing.T) {
	cfg := &models.EscalationConfig{
		Thresholds: []models.EscalationThreshold{
			{Points: 5, Action: models.ActionKick},
			{Points: 10, Action: models.ActionBan},
		},
	}
	out := WithoutThreshold(cfg, 5)
	require.Len(t, out.Thresholds, 1)
	assert.EqualValues(t, 10, out.Thresholds[0].Points)
	assert.Len(t, cfg.Thresholds, 2, "input is not modified")

	assert.Empty(t, WithoutThreshold(nil, 5).Thresholds)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "not found", describe(fmt.Errorf("rule 4: %w", models.ErrNotFound)))
	assert.Equal(t, models.ErrDuplicateName.Error(), describe(models.ErrDuplicateName))
}

func TestDefinitionsPresetChoices(t *testing.T) {
	catalogue, err := presets.Builtin()
	require.NoError(t, err)

	defs := Definitions(catalogue)
	require.Len(t, defs, 3)

	var install *discordgo.ApplicationCommandOption
	for _, o := range defs[0].Options {
		if o.Name == "install" {
			install = o
		}
	}
	require.NotNil(t, install)
	assert.Len(t, install.Options[0].Choices, len(catalogue.IDs()))
}

func TestActionChoices(t *testing.T) {
	values := func(choices []*discordgo.ApplicationCommandOptionChoice) []interface{} {
		var out []interface{}
		for _, c := range choices {
			assert.NotEmpty(t, c.Name, c.Value)
			out = append(out, c.Value)
		}
		return out
	}

	assert.Len(t, actionChoices, len(models.AllActions))
	assert.Equal(t, []interface{}{"timeout", "kick", "ban"}, values(escalationChoices))
}

func TestHistoryEmbedTruncates(t *testing.T) {
	history := make([]models.Infraction, historyLimit+5)
	for i := range history {
		history[i] = models.Infraction{ID: int64(i + 1), Points: 1, Reason: "spam", Active: true}
	}

	embed := HistoryEmbed("u1", 20, history)
	assert.Len(t, embed.Fields, historyLimit)
	assert.Contains(t, embed.Footer.Text, "5 older")
	assert.Equal(t, ColorWarning, embed.Color)
}
