package automod

import (
	"discord-automod/internal/models"
	"discord-automod/internal/presets"

	"github.com/bwmarrin/discordgo"
)

var (
	adminPerms     = int64(discordgo.PermissionManageServer)
	moderatorPerms = int64(discordgo.PermissionModerateMembers)
)

var targetChoices = []*discordgo.ApplicationCommandOptionChoice{
	{Name: "Message content", Value: string(models.TargetMessageContent)},
	{Name: "Links", Value: string(models.TargetLink)},
	{Name: "Nicknames", Value: string(models.TargetNickname)},
	{Name: "Message emoji", Value: string(models.TargetMessageEmoji)},
	{Name: "Reaction emoji", Value: string(models.TargetReactionEmoji)},
}

var actionLabels = map[models.Action]string{
	models.ActionDelete:         "Delete message",
	models.ActionRemoveReaction: "Remove reaction",
	models.ActionWarn:           "Warn (add points)",
	models.ActionLog:            "Log only",
	models.ActionTimeout:        "Timeout",
	models.ActionKick:           "Kick",
	models.ActionBan:            "Ban",
}

var (
	actionChoices     = choicesFor(models.Action.Valid)
	escalationChoices = choicesFor(models.Action.Escalatable)
)

// choicesFor lists the actions accepted by keep, in plan order
func choicesFor(keep func(models.Action) bool) []*discordgo.ApplicationCommandOptionChoice {
	var out []*discordgo.ApplicationCommandOptionChoice
	for _, a := range models.AllActions {
		if keep(a) {
			out = append(out, &discordgo.ApplicationCommandOptionChoice{Name: actionLabels[a], Value: string(a)})
		}
	}
	return out
}

func ruleIDOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        "rule",
		Description: "Rule ID, see /automod status",
		Required:    true,
	}
}

func ruleOptions(patternName, patternDescription string) []*discordgo.ApplicationCommandOption {
	minPoints := float64(0)
	return []*discordgo.ApplicationCommandOption{
		{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "Unique rule name", Required: true, MaxLength: 100},
		{Type: discordgo.ApplicationCommandOptionString, Name: "target", Description: "What the rule inspects", Required: true, Choices: targetChoices},
		{Type: discordgo.ApplicationCommandOptionString, Name: patternName, Description: patternDescription, Required: true},
		{Type: discordgo.ApplicationCommandOptionString, Name: "action", Description: "Primary action", Required: true, Choices: actionChoices},
		{Type: discordgo.ApplicationCommandOptionString, Name: "action2", Description: "Additional action", Choices: actionChoices},
		{Type: discordgo.ApplicationCommandOptionInteger, Name: "points", Description: "Points added by warn", MinValue: &minPoints},
		{Type: discordgo.ApplicationCommandOptionInteger, Name: "timeout_minutes", Description: "Duration for the timeout action"},
		{Type: discordgo.ApplicationCommandOptionInteger, Name: "priority", Description: "Lower runs first"},
	}
}

// Definitions builds the slash commands. Preset choices come from the catalogue.
func Definitions(catalogue *presets.Catalogue) []*discordgo.ApplicationCommand {
	var presetChoices []*discordgo.ApplicationCommandOptionChoice
	for _, p := range catalogue.List() {
		presetChoices = append(presetChoices, &discordgo.ApplicationCommandOptionChoice{Name: p.Name, Value: p.ID})
	}

	wildcard := ruleOptions("expression", "Comma separated words, * matches anything")
	wildcard = append(wildcard, &discordgo.ApplicationCommandOption{
		Type: discordgo.ApplicationCommandOptionBoolean, Name: "allow_partial", Description: "Save even if some words are invalid",
	})
	regex := ruleOptions("pattern", "Regular expression")
	regex = append(regex,
		&discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: "flags", Description: "Flags such as i, m, s"},
		&discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: "label", Description: "Name shown in logs"},
	)

	minPoints := float64(1)
	return []*discordgo.ApplicationCommand{
		{
			Name:        "automod",
			Description: "Configure automatic moderation",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "status", Description: "Show rules and escalation"},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "presets", Description: "List the built-in presets"},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "install", Description: "Install a preset",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "preset", Description: "Preset", Required: true, Choices: presetChoices},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "uninstall", Description: "Remove every rule installed from a preset",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "preset", Description: "Preset", Required: true, Choices: presetChoices},
					},
				},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "add-wildcard", Description: "Add a rule from a word list", Options: wildcard},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "add-regex", Description: "Add a rule from a regular expression", Options: regex},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "enable", Description: "Enable a rule", Options: []*discordgo.ApplicationCommandOption{ruleIDOption()}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "disable", Description: "Disable a rule", Options: []*discordgo.ApplicationCommandOption{ruleIDOption()}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "delete", Description: "Delete a rule", Options: []*discordgo.ApplicationCommandOption{ruleIDOption()}},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "escalation", Description: "Bind a punishment to a point total",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "points", Description: "Point threshold", Required: true, MinValue: &minPoints},
						{Type: discordgo.ApplicationCommandOptionString, Name: "action", Description: "Punishment", Required: true, Choices: escalationChoices},
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "timeout_minutes", Description: "Duration for timeout"},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "escalation-remove", Description: "Remove a threshold",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "points", Description: "Point threshold", Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "logchannel", Description: "Set the moderation log channel",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionChannel, Name: "channel", Description: "Log channel", Required: true,
							ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText}},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "toggle", Description: "Switch automod on or off",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionBoolean, Name: "enabled", Description: "On or off", Required: true},
					},
				},
			},
			DefaultMemberPermissions: &adminPerms,
		},
		{
			Name:        "warn",
			Description: "Warn a member and add points",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member", Required: true},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "points", Description: "Points to add", Required: true, MinValue: &minPoints},
				{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Reason"},
			},
			DefaultMemberPermissions: &moderatorPerms,
		},
		{
			Name:        "points",
			Description: "Inspect and manage member points",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "show", Description: "Show a member's points and history",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member", Required: true},
						{Type: discordgo.ApplicationCommandOptionBoolean, Name: "all", Description: "Include cleared infractions"},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "clear", Description: "Clear all of a member's points",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member", Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "remove", Description: "Clear one infraction",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "infraction", Description: "Infraction ID", Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "set", Description: "Set a member's point total",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member", Required: true},
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "value", Description: "New total", Required: true},
						{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Reason"},
					},
				},
			},
			DefaultMemberPermissions: &moderatorPerms,
		},
	}
}
