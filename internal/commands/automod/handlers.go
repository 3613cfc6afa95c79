package automod

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"discord-automod/internal/models"
	"discord-automod/internal/services"
	"discord-automod/internal/utils"

	"github.com/bwmarrin/discordgo"
)

const commandTimeout = 10 * time.Second

type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) options {
	m := make(options, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

func (o options) str(name string) string {
	if v, ok := o[name]; ok {
		return v.StringValue()
	}
	return ""
}

func (o options) num(name string) int64 {
	if v, ok := o[name]; ok {
		return v.IntValue()
	}
	return 0
}

func (o options) flag(name string) bool {
	if v, ok := o[name]; ok {
		return v.BoolValue()
	}
	return false
}

func moderatorID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// HandleAutomod handles every /automod subcommand
func HandleAutomod(s *discordgo.Session, i *discordgo.InteractionCreate, svc *services.AutomodService) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	sub := i.ApplicationCommandData().Options[0]
	opts := optionMap(sub.Options)
	guildID := i.GuildID

	switch sub.Name {
	case "status":
		rules, err := svc.ListRules(ctx, guildID)
		if err != nil {
			utils.SendError(s, i, "Failed to load rules: "+err.Error())
			return
		}
		cfg, err := svc.GetEscalationConfig(ctx, guildID)
		if err != nil {
			utils.SendError(s, i, "Failed to load escalation: "+err.Error())
			return
		}
		utils.SendEmbed(s, i, StatusEmbed(rules, cfg))

	case "presets":
		utils.SendEmbed(s, i, PresetsEmbed(svc.Presets.List()))

	case "install":
		r, err := svc.InstallPreset(ctx, guildID, opts.str("preset"))
		if err != nil {
			utils.SendError(s, i, "Failed to install preset: "+describe(err))
			return
		}
		utils.SendSuccess(s, i, fmt.Sprintf("Installed **%s** as rule `#%d`. It can now be edited like any other rule.", r.Name, r.ID))

	case "uninstall":
		n, err := svc.UninstallPreset(ctx, guildID, opts.str("preset"))
		if err != nil {
			utils.SendError(s, i, "Failed to uninstall preset: "+describe(err))
			return
		}
		utils.SendSuccess(s, i, fmt.Sprintf("Removed %d rule(s).", n))

	case "add-wildcard":
		r, err := BuildRule(guildID, opts)
		if err != nil {
			utils.SendError(s, i, describe(err))
			return
		}
		skipped, err := svc.CreateWildcardRule(ctx, r, opts.str("expression"), opts.flag("allow_partial"))
		if err != nil {
			utils.SendError(s, i, "Failed to create rule: "+describe(err))
			return
		}
		msg := fmt.Sprintf("Created rule `#%d` **%s** with %d pattern(s).", r.ID, r.Name, len(r.Patterns))
		for _, e := range skipped {
			msg += "\nSkipped " + e.Error()
		}
		utils.SendSuccess(s, i, msg)

	case "add-regex":
		r, err := BuildRule(guildID, opts)
		if err != nil {
			utils.SendError(s, i, describe(err))
			return
		}
		r.Patterns = []models.Pattern{{Regex: opts.str("pattern"), Flags: opts.str("flags"), Label: opts.str("label")}}
		if err := svc.CreateRule(ctx, r); err != nil {
			utils.SendError(s, i, "Failed to create rule: "+describe(err))
			return
		}
		utils.SendSuccess(s, i, fmt.Sprintf("Created rule `#%d` **%s**.", r.ID, r.Name))

	case "enable", "disable":
		if err := svc.SetRuleEnabled(ctx, guildID, opts.num("rule"), sub.Name == "enable"); err != nil {
			utils.SendError(s, i, "Failed to update rule: "+describe(err))
			return
		}
		utils.SendSuccess(s, i, fmt.Sprintf("Rule `#%d` %sd.", opts.num("rule"), sub.Name))

	case "delete":
		if err := svc.DeleteRule(ctx, guildID, opts.num("rule")); err != nil {
			utils.SendError(s, i, "Failed to delete rule: "+describe(err))
			return
		}
		utils.SendSuccess(s, i, fmt.Sprintf("Rule `#%d` deleted.", opts.num("rule")))

	case "escalation", "escalation-remove":
		cfg, err := svc.GetEscalationConfig(ctx, guildID)
		if err != nil {
			utils.SendError(s, i, "Failed to load escalation: "+err.Error())
			return
		}
		if sub.Name == "escalation" {
			cfg = WithThreshold(cfg, models.EscalationThreshold{
				Points: opts.num("points"),
				Action: models.Action(opts.str("action")),
				Params: models.ActionParams{TimeoutSeconds: opts.num("timeout_minutes") * 60},
			})
		} else {
			cfg = WithoutThreshold(cfg, opts.num("points"))
		}
		cfg.GuildID = guildID
		if err := svc.SetEscalationConfig(ctx, cfg); err != nil {
			utils.SendError(s, i, "Failed to save escalation: "+describe(err))
			return
		}
		utils.SendEmbed(s, i, EscalationEmbed(cfg))

	case "logchannel":
		ch := opts["channel"].ChannelValue(nil)
		if err := svc.SetLogChannel(ctx, guildID, ch.ID); err != nil {
			utils.SendError(s, i, "Failed to set log channel: "+err.Error())
			return
		}
		utils.SendSuccess(s, i, fmt.Sprintf("Automod logs will be sent to <#%s>.", ch.ID))

	case "toggle":
		enabled := opts.flag("enabled")
		if err := svc.SetAutomodEnabled(ctx, guildID, enabled); err != nil {
			utils.SendError(s, i, "Failed to toggle automod: "+err.Error())
			return
		}
		state := "**DISABLED**"
		if enabled {
			state = "**ENABLED**"
		}
		utils.SendSuccess(s, i, "Automod "+state)
	}
}

// HandleWarn handles /warn
func HandleWarn(s *discordgo.Session, i *discordgo.InteractionCreate, svc *services.AutomodService) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	opts := optionMap(i.ApplicationCommandData().Options)
	user := opts["user"].UserValue(nil)
	plan, err := svc.Warn(ctx, i.GuildID, user.ID, moderatorID(i), opts.num("points"), opts.str("reason"))
	if err != nil {
		utils.SendError(s, i, "Failed to warn: "+describe(err))
		return
	}

	msg := fmt.Sprintf("Warned <@%s>: +%d points, %d total.", user.ID, plan.PointsAdded, plan.Total)
	for _, step := range plan.Steps {
		if step.Escalation != nil {
			msg += fmt.Sprintf("\nEscalated to **%s** (threshold %d).", step.Action, step.Escalation.Threshold)
		}
	}
	utils.SendSuccess(s, i, msg)
}

// HandlePoints handles every /points subcommand
func HandlePoints(s *discordgo.Session, i *discordgo.InteractionCreate, svc *services.AutomodService) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	sub := i.ApplicationCommandData().Options[0]
	opts := optionMap(sub.Options)
	guildID := i.GuildID

	switch sub.Name {
	case "show":
		user := opts["user"].UserValue(nil)
		total, err := svc.GetPoints(ctx, guildID, user.ID)
		if err != nil {
			utils.SendError(s, i, "Failed to load points: "+err.Error())
			return
		}
		history, err := svc.History(ctx, guildID, user.ID, opts.flag("all"))
		if err != nil {
			utils.SendError(s, i, "Failed to load history: "+err.Error())
			return
		}
		utils.SendEmbed(s, i, HistoryEmbed(user.ID, total, history))

	case "clear":
		user := opts["user"].UserValue(nil)
		n, err := svc.ClearPoints(ctx, guildID, user.ID)
		if err != nil {
			utils.SendError(s, i, "Failed to clear points: "+describe(err))
			return
		}
		utils.SendSuccess(s, i, fmt.Sprintf("Cleared %d infraction(s) of <@%s>.", n, user.ID))

	case "remove":
		total, err := svc.ClearInfraction(ctx, guildID, opts.num("infraction"))
		if err != nil {
			utils.SendError(s, i, "Failed to clear infraction: "+describe(err))
			return
		}
		utils.SendSuccess(s, i, fmt.Sprintf("Infraction `#%d` cleared, member now has %d points.", opts.num("infraction"), total))

	case "set":
		user := opts["user"].UserValue(nil)
		total, err := svc.SetPoints(ctx, guildID, user.ID, moderatorID(i), opts.num("value"), opts.str("reason"))
		if err != nil {
			utils.SendError(s, i, "Failed to set points: "+describe(err))
			return
		}
		utils.SendSuccess(s, i, fmt.Sprintf("<@%s> now has %d points.", user.ID, total))
	}
}

// BuildRule turns the shared rule options into a rule without patterns
func BuildRule(guildID string, opts options) (*models.AutomodRule, error) {
	actions := []models.Action{models.Action(opts.str("action"))}
	if a2 := opts.str("action2"); a2 != "" && a2 != opts.str("action") {
		actions = append(actions, models.Action(a2))
	}

	r := &models.AutomodRule{
		GuildID:    guildID,
		Name:       strings.TrimSpace(opts.str("name")),
		Priority:   int(opts.num("priority")),
		Enabled:    true,
		Target:     models.Target(opts.str("target")),
		MatchMode:  models.MatchAny,
		Actions:    actions,
		WarnPoints: opts.num("points"),
		ActionParams: models.ActionParams{
			TimeoutSeconds: opts.num("timeout_minutes") * 60,
		},
	}
	if r.HasAction(models.ActionWarn) && r.WarnPoints == 0 {
		r.WarnPoints = 1
	}
	if r.HasAction(models.ActionTimeout) && r.ActionParams.TimeoutSeconds == 0 {
		return nil, errors.New("the timeout action needs timeout_minutes")
	}
	return r, nil
}

// WithThreshold returns cfg with t added, replacing any threshold at the same points
func WithThreshold(cfg *models.EscalationConfig, t models.EscalationThreshold) *models.EscalationConfig {
	out := WithoutThreshold(cfg, t.Points)
	out.Thresholds = append(out.Thresholds, t)
	slices.SortFunc(out.Thresholds, func(a, b models.EscalationThreshold) int {
		return int(a.Points - b.Points)
	})
	return out
}

func WithoutThreshold(cfg *models.EscalationConfig, points int64) *models.EscalationConfig {
	out := &models.EscalationConfig{}
	if cfg == nil {
		return out
	}
	out.GuildID = cfg.GuildID
	for _, t := range cfg.Thresholds {
		if t.Points != points {
			out.Thresholds = append(out.Thresholds, t)
		}
	}
	return out
}

// describe turns service errors into moderator facing text
func describe(err error) string {
	if errors.Is(err, models.ErrNotFound) {
		return "not found"
	}
	return err.Error()
}
