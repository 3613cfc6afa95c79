package automod

import (
	"fmt"
	"strings"
	"time"

	"discord-automod/internal/models"
	"discord-automod/internal/presets"

	"github.com/bwmarrin/discordgo"
)

// Embed colors
const (
	ColorInfo    = 0x5865f2
	ColorWarning = 0xfee75c
)

const historyLimit = 15

func infoEmbed(title string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:     title,
		Color:     ColorInfo,
		Timestamp: time.Now().Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Automod",
		},
	}
}

// StatusEmbed lists a guild's rules as a table followed by its escalation ladder
func StatusEmbed(rules []*models.AutomodRule, cfg *models.EscalationConfig) *discordgo.MessageEmbed {
	embed := infoEmbed("Automod Rules")

	if len(rules) == 0 {
		embed.Description = "No rules configured.\nUse `/automod install` or `/automod add-wildcard` to add one."
	} else {
		var b strings.Builder
		b.WriteString("```\n")
		b.WriteString(fmt.Sprintf("%-5s %-22s %-16s %4s %s\n", "ID", "Name", "Target", "Pts", "Actions"))
		b.WriteString(strings.Repeat("-", 64) + "\n")
		for _, r := range rules {
			name := r.Name
			if len(name) > 21 {
				name = name[:18] + "..."
			}
			if !r.Enabled {
				name = "~" + name
			}
			actions := make([]string, len(r.Actions))
			for i, a := range r.Actions {
				actions[i] = string(a)
			}
			b.WriteString(fmt.Sprintf("%-5d %-22s %-16s %4d %s\n", r.ID, name, r.Target, r.WarnPoints, strings.Join(actions, ",")))
		}
		b.WriteString("```")
		embed.Description = b.String()
	}

	embed.Fields = append(embed.Fields, escalationField(cfg))
	return embed
}

func EscalationEmbed(cfg *models.EscalationConfig) *discordgo.MessageEmbed {
	embed := infoEmbed("Escalation Updated")
	embed.Fields = []*discordgo.MessageEmbedField{escalationField(cfg)}
	return embed
}

func escalationField(cfg *models.EscalationConfig) *discordgo.MessageEmbedField {
	f := &discordgo.MessageEmbedField{Name: "Escalation", Value: "None"}
	if cfg == nil || len(cfg.Thresholds) == 0 {
		return f
	}
	lines := make([]string, len(cfg.Thresholds))
	for i, t := range cfg.Thresholds {
		lines[i] = fmt.Sprintf("**%d** points → %s", t.Points, describeAction(t.Action, t.Params))
	}
	f.Value = strings.Join(lines, "\n")
	return f
}

func describeAction(a models.Action, p models.ActionParams) string {
	if a == models.ActionTimeout && p.TimeoutSeconds > 0 {
		return fmt.Sprintf("timeout for %s", time.Duration(p.TimeoutSeconds)*time.Second)
	}
	return string(a)
}

func PresetsEmbed(list []presets.Preset) *discordgo.MessageEmbed {
	embed := infoEmbed("Automod Presets")
	for _, p := range list {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("%s (`%s`)", p.Name, p.ID),
			Value: p.Description,
		})
	}
	return embed
}

// HistoryEmbed shows a member's total and their most recent infractions
func HistoryEmbed(userID string, total int64, history []models.Infraction) *discordgo.MessageEmbed {
	embed := infoEmbed("Infractions")
	embed.Description = fmt.Sprintf("<@%s> has **%d** active points.", userID, total)
	if total > 0 {
		embed.Color = ColorWarning
	}

	for i, inf := range history {
		if i == historyLimit {
			embed.Footer.Text = fmt.Sprintf("Automod • %d older infractions not shown", len(history)-historyLimit)
			break
		}
		by := "automod"
		if inf.ModeratorID != "" {
			by = "<@" + inf.ModeratorID + ">"
		}
		name := fmt.Sprintf("#%d • %+d points", inf.ID, inf.Points)
		if !inf.Active {
			name += " (cleared)"
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  name,
			Value: fmt.Sprintf("%s\nby %s <t:%d:R>", inf.Reason, by, inf.CreatedAt),
		})
	}
	return embed
}
