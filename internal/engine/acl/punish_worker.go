package acl

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"discord-automod/internal/engine/performance"
	"discord-automod/internal/models"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	// Discord caps communication disabled at 28 days
	maxTimeout = 28 * 24 * time.Hour
	// and ban message deletion at 7 days
	maxBanDeleteDays = 7

	DefaultDMTemplate = "You were warned in this server: {reason}\nPoints: +{points} ({total} total)"
)

var ErrQueueFull = errors.New("executor queue full")

// Discord is the subset of *discordgo.Session the executor needs
type Discord interface {
	EmbedSender
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	MessageReactionRemove(channelID, messageID, emojiID, userID string, options ...discordgo.RequestOption) error
	GuildMemberTimeout(guildID, userID string, until *time.Time, options ...discordgo.RequestOption) error
	GuildMemberDeleteWithReason(guildID, userID, reason string, options ...discordgo.RequestOption) error
	GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Executor carries out plans against Discord. It replays each step as
// planned and never retries or compensates; failures are logged and reported.
type Executor struct {
	api    Discord
	modlog *ModLog
	logger *zap.Logger
	now    func() time.Time

	queue   chan *models.Plan
	workers int
	wg      sync.WaitGroup
}

func NewExecutor(api Discord, modlog *ModLog, logger *zap.Logger, queueSize, workers int) *Executor {
	if queueSize <= 0 {
		queueSize = 1000
	}
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		api:     api,
		modlog:  modlog,
		logger:  logger.Named("executor"),
		now:     time.Now,
		queue:   make(chan *models.Plan, queueSize),
		workers: workers,
	}
}

// Push enqueues a plan without blocking the gateway handler
func (x *Executor) Push(plan *models.Plan) error {
	if plan.Empty() {
		return nil
	}
	select {
	case x.queue <- plan:
		performance.SetQueueDepth(len(x.queue))
		return nil
	default:
		x.logger.Error("executor queue full, dropping plan",
			zap.String("guild_id", plan.GuildID),
			zap.String("user_id", plan.UserID),
			zap.Int("steps", len(plan.Steps)),
		)
		performance.RecordDropped("executor_queue_full")
		return ErrQueueFull
	}
}

// Start launches the workers. They drain the queue and exit once ctx is done.
func (x *Executor) Start(ctx context.Context) {
	for i := 0; i < x.workers; i++ {
		x.wg.Add(1)
		go func() {
			defer x.wg.Done()
			for {
				select {
				case <-ctx.Done():
					x.drain()
					return
				case plan := <-x.queue:
					performance.SetQueueDepth(len(x.queue))
					x.Execute(plan)
				}
			}
		}()
	}
}

func (x *Executor) drain() {
	for {
		select {
		case plan := <-x.queue:
			x.Execute(plan)
		default:
			return
		}
	}
}

func (x *Executor) Wait() {
	x.wg.Wait()
}

// Execute runs every step in order. A failed step does not stop later ones,
// so a failed delete still lets the warning and punishments through.
func (x *Executor) Execute(plan *models.Plan) []error {
	var errs []error
	for i := range plan.Steps {
		step := &plan.Steps[i]
		start := time.Now()
		err := x.ExecuteStep(step)
		performance.RecordExecution(step.Action, time.Since(start), err)
		if err == nil {
			continue
		}

		errs = append(errs, err)
		x.logger.Warn("automod step failed",
			zap.String("action", string(step.Action)),
			zap.String("guild_id", step.Target.GuildID),
			zap.String("user_id", step.Target.UserID),
			zap.Int64("rule_id", step.RuleID),
			zap.Error(err),
		)
		x.report(LogEntry{
			Level:   LevelError,
			GuildID: step.Target.GuildID,
			UserID:  step.Target.UserID,
			Action:  "failed " + string(step.Action),
			Message: err.Error(),
		})
	}
	return errs
}

// ExecuteStep performs one step
func (x *Executor) ExecuteStep(step *models.ActionStep) error {
	t := step.Target
	reason := auditReason(step.Params.Reason)

	switch step.Action {
	case models.ActionDelete:
		if t.ChannelID == "" || t.MessageID == "" {
			return nil
		}
		return x.api.ChannelMessageDelete(t.ChannelID, t.MessageID)

	case models.ActionRemoveReaction:
		if t.ChannelID == "" || t.MessageID == "" || t.Emoji == "" {
			return nil
		}
		return x.api.MessageReactionRemove(t.ChannelID, t.MessageID, t.Emoji, t.UserID)

	case models.ActionWarn:
		x.report(LogEntry{
			Level:   LevelInfo,
			GuildID: t.GuildID,
			UserID:  t.UserID,
			Action:  "warn",
			Message: fmt.Sprintf("%s\n+%d points, %d total", step.Params.Reason, step.Params.Points, step.Params.Total),
		})
		return x.sendDM(step)

	case models.ActionLog:
		msg := step.Params.Reason
		if len(step.Params.Labels) > 0 {
			msg += "\nMatched: `" + strings.Join(step.Params.Labels, "`, `") + "`"
		}
		x.report(LogEntry{
			Level:   LevelInfo,
			GuildID: t.GuildID,
			UserID:  t.UserID,
			Action:  "log",
			Message: msg,
		})
		return nil

	case models.ActionTimeout:
		d := time.Duration(step.Params.TimeoutSeconds) * time.Second
		if d <= 0 {
			return fmt.Errorf("timeout step without duration")
		}
		d = min(d, maxTimeout)
		until := x.now().Add(d)
		x.reportPunishment(step, fmt.Sprintf("Timed out for %s", d))
		return x.api.GuildMemberTimeout(t.GuildID, t.UserID, &until)

	case models.ActionKick:
		x.reportPunishment(step, "Kicked")
		return x.api.GuildMemberDeleteWithReason(t.GuildID, t.UserID, reason)

	case models.ActionBan:
		days := min(step.Params.DeleteMessageSeconds/86400, maxBanDeleteDays)
		x.reportPunishment(step, "Banned")
		return x.api.GuildBanCreateWithReason(t.GuildID, t.UserID, reason, days)
	}
	return fmt.Errorf("unknown action %q", step.Action)
}

func (x *Executor) reportPunishment(step *models.ActionStep, what string) {
	level := LevelWarn
	msg := what + ": " + step.Params.Reason
	if step.Escalation != nil {
		level = LevelCritical
		msg = fmt.Sprintf("%s after reaching %d points (threshold %d)", what, step.Escalation.Total, step.Escalation.Threshold)
	}
	x.report(LogEntry{
		Level:   level,
		GuildID: step.Target.GuildID,
		UserID:  step.Target.UserID,
		Action:  string(step.Action),
		Message: msg,
	})
}

func (x *Executor) report(e LogEntry) {
	if x.modlog != nil {
		x.modlog.Push(e)
	}
}

func (x *Executor) sendDM(step *models.ActionStep) error {
	ch, err := x.api.UserChannelCreate(step.Target.UserID)
	if err != nil {
		// users with closed DMs are common, not worth a modlog entry
		x.logger.Debug("failed to open DM channel", zap.String("user_id", step.Target.UserID), zap.Error(err))
		return nil
	}

	if embed := step.Params.DMEmbed; embed != nil {
		_, err = x.api.ChannelMessageSendEmbed(ch.ID, &discordgo.MessageEmbed{
			Title:       RenderDM(embed.Title, step),
			Description: RenderDM(embed.Description, step),
			Color:       embed.Color,
		})
	} else {
		tmpl := step.Params.DMTemplate
		if tmpl == "" {
			tmpl = DefaultDMTemplate
		}
		_, err = x.api.ChannelMessageSend(ch.ID, RenderDM(tmpl, step))
	}
	if err != nil {
		x.logger.Debug("failed to send warning DM", zap.String("user_id", step.Target.UserID), zap.Error(err))
	}
	return nil
}

// RenderDM fills {user}, {rule}, {points}, {total} and {reason} in a template
func RenderDM(tmpl string, step *models.ActionStep) string {
	return strings.NewReplacer(
		"{user}", "<@"+step.Target.UserID+">",
		"{rule}", step.Rule,
		"{points}", strconv.FormatInt(step.Params.Points, 10),
		"{total}", strconv.FormatInt(step.Params.Total, 10),
		"{reason}", step.Params.Reason,
	).Replace(tmpl)
}

// auditReason fits Discord's 512 character audit log limit
func auditReason(reason string) string {
	if reason == "" {
		return "Automod"
	}
	return truncate(reason, 512)
}
