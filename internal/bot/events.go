package bot

import (
	"context"
	"errors"
	"time"

	"discord-automod/internal/engine/fdl"
	"discord-automod/internal/engine/ledger"
	"discord-automod/internal/engine/performance"
	"discord-automod/internal/engine/ring"
	"discord-automod/internal/models"
	"discord-automod/internal/utils"

	"github.com/bwmarrin/discordgo"
	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

func (b *Bot) Ready(s *discordgo.Session, r *discordgo.Ready) {
	// Manually populate state user since state tracking is disabled
	if s.State.User == nil {
		s.State.User = r.User
	}
	b.Logger.Info("Ready", zap.Int("guilds", len(r.Guilds)))
}

// GuildCreate registers the commands per guild so updates apply instantly
func (b *Bot) GuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if b.Commands == nil || s.State.User == nil {
		return
	}
	_, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, g.ID, b.Commands.Commands)
	if err != nil {
		b.Logger.Error("Failed to register commands", zap.String("guild_id", g.ID), zap.Error(err))
		return
	}
	b.Logger.Debug("Registered commands", zap.String("guild_id", g.ID), zap.String("guild", g.Name))
}

func (b *Bot) InteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand || b.Commands == nil {
		return
	}
	name := i.ApplicationCommandData().Name
	h := b.Commands.Handler(name)
	if h == nil {
		return
	}
	if i.GuildID == "" {
		utils.SendError(s, i, "This command can only be used in a server.")
		return
	}

	start := time.Now()
	h(s, i, b.Automod)
	b.Logger.Debug("Command handled",
		zap.String("command", name),
		zap.String("guild_id", i.GuildID),
		zap.Duration("took", time.Since(start)),
	)
}

// RawEvent is the fast path: it extracts content events straight from the
// dispatch payload and queues them for evaluation.
func (b *Bot) RawEvent(s *discordgo.Session, e *discordgo.Event) {
	if !fdl.Handles(e.Type) || len(e.RawData) == 0 {
		return
	}

	events, err := fdl.ParseEvent(e.Type, e.RawData)
	if err != nil {
		performance.RecordDropped("malformed")
		b.Logger.Debug("Dropping malformed payload", zap.String("type", e.Type), zap.Error(err))
		return
	}
	events = b.dedupeNicknames(b.dedupeEdits(e.Type, events))
	if len(events) == 0 {
		return
	}

	if !b.Ingest.Push(ring.Batch{Type: e.Type, Events: events, Received: time.Now()}) {
		performance.RecordDropped("ingest_full")
		b.Logger.Warn("Ingest queue full, dropping delivery",
			zap.String("type", e.Type),
			zap.String("guild_id", events[0].GuildID),
		)
	}
}

// dedupeNicknames drops nickname events whose value was already evaluated.
// Member updates also fire for role and avatar changes.
func (b *Bot) dedupeNicknames(events []*models.ContentEvent) []*models.ContentEvent {
	out := events[:0]
	for _, evt := range events {
		if evt.Target == models.TargetNickname {
			key := evt.GuildID + ":" + evt.AuthorID
			if last, ok := b.nicknames.Get(key); ok && last == evt.Content {
				continue
			}
			b.nicknames.Add(key, evt.Content)
		}
		out = append(out, evt)
	}
	return out
}

// dedupeEdits drops MESSAGE_UPDATE deliveries whose content was already
// evaluated. Discord re-sends the full message when it unfurls link embeds.
func (b *Bot) dedupeEdits(eventType string, events []*models.ContentEvent) []*models.ContentEvent {
	if eventType != fdl.EvtMessageCreate && eventType != fdl.EvtMessageUpdate {
		return events
	}
	for _, evt := range events {
		if evt.Target != models.TargetMessageContent || evt.MessageID == "" {
			continue
		}
		key := evt.GuildID + ":" + evt.MessageID
		sum := xxhash.Sum64String(evt.Content)
		if eventType == fdl.EvtMessageUpdate {
			if last, ok := b.messages.Get(key); ok && last == sum {
				return nil
			}
		}
		b.messages.Add(key, sum)
		break
	}
	return events
}

func (b *Bot) handleBatch(batch ring.Batch) {
	ctx, cancel := context.WithTimeout(context.Background(), b.evalTimeout)
	defer cancel()

	plan, err := b.Engine.ProcessBatch(ctx, batch.Events)
	if err != nil {
		first := batch.Events[0]
		fields := []zap.Field{
			zap.String("type", batch.Type),
			zap.String("guild_id", first.GuildID),
			zap.String("user_id", first.AuthorID),
			zap.Error(err),
		}
		if plan == nil {
			b.Logger.Error("Evaluation failed", fields...)
			return
		}
		if errors.Is(err, ledger.ErrTransient) {
			b.Logger.Warn("Points not recorded, enforcing the rest of the plan", fields...)
		}
	}

	if plan.Empty() {
		return
	}
	if err := b.Executor.Push(plan); err != nil {
		b.Logger.Error("Failed to queue plan",
			zap.String("guild_id", plan.GuildID),
			zap.String("user_id", plan.UserID),
			zap.Error(err),
		)
	}
}
