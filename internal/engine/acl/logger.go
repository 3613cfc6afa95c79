package acl

import (
	"context"
	"fmt"
	"time"

	"discord-automod/internal/models"
	"discord-automod/internal/pool"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	defaultBatchInterval = 2 * time.Second
	defaultBatchSize     = 10
	// Discord allows at most 25 fields per embed
	maxEmbedFields = 25
)

type Level string

const (
	LevelInfo     Level = "info"
	LevelWarn     Level = "warn"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

// LogEntry is one line of a guild's moderation log
type LogEntry struct {
	Level     Level
	GuildID   string
	UserID    string
	Action    string
	Message   string
	Timestamp time.Time
}

// EmbedSender posts embeds to a channel
type EmbedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// LogChannelSource resolves the moderation log channel of a guild, "" if none
type LogChannelSource interface {
	LogChannel(ctx context.Context, guildID string) (string, error)
}

// ModLog batches entries and posts them as one embed per guild
type ModLog struct {
	sender   EmbedSender
	channels LogChannelSource
	logger   *zap.Logger

	queue         chan LogEntry
	batchInterval time.Duration
	batchSize     int
}

func NewModLog(sender EmbedSender, channels LogChannelSource, logger *zap.Logger, queueSize int) *ModLog {
	if queueSize <= 0 {
		queueSize = 5000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModLog{
		sender:        sender,
		channels:      channels,
		logger:        logger.Named("modlog"),
		queue:         make(chan LogEntry, queueSize),
		batchInterval: defaultBatchInterval,
		batchSize:     defaultBatchSize,
	}
}

// Push enqueues an entry, dropping it when the queue is full
func (l *ModLog) Push(entry LogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	select {
	case l.queue <- entry:
	default:
		l.logger.Warn("modlog queue full, dropping entry",
			zap.String("guild_id", entry.GuildID),
			zap.String("action", entry.Action),
		)
	}
}

// ReportFault surfaces an engine fault to the guild's moderators
func (l *ModLog) ReportFault(f models.Fault) {
	msg := fmt.Sprintf("Rule **%s** pattern `%s`: %s", f.RuleName, f.Label, f.Detail)
	if f.Kind == models.FaultPatternTimeout {
		msg = fmt.Sprintf("Rule **%s** pattern `%s` exceeded its time budget (%s) and was skipped", f.RuleName, f.Label, f.Elapsed.Round(time.Millisecond))
	}
	l.Push(LogEntry{
		Level:   LevelWarn,
		GuildID: f.GuildID,
		Action:  string(f.Kind),
		Message: msg,
	})
}

// Start runs the batching consumer until ctx is done, then flushes what is left
func (l *ModLog) Start(ctx context.Context) {
	go func() {
		batch := make([]LogEntry, 0, l.batchSize)
		ticker := time.NewTicker(l.batchInterval)
		defer ticker.Stop()

		flush := func() {
			if len(batch) == 0 {
				return
			}
			l.send(ctx, batch)
			batch = batch[:0]
		}

		for {
			select {
			case <-ctx.Done():
				for {
					select {
					case entry := <-l.queue:
						batch = append(batch, entry)
					default:
						flush()
						return
					}
				}
			case entry := <-l.queue:
				batch = append(batch, entry)
				if len(batch) >= l.batchSize {
					flush()
				}
			case <-ticker.C:
				flush()
			}
		}
	}()
}

func (l *ModLog) send(ctx context.Context, entries []LogEntry) {
	byGuild := make(map[string][]LogEntry)
	var order []string
	for _, e := range entries {
		if e.GuildID == "" {
			continue
		}
		if _, ok := byGuild[e.GuildID]; !ok {
			order = append(order, e.GuildID)
		}
		byGuild[e.GuildID] = append(byGuild[e.GuildID], e)
	}

	for _, guildID := range order {
		channelID, err := l.channels.LogChannel(context.WithoutCancel(ctx), guildID)
		if err != nil {
			l.logger.Error("failed to resolve log channel", zap.String("guild_id", guildID), zap.Error(err))
			continue
		}
		if channelID == "" {
			continue
		}
		l.sendToChannel(guildID, channelID, byGuild[guildID])
	}
}

func (l *ModLog) sendToChannel(guildID, channelID string, entries []LogEntry) {
	embed := renderEmbed(entries)
	defer pool.PutEmbedFields(embed.Fields)

	if _, err := l.sender.ChannelMessageSendEmbed(channelID, embed); err != nil {
		l.logger.Error("failed to send modlog embed",
			zap.String("guild_id", guildID),
			zap.String("channel_id", channelID),
			zap.Error(err),
		)
	}
}

func renderEmbed(entries []LogEntry) *discordgo.MessageEmbed {
	fields := pool.GetEmbedFields()
	worst := LevelInfo

	for i, e := range entries {
		if i >= maxEmbedFields-1 && len(entries) > maxEmbedFields {
			fields = append(fields, &discordgo.MessageEmbedField{
				Name:  "…",
				Value: fmt.Sprintf("and %d more entries", len(entries)-i),
			})
			break
		}

		sb := pool.GetStringBuilder()
		sb.WriteString(e.Message)
		if e.UserID != "" {
			fmt.Fprintf(sb, "\nUser: <@%s> (`%s`)", e.UserID, e.UserID)
		}
		fmt.Fprintf(sb, "\n<t:%d:R>", e.Timestamp.Unix())
		value := sb.String()
		pool.PutStringBuilder(sb)

		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  levelEmoji(e.Level) + " " + e.Action,
			Value: truncate(value, 1024),
		})
		if severity(e.Level) > severity(worst) {
			worst = e.Level
		}
	}

	return &discordgo.MessageEmbed{
		Title:     "🛡️ Automod Log",
		Color:     levelColor(worst),
		Fields:    fields,
		Timestamp: time.Now().Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("%d events logged", len(entries)),
		},
	}
}

func severity(l Level) int {
	switch l {
	case LevelCritical:
		return 3
	case LevelError:
		return 2
	case LevelWarn:
		return 1
	default:
		return 0
	}
}

func levelEmoji(l Level) string {
	switch l {
	case LevelCritical:
		return "🚨"
	case LevelError:
		return "❌"
	case LevelWarn:
		return "⚠️"
	default:
		return "ℹ️"
	}
}

func levelColor(l Level) int {
	switch l {
	case LevelCritical:
		return 0xFF0000 // Red
	case LevelError:
		return 0xFF4500 // Orange-Red
	case LevelWarn:
		return 0xFFA500 // Orange
	default:
		return 0x5865F2 // Blurple
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
