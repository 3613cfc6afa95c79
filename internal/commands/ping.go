package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"discord-automod/internal/utils"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/errgroup"
)

const discordEpochMs = 1420070400000

var Ping = &discordgo.ApplicationCommand{
	Name:        "ping",
	Description: "Check bot latency and storage health",
}

// Pinger is one backing service checked by /ping
type Pinger struct {
	Name string
	Ping func(ctx context.Context) error
}

type pingResult struct {
	name    string
	latency time.Duration
	err     error
}

// measure pings every backend concurrently and keeps their order
func measure(ctx context.Context, pingers []Pinger) []pingResult {
	results := make([]pingResult, len(pingers))
	var g errgroup.Group
	for i, p := range pingers {
		i, p := i, p
		g.Go(func() error {
			start := time.Now()
			err := p.Ping(ctx)
			results[i] = pingResult{name: p.Name, latency: time.Since(start), err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// snowflakeTime extracts the creation time of a Discord id
func snowflakeTime(id string) (time.Time, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli((n >> 22) + discordEpochMs), true
}

func HandlePing(s *discordgo.Session, i *discordgo.InteractionCreate, pingers []Pinger) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	fields := []*discordgo.MessageEmbedField{
		{Name: "Gateway", Value: fmt.Sprintf("`%dms`", s.HeartbeatLatency().Milliseconds()), Inline: true},
	}
	if created, ok := snowflakeTime(i.ID); ok {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Bot", Value: fmt.Sprintf("`%dms`", time.Since(created).Milliseconds()), Inline: true,
		})
	}
	for _, r := range measure(ctx, pingers) {
		value := fmt.Sprintf("`%dms`", r.latency.Milliseconds())
		if r.err != nil {
			value = "`" + utils.EmojiCross + " Error`"
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: r.name, Value: value, Inline: true})
	}

	utils.SendEmbed(s, i, &discordgo.MessageEmbed{
		Title:  utils.EmojiTick + " Pong!",
		Color:  utils.ColorDark,
		Fields: fields,
	})
}
