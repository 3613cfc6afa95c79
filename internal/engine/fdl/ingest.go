package fdl

import (
	"errors"
	"regexp"
	"strings"

	"discord-automod/internal/models"

	"github.com/tidwall/gjson"
)

// Gateway dispatch types that carry content automod inspects
const (
	EvtMessageCreate     = "MESSAGE_CREATE"
	EvtMessageUpdate     = "MESSAGE_UPDATE"
	EvtGuildMemberUpdate = "GUILD_MEMBER_UPDATE"
	EvtReactionAdd       = "MESSAGE_REACTION_ADD"
)

var ErrMalformed = errors.New("malformed gateway payload")

// LinkRegex finds http(s) URLs and bare invite-style domains in message text
var LinkRegex = regexp.MustCompile(`(?i)\b(?:https?://[^\s<>]+|(?:discord\.gg|discord(?:app)?\.com/invite)/[a-z0-9-]+)`)

var customEmojiRegex = regexp.MustCompile(`<a?:(\w{2,32}):(\d{17,20})>`)

// unicodeEmojiRegex covers the pictographic blocks plus an optional variation selector
var unicodeEmojiRegex = regexp.MustCompile(`[\x{1F000}-\x{1FAFF}\x{2600}-\x{27BF}\x{2B00}-\x{2BFF}\x{3030}\x{303D}\x{3297}\x{3299}]\x{FE0F}?`)

// Handles reports whether ParseEvent understands the dispatch type
func Handles(eventType string) bool {
	switch eventType {
	case EvtMessageCreate, EvtMessageUpdate, EvtGuildMemberUpdate, EvtReactionAdd:
		return true
	}
	return false
}

// ParseFrame parses a full gateway frame ({"op","t","d"}). Non-dispatch
// frames and unhandled types return nil without error.
func ParseFrame(data []byte) ([]*models.ContentEvent, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrMalformed
	}
	frame := gjson.ParseBytes(data)
	if frame.Get("op").Int() != 0 {
		return nil, nil
	}
	return ParseEvent(frame.Get("t").String(), []byte(frame.Get("d").Raw))
}

// ParseEvent extracts every automod content event from one dispatch payload.
// Events from bots and webhooks, and events outside a guild, yield nothing.
func ParseEvent(eventType string, d []byte) ([]*models.ContentEvent, error) {
	if !Handles(eventType) {
		return nil, nil
	}
	if !gjson.ValidBytes(d) {
		return nil, ErrMalformed
	}
	root := gjson.ParseBytes(d)

	guildID := root.Get("guild_id").String()
	if guildID == "" {
		return nil, nil
	}

	switch eventType {
	case EvtMessageCreate, EvtMessageUpdate:
		return parseMessage(root, guildID), nil
	case EvtGuildMemberUpdate:
		return parseMember(root, guildID), nil
	case EvtReactionAdd:
		return parseReaction(root, guildID), nil
	}
	return nil, nil
}

func parseMessage(root gjson.Result, guildID string) []*models.ContentEvent {
	if root.Get("author.bot").Bool() || root.Get("webhook_id").Exists() {
		return nil
	}
	content := root.Get("content")
	// edits that only touch embeds carry no content field
	if !content.Exists() {
		return nil
	}

	scope := models.Scope{
		GuildID:   guildID,
		ChannelID: root.Get("channel_id").String(),
		AuthorID:  root.Get("author.id").String(),
		RoleIDs:   stringArray(root.Get("member.roles")),
	}
	if scope.AuthorID == "" {
		return nil
	}
	messageID := root.Get("id").String()
	text := content.String()

	events := []*models.ContentEvent{{
		Scope:     scope,
		Target:    models.TargetMessageContent,
		Content:   text,
		MessageID: messageID,
	}}
	for _, link := range Links(text) {
		events = append(events, &models.ContentEvent{
			Scope:     scope,
			Target:    models.TargetLink,
			Content:   link,
			MessageID: messageID,
		})
	}
	for _, emoji := range Emojis(text) {
		events = append(events, &models.ContentEvent{
			Scope:     scope,
			Target:    models.TargetMessageEmoji,
			Content:   emoji,
			MessageID: messageID,
			Emoji:     emoji,
		})
	}
	return events
}

func parseMember(root gjson.Result, guildID string) []*models.ContentEvent {
	if root.Get("user.bot").Bool() {
		return nil
	}
	nick := root.Get("nick").String()
	if nick == "" {
		// cleared nicknames fall back to the global name
		nick = root.Get("user.global_name").String()
	}
	if nick == "" {
		return nil
	}
	userID := root.Get("user.id").String()
	if userID == "" {
		return nil
	}

	return []*models.ContentEvent{{
		Scope: models.Scope{
			GuildID:  guildID,
			AuthorID: userID,
			RoleIDs:  stringArray(root.Get("roles")),
		},
		Target:  models.TargetNickname,
		Content: nick,
	}}
}

func parseReaction(root gjson.Result, guildID string) []*models.ContentEvent {
	if root.Get("member.user.bot").Bool() {
		return nil
	}
	userID := root.Get("user_id").String()
	if userID == "" {
		return nil
	}

	emoji := EmojiAPIName(root.Get("emoji.name").String(), root.Get("emoji.id").String())
	if emoji == "" {
		return nil
	}

	return []*models.ContentEvent{{
		Scope: models.Scope{
			GuildID:   guildID,
			ChannelID: root.Get("channel_id").String(),
			AuthorID:  userID,
			RoleIDs:   stringArray(root.Get("member.roles")),
		},
		Target:    models.TargetReactionEmoji,
		Content:   emoji,
		MessageID: root.Get("message_id").String(),
		Emoji:     emoji,
	}}
}

// Links returns the distinct links of a message in order of appearance
func Links(text string) []string {
	return distinct(LinkRegex.FindAllString(text, -1))
}

// Emojis returns the distinct emoji of a message. Custom emoji are reported
// as name:id, unicode emoji as themselves.
func Emojis(text string) []string {
	var out []string
	for _, m := range customEmojiRegex.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1]+":"+m[2])
	}
	for _, e := range unicodeEmojiRegex.FindAllString(text, -1) {
		out = append(out, strings.TrimSuffix(e, "\uFE0F"))
	}
	return distinct(out)
}

// EmojiAPIName is the form the reaction endpoints expect
func EmojiAPIName(name, id string) string {
	if id != "" {
		return name + ":" + id
	}
	return name
}

func stringArray(r gjson.Result) []string {
	if !r.IsArray() {
		return nil
	}
	arr := r.Array()
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		out = append(out, v.String())
	}
	return out
}

func distinct(in []string) []string {
	if len(in) < 2 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
