package fdl

import (
	"testing"

	"discord-automod/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const messageCreate = `{
	"id": "m1",
	"channel_id": "c1",
	"guild_id": "g1",
	"author": {"id": "u1", "username": "someone"},
	"member": {"roles": ["r1", "r2"]},
	"content": "hey <:pepe:123456789012345678> check https://evil.example/x and discord.gg/abc 🔥🔥"
}`

func TestParseMessageCreate(t *testing.T) {
	assert := assert.New(t)

	events, err := ParseEvent(EvtMessageCreate, []byte(messageCreate))
	require.NoError(t, err)

	var targets []models.Target
	var contents []string
	for _, e := range events {
		targets = append(targets, e.Target)
		contents = append(contents, e.Content)

		assert.Equal("g1", e.GuildID)
		assert.Equal("c1", e.ChannelID)
		assert.Equal("u1", e.AuthorID)
		assert.Equal("m1", e.MessageID)
		assert.Equal([]string{"r1", "r2"}, e.RoleIDs)
	}

	assert.Equal([]models.Target{
		models.TargetMessageContent,
		models.TargetLink,
		models.TargetLink,
		models.TargetMessageEmoji,
		models.TargetMessageEmoji,
	}, targets)
	assert.Equal([]string{
		"hey <:pepe:123456789012345678> check https://evil.example/x and discord.gg/abc 🔥🔥",
		"https://evil.example/x",
		"discord.gg/abc",
		"pepe:123456789012345678",
		"🔥",
	}, contents)
}

func TestParseSkipsBotsAndDMs(t *testing.T) {
	events, err := ParseEvent(EvtMessageCreate, []byte(`{"guild_id":"g1","author":{"id":"b1","bot":true},"content":"x"}`))
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = ParseEvent(EvtMessageCreate, []byte(`{"author":{"id":"u1"},"content":"x"}`))
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = ParseEvent(EvtMessageCreate, []byte(`{"guild_id":"g1","webhook_id":"w1","author":{"id":"w1"},"content":"x"}`))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestParseMessageUpdateWithoutContent(t *testing.T) {
	events, err := ParseEvent(EvtMessageUpdate, []byte(`{"id":"m1","guild_id":"g1","channel_id":"c1","embeds":[]}`))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestParseMemberUpdate(t *testing.T) {
	events, err := ParseEvent(EvtGuildMemberUpdate, []byte(`{
		"guild_id": "g1",
		"roles": ["r1"],
		"user": {"id": "u1", "global_name": "Global"},
		"nick": "Discord Staff"
	}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.TargetNickname, events[0].Target)
	assert.Equal(t, "Discord Staff", events[0].Content)
	assert.Empty(t, events[0].ChannelID)

	events, err = ParseEvent(EvtGuildMemberUpdate, []byte(`{"guild_id":"g1","user":{"id":"u1","global_name":"Global"},"nick":null}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Global", events[0].Content)
}

func TestParseReactionAdd(t *testing.T) {
	events, err := ParseEvent(EvtReactionAdd, []byte(`{
		"user_id": "u1",
		"channel_id": "c1",
		"message_id": "m9",
		"guild_id": "g1",
		"member": {"roles": [], "user": {"id": "u1"}},
		"emoji": {"id": "42", "name": "blob"}
	}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.TargetReactionEmoji, events[0].Target)
	assert.Equal(t, "blob:42", events[0].Emoji)
	assert.Equal(t, "m9", events[0].MessageID)
}

func TestParseFrame(t *testing.T) {
	events, err := ParseFrame([]byte(`{"op":0,"t":"MESSAGE_CREATE","s":5,"d":` + messageCreate + `}`))
	require.NoError(t, err)
	assert.Len(t, events, 5)

	events, err = ParseFrame([]byte(`{"op":11}`))
	require.NoError(t, err)
	assert.Nil(t, events)

	events, err = ParseFrame([]byte(`{"op":0,"t":"GUILD_ROLE_CREATE","d":{}}`))
	require.NoError(t, err)
	assert.Nil(t, events)

	_, err = ParseFrame([]byte(`{"op":0,`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestLinksDistinct(t *testing.T) {
	assert.Equal(t, []string{"https://a.example"}, Links("https://a.example and https://a.example"))
	assert.Empty(t, Links("no links here"))
}
