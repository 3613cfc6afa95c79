package redis

import (
	"context"
	"fmt"

	"discord-automod/internal/engine/escalation"

	"github.com/redis/go-redis/v9"
)

// Escalation markers

// casScript swaps the marker only while it still holds the expected value.
// A missing key counts as 0.
var casScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if cur ~= tonumber(ARGV[1]) then
  return 0
end
if tonumber(ARGV[2]) <= 0 then
  redis.call('DEL', KEYS[1])
else
  redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// capScript lowers the marker to ARGV[1] when it is above it
var capScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local max = tonumber(ARGV[1])
if cur <= max then
  return 0
end
if max <= 0 then
  redis.call('DEL', KEYS[1])
else
  redis.call('SET', KEYS[1], max)
end
return 1
`)

// MarkerStore keeps escalation markers in Redis so that every shard shares them
type MarkerStore struct {
	c *Client
}

func (c *Client) Markers() *MarkerStore {
	return &MarkerStore{c: c}
}

var _ escalation.MarkerStore = (*MarkerStore)(nil)

func MarkerKey(guildID, userID string) string {
	return fmt.Sprintf("automod:escalation:%s:%s", guildID, userID)
}

func (m *MarkerStore) Get(ctx context.Context, guildID, userID string) (int64, error) {
	v, err := m.c.client.Get(ctx, MarkerKey(guildID, userID)).Int64()
	if IsNil(err) {
		return 0, nil
	}
	return v, err
}

func (m *MarkerStore) CompareAndSwap(ctx context.Context, guildID, userID string, old, new int64) (bool, error) {
	n, err := casScript.Run(ctx, m.c.client, []string{MarkerKey(guildID, userID)}, old, new).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (m *MarkerStore) Cap(ctx context.Context, guildID, userID string, max int64) error {
	return capScript.Run(ctx, m.c.client, []string{MarkerKey(guildID, userID)}, max).Err()
}
