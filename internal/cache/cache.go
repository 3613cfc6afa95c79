package cache

import (
	"context"
	"fmt"
	"time"

	"discord-automod/internal/database"
	"discord-automod/internal/engine/performance"
	"discord-automod/internal/models"

	"github.com/dgraph-io/ristretto"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Backend is the source of truth behind the cache
type Backend interface {
	LoadEnabledRules(ctx context.Context, guildID string) ([]*models.AutomodRule, error)
	LoadEscalationConfig(ctx context.Context, guildID string) (*models.EscalationConfig, error)
	GetSettings(ctx context.Context, guildID string) (database.GuildSettings, error)
}

// Remote is the shared L2 layer, satisfied by *redis.Client
type Remote interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Config for cache initialization
type Config struct {
	L1MaxCost     int64         // Max cost for L1 cache, one unit per pattern (default: 1M)
	L1NumCounters int64         // Number of keys to track frequency (default: 100k)
	DefaultTTL    time.Duration // Default TTL for cache entries
}

// Cache serves per-guild rule snapshots, escalation configs and settings
// through an in-memory L1 and an optional Redis L2. Concurrent misses for
// the same key share one backend load.
type Cache struct {
	backend Backend
	l1      *ristretto.Cache
	l2      Remote
	group   singleflight.Group
	ttl     time.Duration
	logger  *zap.Logger
}

func New(backend Backend, l2 Remote, cfg Config, logger *zap.Logger) (*Cache, error) {
	if cfg.L1MaxCost == 0 {
		cfg.L1MaxCost = 1 << 20
	}
	if cfg.L1NumCounters == 0 {
		cfg.L1NumCounters = 100000
	}
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	l1, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.L1NumCounters,
		MaxCost:     cfg.L1MaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create L1 cache: %w", err)
	}

	return &Cache{
		backend: backend,
		l1:      l1,
		l2:      l2,
		ttl:     cfg.DefaultTTL,
		logger:  logger.Named("cache"),
	}, nil
}

func rulesKey(guildID string) string      { return "automod:rules:" + guildID }
func escalationKey(guildID string) string { return "automod:escalation_cfg:" + guildID }
func settingsKey(guildID string) string   { return "automod:settings:" + guildID }

// LoadEnabledRules returns the enabled rules of a guild, or none while
// automod is switched off there.
func (c *Cache) LoadEnabledRules(ctx context.Context, guildID string) ([]*models.AutomodRule, error) {
	s, err := c.settings(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if !s.AutomodEnabled {
		return nil, nil
	}

	var rules []*models.AutomodRule
	err = c.get(ctx, rulesKey(guildID), &rules, func() (interface{}, int64, error) {
		rules, err := c.backend.LoadEnabledRules(ctx, guildID)
		if err != nil {
			return nil, 0, err
		}
		var cost int64 = 1
		for _, r := range rules {
			cost += int64(len(r.Patterns))
		}
		return rules, cost, nil
	})
	return rules, err
}

func (c *Cache) LoadEscalationConfig(ctx context.Context, guildID string) (*models.EscalationConfig, error) {
	var cfg *models.EscalationConfig
	err := c.get(ctx, escalationKey(guildID), &cfg, func() (interface{}, int64, error) {
		cfg, err := c.backend.LoadEscalationConfig(ctx, guildID)
		return cfg, 1, err
	})
	return cfg, err
}

func (c *Cache) LogChannel(ctx context.Context, guildID string) (string, error) {
	s, err := c.settings(ctx, guildID)
	return s.LogChannel, err
}

func (c *Cache) settings(ctx context.Context, guildID string) (database.GuildSettings, error) {
	var s database.GuildSettings
	err := c.get(ctx, settingsKey(guildID), &s, func() (interface{}, int64, error) {
		s, err := c.backend.GetSettings(ctx, guildID)
		return s, 1, err
	})
	return s, err
}

// Invalidate drops every cached entry of a guild after a configuration change
func (c *Cache) Invalidate(ctx context.Context, guildID string) {
	keys := []string{rulesKey(guildID), escalationKey(guildID), settingsKey(guildID)}
	for _, k := range keys {
		c.l1.Del(k)
	}
	if c.l2 != nil {
		if err := c.l2.Del(ctx, keys...); err != nil {
			c.logger.Warn("failed to invalidate L2 entries", zap.String("guild_id", guildID), zap.Error(err))
		}
	}
}

// get fills out from L1, then L2, then the backend. out must be a pointer to
// the type load returns.
func (c *Cache) get(ctx context.Context, key string, out interface{}, load func() (interface{}, int64, error)) error {
	if raw, ok := c.l1.Get(key); ok {
		performance.RecordCacheLookup("l1", true)
		return json.Unmarshal(raw.([]byte), out)
	}
	performance.RecordCacheLookup("l1", false)

	raw, err, _ := c.group.Do(key, func() (interface{}, error) {
		if c.l2 != nil {
			raw, err := c.l2.Get(ctx, key)
			if err == nil && len(raw) > 0 {
				performance.RecordCacheLookup("l2", true)
				c.l1.SetWithTTL(key, raw, 1, c.ttl)
				return raw, nil
			}
			performance.RecordCacheLookup("l2", false)
		}

		v, cost, err := load()
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		c.l1.SetWithTTL(key, raw, cost, c.ttl)
		if c.l2 != nil {
			if err := c.l2.Set(ctx, key, raw, c.ttl); err != nil {
				c.logger.Debug("failed to fill L2", zap.String("key", key), zap.Error(err))
			}
		}
		return raw, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.([]byte), out)
}

// Wait blocks until pending L1 writes are applied
func (c *Cache) Wait() {
	c.l1.Wait()
}

// Close gracefully shuts down the cache
func (c *Cache) Close() {
	c.l1.Close()
}
