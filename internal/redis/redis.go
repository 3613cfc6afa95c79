package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Config struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Network  string `json:"network"` // "tcp" or "unix" for socket path
}

type Client struct {
	client         *redis.Client
	lastPingTime   time.Time
	lastPingError  error
	pingCacheMutex sync.RWMutex
}

// Nil is returned by Get when the key does not exist
var Nil = redis.Nil

func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	network := "tcp"
	if cfg.Network != "" {
		network = cfg.Network
	}

	// If addr looks like a socket path, automatically use unix
	if len(cfg.Addr) > 0 && cfg.Addr[0] == '/' {
		network = "unix"
	}

	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Network:      network,
		PoolSize:     100,
		MinIdleConns: 20,
		MaxRetries:   3,
		PoolTimeout:  4 * time.Second,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	rdb := redis.NewClient(opts)

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if logger != nil {
		logger.Info("redis connected", zap.String("network", network), zap.String("addr", cfg.Addr))
	}
	return &Client{client: rdb}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Ping checks the connection, caching the result for a second
func (c *Client) Ping(ctx context.Context) error {
	c.pingCacheMutex.RLock()
	if time.Since(c.lastPingTime) < time.Second {
		err := c.lastPingError
		c.pingCacheMutex.RUnlock()
		return err
	}
	c.pingCacheMutex.RUnlock()

	err := c.client.Ping(ctx).Err()

	c.pingCacheMutex.Lock()
	c.lastPingTime = time.Now()
	c.lastPingError = err
	c.pingCacheMutex.Unlock()
	return err
}

func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	return c.client.Get(ctx, key).Bytes()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// IsNil reports whether err means the key was missing
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
