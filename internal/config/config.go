package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"discord-automod/internal/database"
	"discord-automod/internal/redis"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Token       string                  `json:"token"`
	Redis       redis.Config            `json:"redis"`
	Postgres    database.PostgresConfig `json:"postgres"`
	Engine      EngineConfig            `json:"engine"`
	Log         LogConfig               `json:"log"`
	MetricsAddr string                  `json:"metrics_addr"`
}

type EngineConfig struct {
	PatternTimeoutMs int `json:"pattern_timeout_ms"`
	MaxPatternLength int `json:"max_pattern_length"`
	CacheTTLSeconds  int `json:"cache_ttl_seconds"`
	ExecutorQueue    int `json:"executor_queue"`
	ExecutorWorkers  int `json:"executor_workers"`
	ModLogQueue      int `json:"modlog_queue"`
	IngestQueue      int `json:"ingest_queue"`
	IngestWorkers    int `json:"ingest_workers"`
	EvalTimeoutMs    int `json:"eval_timeout_ms"`

	// MaxConcurrentMatches bounds running regex matches, 0 scales with the CPU count
	MaxConcurrentMatches int `json:"max_concurrent_matches"`
}

func (e EngineConfig) PatternTimeout() time.Duration {
	return time.Duration(e.PatternTimeoutMs) * time.Millisecond
}

func (e EngineConfig) CacheTTL() time.Duration {
	return time.Duration(e.CacheTTLSeconds) * time.Second
}

func (e EngineConfig) EvalTimeout() time.Duration {
	return time.Duration(e.EvalTimeoutMs) * time.Millisecond
}

type LogConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// Load reads a JSON config file and applies environment overrides. A missing
// file is not an error when the environment supplies a token.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err) && os.Getenv("DISCORD_TOKEN") != "":
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"DISCORD_TOKEN":     &c.Token,
		"REDIS_ADDR":        &c.Redis.Addr,
		"REDIS_PASSWORD":    &c.Redis.Password,
		"POSTGRES_HOST":     &c.Postgres.Host,
		"POSTGRES_USER":     &c.Postgres.User,
		"POSTGRES_PASSWORD": &c.Postgres.Password,
		"POSTGRES_DB":       &c.Postgres.Database,
		"POSTGRES_SSLMODE":  &c.Postgres.SSLMode,
		"LOG_LEVEL":         &c.Log.Level,
		"METRICS_ADDR":      &c.MetricsAddr,
	}
	for env, dst := range str {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"POSTGRES_PORT":      &c.Postgres.Port,
		"REDIS_DB":           &c.Redis.DB,
		"PATTERN_TIMEOUT_MS": &c.Engine.PatternTimeoutMs,
	}
	for env, dst := range ints {
		v := os.Getenv(env)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", env, err)
		}
		*dst = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Engine.PatternTimeoutMs <= 0 {
		c.Engine.PatternTimeoutMs = 100
	}
	if c.Engine.MaxPatternLength <= 0 {
		c.Engine.MaxPatternLength = 512
	}
	if c.Engine.CacheTTLSeconds <= 0 {
		c.Engine.CacheTTLSeconds = 300
	}
	if c.Engine.ExecutorQueue <= 0 {
		c.Engine.ExecutorQueue = 1000
	}
	if c.Engine.ExecutorWorkers <= 0 {
		c.Engine.ExecutorWorkers = 4
	}
	if c.Engine.ModLogQueue <= 0 {
		c.Engine.ModLogQueue = 1000
	}
	if c.Engine.IngestQueue <= 0 {
		c.Engine.IngestQueue = 4096
	}
	if c.Engine.IngestWorkers <= 0 {
		c.Engine.IngestWorkers = 8
	}
	if c.Engine.EvalTimeoutMs <= 0 {
		c.Engine.EvalTimeoutMs = 5000
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Logger builds the process logger from the log section
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
