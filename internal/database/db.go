package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
)

type Database struct {
	db               *sql.DB
	PreparedPingStmt *sql.Stmt
	PreparedStmts    *PreparedStatements
	// Cache for ping results
	lastPingTime   time.Time
	lastPingError  error
	pingCacheMutex sync.RWMutex
}

type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslmode"`
}

const schema = `
-- Automod rules
CREATE TABLE IF NOT EXISTS automod_rules (
    id BIGSERIAL PRIMARY KEY,
    guild_id TEXT NOT NULL,
    name TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 0,
    enabled BOOLEAN NOT NULL DEFAULT TRUE,
    target TEXT NOT NULL,
    patterns JSONB NOT NULL,
    match_mode TEXT NOT NULL DEFAULT 'any',
    actions TEXT[] NOT NULL,
    warn_points BIGINT NOT NULL DEFAULT 0,
    action_params JSONB NOT NULL DEFAULT '{}',
    channel_include TEXT[] NOT NULL DEFAULT '{}',
    channel_exclude TEXT[] NOT NULL DEFAULT '{}',
    role_include TEXT[] NOT NULL DEFAULT '{}',
    role_exclude TEXT[] NOT NULL DEFAULT '{}',
    dm_template TEXT NOT NULL DEFAULT '',
    dm_embed JSONB,
    is_preset BOOLEAN NOT NULL DEFAULT FALSE,
    preset_id TEXT NOT NULL DEFAULT '',
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL,
    UNIQUE(guild_id, name)
);

-- Infraction ledger, rows are deactivated and never deleted
CREATE TABLE IF NOT EXISTS automod_infractions (
    id BIGSERIAL PRIMARY KEY,
    guild_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    moderator_id TEXT NOT NULL DEFAULT '',
    rule_id BIGINT NOT NULL DEFAULT 0,
    points BIGINT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL,
    created_at BIGINT NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE
);

-- Escalation thresholds per guild
CREATE TABLE IF NOT EXISTS automod_escalation (
    guild_id TEXT PRIMARY KEY,
    thresholds JSONB NOT NULL,
    updated_at BIGINT NOT NULL
);

-- Last escalated threshold per user, used when Redis is not configured
CREATE TABLE IF NOT EXISTS automod_escalation_markers (
    guild_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    threshold BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (guild_id, user_id)
);

-- Guild Settings table
CREATE TABLE IF NOT EXISTS guild_settings (
    guild_id TEXT PRIMARY KEY,
    automod_enabled BOOLEAN NOT NULL DEFAULT TRUE,
    log_channel TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_automod_rules_guild_enabled ON automod_rules(guild_id, enabled);
CREATE INDEX IF NOT EXISTS idx_automod_rules_guild_preset ON automod_rules(guild_id, preset_id);
CREATE INDEX IF NOT EXISTS idx_automod_infractions_active ON automod_infractions(guild_id, user_id) WHERE active;
CREATE INDEX IF NOT EXISTS idx_automod_infractions_guild_user_time ON automod_infractions(guild_id, user_id, created_at DESC);
`

// Postgres error codes that mean another writer won and the unit can be retried
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeUniqueViolation      = "23505"
)

func NewDatabase(cfg PostgresConfig) (*Database, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(1 * time.Hour)

	// Execute schema
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	pingStmt, err := db.Prepare("SELECT 1")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare ping statement: %w", err)
	}

	d := &Database{
		db:               db,
		PreparedPingStmt: pingStmt,
	}

	// Initialize prepared statements for the evaluation hot path
	if err := d.InitPreparedStatements(); err != nil {
		return nil, fmt.Errorf("failed to init prepared statements: %w", err)
	}

	return d, nil
}

func (d *Database) Close() error {
	if d.PreparedPingStmt != nil {
		d.PreparedPingStmt.Close()
	}
	d.ClosePreparedStatements()
	return d.db.Close()
}

// Ping checks the connection, caching the result for a second
func (d *Database) Ping() error {
	d.pingCacheMutex.RLock()
	if time.Since(d.lastPingTime) < time.Second {
		err := d.lastPingError
		d.pingCacheMutex.RUnlock()
		return err
	}
	d.pingCacheMutex.RUnlock()

	var err error
	if d.PreparedPingStmt != nil {
		var result int
		err = d.PreparedPingStmt.QueryRow().Scan(&result)
	} else {
		err = d.db.Ping()
	}

	d.pingCacheMutex.Lock()
	d.lastPingTime = time.Now()
	d.lastPingError = err
	d.pingCacheMutex.Unlock()
	return err
}

// withUserLock runs fn in a transaction holding the advisory lock of
// (guild, user), so ledger writes for one user are serialised.
func (d *Database) withUserLock(ctx context.Context, guildID, userID string, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return mapConflict(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SET LOCAL lock_timeout = '2s'"); err != nil {
		return mapConflict(err)
	}
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))", guildID, userID); err != nil {
		return mapConflict(err)
	}

	if err := fn(tx); err != nil {
		return mapConflict(err)
	}
	return mapConflict(tx.Commit())
}

func isCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}
