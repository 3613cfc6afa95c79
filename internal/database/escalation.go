package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"discord-automod/internal/engine/escalation"
	"discord-automod/internal/models"

	"github.com/goccy/go-json"
)

// GetEscalationConfig returns the guild's thresholds, or an empty config
func (d *Database) GetEscalationConfig(ctx context.Context, guildID string) (*models.EscalationConfig, error) {
	cfg := &models.EscalationConfig{GuildID: guildID}
	var raw []byte

	stmt := d.stmt(func(ps *PreparedStatements) *sql.Stmt { return ps.getEscalation })
	err := stmt.QueryRowContext(ctx, guildID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &cfg.Thresholds); err != nil {
		return nil, fmt.Errorf("escalation %s: bad thresholds column: %w", guildID, err)
	}
	return cfg, nil
}

// LoadEscalationConfig lets the database act as the engine's escalation source
func (d *Database) LoadEscalationConfig(ctx context.Context, guildID string) (*models.EscalationConfig, error) {
	return d.GetEscalationConfig(ctx, guildID)
}

func (d *Database) SetEscalationConfig(ctx context.Context, cfg *models.EscalationConfig) error {
	raw, err := json.Marshal(cfg.Thresholds)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO automod_escalation (guild_id, thresholds, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT(guild_id) DO UPDATE SET thresholds = EXCLUDED.thresholds, updated_at = EXCLUDED.updated_at
	`
	_, err = d.db.ExecContext(ctx, query, cfg.GuildID, raw, models.Now())
	return err
}

// MarkerStore keeps escalation markers in Postgres for deployments without Redis
type MarkerStore struct {
	d *Database
}

func (d *Database) Markers() *MarkerStore {
	return &MarkerStore{d: d}
}

var _ escalation.MarkerStore = (*MarkerStore)(nil)

func (m *MarkerStore) Get(ctx context.Context, guildID, userID string) (int64, error) {
	var v int64
	err := m.d.db.QueryRowContext(ctx,
		"SELECT threshold FROM automod_escalation_markers WHERE guild_id = $1 AND user_id = $2",
		guildID, userID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return v, err
}

func (m *MarkerStore) CompareAndSwap(ctx context.Context, guildID, userID string, old, new int64) (bool, error) {
	if old == 0 {
		// a missing row counts as zero, so the first swap is an insert
		res, err := m.d.db.ExecContext(ctx, `
			INSERT INTO automod_escalation_markers (guild_id, user_id, threshold) VALUES ($1, $2, $3)
			ON CONFLICT (guild_id, user_id) DO UPDATE SET threshold = EXCLUDED.threshold
			WHERE automod_escalation_markers.threshold = 0`,
			guildID, userID, new)
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		return n == 1, err
	}

	res, err := m.d.db.ExecContext(ctx,
		"UPDATE automod_escalation_markers SET threshold = $4 WHERE guild_id = $1 AND user_id = $2 AND threshold = $3",
		guildID, userID, old, new)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (m *MarkerStore) Cap(ctx context.Context, guildID, userID string, max int64) error {
	if max <= 0 {
		_, err := m.d.db.ExecContext(ctx,
			"DELETE FROM automod_escalation_markers WHERE guild_id = $1 AND user_id = $2", guildID, userID)
		return err
	}
	_, err := m.d.db.ExecContext(ctx,
		"UPDATE automod_escalation_markers SET threshold = $3 WHERE guild_id = $1 AND user_id = $2 AND threshold > $3",
		guildID, userID, max)
	return err
}
