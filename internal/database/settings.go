package database

import (
	"context"
	"database/sql"
	"errors"
)

// GuildSettings are the per-guild automod switches
type GuildSettings struct {
	AutomodEnabled bool
	LogChannel     string
}

// GetSettings returns the guild's settings, defaulting to enabled with no log channel
func (d *Database) GetSettings(ctx context.Context, guildID string) (GuildSettings, error) {
	s := GuildSettings{AutomodEnabled: true}
	stmt := d.stmt(func(ps *PreparedStatements) *sql.Stmt { return ps.getSettings })
	err := stmt.QueryRowContext(ctx, guildID).Scan(&s.AutomodEnabled, &s.LogChannel)
	if errors.Is(err, sql.ErrNoRows) {
		return s, nil
	}
	return s, err
}

func (d *Database) LogChannel(ctx context.Context, guildID string) (string, error) {
	s, err := d.GetSettings(ctx, guildID)
	return s.LogChannel, err
}

func (d *Database) SetLogChannel(ctx context.Context, guildID, channelID string) error {
	query := `
		INSERT INTO guild_settings (guild_id, log_channel) VALUES ($1, $2)
		ON CONFLICT(guild_id) DO UPDATE SET log_channel = EXCLUDED.log_channel
	`
	_, err := d.db.ExecContext(ctx, query, guildID, channelID)
	return err
}

func (d *Database) AutomodEnabled(ctx context.Context, guildID string) (bool, error) {
	s, err := d.GetSettings(ctx, guildID)
	return s.AutomodEnabled, err
}

func (d *Database) SetAutomodEnabled(ctx context.Context, guildID string, enabled bool) error {
	query := `
		INSERT INTO guild_settings (guild_id, automod_enabled) VALUES ($1, $2)
		ON CONFLICT(guild_id) DO UPDATE SET automod_enabled = EXCLUDED.automod_enabled
	`
	_, err := d.db.ExecContext(ctx, query, guildID, enabled)
	return err
}
