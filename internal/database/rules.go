package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"discord-automod/internal/models"

	"github.com/goccy/go-json"
	"github.com/lib/pq"
)

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row scanner) (*models.AutomodRule, error) {
	var r models.AutomodRule
	var patterns, params []byte
	var dmEmbed sql.NullString
	var actions []string

	err := row.Scan(
		&r.ID, &r.GuildID, &r.Name, &r.Priority, &r.Enabled, &r.Target, &patterns, &r.MatchMode,
		pq.Array(&actions), &r.WarnPoints, &params,
		pq.Array(&r.ChannelInclude), pq.Array(&r.ChannelExclude), pq.Array(&r.RoleInclude), pq.Array(&r.RoleExclude),
		&r.DMTemplate, &dmEmbed, &r.IsPreset, &r.PresetID, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(patterns, &r.Patterns); err != nil {
		return nil, fmt.Errorf("rule %d: bad patterns column: %w", r.ID, err)
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &r.ActionParams); err != nil {
			return nil, fmt.Errorf("rule %d: bad action_params column: %w", r.ID, err)
		}
	}
	if dmEmbed.Valid && dmEmbed.String != "" {
		r.DMEmbed = &models.DMEmbed{}
		if err := json.Unmarshal([]byte(dmEmbed.String), r.DMEmbed); err != nil {
			return nil, fmt.Errorf("rule %d: bad dm_embed column: %w", r.ID, err)
		}
	}
	r.Actions = make([]models.Action, len(actions))
	for i, a := range actions {
		r.Actions[i] = models.Action(a)
	}
	return &r, nil
}

type ruleArgs struct {
	patterns []byte
	params   []byte
	dmEmbed  interface{}
	actions  []string
}

func encodeRule(r *models.AutomodRule) (*ruleArgs, error) {
	var a ruleArgs
	var err error
	if a.patterns, err = json.Marshal(r.Patterns); err != nil {
		return nil, err
	}
	if a.params, err = json.Marshal(r.ActionParams); err != nil {
		return nil, err
	}
	if r.DMEmbed != nil {
		b, err := json.Marshal(r.DMEmbed)
		if err != nil {
			return nil, err
		}
		a.dmEmbed = string(b)
	}
	a.actions = make([]string, len(r.Actions))
	for i, act := range r.Actions {
		a.actions[i] = string(act)
	}
	return &a, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// CreateRule inserts r and fills in its id and timestamps
func (d *Database) CreateRule(ctx context.Context, r *models.AutomodRule) error {
	a, err := encodeRule(r)
	if err != nil {
		return fmt.Errorf("failed to encode rule: %w", err)
	}
	now := models.Now()

	query := `
		INSERT INTO automod_rules (
			guild_id, name, priority, enabled, target, patterns, match_mode, actions, warn_points,
			action_params, channel_include, channel_exclude, role_include, role_exclude,
			dm_template, dm_embed, is_preset, preset_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $19)
		RETURNING id
	`
	err = d.db.QueryRowContext(ctx, query,
		r.GuildID, r.Name, r.Priority, r.Enabled, r.Target, a.patterns, r.MatchMode, pq.Array(a.actions), r.WarnPoints,
		a.params, pq.Array(nonNil(r.ChannelInclude)), pq.Array(nonNil(r.ChannelExclude)),
		pq.Array(nonNil(r.RoleInclude)), pq.Array(nonNil(r.RoleExclude)),
		r.DMTemplate, a.dmEmbed, r.IsPreset, r.PresetID, now,
	).Scan(&r.ID)
	if isCode(err, codeUniqueViolation) {
		return models.ErrDuplicateName
	}
	if err != nil {
		return err
	}
	r.CreatedAt, r.UpdatedAt = now, now
	return nil
}

// UpdateRule overwrites every mutable field of an existing rule
func (d *Database) UpdateRule(ctx context.Context, r *models.AutomodRule) error {
	a, err := encodeRule(r)
	if err != nil {
		return fmt.Errorf("failed to encode rule: %w", err)
	}
	now := models.Now()

	query := `
		UPDATE automod_rules SET
			name = $3, priority = $4, enabled = $5, target = $6, patterns = $7, match_mode = $8,
			actions = $9, warn_points = $10, action_params = $11, channel_include = $12,
			channel_exclude = $13, role_include = $14, role_exclude = $15, dm_template = $16,
			dm_embed = $17, updated_at = $18
		WHERE guild_id = $1 AND id = $2
	`
	res, err := d.db.ExecContext(ctx, query,
		r.GuildID, r.ID, r.Name, r.Priority, r.Enabled, r.Target, a.patterns, r.MatchMode,
		pq.Array(a.actions), r.WarnPoints, a.params, pq.Array(nonNil(r.ChannelInclude)),
		pq.Array(nonNil(r.ChannelExclude)), pq.Array(nonNil(r.RoleInclude)), pq.Array(nonNil(r.RoleExclude)),
		r.DMTemplate, a.dmEmbed, now,
	)
	if isCode(err, codeUniqueViolation) {
		return models.ErrDuplicateName
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	r.UpdatedAt = now
	return nil
}

func (d *Database) SetRuleEnabled(ctx context.Context, guildID string, id int64, enabled bool) error {
	res, err := d.db.ExecContext(ctx,
		"UPDATE automod_rules SET enabled = $3, updated_at = $4 WHERE guild_id = $1 AND id = $2",
		guildID, id, enabled, models.Now())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (d *Database) DeleteRule(ctx context.Context, guildID string, id int64) error {
	res, err := d.db.ExecContext(ctx, "DELETE FROM automod_rules WHERE guild_id = $1 AND id = $2", guildID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteRulesByPreset removes every rule installed from presetID
func (d *Database) DeleteRulesByPreset(ctx context.Context, guildID, presetID string) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		"DELETE FROM automod_rules WHERE guild_id = $1 AND is_preset AND preset_id = $2", guildID, presetID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *Database) GetRule(ctx context.Context, guildID string, id int64) (*models.AutomodRule, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM automod_rules WHERE guild_id = $1 AND id = $2`, guildID, id)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	return r, err
}

// ListRules returns every rule of a guild, enabled or not
func (d *Database) ListRules(ctx context.Context, guildID string) ([]*models.AutomodRule, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM automod_rules WHERE guild_id = $1 ORDER BY priority, id`, guildID)
	if err != nil {
		return nil, err
	}
	return collectRules(rows)
}

// LoadEnabledRules returns the enabled rule snapshot of a guild
func (d *Database) LoadEnabledRules(ctx context.Context, guildID string) ([]*models.AutomodRule, error) {
	stmt := d.stmt(func(ps *PreparedStatements) *sql.Stmt { return ps.loadEnabledRules })
	rows, err := stmt.QueryContext(ctx, guildID)
	if err != nil {
		return nil, err
	}
	return collectRules(rows)
}

func collectRules(rows *sql.Rows) ([]*models.AutomodRule, error) {
	defer rows.Close()

	var rules []*models.AutomodRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}
