package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

const ruleColumns = `
	id, guild_id, name, priority, enabled, target, patterns, match_mode, actions,
	warn_points, action_params, channel_include, channel_exclude, role_include, role_exclude,
	dm_template, dm_embed, is_preset, preset_id, created_at, updated_at`

// PreparedStatements holds the statements run on every evaluated event
type PreparedStatements struct {
	mu sync.RWMutex
	db *sql.DB

	loadEnabledRules *sql.Stmt
	activePoints     *sql.Stmt
	getEscalation    *sql.Stmt
	getSettings      *sql.Stmt
}

// InitPreparedStatements pre-compiles the hot path queries
func (d *Database) InitPreparedStatements() error {
	ps := &PreparedStatements{db: d.db}

	var err error
	ps.loadEnabledRules, err = d.db.Prepare(`SELECT ` + ruleColumns + `
		FROM automod_rules WHERE guild_id = $1 AND enabled
		ORDER BY priority, id`)
	if err != nil {
		return fmt.Errorf("failed to prepare loadEnabledRules: %w", err)
	}

	ps.activePoints, err = d.db.Prepare(`
		SELECT COALESCE(SUM(points), 0) FROM automod_infractions
		WHERE guild_id = $1 AND user_id = $2 AND active`)
	if err != nil {
		return fmt.Errorf("failed to prepare activePoints: %w", err)
	}

	ps.getEscalation, err = d.db.Prepare(`SELECT thresholds FROM automod_escalation WHERE guild_id = $1`)
	if err != nil {
		return fmt.Errorf("failed to prepare getEscalation: %w", err)
	}

	ps.getSettings, err = d.db.Prepare(`SELECT automod_enabled, log_channel FROM guild_settings WHERE guild_id = $1`)
	if err != nil {
		return fmt.Errorf("failed to prepare getSettings: %w", err)
	}

	if d.PreparedStmts == nil {
		d.PreparedStmts = ps
		return nil
	}

	// re-prepare: swap in place so readers holding the lock never see a half set
	cur := d.PreparedStmts
	cur.mu.Lock()
	stale := []*sql.Stmt{cur.loadEnabledRules, cur.activePoints, cur.getEscalation, cur.getSettings}
	cur.loadEnabledRules = ps.loadEnabledRules
	cur.activePoints = ps.activePoints
	cur.getEscalation = ps.getEscalation
	cur.getSettings = ps.getSettings
	cur.mu.Unlock()

	for _, st := range stale {
		if st != nil {
			st.Close()
		}
	}
	return nil
}

func (d *Database) stmt(sel func(*PreparedStatements) *sql.Stmt) *sql.Stmt {
	ps := d.PreparedStmts
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return sel(ps)
}

// StartPreparedStatementRefresher re-prepares statements once the database
// answers again after an outage
func (d *Database) StartPreparedStatementRefresher(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		stale := false
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := d.db.PingContext(ctx); err != nil {
					stale = true
					continue
				}
				if stale && d.InitPreparedStatements() == nil {
					stale = false
				}
			}
		}
	}()
}

// ClosePreparedStatements closes all prepared statements
func (d *Database) ClosePreparedStatements() {
	if d.PreparedStmts == nil {
		return
	}

	d.PreparedStmts.mu.Lock()
	defer d.PreparedStmts.mu.Unlock()

	stmts := []*sql.Stmt{
		d.PreparedStmts.loadEnabledRules,
		d.PreparedStmts.activePoints,
		d.PreparedStmts.getEscalation,
		d.PreparedStmts.getSettings,
	}
	for _, s := range stmts {
		if s != nil {
			s.Close()
		}
	}
}
