package database

import (
	"context"
	"database/sql"
	"errors"

	"discord-automod/internal/engine/ledger"
	"discord-automod/internal/models"
)

// mapConflict turns lock and serialization failures into ledger.ErrWriteConflict
func mapConflict(err error) error {
	if err == nil {
		return nil
	}
	if isCode(err, codeSerializationFailure) || isCode(err, codeDeadlockDetected) || isCode(err, codeLockNotAvailable) {
		return errors.Join(ledger.ErrWriteConflict, err)
	}
	return err
}

// LedgerStore is the Postgres ledger.Store. Writes for one user are
// serialised through a transaction-scoped advisory lock.
type LedgerStore struct {
	d *Database
}

func (d *Database) Ledger() *LedgerStore {
	return &LedgerStore{d: d}
}

var _ ledger.Store = (*LedgerStore)(nil)

func (s *LedgerStore) Insert(ctx context.Context, inf *models.Infraction) (int64, error) {
	var total int64
	err := s.d.withUserLock(ctx, inf.GuildID, inf.UserID, func(tx *sql.Tx) error {
		if err := insertInfraction(ctx, tx, inf); err != nil {
			return err
		}
		var err error
		total, err = activePointsTx(ctx, tx, inf.GuildID, inf.UserID)
		return err
	})
	return total, err
}

func insertInfraction(ctx context.Context, tx *sql.Tx, inf *models.Infraction) error {
	return tx.QueryRowContext(ctx, `
		INSERT INTO automod_infractions (guild_id, user_id, moderator_id, rule_id, points, reason, source, created_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
		RETURNING id`,
		inf.GuildID, inf.UserID, inf.ModeratorID, inf.RuleID, inf.Points, inf.Reason, inf.Source, inf.CreatedAt,
	).Scan(&inf.ID)
}

func activePointsTx(ctx context.Context, tx *sql.Tx, guildID, userID string) (int64, error) {
	var total int64
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(points), 0) FROM automod_infractions
		WHERE guild_id = $1 AND user_id = $2 AND active`, guildID, userID).Scan(&total)
	return total, err
}

func (s *LedgerStore) ActivePoints(ctx context.Context, guildID, userID string) (int64, error) {
	stmt := s.d.stmt(func(ps *PreparedStatements) *sql.Stmt { return ps.activePoints })
	var total int64
	err := stmt.QueryRowContext(ctx, guildID, userID).Scan(&total)
	return total, err
}

func (s *LedgerStore) DeactivateAll(ctx context.Context, guildID, userID string) (int64, error) {
	var n int64
	err := s.d.withUserLock(ctx, guildID, userID, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE automod_infractions SET active = FALSE WHERE guild_id = $1 AND user_id = $2 AND active",
			guildID, userID)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

func (s *LedgerStore) DeactivateOne(ctx context.Context, guildID string, infractionID int64) (string, int64, error) {
	var userID string
	err := s.d.db.QueryRowContext(ctx,
		"SELECT user_id FROM automod_infractions WHERE guild_id = $1 AND id = $2", guildID, infractionID,
	).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, models.ErrNotFound
	}
	if err != nil {
		return "", 0, err
	}

	var total int64
	err = s.d.withUserLock(ctx, guildID, userID, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"UPDATE automod_infractions SET active = FALSE WHERE guild_id = $1 AND id = $2",
			guildID, infractionID); err != nil {
			return err
		}
		var err error
		total, err = activePointsTx(ctx, tx, guildID, userID)
		return err
	})
	return userID, total, err
}

func (s *LedgerStore) AdjustTo(ctx context.Context, adj *models.Infraction, target int64) (int64, error) {
	total := target
	err := s.d.withUserLock(ctx, adj.GuildID, adj.UserID, func(tx *sql.Tx) error {
		current, err := activePointsTx(ctx, tx, adj.GuildID, adj.UserID)
		if err != nil {
			return err
		}
		if current == target {
			return nil
		}
		adj.Points = target - current
		return insertInfraction(ctx, tx, adj)
	})
	return total, err
}

// History returns the user's infractions, newest first
func (s *LedgerStore) History(ctx context.Context, guildID, userID string, includeInactive bool) ([]models.Infraction, error) {
	rows, err := s.d.db.QueryContext(ctx, `
		SELECT id, guild_id, user_id, moderator_id, rule_id, points, reason, source, created_at, active
		FROM automod_infractions
		WHERE guild_id = $1 AND user_id = $2 AND (active OR $3)
		ORDER BY created_at DESC, id DESC`, guildID, userID, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Infraction
	for rows.Next() {
		var inf models.Infraction
		if err := rows.Scan(&inf.ID, &inf.GuildID, &inf.UserID, &inf.ModeratorID, &inf.RuleID,
			&inf.Points, &inf.Reason, &inf.Source, &inf.CreatedAt, &inf.Active); err != nil {
			return nil, err
		}
		out = append(out, inf)
	}
	return out, rows.Err()
}
