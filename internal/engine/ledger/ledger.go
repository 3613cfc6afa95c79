package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"discord-automod/internal/models"

	"go.uber.org/zap"
)

var (
	// ErrWriteConflict is returned by a Store when a concurrent writer won the race
	ErrWriteConflict = errors.New("ledger write conflict")
	// ErrTransient means the write could not be applied after retrying. No
	// points were recorded and the caller may try again later.
	ErrTransient = errors.New("ledger temporarily unavailable")

	ErrNegativePoints = errors.New("points must not be negative")
)

// Store persists infractions. Every write method is atomic per (guild, user):
// the returned total always includes the write that produced it.
type Store interface {
	// Insert records inf and returns the new active total
	Insert(ctx context.Context, inf *models.Infraction) (int64, error)
	ActivePoints(ctx context.Context, guildID, userID string) (int64, error)
	// DeactivateAll flips every active infraction of the user and returns how many changed
	DeactivateAll(ctx context.Context, guildID, userID string) (int64, error)
	// DeactivateOne flips a single infraction and returns its owner and their new total
	DeactivateOne(ctx context.Context, guildID string, infractionID int64) (string, int64, error)
	// AdjustTo inserts a synthetic infraction carrying the delta between the
	// current total and target. A zero delta inserts nothing.
	AdjustTo(ctx context.Context, adj *models.Infraction, target int64) (int64, error)
	History(ctx context.Context, guildID, userID string, includeInactive bool) ([]models.Infraction, error)
}

// Ledger applies the retry policy on top of a Store
type Ledger struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func New(store Store, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, logger: logger, now: time.Now}
}

// AddPoints records inf and returns the user's new active total
func (l *Ledger) AddPoints(ctx context.Context, inf *models.Infraction) (int64, error) {
	if inf.Points < 0 {
		return 0, ErrNegativePoints
	}
	l.stamp(inf)

	var total int64
	err := l.retry(ctx, "add", inf.GuildID, inf.UserID, func() error {
		var err error
		total, err = l.store.Insert(ctx, inf)
		return err
	})
	return total, err
}

func (l *Ledger) GetActivePoints(ctx context.Context, guildID, userID string) (int64, error) {
	return l.store.ActivePoints(ctx, guildID, userID)
}

// Clear deactivates every active infraction of the user
func (l *Ledger) Clear(ctx context.Context, guildID, userID string) (int64, error) {
	var cleared int64
	err := l.retry(ctx, "clear", guildID, userID, func() error {
		var err error
		cleared, err = l.store.DeactivateAll(ctx, guildID, userID)
		return err
	})
	return cleared, err
}

// ClearInfraction deactivates one infraction and returns the owner's new total
func (l *Ledger) ClearInfraction(ctx context.Context, guildID string, infractionID int64) (string, int64, error) {
	var userID string
	var total int64
	err := l.retry(ctx, "clear_one", guildID, "", func() error {
		var err error
		userID, total, err = l.store.DeactivateOne(ctx, guildID, infractionID)
		return err
	})
	return userID, total, err
}

// SetPoints moves the user's total to value through one adjustment infraction
func (l *Ledger) SetPoints(ctx context.Context, guildID, userID string, value int64, moderatorID, reason string) (int64, error) {
	if value < 0 {
		return 0, ErrNegativePoints
	}
	if reason == "" {
		reason = fmt.Sprintf("Points set to %d", value)
	}
	adj := &models.Infraction{
		GuildID:     guildID,
		UserID:      userID,
		ModeratorID: moderatorID,
		Reason:      reason,
		Source:      models.SourceManual,
	}
	l.stamp(adj)

	var total int64
	err := l.retry(ctx, "set", guildID, userID, func() error {
		var err error
		total, err = l.store.AdjustTo(ctx, adj, value)
		return err
	})
	return total, err
}

func (l *Ledger) History(ctx context.Context, guildID, userID string, includeInactive bool) ([]models.Infraction, error) {
	return l.store.History(ctx, guildID, userID, includeInactive)
}

func (l *Ledger) stamp(inf *models.Infraction) {
	if inf.CreatedAt == 0 {
		inf.CreatedAt = l.now().Unix()
	}
	if inf.Source == "" {
		inf.Source = models.SourceAutomod
	}
	inf.Active = true
}

// retry runs op, retrying exactly once on a write conflict
func (l *Ledger) retry(ctx context.Context, op, guildID, userID string, fn func() error) error {
	err := fn()
	if !errors.Is(err, ErrWriteConflict) {
		return err
	}

	l.logger.Debug("ledger write conflict, retrying",
		zap.String("op", op),
		zap.String("guild_id", guildID),
		zap.String("user_id", userID),
	)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ErrTransient, ctxErr)
	}

	err = fn()
	if errors.Is(err, ErrWriteConflict) {
		l.logger.Warn("ledger write conflict persisted",
			zap.String("op", op),
			zap.String("guild_id", guildID),
			zap.String("user_id", userID),
		)
		return fmt.Errorf("%s %s/%s: %w", op, guildID, userID, ErrTransient)
	}
	return err
}
