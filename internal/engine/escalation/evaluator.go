package escalation

import (
	"context"
	"errors"
	"fmt"

	"discord-automod/internal/models"

	"go.uber.org/zap"
)

// maxSwapAttempts bounds the compare-and-swap loop under heavy contention
const maxSwapAttempts = 8

var ErrContention = errors.New("escalation marker contention")

// MarkerStore holds the last escalated threshold per (guild, user)
type MarkerStore interface {
	Get(ctx context.Context, guildID, userID string) (int64, error)
	// CompareAndSwap sets the marker to new only if it still equals old
	CompareAndSwap(ctx context.Context, guildID, userID string, old, new int64) (bool, error)
	// Cap lowers the marker to max when it is above it, never raises it
	Cap(ctx context.Context, guildID, userID string, max int64) error
}

// Evaluator decides when a point total crosses a new threshold. A threshold
// fires at most once until the marker is lowered again by a clear.
type Evaluator struct {
	markers MarkerStore
	logger  *zap.Logger
}

func NewEvaluator(markers MarkerStore, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{markers: markers, logger: logger}
}

// CheckAndEscalate returns the action for the highest threshold at or below
// total that has not fired yet, or nil. When several thresholds are crossed
// at once only the highest fires.
func (e *Evaluator) CheckAndEscalate(ctx context.Context, guildID, userID string, total int64, cfg *models.EscalationConfig) (*models.EscalationAction, error) {
	if cfg == nil || len(cfg.Thresholds) == 0 {
		return nil, nil
	}

	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		last, err := e.markers.Get(ctx, guildID, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to read escalation marker: %w", err)
		}

		threshold := pick(cfg, total, last)
		if threshold == nil {
			return nil, nil
		}

		ok, err := e.markers.CompareAndSwap(ctx, guildID, userID, last, threshold.Points)
		if err != nil {
			return nil, fmt.Errorf("failed to advance escalation marker: %w", err)
		}
		if !ok {
			// someone else moved the marker, re-read and decide again
			continue
		}

		e.logger.Info("escalation threshold crossed",
			zap.String("guild_id", guildID),
			zap.String("user_id", userID),
			zap.Int64("threshold", threshold.Points),
			zap.Int64("total", total),
			zap.String("action", string(threshold.Action)),
		)
		return &models.EscalationAction{
			GuildID:   guildID,
			UserID:    userID,
			Threshold: threshold.Points,
			Total:     total,
			Action:    threshold.Action,
			Params:    threshold.Params,
		}, nil
	}
	return nil, ErrContention
}

// Rebase lowers the marker after points were reduced so that thresholds the
// user no longer holds can fire again. It never fires anything itself.
func (e *Evaluator) Rebase(ctx context.Context, guildID, userID string, total int64, cfg *models.EscalationConfig) error {
	return e.markers.Cap(ctx, guildID, userID, cfg.HighestAtOrBelow(total))
}

// Reset returns the user to the normal state after a full clear
func (e *Evaluator) Reset(ctx context.Context, guildID, userID string) error {
	return e.markers.Cap(ctx, guildID, userID, 0)
}

func pick(cfg *models.EscalationConfig, total, last int64) *models.EscalationThreshold {
	var best *models.EscalationThreshold
	for i := range cfg.Thresholds {
		t := &cfg.Thresholds[i]
		if t.Points > total || t.Points <= last {
			continue
		}
		if best == nil || t.Points > best.Points {
			best = t
		}
	}
	return best
}
