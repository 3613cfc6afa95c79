package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"discord-automod/internal/engine/cde"
	"discord-automod/internal/engine/pattern"
	"discord-automod/internal/models"
	"discord-automod/internal/presets"

	"go.uber.org/zap"
)

// ErrPartialWildcard is returned when some wildcard tokens failed and the caller did not allow a partial rule
var ErrPartialWildcard = errors.New("some wildcard tokens could not be translated")

// RuleStore persists rules and escalation configs
type RuleStore interface {
	CreateRule(ctx context.Context, r *models.AutomodRule) error
	UpdateRule(ctx context.Context, r *models.AutomodRule) error
	DeleteRule(ctx context.Context, guildID string, id int64) error
	SetRuleEnabled(ctx context.Context, guildID string, id int64, enabled bool) error
	GetRule(ctx context.Context, guildID string, id int64) (*models.AutomodRule, error)
	ListRules(ctx context.Context, guildID string) ([]*models.AutomodRule, error)
	DeleteRulesByPreset(ctx context.Context, guildID, presetID string) (int64, error)
	GetEscalationConfig(ctx context.Context, guildID string) (*models.EscalationConfig, error)
	SetEscalationConfig(ctx context.Context, cfg *models.EscalationConfig) error
}

// SettingsStore persists the per-guild switches
type SettingsStore interface {
	SetLogChannel(ctx context.Context, guildID, channelID string) error
	SetAutomodEnabled(ctx context.Context, guildID string, enabled bool) error
}

// Invalidator drops cached snapshots of a guild
type Invalidator interface {
	Invalidate(ctx context.Context, guildID string)
}

// PlanSink executes plans produced outside the gateway path
type PlanSink interface {
	Push(plan *models.Plan) error
}

type AutomodService struct {
	Store    RuleStore
	Settings SettingsStore
	Cache    Invalidator
	Compiler *pattern.Compiler
	Presets  *presets.Catalogue
	Engine   *cde.Engine
	Executor PlanSink
	Logger   *zap.Logger
}

func NewAutomodService(store RuleStore, settings SettingsStore, cache Invalidator, compiler *pattern.Compiler, catalogue *presets.Catalogue, engine *cde.Engine, executor PlanSink, logger *zap.Logger) *AutomodService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutomodService{
		Store:    store,
		Settings: settings,
		Cache:    cache,
		Compiler: compiler,
		Presets:  catalogue,
		Engine:   engine,
		Executor: executor,
		Logger:   logger.Named("automod"),
	}
}

// validate checks structure and compiles every pattern so that a rule that
// could never run is rejected before it is saved
func (s *AutomodService) validate(r *models.AutomodRule) error {
	if r.MatchMode == "" {
		r.MatchMode = models.MatchAny
	}
	if err := r.Validate(); err != nil {
		return err
	}
	for _, p := range r.Patterns {
		if _, err := s.Compiler.Compile(p.Regex, p.Flags); err != nil {
			return err
		}
	}
	return nil
}

func (s *AutomodService) changed(ctx context.Context, guildID string) {
	if s.Cache != nil {
		s.Cache.Invalidate(ctx, guildID)
	}
}

// CreateRule validates and stores a new custom rule
func (s *AutomodService) CreateRule(ctx context.Context, r *models.AutomodRule) error {
	if err := s.validate(r); err != nil {
		return err
	}
	if err := s.Store.CreateRule(ctx, r); err != nil {
		return err
	}
	s.changed(ctx, r.GuildID)
	s.Logger.Info("automod rule created",
		zap.String("guild_id", r.GuildID),
		zap.Int64("rule_id", r.ID),
		zap.String("name", r.Name),
	)
	return nil
}

// CreateWildcardRule builds the rule's patterns from a wildcard expression.
// Untranslatable tokens fail the whole rule unless allowPartial is set, in
// which case they are returned alongside the saved rule.
func (s *AutomodService) CreateWildcardRule(ctx context.Context, r *models.AutomodRule, expr string, allowPartial bool) ([]*pattern.TokenError, error) {
	patterns, tokenErrs := pattern.WildcardTranslator{MaxLength: s.Compiler.MaxLength()}.Translate(expr)
	if len(tokenErrs) > 0 && (!allowPartial || len(patterns) == 0) {
		msgs := make([]string, len(tokenErrs))
		for i, e := range tokenErrs {
			msgs[i] = e.Error()
		}
		return tokenErrs, fmt.Errorf("%w: %s", ErrPartialWildcard, strings.Join(msgs, "; "))
	}

	r.Patterns = patterns
	if err := s.CreateRule(ctx, r); err != nil {
		return tokenErrs, err
	}
	return tokenErrs, nil
}

func (s *AutomodService) UpdateRule(ctx context.Context, r *models.AutomodRule) error {
	if err := s.validate(r); err != nil {
		return err
	}
	if err := s.Store.UpdateRule(ctx, r); err != nil {
		return err
	}
	s.changed(ctx, r.GuildID)
	return nil
}

func (s *AutomodService) DeleteRule(ctx context.Context, guildID string, id int64) error {
	if err := s.Store.DeleteRule(ctx, guildID, id); err != nil {
		return err
	}
	s.changed(ctx, guildID)
	return nil
}

func (s *AutomodService) SetRuleEnabled(ctx context.Context, guildID string, id int64, enabled bool) error {
	if err := s.Store.SetRuleEnabled(ctx, guildID, id, enabled); err != nil {
		return err
	}
	s.changed(ctx, guildID)
	return nil
}

func (s *AutomodService) GetRule(ctx context.Context, guildID string, id int64) (*models.AutomodRule, error) {
	return s.Store.GetRule(ctx, guildID, id)
}

func (s *AutomodService) ListRules(ctx context.Context, guildID string) ([]*models.AutomodRule, error) {
	return s.Store.ListRules(ctx, guildID)
}

// InstallPreset copies a preset into the guild as an ordinary editable rule
func (s *AutomodService) InstallPreset(ctx context.Context, guildID, presetID string) (*models.AutomodRule, error) {
	r, err := s.Presets.Instantiate(presetID, guildID)
	if err != nil {
		return nil, err
	}
	if err := s.CreateRule(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// UninstallPreset removes every rule installed from presetID
func (s *AutomodService) UninstallPreset(ctx context.Context, guildID, presetID string) (int64, error) {
	if !s.Presets.Contains(presetID) {
		return 0, fmt.Errorf("preset %q: %w", presetID, models.ErrNotFound)
	}
	n, err := s.Store.DeleteRulesByPreset(ctx, guildID, presetID)
	if err != nil {
		return 0, err
	}
	s.changed(ctx, guildID)
	return n, nil
}

func (s *AutomodService) GetEscalationConfig(ctx context.Context, guildID string) (*models.EscalationConfig, error) {
	return s.Store.GetEscalationConfig(ctx, guildID)
}

func (s *AutomodService) SetEscalationConfig(ctx context.Context, cfg *models.EscalationConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := s.Store.SetEscalationConfig(ctx, cfg); err != nil {
		return err
	}
	s.changed(ctx, cfg.GuildID)
	return nil
}

func (s *AutomodService) SetLogChannel(ctx context.Context, guildID, channelID string) error {
	if err := s.Settings.SetLogChannel(ctx, guildID, channelID); err != nil {
		return err
	}
	s.changed(ctx, guildID)
	return nil
}

// SetAutomodEnabled switches evaluation for the whole guild without touching its rules
func (s *AutomodService) SetAutomodEnabled(ctx context.Context, guildID string, enabled bool) error {
	if err := s.Settings.SetAutomodEnabled(ctx, guildID, enabled); err != nil {
		return err
	}
	s.changed(ctx, guildID)
	s.Logger.Info("automod toggled", zap.String("guild_id", guildID), zap.Bool("enabled", enabled))
	return nil
}

// Warn issues manual points and applies escalation exactly like an automatic
// warning. The resulting plan is handed to the executor when one is set.
func (s *AutomodService) Warn(ctx context.Context, guildID, userID, moderatorID string, points int64, reason string) (*models.Plan, error) {
	if reason == "" {
		reason = "Manual warning"
	}
	total, err := s.Engine.Ledger.AddPoints(ctx, &models.Infraction{
		GuildID:     guildID,
		UserID:      userID,
		ModeratorID: moderatorID,
		Points:      points,
		Reason:      reason,
		Source:      models.SourceManual,
	})
	if err != nil {
		return nil, err
	}

	target := models.StepTarget{GuildID: guildID, UserID: userID}
	plan := &models.Plan{
		GuildID:     guildID,
		UserID:      userID,
		PointsAdded: points,
		Total:       total,
		CreatedAt:   time.Now().Unix(),
		Steps: []models.ActionStep{{
			Action: models.ActionWarn,
			Target: target,
			Params: models.StepParams{Points: points, Total: total, Reason: reason},
		}},
	}

	step, err := s.Engine.CheckEscalation(ctx, guildID, userID, total, target)
	if err != nil {
		s.Logger.Error("escalation check failed", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
	} else if step != nil {
		plan.Steps = append(plan.Steps, *step)
	}

	s.push(plan)
	return plan, nil
}

// ClearPoints deactivates all of the user's points and re-arms every threshold
func (s *AutomodService) ClearPoints(ctx context.Context, guildID, userID string) (int64, error) {
	n, err := s.Engine.Ledger.Clear(ctx, guildID, userID)
	if err != nil {
		return 0, err
	}

	// warnings recorded after the clear keep the thresholds they crossed
	current, err := s.Engine.Ledger.GetActivePoints(ctx, guildID, userID)
	if err != nil {
		return n, fmt.Errorf("points cleared but escalation marker not reset: %w", err)
	}
	if current == 0 {
		err = s.Engine.Evaluator.Reset(ctx, guildID, userID)
	} else {
		err = s.Engine.Rebase(ctx, guildID, userID, current)
	}
	if err != nil {
		return n, fmt.Errorf("points cleared but escalation marker not reset: %w", err)
	}
	return n, nil
}

// ClearInfraction deactivates one infraction and lowers the escalation marker to match
func (s *AutomodService) ClearInfraction(ctx context.Context, guildID string, infractionID int64) (int64, error) {
	userID, total, err := s.Engine.Ledger.ClearInfraction(ctx, guildID, infractionID)
	if err != nil {
		return 0, err
	}
	if err := s.Engine.Rebase(ctx, guildID, userID, total); err != nil {
		return total, fmt.Errorf("infraction cleared but escalation marker not rebased: %w", err)
	}
	return total, nil
}

// SetPoints moves the user's total to value. It never fires an escalation;
// the marker is only lowered when the new total drops below it.
func (s *AutomodService) SetPoints(ctx context.Context, guildID, userID, moderatorID string, value int64, reason string) (int64, error) {
	total, err := s.Engine.Ledger.SetPoints(ctx, guildID, userID, value, moderatorID, reason)
	if err != nil {
		return 0, err
	}
	if err := s.Engine.Rebase(ctx, guildID, userID, total); err != nil {
		return total, fmt.Errorf("points set but escalation marker not rebased: %w", err)
	}
	return total, nil
}

func (s *AutomodService) GetPoints(ctx context.Context, guildID, userID string) (int64, error) {
	return s.Engine.Ledger.GetActivePoints(ctx, guildID, userID)
}

func (s *AutomodService) History(ctx context.Context, guildID, userID string, includeInactive bool) ([]models.Infraction, error) {
	return s.Engine.Ledger.History(ctx, guildID, userID, includeInactive)
}

func (s *AutomodService) push(plan *models.Plan) {
	if s.Executor == nil {
		return
	}
	if err := s.Executor.Push(plan); err != nil {
		s.Logger.Warn("failed to queue plan", zap.String("guild_id", plan.GuildID), zap.Error(err))
	}
}
