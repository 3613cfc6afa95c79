package cde

import (
	"context"
	"errors"
	"fmt"
	"time"

	"discord-automod/internal/engine/escalation"
	"discord-automod/internal/engine/ledger"
	"discord-automod/internal/engine/matcher"
	"discord-automod/internal/engine/performance"
	"discord-automod/internal/engine/planner"
	"discord-automod/internal/models"

	"go.uber.org/zap"
)

var (
	ErrEmptyBatch = errors.New("no content events")
	ErrMixedBatch = errors.New("content events must share guild and author")
)

// RuleSource returns the current enabled rule snapshot of a guild
type RuleSource interface {
	LoadEnabledRules(ctx context.Context, guildID string) ([]*models.AutomodRule, error)
}

// EscalationSource returns a guild's escalation thresholds, nil when none are configured
type EscalationSource interface {
	LoadEscalationConfig(ctx context.Context, guildID string) (*models.EscalationConfig, error)
}

// Engine runs the content decision pipeline: match, plan, record points and
// check escalation. It never talks to Discord; callers execute the returned plan.
type Engine struct {
	Rules      RuleSource
	Escalation EscalationSource
	Matcher    *matcher.Matcher
	Ledger     *ledger.Ledger
	Evaluator  *escalation.Evaluator
	Logger     *zap.Logger

	now func() time.Time
}

func NewEngine(rules RuleSource, esc EscalationSource, m *matcher.Matcher, l *ledger.Ledger, ev *escalation.Evaluator, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		Rules:      rules,
		Escalation: esc,
		Matcher:    m,
		Ledger:     l,
		Evaluator:  ev,
		Logger:     logger,
		now:        time.Now,
	}
}

// Process evaluates a single content event
func (e *Engine) Process(ctx context.Context, evt *models.ContentEvent) (*models.Plan, error) {
	return e.ProcessBatch(ctx, []*models.ContentEvent{evt})
}

// ProcessBatch evaluates every content event extracted from one delivery and
// plans them together, so a rule that matches two links of the same message
// is enforced once.
//
// When the ledger write fails the plan is still returned without the
// unrecorded warn steps, together with an error wrapping ledger.ErrTransient.
func (e *Engine) ProcessBatch(ctx context.Context, events []*models.ContentEvent) (plan *models.Plan, err error) {
	if len(events) == 0 {
		return nil, ErrEmptyBatch
	}
	first := events[0]
	for _, evt := range events[1:] {
		if evt.GuildID != first.GuildID || evt.AuthorID != first.AuthorID {
			return nil, ErrMixedBatch
		}
	}

	defer func() {
		if r := recover(); r != nil {
			e.Logger.Error("automod evaluation panic",
				zap.Any("err", r),
				zap.String("guild_id", first.GuildID),
				zap.String("user_id", first.AuthorID),
			)
			plan, err = nil, fmt.Errorf("automod evaluation panic: %v", r)
		}
	}()

	rules, err := e.Rules.LoadEnabledRules(ctx, first.GuildID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	plan = &models.Plan{
		GuildID:   first.GuildID,
		UserID:    first.AuthorID,
		CreatedAt: e.now().Unix(),
	}
	if len(rules) == 0 {
		return plan, nil
	}

	var target *models.ContentEvent
	seen := make(map[int64]struct{})
	for _, evt := range events {
		start := time.Now()
		results := e.Matcher.Evaluate(rules, evt.Target, evt.Content, evt.Scope)
		performance.RecordEvaluation(evt.Target, time.Since(start), len(results))

		for _, res := range results {
			if _, dup := seen[res.Rule.ID]; dup {
				continue
			}
			seen[res.Rule.ID] = struct{}{}
			plan.Matches = append(plan.Matches, res)
			if target == nil {
				target = evt
			}
		}
	}
	if len(plan.Matches) == 0 {
		return plan, nil
	}

	stepTarget := models.StepTarget{
		GuildID:   target.GuildID,
		UserID:    target.AuthorID,
		ChannelID: target.ChannelID,
		MessageID: target.MessageID,
		Emoji:     target.Emoji,
	}
	plan.Steps = planner.Plan(plan.Matches, stepTarget)

	err = e.recordWarnings(ctx, plan)
	if err != nil {
		performance.RecordLedgerError()
		performance.RecordPlan(plan)
		return plan, err
	}

	if plan.PointsAdded > 0 {
		step, escErr := e.CheckEscalation(ctx, plan.GuildID, plan.UserID, plan.Total, stepTarget)
		if escErr != nil {
			e.Logger.Error("escalation check failed",
				zap.String("guild_id", plan.GuildID),
				zap.String("user_id", plan.UserID),
				zap.Error(escErr),
			)
		} else if step != nil && !coveredBy(plan.Steps, step.Action) {
			plan.Steps = append(plan.Steps, *step)
		}
	}

	performance.RecordPlan(plan)
	return plan, nil
}

// recordWarnings writes one infraction per warn step and stamps the running
// total on each. Warn steps that could not be recorded are removed.
func (e *Engine) recordWarnings(ctx context.Context, plan *models.Plan) error {
	steps := plan.Steps[:0]
	var failed error

	for _, step := range plan.Steps {
		if step.Action != models.ActionWarn {
			steps = append(steps, step)
			continue
		}
		if failed != nil {
			continue
		}

		total, err := e.Ledger.AddPoints(ctx, &models.Infraction{
			GuildID: plan.GuildID,
			UserID:  plan.UserID,
			RuleID:  step.RuleID,
			Points:  step.Params.Points,
			Reason:  step.Params.Reason,
			Source:  models.SourceAutomod,
		})
		if err != nil {
			e.Logger.Error("failed to record infraction",
				zap.String("guild_id", plan.GuildID),
				zap.String("user_id", plan.UserID),
				zap.Int64("rule_id", step.RuleID),
				zap.Error(err),
			)
			failed = err
			continue
		}

		step.Params.Total = total
		plan.Total = total
		plan.PointsAdded += step.Params.Points
		steps = append(steps, step)
	}
	plan.Steps = steps

	if failed != nil && !errors.Is(failed, ledger.ErrTransient) {
		failed = fmt.Errorf("%w: %w", ledger.ErrTransient, failed)
	}
	return failed
}

// CheckEscalation turns a threshold crossing into an executable step. The
// total is bounded by the user's current active points, so a stale total
// never fires after the points were cleared.
func (e *Engine) CheckEscalation(ctx context.Context, guildID, userID string, total int64, target models.StepTarget) (*models.ActionStep, error) {
	cfg, err := e.Escalation.LoadEscalationConfig(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to load escalation config: %w", err)
	}
	if cfg == nil || len(cfg.Thresholds) == 0 {
		return nil, nil
	}

	// a clear may have landed since total was written
	current, err := e.Ledger.GetActivePoints(ctx, guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read active points: %w", err)
	}
	total = min(total, current)

	act, err := e.Evaluator.CheckAndEscalate(ctx, guildID, userID, total, cfg)
	if err != nil || act == nil {
		return nil, err
	}

	return &models.ActionStep{
		Action: act.Action,
		Target: target,
		Params: models.StepParams{
			ActionParams: act.Params,
			Total:        total,
			Reason:       fmt.Sprintf("Automatic escalation: reached %d points (threshold %d)", total, act.Threshold),
		},
		Escalation: act,
	}, nil
}

// Rebase lowers the escalation marker after points were reduced
func (e *Engine) Rebase(ctx context.Context, guildID, userID string, total int64) error {
	cfg, err := e.Escalation.LoadEscalationConfig(ctx, guildID)
	if err != nil {
		return fmt.Errorf("failed to load escalation config: %w", err)
	}
	return e.Evaluator.Rebase(ctx, guildID, userID, total, cfg)
}

// coveredBy reports whether the plan already punishes at least as hard as a
func coveredBy(steps []models.ActionStep, a models.Action) bool {
	for _, s := range steps {
		if s.Action.Escalatable() && s.Action.Rank() >= a.Rank() {
			return true
		}
	}
	return false
}
