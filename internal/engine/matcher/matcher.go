package matcher

import (
	"cmp"
	"errors"
	"slices"
	"time"

	"discord-automod/internal/engine/pattern"
	"discord-automod/internal/models"

	"go.uber.org/zap"
)

// FaultFunc receives pattern timeouts and compile failures found while matching
type FaultFunc func(models.Fault)

// Matcher evaluates content against a rule snapshot. It holds no per-call
// state and is safe for concurrent use.
type Matcher struct {
	compiler *pattern.Compiler
	logger   *zap.Logger
	onFault  FaultFunc
}

type Option func(*Matcher)

func WithLogger(l *zap.Logger) Option {
	return func(m *Matcher) { m.logger = l }
}

// WithFaultHandler registers a callback for engine faults
func WithFaultHandler(f FaultFunc) Option {
	return func(m *Matcher) { m.onFault = f }
}

func New(compiler *pattern.Compiler, opts ...Option) *Matcher {
	m := &Matcher{
		compiler: compiler,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Evaluate returns every enabled, in-scope rule for target whose patterns
// match content, ordered by (priority, id).
func (m *Matcher) Evaluate(rules []*models.AutomodRule, target models.Target, content string, scope models.Scope) []models.MatchResult {
	candidates := make([]*models.AutomodRule, 0, len(rules))
	seen := make(map[int64]struct{}, len(rules))
	for _, r := range rules {
		if r == nil || !r.Enabled || r.Target != target {
			continue
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		if !InScope(r, scope) {
			continue
		}
		candidates = append(candidates, r)
	}

	slices.SortFunc(candidates, func(a, b *models.AutomodRule) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	var results []models.MatchResult
	for _, r := range candidates {
		labels, ok := m.matchRule(r, content, scope.GuildID)
		if !ok {
			continue
		}
		results = append(results, models.MatchResult{
			Rule:                 r,
			MatchedPatternLabels: labels,
			Content:              content,
		})
	}
	return results
}

func (m *Matcher) matchRule(r *models.AutomodRule, content, guildID string) ([]string, bool) {
	if len(r.Patterns) == 0 {
		return nil, false
	}

	switch r.MatchMode {
	case models.MatchAll:
		labels := make([]string, 0, len(r.Patterns))
		for _, p := range r.Patterns {
			if !m.run(r, p, content, guildID) {
				return nil, false
			}
			labels = append(labels, p.DisplayLabel())
		}
		return labels, true
	default:
		for _, p := range r.Patterns {
			if m.run(r, p, content, guildID) {
				return []string{p.DisplayLabel()}, true
			}
		}
		return nil, false
	}
}

// run never fails: compile and timeout problems are reported and treated as a non-match
func (m *Matcher) run(r *models.AutomodRule, p models.Pattern, content, guildID string) bool {
	compiled, err := m.compiler.Compile(p.Regex, p.Flags)
	if err != nil {
		m.fault(models.Fault{
			Kind:     models.FaultPatternInvalid,
			GuildID:  guildID,
			RuleID:   r.ID,
			RuleName: r.Name,
			Label:    p.DisplayLabel(),
			Detail:   err.Error(),
		})
		return false
	}

	start := time.Now()
	matched, err := m.compiler.Execute(compiled, content)
	if err != nil {
		kind := models.FaultPatternInvalid
		if errors.Is(err, pattern.ErrPatternTimeout) {
			kind = models.FaultPatternTimeout
		}
		m.fault(models.Fault{
			Kind:     kind,
			GuildID:  guildID,
			RuleID:   r.ID,
			RuleName: r.Name,
			Label:    p.DisplayLabel(),
			Elapsed:  time.Since(start),
			Detail:   err.Error(),
		})
		return false
	}
	return matched
}

func (m *Matcher) fault(f models.Fault) {
	m.logger.Warn("automod pattern fault",
		zap.String("kind", string(f.Kind)),
		zap.String("guild_id", f.GuildID),
		zap.Int64("rule_id", f.RuleID),
		zap.String("rule", f.RuleName),
		zap.String("label", f.Label),
		zap.Duration("elapsed", f.Elapsed),
		zap.String("detail", f.Detail),
	)
	if m.onFault != nil {
		m.onFault(f)
	}
}

// InScope applies a rule's channel and role filters. Exclusions always win;
// an empty include list admits everything.
func InScope(r *models.AutomodRule, scope models.Scope) bool {
	if scope.ChannelID != "" && slices.Contains(r.ChannelExclude, scope.ChannelID) {
		return false
	}
	for _, role := range scope.RoleIDs {
		if slices.Contains(r.RoleExclude, role) {
			return false
		}
	}

	// nickname events carry no channel, channel filters do not apply to them
	if scope.ChannelID != "" && len(r.ChannelInclude) > 0 && !slices.Contains(r.ChannelInclude, scope.ChannelID) {
		return false
	}
	if len(r.RoleInclude) > 0 && !slices.ContainsFunc(scope.RoleIDs, func(role string) bool {
		return slices.Contains(r.RoleInclude, role)
	}) {
		return false
	}
	return true
}
