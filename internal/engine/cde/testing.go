package cde

import (
	"context"
	"sync"
	"time"

	"discord-automod/internal/engine/escalation"
	"discord-automod/internal/engine/ledger"
	"discord-automod/internal/engine/matcher"
	"discord-automod/internal/engine/pattern"
	"discord-automod/internal/models"
)

// StaticSource serves rules and escalation configs from memory. It is used
// by tests and by the offline checker.
type StaticSource struct {
	mu         sync.RWMutex
	rules      map[string][]*models.AutomodRule
	escalation map[string]*models.EscalationConfig
}

func NewStaticSource() *StaticSource {
	return &StaticSource{
		rules:      make(map[string][]*models.AutomodRule),
		escalation: make(map[string]*models.EscalationConfig),
	}
}

func (s *StaticSource) SetRules(guildID string, rules ...*models.AutomodRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[guildID] = rules
}

func (s *StaticSource) SetEscalation(cfg *models.EscalationConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escalation[cfg.GuildID] = cfg
}

func (s *StaticSource) LoadEnabledRules(ctx context.Context, guildID string) ([]*models.AutomodRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.AutomodRule
	for _, r := range s.rules[guildID] {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *StaticSource) LoadEscalationConfig(ctx context.Context, guildID string) (*models.EscalationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.escalation[guildID], nil
}

// EngineTestFixture builds an engine over in-memory stores
func EngineTestFixture() (*Engine, *StaticSource, *ledger.MemStore) {
	compiler, err := pattern.NewCompiler(pattern.Options{Timeout: 250 * time.Millisecond})
	if err != nil {
		panic(err)
	}
	src := NewStaticSource()
	store := ledger.NewMemStore()
	eng := NewEngine(
		src,
		src,
		matcher.New(compiler),
		ledger.New(store, nil),
		escalation.NewEvaluator(escalation.NewMemMarkers(), nil),
		nil,
	)
	return eng, src, store
}
