package services

import (
	"context"
	"sync"
	"testing"

	"discord-automod/internal/engine/cde"
	"discord-automod/internal/engine/pattern"
	"discord-automod/internal/models"
	"discord-automod/internal/presets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRules struct {
	mu     sync.Mutex
	nextID int64
	rules  map[int64]*models.AutomodRule
	esc    map[string]*models.EscalationConfig
}

func newMemRules() *memRules {
	return &memRules{rules: map[int64]*models.AutomodRule{}, esc: map[string]*models.EscalationConfig{}}
}

func (m *memRules) CreateRule(ctx context.Context, r *models.AutomodRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.rules {
		if other.GuildID == r.GuildID && other.Name == r.Name {
			return models.ErrDuplicateName
		}
	}
	m.nextID++
	r.ID = m.nextID
	m.rules[r.ID] = r.Clone()
	return nil
}

func (m *memRules) UpdateRule(ctx context.Context, r *models.AutomodRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.rules[r.ID]; !ok || old.GuildID != r.GuildID {
		return models.ErrNotFound
	}
	m.rules[r.ID] = r.Clone()
	return nil
}

func (m *memRules) DeleteRule(ctx context.Context, guildID string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rules[id]; !ok || r.GuildID != guildID {
		return models.ErrNotFound
	}
	delete(m.rules, id)
	return nil
}

func (m *memRules) SetRuleEnabled(ctx context.Context, guildID string, id int64, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok || r.GuildID != guildID {
		return models.ErrNotFound
	}
	r.Enabled = enabled
	return nil
}

func (m *memRules) GetRule(ctx context.Context, guildID string, id int64) (*models.AutomodRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok || r.GuildID != guildID {
		return nil, models.ErrNotFound
	}
	return r.Clone(), nil
}

func (m *memRules) ListRules(ctx context.Context, guildID string) ([]*models.AutomodRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AutomodRule
	for _, r := range m.rules {
		if r.GuildID == guildID {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (m *memRules) DeleteRulesByPreset(ctx context.Context, guildID, presetID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.rules {
		if r.GuildID == guildID && r.IsPreset && r.PresetID == presetID {
			delete(m.rules, id)
			n++
		}
	}
	return n, nil
}

func (m *memRules) GetEscalationConfig(ctx context.Context, guildID string) (*models.EscalationConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := m.esc[guildID]; ok {
		return cfg, nil
	}
	return &models.EscalationConfig{GuildID: guildID}, nil
}

func (m *memRules) SetEscalationConfig(ctx context.Context, cfg *models.EscalationConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.esc[cfg.GuildID] = cfg
	return nil
}

type memSettings struct {
	logChannel map[string]string
	disabled   map[string]bool
}

func (m *memSettings) SetLogChannel(ctx context.Context, guildID, channelID string) error {
	m.logChannel[guildID] = channelID
	return nil
}

func (m *memSettings) SetAutomodEnabled(ctx context.Context, guildID string, enabled bool) error {
	m.disabled[guildID] = !enabled
	return nil
}

type countingInvalidator struct {
	mu     sync.Mutex
	guilds []string
}

func (c *countingInvalidator) Invalidate(ctx context.Context, guildID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.guilds = append(c.guilds, guildID)
}

type planRecorder struct {
	plans []*models.Plan
}

func (p *planRecorder) Push(plan *models.Plan) error {
	p.plans = append(p.plans, plan)
	return nil
}

type fixture struct {
	svc   *AutomodService
	store *memRules
	set   *memSettings
	src   *cde.StaticSource
	inv   *countingInvalidator
	sink  *planRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	eng, src, _ := cde.EngineTestFixture()
	compiler, err := pattern.NewCompiler(pattern.Options{})
	require.NoError(t, err)
	t.Cleanup(compiler.Close)
	catalogue, err := presets.Builtin()
	require.NoError(t, err)

	f := &fixture{
		store: newMemRules(),
		set:   &memSettings{logChannel: map[string]string{}, disabled: map[string]bool{}},
		src:   src,
		inv:   &countingInvalidator{},
		sink:  &planRecorder{},
	}
	f.svc = NewAutomodService(f.store, f.set, f.inv, compiler, catalogue, eng, f.sink, nil)
	return f
}

func contentRule(name, regex string) *models.AutomodRule {
	return &models.AutomodRule{
		GuildID:  "g1",
		Name:     name,
		Enabled:  true,
		Target:   models.TargetMessageContent,
		Patterns: []models.Pattern{{Regex: regex}},
		Actions:  []models.Action{models.ActionDelete},
	}
}

func TestCreateRuleValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := contentRule("ok", "bad")
	require.NoError(t, f.svc.CreateRule(ctx, r))
	assert.NotZero(t, r.ID)
	assert.Equal(t, models.MatchAny, r.MatchMode)
	assert.Equal(t, []string{"g1"}, f.inv.guilds)

	err := f.svc.CreateRule(ctx, contentRule("broken", "(?<=x)y"))
	assert.ErrorIs(t, err, pattern.ErrInvalidPattern)

	err = f.svc.CreateRule(ctx, contentRule("ok", "other"))
	assert.ErrorIs(t, err, models.ErrDuplicateName)

	noActions := contentRule("none", "x")
	noActions.Actions = nil
	var verr *models.ValidationError
	assert.ErrorAs(t, f.svc.CreateRule(ctx, noActions), &verr)
}

func TestCreateWildcardRule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := contentRule("words", "")
	bad, err := f.svc.CreateWildcardRule(ctx, r, "*badword*, ***", false)
	assert.ErrorIs(t, err, ErrPartialWildcard)
	assert.Len(t, bad, 1)
	assert.Zero(t, r.ID)

	bad, err = f.svc.CreateWildcardRule(ctx, r, "*badword*, ***", true)
	require.NoError(t, err)
	assert.Len(t, bad, 1)
	require.Len(t, r.Patterns, 1)
	assert.Equal(t, "*badword*", r.Patterns[0].Label)
}

func TestPresetInstallUninstall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.InstallPreset(ctx, "g1", "phishing-links")
	require.NoError(t, err)
	assert.True(t, r.IsPreset)

	r.WarnPoints = 99
	require.NoError(t, f.svc.UpdateRule(ctx, r))
	got, err := f.svc.GetRule(ctx, "g1", r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(99), got.WarnPoints)

	fresh, err := f.svc.Presets.Instantiate("phishing-links", "g2")
	require.NoError(t, err)
	assert.NotEqual(t, int64(99), fresh.WarnPoints)

	n, err := f.svc.UninstallPreset(ctx, "g1", "phishing-links")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.svc.InstallPreset(ctx, "g1", "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = f.svc.UninstallPreset(ctx, "g1", "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSettingsInvalidateCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SetLogChannel(ctx, "g1", "c9"))
	require.NoError(t, f.svc.SetAutomodEnabled(ctx, "g2", false))
	assert.Equal(t, "c9", f.set.logChannel["g1"])
	assert.True(t, f.set.disabled["g2"])
	assert.Equal(t, []string{"g1", "g2"}, f.inv.guilds)
}

func TestSetEscalationConfigRejectsNonIncreasing(t *testing.T) {
	f := newFixture(t)
	err := f.svc.SetEscalationConfig(context.Background(), &models.EscalationConfig{GuildID: "g1", Thresholds: []models.EscalationThreshold{
		{Points: 5, Action: models.ActionKick},
		{Points: 5, Action: models.ActionBan},
	}})
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func escalationAt(points int64, action models.Action) *models.EscalationConfig {
	return &models.EscalationConfig{GuildID: "g1", Thresholds: []models.EscalationThreshold{
		{Points: points, Action: action},
	}}
}

func TestManualWarnEscalatesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.src.SetEscalation(escalationAt(5, models.ActionKick))

	plan, err := f.svc.Warn(ctx, "g1", "u1", "mod", 3, "")
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 1)

	plan, err = f.svc.Warn(ctx, "g1", "u1", "mod", 3, "spam")
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, models.ActionKick, plan.Steps[1].Action)
	assert.Equal(t, int64(6), plan.Total)

	plan, err = f.svc.Warn(ctx, "g1", "u1", "mod", 1, "spam")
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 1)
	assert.Len(t, f.sink.plans, 3)

	hist, err := f.svc.History(ctx, "g1", "u1", false)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, models.SourceManual, hist[0].Source)
	assert.Equal(t, "mod", hist[0].ModeratorID)
}

func TestClearPointsRearmsEscalation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.src.SetEscalation(escalationAt(5, models.ActionKick))

	_, err := f.svc.Warn(ctx, "g1", "u1", "mod", 5, "")
	require.NoError(t, err)

	n, err := f.svc.ClearPoints(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	pts, err := f.svc.GetPoints(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.Zero(t, pts)

	plan, err := f.svc.Warn(ctx, "g1", "u1", "mod", 5, "")
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, models.ActionKick, plan.Steps[1].Action)
}

func TestClearInfractionRebases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.src.SetEscalation(escalationAt(5, models.ActionKick))

	_, err := f.svc.Warn(ctx, "g1", "u1", "mod", 2, "")
	require.NoError(t, err)
	_, err = f.svc.Warn(ctx, "g1", "u1", "mod", 3, "")
	require.NoError(t, err)

	hist, err := f.svc.History(ctx, "g1", "u1", false)
	require.NoError(t, err)
	total, err := f.svc.ClearInfraction(ctx, "g1", hist[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	// below the threshold again, so crossing it re-fires
	plan, err := f.svc.Warn(ctx, "g1", "u1", "mod", 3, "")
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 2)

	hist, err = f.svc.History(ctx, "g1", "u1", true)
	require.NoError(t, err)
	assert.Len(t, hist, 3)
}

func TestSetPointsNeverFires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.src.SetEscalation(escalationAt(5, models.ActionKick))

	total, err := f.svc.SetPoints(ctx, "g1", "u1", "mod", 10, "")
	require.NoError(t, err)
	assert.Equal(t, int64(10), total)
	assert.Empty(t, f.sink.plans)

	// the marker was never raised, so the next warning escalates
	plan, err := f.svc.Warn(ctx, "g1", "u1", "mod", 1, "")
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 2)
}

func TestClearPointsBeforeEscalationCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.src.SetEscalation(escalationAt(5, models.ActionKick))

	total, err := f.svc.Engine.Ledger.AddPoints(ctx, &models.Infraction{GuildID: "g1", UserID: "u1", Points: 5, Source: models.SourceAutomod})
	require.NoError(t, err)

	_, err = f.svc.ClearPoints(ctx, "g1", "u1")
	require.NoError(t, err)

	step, err := f.svc.Engine.CheckEscalation(ctx, "g1", "u1", total, models.StepTarget{GuildID: "g1", UserID: "u1"})
	require.NoError(t, err)
	assert.Nil(t, step)

	pts, err := f.svc.GetPoints(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.Zero(t, pts)
}
