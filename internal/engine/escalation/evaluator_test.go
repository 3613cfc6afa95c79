package escalation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"discord-automod/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func config() *models.EscalationConfig {
	return &models.EscalationConfig{
		GuildID: "g1",
		Thresholds: []models.EscalationThreshold{
			{Points: 5, Action: models.ActionTimeout, Params: models.ActionParams{TimeoutSeconds: 600}},
			{Points: 10, Action: models.ActionKick},
			{Points: 20, Action: models.ActionBan},
		},
	}
}

func TestFireOnce(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	e := NewEvaluator(NewMemMarkers(), nil)
	cfg := config()

	act, err := e.CheckAndEscalate(ctx, "g1", "u1", 4, cfg)
	require.NoError(t, err)
	assert.Nil(act)

	act, err = e.CheckAndEscalate(ctx, "g1", "u1", 5, cfg)
	require.NoError(t, err)
	require.NotNil(t, act)
	assert.Equal(models.ActionTimeout, act.Action)
	assert.Equal(int64(5), act.Threshold)
	assert.Equal(int64(600), act.Params.TimeoutSeconds)

	act, err = e.CheckAndEscalate(ctx, "g1", "u1", 6, cfg)
	require.NoError(t, err)
	assert.Nil(act)
}

func TestSkipsToHighestCrossed(t *testing.T) {
	ctx := context.Background()
	e := NewEvaluator(NewMemMarkers(), nil)

	act, err := e.CheckAndEscalate(ctx, "g1", "u1", 12, config())
	require.NoError(t, err)
	require.NotNil(t, act)
	assert.Equal(t, models.ActionKick, act.Action)

	act, err = e.CheckAndEscalate(ctx, "g1", "u1", 19, config())
	require.NoError(t, err)
	assert.Nil(t, act)

	act, err = e.CheckAndEscalate(ctx, "g1", "u1", 25, config())
	require.NoError(t, err)
	require.NotNil(t, act)
	assert.Equal(t, models.ActionBan, act.Action)
}

func TestResetOnClear(t *testing.T) {
	ctx := context.Background()
	e := NewEvaluator(NewMemMarkers(), nil)
	cfg := config()

	act, _ := e.CheckAndEscalate(ctx, "g1", "u1", 5, cfg)
	require.NotNil(t, act)

	require.NoError(t, e.Reset(ctx, "g1", "u1"))

	act, err := e.CheckAndEscalate(ctx, "g1", "u1", 5, cfg)
	require.NoError(t, err)
	require.NotNil(t, act)
	assert.Equal(t, int64(5), act.Threshold)
}

func TestRebase(t *testing.T) {
	ctx := context.Background()
	markers := NewMemMarkers()
	e := NewEvaluator(markers, nil)
	cfg := config()

	act, _ := e.CheckAndEscalate(ctx, "g1", "u1", 10, cfg)
	require.NotNil(t, act)

	// lowered to 7: marker drops to 5, the kick can fire again
	require.NoError(t, e.Rebase(ctx, "g1", "u1", 7, cfg))
	marker, _ := markers.Get(ctx, "g1", "u1")
	assert.Equal(t, int64(5), marker)

	act, _ = e.CheckAndEscalate(ctx, "g1", "u1", 7, cfg)
	assert.Nil(t, act)

	act, _ = e.CheckAndEscalate(ctx, "g1", "u1", 10, cfg)
	require.NotNil(t, act)
	assert.Equal(t, models.ActionKick, act.Action)

	// raising through Rebase never advances the marker
	require.NoError(t, e.Rebase(ctx, "g1", "u1", 30, cfg))
	marker, _ = markers.Get(ctx, "g1", "u1")
	assert.Equal(t, int64(10), marker)
}

func TestNoConfig(t *testing.T) {
	e := NewEvaluator(NewMemMarkers(), nil)
	act, err := e.CheckAndEscalate(context.Background(), "g1", "u1", 100, nil)
	assert.NoError(t, err)
	assert.Nil(t, act)

	assert.NoError(t, e.Rebase(context.Background(), "g1", "u1", 0, nil))
}

func TestConcurrentFiresOnce(t *testing.T) {
	ctx := context.Background()
	e := NewEvaluator(NewMemMarkers(), nil)
	cfg := config()

	var fired atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			act, err := e.CheckAndEscalate(ctx, "g1", "u1", 6, cfg)
			assert.NoError(t, err)
			if act != nil {
				fired.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), fired.Load())
}
