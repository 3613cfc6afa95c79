package commands

import (
	"context"
	"errors"
	"testing"
	"time"

	"discord-automod/internal/presets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	catalogue, err := presets.Builtin()
	require.NoError(t, err)

	r := NewRegistry(catalogue)
	var names []string
	for _, c := range r.Commands {
		names = append(names, c.Name)
		assert.NotNil(t, r.Handler(c.Name), c.Name)
	}
	assert.ElementsMatch(t, []string{"automod", "warn", "points", "ping"}, names)
	assert.Nil(t, r.Handler("gcreate"))
}

func TestMeasure(t *testing.T) {
	down := errors.New("connection refused")
	results := measure(context.Background(), []Pinger{
		{Name: "Postgres", Ping: func(context.Context) error { time.Sleep(5 * time.Millisecond); return nil }},
		{Name: "Redis", Ping: func(context.Context) error { return down }},
	})

	require.Len(t, results, 2)
	assert.Equal(t, "Postgres", results[0].name)
	assert.NoError(t, results[0].err)
	assert.GreaterOrEqual(t, results[0].latency, 5*time.Millisecond)
	assert.Equal(t, "Redis", results[1].name)
	assert.ErrorIs(t, results[1].err, down)
}

func TestSnowflakeTime(t *testing.T) {
	// 175928847299117063 is the example id from the Discord docs
	ts, ok := snowflakeTime("175928847299117063")
	require.True(t, ok)
	assert.Equal(t, int64(1462015105796), ts.UnixMilli())

	_, ok = snowflakeTime("not-an-id")
	assert.False(t, ok)
}
