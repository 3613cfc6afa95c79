package redis

import (
	"context"
	"testing"

	"discord-automod/internal/engine/escalation/markertest"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	c, err := New(context.Background(), Config{Addr: s.Addr()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, s
}

func TestMarkerScriptsContract(t *testing.T) {
	c, _ := testClient(t)
	markertest.Run(t, c.Markers(), "g1")
}

func TestMarkerZeroDeletesKey(t *testing.T) {
	c, s := testClient(t)
	ctx := context.Background()
	m := c.Markers()

	ok, err := m.CompareAndSwap(ctx, "g1", "u1", 0, 5)
	require.NoError(t, err)
	require.True(t, ok)
	v, err := s.Get(MarkerKey("g1", "u1"))
	require.NoError(t, err)
	assert.Equal(t, "5", v)

	require.NoError(t, m.Cap(ctx, "g1", "u1", 0))
	assert.False(t, s.Exists(MarkerKey("g1", "u1")))
}
