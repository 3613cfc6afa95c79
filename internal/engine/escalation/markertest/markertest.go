// Package markertest checks that an escalation.MarkerStore honours the
// compare-and-swap and cap contract the evaluator relies on.
package markertest

import (
	"context"
	"fmt"
	"testing"

	"discord-automod/internal/engine/escalation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises store under guildID, one user per case. The guild must hold
// no markers yet.
func Run(t *testing.T, store escalation.MarkerStore, guildID string) {
	ctx := context.Background()

	swap := func(t *testing.T, user string, old, new int64) bool {
		t.Helper()
		ok, err := store.CompareAndSwap(ctx, guildID, user, old, new)
		require.NoError(t, err)
		return ok
	}
	capAt := func(t *testing.T, user string, max int64) {
		t.Helper()
		require.NoError(t, store.Cap(ctx, guildID, user, max))
	}

	tests := []struct {
		name string
		seed int64
		run  func(t *testing.T, user string)
		want int64
	}{
		{
			name: "missing marker reads zero",
			run:  func(t *testing.T, user string) {},
			want: 0,
		},
		{
			name: "swap from zero on missing marker",
			run: func(t *testing.T, user string) {
				assert.True(t, swap(t, user, 0, 5))
			},
			want: 5,
		},
		{
			name: "stale swap fails",
			seed: 5,
			run: func(t *testing.T, user string) {
				assert.False(t, swap(t, user, 3, 10))
			},
			want: 5,
		},
		{
			name: "swap from zero fails once set",
			seed: 5,
			run: func(t *testing.T, user string) {
				assert.False(t, swap(t, user, 0, 10))
			},
			want: 5,
		},
		{
			name: "swap to zero re-arms",
			seed: 5,
			run: func(t *testing.T, user string) {
				assert.True(t, swap(t, user, 5, 0))
				assert.True(t, swap(t, user, 0, 3))
			},
			want: 3,
		},
		{
			name: "cap lowers",
			seed: 10,
			run:  func(t *testing.T, user string) { capAt(t, user, 5) },
			want: 5,
		},
		{
			name: "cap never raises",
			seed: 5,
			run:  func(t *testing.T, user string) { capAt(t, user, 10) },
			want: 5,
		},
		{
			name: "cap on missing marker stays zero",
			run:  func(t *testing.T, user string) { capAt(t, user, 10) },
			want: 0,
		},
		{
			name: "cap to zero resets",
			seed: 10,
			run: func(t *testing.T, user string) {
				capAt(t, user, 0)
				assert.True(t, swap(t, user, 0, 5))
			},
			want: 5,
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := fmt.Sprintf("u%d", i)
			if tt.seed > 0 {
				require.True(t, swap(t, user, 0, tt.seed))
			}
			tt.run(t, user)

			got, err := store.Get(ctx, guildID, user)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
