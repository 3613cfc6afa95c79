package escalation

import (
	"context"
	"sync"
)

// MemMarkers is an in-process MarkerStore
type MemMarkers struct {
	mu      sync.Mutex
	markers map[string]int64
}

func NewMemMarkers() *MemMarkers {
	return &MemMarkers{markers: make(map[string]int64)}
}

func markerKey(guildID, userID string) string {
	return guildID + ":" + userID
}

func (m *MemMarkers) Get(ctx context.Context, guildID, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markers[markerKey(guildID, userID)], nil
}

func (m *MemMarkers) CompareAndSwap(ctx context.Context, guildID, userID string, old, new int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := markerKey(guildID, userID)
	if m.markers[k] != old {
		return false, nil
	}
	m.markers[k] = new
	return true, nil
}

func (m *MemMarkers) Cap(ctx context.Context, guildID, userID string, max int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := markerKey(guildID, userID)
	if m.markers[k] > max {
		if max <= 0 {
			delete(m.markers, k)
		} else {
			m.markers[k] = max
		}
	}
	return nil
}
