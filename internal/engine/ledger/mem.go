package ledger

import (
	"context"
	"sync"
	"sync/atomic"

	"discord-automod/internal/models"
)

type userLedger struct {
	mu          sync.Mutex
	infractions []models.Infraction
}

func (u *userLedger) total() int64 {
	var t int64
	for _, inf := range u.infractions {
		if inf.Active {
			t += inf.Points
		}
	}
	return t
}

// MemStore is an in-process Store with one mutex per (guild, user)
type MemStore struct {
	users  sync.Map // key -> *userLedger
	owners sync.Map // infraction id -> key
	nextID atomic.Int64

	conflicts atomic.Int64
}

func NewMemStore() *MemStore {
	return &MemStore{}
}

// InjectConflicts makes the next n writes fail with ErrWriteConflict
func (s *MemStore) InjectConflicts(n int64) {
	s.conflicts.Store(n)
}

func key(guildID, userID string) string {
	return guildID + ":" + userID
}

func (s *MemStore) user(guildID, userID string) *userLedger {
	v, _ := s.users.LoadOrStore(key(guildID, userID), &userLedger{})
	return v.(*userLedger)
}

func (s *MemStore) conflict() bool {
	for {
		n := s.conflicts.Load()
		if n <= 0 {
			return false
		}
		if s.conflicts.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

func (s *MemStore) Insert(ctx context.Context, inf *models.Infraction) (int64, error) {
	if s.conflict() {
		return 0, ErrWriteConflict
	}
	u := s.user(inf.GuildID, inf.UserID)
	u.mu.Lock()
	defer u.mu.Unlock()

	s.append(u, inf)
	return u.total(), nil
}

func (s *MemStore) append(u *userLedger, inf *models.Infraction) {
	inf.ID = s.nextID.Add(1)
	u.infractions = append(u.infractions, *inf)
	s.owners.Store(inf.ID, key(inf.GuildID, inf.UserID))
}

func (s *MemStore) ActivePoints(ctx context.Context, guildID, userID string) (int64, error) {
	u := s.user(guildID, userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.total(), nil
}

func (s *MemStore) DeactivateAll(ctx context.Context, guildID, userID string) (int64, error) {
	if s.conflict() {
		return 0, ErrWriteConflict
	}
	u := s.user(guildID, userID)
	u.mu.Lock()
	defer u.mu.Unlock()

	var n int64
	for i := range u.infractions {
		if u.infractions[i].Active {
			u.infractions[i].Active = false
			n++
		}
	}
	return n, nil
}

func (s *MemStore) DeactivateOne(ctx context.Context, guildID string, infractionID int64) (string, int64, error) {
	if s.conflict() {
		return "", 0, ErrWriteConflict
	}
	k, ok := s.owners.Load(infractionID)
	if !ok {
		return "", 0, models.ErrNotFound
	}
	v, ok := s.users.Load(k)
	if !ok {
		return "", 0, models.ErrNotFound
	}
	u := v.(*userLedger)
	u.mu.Lock()
	defer u.mu.Unlock()

	for i := range u.infractions {
		inf := &u.infractions[i]
		if inf.ID != infractionID {
			continue
		}
		if inf.GuildID != guildID {
			return "", 0, models.ErrNotFound
		}
		inf.Active = false
		return inf.UserID, u.total(), nil
	}
	return "", 0, models.ErrNotFound
}

func (s *MemStore) AdjustTo(ctx context.Context, adj *models.Infraction, target int64) (int64, error) {
	if s.conflict() {
		return 0, ErrWriteConflict
	}
	u := s.user(adj.GuildID, adj.UserID)
	u.mu.Lock()
	defer u.mu.Unlock()

	current := u.total()
	if current == target {
		return current, nil
	}
	adj.Points = target - current
	s.append(u, adj)
	return target, nil
}

func (s *MemStore) History(ctx context.Context, guildID, userID string, includeInactive bool) ([]models.Infraction, error) {
	u := s.user(guildID, userID)
	u.mu.Lock()
	defer u.mu.Unlock()

	out := make([]models.Infraction, 0, len(u.infractions))
	// newest first
	for i := len(u.infractions) - 1; i >= 0; i-- {
		inf := u.infractions[i]
		if !inf.Active && !includeInactive {
			continue
		}
		out = append(out, inf)
	}
	return out, nil
}
