package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Nzyazin/paychain/internal/core/models"
)

// UsageStore serializes admissions with one mutex for all identities.
type UsageStore struct {
	mu       sync.Mutex
	loc      *time.Location
	counters map[string]*models.UsageCounter
}

func NewUsageStore(loc *time.Location) *UsageStore {
	return &UsageStore{loc: loc, counters: make(map[string]*models.UsageCounter)}
}

func (s *UsageStore) Admit(ctx context.Context, identity string, limit int, now time.Time) (models.UsageDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[identity]
	if !ok {
		c = &models.UsageCounter{Identity: identity}
		s.counters[identity] = c
	}
	return c.Admit(limit, now, s.loc), nil
}
