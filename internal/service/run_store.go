package service

import (
	"sync"
	"time"

	"github.com/noah-isme/timetable-engine/internal/dto"
)

// runStore keeps recent run views in memory until they expire.
type runStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]storedRun
	now   func() time.Time
}

type storedRun struct {
	view    dto.TimetableRunResponse
	savedAt time.Time
}

func newRunStore(ttl time.Duration) *runStore {
	return &runStore{
		ttl:   ttl,
		items: make(map[string]storedRun),
		now:   time.Now,
	}
}

func (s *runStore) Save(view dto.TimetableRunResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[view.RunID] = storedRun{view: view, savedAt: s.now()}
}

func (s *runStore) Get(id string) (dto.TimetableRunResponse, bool) {
	s.mu.RLock()
	item, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return dto.TimetableRunResponse{}, false
	}
	if s.now().Sub(item.savedAt) > s.ttl {
		s.Delete(id)
		return dto.TimetableRunResponse{}, false
	}
	return item.view, true
}

func (s *runStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

// Sweep drops every expired run and reports how many were removed.
func (s *runStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	now := s.now()
	for id, item := range s.items {
		if now.Sub(item.savedAt) > s.ttl {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}
