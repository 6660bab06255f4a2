package planner

import (
	"sync"
	"time"
)

type board struct {
	generation uint64
	day        *Day
	touched    time.Time
}

// boardStore keeps the latest day per session. A refresh takes a generation
// on begin and may only commit while that generation is still the newest.
// Boards untouched for longer than the idle limit are dropped by sweep.
type boardStore struct {
	mu  sync.Mutex
	m   map[string]*board
	now func() time.Time
}

func newBoardStore() *boardStore {
	return &boardStore{m: make(map[string]*board), now: time.Now}
}

func (s *boardStore) begin(session string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.m[session]
	if b == nil {
		b = &board{}
		s.m[session] = b
	}
	b.generation++
	b.day = nil
	b.touched = s.now()
	return b.generation
}

func (s *boardStore) commit(session string, generation uint64, day *Day) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.m[session]
	if b == nil || b.generation != generation {
		return false
	}
	day.Generation = generation
	b.day = day
	b.touched = s.now()
	return true
}

func (s *boardStore) current(session string) *Day {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.m[session]
	if b == nil {
		return nil
	}
	b.touched = s.now()
	return b.day
}

func (s *boardStore) reset(session string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, session)
}

// sweep drops boards idle for longer than maxIdle and returns how many went.
func (s *boardStore) sweep(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-maxIdle)
	dropped := 0
	for session, b := range s.m {
		if b.touched.Before(cutoff) {
			delete(s.m, session)
			dropped++
		}
	}
	return dropped
}

func (s *boardStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
