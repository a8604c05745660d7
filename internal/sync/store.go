package sync

import (
	gosync "sync"
	"time"

	"github.com/fares7elsadek/syncspace-watch/internal/domain"
)

// Store holds the last-known authoritative room state together with the
// local receipt instant it was accepted at. The state is replaced wholesale,
// never field-patched, so the base timestamp and its epoch always move
// together. The session controller is the only writer.
type Store struct {
	mu         gosync.RWMutex
	state      domain.RoomState
	receivedAt time.Time
	seeded     bool
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Replace(state domain.RoomState, receivedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state
	s.receivedAt = receivedAt
	s.seeded = true
}

// Snapshot returns the current state, its receipt instant and whether the
// store has been seeded at all.
func (s *Store) Snapshot() (domain.RoomState, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state, s.receivedAt, s.seeded
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = domain.RoomState{}
	s.receivedAt = time.Time{}
	s.seeded = false
}
