// Package cursor tracks per-thread "read up to" timestamps merged from push
// events, periodic polling and local mark-read actions.
package cursor

import (
	"sync"

	"github.com/matheus3301/textsync/internal/bus"
	"github.com/matheus3301/textsync/internal/thread"
)

// Origin identifies which input path produced a cursor value.
type Origin string

const (
	OriginPush  Origin = "push"
	OriginPoll  Origin = "poll"
	OriginLocal Origin = "local"
)

// Advanced is the payload of cursor.advanced events.
type Advanced struct {
	ThreadID   string
	LastReadAt int64
	Origin     Origin
}

// Store holds read cursors keyed by the thread id as recorded and by its
// canonical form. Values only move forward and entries are never deleted.
type Store struct {
	mu          sync.RWMutex
	byRaw       map[string]int64
	byCanonical map[string]int64
	bus         *bus.Bus
}

// NewStore creates an empty store. b may be nil.
func NewStore(b *bus.Bus) *Store {
	return &Store{
		byRaw:       make(map[string]int64),
		byCanonical: make(map[string]int64),
		bus:         b,
	}
}

// Merge records ts for threadID if it is later than what is known. It
// returns true when the stored value advanced. Merging the same or an older
// value is a no-op, so merges are idempotent and commutative.
func (s *Store) Merge(threadID string, ts int64, origin Origin) bool {
	if threadID == "" || ts <= 0 {
		return false
	}
	canonical := thread.Canonical(threadID)

	s.mu.Lock()
	advanced := false
	if ts > s.byRaw[threadID] {
		s.byRaw[threadID] = ts
		advanced = true
	}
	if ts > s.byCanonical[canonical] {
		s.byCanonical[canonical] = ts
		advanced = true
	}
	s.mu.Unlock()

	if advanced && s.bus != nil {
		s.bus.Emit(bus.CursorAdvanced, Advanced{ThreadID: threadID, LastReadAt: ts, Origin: origin})
	}
	return advanced
}

// Get returns the cursor for threadID, looking it up as given and then in
// canonical form. The later of the two wins.
func (s *Store) Get(threadID string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, okRaw := s.byRaw[threadID]
	canonical, okCanonical := s.byCanonical[thread.Canonical(threadID)]
	return max(raw, canonical), okRaw || okCanonical
}

// Snapshot returns a copy of all cursors keyed by canonical thread id.
func (s *Store) Snapshot() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64, len(s.byCanonical))
	for k, v := range s.byCanonical {
		out[k] = v
	}
	return out
}
