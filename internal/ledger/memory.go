package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process, mutex-guarded Store implementation. It is the
// reference implementation of the chain semantics and the store used in
// tests and single-node deployments without durability requirements.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []*Entry // append order; timestamps are strictly increasing
	tail    string
	lastTS  int64
	now     func() int64 // overridable for tests
}

// NewMemoryStore creates an empty MemoryStore. Unlike a blockchain-style
// ledger there is no genesis sentinel: the first appended entry is the chain
// root and carries an empty PreviousHash.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
		now:     func() int64 { return time.Now().UnixNano() },
	}
}

// Append implements Store. The whole read-tail/compute-hash/advance-tail/
// insert sequence runs under one mutex hold so concurrent appends can never
// observe or corrupt an intermediate tail.
func (s *MemoryStore) Append(_ context.Context, rec Record) (*Entry, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Timestamps must be strictly increasing so that chain order and
	// timestamp order coincide; a clock that has not advanced past the
	// previous entry is bumped by one nanosecond.
	ts := s.now()
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}

	e := &Entry{
		ID:                 newEntryID(),
		Timestamp:          ts,
		EventType:          rec.EventType,
		Actor:              rec.Actor,
		ResourceType:       rec.ResourceType,
		ResourceID:         rec.ResourceID,
		Action:             rec.Action,
		Details:            rec.Details,
		Metadata:           rec.Metadata,
		PreviousHash:       s.tail,
		ComplianceRelevant: rec.ComplianceRelevant,
	}
	if rec.ComplianceRelevant && rec.Retention > 0 {
		e.RetentionUntil = ts + rec.Retention.Nanoseconds()
	}
	e.Hash = ComputeHash(e)

	s.entries[e.ID] = e
	s.order = append(s.order, e)
	s.tail = e.Hash
	s.lastTS = ts
	return e, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// Query implements Store.
func (s *MemoryStore) Query(_ context.Context, f Filter) ([]*Entry, error) {
	s.mu.RLock()
	matches := make([]*Entry, 0)
	for _, e := range s.order {
		if f.Matches(e) {
			matches = append(matches, e)
		}
	}
	s.mu.RUnlock()

	return f.sortAndPage(matches), nil
}

// All implements Store.
func (s *MemoryStore) All(_ context.Context) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, len(s.order))
	copy(out, s.order)
	return out, nil
}

// Len implements Store.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order), nil
}

// Tail implements Store.
func (s *MemoryStore) Tail(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tail, nil
}

// Verify implements Store. Entries are re-sorted by their stored timestamps
// rather than trusted in append order, so a tampered timestamp surfaces as a
// chain break.
func (s *MemoryStore) Verify(_ context.Context) error {
	s.mu.RLock()
	entries := make([]*Entry, len(s.order))
	copy(entries, s.order)
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp < entries[j].Timestamp
	})
	return verifyEntries(entries)
}
