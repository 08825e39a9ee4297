package mailbox

import (
	"strings"
	"sync"
	"time"
)

// Observer is notified after a write has been committed to the store.
//
// Callbacks run outside the store lock, so two concurrent writes may be
// delivered in either order. rev is assigned under the lock and increases
// with every committed write; ordering by rev gives the commit order.
type Observer interface {
	SnapshotStored(rev uint64, s Snapshot)
	MessageStored(rev uint64, clientID, text string)
}

type record struct {
	snapshot   *Snapshot
	message    string
	hasMessage bool
}

// Store is the in-memory mailbox. The zero value is not usable; use NewStore.
//
// A single RWMutex guards the map. Every critical section is a lookup plus a
// pointer or string swap, so writers for distinct identifiers only contend
// for the duration of that swap. Writes for one identifier are ordered by
// lock acquisition.
type Store struct {
	mu      sync.RWMutex
	records map[string]*record
	order   []string // first-seen order
	rev     uint64   // bumped on every committed write

	now      func() time.Time
	observer Observer
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp snapshots.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithObserver registers an observer for committed writes.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		records: make(map[string]*record),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// recordLocked returns the record for id, creating it. Caller holds mu.
func (s *Store) recordLocked(id string) *record {
	r, ok := s.records[id]
	if !ok {
		r = &record{}
		s.records[id] = r
		s.order = append(s.order, id)
	}
	return r
}

// PutSnapshot replaces the snapshot for snap.ClientID. CapturedAt is assigned
// by the store; an empty ClientID becomes DefaultClientID. The stored copy is
// returned.
func (s *Store) PutSnapshot(snap Snapshot) (Snapshot, error) {
	if snap.HTML == "" {
		return Snapshot{}, ErrEmptyContent
	}
	if snap.ClientID == "" {
		snap.ClientID = DefaultClientID
	}
	snap.CapturedAt = s.now()
	stored := snap

	s.mu.Lock()
	s.recordLocked(snap.ClientID).snapshot = &stored
	s.rev++
	rev := s.rev
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.SnapshotStored(rev, snap)
	}
	return snap, nil
}

// PutMessage replaces the message for id. Text is trimmed; empty text is
// rejected before anything is written.
func (s *Store) PutMessage(id, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}

	s.mu.Lock()
	r := s.recordLocked(id)
	r.message = text
	r.hasMessage = true
	s.rev++
	rev := s.rev
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.MessageStored(rev, id, text)
	}
	return nil
}

// Message returns the current message for id, or WaitingText.
func (s *Store) Message(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.records[id]; ok && r.hasMessage {
		return r.message
	}
	return WaitingText
}

// Snapshot returns a copy of the current snapshot for id.
func (s *Store) Snapshot(id string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok || r.snapshot == nil {
		return Snapshot{}, false
	}
	return *r.snapshot, true
}

// List returns every known identifier in first-seen order.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, 0, len(s.order))
	for _, id := range s.order {
		r := s.records[id]
		e := Entry{ClientID: id, Message: r.message, HasMessage: r.hasMessage}
		if r.snapshot != nil {
			snap := *r.snapshot
			e.Snapshot = &snap
		}
		entries = append(entries, e)
	}
	return entries
}

// Len returns the number of known identifiers.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
