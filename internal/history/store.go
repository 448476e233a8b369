// Package history implements the bounded clipboard history.
//
// A Store is a fixed-capacity ring of unique text entries. Entries are kept
// oldest-first internally and always surfaced newest-first. Two entries are
// the same if they match under Unicode case folding; the first-seen casing is
// the one kept. When the ring is full, inserting evicts the single oldest
// entry.
//
// A Store is not safe for concurrent use. It is owned by one dispatch
// goroutine (see package session).
package history

import (
	"errors"
	"iter"
	"strings"

	"golang.org/x/text/cases"
)

const (
	// DefaultCapacity is the number of entries kept when no capacity is given.
	DefaultCapacity = 128

	// DefaultMaxEntryBytes is the per-entry storage budget.
	DefaultMaxEntryBytes = 64 * 1024
)

// ErrIndexOutOfRange is returned by Get for an index outside the current view.
var ErrIndexOutOfRange = errors.New("history: index out of range")

// Outcome reports what Insert did with its input.
type Outcome int

const (
	Inserted Outcome = iota
	RejectedEmpty
	RejectedDuplicate
	// RejectedOutOfMemory means the entry did not fit the per-entry budget.
	RejectedOutOfMemory
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case RejectedEmpty:
		return "rejected: empty"
	case RejectedDuplicate:
		return "rejected: duplicate"
	case RejectedOutOfMemory:
		return "rejected: out of memory"
	default:
		return "unknown"
	}
}

// Added reports whether the store gained a new entry.
func (o Outcome) Added() bool { return o == Inserted }

// Entry is one captured snippet. The zero Entry is empty and never stored.
type Entry struct {
	text string
	key  string // case-folded text used for comparisons
}

// Text returns the entry text with its original casing.
func (e Entry) Text() string { return e.text }

func (e Entry) String() string { return e.text }

// Option configures a Store.
type Option func(*Store)

// WithMaxEntryBytes overrides the per-entry budget. n <= 0 disables it.
func WithMaxEntryBytes(n int) Option {
	return func(s *Store) { s.maxEntryBytes = n }
}

// Store is a bounded, deduplicating ring of entries.
type Store struct {
	ring          []Entry
	head          int // index of the oldest entry
	n             int
	maxEntryBytes int
	folder        cases.Caser
}

// New returns an empty Store holding at most capacity entries.
// A capacity below one falls back to DefaultCapacity.
func New(capacity int, opts ...Option) *Store {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	s := &Store{
		ring:          make([]Entry, capacity),
		maxEntryBytes: DefaultMaxEntryBytes,
		folder:        cases.Fold(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Capacity returns the fixed upper bound on Count.
func (s *Store) Capacity() int { return len(s.ring) }

// Count returns the number of entries held.
func (s *Store) Count() int { return s.n }

// Insert adds text as the newest entry unless it is empty, a case-insensitive
// duplicate of an existing entry, or over budget. A duplicate is not moved to
// the front.
func (s *Store) Insert(text string) Outcome {
	if text == "" {
		return RejectedEmpty
	}
	key := s.fold(text)
	for e := range s.newestFirst() {
		if e.key == key {
			return RejectedDuplicate
		}
	}
	// The budget is checked before anything is evicted so a rejected entry
	// never costs a slot.
	if s.maxEntryBytes > 0 && len(text) > s.maxEntryBytes {
		return RejectedOutOfMemory
	}

	// Clone so a short entry sliced from a large string does not pin the
	// whole parent in memory.
	e := Entry{text: strings.Clone(text), key: key}
	if s.n == len(s.ring) {
		s.ring[s.head] = e
		s.head = (s.head + 1) % len(s.ring)
		return Inserted
	}
	s.ring[(s.head+s.n)%len(s.ring)] = e
	s.n++
	return Inserted
}

// Query yields entries newest-first. With a non-empty filter only entries
// containing it as a case-insensitive substring are yielded. Every range over
// the returned sequence reads the store as it is at that moment.
func (s *Store) Query(filter string) iter.Seq[Entry] {
	if filter == "" {
		return s.newestFirst()
	}
	needle := s.fold(filter)
	return func(yield func(Entry) bool) {
		for e := range s.newestFirst() {
			if strings.Contains(e.key, needle) && !yield(e) {
				return
			}
		}
	}
}

// Snapshot collects Query(filter) into a slice.
func (s *Store) Snapshot(filter string) []Entry {
	out := make([]Entry, 0, s.n)
	for e := range s.Query(filter) {
		out = append(out, e)
	}
	return out
}

// Get returns the entry at displayIndex in the unfiltered newest-first view.
func (s *Store) Get(displayIndex int) (Entry, error) {
	if displayIndex < 0 || displayIndex >= s.n {
		return Entry{}, ErrIndexOutOfRange
	}
	return s.ring[s.slot(displayIndex)], nil
}

// GetFiltered returns the entry at displayIndex in the newest-first view
// restricted by filter, as Query yields it. An empty filter is Get.
func (s *Store) GetFiltered(filter string, displayIndex int) (Entry, error) {
	if filter == "" {
		return s.Get(displayIndex)
	}
	if displayIndex < 0 {
		return Entry{}, ErrIndexOutOfRange
	}
	i := 0
	for e := range s.Query(filter) {
		if i == displayIndex {
			return e, nil
		}
		i++
	}
	return Entry{}, ErrIndexOutOfRange
}

// Clear drops every entry. Capacity is unchanged.
func (s *Store) Clear() {
	clear(s.ring)
	s.head = 0
	s.n = 0
}

// slot maps a newest-first display index to a ring position.
func (s *Store) slot(displayIndex int) int {
	return (s.head + s.n - 1 - displayIndex) % len(s.ring)
}

func (s *Store) newestFirst() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for i := 0; i < s.n; i++ {
			if !yield(s.ring[s.slot(i)]) {
				return
			}
		}
	}
}

func (s *Store) fold(text string) string {
	return s.folder.String(text)
}
