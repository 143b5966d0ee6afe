// Package frame maintains the per-device rolling buffer of recent
// camera frames. Each store holds at most a fixed number of records,
// evicting oldest-first; evicted backing blobs are released exactly
// once, deferred while any reader still holds a handle to them.
package frame

import (
	"log/slog"
	"sync"

	"github.com/sightline-ai/go-sightline/pkg/storage"
)

// DefaultCapacity is the rolling buffer size used when none is given.
const DefaultCapacity = 10

// Record is one ingested frame: its arrival time and backing blob.
type Record struct {
	// Timestamp is seconds since epoch at ingestion.
	// Within one store timestamps are non-decreasing in insertion
	// order; out-of-order arrivals are kept as-is.
	Timestamp int64

	// Locator references the stored image bytes.
	Locator storage.Locator
}

// slot wraps a record with its reference count. The store's own slot
// counts as one reference; handles from Latest add more. The blob is
// deleted when the count reaches zero.
type slot struct {
	rec      Record
	refs     int
	released bool
}

// Store is a bounded, time-ordered buffer of frame records for one
// device. All methods are safe for concurrent use; none of them blocks
// on storage reads, and eviction-time deletes are the only storage
// writes taken under the lock.
type Store struct {
	mu       sync.Mutex
	backend  storage.Backend
	capacity int
	slots    []*slot
	logger   *slog.Logger
}

// NewStore creates a store over backend with the given capacity.
// A capacity below 1 falls back to DefaultCapacity.
func NewStore(backend storage.Backend, capacity int, logger *slog.Logger) *Store {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend:  backend,
		capacity: capacity,
		logger:   logger,
	}
}

// Capacity returns the maximum number of retained records.
func (s *Store) Capacity() int {
	return s.capacity
}

// Append adds a record at the tail. If the store exceeds capacity the
// head record is evicted and its blob released, unless a handle from
// Latest still references it, in which case release happens when the
// last handle is dropped.
func (s *Store) Append(rec Record) {
	var evicted *slot

	s.mu.Lock()
	s.slots = append(s.slots, &slot{rec: rec, refs: 1})
	if len(s.slots) > s.capacity {
		evicted = s.slots[0]
		s.slots[0] = nil
		s.slots = s.slots[1:]
	}
	s.mu.Unlock()

	if evicted != nil {
		s.unref(evicted)
	}
}

// Latest returns a handle to the most recently appended record, or
// false if the store is empty. The handle pins the record's backing
// blob: eviction will not delete it until Release is called. Callers
// must release every handle they receive.
func (s *Store) Latest() (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.slots) == 0 {
		return nil, false
	}
	sl := s.slots[len(s.slots)-1]
	sl.refs++
	return &Handle{store: s, slot: sl}, true
}

// Len returns the number of retained records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// Records returns a snapshot of the retained records, oldest first.
func (s *Store) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.slots))
	for i, sl := range s.slots {
		out[i] = sl.rec
	}
	return out
}

// unref drops one reference to a slot, deleting the backing blob when
// the last reference goes away. A failed delete is logged and the slot
// still counts as released; a stale file is an acceptable degraded
// state.
func (s *Store) unref(sl *slot) {
	s.mu.Lock()
	sl.refs--
	release := sl.refs == 0 && !sl.released
	if release {
		sl.released = true
	}
	s.mu.Unlock()

	if !release {
		return
	}
	if err := s.backend.Delete(sl.rec.Locator); err != nil {
		s.logger.Warn("failed to delete evicted frame",
			"locator", sl.rec.Locator.String(),
			"error", err,
		)
	}
}

// Handle is a pinned reference to one frame record.
type Handle struct {
	store *Store
	slot  *slot
	once  sync.Once
}

// Record returns the pinned frame record.
func (h *Handle) Record() Record {
	return h.slot.rec
}

// Release unpins the record. Safe to call more than once.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.store.unref(h.slot)
	})
}
