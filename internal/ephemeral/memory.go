package ephemeral

import (
	"context"
	"sync"
	"time"
)

// entry is a stored payload plus its expiry. A zero expiresAt means the
// entry never expires.
type entry[T any] struct {
	payload   T
	expiresAt time.Time
}

// MemoryStore is a mutex-guarded in-process implementation of Store. A
// background janitor sweeps expired entries at a fixed interval so memory
// does not grow unbounded between reads; reads never depend on the sweep
// because expiry is also checked on every Get and Take.
type MemoryStore[T any] struct {
	mu      sync.Mutex
	entries map[string]entry[T]

	stop     chan struct{}
	stopOnce sync.Once

	// now is replaceable in tests to drive expiry without sleeping.
	now func() time.Time
}

// NewMemoryStore creates a memory store whose janitor sweeps expired
// entries every sweepInterval. A non-positive interval disables the
// janitor (expiry is still enforced on read).
func NewMemoryStore[T any](sweepInterval time.Duration) *MemoryStore[T] {
	s := &MemoryStore[T]{
		entries: make(map[string]entry[T]),
		stop:    make(chan struct{}),
		now:     time.Now,
	}

	if sweepInterval > 0 {
		go s.janitor(sweepInterval)
	}

	return s
}

// Put stores payload under key, replacing any previous record.
func (s *MemoryStore[T]) Put(_ context.Context, key string, payload T, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = entry[T]{payload: payload, expiresAt: expiresAt}
	s.mu.Unlock()
	return nil
}

// Get returns the payload for key, treating expired-but-unswept entries
// as absent.
func (s *MemoryStore[T]) Get(_ context.Context, key string) (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || s.expired(e) {
		var zero T
		return zero, false, nil
	}
	return e.payload, true, nil
}

// Take reads and deletes the record under a single lock acquisition, so
// concurrent Take calls on one key see exactly one winner.
func (s *MemoryStore[T]) Take(_ context.Context, key string) (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || s.expired(e) {
		delete(s.entries, key)
		var zero T
		return zero, false, nil
	}

	delete(s.entries, key)
	return e.payload, true, nil
}

// Delete removes the record if present.
func (s *MemoryStore[T]) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Close stops the janitor goroutine. Safe to call more than once.
func (s *MemoryStore[T]) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

// expired reports whether the entry's TTL has elapsed. Must be called with
// the lock held.
func (s *MemoryStore[T]) expired(e entry[T]) bool {
	return !e.expiresAt.IsZero() && !e.expiresAt.After(s.now())
}

// janitor periodically removes expired entries until Close is called.
func (s *MemoryStore[T]) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			for key, e := range s.entries {
				if s.expired(e) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
