package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codebyjuno/slotcal/internal/apperror"
)

// TokenResolver resolves a session token to the user id it was issued for.
// Satisfied by session.Registry.
type TokenResolver interface {
	Lookup(ctx context.Context, token string) (string, error)
}

// Engine owns the slot set and its reservation lifecycle. All slot state
// lives behind one mutex: the reserve check-and-set, the lazy generation,
// and the timer callbacks all run as uninterruptible units relative to each
// other, which is what makes two concurrent reserve calls on one slot
// resolve to exactly one winner.
//
// The in-memory slot set is the source of truth for the lifetime of the
// process; the repository is written best-effort after each transition so
// other instances and restarts see the latest state.
type Engine struct {
	mu       sync.Mutex
	repo     CalendarRepository
	sessions TokenResolver
	delay    time.Duration

	months []Month
	loaded bool

	// timers holds the pending auto-book timer per slot id. Invariant: at
	// most one live timer per slot id at any time.
	timers map[string]*time.Timer
	closed bool

	// now is replaceable in tests to pin the generation window.
	now func() time.Time
}

// NewEngine creates a reservation engine over the given repository and
// session resolver. delay is how long a reserved slot waits before the
// auto-book timer fires.
func NewEngine(repo CalendarRepository, sessions TokenResolver, delay time.Duration) *Engine {
	return &Engine{
		repo:     repo,
		sessions: sessions,
		delay:    delay,
		timers:   make(map[string]*time.Timer),
		now:      time.Now,
	}
}

// Months returns a snapshot of the slot set, generating it on first access
// if the repository holds none yet.
func (e *Engine) Months(ctx context.Context) ([]Month, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}
	return copyMonths(e.months), nil
}

// Status returns the current snapshot as-is: no generation, no mutation.
// Used for client polling.
func (e *Engine) Status() []Month {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyMonths(e.months)
}

// Reserve transitions a slot from available to reserved on behalf of the
// session's user and arms the auto-book timer. Exactly one of any set of
// concurrent calls for the same available slot succeeds; the rest get a
// conflict.
func (e *Engine) Reserve(ctx context.Context, token, dateID string) error {
	userID, err := e.sessions.Lookup(ctx, token)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureLoadedLocked(ctx); err != nil {
		return err
	}

	slot := findSlot(e.months, dateID)
	if slot == nil {
		return apperror.NewNotFound("date not found")
	}
	if slot.Status != StatusAvailable {
		return apperror.NewConflict("not available")
	}

	slot.Status = StatusReserved
	slot.Holder = userID
	e.armTimerLocked(dateID)

	// Best-effort synchronous persist. On failure the in-memory state stays
	// authoritative and the next transition re-writes the full document.
	if err := e.repo.Save(ctx, e.months); err != nil {
		slog.Error("persisting reservation failed",
			slog.String("slot_id", dateID),
			slog.Any("error", err),
		)
	}

	slog.Info("slot reserved",
		slog.String("slot_id", dateID),
		slog.String("holder", userID),
		slog.Duration("auto_book_in", e.delay),
	)

	return nil
}

// Close stops all pending auto-book timers. Timers that already fired run
// to completion; new ones cannot be armed afterwards via Reserve because
// the slot states remain as they are.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
}

// ensureLoadedLocked loads the slot set from the repository, generating and
// persisting a fresh one if none exists. Idempotent: an existing set is
// reused verbatim, never regenerated or merged. Must be called with the
// lock held.
func (e *Engine) ensureLoadedLocked(ctx context.Context) error {
	if e.loaded {
		return nil
	}

	months, found, err := e.repo.Load(ctx)
	if err != nil {
		return apperror.NewDependency(fmt.Errorf("loading calendar: %w", err))
	}
	if found {
		e.months = months
		e.loaded = true
		return nil
	}

	e.months = generateMonths(e.now())
	e.loaded = true

	if err := e.repo.Save(ctx, e.months); err != nil {
		slog.Error("persisting generated calendar failed", slog.Any("error", err))
	}

	slog.Info("calendar generated",
		slog.Int("months", len(e.months)),
		slog.Int("slots_per_month", len(dayAnchors)),
	)
	return nil
}

// armTimerLocked schedules the auto-book transition for a slot. A previous
// pending timer for the same slot is cancelled first -- the status gate
// makes that case unreachable in practice, but the one-timer-per-slot
// invariant does not depend on it. Must be called with the lock held.
func (e *Engine) armTimerLocked(id string) {
	if t, ok := e.timers[id]; ok {
		t.Stop()
	}
	e.timers[id] = time.AfterFunc(e.delay, func() {
		e.autoBook(id)
	})
}

// autoBook fires once per armed timer. It re-reads the latest durable
// snapshot before mutating so a slot reset by another instance is left
// untouched. It never reverts a booked slot and never re-arms itself.
func (e *Engine) autoBook(id string) {
	ctx := context.Background()

	durable, found, loadErr := e.repo.Load(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.timers, id)
	if e.closed || !e.loaded {
		return
	}

	if loadErr != nil {
		// Fall back to the in-memory state, which is authoritative for
		// this process.
		slog.Warn("re-reading calendar before auto-book failed",
			slog.String("slot_id", id),
			slog.Any("error", loadErr),
		)
	} else if found {
		if ds := findSlot(durable, id); ds != nil && ds.Status != StatusReserved {
			slog.Warn("slot changed externally, skipping auto-book",
				slog.String("slot_id", id),
				slog.String("durable_status", ds.Status),
			)
			return
		}
	}

	slot := findSlot(e.months, id)
	if slot == nil || slot.Status != StatusReserved {
		return
	}

	slot.Status = StatusBooked
	if err := e.repo.Save(ctx, e.months); err != nil {
		slog.Error("persisting booking failed",
			slog.String("slot_id", id),
			slog.Any("error", err),
		)
	}

	slog.Info("slot booked", slog.String("slot_id", id))
}
