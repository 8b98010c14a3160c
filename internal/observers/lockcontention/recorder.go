package lockcontention

import (
	"sync"
	"time"

	"github.com/yairfalse/lockwatch/pkg/domain"
	"go.uber.org/zap"
)

// WaitOutcome reports what RecordWait did with an event.
type WaitOutcome int

const (
	// WaitRecorded means the event was inserted into the waiter table.
	WaitRecorded WaitOutcome = iota
	// WaitDuplicate means the (lock, thread) pair already had an in-flight
	// wait; the new event was discarded without mutating state.
	WaitDuplicate
)

// WakeOutcome reports what RecordWake resolved.
type WakeOutcome int

const (
	// WakeResolved means a matching wait was found and resolved.
	WakeResolved WakeOutcome = iota
	// WakeNoSuchLock means no thread was waiting on the lock at all.
	WakeNoSuchLock
	// WakeNoSuchThread means the lock had waiters but not this thread.
	WakeNoSuchThread
)

// Recorder maintains the two correlation tables: the ownership table (lock
// -> most recent resolved event for the thread presumed to hold it) and the
// waiter table (lock -> thread -> in-flight wait). A single mutex guards
// both; contention events are rare relative to application lock traffic, so
// one coarse lock buys correctness cheaply.
//
// A WaitEvent is referenced by exactly one table at a time. It moves from
// the waiter table to the ownership table when its wake resolves, and is
// dropped when evicted, replaced, or discarded as a duplicate.
type Recorder struct {
	mu      sync.Mutex
	owners  map[domain.LockID]*WaitEvent
	waiters map[domain.LockID]map[domain.ThreadID]*WaitEvent

	// UnsafePark waits get owner attribution only for these type names.
	trackedParkTypes map[string]struct{}

	ownerExpiry time.Duration
	logger      *zap.Logger
}

// NewRecorder creates a recorder with the given ownership expiry window and
// park-type allow-list.
func NewRecorder(cfg *Config, logger *zap.Logger) *Recorder {
	tracked := make(map[string]struct{}, len(cfg.TrackedParkTypes))
	for _, name := range cfg.TrackedParkTypes {
		tracked[name] = struct{}{}
	}

	return &Recorder{
		owners:           make(map[domain.LockID]*WaitEvent),
		waiters:          make(map[domain.LockID]map[domain.ThreadID]*WaitEvent),
		trackedParkTypes: tracked,
		ownerExpiry:      cfg.OwnerExpiry,
		logger:           logger.Named("recorder"),
	}
}

// trackedForAttribution reports whether an event's synchronizer kind should
// get contended-owner attribution. Parks outside the allow-list still have
// their wait recorded, but their owner stays unknown.
func (r *Recorder) trackedForAttribution(ev *WaitEvent) bool {
	if ev.SyncKind != domain.SyncKindUnsafePark {
		return true
	}
	_, ok := r.trackedParkTypes[ev.LockTypeName]
	return ok
}

// RecordWait registers the start of a wait episode. Safe to call
// concurrently from any thread. A second wait for a (lock, thread) pair
// that already has one in flight is a protocol anomaly; the new event is
// discarded and WaitDuplicate returned.
func (r *Recorder) RecordWait(ev *WaitEvent) WaitOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.trackedForAttribution(ev) {
		// Attribute the last known holder, unless that is the waiter
		// itself, which is reported as unknown rather than
		// self-contention.
		if owner, ok := r.owners[ev.LockID]; ok && owner.ThreadID != ev.ThreadID {
			ev.OwnerThreadID = owner.ThreadID
		}
	}

	threads, ok := r.waiters[ev.LockID]
	if !ok {
		threads = make(map[domain.ThreadID]*WaitEvent)
		r.waiters[ev.LockID] = threads
	}

	if _, exists := threads[ev.ThreadID]; exists {
		return WaitDuplicate
	}
	threads[ev.ThreadID] = ev

	r.logger.Debug("Wait recorded",
		zap.Stringer("lock", ev.LockID),
		zap.Int32("thread_id", int32(ev.ThreadID)),
		zap.Int("lock_waiters", len(threads)),
		zap.Int("waiter_table_size", len(r.waiters)),
	)
	return WaitRecorded
}

// RecordWake resolves the wait episode for (lock, tid): the in-flight
// record is removed from the waiter table, stamped with the wake time and
// duration, and installed as the lock's new ownership entry, replacing any
// prior one. A wake with no matching wait leaves all state untouched.
func (r *Recorder) RecordWake(lock domain.LockID, tid domain.ThreadID, wakeTime time.Time) (*WaitEvent, WakeOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	threads, ok := r.waiters[lock]
	if !ok {
		return nil, WakeNoSuchLock
	}

	ev, ok := threads[tid]
	if !ok {
		return nil, WakeNoSuchThread
	}

	delete(threads, tid)
	if len(threads) == 0 {
		// Keep the waiter table bounded to currently-contended locks.
		delete(r.waiters, lock)
	}

	ev.WakeTime = wakeTime
	ev.Duration = wakeTime.Sub(ev.WaitStart)

	// The waker is now the last known holder of the lock.
	r.owners[lock] = ev

	r.logger.Debug("Wake resolved",
		zap.Stringer("lock", lock),
		zap.Int32("thread_id", int32(tid)),
		zap.Duration("wait_duration", ev.Duration),
		zap.Int("owner_table_size", len(r.owners)),
	)
	return ev, WakeResolved
}

// Sweep evicts ownership entries whose wait-start timestamp is older than
// the expiry window as of now. A lock with any active waiter is never
// evicted: losing the owner record would make the in-flight wait impossible
// to attribute. Returns the number of evicted entries.
func (r *Recorder) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for lock, ev := range r.owners {
		if _, waiting := r.waiters[lock]; waiting {
			continue
		}
		if now.Sub(ev.WaitStart) > r.ownerExpiry {
			delete(r.owners, lock)
			evicted++
		}
	}

	if evicted > 0 {
		r.logger.Debug("Swept ownership table",
			zap.Int("evicted", evicted),
			zap.Int("owner_table_size", len(r.owners)),
		)
	}
	return evicted
}

// Reset clears both tables atomically. In-flight waits become unmatched;
// their eventual wakes are handled as anomalies.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.owners = make(map[domain.LockID]*WaitEvent)
	r.waiters = make(map[domain.LockID]map[domain.ThreadID]*WaitEvent)

	r.logger.Debug("Recorder state cleared")
}

// OwnerCount returns the number of ownership entries.
func (r *Recorder) OwnerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.owners)
}

// Owner returns the thread id of the last known holder of lock, or
// UnknownThreadID when none is recorded.
func (r *Recorder) Owner(lock domain.LockID) domain.ThreadID {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev, ok := r.owners[lock]; ok {
		return ev.ThreadID
	}
	return domain.UnknownThreadID
}

// WaiterCount returns the total number of in-flight waits across all locks.
func (r *Recorder) WaiterCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, threads := range r.waiters {
		n += len(threads)
	}
	return n
}

// ContendedLocks returns the number of locks with at least one waiter.
func (r *Recorder) ContendedLocks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}

// IsWaiting reports whether tid currently has an in-flight wait on lock.
func (r *Recorder) IsWaiting(lock domain.LockID, tid domain.ThreadID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	threads, ok := r.waiters[lock]
	if !ok {
		return false
	}
	_, ok = threads[tid]
	return ok
}
