package lockcontention

import (
	"time"

	"github.com/yairfalse/lockwatch/pkg/domain"
)

// WaitEvent describes one wait/wake episode for a (lock, thread) pair. It
// is constructed when the instrumentation layer reports a wait start and is
// owned by exactly one recorder table until it is resolved, discarded, or
// evicted. WakeTime, Duration, and OwnerThreadID start unset and are filled
// in as the episode progresses.
type WaitEvent struct {
	LockID       domain.LockID
	SyncKind     domain.SyncKind
	LockTypeName string

	ThreadID   domain.ThreadID
	ThreadName string

	WaitStart time.Time

	// Filled by owner resolution at wait time.
	OwnerThreadID domain.ThreadID

	// Filled at wake time.
	WakeTime time.Time
	Duration time.Duration
}

// newWaitEvent builds the in-flight record for a wait start. The contended
// owner starts unknown until resolution against the ownership table.
func newWaitEvent(lock domain.LockID, tid domain.ThreadID, name string, kind domain.SyncKind, typeName string, waitStart time.Time) *WaitEvent {
	return &WaitEvent{
		LockID:        lock,
		SyncKind:      kind,
		LockTypeName:  typeName,
		ThreadID:      tid,
		ThreadName:    name,
		WaitStart:     waitStart,
		OwnerThreadID: domain.UnknownThreadID,
	}
}

// sample converts a resolved event into its outbound form.
func (e *WaitEvent) sample(sampleID, observer string) *domain.ContentionSample {
	return &domain.ContentionSample{
		SampleID:      sampleID,
		Observer:      observer,
		LockID:        e.LockID,
		SyncKind:      e.SyncKind,
		LockTypeName:  e.LockTypeName,
		ThreadID:      e.ThreadID,
		ThreadName:    e.ThreadName,
		OwnerThreadID: e.OwnerThreadID,
		WaitStart:     e.WaitStart,
		WakeTime:      e.WakeTime,
		Duration:      e.Duration,
	}
}
