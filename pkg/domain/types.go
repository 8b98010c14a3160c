// Package domain holds the shared types exchanged between the lockwatch
// observer core and its collaborators (instrumentation hooks, pipeline).
package domain

import (
	"fmt"
	"time"
)

// LockID is an opaque address-sized handle identifying a synchronization
// object for the lifetime relevant to contention tracking.
type LockID uint64

func (l LockID) String() string {
	return fmt.Sprintf("0x%x", uint64(l))
}

// ThreadID is the native thread identifier reported by the instrumentation
// layer.
type ThreadID int32

// UnknownThreadID marks a contended owner that could not be attributed:
// either no owner was known for the lock, or the waiter itself was the last
// known owner.
const UnknownThreadID ThreadID = -1

// SyncKind classifies the synchronizer a wait event was observed on.
type SyncKind string

const (
	// SyncKindMonitor covers intrinsic object monitors. Always tracked.
	SyncKindMonitor SyncKind = "Monitor"

	// SyncKindUnsafePark covers the low-level thread-park primitive. Only
	// tracked when the associated type name is on the park allow-list,
	// since the same primitive also backs coordination unrelated to lock
	// contention.
	SyncKindUnsafePark SyncKind = "UnsafePark"
)

// ContentionSample is one resolved, significant wait episode handed to the
// emission pipeline. It is immutable after construction; the pipeline owns
// serialization.
type ContentionSample struct {
	SampleID string `json:"sample_id"`
	Observer string `json:"observer"`

	LockID       LockID   `json:"lock_id"`
	SyncKind     SyncKind `json:"sync_kind"`
	LockTypeName string   `json:"lock_type_name,omitempty"`

	// The thread that waited.
	ThreadID   ThreadID `json:"thread_id"`
	ThreadName string   `json:"thread_name,omitempty"`

	// The thread believed to hold the lock when the wait began, or
	// UnknownThreadID.
	OwnerThreadID ThreadID `json:"owner_thread_id"`

	WaitStart time.Time     `json:"wait_start"`
	WakeTime  time.Time     `json:"wake_time"`
	Duration  time.Duration `json:"duration"`
}
