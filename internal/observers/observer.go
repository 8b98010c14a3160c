// Package observers defines the minimal contract every lockwatch observer
// implements, regardless of the event source behind it.
package observers

import (
	"context"

	"github.com/yairfalse/lockwatch/pkg/domain"
)

// Observer is the minimal interface an event-producing component exposes to
// the agent.
type Observer interface {
	// Name returns the unique identifier for this observer.
	Name() string

	// Start begins observation. It returns quickly and runs any background
	// work on its own goroutines.
	Start(ctx context.Context) error

	// Stop gracefully shuts the observer down. Background goroutines are
	// joined before Stop returns.
	Stop() error

	// Events returns the channel of emitted samples. The channel is closed
	// when the observer stops.
	Events() <-chan *domain.ContentionSample

	// IsHealthy reports whether the observer is functioning properly.
	IsHealthy() bool
}

// ObserverWithStats is implemented by observers that expose statistics and
// derived health.
type ObserverWithStats interface {
	Observer

	Statistics() *domain.ObserverStats
	Health() *domain.HealthStatus
}
