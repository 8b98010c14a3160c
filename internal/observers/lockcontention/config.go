package lockcontention

import (
	"fmt"
	"time"
)

// Config holds lock contention observer configuration.
type Config struct {
	// OwnerExpiry is how long an ownership record may sit without activity
	// before the sweeper evicts it. Records for locks with active waiters
	// are never evicted regardless of age.
	OwnerExpiry time.Duration

	// SignificanceThreshold is the minimum resolved wait duration for a
	// sample to be emitted. Episodes at exactly the threshold are emitted.
	SignificanceThreshold time.Duration

	// SweepInterval is the cadence of the background sweeper loop.
	SweepInterval time.Duration

	// EventChannelSize is the buffer of the outbound sample channel.
	EventChannelSize int

	// TrackedParkTypes is the allow-list of synchronizer type names for
	// which UnsafePark waits get contended-owner attribution. Parks on
	// other types are still recorded and resolved, but their owner is
	// reported as unknown.
	TrackedParkTypes []string

	// AnomalyLogsPerSecond bounds diagnostic logging for protocol
	// anomalies (duplicate waits, unmatched wakes).
	AnomalyLogsPerSecond float64
}

// NewDefaultConfig returns production defaults matching the profiler's
// observed behavior: 30s ownership expiry and an 11ms emission threshold.
func NewDefaultConfig() *Config {
	return &Config{
		OwnerExpiry:           30 * time.Second,
		SignificanceThreshold: 11 * time.Millisecond,
		SweepInterval:         5 * time.Second,
		EventChannelSize:      1000,
		TrackedParkTypes: []string{
			"Ljava/util/concurrent/locks/ReentrantLock",
			"Ljava/util/concurrent/locks/ReentrantReadWriteLock",
		},
		AnomalyLogsPerSecond: 1.0,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.OwnerExpiry <= 0 {
		return fmt.Errorf("owner expiry must be positive")
	}
	if c.SignificanceThreshold < 0 {
		return fmt.Errorf("significance threshold must be non-negative")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	if c.EventChannelSize <= 0 {
		return fmt.Errorf("event channel size must be positive")
	}
	if c.AnomalyLogsPerSecond <= 0 {
		return fmt.Errorf("anomaly log rate must be positive")
	}
	return nil
}
