package domain

import "time"

// ObserverStats carries point-in-time counters reported by an observer.
type ObserverStats struct {
	EventsProcessed int64
	EventsDropped   int64
	ErrorCount      int64
	LastEventTime   time.Time
	Uptime          time.Duration

	// CustomMetrics holds observer-specific counters that do not warrant
	// first-class fields (table sizes, suppression counts, ...).
	CustomMetrics map[string]string
}
