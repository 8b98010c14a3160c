// Package base provides common functionality for all lockwatch observers
// so each observer gets consistent statistics, health, and lifecycle
// behavior without duplicating it.
package base

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/yairfalse/lockwatch/pkg/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// BaseObserver provides statistics and health tracking for observers.
// Embed it to get Statistics() and Health() automatically.
type BaseObserver struct {
	name      string
	startTime time.Time

	// Statistics tracking (atomic for thread safety)
	eventsProcessed atomic.Int64
	eventsDropped   atomic.Int64
	errorCount      atomic.Int64

	lastEventTime atomic.Value // stores time.Time
	lastError     atomic.Value // stores error

	// Health tracking
	isHealthy          atomic.Bool
	healthCheckTimeout time.Duration
	errorRateThreshold float64

	// OTEL instrumentation
	tracer trace.Tracer
	meter  metric.Meter

	eventsProcessedCounter metric.Int64Counter
	eventsDroppedCounter   metric.Int64Counter
	errorCounter           metric.Int64Counter

	logger *zap.Logger
}

// NewBaseObserver creates a base observer. healthCheckTimeout determines how
// long without events before health degrades to "no events received".
func NewBaseObserver(name string, healthCheckTimeout time.Duration, logger *zap.Logger) *BaseObserver {
	bo := &BaseObserver{
		name:               name,
		startTime:          time.Now(),
		healthCheckTimeout: healthCheckTimeout,
		errorRateThreshold: 0.1,
		tracer:             otel.Tracer(name),
		meter:              otel.Meter(name),
		logger:             logger,
	}
	bo.isHealthy.Store(true)
	bo.lastEventTime.Store(time.Now())
	bo.initializeMetrics()
	return bo
}

// initializeMetrics registers the standard OTEL instruments. Metric creation
// failures are logged and the instrument left nil; metrics are optional.
func (bo *BaseObserver) initializeMetrics() {
	var err error

	bo.eventsProcessedCounter, err = bo.meter.Int64Counter(
		fmt.Sprintf("%s_events_processed_total", bo.name),
		metric.WithDescription("Total events processed"),
	)
	if err != nil {
		if bo.logger != nil {
			bo.logger.Debug("Failed to create events processed counter",
				zap.String("observer", bo.name), zap.Error(err))
		}
		bo.eventsProcessedCounter = nil
	}

	bo.eventsDroppedCounter, err = bo.meter.Int64Counter(
		fmt.Sprintf("%s_events_dropped_total", bo.name),
		metric.WithDescription("Total events dropped"),
	)
	if err != nil {
		if bo.logger != nil {
			bo.logger.Debug("Failed to create events dropped counter",
				zap.String("observer", bo.name), zap.Error(err))
		}
		bo.eventsDroppedCounter = nil
	}

	bo.errorCounter, err = bo.meter.Int64Counter(
		fmt.Sprintf("%s_errors_total", bo.name),
		metric.WithDescription("Total errors encountered"),
	)
	if err != nil {
		if bo.logger != nil {
			bo.logger.Debug("Failed to create error counter",
				zap.String("observer", bo.name), zap.Error(err))
		}
		bo.errorCounter = nil
	}
}

// RecordEvent should be called when an event is successfully processed.
func (bo *BaseObserver) RecordEvent() {
	bo.eventsProcessed.Add(1)
	bo.lastEventTime.Store(time.Now())
	if bo.eventsProcessedCounter != nil {
		bo.eventsProcessedCounter.Add(context.Background(), 1)
	}
}

// RecordError should be called when an error occurs.
func (bo *BaseObserver) RecordError(err error) {
	bo.errorCount.Add(1)
	if err != nil {
		bo.lastError.Store(err)
	}
	if bo.errorCounter != nil {
		attrs := []attribute.KeyValue{}
		if err != nil {
			attrs = append(attrs, attribute.String("error_type", fmt.Sprintf("%T", err)))
		}
		bo.errorCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	}
}

// RecordDrop should be called when an event is dropped.
func (bo *BaseObserver) RecordDrop() {
	bo.eventsDropped.Add(1)
	if bo.eventsDroppedCounter != nil {
		bo.eventsDroppedCounter.Add(context.Background(), 1)
	}
}

// RecordDropWithReason records a dropped event with a reason attribute.
func (bo *BaseObserver) RecordDropWithReason(ctx context.Context, reason string) {
	bo.eventsDropped.Add(1)
	if bo.eventsDroppedCounter != nil {
		bo.eventsDroppedCounter.Add(ctx, 1,
			metric.WithAttributes(attribute.String("reason", reason)))
	}
}

// StartSpan starts a new span for event processing.
func (bo *BaseObserver) StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return bo.tracer.Start(ctx, spanName, opts...)
}

// GetMeter returns the meter for observer-specific instruments.
func (bo *BaseObserver) GetMeter() metric.Meter {
	return bo.meter
}

// SetHealthy sets the observer health status.
func (bo *BaseObserver) SetHealthy(healthy bool) {
	bo.isHealthy.Store(healthy)
}

// IsHealthy returns true if the observer is healthy.
func (bo *BaseObserver) IsHealthy() bool {
	return bo.isHealthy.Load()
}

// Statistics returns observer statistics.
func (bo *BaseObserver) Statistics() *domain.ObserverStats {
	lastEventTime := time.Time{}
	if t, ok := bo.lastEventTime.Load().(time.Time); ok {
		lastEventTime = t
	}

	return &domain.ObserverStats{
		EventsProcessed: bo.eventsProcessed.Load(),
		EventsDropped:   bo.eventsDropped.Load(),
		ErrorCount:      bo.errorCount.Load(),
		LastEventTime:   lastEventTime,
		Uptime:          time.Since(bo.startTime),
		CustomMetrics:   map[string]string{},
	}
}

// Health derives health from the explicit flag, event recency, and error
// rate.
func (bo *BaseObserver) Health() *domain.HealthStatus {
	if !bo.isHealthy.Load() {
		var lastErr error
		if e := bo.lastError.Load(); e != nil {
			lastErr = e.(error)
		}
		return domain.NewUnhealthyStatus(
			fmt.Sprintf("%s observer is unhealthy", bo.name), lastErr)
	}

	if bo.eventsProcessed.Load() > 0 {
		lastEventTime := time.Time{}
		if t, ok := bo.lastEventTime.Load().(time.Time); ok {
			lastEventTime = t
		}
		if since := time.Since(lastEventTime); since > bo.healthCheckTimeout {
			return domain.NewDegradedStatus(
				fmt.Sprintf("No events received for %v", since))
		}
	}

	errorRate := float64(0)
	if processed := bo.eventsProcessed.Load(); processed > 0 {
		errorRate = float64(bo.errorCount.Load()) / float64(processed)
	}
	if errorRate > bo.errorRateThreshold {
		return domain.NewDegradedStatus(
			fmt.Sprintf("High error rate: %.1f%%", errorRate*100))
	}

	return domain.NewHealthyStatus(fmt.Sprintf("%s observer operating normally", bo.name))
}

// GetName returns the observer name.
func (bo *BaseObserver) GetName() string {
	return bo.name
}

// GetUptime returns how long the observer has been running.
func (bo *BaseObserver) GetUptime() time.Duration {
	return time.Since(bo.startTime)
}

// GetEventCount returns the total number of events processed.
func (bo *BaseObserver) GetEventCount() int64 {
	return bo.eventsProcessed.Load()
}

// GetErrorCount returns the total number of errors.
func (bo *BaseObserver) GetErrorCount() int64 {
	return bo.errorCount.Load()
}

// GetDroppedCount returns the total number of dropped events.
func (bo *BaseObserver) GetDroppedCount() int64 {
	return bo.eventsDropped.Load()
}
