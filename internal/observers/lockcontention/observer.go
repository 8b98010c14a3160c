// Package lockcontention correlates raw lock wait/wake notifications from
// instrumentation hooks into contention samples: who was holding a lock
// when another thread started waiting on it, and how long the wait lasted.
package lockcontention

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yairfalse/lockwatch/internal/observers"
	"github.com/yairfalse/lockwatch/internal/observers/base"
	"github.com/yairfalse/lockwatch/pkg/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Observer is the lock contention observer. Instrumentation hooks feed it
// through OnWaitStart and OnWake; resolved episodes above the significance
// threshold come out of Events(). A background sweeper bounds the ownership
// table while the observer is started.
type Observer struct {
	*base.BaseObserver
	*base.EventChannelManager
	*base.LifecycleManager

	config   *Config
	logger   *zap.Logger
	name     string
	recorder *Recorder

	// Protocol anomalies are expected to be rare; the limiter keeps a
	// misbehaving instrumentation layer from flooding the log.
	anomalyLog *rate.Limiter

	// OTEL instrumentation
	waitsTotal       metric.Int64Counter
	wakesTotal       metric.Int64Counter
	anomaliesTotal   metric.Int64Counter
	evictionsTotal   metric.Int64Counter
	suppressedTotal  metric.Int64Counter
	waitDurationHist metric.Float64Histogram
}

var _ observers.ObserverWithStats = (*Observer)(nil)

// NewObserver creates a lock contention observer.
func NewObserver(name string, config *Config, logger *zap.Logger) (*Observer, error) {
	if config == nil {
		config = NewDefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		var err error
		logger, err = zap.NewProduction()
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}
	logger = logger.Named(name)

	o := &Observer{
		BaseObserver:        base.NewBaseObserver(name, 5*time.Minute, logger),
		EventChannelManager: base.NewEventChannelManager(config.EventChannelSize, name, logger),
		LifecycleManager:    base.NewLifecycleManager(context.Background(), logger),
		config:              config,
		logger:              logger,
		name:                name,
		recorder:            NewRecorder(config, logger),
		anomalyLog:          rate.NewLimiter(rate.Limit(config.AnomalyLogsPerSecond), 5),
	}

	meter := o.GetMeter()
	var err error

	o.waitsTotal, err = meter.Int64Counter(
		fmt.Sprintf("%s_waits_total", name),
		metric.WithDescription("Total wait-start events received"),
	)
	if err != nil {
		logger.Warn("Failed to create waits counter", zap.Error(err))
	}

	o.wakesTotal, err = meter.Int64Counter(
		fmt.Sprintf("%s_wakes_total", name),
		metric.WithDescription("Total wake events received"),
	)
	if err != nil {
		logger.Warn("Failed to create wakes counter", zap.Error(err))
	}

	o.anomaliesTotal, err = meter.Int64Counter(
		fmt.Sprintf("%s_protocol_anomalies_total", name),
		metric.WithDescription("Duplicate waits and unmatched wakes discarded"),
	)
	if err != nil {
		logger.Warn("Failed to create anomalies counter", zap.Error(err))
	}

	o.evictionsTotal, err = meter.Int64Counter(
		fmt.Sprintf("%s_owner_evictions_total", name),
		metric.WithDescription("Ownership entries evicted by the sweeper"),
	)
	if err != nil {
		logger.Warn("Failed to create evictions counter", zap.Error(err))
	}

	o.suppressedTotal, err = meter.Int64Counter(
		fmt.Sprintf("%s_samples_suppressed_total", name),
		metric.WithDescription("Resolved episodes below the significance threshold"),
	)
	if err != nil {
		logger.Warn("Failed to create suppressed counter", zap.Error(err))
	}

	o.waitDurationHist, err = meter.Float64Histogram(
		fmt.Sprintf("%s_wait_duration_seconds", name),
		metric.WithDescription("Resolved lock wait duration distribution"),
		metric.WithExplicitBucketBoundaries(0.001, 0.011, 0.050, 0.100, 0.500, 1.000, 5.000),
	)
	if err != nil {
		logger.Warn("Failed to create wait duration histogram", zap.Error(err))
	}

	return o, nil
}

// Name returns the observer name.
func (o *Observer) Name() string {
	return o.name
}

// Start launches the background sweeper. Hook methods work before Start as
// well; only sweeping requires a started observer.
func (o *Observer) Start(ctx context.Context) error {
	o.logger.Info("Starting lock contention observer",
		zap.Duration("owner_expiry", o.config.OwnerExpiry),
		zap.Duration("significance_threshold", o.config.SignificanceThreshold),
		zap.Duration("sweep_interval", o.config.SweepInterval),
	)

	o.LifecycleManager.Start("sweeper", func() {
		o.runSweeper()
	})

	o.BaseObserver.SetHealthy(true)
	o.logger.Info("Lock contention observer started")
	return nil
}

// Stop stops the sweeper, waits for any in-flight sweep to finish, and
// closes the sample channel.
func (o *Observer) Stop() error {
	o.logger.Info("Stopping lock contention observer")

	if err := o.LifecycleManager.Stop(5 * time.Second); err != nil {
		o.logger.Warn("Timeout during shutdown", zap.Error(err))
	}

	o.EventChannelManager.Close()
	o.BaseObserver.SetHealthy(false)
	o.logger.Info("Lock contention observer stopped")
	return nil
}

// Events returns the emitted sample channel.
func (o *Observer) Events() <-chan *domain.ContentionSample {
	return o.EventChannelManager.GetChannel()
}

// OnWaitStart records that a thread began waiting to acquire a lock. Safe
// to call concurrently from instrumentation call sites.
func (o *Observer) OnWaitStart(lock domain.LockID, tid domain.ThreadID, threadName string, kind domain.SyncKind, typeName string, waitStart time.Time) {
	ctx := o.LifecycleManager.Context()
	if o.waitsTotal != nil {
		o.waitsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("sync_kind", string(kind))))
	}

	ev := newWaitEvent(lock, tid, threadName, kind, typeName, waitStart)
	if outcome := o.recorder.RecordWait(ev); outcome == WaitDuplicate {
		o.recordAnomaly(ctx, "duplicate_wait",
			"A thread started a second wait on a lock it is already waiting for",
			lock, tid, threadName)
		return
	}

	o.BaseObserver.RecordEvent()
}

// OnWake records that a thread woke up holding a lock, resolving its wait
// episode. Episodes at or above the significance threshold are emitted;
// shorter ones are suppressed. A wake with no matching wait is discarded.
func (o *Observer) OnWake(lock domain.LockID, tid domain.ThreadID, threadName string, wakeTime time.Time) {
	ctx := o.LifecycleManager.Context()
	if o.wakesTotal != nil {
		o.wakesTotal.Add(ctx, 1)
	}

	ev, outcome := o.recorder.RecordWake(lock, tid, wakeTime)
	switch outcome {
	case WakeNoSuchLock:
		o.recordAnomaly(ctx, "unmatched_wake_lock",
			"Wake received for a lock with no recorded waiters",
			lock, tid, threadName)
		return
	case WakeNoSuchThread:
		o.recordAnomaly(ctx, "unmatched_wake_thread",
			"Wake received for a thread that never recorded a wait on this lock",
			lock, tid, threadName)
		return
	}

	o.BaseObserver.RecordEvent()
	if o.waitDurationHist != nil {
		o.waitDurationHist.Record(ctx, ev.Duration.Seconds())
	}

	// Emission happens outside the recorder's critical section; RecordWake
	// already released it.
	if ev.Duration < o.config.SignificanceThreshold {
		if o.suppressedTotal != nil {
			o.suppressedTotal.Add(ctx, 1)
		}
		return
	}

	sample := ev.sample(uuid.NewString(), o.name)
	if !o.EventChannelManager.SendEvent(sample) {
		o.BaseObserver.RecordDropWithReason(ctx, "channel_full")
	}
}

// Reset clears all correlation state, for profiler session restarts.
func (o *Observer) Reset() {
	o.recorder.Reset()
	o.logger.Info("Lock contention state reset")
}

// Recorder exposes the underlying recorder, mainly so an external scheduler
// can drive Sweep directly instead of the built-in loop.
func (o *Observer) Recorder() *Recorder {
	return o.recorder
}

// Statistics returns observer statistics including table sizes.
func (o *Observer) Statistics() *domain.ObserverStats {
	stats := o.BaseObserver.Statistics()
	stats.CustomMetrics["owner_table_size"] = fmt.Sprintf("%d", o.recorder.OwnerCount())
	stats.CustomMetrics["waiter_count"] = fmt.Sprintf("%d", o.recorder.WaiterCount())
	stats.CustomMetrics["contended_locks"] = fmt.Sprintf("%d", o.recorder.ContendedLocks())
	return stats
}

// runSweeper periodically evicts stale ownership entries until shutdown.
func (o *Observer) runSweeper() {
	ticker := time.NewTicker(o.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.LifecycleManager.Context().Done():
			return
		case <-o.LifecycleManager.StopChannel():
			return
		case <-ticker.C:
			evicted := o.recorder.Sweep(time.Now())
			if evicted > 0 && o.evictionsTotal != nil {
				o.evictionsTotal.Add(o.LifecycleManager.Context(), int64(evicted))
			}
		}
	}
}

// recordAnomaly counts a protocol anomaly and logs it at a bounded rate.
// Anomalies indicate lost or reordered events from the instrumentation
// layer, never corruption, so processing continues.
func (o *Observer) recordAnomaly(ctx context.Context, reason, msg string, lock domain.LockID, tid domain.ThreadID, threadName string) {
	if o.anomaliesTotal != nil {
		o.anomaliesTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("reason", reason)))
	}

	if o.anomalyLog.Allow() {
		o.logger.Warn(msg,
			zap.String("reason", reason),
			zap.Stringer("lock", lock),
			zap.Int32("thread_id", int32(tid)),
			zap.String("thread_name", threadName),
		)
	}
}
