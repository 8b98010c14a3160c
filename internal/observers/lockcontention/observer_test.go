package lockcontention

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yairfalse/lockwatch/pkg/domain"
	"go.uber.org/zap/zaptest"
)

func newTestObserver(t *testing.T, mutate func(*Config)) *Observer {
	t.Helper()
	cfg := NewDefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	o, err := NewObserver("lock-contention", cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return o
}

func receiveSample(t *testing.T, o *Observer) *domain.ContentionSample {
	t.Helper()
	select {
	case sample := <-o.Events():
		return sample
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for sample")
		return nil
	}
}

func TestNewObserver(t *testing.T) {
	t.Run("defaults applied when config is nil", func(t *testing.T) {
		o, err := NewObserver("lock-contention", nil, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.Equal(t, "lock-contention", o.Name())
		assert.Equal(t, 30*time.Second, o.config.OwnerExpiry)
		assert.Equal(t, 11*time.Millisecond, o.config.SignificanceThreshold)
	})

	t.Run("invalid config rejected", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.OwnerExpiry = 0
		_, err := NewObserver("lock-contention", cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
	})
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"zero expiry", func(c *Config) { c.OwnerExpiry = 0 }, true},
		{"negative threshold", func(c *Config) { c.SignificanceThreshold = -time.Millisecond }, true},
		{"zero threshold allowed", func(c *Config) { c.SignificanceThreshold = 0 }, false},
		{"zero sweep interval", func(c *Config) { c.SweepInterval = 0 }, true},
		{"zero channel size", func(c *Config) { c.EventChannelSize = 0 }, true},
		{"zero anomaly rate", func(c *Config) { c.AnomalyLogsPerSecond = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestObserverLifecycle(t *testing.T) {
	o := newTestObserver(t, func(c *Config) {
		c.SweepInterval = 10 * time.Millisecond
	})

	require.NoError(t, o.Start(context.Background()))
	assert.True(t, o.IsHealthy())

	// Give the sweeper a moment to start.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), o.LifecycleManager.GetRunningGoroutines())

	require.NoError(t, o.Stop())
	assert.False(t, o.IsHealthy())

	// The sweeper is joined before Stop returns.
	assert.Equal(t, int32(0), o.LifecycleManager.GetRunningGoroutines())

	// Channel is closed after Stop.
	_, open := <-o.Events()
	assert.False(t, open)
}

func TestEmissionThreshold(t *testing.T) {
	base := time.Unix(100, 0)

	t.Run("below threshold is suppressed", func(t *testing.T) {
		o := newTestObserver(t, nil)

		o.OnWaitStart(0x1000, 1, "worker-1", domain.SyncKindMonitor, "Ljava/lang/Object", base)
		o.OnWake(0x1000, 1, "worker-1", base.Add(10*time.Millisecond))

		select {
		case sample := <-o.Events():
			t.Fatalf("expected suppression, got sample %v", sample)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("exactly at threshold emits", func(t *testing.T) {
		o := newTestObserver(t, nil)

		o.OnWaitStart(0x1000, 1, "worker-1", domain.SyncKindMonitor, "Ljava/lang/Object", base)
		o.OnWake(0x1000, 1, "worker-1", base.Add(11*time.Millisecond))

		sample := receiveSample(t, o)
		assert.Equal(t, 11*time.Millisecond, sample.Duration)
	})

	t.Run("above threshold emits full sample", func(t *testing.T) {
		o := newTestObserver(t, nil)

		o.OnWaitStart(0x1000, 7, "worker-7", domain.SyncKindMonitor, "Ljava/lang/Object", base)
		o.OnWake(0x1000, 7, "worker-7", base.Add(25*time.Millisecond))

		sample := receiveSample(t, o)
		assert.NotEmpty(t, sample.SampleID)
		assert.Equal(t, "lock-contention", sample.Observer)
		assert.Equal(t, domain.LockID(0x1000), sample.LockID)
		assert.Equal(t, domain.ThreadID(7), sample.ThreadID)
		assert.Equal(t, "worker-7", sample.ThreadName)
		assert.Equal(t, domain.UnknownThreadID, sample.OwnerThreadID)
		assert.Equal(t, base, sample.WaitStart)
		assert.Equal(t, base.Add(25*time.Millisecond), sample.WakeTime)
		assert.Equal(t, 25*time.Millisecond, sample.Duration)
	})
}

// TestTwoWaitersScenario follows the scripted scenario: two threads wait on
// the same lock, the first wakes. Its episode is emitted with an unknown
// owner while the second thread keeps waiting.
func TestTwoWaitersScenario(t *testing.T) {
	o := newTestObserver(t, nil)
	base := time.Unix(100, 0)

	o.OnWaitStart(0x1000, 1, "worker-1", domain.SyncKindMonitor, "Ljava/lang/Object", base)
	o.OnWaitStart(0x1000, 2, "worker-2", domain.SyncKindMonitor, "Ljava/lang/Object", base.Add(5*time.Millisecond))
	o.OnWake(0x1000, 1, "worker-1", base.Add(20*time.Millisecond))

	sample := receiveSample(t, o)
	assert.Equal(t, domain.ThreadID(1), sample.ThreadID)
	assert.Equal(t, 20*time.Millisecond, sample.Duration)
	assert.Equal(t, domain.UnknownThreadID, sample.OwnerThreadID)

	assert.True(t, o.Recorder().IsWaiting(0x1000, 2))
	assert.Equal(t, domain.ThreadID(1), o.Recorder().Owner(0x1000))
}

func TestUnmatchedWake(t *testing.T) {
	o := newTestObserver(t, nil)

	o.OnWake(0xdead, 1, "worker-1", time.Unix(100, 0))

	assert.Equal(t, 0, o.Recorder().OwnerCount())
	assert.Equal(t, int64(0), o.EventChannelManager.GetSentCount())
}

func TestDuplicateWaitIsAnomalous(t *testing.T) {
	o := newTestObserver(t, nil)
	base := time.Unix(100, 0)

	o.OnWaitStart(0x1000, 1, "worker-1", domain.SyncKindMonitor, "Ljava/lang/Object", base)
	o.OnWaitStart(0x1000, 1, "worker-1", domain.SyncKindMonitor, "Ljava/lang/Object", base.Add(time.Millisecond))

	assert.Equal(t, 1, o.Recorder().WaiterCount())
	// Only the first event counts as processed.
	assert.Equal(t, int64(1), o.GetEventCount())
}

func TestObserverReset(t *testing.T) {
	o := newTestObserver(t, nil)
	base := time.Unix(100, 0)

	o.OnWaitStart(0x1000, 1, "worker-1", domain.SyncKindMonitor, "Ljava/lang/Object", base)
	o.Reset()

	assert.Equal(t, 0, o.Recorder().WaiterCount())

	// The pre-reset pair is now unmatched.
	o.OnWake(0x1000, 1, "worker-1", base.Add(time.Second))
	assert.Equal(t, 0, o.Recorder().OwnerCount())
}

func TestSweeperLoop(t *testing.T) {
	o := newTestObserver(t, func(c *Config) {
		c.OwnerExpiry = 20 * time.Millisecond
		c.SweepInterval = 10 * time.Millisecond
	})
	base := time.Now().Add(-time.Minute)

	o.OnWaitStart(0x1000, 1, "worker-1", domain.SyncKindMonitor, "Ljava/lang/Object", base)
	o.OnWake(0x1000, 1, "worker-1", base.Add(15*time.Millisecond))
	require.Equal(t, 1, o.Recorder().OwnerCount())

	require.NoError(t, o.Start(context.Background()))
	defer func() { require.NoError(t, o.Stop()) }()

	assert.Eventually(t, func() bool {
		return o.Recorder().OwnerCount() == 0
	}, time.Second, 5*time.Millisecond, "sweeper should evict the stale owner entry")
}

func TestChannelFullDropsSample(t *testing.T) {
	o := newTestObserver(t, func(c *Config) {
		c.EventChannelSize = 1
	})
	base := time.Unix(100, 0)

	for tid := domain.ThreadID(1); tid <= 3; tid++ {
		o.OnWaitStart(0x1000, tid, "worker", domain.SyncKindMonitor, "Ljava/lang/Object", base)
		o.OnWake(0x1000, tid, "worker", base.Add(50*time.Millisecond))
	}

	assert.Equal(t, int64(1), o.EventChannelManager.GetSentCount())
	assert.Equal(t, int64(2), o.EventChannelManager.GetDroppedCount())
}

func TestStatisticsIncludeTableSizes(t *testing.T) {
	o := newTestObserver(t, nil)
	base := time.Unix(100, 0)

	o.OnWaitStart(0x1000, 1, "worker-1", domain.SyncKindMonitor, "Ljava/lang/Object", base)
	o.OnWaitStart(0x2000, 2, "worker-2", domain.SyncKindMonitor, "Ljava/lang/Object", base)
	o.OnWake(0x2000, 2, "worker-2", base.Add(time.Millisecond))

	stats := o.Statistics()
	assert.Equal(t, "1", stats.CustomMetrics["owner_table_size"])
	assert.Equal(t, "1", stats.CustomMetrics["waiter_count"])
	assert.Equal(t, "1", stats.CustomMetrics["contended_locks"])
}
