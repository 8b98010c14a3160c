package base

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yairfalse/lockwatch/pkg/domain"
	"go.uber.org/zap/zaptest"
)

func TestBaseObserver(t *testing.T) {
	t.Run("initialization", func(t *testing.T) {
		bo := NewBaseObserver("test-observer", 5*time.Minute, zaptest.NewLogger(t))

		assert.Equal(t, "test-observer", bo.GetName())
		assert.Equal(t, int64(0), bo.GetEventCount())
		assert.Equal(t, int64(0), bo.GetErrorCount())
		assert.Equal(t, int64(0), bo.GetDroppedCount())
		assert.True(t, bo.GetUptime() >= 0)
	})

	t.Run("record events", func(t *testing.T) {
		bo := NewBaseObserver("test-observer", 5*time.Minute, zaptest.NewLogger(t))

		bo.RecordEvent()
		bo.RecordEvent()
		bo.RecordEvent()

		assert.Equal(t, int64(3), bo.GetEventCount())
	})

	t.Run("record errors", func(t *testing.T) {
		bo := NewBaseObserver("test-observer", 5*time.Minute, zaptest.NewLogger(t))

		bo.RecordError(errors.New("test error 1"))
		bo.RecordError(errors.New("test error 2"))

		assert.Equal(t, int64(2), bo.GetErrorCount())
	})

	t.Run("statistics", func(t *testing.T) {
		bo := NewBaseObserver("test-observer", 5*time.Minute, zaptest.NewLogger(t))

		bo.RecordEvent()
		bo.RecordEvent()
		bo.RecordError(errors.New("test"))
		bo.RecordDrop()

		stats := bo.Statistics()

		assert.Equal(t, int64(2), stats.EventsProcessed)
		assert.Equal(t, int64(1), stats.ErrorCount)
		assert.Equal(t, int64(1), stats.EventsDropped)
		assert.True(t, stats.Uptime > 0)
		assert.False(t, stats.LastEventTime.IsZero())
	})

	t.Run("health when healthy", func(t *testing.T) {
		bo := NewBaseObserver("test-observer", 5*time.Minute, zaptest.NewLogger(t))
		bo.RecordEvent()

		health := bo.Health()

		assert.Equal(t, domain.HealthHealthy, health.Status)
		assert.Contains(t, health.Message, "operating normally")
	})

	t.Run("health when unhealthy", func(t *testing.T) {
		bo := NewBaseObserver("test-observer", 5*time.Minute, zaptest.NewLogger(t))
		bo.SetHealthy(false)
		bo.RecordError(errors.New("critical error"))

		health := bo.Health()

		assert.Equal(t, domain.HealthUnhealthy, health.Status)
		assert.Contains(t, health.Message, "unhealthy")
	})

	t.Run("health degraded on high error rate", func(t *testing.T) {
		bo := NewBaseObserver("test-observer", 5*time.Minute, zaptest.NewLogger(t))

		for i := 0; i < 10; i++ {
			bo.RecordEvent()
		}
		bo.RecordError(errors.New("error1"))
		bo.RecordError(errors.New("error2"))

		health := bo.Health()

		assert.Equal(t, domain.HealthDegraded, health.Status)
		assert.Contains(t, health.Message, "High error rate")
	})

	t.Run("health degraded on stale events", func(t *testing.T) {
		bo := NewBaseObserver("test-observer", 50*time.Millisecond, zaptest.NewLogger(t))
		bo.RecordEvent()

		time.Sleep(80 * time.Millisecond)

		health := bo.Health()

		assert.Equal(t, domain.HealthDegraded, health.Status)
		assert.Contains(t, health.Message, "No events received")
	})
}

func TestEventChannelManager(t *testing.T) {
	sample := func(id string) *domain.ContentionSample {
		return &domain.ContentionSample{SampleID: id, LockID: 0x1000}
	}

	t.Run("send and receive", func(t *testing.T) {
		ecm := NewEventChannelManager(10, "test", zaptest.NewLogger(t))
		defer ecm.Close()

		assert.True(t, ecm.SendEvent(sample("s-1")))
		assert.Equal(t, int64(1), ecm.GetSentCount())

		select {
		case received := <-ecm.GetChannel():
			assert.Equal(t, "s-1", received.SampleID)
		case <-time.After(100 * time.Millisecond):
			t.Fatal("did not receive sample")
		}
	})

	t.Run("drop when channel full", func(t *testing.T) {
		ecm := NewEventChannelManager(2, "test", zaptest.NewLogger(t))
		defer ecm.Close()

		ecm.SendEvent(sample("1"))
		ecm.SendEvent(sample("2"))

		assert.False(t, ecm.SendEvent(sample("3")))
		assert.Equal(t, int64(1), ecm.GetDroppedCount())
		assert.Equal(t, int64(2), ecm.GetSentCount())
	})

	t.Run("send after close is rejected", func(t *testing.T) {
		ecm := NewEventChannelManager(2, "test", zaptest.NewLogger(t))
		ecm.Close()

		assert.False(t, ecm.SendEvent(sample("late")))
	})

	t.Run("close is idempotent", func(t *testing.T) {
		ecm := NewEventChannelManager(2, "test", zaptest.NewLogger(t))
		ecm.Close()
		ecm.Close()
	})

	t.Run("channel utilization", func(t *testing.T) {
		ecm := NewEventChannelManager(10, "test", zaptest.NewLogger(t))
		defer ecm.Close()

		for i := 0; i < 5; i++ {
			ecm.SendEvent(sample("s"))
		}

		assert.Equal(t, 50.0, ecm.GetChannelUtilization())
	})
}

func TestLifecycleManager(t *testing.T) {
	t.Run("start and stop goroutines", func(t *testing.T) {
		lm := NewLifecycleManager(nil, zaptest.NewLogger(t))

		done := make(chan bool, 1)
		lm.Start("test-goroutine", func() {
			<-lm.StopChannel()
			done <- true
		})

		assert.Equal(t, int32(1), lm.GetRunningGoroutines())

		err := lm.Stop(1 * time.Second)
		require.NoError(t, err)

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("goroutine did not stop")
		}

		assert.Equal(t, int32(0), lm.GetRunningGoroutines())
	})

	t.Run("shutdown timeout", func(t *testing.T) {
		lm := NewLifecycleManager(nil, zaptest.NewLogger(t))

		release := make(chan struct{})
		lm.Start("stuck-goroutine", func() {
			<-release
		})

		err := lm.Stop(50 * time.Millisecond)
		assert.Equal(t, ErrShutdownTimeout, err)
		close(release)
	})

	t.Run("context cancellation", func(t *testing.T) {
		lm := NewLifecycleManager(nil, zaptest.NewLogger(t))

		cancelled := make(chan struct{})
		lm.Start("context-aware", func() {
			<-lm.Context().Done()
			close(cancelled)
		})

		err := lm.Stop(1 * time.Second)
		require.NoError(t, err)

		select {
		case <-cancelled:
		case <-time.After(time.Second):
			t.Fatal("context was not cancelled")
		}
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		lm := NewLifecycleManager(nil, zaptest.NewLogger(t))
		require.NoError(t, lm.Stop(time.Second))
		require.NoError(t, lm.Stop(time.Second))
		assert.True(t, lm.IsShuttingDown())
	})
}
