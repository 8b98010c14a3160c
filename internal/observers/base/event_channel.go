package base

import (
	"sync"
	"sync/atomic"

	"github.com/yairfalse/lockwatch/pkg/domain"
	"go.uber.org/zap"
)

// EventChannelManager owns an observer's outbound sample channel and the
// drop accounting around it. Sends never block: when the channel is full
// the sample is dropped and counted, because a slow consumer must not stall
// instrumentation call sites.
type EventChannelManager struct {
	mu           sync.RWMutex
	channel      chan *domain.ContentionSample
	closed       atomic.Bool
	droppedCount atomic.Int64
	sentCount    atomic.Int64

	observerName string
	logger       *zap.Logger
}

// NewEventChannelManager creates an event channel manager with the given
// buffer size.
func NewEventChannelManager(size int, observerName string, logger *zap.Logger) *EventChannelManager {
	return &EventChannelManager{
		channel:      make(chan *domain.ContentionSample, size),
		observerName: observerName,
		logger:       logger,
	}
}

// SendEvent attempts to send a sample through the channel. Returns true if
// sent, false if dropped.
func (ecm *EventChannelManager) SendEvent(sample *domain.ContentionSample) bool {
	if ecm.closed.Load() {
		return false
	}

	ecm.mu.RLock()
	defer ecm.mu.RUnlock()

	if ecm.closed.Load() || ecm.channel == nil {
		ecm.droppedCount.Add(1)
		return false
	}

	select {
	case ecm.channel <- sample:
		ecm.sentCount.Add(1)
		return true
	default:
		ecm.droppedCount.Add(1)
		if ecm.logger != nil {
			ecm.logger.Debug("Event channel full, dropping sample",
				zap.String("observer", ecm.observerName),
				zap.String("sample_id", sample.SampleID),
			)
		}
		return false
	}
}

// GetChannel returns the channel for reading.
func (ecm *EventChannelManager) GetChannel() <-chan *domain.ContentionSample {
	ecm.mu.RLock()
	defer ecm.mu.RUnlock()
	return ecm.channel
}

// Close closes the channel. Safe to call more than once.
func (ecm *EventChannelManager) Close() {
	if !ecm.closed.CompareAndSwap(false, true) {
		return
	}

	ecm.mu.Lock()
	defer ecm.mu.Unlock()

	if ecm.channel != nil {
		close(ecm.channel)
	}
}

// GetDroppedCount returns the number of dropped samples.
func (ecm *EventChannelManager) GetDroppedCount() int64 {
	return ecm.droppedCount.Load()
}

// GetSentCount returns the number of successfully sent samples.
func (ecm *EventChannelManager) GetSentCount() int64 {
	return ecm.sentCount.Load()
}

// GetChannelUtilization returns the percentage of channel capacity in use.
func (ecm *EventChannelManager) GetChannelUtilization() float64 {
	ecm.mu.RLock()
	defer ecm.mu.RUnlock()

	if ecm.channel == nil || cap(ecm.channel) == 0 {
		return 0
	}
	return float64(len(ecm.channel)) / float64(cap(ecm.channel)) * 100
}
