// Package pipeline moves emitted contention samples from the observer's
// channel to a downstream sink. The sink owns serialization; the observer
// core never sees a wire format.
package pipeline

import (
	"context"

	"github.com/yairfalse/lockwatch/pkg/domain"
	"go.uber.org/zap"
)

// Publisher delivers one sample to a downstream sink.
type Publisher interface {
	Publish(ctx context.Context, sample *domain.ContentionSample) error
	Close()
}

// LogPublisher writes samples through the logger. It is the fallback sink
// when no transport is configured and doubles as a debugging aid.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a publisher that logs each sample.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.Named("samples")}
}

// Publish logs the sample.
func (p *LogPublisher) Publish(_ context.Context, sample *domain.ContentionSample) error {
	p.logger.Info("Contention sample",
		zap.String("sample_id", sample.SampleID),
		zap.Stringer("lock", sample.LockID),
		zap.String("sync_kind", string(sample.SyncKind)),
		zap.String("lock_type", sample.LockTypeName),
		zap.Int32("thread_id", int32(sample.ThreadID)),
		zap.String("thread_name", sample.ThreadName),
		zap.Int32("owner_thread_id", int32(sample.OwnerThreadID)),
		zap.Time("wait_start", sample.WaitStart),
		zap.Duration("duration", sample.Duration),
	)
	return nil
}

// Close is a no-op for the log publisher.
func (p *LogPublisher) Close() {}

// Pump drains an observer's sample channel into a publisher until the
// channel closes or the context ends. Publish failures are logged and the
// sample dropped; a slow or broken sink must not back up into the observer.
type Pump struct {
	publisher Publisher
	logger    *zap.Logger
}

// NewPump creates a pump feeding the given publisher.
func NewPump(publisher Publisher, logger *zap.Logger) *Pump {
	return &Pump{
		publisher: publisher,
		logger:    logger.Named("pump"),
	}
}

// Run blocks, forwarding samples until the channel closes or ctx is done.
func (p *Pump) Run(ctx context.Context, samples <-chan *domain.ContentionSample) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-samples:
			if !ok {
				return
			}
			if err := p.publisher.Publish(ctx, sample); err != nil {
				p.logger.Warn("Failed to publish sample",
					zap.String("sample_id", sample.SampleID),
					zap.Error(err),
				)
			}
		}
	}
}
