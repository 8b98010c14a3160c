package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/yairfalse/lockwatch/pkg/config"
	"github.com/yairfalse/lockwatch/pkg/domain"
	"go.uber.org/zap"
)

const contentionStreamName = "CONTENTION"

// NATSPublisher publishes contention samples to a NATS JetStream stream.
type NATSPublisher struct {
	logger *zap.Logger
	nc     *nats.Conn
	js     nats.JetStreamContext
	config *config.NATSConfig

	mu           sync.RWMutex
	isConnected  bool
	shutdownOnce sync.Once
}

// NewNATSPublisher connects to NATS and ensures the CONTENTION stream
// exists.
func NewNATSPublisher(logger *zap.Logger, natsConfig *config.NATSConfig) (*NATSPublisher, error) {
	if natsConfig == nil || natsConfig.URL == "" {
		return nil, fmt.Errorf("nats url is required")
	}

	pub := &NATSPublisher{
		logger: logger.Named("nats"),
		config: natsConfig,
	}

	nc, err := nats.Connect(natsConfig.URL,
		nats.Name(natsConfig.Name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(natsConfig.MaxReconnects),
		nats.ReconnectWait(natsConfig.ReconnectWait),
		nats.Timeout(natsConfig.ConnectionTimeout),
		nats.DisconnectErrHandler(pub.onDisconnect),
		nats.ReconnectHandler(pub.onReconnect),
		nats.ClosedHandler(pub.onClosed),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	pub.nc = nc
	pub.isConnected = true

	js, err := nc.JetStream()
	if err != nil {
		pub.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}
	pub.js = js

	if _, err := js.StreamInfo(contentionStreamName); err != nil {
		streamInfo, err := js.AddStream(&nats.StreamConfig{
			Name:       contentionStreamName,
			Subjects:   []string{"contention.samples.>"},
			Storage:    nats.FileStorage,
			Retention:  nats.LimitsPolicy,
			MaxAge:     natsConfig.MaxAge,
			MaxBytes:   natsConfig.MaxBytes,
			Duplicates: natsConfig.DuplicateWindow,
			Replicas:   natsConfig.Replicas,
			Discard:    nats.DiscardOld,
		})
		if err != nil {
			pub.Close()
			return nil, fmt.Errorf("failed to create %s stream: %w", contentionStreamName, err)
		}
		pub.logger.Info("Created JetStream stream",
			zap.String("name", streamInfo.Config.Name),
			zap.Strings("subjects", streamInfo.Config.Subjects))
	}

	return pub, nil
}

// Publish publishes one sample as JSON to contention.samples.<observer>.
func (p *NATSPublisher) Publish(ctx context.Context, sample *domain.ContentionSample) error {
	if !p.IsHealthy() {
		return fmt.Errorf("publisher not connected to NATS")
	}

	subject := subjectFor(sample)
	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to marshal sample: %w", err)
	}

	pubAck, err := p.js.Publish(subject, data,
		nats.Context(ctx),
		nats.MsgId(sample.SampleID),
	)
	if err != nil {
		return fmt.Errorf("failed to publish sample to subject %s: %w", subject, err)
	}

	p.logger.Debug("Published contention sample",
		zap.String("subject", subject),
		zap.String("sample_id", sample.SampleID),
		zap.String("stream", pubAck.Stream),
		zap.Uint64("sequence", pubAck.Sequence),
	)
	return nil
}

// subjectFor builds the per-observer subject for a sample.
func subjectFor(sample *domain.ContentionSample) string {
	observer := strings.ToLower(sample.Observer)
	if observer == "" {
		observer = "unknown"
	}
	return fmt.Sprintf("contention.samples.%s", observer)
}

// Close drains and closes the NATS connection. Safe to call more than once.
func (p *NATSPublisher) Close() {
	p.shutdownOnce.Do(func() {
		if p.nc != nil {
			if err := p.nc.Drain(); err != nil {
				p.logger.Warn("Failed to drain NATS connection", zap.Error(err))
			}
		}

		p.mu.Lock()
		p.isConnected = false
		p.mu.Unlock()
	})
}

// IsHealthy returns true if the publisher is connected.
func (p *NATSPublisher) IsHealthy() bool {
	if p == nil || p.nc == nil {
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.isConnected && p.nc.IsConnected()
}

func (p *NATSPublisher) onDisconnect(nc *nats.Conn, err error) {
	p.mu.Lock()
	p.isConnected = false
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("NATS disconnected", zap.Error(err))
	} else {
		p.logger.Warn("NATS disconnected")
	}
}

func (p *NATSPublisher) onReconnect(nc *nats.Conn) {
	p.mu.Lock()
	p.isConnected = true
	p.mu.Unlock()

	p.logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
}

func (p *NATSPublisher) onClosed(nc *nats.Conn) {
	p.mu.Lock()
	p.isConnected = false
	p.mu.Unlock()

	p.logger.Warn("NATS connection closed")
}
