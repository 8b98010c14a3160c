// Lockwatch is the lock-contention observer agent. It hosts the
// correlation core, sweeps stale ownership state in the background, and
// ships significant contention samples to NATS or the log.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/yairfalse/lockwatch/internal/observers/lockcontention"
	"github.com/yairfalse/lockwatch/internal/pipeline"
	"github.com/yairfalse/lockwatch/pkg/config"
)

const version = "0.1.0"

var (
	configPath string
	logLevel   string
	natsURL    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lockwatch",
		Short: "Lock contention observer agent",
		Long: `Lockwatch correlates raw lock wait/wake events from instrumentation
hooks into contention samples: which thread held a lock while another
waited, and for how long. Significant samples are published to NATS
JetStream or, without a transport, to the log.`,
		Version: version,
		RunE:    runAgent,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&natsURL, "nats-url", "", "NATS server URL (empty disables NATS)")

	viper.SetEnvPrefix("LOCKWATCH")
	viper.AutomaticEnv()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if natsURL != "" {
		cfg.NATS.URL = natsURL
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	observerCfg := &lockcontention.Config{
		OwnerExpiry:           cfg.Observer.OwnerExpiry,
		SignificanceThreshold: cfg.Observer.SignificanceThreshold,
		SweepInterval:         cfg.Observer.SweepInterval,
		EventChannelSize:      cfg.Observer.EventChannelSize,
		TrackedParkTypes:      cfg.Observer.TrackedParkTypes,
		AnomalyLogsPerSecond:  cfg.Observer.AnomalyLogsPerSecond,
	}

	observer, err := lockcontention.NewObserver("lock-contention", observerCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create observer: %w", err)
	}

	publisher, err := buildPublisher(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}
	defer publisher.Close()

	if err := observer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start observer: %w", err)
	}

	var pumpWg sync.WaitGroup
	pumpWg.Add(1)
	go func() {
		defer pumpWg.Done()
		pipeline.NewPump(publisher, logger).Run(ctx, observer.Events())
	}()

	logger.Info("Lockwatch agent started",
		zap.String("version", version),
		zap.Bool("nats_enabled", cfg.NATS.URL != ""),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	// Stop the observer first so the channel closes and the pump drains
	// remaining samples before the publisher goes away.
	if err := observer.Stop(); err != nil {
		logger.Warn("Observer stop reported error", zap.Error(err))
	}
	pumpWg.Wait()

	logger.Info("Lockwatch agent stopped")
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	switch level {
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}
	return cfg.Build()
}

func buildPublisher(cfg *config.Config, logger *zap.Logger) (pipeline.Publisher, error) {
	if cfg.NATS.URL == "" {
		return pipeline.NewLogPublisher(logger), nil
	}
	return pipeline.NewNATSPublisher(logger, &cfg.NATS)
}
