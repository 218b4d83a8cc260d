package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/okian/satobs/internal/adapters/ephemeris"
	"github.com/okian/satobs/internal/adapters/progress"
	service "github.com/okian/satobs/internal/app"
	"github.com/okian/satobs/internal/config"
	"github.com/okian/satobs/pkg/logger"
)

// loadConfig reads configuration and initializes logging from it.
func loadConfig(ctx context.Context, path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv(config.EnvFile)
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithWriter(os.Stderr)); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, nil
}

// serviceOptions maps configuration onto service options.
func serviceOptions(cfg *config.Config) []service.Option {
	opts := []service.Option{
		service.WithLogger(logger.Get().Named("service")),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithMaxBatchSize(cfg.MaxBatchSize),
		service.WithStoreDriver(cfg.StoreDriver, cfg.SQLitePath),
		service.WithEphemerisConfig(ephemeris.Config{
			BaseURL:      cfg.EphemerisBaseURL,
			Timeout:      cfg.EphemerisTimeout(),
			NameCacheTTL: cfg.NameCacheTTL(),
		}),
		service.WithProgressTTL(cfg.ProgressTTL()),
		service.WithNotifyURL(cfg.NotifyURL),
	}
	if cfg.MQTTBroker != "" {
		opts = append(opts, service.WithMQTT(progress.MQTTConfig{
			Broker:   cfg.MQTTBroker,
			Topic:    cfg.MQTTTopic,
			ClientID: cfg.MQTTClientID + "-" + uuid.NewString()[:8],
		}))
	}
	return opts
}
