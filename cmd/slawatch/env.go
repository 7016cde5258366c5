package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/nhle/slawatch/internal/credential"
	"github.com/nhle/slawatch/internal/monitor"
	"github.com/nhle/slawatch/internal/sla"
	"github.com/nhle/slawatch/internal/store"
)

// env bundles everything a command needs to talk to the monitor.
type env struct {
	store     *store.SQLStore
	svc       *monitor.Service
	policy    sla.Policy
	registry  *prometheus.Registry
	metrics   *monitor.Metrics
	publisher *monitor.RedisPublisher
}

// openEnv opens the configured store and builds the monitor service.
// Redis publishing is wired only when withPublisher is set and an address
// is configured.
func openEnv(ctx context.Context, withPublisher bool) (*env, error) {
	policy, err := sla.PolicyFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitor.NewMetrics(reg)

	e := &env{store: st, policy: policy, registry: reg, metrics: metrics}

	opts := []monitor.Option{
		monitor.WithLogger(logger),
		monitor.WithMetrics(metrics),
		monitor.WithTaskTimeout(cfg.Loop.TaskTimeout),
		monitor.WithBreaker(cfg.Breaker),
	}
	if withPublisher && cfg.Redis.Addr != "" {
		e.publisher = monitor.NewRedisPublisher(cfg.Redis)
		opts = append(opts, monitor.WithPublisher(e.publisher))
		logger.Info("publishing events to redis",
			zap.String("addr", cfg.Redis.Addr),
			zap.String("channel", cfg.Redis.Channel),
		)
	}

	e.svc = monitor.New(st, policy, opts...)
	return e, nil
}

func openStore(ctx context.Context) (*store.SQLStore, error) {
	switch cfg.Store.Driver {
	case "postgres":
		password, err := credential.NewVault().StorePassword(cfg.Store.PasswordKey)
		if err != nil && !errors.Is(err, credential.ErrNotFound) {
			return nil, err
		}
		return store.NewPostgresStore(ctx, cfg.Store.DSN, password, cfg.Store.MaxOpenConns)
	default:
		if cfg.Store.DSN != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Store.DSN), 0o755); err != nil {
				return nil, fmt.Errorf("creating data directory: %w", err)
			}
		}
		return store.NewSQLiteStore(cfg.Store.DSN)
	}
}

func (e *env) Close() {
	if e.publisher != nil {
		if err := e.publisher.Close(); err != nil {
			logger.Warn("closing redis publisher", zap.Error(err))
		}
	}
	if err := e.store.Close(); err != nil {
		logger.Warn("closing store", zap.Error(err))
	}
}
