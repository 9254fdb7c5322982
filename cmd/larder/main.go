package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hearthshare/larder/pkg/access"
	"github.com/hearthshare/larder/pkg/api"
	"github.com/hearthshare/larder/pkg/cleanup"
	"github.com/hearthshare/larder/pkg/config"
	"github.com/hearthshare/larder/pkg/copyonwrite"
	"github.com/hearthshare/larder/pkg/observability"
	"github.com/hearthshare/larder/pkg/storage"
	"github.com/hearthshare/larder/pkg/subscriptions"
)

func main() {
	// logrus covers the window before the structured logger exists.
	startupLog := logrus.New()
	startupLog.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		startupLog.WithError(err).Fatal("failed to load configuration")
	}

	logger := observability.NewLogger(cfg.LogLevel(), os.Stdout)
	logger.WithField("log_level", cfg.Observability.LogLevel).Info("starting larder")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("failed to initialize OpenTelemetry")
		os.Exit(1)
	}

	connCfg := storage.DefaultConnectionConfig(cfg.Database.URL)
	connCfg.ReplicaURLs = cfg.Database.ReplicaURLs
	connCfg.MaxConns = cfg.Database.MaxConns
	connCfg.MinConns = cfg.Database.MinConns
	connCfg.Timeout = cfg.Database.Timeout

	conns, err := storage.NewConnectionManager(connCfg)
	if err != nil {
		logger.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}
	defer conns.Close()

	if err := storage.RunMigrations(ctx, conns.Primary()); err != nil {
		logger.WithError(err).Error("failed to run migrations")
		os.Exit(1)
	}
	logger.Info("migrations applied")

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
	}

	var cache *access.Cache
	if cfg.Cache.Enabled {
		cache, err = access.NewCache(access.CacheOptions{
			RedisAddr:     cfg.Cache.RedisAddr,
			RedisPassword: cfg.Cache.RedisPassword,
			RedisDB:       cfg.Cache.RedisDB,
			L1Size:        cfg.Cache.L1Size,
			TTL:           cfg.Cache.TTL,
		}, metrics)
		if err != nil {
			logger.WithError(err).Error("failed to initialize access cache")
			os.Exit(1)
		}
		defer cache.Close()
		logger.WithField("redis_addr", cfg.Cache.RedisAddr).Info("access cache enabled")
	}

	txTimeout := cfg.Database.Timeout

	resolver := access.NewResolver(conns.Replica(), cache)
	checker := access.NewChecker(conns.Replica())
	subs := subscriptions.NewManager(conns.Primary(), txTimeout, cache, metrics)
	engine := copyonwrite.NewEngine(conns.Primary(), txTimeout, cache, metrics)
	cleaner := cleanup.NewCleaner(conns.Primary(), txTimeout, metrics, logger)

	if cfg.Cleanup.SweepEnabled {
		scheduler := cleanup.NewScheduler(cleaner, cfg.Cleanup.SweepSchedule, 5*time.Minute, logger)
		if err := scheduler.Start(); err != nil {
			logger.WithError(err).Error("failed to start orphan sweep")
			os.Exit(1)
		}
		defer scheduler.Stop()
	}

	server := api.NewServer(api.Options{
		Connections:   conns,
		Resolver:      resolver,
		Checker:       checker,
		Subscriptions: subs,
		Engine:        engine,
		Cleaner:       cleaner,
		Logger:        logger,
		Metrics:       metrics,
		Tracing:       cfg.Observability.OTelEnabled,
	})

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      withBaseContext(server.Handler(), logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("http server listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("http server failed")
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http shutdown failed")
	}
	if err := observability.ShutdownOTel(shutdownCtx, otelProviders, logger); err != nil {
		logger.WithError(err).Error("OpenTelemetry shutdown failed")
	}
	logger.Info("larder stopped")
}

// withBaseContext seeds every request context with the process logger so
// handlers and services log with consistent fields.
func withBaseContext(next http.Handler, logger *observability.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := observability.WithLogger(r.Context(), logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
