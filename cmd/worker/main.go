package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata" // tenant timezones must resolve in minimal containers

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/notifyhub/salon-notifier/internal/api"
	"github.com/notifyhub/salon-notifier/internal/broker"
	"github.com/notifyhub/salon-notifier/internal/config"
	"github.com/notifyhub/salon-notifier/internal/db"
	"github.com/notifyhub/salon-notifier/internal/directory"
	"github.com/notifyhub/salon-notifier/internal/dispatch"
	"github.com/notifyhub/salon-notifier/internal/enrichment"
	"github.com/notifyhub/salon-notifier/internal/metrics"
	"github.com/notifyhub/salon-notifier/internal/ratelimiter"
	"github.com/notifyhub/salon-notifier/internal/render"
	"github.com/notifyhub/salon-notifier/internal/repository"
	"github.com/notifyhub/salon-notifier/internal/router"
	"github.com/notifyhub/salon-notifier/internal/worker"
)

func main() {
	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("worker stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- core dependencies (no I/O) ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	renderer, err := render.New(logger)
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}

	pool, err := db.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	attempts := repository.NewPgAttemptRepository(pool)

	readiness := &broker.Readiness{}
	queues := &lateQueues{}

	// ---- HTTP server ----
	// Started before any dependency is reached so liveness never waits on
	// the database or the broker; /readyz stays 503 until consuming.
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      api.NewRouter(renderer, attempts, queues, readiness, reg, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}()

	// ---- database ----
	err = startupRetry(ctx, logger, "database", cfg.StartupTimeout, func() error {
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		return db.Migrate(cfg.MigrationsPath, cfg.DatabaseURL)
	})
	if err != nil {
		return startupFailed(ctx, logger, err)
	}
	logger.Info("database migrations applied")

	transports, err := buildTransports(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer transports.close(logger)

	// ---- directories ----
	httpTenants := directory.NewHTTPTenants(cfg.TenantDirectoryURL, cfg.DirectoryTimeout, logger)
	defer httpTenants.Close()
	appointments := directory.NewHTTPAppointments(cfg.AppointmentDirectoryURL, cfg.DirectoryTimeout, logger)
	defer appointments.Close()

	var tenants directory.Tenants = httpTenants
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close() //nolint:errcheck
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable at startup; tenant lookups bypass the cache until it recovers", zap.Error(err))
		}
		tenants = directory.NewCachedTenants(httpTenants, rdb, cfg.TenantCacheTTL, logger)
		logger.Info("tenant cache enabled", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.TenantCacheTTL))
	}

	// ---- pipeline ----
	dispatcher := dispatch.New(dispatch.Config{
		Email:          transports.email,
		SMS:            transports.sms,
		Push:           transports.push,
		Limiter:        ratelimiter.New(cfg.RateLimit),
		ChannelTimeout: cfg.ChannelTimeout,
		Logger:         logger,
		Hooks:          m.DispatchHooks(),
	})
	rt, err := router.New(router.Config{
		Enricher:              enrichment.New(tenants, appointments, cfg.DirectoryTimeout, logger),
		Renderer:              renderer,
		Dispatcher:            dispatcher,
		Attempts:              attempts,
		RetryOnChannelFailure: cfg.RetryOnChannelFailure,
		Logger:                logger,
	})
	if err != nil {
		return err
	}

	// ---- broker ----
	var link *brokerLink
	err = startupRetry(ctx, logger, "broker", cfg.StartupTimeout, func() error {
		l, err := connectBroker(ctx, cfg.AMQPURL, topologyConfig(cfg), logger)
		if err != nil {
			return err
		}
		link = l
		return nil
	})
	if err != nil {
		return startupFailed(ctx, logger, err)
	}
	defer link.close()
	queues.set(link.topology)
	readiness.SetTopologyReady(true)
	logger.Info("broker topology declared", zap.String("work_queue", cfg.WorkQueue))

	consumers := make([]worker.Consumer, cfg.ConsumerInstances)
	for i := range consumers {
		session, err := broker.NewSession(link.conn, logger)
		if err != nil {
			return err
		}
		defer session.Close() //nolint:errcheck
		consumers[i] = broker.NewConsumer(session, broker.ConsumerConfig{
			Queue:          cfg.WorkQueue,
			RetryQueue:     cfg.RetryQueue,
			Tag:            fmt.Sprintf("salon-notifier-%d", i),
			MaxAttempts:    cfg.MaxAttempts,
			Backoff:        cfg.RetryBackoff,
			Prefetch:       cfg.Prefetch,
			HandlerTimeout: cfg.HandlerTimeout,
			ShutdownGrace:  cfg.ShutdownTimeout,
		}, readiness, m.ConsumerHooks(), logger.With(zap.Int("consumer_id", i)))
	}

	// ---- background workers ----
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	consumerPool := worker.NewPool(consumers, rt.Route, logger)
	consumerPool.Start(workerCtx)

	monitor := worker.NewQueueMonitor(link.topology, cfg.QueueMonitorInterval, m.SetQueueDepth, logger)
	go monitor.Run(workerCtx)

	// ---- wait for shutdown or failure ----
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-consumerPool.Errors():
		runErr = fmt.Errorf("consumer stopped: %w", err)
	case err := <-serverErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	// Stop pulling; in-flight messages settle within SHUTDOWN_TIMEOUT.
	cancelWorkers()
	consumerPool.Wait()

	// Deferred closes run in reverse: channels, connection, Redis,
	// directories, transports, the HTTP server, then the DB pool.
	logger.Info("worker stopped")
	return runErr
}

// startupFailed turns a startup retry cancelled by a shutdown signal into a
// clean exit.
func startupFailed(ctx context.Context, logger *zap.Logger, err error) error {
	if ctx.Err() != nil {
		logger.Info("shutdown signal received during startup", zap.Error(err))
		return nil
	}
	return err
}

func topologyConfig(cfg *config.Config) broker.TopologyConfig {
	return broker.TopologyConfig{
		UpstreamExchange:   cfg.UpstreamExchange,
		BindingKey:         cfg.BindingKey,
		WorkQueue:          cfg.WorkQueue,
		RetryQueue:         cfg.RetryQueue,
		DeadLetterExchange: cfg.DeadLetterExchange,
		DeadLetterQueue:    cfg.DeadLetterQueue,
	}
}
