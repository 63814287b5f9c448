package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/componentry-backend/internal/audit"
	"github.com/angelmondragon/componentry-backend/internal/cron"
	"github.com/angelmondragon/componentry-backend/internal/keypool"
	"github.com/angelmondragon/componentry-backend/internal/subscriptions"
	"github.com/angelmondragon/componentry-backend/pkg/config"
	"github.com/angelmondragon/componentry-backend/pkg/db"
	"github.com/angelmondragon/componentry-backend/pkg/email"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
	"github.com/angelmondragon/componentry-backend/pkg/metrics"
	"github.com/angelmondragon/componentry-backend/pkg/migrate"
	"github.com/angelmondragon/componentry-backend/pkg/outbox"
	"github.com/angelmondragon/componentry-backend/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	boot := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		boot.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		boot.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down")
}

// run wires the lifecycle jobs and blocks until ctx is canceled. Deferred
// closes run before main decides the exit code.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeLogged(logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeLogged(logg, "redis", redisClient.Close)

	service, err := buildService(cfg, logg, dbClient, redisClient)
	if err != nil {
		return err
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"schedule":    cfg.Cron.Schedule,
		"jobs":        service.Jobs(),
	})

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return metrics.Serve(gctx, ":"+cfg.App.Port) })
	group.Go(func() error {
		logg.Info(gctx, "starting cron worker")
		err := service.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	return group.Wait()
}

func buildService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*cron.Service, error) {
	conn := dbClient.DB()
	auditService := audit.NewService(conn, logg)
	keyService, err := keypool.NewService(conn, keypool.NewRepository(), auditService, logg)
	if err != nil {
		return nil, fmt.Errorf("key pool service: %w", err)
	}
	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		DB:       conn,
		Keys:     keyService,
		BatchCap: cfg.Cron.SubscriptionBatchCap,
	})
	if err != nil {
		return nil, fmt.Errorf("subscription service: %w", err)
	}

	outboxRepo := outbox.NewRepository(conn)
	registry, err := cron.NewLifecycleRegistry(cron.LifecycleParams{
		Logger:        logg,
		DB:            dbClient,
		Subscriptions: subscriptionService,
		Outbox:        outbox.NewService(outboxRepo, logg),
		OutboxRepo:    outboxRepo,
		Audit:         auditService,
		Sender:        email.New(cfg.Sendgrid, logg),
		Dedup:         redisClient,
		Cron:          cfg.Cron,
		Retention:     cfg.Outbox.Retention,
	})
	if err != nil {
		return nil, fmt.Errorf("lifecycle jobs: %w", err)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(cron.CycleLockName), cfg.Cron.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("cron lock: %w", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Audit:    auditService,
		Schedule: cfg.Cron.Schedule,
	})
	if err != nil {
		return nil, fmt.Errorf("cron service: %w", err)
	}
	return service, nil
}

func closeLogged(logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "error closing "+name, err)
	}
}
