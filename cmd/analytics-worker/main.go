package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/componentry-backend/internal/analytics/router"
	"github.com/angelmondragon/componentry-backend/internal/analytics/types"
	"github.com/angelmondragon/componentry-backend/internal/analytics/worker"
	"github.com/angelmondragon/componentry-backend/internal/analytics/writer"
	"github.com/angelmondragon/componentry-backend/pkg/bigquery"
	"github.com/angelmondragon/componentry-backend/pkg/config"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
	"github.com/angelmondragon/componentry-backend/pkg/metrics"
	"github.com/angelmondragon/componentry-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/componentry-backend/pkg/pubsub"
	"github.com/angelmondragon/componentry-backend/pkg/redis"
)

const serviceKind = "analytics-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})
	_ = godotenv.Load()

	cfg, err := config.Load()
	must(logg, "config", err)
	cfg.Service.Kind = serviceKind

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"table":       cfg.BigQuery.RevenueTable,
	})

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	must(logg, "redis", err)
	defer closeQuietly(logg, "redis", redisClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg, pubsub.Needs{Subscriptions: []string{cfg.PubSub.AnalyticsSubscription}})
	must(logg, "pubsub", err)
	defer closeQuietly(logg, "pubsub", pubsubClient.Close)

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg, bigquery.TableSpec{
		Name:           cfg.BigQuery.RevenueTable,
		Schema:         types.RevenueEventSchema(),
		PartitionField: types.RevenueEventsPartitionField,
	})
	must(logg, "bigquery", err)
	defer closeQuietly(logg, "bigquery", bqClient.Close)

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		must(logg, "analytics subscription", errors.New("COMPONENTRY_PUBSUB_ANALYTICS_SUBSCRIPTION not set"))
	}

	dedup, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	must(logg, "idempotency manager", err)

	revenueWriter, err := writer.New(bqClient, writer.Config{
		RevenueTable: cfg.BigQuery.RevenueTable,
		RetryPolicy:  writer.RetryPolicy{MaxAttempts: cfg.BigQuery.InsertRetries},
	})
	must(logg, "revenue writer", err)

	handler, err := router.NewRouter(revenueWriter, logg)
	must(logg, "event router", err)

	service, err := worker.NewService(worker.Params{
		Subscription: subscription,
		Handler:      handler,
		Dedup:        dedup,
		Logger:       logg,
		Metrics:      metrics.NewConsumerMetrics(prometheus.DefaultRegisterer),
	})
	must(logg, "worker service", err)

	metricsServer := &http.Server{Addr: ":" + cfg.App.Port, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logg.Info(ctx, "analytics worker ready")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "analytics worker failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "analytics worker stopped")
}

func must(logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(logg.WithField(context.Background(), "resource", resource), "startup failed", err)
	os.Exit(1)
}

func closeQuietly(logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "close "+name, err)
	}
}
