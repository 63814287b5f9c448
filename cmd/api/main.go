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

	"github.com/angelmondragon/componentry-backend/api/routes"
	"github.com/angelmondragon/componentry-backend/internal/access"
	"github.com/angelmondragon/componentry-backend/internal/approvals"
	"github.com/angelmondragon/componentry-backend/internal/audit"
	"github.com/angelmondragon/componentry-backend/internal/auth"
	"github.com/angelmondragon/componentry-backend/internal/cart"
	"github.com/angelmondragon/componentry-backend/internal/cron"
	"github.com/angelmondragon/componentry-backend/internal/keypool"
	"github.com/angelmondragon/componentry-backend/internal/marketplace"
	"github.com/angelmondragon/componentry-backend/internal/organizations"
	"github.com/angelmondragon/componentry-backend/internal/payments"
	"github.com/angelmondragon/componentry-backend/internal/purchases"
	"github.com/angelmondragon/componentry-backend/internal/subscriptions"
	"github.com/angelmondragon/componentry-backend/internal/users"
	"github.com/angelmondragon/componentry-backend/internal/webhooks"
	razorpaywebhook "github.com/angelmondragon/componentry-backend/internal/webhooks/razorpay"
	stripewebhook "github.com/angelmondragon/componentry-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/componentry-backend/pkg/auth/session"
	"github.com/angelmondragon/componentry-backend/pkg/config"
	"github.com/angelmondragon/componentry-backend/pkg/db"
	"github.com/angelmondragon/componentry-backend/pkg/email"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
	"github.com/angelmondragon/componentry-backend/pkg/metrics"
	"github.com/angelmondragon/componentry-backend/pkg/migrate"
	"github.com/angelmondragon/componentry-backend/pkg/outbox"
	"github.com/angelmondragon/componentry-backend/pkg/razorpay"
	"github.com/angelmondragon/componentry-backend/pkg/redis"
	"github.com/angelmondragon/componentry-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := context.Background()

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags, logg)
	exitOnErr(ctx, logg, "failed to bootstrap database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	exitOnErr(ctx, logg, "failed to run dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	exitOnErr(ctx, logg, "failed to bootstrap redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	exitOnErr(ctx, logg, "failed to create session manager", err)

	conn := dbClient.DB()
	auditService := audit.NewService(conn, logg)
	outboxService := outbox.NewService(outbox.NewRepository(conn), logg)
	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)
	sender := email.New(cfg.Sendgrid, logg)

	// Gateways stay nil interfaces when unconfigured so services answer DEPENDENCY.
	var razorpayGateway razorpay.Gateway
	if cfg.Razorpay.Enabled() {
		client, err := razorpay.NewClient(ctx, cfg.Razorpay, logg)
		exitOnErr(ctx, logg, "failed to create razorpay client", err)
		razorpayGateway = client
	} else {
		logg.Warn(ctx, "razorpay not configured; order creation disabled")
	}
	var (
		stripeGateway purchases.StripeGateway
		stripeSigner  *stripe.Client
	)
	if cfg.Stripe.APIKey != "" {
		client, err := stripe.NewClient(ctx, cfg.Stripe, logg)
		exitOnErr(ctx, logg, "failed to create stripe client", err)
		stripeGateway = client
		stripeSigner = client
	} else {
		logg.Warn(ctx, "stripe not configured; stripe checkout disabled")
	}

	userRepo := users.NewRepository(conn)
	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		SessionManager: sessionManager,
		Audit:          auditService,
		JWTConfig:      cfg.JWT,
	})
	exitOnErr(ctx, logg, "failed to create auth service", err)
	registerService, err := auth.NewRegisterService(auth.RegisterServiceParams{
		UserRepo:       userRepo,
		PasswordConfig: cfg.Password,
		Audit:          auditService,
	})
	exitOnErr(ctx, logg, "failed to create register service", err)
	userService, err := users.NewService(userRepo, auditService)
	exitOnErr(ctx, logg, "failed to create user service", err)

	keyService, err := keypool.NewService(conn, keypool.NewRepository(), auditService, logg)
	exitOnErr(ctx, logg, "failed to create key pool service", err)
	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		DB:       conn,
		Keys:     keyService,
		BatchCap: cfg.Cron.SubscriptionBatchCap,
	})
	exitOnErr(ctx, logg, "failed to create subscription service", err)

	paymentRepo := payments.NewRepository()
	paymentService, err := payments.NewService(payments.ServiceParams{
		DB:            dbClient,
		Repo:          paymentRepo,
		Gateway:       razorpayGateway,
		KeySecret:     cfg.Razorpay.KeySecret,
		Currency:      cfg.Razorpay.Currency,
		Subscriptions: subscriptionService,
		Outbox:        outboxService,
		Audit:         auditService,
		Metrics:       paymentMetrics,
		Logger:        logg,
	})
	exitOnErr(ctx, logg, "failed to create payment service", err)

	resolver, err := access.NewResolver(conn)
	exitOnErr(ctx, logg, "failed to create capability resolver", err)
	itemRepo := marketplace.NewRepository()
	marketplaceService, err := marketplace.NewService(marketplace.ServiceParams{
		DB:       dbClient,
		Repo:     itemRepo,
		Resolver: resolver,
		Audit:    auditService,
		Logger:   logg,
		Currency: cfg.Razorpay.Currency,
		CacheTTL: cfg.Marketplace.ListingCacheTTL,
	})
	exitOnErr(ctx, logg, "failed to create marketplace service", err)
	approvalService, err := approvals.NewService(approvals.ServiceParams{
		DB:       dbClient,
		Repo:     approvals.NewRepository(),
		Items:    itemRepo,
		Resolver: resolver,
		Listings: marketplaceService,
		Audit:    auditService,
		Logger:   logg,
	})
	exitOnErr(ctx, logg, "failed to create approval service", err)

	cartRepo := cart.NewRepository(conn)
	cartService, err := cart.NewService(dbClient, cartRepo, itemRepo, cfg.Razorpay.Currency)
	exitOnErr(ctx, logg, "failed to create cart service", err)
	purchaseService, err := purchases.NewService(purchases.ServiceParams{
		DB:                dbClient,
		Repo:              purchases.NewRepository(),
		Payments:          paymentRepo,
		Items:             itemRepo,
		Carts:             cartRepo,
		Razorpay:          razorpayGateway,
		RazorpayKeySecret: cfg.Razorpay.KeySecret,
		Stripe:            stripeGateway,
		Currency:          cfg.Razorpay.Currency,
		DeveloperSharePct: cfg.Marketplace.DeveloperSharePct,
		Outbox:            outboxService,
		Audit:             auditService,
		Metrics:           paymentMetrics,
		Logger:            logg,
	})
	exitOnErr(ctx, logg, "failed to create purchase service", err)
	orgService, err := organizations.NewService(dbClient, organizations.NewRepository(), auditService)
	exitOnErr(ctx, logg, "failed to create organization service", err)

	eventRecorder, err := webhooks.NewRecorder(conn)
	exitOnErr(ctx, logg, "failed to create webhook recorder", err)
	razorpayGuard, err := webhooks.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookDedupTTL, "razorpay-webhook")
	exitOnErr(ctx, logg, "failed to create razorpay webhook guard", err)
	razorpayHooks, err := razorpaywebhook.NewService(razorpaywebhook.ServiceParams{
		DB:            conn,
		WebhookSecret: cfg.Razorpay.WebhookSecret,
		Guard:         razorpayGuard,
		Events:        eventRecorder,
		Metrics:       paymentMetrics,
		Logger:        logg,
	})
	exitOnErr(ctx, logg, "failed to create razorpay webhook service", err)
	stripeGuard, err := webhooks.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookDedupTTL, "stripe-webhook")
	exitOnErr(ctx, logg, "failed to create stripe webhook guard", err)
	stripeHooks, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Purchases: purchaseService,
		Events:    eventRecorder,
		Metrics:   paymentMetrics,
		Logger:    logg,
	})
	exitOnErr(ctx, logg, "failed to create stripe webhook service", err)

	registry, err := cron.NewLifecycleRegistry(cron.LifecycleParams{
		Logger:        logg,
		DB:            dbClient,
		Subscriptions: subscriptionService,
		Outbox:        outboxService,
		OutboxRepo:    outbox.NewRepository(conn),
		Audit:         auditService,
		Sender:        sender,
		Dedup:         redisClient,
		Cron:          cfg.Cron,
		Retention:     cfg.Outbox.Retention,
	})
	exitOnErr(ctx, logg, "failed to build lifecycle jobs", err)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(cron.CycleLockName), cfg.Cron.LockTTL)
	exitOnErr(ctx, logg, "failed to create cron lock", err)
	jobRunner, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Audit:    auditService,
		Schedule: cfg.Cron.Schedule,
	})
	exitOnErr(ctx, logg, "failed to create job runner", err)

	params := routes.Params{
		Config:          cfg,
		Logger:          logg,
		DB:              dbClient,
		Store:           redisClient,
		Sessions:        sessionManager,
		Metrics:         promhttp.Handler(),
		HTTPMetrics:     metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		Auth:            authService,
		Register:        registerService,
		Users:           userService,
		Keys:            keyService,
		Payments:        paymentService,
		Cart:            cartService,
		Purchases:       purchaseService,
		Marketplace:     marketplaceService,
		Approvals:       approvalService,
		Organizations:   orgService,
		Audit:           auditService,
		Jobs:            jobRunner,
		RazorpayWebhook: razorpayHooks,
		StripeWebhook:   stripeHooks,
		StripeGuard:     stripeGuard,
	}
	if stripeSigner != nil {
		params.StripeSigner = stripeSigner
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(params),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}

func exitOnErr(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, msg, err)
	os.Exit(1)
}
