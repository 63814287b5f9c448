package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/componentry-backend/api/controllers"
	admincontrollers "github.com/angelmondragon/componentry-backend/api/controllers/admin"
	cartcontrollers "github.com/angelmondragon/componentry-backend/api/controllers/cart"
	keycontrollers "github.com/angelmondragon/componentry-backend/api/controllers/keys"
	marketcontrollers "github.com/angelmondragon/componentry-backend/api/controllers/marketplace"
	orgcontrollers "github.com/angelmondragon/componentry-backend/api/controllers/organizations"
	paymentcontrollers "github.com/angelmondragon/componentry-backend/api/controllers/payments"
	purchasecontrollers "github.com/angelmondragon/componentry-backend/api/controllers/purchases"
	usercontrollers "github.com/angelmondragon/componentry-backend/api/controllers/users"
	webhookcontrollers "github.com/angelmondragon/componentry-backend/api/controllers/webhooks"
	"github.com/angelmondragon/componentry-backend/api/middleware"
	"github.com/angelmondragon/componentry-backend/internal/approvals"
	"github.com/angelmondragon/componentry-backend/internal/auth"
	"github.com/angelmondragon/componentry-backend/internal/cart"
	"github.com/angelmondragon/componentry-backend/internal/keypool"
	"github.com/angelmondragon/componentry-backend/internal/marketplace"
	"github.com/angelmondragon/componentry-backend/internal/organizations"
	"github.com/angelmondragon/componentry-backend/internal/payments"
	"github.com/angelmondragon/componentry-backend/internal/purchases"
	"github.com/angelmondragon/componentry-backend/internal/users"
	"github.com/angelmondragon/componentry-backend/pkg/auth/session"
	"github.com/angelmondragon/componentry-backend/pkg/config"
	"github.com/angelmondragon/componentry-backend/pkg/db"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
	"github.com/angelmondragon/componentry-backend/pkg/metrics"
)

// Store is the slice of the redis client the HTTP layer needs.
type Store interface {
	middleware.IdempotencyStore
	middleware.RateLimitStore
	Ping(ctx context.Context) error
}

type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Store    Store
	Sessions session.AccessSessionChecker
	Metrics  http.Handler

	HTTPMetrics *metrics.HTTPMetrics

	Auth          auth.Service
	Register      auth.RegisterService
	Users         users.Service
	Keys          keypool.Service
	Payments      payments.Service
	Cart          cart.Service
	Purchases     purchases.Service
	Marketplace   marketplace.Service
	Approvals     approvals.Service
	Organizations organizations.Service
	Audit         admincontrollers.AuditLister
	Jobs          admincontrollers.JobRunner

	RazorpayWebhook webhookcontrollers.RazorpayWebhookService
	StripeWebhook   webhookcontrollers.StripeWebhookService
	StripeSigner    webhookcontrollers.SigningSecretSource
	StripeGuard     webhookcontrollers.EventGuard
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, p.HTTPMetrics),
		middleware.CORS(cfg.App.AllowedOrigins),
		middleware.ClientIP,
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, p.Store))
	})
	metricsHandler := p.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	razorpayHook := webhookcontrollers.RazorpayWebhook(p.RazorpayWebhook, logg)
	r.Post("/webhooks/razorpay", razorpayHook)
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/razorpay", razorpayHook)
		r.Post("/stripe", webhookcontrollers.StripeWebhook(p.StripeWebhook, p.StripeSigner, p.StripeGuard, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, p.Store, logg)).Post("/login", controllers.AuthLogin(p.Auth, logg))
		r.With(middleware.AuthRateLimit(registerPolicy, p.Store, logg)).Post("/register", controllers.AuthRegister(p.Register, p.Auth, logg))
		r.Post("/refresh", controllers.AuthRefresh(p.Auth, logg))
		r.With(middleware.Auth(cfg.JWT, p.Sessions, logg)).Post("/logout", controllers.AuthLogout(p.Auth, logg))
	})

	r.Get("/api/v1/plans", paymentcontrollers.ListPlans())

	r.Route("/api/v1/marketplace/{type}", func(r chi.Router) {
		r.With(middleware.OptionalAuth(cfg.JWT, p.Sessions, logg)).Get("/", marketcontrollers.List(p.Marketplace, logg))
		r.With(middleware.OptionalAuth(cfg.JWT, p.Sessions, logg)).Get("/{itemID}", marketcontrollers.Get(p.Marketplace, logg))
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, p.Sessions, logg))
			r.Use(middleware.Idempotency(p.Store, logg))
			r.Post("/{itemID}/claim", marketcontrollers.Claim(p.Marketplace, logg))
			r.Get("/{itemID}/download", marketcontrollers.Download(p.Marketplace, logg))
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, p.Sessions, logg))
		r.Use(middleware.Idempotency(p.Store, logg))

		r.Get("/me", usercontrollers.Me(p.Users, logg))
		r.Patch("/me", usercontrollers.UpdateMe(p.Users, logg))
		r.Get("/me/usage", usercontrollers.Usage(p.Users, logg))

		r.Route("/payments", func(r chi.Router) {
			r.Post("/create-order", paymentcontrollers.CreateOrder(p.Payments, logg))
			r.Post("/verify-payment", paymentcontrollers.VerifyPayment(p.Payments, logg))
			r.Post("/{orderID}/fail", paymentcontrollers.FailPayment(p.Payments, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.CartFetch(p.Cart, logg))
			r.Delete("/", cartcontrollers.CartClear(p.Cart, logg))
			r.Post("/items", cartcontrollers.CartAddItem(p.Cart, logg))
			r.Delete("/items/{type}/{itemID}", cartcontrollers.CartRemoveItem(p.Cart, logg))
		})

		r.Post("/checkout", purchasecontrollers.Checkout(p.Purchases, logg))
		r.Post("/checkout/verify", purchasecontrollers.VerifyCheckout(p.Purchases, logg))
		r.Get("/purchases", purchasecontrollers.ListMine(p.Purchases, logg))

		r.Route("/developer", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.RoleDeveloper, logg))
			r.Get("/items", marketcontrollers.DeveloperList(p.Marketplace, logg))
			r.Post("/items/{type}", marketcontrollers.DeveloperCreate(p.Marketplace, logg))
			r.Patch("/items/{type}/{itemID}", marketcontrollers.DeveloperUpdate(p.Marketplace, logg))
			r.Post("/items/{type}/{itemID}/submit", marketcontrollers.DeveloperSubmit(p.Approvals, logg))
			r.Post("/items/{type}/{itemID}/archive", marketcontrollers.DeveloperArchive(p.Approvals, logg))
			r.Get("/earnings", purchasecontrollers.DeveloperEarnings(p.Purchases, logg))
		})

		r.Route("/organizations", func(r chi.Router) {
			r.Get("/", orgcontrollers.List(p.Organizations, logg))
			r.Post("/", orgcontrollers.Create(p.Organizations, logg))
			r.Get("/{orgID}/members", orgcontrollers.Members(p.Organizations, logg))
			r.Post("/{orgID}/members", orgcontrollers.AddMember(p.Organizations, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, p.Sessions, logg))
		r.Use(middleware.RequireRole(enums.RoleAdmin, logg))
		r.Use(middleware.Idempotency(p.Store, logg))

		r.Route("/users", func(r chi.Router) {
			r.Get("/", usercontrollers.AdminList(p.Users, logg))
			r.Patch("/{userID}/role", usercontrollers.AdminSetRole(p.Users, logg))
			r.Patch("/{userID}/active", usercontrollers.AdminSetActive(p.Users, logg))
		})
		r.Route("/keys", func(r chi.Router) {
			r.Get("/", keycontrollers.List(p.Keys, logg))
			r.Post("/", keycontrollers.Add(p.Keys, logg))
			r.Get("/stats", keycontrollers.Stats(p.Keys, logg))
			r.Post("/{keyID}/deactivate", keycontrollers.Deactivate(p.Keys, logg))
		})
		r.Get("/approvals", marketcontrollers.AdminPendingApprovals(p.Approvals, logg))
		r.Post("/approvals/{approvalID}/review", marketcontrollers.AdminReviewApproval(p.Approvals, logg))
		r.Post("/purchases/{purchaseID}/refund", purchasecontrollers.AdminRefund(p.Purchases, logg))
		r.Get("/audit-logs", admincontrollers.AuditLogs(p.Audit, logg))
		r.Get("/jobs", admincontrollers.ListJobs(p.Jobs, logg))
		r.Post("/jobs/{name}/run", admincontrollers.RunJob(p.Jobs, logg))
	})

	return r
}
