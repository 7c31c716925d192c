package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/ledgercore-backend/api/controllers"
	admincontrollers "github.com/angelmondragon/ledgercore-backend/api/controllers/admin"
	webhookcontrollers "github.com/angelmondragon/ledgercore-backend/api/controllers/webhooks"
	"github.com/angelmondragon/ledgercore-backend/api/middleware"
	"github.com/angelmondragon/ledgercore-backend/internal/charges"
	"github.com/angelmondragon/ledgercore-backend/internal/ledger"
	"github.com/angelmondragon/ledgercore-backend/internal/providers"
	"github.com/angelmondragon/ledgercore-backend/internal/tax"
	"github.com/angelmondragon/ledgercore-backend/internal/webhooks"
	squarewebhook "github.com/angelmondragon/ledgercore-backend/internal/webhooks/square"
	stripewebhook "github.com/angelmondragon/ledgercore-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/ledgercore-backend/pkg/config"
	"github.com/angelmondragon/ledgercore-backend/pkg/db"
	"github.com/angelmondragon/ledgercore-backend/pkg/logger"
	"github.com/angelmondragon/ledgercore-backend/pkg/redis"
	pkgsquare "github.com/angelmondragon/ledgercore-backend/pkg/square"
	pkgstripe "github.com/angelmondragon/ledgercore-backend/pkg/stripe"
)

// RouterParams collects everything the HTTP surface depends on. Vendor
// clients and webhook services may be nil when that vendor is not
// configured; their routes then respond with a wiring error.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    *redis.Client
	Registry *prometheus.Registry

	Ledger    ledger.Service
	Charges   charges.Service
	Providers providers.Service
	TaxRates  tax.RateRepository

	StripeClient         *pkgstripe.Client
	SquareClient         *pkgsquare.Client
	StripeWebhookService *stripewebhook.Service
	SquareWebhookService *squarewebhook.Service
	WebhookGuard         *webhooks.IdempotencyGuard
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, redisPinger(p.Redis)))
	})

	if p.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{}))
	}

	webhookPolicy := middleware.NewRateLimitPolicy(
		"webhook",
		cfg.Webhooks.RateLimitWindow,
		cfg.Webhooks.RateLimit,
	)

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.RateLimit(webhookPolicy, rateLimitStore(p.Redis), logg))
		r.Post("/stripe", webhookcontrollers.StripeWebhook(
			stripeWebhookService(p.StripeWebhookService), stripeSigner(p.StripeClient), eventGuard(p.WebhookGuard), logg))
		r.Post("/square", webhookcontrollers.SquareWebhook(
			squareWebhookService(p.SquareWebhookService), squareSigner(p.SquareClient), eventGuard(p.WebhookGuard), logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Actor())

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", admincontrollers.ListTransactions(p.Ledger, logg))
			r.Get("/{transactionID}", admincontrollers.GetTransaction(p.Ledger, logg))
			r.Post("/{transactionID}/settle", admincontrollers.SettleTransaction(p.Ledger, logg))
			r.Post("/{transactionID}/fail", admincontrollers.FailTransaction(p.Ledger, logg))
			r.Post("/{transactionID}/cancel", admincontrollers.CancelTransaction(p.Ledger, logg))
			r.Patch("/{transactionID}/tax", admincontrollers.UpdateTransactionTax(p.Ledger, logg))
			r.Post("/{transactionID}/refunds", admincontrollers.CreateRefund(p.Charges, logg))
			r.Post("/{transactionID}/disputes", admincontrollers.OpenDispute(p.Ledger, logg))
			r.Post("/{transactionID}/disputes/{disputeID}/resolve", admincontrollers.ResolveDispute(p.Ledger, logg))
			r.Post("/{transactionID}/payout", admincontrollers.UpdatePayout(p.Ledger, logg))
		})

		r.Post("/charges", admincontrollers.CreateCharge(p.Charges, logg))

		r.Route("/providers", func(r chi.Router) {
			r.Get("/", admincontrollers.ListProviders(p.Providers, logg))
			r.Post("/", admincontrollers.ConfigureProvider(p.Providers, logg))
			r.Patch("/{category}/{vendor}/enabled", admincontrollers.SetProviderEnabled(p.Providers, logg))
			r.Post("/{category}/{vendor}/primary", admincontrollers.SetPrimaryProvider(p.Providers, logg))
		})

		r.Route("/tax-rates", func(r chi.Router) {
			r.Get("/", admincontrollers.ListTaxRates(p.TaxRates, logg))
			r.Post("/", admincontrollers.CreateTaxRate(p.TaxRates, logg))
			r.Patch("/{rateID}/status", admincontrollers.SetTaxRateStatus(p.TaxRates, logg))
		})
	})

	return r
}

// The helpers below avoid handing typed-nil pointers to handlers that treat
// a nil interface as "not wired".

func redisPinger(c *redis.Client) controllers.Pinger {
	if c == nil {
		return nil
	}
	return c
}

func rateLimitStore(c *redis.Client) middleware.RateLimiterStore {
	if c == nil {
		return nil
	}
	return c
}

func stripeWebhookService(svc *stripewebhook.Service) webhookcontrollers.StripeWebhookService {
	if svc == nil {
		return nil
	}
	return svc
}

func squareWebhookService(svc *squarewebhook.Service) webhookcontrollers.SquareWebhookService {
	if svc == nil {
		return nil
	}
	return svc
}

type signingSecretClient interface {
	SigningSecret() string
}

func stripeSigner(c *pkgstripe.Client) signingSecretClient {
	if c == nil {
		return nil
	}
	return c
}

func squareSigner(c *pkgsquare.Client) signingSecretClient {
	if c == nil {
		return nil
	}
	return c
}

type webhookEventGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

func eventGuard(g *webhooks.IdempotencyGuard) webhookEventGuard {
	if g == nil {
		return nil
	}
	return g
}
