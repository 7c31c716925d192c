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
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/ledgercore-backend/api/routes"
	"github.com/angelmondragon/ledgercore-backend/internal/charges"
	"github.com/angelmondragon/ledgercore-backend/internal/ledger"
	"github.com/angelmondragon/ledgercore-backend/internal/payments"
	"github.com/angelmondragon/ledgercore-backend/internal/providers"
	"github.com/angelmondragon/ledgercore-backend/internal/tax"
	"github.com/angelmondragon/ledgercore-backend/internal/webhooks"
	squarewebhook "github.com/angelmondragon/ledgercore-backend/internal/webhooks/square"
	stripewebhook "github.com/angelmondragon/ledgercore-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/ledgercore-backend/pkg/config"
	"github.com/angelmondragon/ledgercore-backend/pkg/db"
	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
	"github.com/angelmondragon/ledgercore-backend/pkg/env"
	pkgerrors "github.com/angelmondragon/ledgercore-backend/pkg/errors"
	"github.com/angelmondragon/ledgercore-backend/pkg/logger"
	"github.com/angelmondragon/ledgercore-backend/pkg/metrics"
	"github.com/angelmondragon/ledgercore-backend/pkg/migrate"
	"github.com/angelmondragon/ledgercore-backend/pkg/redis"
	"github.com/angelmondragon/ledgercore-backend/pkg/security"
	pkgsquare "github.com/angelmondragon/ledgercore-backend/pkg/square"
	pkgstripe "github.com/angelmondragon/ledgercore-backend/pkg/stripe"
)

const shutdownGrace = 15 * time.Second

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

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	callMetrics := metrics.NewProviderCallMetrics(registry)

	sealer, err := security.NewCredentialSealer(cfg.Credentials)
	if err != nil {
		logg.Error(context.Background(), "failed to create credential sealer", err)
		os.Exit(1)
	}

	providerService, err := providers.NewService(providers.ServiceParams{
		Repo:   providers.NewRepository(dbClient.DB()),
		Tx:     dbClient,
		Sealer: sealer,
		Logger: logg,
		Config: cfg.Providers,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create provider service", err)
		os.Exit(1)
	}
	resolver := providers.NewResolver(providerService)

	// Vendor clients are built from the decrypted credentials in provider
	// configuration; env values only seed the row on first boot. A vendor
	// with no row and no seed stays unregistered and its routes report a
	// wiring error.
	var stripeClient *pkgstripe.Client
	stripeCreds, err := providerService.BootstrapCredentials(context.Background(),
		enums.ProviderCategoryPayment, enums.ProviderNameStripe, map[string]string{
			"api_key":        cfg.Stripe.APIKey,
			"webhook_secret": cfg.Stripe.WebhookSecret,
		})
	switch {
	case err == nil:
		stripeCfg := cfg.Stripe
		stripeCfg.APIKey = stripeCreds["api_key"]
		if secret := stripeCreds["webhook_secret"]; secret != "" {
			stripeCfg.WebhookSecret = secret
		}
		stripeClient, err = pkgstripe.NewClient(context.Background(), stripeCfg, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create stripe client", err)
			os.Exit(1)
		}
	case pkgerrors.HasCode(err, pkgerrors.CodeNotFound):
		logg.Warn(context.Background(), "stripe not configured, vendor stays unregistered")
	default:
		logg.Error(context.Background(), "failed to load stripe credentials", err)
		os.Exit(1)
	}

	var squareClient *pkgsquare.Client
	squareCreds, err := providerService.BootstrapCredentials(context.Background(),
		enums.ProviderCategoryPayment, enums.ProviderNameSquare, map[string]string{
			"access_token":   cfg.Square.AccessToken,
			"webhook_secret": cfg.Square.WebhookSecret,
		})
	switch {
	case err == nil:
		squareCfg := cfg.Square
		squareCfg.AccessToken = squareCreds["access_token"]
		if secret := squareCreds["webhook_secret"]; secret != "" {
			squareCfg.WebhookSecret = secret
		}
		squareClient, err = pkgsquare.NewClient(context.Background(), squareCfg, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create square client", err)
			os.Exit(1)
		}
	case pkgerrors.HasCode(err, pkgerrors.CodeNotFound):
		logg.Warn(context.Background(), "square not configured, vendor stays unregistered")
	default:
		logg.Error(context.Background(), "failed to load square credentials", err)
		os.Exit(1)
	}

	var processors []payments.Processor
	if stripeClient != nil {
		proc, err := payments.NewStripeProcessor(stripeClient, providerService, callMetrics, logg, cfg.Providers.CallTimeout)
		if err != nil {
			logg.Error(context.Background(), "failed to create stripe processor", err)
			os.Exit(1)
		}
		processors = append(processors, proc)
	}
	if squareClient != nil {
		proc, err := payments.NewSquareProcessor(squareClient, cfg.Square.LocationID, providerService, callMetrics, logg, cfg.Providers.CallTimeout)
		if err != nil {
			logg.Error(context.Background(), "failed to create square processor", err)
			os.Exit(1)
		}
		processors = append(processors, proc)
	}

	factory, err := payments.NewFactory(resolver, processors...)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment factory", err)
		os.Exit(1)
	}

	rateRepo := tax.NewRateRepository(dbClient.DB())
	var taxProvider tax.Provider
	if stripeClient != nil {
		taxProvider, err = tax.NewStripeTaxProvider(stripeClient, providerService, callMetrics, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create stripe tax provider", err)
			os.Exit(1)
		}
	}
	taxEngine, err := tax.NewEngine(tax.EngineParams{
		Provider: taxProvider,
		Rates:    rateRepo,
		Logger:   logg,
		Config:   cfg.Tax,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create tax engine", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Repo:    ledger.NewRepository(dbClient.DB()),
		Tx:      dbClient,
		Locker:  redisClient,
		Logger:  logg,
		Refunds: cfg.Refunds,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	chargeService, err := charges.NewService(charges.ServiceParams{
		Ledger:  ledgerService,
		Factory: factory,
		Tax:     taxEngine,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create charge service", err)
		os.Exit(1)
	}

	webhookGuard, err := webhooks.NewIdempotencyGuard(redisClient, cfg.Webhooks.IdempotencyTTL, "webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}
	stripeWebhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Ledger: ledgerService,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}
	squareWebhookService, err := squarewebhook.NewService(squarewebhook.ServiceParams{
		Ledger: ledgerService,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create square webhook service", err)
		os.Exit(1)
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:   cfg,
			Logger:   logg,
			DB:       dbClient,
			Redis:    redisClient,
			Registry: registry,

			Ledger:    ledgerService,
			Charges:   chargeService,
			Providers: providerService,
			TaxRates:  rateRepo,

			StripeClient:         stripeClient,
			SquareClient:         squareClient,
			StripeWebhookService: stripeWebhookService,
			SquareWebhookService: squareWebhookService,
			WebhookGuard:         webhookGuard,
		}),
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-stopCtx.Done():
		logg.Info(ctx, "shutdown signal received, draining")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}
