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

	"github.com/angelmondragon/agromarket-backend/api/routes"
	"github.com/angelmondragon/agromarket-backend/internal/cart"
	"github.com/angelmondragon/agromarket-backend/internal/checkout"
	"github.com/angelmondragon/agromarket-backend/internal/gateway"
	"github.com/angelmondragon/agromarket-backend/internal/notifications"
	"github.com/angelmondragon/agromarket-backend/internal/orders"
	"github.com/angelmondragon/agromarket-backend/internal/payments"
	"github.com/angelmondragon/agromarket-backend/internal/reconcile"
	"github.com/angelmondragon/agromarket-backend/internal/stock"
	"github.com/angelmondragon/agromarket-backend/pkg/config"
	"github.com/angelmondragon/agromarket-backend/pkg/db"
	"github.com/angelmondragon/agromarket-backend/pkg/instance"
	"github.com/angelmondragon/agromarket-backend/pkg/logger"
	"github.com/angelmondragon/agromarket-backend/pkg/metrics"
	"github.com/angelmondragon/agromarket-backend/pkg/migrate"
	"github.com/angelmondragon/agromarket-backend/pkg/outbox"
	"github.com/angelmondragon/agromarket-backend/pkg/redis"
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

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
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
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	gatewayClient, err := gateway.NewClient(cfg.Gateway, logg, gateway.WithMetrics(paymentMetrics))
	if err != nil {
		logg.Error(ctx, "failed to create gateway client", err)
		os.Exit(1)
	}

	gdb := dbClient.DB()
	cartRepo := cart.NewRepository(gdb)
	orderRepo := orders.NewRepository(gdb)
	paymentRepo := payments.NewRepository(gdb)
	ledger := stock.NewLedger()
	outboxService := outbox.NewService(outbox.NewRepository(gdb), logg)
	notifier := notifications.NewRegistry(logg)

	cleanup, err := cart.NewCleanup(cartRepo)
	if err != nil {
		logg.Error(ctx, "failed to create cart cleanup", err)
		os.Exit(1)
	}
	orderFactory, err := orders.NewFactory(orderRepo, ledger, orders.NewNumberGenerator())
	if err != nil {
		logg.Error(ctx, "failed to create order factory", err)
		os.Exit(1)
	}
	recordFactory, err := payments.NewRecordFactory(paymentRepo, payments.NewTransactionIDFactory(), cfg.Gateway.Currency)
	if err != nil {
		logg.Error(ctx, "failed to create payment record factory", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Tx:          dbClient,
		Carts:       cartRepo,
		Cleanup:     cleanup,
		Orders:      orderFactory,
		OrderRepo:   orderRepo,
		Payments:    recordFactory,
		PaymentRepo: paymentRepo,
		Stock:       ledger,
		Gateway:     gatewayClient,
		Outbox:      outboxService,
		Metrics:     paymentMetrics,
		Logger:      logg,
		BackendURL:  cfg.URLs.BackendURL,
		Currency:    cfg.Gateway.Currency,
	})
	if err != nil {
		logg.Error(ctx, "failed to create checkout service", err)
		os.Exit(1)
	}

	reconciler, err := reconcile.NewService(reconcile.ServiceParams{
		Tx:                dbClient,
		Payments:          paymentRepo,
		Orders:            orderRepo,
		Stock:             ledger,
		Gateway:           gatewayClient,
		Outbox:            outboxService,
		Notifier:          notifier,
		Guard:             reconcile.NewGuard(redisClient, cfg.Checkout.CallbackTTL),
		RequireValidation: cfg.Gateway.RequireValidation,
		Metrics:           paymentMetrics,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create reconciler", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	serverCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID("local"),
	})
	logg.Info(serverCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:     cfg,
			Logger:     logg,
			DB:         dbClient,
			Redis:      redisClient,
			Checkout:   checkoutService,
			Reconciler: reconciler,
			Payments:   paymentRepo,
			Registry:   notifier,
			Gatherer:   registry,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logg.Info(serverCtx, "shutting down api server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(serverCtx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(serverCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
