package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/sekolahku/settlement-backend/api/routes"
	"github.com/sekolahku/settlement-backend/internal/directory"
	"github.com/sekolahku/settlement-backend/internal/gateway"
	"github.com/sekolahku/settlement-backend/internal/orders"
	"github.com/sekolahku/settlement-backend/internal/recon"
	"github.com/sekolahku/settlement-backend/internal/requests"
	"github.com/sekolahku/settlement-backend/internal/settlement"
	"github.com/sekolahku/settlement-backend/pkg/config"
	"github.com/sekolahku/settlement-backend/pkg/db"
	"github.com/sekolahku/settlement-backend/pkg/logger"
	"github.com/sekolahku/settlement-backend/pkg/migrate"
	"github.com/sekolahku/settlement-backend/pkg/redis"
)

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

	directoryService, err := directory.NewService(dbClient.DB())
	if err != nil {
		logg.Error(context.Background(), "failed to create directory service", err)
		os.Exit(1)
	}

	requestRepo := requests.NewRepository(dbClient.DB())
	fanoutService, err := requests.NewService(dbClient, requestRepo, directoryService)
	if err != nil {
		logg.Error(context.Background(), "failed to create request service", err)
		os.Exit(1)
	}

	orderRepo := orders.NewRepository(dbClient.DB())
	orderService, err := orders.NewService(orders.ServiceParams{
		TransactionRunner: dbClient,
		Repo:              orderRepo,
		RequestRepo:       requestRepo,
		Fanout:            fanoutService,
		Directory:         directoryService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	redirectChannel, err := gateway.NewRedirectChannel(gateway.RedirectConfig{
		CheckoutURL: cfg.Gateway.CheckoutURL,
		MerchantID:  cfg.Gateway.MerchantID,
		SecretKey:   cfg.Gateway.SecretKey,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create redirect channel", err)
		os.Exit(1)
	}
	channels := gateway.NewRegistry(redirectChannel, gateway.NewCashChannel())

	paymentRepo := settlement.NewRepository(dbClient.DB())
	settlementService, err := settlement.NewService(settlement.ServiceParams{
		TransactionRunner: dbClient,
		Repo:              paymentRepo,
		RequestRepo:       requestRepo,
		OrderRepo:         orderRepo,
		Directory:         directoryService,
		Channels:          channels,
		Logger:            logg,
		PaymentTTL:        cfg.Settlement.PaymentTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	callbackGuard, err := gateway.NewIdempotencyGuard(redisClient, cfg.Gateway.IdempotencyTTL, "pay-callbacks")
	if err != nil {
		logg.Error(context.Background(), "failed to create callback guard", err)
		os.Exit(1)
	}

	snapshotJob, err := recon.NewSnapshotJob(recon.SnapshotJobParams{
		Logger:      logg,
		PaymentRepo: paymentRepo,
		RequestRepo: requestRepo,
		Directory:   directoryService,
		BatchSize:   cfg.Recon.BatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create snapshot job", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Redis:         redisClient,
			Directory:     directoryService,
			Orders:        orderService,
			Requests:      fanoutService,
			Settlement:    settlementService,
			Channels:      channels,
			CallbackGuard: callbackGuard,
			Recon:         snapshotJob,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
