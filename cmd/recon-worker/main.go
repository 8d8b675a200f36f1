package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sekolahku/settlement-backend/internal/cron"
	"github.com/sekolahku/settlement-backend/internal/directory"
	"github.com/sekolahku/settlement-backend/internal/gateway"
	"github.com/sekolahku/settlement-backend/internal/orders"
	"github.com/sekolahku/settlement-backend/internal/recon"
	"github.com/sekolahku/settlement-backend/internal/requests"
	"github.com/sekolahku/settlement-backend/internal/settlement"
	"github.com/sekolahku/settlement-backend/pkg/config"
	"github.com/sekolahku/settlement-backend/pkg/db"
	"github.com/sekolahku/settlement-backend/pkg/logger"
	"github.com/sekolahku/settlement-backend/pkg/metrics"
	"github.com/sekolahku/settlement-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "recon-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "recon-worker",
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

	directoryService, err := directory.NewService(dbClient.DB())
	if err != nil {
		logg.Error(ctx, "failed to create directory service", err)
		os.Exit(1)
	}

	requestRepo := requests.NewRepository(dbClient.DB())
	orderRepo := orders.NewRepository(dbClient.DB())
	paymentRepo := settlement.NewRepository(dbClient.DB())

	redirectChannel, err := gateway.NewRedirectChannel(gateway.RedirectConfig{
		CheckoutURL: cfg.Gateway.CheckoutURL,
		MerchantID:  cfg.Gateway.MerchantID,
		SecretKey:   cfg.Gateway.SecretKey,
	})
	if err != nil {
		logg.Error(ctx, "failed to create redirect channel", err)
		os.Exit(1)
	}
	channels := gateway.NewRegistry(redirectChannel, gateway.NewCashChannel())

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
		logg.Error(ctx, "failed to create settlement service", err)
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
		logg.Error(ctx, "failed to create snapshot job", err)
		os.Exit(1)
	}

	expiryJob, err := recon.NewExpiryJob(recon.ExpiryJobParams{
		Logger:     logg,
		Settlement: settlementService,
	})
	if err != nil {
		logg.Error(ctx, "failed to create expiry job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, cfg.Recon.LockKey, cfg.Recon.LockTTL)
	if err != nil {
		logg.Error(ctx, "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(expiryJob, snapshotJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Recon.Interval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"interval": cfg.Recon.Interval.String(),
	})
	logg.Info(ctx, "starting recon worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "recon worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "recon worker shut down")
}
