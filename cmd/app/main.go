// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gym-subscription-platform/internal/config"
	"gym-subscription-platform/internal/domain/ports/adapter"
	pg "gym-subscription-platform/internal/infra/db/postgres"
	"gym-subscription-platform/internal/infra/logging"
	"gym-subscription-platform/internal/infra/mail"
	"gym-subscription-platform/internal/infra/metrics"
	pay "gym-subscription-platform/internal/infra/payment"
	red "gym-subscription-platform/internal/infra/redis"
	"gym-subscription-platform/internal/infra/sched"
	"gym-subscription-platform/internal/infra/web"
	"gym-subscription-platform/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, relaxed checks)")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	txManager := pg.NewTxManager(pool)
	purchaseRepo := pg.NewPurchaseRepo(pool)
	paymentRepo := pg.NewPaymentRepo(pool)
	walletRepo := pg.NewWalletRepo(pool)
	eventRepo := pg.NewWebhookEventRepo(pool)

	// ---- Adapters ----
	gateway := pay.NewCheckoutGateway(cfg.Gateway.SecretKey, cfg.Gateway.SuccessURL, cfg.Gateway.CancelURL)

	var mailer adapter.Mailer
	if cfg.Mail.Host != "" {
		mailer, err = mail.NewSMTPMailer(cfg.Mail)
		if err != nil {
			logger.Fatal().Err(err).Msg("smtp mailer setup failed")
		}
	} else {
		logger.Warn().Msg("mail.host not set; notifications disabled")
		mailer = mail.NopMailer{}
	}

	// ---- Use cases ----
	purchaseUC := usecase.NewPurchaseUseCase(
		txManager, purchaseRepo, paymentRepo, walletRepo,
		gateway, mailer, locker, cfg.Redis.LockTTL, cfg.Mail.AdminEmail, *logger,
	)
	webhookUC := usecase.NewWebhookUseCase(
		txManager, purchaseRepo, paymentRepo, eventRepo,
		locker, cfg.Redis.LockTTL, *logger,
	)
	walletUC := usecase.NewWalletUseCase(
		txManager, walletRepo, paymentRepo, cfg.Gateway.Currency, *logger,
	)

	// ---- HTTP server ----
	auth := web.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.SessionTTL)
	server := web.NewServer(cfg, purchaseUC, webhookUC, walletUC, auth, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// ---- Refund repair worker ----
	reconciler := sched.NewRefundReconciler(purchaseUC, cfg.Worker.RepairInterval, cfg.Worker.RepairBatch, *logger)
	go reconciler.Start(ctx)

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
}
