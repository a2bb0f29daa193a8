// Package main запускает HTTP-сервер сервиса онбординга MakeBankGuru.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/makebankguru/onboarding-system/internal/config"
	"github.com/makebankguru/onboarding-system/internal/gateway"
	"github.com/makebankguru/onboarding-system/internal/handler"
	"github.com/makebankguru/onboarding-system/internal/middleware"
	"github.com/makebankguru/onboarding-system/internal/reconcile"
	"github.com/makebankguru/onboarding-system/internal/repository"
	"github.com/makebankguru/onboarding-system/internal/service"
)

func main() {
	// .env необязателен, переменные окружения имеют приоритет.
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	var gatewayClient *gateway.Client
	if cfg.GatewayAddress != "" {
		gatewayClient = gateway.NewClient(cfg.GatewayAddress, cfg.GatewaySecretKey)
	}

	resolver := reconcile.NewResolver(repo, logger, cfg.PaymentAmount, cfg.PaymentCurrency, cfg.FallbackMatching)

	svc := service.NewService(repo, gatewayClient, resolver, cfg.PaymentAmount, service.Links{
		Payment: cfg.PaymentLink,
		Trader:  cfg.TraderLink,
		Group:   cfg.GroupLink,
	}, logger)
	defer svc.Close()

	signature := middleware.NewSignatureMiddleware(cfg.WebhookSecret)
	h := handler.NewHandler(svc, resolver, logger, signature)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting onboarding server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
