// Package main inicia o servidor HTTP do serviço rotaExata.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/acassiusalves/rotaExata-sub002/internal/config"
	"github.com/acassiusalves/rotaExata-sub002/internal/events"
	"github.com/acassiusalves/rotaExata-sub002/internal/geocode"
	"github.com/acassiusalves/rotaExata-sub002/internal/handler"
	"github.com/acassiusalves/rotaExata-sub002/internal/middleware"
	"github.com/acassiusalves/rotaExata-sub002/internal/notification"
	"github.com/acassiusalves/rotaExata-sub002/internal/pricing"
	"github.com/acassiusalves/rotaExata-sub002/internal/push"
	"github.com/acassiusalves/rotaExata-sub002/internal/repository"
	"github.com/acassiusalves/rotaExata-sub002/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	table, err := pricing.Load(cfg.PricingConfigPath)
	if err != nil {
		sugar.Fatalw("pricing table error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	bus := events.NewChannelBus()
	defer bus.Close()

	notifier := notification.NewService(repo, bus, push.NewLogTransport(logger), logger)

	opts := service.Options{
		RecalcInterval: cfg.RecalcInterval,
	}
	if cfg.GeocoderAddress != "" {
		opts.Geocoder = geocode.NewClient(cfg.GeocoderAddress)
	}

	svc, err := service.NewService(repo, notifier, table, bus, logger, opts)
	if err != nil {
		sugar.Fatalw("service initialization error", "error", err.Error())
	}
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Processo de fundo de recálculo de ganhos
	g.Go(func() error {
		svc.StartRecalcWorker(ctx)
		return nil
	})

	// Servidor HTTP
	g.Go(func() error {
		sugar.Infow("starting rotaexata server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Encerramento gracioso ao cancelar o contexto (sinal ou erro em outra goroutine)
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
