package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"casacore/internal/advisory"
	"casacore/internal/amqp"
	"casacore/internal/billing"
	"casacore/internal/config"
	"casacore/internal/core"
	apphttp "casacore/internal/http"
	applog "casacore/internal/log"
	"casacore/internal/services"
	"casacore/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	sqliteRepo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}

	// AMQP is a best-effort nudge channel; the API stays up without it and
	// the worker's poll loop covers the gap.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, sync nudges disabled", "error", err)
			amqpClient = nil
		}
	}

	normalizer, err := core.NewNormalizer(cfg.EURNOKRate)
	if err != nil {
		logger.Error("Invalid exchange rate configuration", "error", err, "rate", cfg.EURNOKRate)
		os.Exit(1)
	}

	ledger := services.NewLedgerService(sqliteRepo, amqpClient, normalizer, cfg.CommissionSplit)
	defer ledger.Close()

	billingSvc := billing.NewService(billing.Config{
		APIKey:        cfg.StripeAPIKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		PriceID:       cfg.StripePriceID,
		SuccessURL:    cfg.CheckoutSuccessURL,
		CancelURL:     cfg.CheckoutCancelURL,
		ReturnURL:     cfg.PortalReturnURL,
	})
	if !billingSvc.Configured() {
		logger.Info("Stripe disabled - no STRIPE_API_KEY provided")
	}

	// The genai client reads its API key from the environment.
	var advisor apphttp.Advisor
	if os.Getenv("GEMINI_API_KEY") != "" {
		a, err := advisory.NewAdvisor(context.Background(), cfg.GeminiModel)
		if err != nil {
			logger.Error("Failed to initialize advisory client", "error", err)
			os.Exit(1)
		}
		advisor = a
		logger.Info("Advisory model initialized", "model", cfg.GeminiModel)
	} else {
		logger.Info("Advisory disabled - no GEMINI_API_KEY provided")
	}

	srv := apphttp.NewServer(":"+cfg.Port, ledger, billingSvc, advisor)

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Graceful shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting casacore server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
