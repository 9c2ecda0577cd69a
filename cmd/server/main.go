package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/cvforge/forge/internal"
	"github.com/cvforge/forge/internal/ai"
	"github.com/cvforge/forge/internal/ai/mock"
	aiopenai "github.com/cvforge/forge/internal/ai/openai"
	"github.com/cvforge/forge/internal/billing"
	"github.com/cvforge/forge/internal/email"
	"github.com/cvforge/forge/internal/handler"
	"github.com/cvforge/forge/internal/invite"
	"github.com/cvforge/forge/internal/jobs"
	"github.com/cvforge/forge/internal/metrics"
	"github.com/cvforge/forge/internal/middleware"
	"github.com/cvforge/forge/internal/repository"
	"github.com/cvforge/forge/internal/service"
	"github.com/cvforge/forge/internal/storage"
	"github.com/cvforge/forge/internal/worker"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	// Initialize repository
	repo := repository.New(db)

	// ==========================================================================
	// Infrastructure
	// ==========================================================================

	// Storage backend (local filesystem or Cloudflare R2)
	var store storage.Storage
	switch cfg.StorageProvider {
	case "r2":
		store, err = storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		}, logger)
	default:
		store, err = storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		}, logger)
	}
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	// Email delivery (nil when SMTP host is unset; emails are skipped)
	var emailService email.EmailService
	if cfg.SMTPHost != "" {
		emailService, err = email.NewSMTPEmailService(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}, cfg.BaseURL, logger)
		if err != nil {
			return fmt.Errorf("email initialization failed: %w", err)
		}
	}

	// AI provider for text improvement jobs
	var aiProvider ai.Provider
	if cfg.AIProvider == "openai" {
		aiProvider, err = aiopenai.New(aiopenai.Config{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
			ProviderConfig: ai.ProviderConfig{
				MaxRetries:     cfg.AIMaxRetries,
				RetryBaseDelay: cfg.AIRetryBaseDelay,
				RequestTimeout: cfg.AIRequestTimeout,
			},
		}, logger)
		if err != nil {
			return fmt.Errorf("ai provider initialization failed: %w", err)
		}
	} else {
		aiProvider = mock.New(logger)
	}
	logger.Info("AI provider configured", "provider", cfg.AIProvider)

	// Stripe billing (nil when not configured; billing routes answer 503)
	var billingService billing.Service
	if cfg.StripeSecretKey != "" {
		billingService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, billing.PriceConfig{
			StarterMonthlyPriceID: cfg.StripeStarterMonthlyPriceID,
			StarterYearlyPriceID:  cfg.StripeStarterYearlyPriceID,
			ProMonthlyPriceID:     cfg.StripeProMonthlyPriceID,
			ProYearlyPriceID:      cfg.StripeProYearlyPriceID,
			PremiumMonthlyPriceID: cfg.StripePremiumMonthlyPriceID,
			PremiumYearlyPriceID:  cfg.StripePremiumYearlyPriceID,
		})
		logger.Info("Stripe billing configured")
	} else {
		logger.Warn("Stripe billing not configured, billing routes disabled")
	}

	// ==========================================================================
	// Services
	// ==========================================================================

	invites := invite.New(cfg.InviteCodesEnabled, cfg.ValidInviteCodes)
	userService := service.NewUserService(repo, invites, logger)
	entitlementService := service.NewEntitlementService(repo, logger)
	documentService := service.NewDocumentService(repo, entitlementService, store, service.NewImagingProcessor(), logger)

	// ==========================================================================
	// Background worker
	// ==========================================================================

	var jobWorker *worker.Worker
	if cfg.WorkerEnabled {
		jobWorker, err = worker.New(db, repo, worker.Config{
			Concurrency:       cfg.WorkerConcurrency,
			PollInterval:      cfg.WorkerPollInterval,
			JobTimeout:        cfg.WorkerJobTimeout,
			ShutdownTimeout:   30 * time.Second,
			StaleJobThreshold: 10 * time.Minute,
		}, logger)
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}
		jobWorker.Register(jobs.NewImproveDocumentHandler(repo, aiProvider, logger))
		jobWorker.Register(jobs.NewExportDocumentHandler(repo, store, logger))
		jobWorker.Start(ctx)
		defer jobWorker.Stop()
		logger.Info("Background worker started", "concurrency", cfg.WorkerConcurrency)
	}

	// Periodic cleanup of expired sessions and verification tokens
	cleanupCtx, cancelCleanup := context.WithCancel(ctx)
	defer cancelCleanup()
	go runCleanup(cleanupCtx, userService, logger)

	// ==========================================================================
	// Middleware and handlers
	// ==========================================================================

	isSecure := cfg.Env != "development"
	authMw := middleware.NewAuthMiddleware(userService, logger, isSecure)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	authLimiter := middleware.NewAuthRateLimiter(logger)
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)

	requireUser := middleware.Stack(authMw.WithUser, authMw.RequireUser)
	requireVerified := middleware.Stack(authMw.WithUser, authMw.RequireUser, authMw.RequireEmailVerified)

	authHandler := handler.NewAuthHandler(userService, emailService, logger, isSecure)
	documentHandler := handler.NewDocumentHandler(documentService, logger)
	usageHandler := handler.NewUsageHandler(entitlementService, logger)
	billingHandler := handler.NewBillingHandler(billingService, userService, cfg.BaseURL, logger)
	webhookHandler := handler.NewWebhookHandler(billingService, userService, logger)

	// ==========================================================================
	// Router
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics (basic auth when credentials are configured)
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	// Locally stored files (exports, photos) in development
	if cfg.StorageProvider == "local" {
		filesFS := http.FileServer(http.Dir(cfg.LocalStoragePath))
		mux.Handle("GET /files/", http.StripPrefix("/files/", filesFS))
	}

	// Login and registration get tighter rate limits than the rest of
	// the API; both are credential-guessing targets, and the resend
	// endpoint triggers outbound email.
	mux.Handle("POST /api/auth/login", authLimiter.LimitLogin(http.HandlerFunc(authHandler.Login)))
	mux.Handle("POST /api/auth/register", authLimiter.LimitRegister(http.HandlerFunc(authHandler.Register)))
	mux.HandleFunc("POST /api/auth/verify-email", authHandler.VerifyEmail)
	mux.Handle("POST /api/auth/resend-verification", authLimiter.LimitResendVerification(http.HandlerFunc(authHandler.ResendVerification)))
	mux.Handle("POST /api/auth/logout", requireUser(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("GET /api/auth/me", requireUser(http.HandlerFunc(authHandler.Me)))

	documentHandler.RegisterRoutes(mux, requireVerified)
	usageHandler.RegisterRoutes(mux, requireUser)
	billingHandler.RegisterRoutes(mux, requireUser)
	webhookHandler.RegisterRoutes(mux)

	// Outermost middleware applies to every route
	root := middleware.Stack(
		securityMw.Handler,
		loggingMw.Handler,
		metrics.Middleware,
	)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: root,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// runCleanup deletes expired sessions and verification tokens once a day.
func runCleanup(ctx context.Context, users service.UserService, logger *slog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := users.DeleteExpiredSessions(ctx); err != nil {
				logger.Error("session cleanup failed", "error", err)
			}
			if err := users.DeleteExpiredEmailVerificationTokens(ctx); err != nil {
				logger.Error("verification token cleanup failed", "error", err)
			}
		}
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
