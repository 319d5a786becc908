package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlahq/charla/internal"
	"github.com/charlahq/charla/internal/ai"
	"github.com/charlahq/charla/internal/ai/anthropic"
	aimock "github.com/charlahq/charla/internal/ai/mock"
	"github.com/charlahq/charla/internal/billing"
	"github.com/charlahq/charla/internal/domain"
	"github.com/charlahq/charla/internal/handler"
	"github.com/charlahq/charla/internal/identity"
	"github.com/charlahq/charla/internal/metrics"
	"github.com/charlahq/charla/internal/middleware"
	"github.com/charlahq/charla/internal/service"
	"github.com/charlahq/charla/internal/store"
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

	// Run migrations over database/sql; the store uses its own pgx pool.
	migrateDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	if err := migrateDB.PingContext(ctx); err != nil {
		migrateDB.Close()
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := internal.RunMigrations(migrateDB); err != nil {
		migrateDB.Close()
		return fmt.Errorf("migration failed: %w", err)
	}
	migrateDB.Close()

	pool, err := store.Connect(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("store connection failed: %w", err)
	}
	defer pool.Close()
	logger.Info("Database ready")

	pg := store.NewPostgres(pool)

	// Quota counters can live in Redis when the chat path needs to stay
	// off the relational store.
	var quotaStore service.QuotaStore = pg
	if cfg.QuotaBackend == "redis" {
		redisQuota, err := store.NewRedisQuota(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisQuota.Close()
		quotaStore = redisQuota
		logger.Info("Quota backend: redis")
	}

	// Payment gateway
	var gateway billing.Gateway
	switch cfg.PaymentProvider {
	case "hmac":
		gateway = billing.NewHMACGateway(cfg.PaymentKeyID, cfg.PaymentKeySecret)
	default:
		gateway = billing.NewMockGateway()
		logger.Warn("Using mock payment gateway")
	}

	// AI provider
	var provider ai.Provider
	switch cfg.AIProvider {
	case "anthropic":
		provider, err = anthropic.New(anthropic.Config{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.AnthropicModel,
			ProviderConfig: ai.ProviderConfig{
				MaxRetries:     cfg.AIMaxRetries,
				RetryBaseDelay: cfg.AIRetryBaseDelay,
				RequestTimeout: cfg.AIRequestTimeout,
			},
		}, logger)
		if err != nil {
			return fmt.Errorf("anthropic provider initialization failed: %w", err)
		}
	default:
		provider = aimock.New(logger)
		logger.Warn("Using mock AI provider")
	}

	// Initialize services
	window := domain.NewWindow(cfg.QuotaResetOffset)
	accountService := service.NewAccountService(pg, logger)
	quotaService := service.NewQuotaService(quotaStore, pg, window, logger)
	subscriptionService := service.NewSubscriptionService(pg, gateway, logger, cfg.BillingCancelImmediate)
	conversationService := service.NewConversationService(pg, logger)

	// Initialize middleware
	isSecure := cfg.Env != "development"
	verifier := identity.NewVerifier(cfg.IdentityJWTSecret)
	authMw := middleware.NewAuthMiddleware(verifier, accountService, logger)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	metricsAuthMw := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, logger)
	rateLimitMw := middleware.NewRateLimitMiddleware(rateLimiter, logger)

	// Initialize handlers
	chatHandler := handler.NewChatHandler(quotaService, provider, logger)
	usageHandler := handler.NewUsageHandler(quotaService, logger)
	conversationHandler := handler.NewConversationHandler(conversationService, logger)
	billingHandler := handler.NewBillingHandler(subscriptionService, logger)
	webhookHandler := handler.NewWebhookHandler(subscriptionService, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Metrics (basic auth when configured)
	mux.Handle("GET /metrics", metricsAuthMw.Handler(promhttp.Handler()))

	// Payment gateway webhook (public, signature-authenticated)
	webhookHandler.RegisterRoutes(mux)

	// Authenticated API
	requireAccount := middleware.Stack(authMw.WithAccount, authMw.RequireAccount)

	mux.Handle("POST /api/chat", requireAccount(http.HandlerFunc(chatHandler.Complete)))
	mux.Handle("GET /api/usage", requireAccount(http.HandlerFunc(usageHandler.Stats)))
	mux.Handle("POST /api/conversations/sync", requireAccount(http.HandlerFunc(conversationHandler.Sync)))
	mux.Handle("GET /api/conversations", requireAccount(http.HandlerFunc(conversationHandler.Latest)))
	billingHandler.RegisterRoutes(mux, requireAccount)

	// Outer stack applied to everything
	root := middleware.Stack(
		securityMw.Handler,
		metrics.Middleware,
		loggingMw.Handler,
		rateLimitMw.Limit,
	)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: root,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
