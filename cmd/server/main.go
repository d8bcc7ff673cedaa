package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/finvault/ledger-api/internal/account"
	"github.com/finvault/ledger-api/internal/analytics"
	"github.com/finvault/ledger-api/internal/auth"
	"github.com/finvault/ledger-api/internal/config"
	"github.com/finvault/ledger-api/internal/database"
	"github.com/finvault/ledger-api/internal/pricing"
	"github.com/finvault/ledger-api/internal/settlement"
	"github.com/finvault/ledger-api/pkg/middleware"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the ledger API server with graceful shutdown
// support. It wires the settlement engine to its collaborators, starts the
// background ledger auditor, and registers the API routes.
func main() {
	cfg := config.LoadConfig()

	db, err := database.NewDatabase(cfg.DBPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Balance cache is optional; without redis the façade reads through to
	// the store on every request.
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
	}
	balanceCache := account.NewCache(rdb, 30*time.Second)

	router := gin.Default()

	authService := auth.NewService(db, cfg.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)

	priceFeed := pricing.NewFeed()
	feeSchedule := pricing.NewFeeRates(cfg.ExecutionFeeRate, cfg.TransactionFeeRate)

	settlementService := settlement.NewService(db, priceFeed, feeSchedule, balanceCache, settlement.Config{
		MaxCommitRetries: cfg.MaxCommitRetries,
		PriceFeedTimeout: cfg.PriceFeedTimeout,
		CapBuyToBalance:  cfg.CapBuyToBalance,
	})
	settlementHandlers := settlement.NewGinHandlers(settlementService)

	accountService := account.NewService(db, balanceCache)
	accountHandlers := account.NewGinHandlers(accountService)

	analyticsService := analytics.NewService(db)
	analyticsHandlers := analytics.NewGinHandlers(analyticsService)

	// Create and start the ledger auditor
	auditor := settlement.NewAuditor(db)
	auditorCtx, auditorCancel := context.WithCancel(context.Background())
	defer auditorCancel()

	go auditor.Start(auditorCtx)

	router.Use(middleware.RateLimit())

	setupRoutes(router, cfg, authHandlers, settlementHandlers, accountHandlers, analyticsHandlers)

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding settlements 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for registration and login
// - Trade/wallet/report routes: Protected by JWT authentication
// - Internal routes: Administrative operations, guarded by the internal API key
func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	authHandlers *auth.GinHandlers,
	settlementHandlers *settlement.GinHandlers,
	accountHandlers *account.GinHandlers,
	analyticsHandlers *analytics.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandlers.RegisterHandler())
			authGroup.POST("/login", authHandlers.LoginHandler())
		}

		// Trade routes
		trades := v1.Group("/trades")
		trades.Use(middleware.JWTAuth(cfg.JWTSecret))
		{
			trades.POST("", settlementHandlers.SettleTradeHandler())
			trades.GET("", accountHandlers.ListTradesHandler())
		}

		// Wallet routes
		wallet := v1.Group("/wallet")
		wallet.Use(middleware.JWTAuth(cfg.JWTSecret))
		{
			wallet.GET("/balance", accountHandlers.GetBalanceHandler())
		}

		// Report routes
		reports := v1.Group("/reports")
		reports.Use(middleware.JWTAuth(cfg.JWTSecret))
		{
			reports.GET("/profit-loss", analyticsHandlers.ProfitLossHandler())
			reports.GET("/cumulative-fees", analyticsHandlers.CumulativeFeesHandler())
			reports.GET("/slippage", analyticsHandlers.SlippageHandler())
		}

		// Internal routes, administrative key only; still keep these off the
		// public network
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(cfg.InternalAPIKey))
		{
			internal.POST("/adjustment/:wallet_id", accountHandlers.AdjustBalanceHandler())
		}
	}
}
