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

	"github.com/sgoodman/tradecopy-api/internal/assets"
	"github.com/sgoodman/tradecopy-api/internal/auth"
	"github.com/sgoodman/tradecopy-api/internal/copytrading"
	"github.com/sgoodman/tradecopy-api/internal/database"
	"github.com/sgoodman/tradecopy-api/internal/investments"
	"github.com/sgoodman/tradecopy-api/internal/kyc"
	"github.com/sgoodman/tradecopy-api/internal/ledger"
	"github.com/sgoodman/tradecopy-api/internal/trading"
	"github.com/sgoodman/tradecopy-api/internal/transactions"
	"github.com/sgoodman/tradecopy-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the brokerage API server with graceful shutdown
// support
func main() {
	// Initialize database
	db, err := database.NewDatabase()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "tradecopy-dev-secret"
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	ledgerService := ledger.NewService(db)

	authService := auth.NewService(db, jwtSecret)
	authHandlers := auth.NewGinHandlers(authService)

	assetService := assets.NewService(db)
	assetHandlers := assets.NewGinHandlers(assetService)

	tradingService := trading.NewService(db, ledgerService)
	tradingHandlers := trading.NewGinHandlers(tradingService)

	copyService := copytrading.NewService(db)
	copyHandlers := copytrading.NewGinHandlers(copyService)

	transactionService := transactions.NewService(db, ledgerService)
	transactionHandlers := transactions.NewGinHandlers(transactionService)

	investmentService := investments.NewService(db, ledgerService)
	investmentHandlers := investments.NewGinHandlers(investmentService)

	kycService := kyc.NewService(db)
	kycHandlers := kyc.NewGinHandlers(kycService)

	// Start background processors: simulated price feed and investment
	// maturity settlement
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go assets.NewPriceFeed(db).Start(processorCtx)
	go investments.NewProcessor(investmentService).Start(processorCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, jwtSecret, authHandlers, assetHandlers, tradingHandlers,
		copyHandlers, transactionHandlers, investmentHandlers, kycHandlers)

	// Get port from env otherwise it's 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Create server
	srv := &http.Server{
		Addr:    ":" + port,
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

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: public registration and login
// - User routes: protected by JWT authentication
// - Admin routes: protected by JWT authentication plus the admin role
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	assetHandlers *assets.GinHandlers,
	tradingHandlers *trading.GinHandlers,
	copyHandlers *copytrading.GinHandlers,
	transactionHandlers *transactions.GinHandlers,
	investmentHandlers *investments.GinHandlers,
	kycHandlers *kyc.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandlers.RegisterHandler())
			authGroup.POST("/login", authHandlers.LoginHandler())
		}

		// Authenticated user routes
		user := v1.Group("")
		user.Use(middleware.JWTAuth(jwtSecret))
		{
			user.GET("/assets", assetHandlers.ListAssetsHandler())
			user.GET("/assets/:symbol", assetHandlers.GetAssetHandler())

			user.POST("/trades", tradingHandlers.PlaceOrderHandler())
			user.GET("/trades", tradingHandlers.ListTradesHandler())
			user.GET("/trades/:trade_id", tradingHandlers.GetTradeHandler())
			user.POST("/trades/:trade_id/cancel", tradingHandlers.CancelTradeHandler())

			user.GET("/copytrading/traders", copyHandlers.ListTradersHandler())
			user.POST("/copytrading/traders", copyHandlers.BecomeTraderHandler())
			user.POST("/copytrading/follow", copyHandlers.StartCopyingHandler())
			user.DELETE("/copytrading/follow/:relationship_id", copyHandlers.StopCopyingHandler())
			user.GET("/copytrading/following", copyHandlers.ListFollowingHandler())

			user.POST("/transactions/deposit", transactionHandlers.DepositHandler())
			user.POST("/transactions/withdraw", transactionHandlers.WithdrawHandler())
			user.GET("/transactions", transactionHandlers.ListTransactionsHandler())

			user.GET("/investments/plans", investmentHandlers.ListPlansHandler())
			user.POST("/investments", investmentHandlers.CreateInvestmentHandler())
			user.GET("/investments", investmentHandlers.ListInvestmentsHandler())

			user.POST("/kyc/documents", kycHandlers.SubmitDocumentHandler())
			user.GET("/kyc/documents", kycHandlers.ListDocumentsHandler())
		}

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.JWTAuth(jwtSecret), middleware.RequireAdmin())
		{
			admin.POST("/trades/:trade_id/execute", tradingHandlers.ExecuteTradeHandler())
			admin.GET("/transactions/pending", transactionHandlers.ListPendingHandler())
			admin.POST("/transactions/:transaction_id/complete", transactionHandlers.CompleteTransactionHandler())
			admin.POST("/transactions/:transaction_id/fail", transactionHandlers.FailTransactionHandler())
			admin.GET("/kyc/documents", kycHandlers.ListPendingDocumentsHandler())
			admin.POST("/kyc/documents/:document_id/review", kycHandlers.ReviewDocumentHandler())
		}
	}
}
