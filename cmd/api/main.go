package main

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"tributeboard/internal/config"
	"tributeboard/internal/handler"
	"tributeboard/internal/middleware"
	"tributeboard/internal/store"
)

func main() {
	// Load .env file if it exists; the environment may be set directly
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	log := newLogger(cfg.LogLevel)

	// Initialize the board ledger
	st, err := store.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize board ledger")
	}
	defer st.Close()

	// Initialize handler
	h, err := handler.NewHandler(st, cfg.ProductConfigPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize handler")
	}

	// Initialize router
	router := setupRouter(h, log)

	// Create rate limiter
	rateLimiter := middleware.NewIPRateLimiter(h.GetConfig().RateLimit)

	// Apply rate limiter to all routes
	router.Use(rateLimiter.RateLimit())

	// Configure server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	log.Info().Str("port", cfg.Server.Port).Msg("server starting")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

func setupRouter(h *handler.Handler, log zerolog.Logger) *gin.Engine {
	router := gin.New()

	// Add basic middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(log))
	router.Use(middleware.RequestID())
	router.Use(middleware.Cors())

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Public routes
		v1.GET("/config", func(c *gin.Context) {
			c.JSON(http.StatusOK, h.GetConfigPublic())
		})

		// Board routes
		board := v1.Group("/board")
		{
			board.GET("", h.GetBoard)                // Ranked leaderboard with movement
			board.GET("/raw", h.GetBoardRaw)         // Unranked rows for remote clients
			board.GET("/:address", h.GetEntry)       // One row merged with local records
			board.DELETE("/:address", h.AdminAuth(), h.DeleteParticipant)
		}

		// Payment routes
		v1.POST("/tribute", h.SubmitTribute)   // Run a payment attempt to its outcome
		v1.GET("/rates/:asset", h.GetRate)     // USD rate for one asset
		v1.GET("/quote", h.GetQuote)           // Swap quote for a non-settlement asset

		// Ledger routes
		v1.POST("/ledger", h.AdminAuth(), h.UpsertLedger) // Record a confirmed tribute
	}

	return router
}
