package main

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cryptofolio/config"
	"cryptofolio/currency"
	"cryptofolio/handlers"
	"cryptofolio/ledger"
	"cryptofolio/marketdata"
	"cryptofolio/middleware"
	"cryptofolio/models"
	"cryptofolio/pricing"
	"cryptofolio/valuation"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file, using environment")
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	settings := config.Load()
	config.InitDB()
	config.InitRedis()

	sqlDB, err := config.DB.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to get database instance")
	}
	defer sqlDB.Close()

	if err := config.DB.AutoMigrate(
		&models.User{},
		&models.PasswordResetToken{},
		&models.Coin{},
		&models.CurrentPrice{},
		&models.PriceCache{},
		&models.Holding{},
		&models.Transaction{},
		&models.Simulation{},
		&models.WatchlistItem{},
	); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate models")
	}

	market := marketdata.New(marketdata.Config{
		BaseURL:     settings.CoinGeckoBaseURL,
		APIKey:      settings.CoinGeckoAPIKey,
		Timeout:     settings.UpstreamTimeout,
		CacheTTL:    settings.CacheTTL,
		DegradedTTL: settings.DegradedCacheTTL,
	}, marketdata.NewRedisCache(config.Rdb), log.Logger)

	resolver := pricing.NewResolver(market, log.Logger)
	converter := currency.NewConverter(settings.FXRates)
	engine := ledger.NewEngine(config.DB, converter, log.Logger)
	aggregator := valuation.NewAggregator(config.DB, market, converter, log.Logger)
	api := handlers.NewAPI(market, resolver, engine, aggregator, log.Logger)

	router := gin.Default()

	// Public routes
	router.GET("/health", api.Health)
	router.POST("/signup", api.Signup)
	router.POST("/login", api.Login)
	router.POST("/token/refresh", api.Refresh)
	router.POST("/logout", api.Logout)
	router.POST("/password-reset/request", api.PasswordResetRequest)
	router.POST("/password-reset/confirm", api.PasswordResetConfirm)

	router.GET("/prices", api.CurrentPrices)
	router.GET("/market-data", api.Markets)
	router.GET("/coins/:id", api.CoinDetail)
	router.GET("/coins/:id/market-chart", api.MarketChart)
	router.GET("/coins/:id/price-history", api.PriceHistory)
	router.GET("/coins/:id/price-at", api.PriceAt)
	router.GET("/global-market-cap", api.GlobalMarketCap)
	router.GET("/proxy/*path", api.Proxy)

	// Authenticated routes
	auth := router.Group("/")
	auth.Use(middleware.JWTAuth())
	{
		auth.GET("/profile", api.Profile)
		auth.PUT("/profile", api.UpdateProfile)
		auth.POST("/change-password", api.ChangePassword)

		auth.GET("/portfolio", api.Portfolio)
		auth.POST("/portfolio/buy", api.Buy)
		auth.POST("/portfolio/sell", api.Sell)
		auth.DELETE("/portfolio", api.ClearPortfolio)

		auth.GET("/transactions", api.ListTransactions)
		auth.POST("/transactions", api.CreateTransaction)
		auth.DELETE("/transactions/:id", api.DeleteTransaction)

		auth.GET("/simulations", api.ListSimulations)
		auth.POST("/simulations", api.CreateSimulation)
		auth.GET("/simulations/:id", api.GetSimulation)
		auth.PUT("/simulations/:id", api.UpdateSimulation)
		auth.DELETE("/simulations/:id", api.DeleteSimulation)
		auth.GET("/simulations/:id/summary", api.SimulationSummary)
		auth.POST("/simulations/:id/transactions", api.CreateSimulationTransaction)

		auth.GET("/watchlist", api.ListWatchlist)
		auth.POST("/watchlist", api.AddWatchlistItem)
		auth.DELETE("/watchlist/:id", api.RemoveWatchlistItem)
	}

	// Staff-only routes
	admin := router.Group("/admin")
	admin.Use(middleware.JWTAuth(), middleware.StaffOnly())
	{
		admin.GET("/metrics", api.AdminMetrics)
		admin.GET("/users", api.AdminListUsers)
		admin.PUT("/users/:id", api.AdminUpdateUser)
		admin.GET("/transactions", api.AdminListTransactions)
		admin.POST("/transactions", api.AdminCreateTransaction)
		admin.DELETE("/transactions/:id", api.AdminDeleteTransaction)
		admin.GET("/simulations", api.AdminListSimulations)
		admin.GET("/holdings", api.AdminListHoldings)
		admin.GET("/current-prices", api.AdminListCurrentPrices)
		admin.GET("/price-cache", api.AdminListPriceCache)
		admin.GET("/watchlist", api.AdminListWatchlist)
	}

	router.Run(":8080")
}
