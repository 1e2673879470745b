package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the global PostgreSQL database connection.
var DB *gorm.DB

// Rdb is the global Redis client.
var Rdb *redis.Client

// Ctx is the context for Redis operations.
var Ctx = context.Background()

// Settings holds everything read from the environment at startup. Load fills
// it before any component is constructed.
var Settings Config

type Config struct {
	JWTSecret string

	CoinGeckoBaseURL string
	CoinGeckoAPIKey  string
	UpstreamTimeout  time.Duration
	CacheTTL         time.Duration
	DegradedCacheTTL time.Duration

	// Static USD-base conversion rates for the supported display currencies.
	FXRates map[string]float64
}

// Load reads settings from the environment. Defaults match the public
// CoinGecko API and a 5 minute price cache.
func Load() Config {
	Settings = Config{
		JWTSecret:        os.Getenv("JWT_SECRET"),
		CoinGeckoBaseURL: envOr("COINGECKO_BASE_URL", "https://api.coingecko.com/api/v3"),
		CoinGeckoAPIKey:  os.Getenv("COINGECKO_API_KEY"),
		UpstreamTimeout:  envDuration("UPSTREAM_TIMEOUT_SECONDS", 15*time.Second),
		CacheTTL:         envDuration("PRICE_CACHE_TTL_SECONDS", 5*time.Minute),
		DegradedCacheTTL: envDuration("DEGRADED_CACHE_TTL_SECONDS", time.Minute),
		FXRates: map[string]float64{
			"USD": 1,
			"EUR": envFloat("FX_USD_EUR", 0.92),
			"AUD": envFloat("FX_USD_AUD", 1.52),
		},
	}
	return Settings
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return fallback
}

func InitDB() {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
	)

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to the database")
	}
}

// InitRedis initializes the Redis connection.
func InitRedis() {
	Rdb = redis.NewClient(&redis.Options{
		Addr:     envOr("REDIS_ADDR", "127.0.0.1:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})

	if err := Rdb.Ping(Ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
}
