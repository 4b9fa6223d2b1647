package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Log struct {
		Level     string
		Format    string
		Component string
		Source    bool
	}

	App struct {
		ENV string
	}

	DB struct {
		DSN      string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	GRPC struct {
		Host string
		Port string
	}

	Metrics struct {
		Port string
	}

	NATS struct {
		URL     string
		Enabled bool
	}

	Geocoder struct {
		BaseURL   string
		UserAgent string
		Timeout   time.Duration
		CacheTTL  time.Duration
	}

	Quota struct {
		FreeMonthlyListings int
		FreeMonthlySwaps    int
		ListingCost         int64
		SwapCost            int64
	}

	Discovery struct {
		DefaultRadiusMiles float64
		RatingCacheTTL     time.Duration
		SessionTTL         time.Duration
		CatalogMaxAge      time.Duration
	}
}

func New() *Config {
	// a missing .env is fine, the process environment wins anyway
	_ = godotenv.Load()

	cfg := &Config{}

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "swap_market")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))

	cfg.App.ENV = getEnvDefault("APP_ENV", "production")

	// Database
	cfg.DB.DSN = os.Getenv("MYSQL_DSN")
	if cfg.DB.DSN == "" {
		cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
		cfg.DB.Port = getEnvDefault("DB_PORT", "3306")
		cfg.DB.User = getEnvDefault("DB_USER", "root")
		cfg.DB.Password = getEnvDefault("DB_PASSWORD", "root")
		cfg.DB.Name = getEnvDefault("DB_NAME", "swap_market")

		cfg.DB.DSN = fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
		)
	}

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	// gRPC
	cfg.GRPC.Host = getEnvDefault("GRPC_HOST", "127.0.0.1")
	cfg.GRPC.Port = getEnvDefault("GRPC_PORT", "50051")

	// empty port disables the /metrics listener
	cfg.Metrics.Port = getEnvDefault("METRICS_PORT", "9090")

	cfg.NATS.URL = getEnvDefault("NATS_URL", "nats://127.0.0.1:4222")
	cfg.NATS.Enabled = isTruthy(os.Getenv("NATS_ENABLED"))

	cfg.Geocoder.BaseURL = getEnvDefault("GEOCODER_URL", "https://nominatim.openstreetmap.org")
	cfg.Geocoder.UserAgent = getEnvDefault("GEOCODER_USER_AGENT", "swap-market/1.0")
	cfg.Geocoder.Timeout = getEnvDuration("GEOCODER_TIMEOUT", 5*time.Second)
	cfg.Geocoder.CacheTTL = getEnvDuration("GEOCODER_CACHE_TTL", 24*time.Hour)

	cfg.Quota.FreeMonthlyListings = getEnvInt("QUOTA_FREE_MONTHLY_LISTINGS", 5)
	cfg.Quota.FreeMonthlySwaps = getEnvInt("QUOTA_FREE_MONTHLY_SWAPS", 10)
	cfg.Quota.ListingCost = int64(getEnvInt("QUOTA_LISTING_COST", 1))
	cfg.Quota.SwapCost = int64(getEnvInt("QUOTA_SWAP_COST", 2))

	cfg.Discovery.DefaultRadiusMiles = getEnvFloat("DISCOVERY_DEFAULT_RADIUS_MILES", 25)
	cfg.Discovery.RatingCacheTTL = getEnvDuration("DISCOVERY_RATING_CACHE_TTL", time.Hour)
	cfg.Discovery.SessionTTL = getEnvDuration("DISCOVERY_SESSION_TTL", 24*time.Hour)
	cfg.Discovery.CatalogMaxAge = getEnvDuration("DISCOVERY_CATALOG_MAX_AGE", time.Minute)

	return cfg
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if n, err := strconv.Atoi(getEnvDefault(k, "")); err == nil {
		return n
	}
	return def
}

func getEnvFloat(k string, def float64) float64 {
	if f, err := strconv.ParseFloat(getEnvDefault(k, ""), 64); err == nil {
		return f
	}
	return def
}

func getEnvDuration(k string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(getEnvDefault(k, "")); err == nil {
		return d
	}
	return def
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
