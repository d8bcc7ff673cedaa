package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	AppPort            string        // HTTP listen port
	DBPath             string        // SQLite database path
	JWTSecret          string        // JWT signing secret
	InternalAPIKey     string        // Shared key for the internal route group
	RedisAddr          string        // Redis address, empty disables the balance cache
	RedisPass          string        // Redis password
	RedisDB            int           // Redis database number
	Currency           string        // Settlement currency code
	ExecutionFeeRate   float64       // Execution fee as a fraction of notional
	TransactionFeeRate float64       // Transaction fee as a fraction of notional
	MaxCommitRetries   int           // Bounded retries on optimistic commit conflicts
	PriceFeedTimeout   time.Duration // Upper bound on a price feed lookup
	CapBuyToBalance    bool          // Cap buy fills to the affordable quantity instead of rejecting
	IsProd             bool
}

// LoadConfig loads configuration from environment variables, falling back to
// defaults suitable for local development.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		AppPort:            getEnv("APP_PORT", "8080"),
		DBPath:             getEnv("DB_PATH", "ledger.db"),
		JWTSecret:          getEnv("JWT_SECRET", "ledger-secret-key"),
		InternalAPIKey:     getEnv("INTERNAL_API_KEY", "ledger-internal-key"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPass:          os.Getenv("REDIS_PASS"),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		Currency:           getEnv("CURRENCY", "USD"),
		ExecutionFeeRate:   getEnvFloat("EXECUTION_FEE_RATE", 0.003),
		TransactionFeeRate: getEnvFloat("TRANSACTION_FEE_RATE", 0.005),
		MaxCommitRetries:   getEnvInt("MAX_COMMIT_RETRIES", 3),
		PriceFeedTimeout:   getEnvDuration("PRICE_FEED_TIMEOUT", 2*time.Second),
		CapBuyToBalance:    os.Getenv("CAP_BUY_TO_BALANCE") == "true",
		IsProd:             os.Getenv("ENV") == "production",
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
