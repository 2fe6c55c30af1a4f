package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	App struct {
		ENV string
	}

	Log struct {
		Level     string
		Format    string
		Component string
		Source    bool
	}

	DB struct {
		Driver   string
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

	Auth struct {
		Secret string
		Issuer string
	}

	Tasks struct {
		RegularCount  int
		RomanticCount int
		CatalogueFile string
	}

	Prices struct {
		RomanticTour decimal.Decimal
		SuperLike    decimal.Decimal
		Boost        decimal.Decimal
		TopUpMin     decimal.Decimal
		TopUpMax     decimal.Decimal
	}

	Payment struct {
		APIURL          string
		Token           string
		Asset           string
		Currency        string
		PollInterval    time.Duration
		MaxAge          time.Duration
		LeaseTTL        time.Duration
		AllowTourReopen bool
	}

	Boost struct {
		Duration time.Duration
	}

	Admin struct {
		IDs []uint64
	}
}

// New builds the process configuration from the environment.
// A .env file in the working directory is loaded first when present.
func New() *Config {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.App.ENV = getEnvDefault("APP_ENV", "production")

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "wetogether")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))

	// Database
	cfg.DB.Driver = strings.ToLower(getEnvDefault("DB_DRIVER", "mysql"))
	cfg.DB.DSN = os.Getenv("DB_DSN")
	if cfg.DB.DSN == "" {
		cfg.DB.DSN = os.Getenv("MYSQL_DSN")
	}
	if cfg.DB.DSN == "" {
		cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
		cfg.DB.Port = getEnvDefault("DB_PORT", "3306")
		cfg.DB.User = getEnvDefault("DB_USER", "root")
		cfg.DB.Password = getEnvDefault("DB_PASSWORD", "root")
		cfg.DB.Name = getEnvDefault("DB_NAME", "wetogether")

		if cfg.DB.Driver == "sqlite" {
			cfg.DB.DSN = cfg.DB.Name + ".db"
		} else {
			cfg.DB.DSN = fmt.Sprintf(
				"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
				cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
			)
		}
	}

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	// gRPC
	cfg.GRPC.Host = getEnvDefault("GRPC_HOST", "127.0.0.1")
	cfg.GRPC.Port = getEnvDefault("GRPC_PORT", "50051")

	// Auth (empty secret disables the interceptor)
	cfg.Auth.Secret = os.Getenv("AUTH_SECRET")
	cfg.Auth.Issuer = getEnvDefault("AUTH_ISSUER", "wetogether-transport")

	// Tasks
	cfg.Tasks.RegularCount = getEnvInt("REGULAR_TASKS_COUNT", 5)
	cfg.Tasks.RomanticCount = getEnvInt("ROMANTIC_TASKS_COUNT", 3)
	cfg.Tasks.CatalogueFile = os.Getenv("TASKS_CATALOGUE_FILE")

	// Prices (USD)
	cfg.Prices.RomanticTour = getEnvDecimal("ROMANTIC_TOUR_PRICE", "2.00")
	cfg.Prices.SuperLike = getEnvDecimal("SUPER_LIKE_PRICE", "1.00")
	cfg.Prices.Boost = getEnvDecimal("BOOST_PROFILE_PRICE", "3.00")
	cfg.Prices.TopUpMin = getEnvDecimal("TOPUP_MIN", "1.00")
	cfg.Prices.TopUpMax = getEnvDecimal("TOPUP_MAX", "100.00")

	// Payment gate
	cfg.Payment.APIURL = getEnvDefault("CRYPTO_PAY_API_URL", "https://pay.crypt.bot/api")
	cfg.Payment.Token = os.Getenv("CRYPTO_PAY_TOKEN")
	cfg.Payment.Asset = getEnvDefault("CRYPTO_PAY_ASSET", "USDT")
	cfg.Payment.Currency = getEnvDefault("CRYPTO_PAY_CURRENCY", "USD")
	cfg.Payment.PollInterval = getEnvDuration("PAYMENT_POLL_INTERVAL", 10*time.Second)
	cfg.Payment.MaxAge = getEnvDuration("PAYMENT_MAX_AGE", 10*time.Minute)
	cfg.Payment.LeaseTTL = getEnvDuration("PAYMENT_LEASE_TTL", 30*time.Second)
	cfg.Payment.AllowTourReopen = getEnvBool("TOUR_ALLOW_REOPEN", true)

	cfg.Boost.Duration = getEnvDuration("BOOST_DURATION", 24*time.Hour)

	cfg.Admin.IDs = parseIDs(os.Getenv("ADMIN_IDS"))

	return cfg
}

// IsAdmin reports whether userID is listed in ADMIN_IDS.
func (c *Config) IsAdmin(userID uint64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(k string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return isTruthy(v)
	}
	return def
}

func getEnvDuration(k string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// getEnvDecimal falls back to def on parse errors; def must be a valid literal.
func getEnvDecimal(k, def string) decimal.Decimal {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return decimal.RequireFromString(def)
}

func parseIDs(v string) []uint64 {
	var ids []uint64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseUint(part, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
