package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPAddr       string
	DBDSN          string
	JWTSecret      string
	JWTTTL         time.Duration
	QuoteAPIURL    string
	QuoteAPIKey    string
	QuoteTimeout   time.Duration
	StartingCash   decimal.Decimal
	AllowFullSpend bool
	CORSOrigins    []string
	LogLevel       string
}

// Load reads a .env file, then the process environment. Variables already set
// in the environment win over the file. An explicit envPath must exist; with
// an empty envPath a missing ./.env is ignored.
func Load(envPath string) (Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			return Config{}, fmt.Errorf("failed to load env file %s: %w", envPath, err)
		}
	} else {
		_ = godotenv.Load()
	}

	var c Config
	var missing []string
	c.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	c.DBDSN = os.Getenv("DB_DSN")
	c.JWTSecret = os.Getenv("JWT_SECRET")
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	ttl, err := time.ParseDuration(getEnv("JWT_TTL", "24h"))
	if err != nil {
		return c, errors.New("invalid JWT_TTL: " + err.Error())
	}
	c.JWTTTL = ttl

	c.QuoteAPIURL = strings.TrimRight(os.Getenv("QUOTE_API_URL"), "/")
	c.QuoteAPIKey = os.Getenv("QUOTE_API_KEY")
	if c.QuoteAPIURL != "" && c.QuoteAPIKey == "" {
		missing = append(missing, "QUOTE_API_KEY")
	}
	timeout, err := time.ParseDuration(getEnv("QUOTE_TIMEOUT", "5s"))
	if err != nil {
		return c, errors.New("invalid QUOTE_TIMEOUT: " + err.Error())
	}
	c.QuoteTimeout = timeout

	cash, err := decimal.NewFromString(getEnv("STARTING_CASH", "10000.00"))
	if err != nil {
		return c, errors.New("invalid STARTING_CASH: " + err.Error())
	}
	if cash.IsNegative() {
		return c, errors.New("invalid STARTING_CASH: must not be negative")
	}
	c.StartingCash = cash

	if v := os.Getenv("ALLOW_FULL_SPEND"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c, errors.New("invalid ALLOW_FULL_SPEND: " + err.Error())
		}
		c.AllowFullSpend = b
	}

	// Sessions ride on cookies, so cross-origin access is opt-in and only for
	// named origins.
	for _, o := range strings.Split(os.Getenv("CORS_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o == "" {
			continue
		}
		if strings.Contains(o, "*") {
			return c, errors.New("invalid CORS_ORIGINS: wildcard origins are not allowed with credentials")
		}
		c.CORSOrigins = append(c.CORSOrigins, o)
	}
	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))

	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
