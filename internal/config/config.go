package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"

	"tirepos/internal/pricing"
)

type Config struct {
	Port     string
	DBDSN    string
	LogFile  string
	LogLevel string
	// json | console
	LogFormat string

	// Optional. Enables the Idempotency-Key guard on sale creation.
	RedisURL       string
	IdempotencyTTL time.Duration

	DefaultTaxRate   decimal.Decimal
	TireFee          decimal.Decimal
	MetricsNamespace string
	SeedDemo         bool
	RatePerMinute    int
}

// Load reads configuration from the environment and an optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}
	return FromKoanf(k)
}

// FromKoanf builds a Config from an already populated koanf instance.
func FromKoanf(k *koanf.Koanf) (Config, error) {
	taxRate, err := parseDecimal(k.String("DEFAULT_TAX_RATE"), pricing.DefaultGlobalTaxRate)
	if err != nil {
		return Config{}, fmt.Errorf("DEFAULT_TAX_RATE: %w", err)
	}
	tireFee, err := parseDecimal(k.String("TIRE_FEE"), pricing.DefaultTireFee)
	if err != nil {
		return Config{}, fmt.Errorf("TIRE_FEE: %w", err)
	}

	cfg := Config{
		Port:             valueOrDefault(k.String("PORT"), "8081"),
		DBDSN:            valueOrDefault(k.String("DB_DSN"), "tirepos.db"), // sqlite file in working dir
		LogFile:          strings.TrimSpace(k.String("LOG_FILE")),
		LogLevel:         valueOrDefault(k.String("LOG_LEVEL"), "info"),
		LogFormat:        valueOrDefault(k.String("LOG_FORMAT"), "json"),
		RedisURL:         strings.TrimSpace(k.String("REDIS_URL")),
		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "10m"),
		DefaultTaxRate:   taxRate,
		TireFee:          tireFee,
		MetricsNamespace: valueOrDefault(k.String("METRICS_NAMESPACE"), "tirepos"),
		SeedDemo:         parseBool(k.String("SEED_DEMO")),
		RatePerMinute:    parseInt(k.String("RATE_LIMIT_PER_MINUTE"), 120),
	}
	if cfg.DefaultTaxRate.IsNegative() {
		return Config{}, fmt.Errorf("DEFAULT_TAX_RATE must not be negative")
	}
	if cfg.TireFee.IsNegative() {
		return Config{}, fmt.Errorf("TIRE_FEE must not be negative")
	}
	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8081"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDecimal(value, fallback string) (decimal.Decimal, error) {
	return decimal.NewFromString(valueOrDefault(value, fallback))
}

func parseDuration(value, fallback string) time.Duration {
	d, err := time.ParseDuration(valueOrDefault(value, fallback))
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
