package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are loaded from the environment (optionally seeded from a .env file)
// with defaults that let the binary run locally against in-memory backends.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	DedupePrefix  string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN         string
	MigrationsDir string
	RunMigrations bool

	StripeKey           string
	StripeWebhookSecret string
	Currency            string
	ConnectRefreshURL   string
	ConnectReturnURL    string

	FeePercent     decimal.Decimal
	ReservationTTL time.Duration

	JWTSecret string

	PushProvider string
	PushEndpoint string
	PushToken    string

	ReserveRatePerMin int
	ReserveBurst      int

	LogLevel string
}

// ConsumerConfig drives the push delivery worker.
type ConsumerConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	PushProvider string
	PushEndpoint string
	PushToken    string

	MaxAttempts  int
	RetryBackoff time.Duration

	MetricsAddr string
	LogLevel    string
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:          ":8080",
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		DedupePrefix:      "van:dedupe:",
		KafkaTopic:        "push-notifications",
		MigrationsDir:     "migrations",
		Currency:          "brl",
		FeePercent:        decimal.NewFromInt(10),
		ReservationTTL:    30 * time.Minute,
		PushProvider:      "expo",
		PushEndpoint:      "https://exp.host/--/api/v2/push/send",
		ReserveRatePerMin: 6,
		ReserveBurst:      3,
		LogLevel:          "info",
	}
}

func defaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		KafkaTopic:   "push-notifications",
		KafkaGroupID: "push-workers",
		PushProvider: "expo",
		PushEndpoint: "https://exp.host/--/api/v2/push/send",
		MaxAttempts:  3,
		RetryBackoff: 200 * time.Millisecond,
		MetricsAddr:  ":9090",
		LogLevel:     "info",
	}
}

// loadDotEnv seeds the environment from .env when present. Variables that are
// already set win.
func loadDotEnv() {
	_ = godotenv.Load()
}

func LoadServerConfig() (ServerConfig, error) {
	loadDotEnv()
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.DedupePrefix, "DEDUPE_PREFIX")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")
	setStringFromEnv(&cfg.MigrationsDir, "MIGRATIONS_DIR")
	setBoolFromEnv(&cfg.RunMigrations, "MIGRATE", &errs)

	cfg.StripeKey = os.Getenv("STRIPE_SECRET_KEY")
	cfg.StripeWebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")
	setStringFromEnv(&cfg.Currency, "CURRENCY")
	setStringFromEnv(&cfg.ConnectRefreshURL, "CONNECT_REFRESH_URL")
	setStringFromEnv(&cfg.ConnectReturnURL, "CONNECT_RETURN_URL")

	setDecimalFromEnv(&cfg.FeePercent, "PLATFORM_FEE_PERCENT", &errs)
	setDurationFromEnv(&cfg.ReservationTTL, "RESERVATION_TTL", &errs)

	cfg.JWTSecret = os.Getenv("JWT_SECRET")

	setStringFromEnv(&cfg.PushProvider, "PUSH_PROVIDER")
	setStringFromEnv(&cfg.PushEndpoint, "PUSH_ENDPOINT")
	cfg.PushToken = os.Getenv("PUSH_ACCESS_TOKEN")

	setIntFromEnv(&cfg.ReserveRatePerMin, "RESERVE_RATE_PER_MIN", &errs)
	setIntFromEnv(&cfg.ReserveBurst, "RESERVE_BURST", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if cfg.FeePercent.IsNegative() || cfg.FeePercent.GreaterThan(decimal.NewFromInt(100)) {
		errs = append(errs, fmt.Errorf("PLATFORM_FEE_PERCENT must be within 0..100"))
	}
	if cfg.ReservationTTL <= 0 {
		errs = append(errs, fmt.Errorf("RESERVATION_TTL must be > 0"))
	}
	if cfg.ReserveRatePerMin <= 0 || cfg.ReserveBurst <= 0 {
		errs = append(errs, fmt.Errorf("RESERVE_RATE_PER_MIN and RESERVE_BURST must be > 0"))
	}
	errs = append(errs, checkPushProvider(cfg.PushProvider))

	return cfg, errors.Join(errs...)
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	loadDotEnv()
	cfg := defaultConsumerConfig()
	var errs []error

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroupID, "KAFKA_GROUP_ID")

	setStringFromEnv(&cfg.PushProvider, "PUSH_PROVIDER")
	setStringFromEnv(&cfg.PushEndpoint, "PUSH_ENDPOINT")
	cfg.PushToken = os.Getenv("PUSH_ACCESS_TOKEN")

	setIntFromEnv(&cfg.MaxAttempts, "PUSH_MAX_ATTEMPTS", &errs)
	setDurationFromEnv(&cfg.RetryBackoff, "PUSH_RETRY_BACKOFF", &errs)
	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required"))
	}
	if cfg.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("PUSH_MAX_ATTEMPTS must be > 0"))
	}
	errs = append(errs, checkPushProvider(cfg.PushProvider))

	return cfg, errors.Join(errs...)
}

func checkPushProvider(p string) error {
	switch p {
	case "expo", "fcm":
		return nil
	}
	return fmt.Errorf("PUSH_PROVIDER must be expo or fcm, got %q", p)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := cast.ToDurationE(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setDecimalFromEnv(target *decimal.Decimal, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := cast.ToIntE(strings.TrimSpace(v))
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setBoolFromEnv(target *bool, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		b, err := cast.ToBoolE(strings.TrimSpace(v))
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = b
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
