package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/finsightai/finsight/pkg/jwtx"
	"github.com/joho/godotenv"
)

type Config struct {
	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)

	Issuer    string        // Issuer claim for tokens (default: finsight-auth)
	Algorithm string        // HS256 or EdDSA (default: HS256)
	AccessTTL time.Duration // Access token lifetime (default: 15m)
	// RefreshTTL bounds a refresh family from its last rotation (default: 7d).
	RefreshTTL  time.Duration
	ClockLeeway time.Duration // Grace for just-expired access tokens at the gate (default: 30s)

	SigningSecret string // Required for HS256
	SigningKeyID  string // kid header of the active key (default: k1)
	SigningKeyPEM string // Path to an Ed25519 PKCS#8 PEM for EdDSA; generated when empty in dev
	// PreviousSigningSecret keeps tokens from before a secret rotation
	// verifiable until they expire.
	PreviousSigningSecret string
	PreviousSigningKeyID  string
	RetiredKeyIDs         []string // kids whose tokens are rejected outright

	DatabaseDriver string // sqlite or postgres (default: sqlite)
	DatabaseFile   string // SQLite path (default: finsight.db)
	DatabaseURL    string // Postgres DSN, required for the postgres driver

	StripeWebhookSecret string // Optional: the webhook endpoint answers 400 without it

	PasswordPepper string

	TrialPeriod          time.Duration // default: 14d
	DemoTokenTTL         time.Duration // default: 7d
	DemoExposeToken      bool          // Return demo tokens in the response (default: false)
	WebhookRetention     time.Duration // Processed webhook events kept for (default: 30d)
	HousekeepingInterval time.Duration // default: 1h
	DBStatsInterval      time.Duration // Pool gauge refresh (default: 15s)
}

// LoadConfig reads the environment, after loading a .env file from the
// working directory when one exists.
func LoadConfig() Config {
	_ = godotenv.Load()

	return Config{
		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),

		Issuer:      getEnvOrDefault("AUTH_ISSUER", "finsight-auth"),
		Algorithm:   getEnvOrDefault("AUTH_ALGORITHM", jwtx.AlgorithmHS256),
		AccessTTL:   getEnvDurationOrDefault("ACCESS_TOKEN_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL:  getEnvDurationOrDefault("REFRESH_TOKEN_TTL", jwtx.DefaultRefreshTokenTTL),
		ClockLeeway: getEnvDurationOrDefault("AUTH_CLOCK_LEEWAY", 30*time.Second),

		SigningSecret:         os.Getenv("AUTH_SIGNING_SECRET"),
		SigningKeyID:          getEnvOrDefault("AUTH_SIGNING_KEY_ID", "k1"),
		SigningKeyPEM:         os.Getenv("AUTH_SIGNING_KEY_FILE"),
		PreviousSigningSecret: os.Getenv("AUTH_PREVIOUS_SIGNING_SECRET"),
		PreviousSigningKeyID:  getEnvOrDefault("AUTH_PREVIOUS_SIGNING_KEY_ID", "k0"),
		RetiredKeyIDs:         getEnvList("AUTH_RETIRED_KEY_IDS"),

		DatabaseDriver: getEnvOrDefault("DATABASE_DRIVER", "sqlite"),
		DatabaseFile:   getEnvOrDefault("DATABASE_FILE", "finsight.db"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),

		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		PasswordPepper:      os.Getenv("PASSWORD_PEPPER"),

		TrialPeriod:          getEnvDurationOrDefault("TRIAL_PERIOD", 14*24*time.Hour),
		DemoTokenTTL:         getEnvDurationOrDefault("DEMO_TOKEN_TTL", 7*24*time.Hour),
		DemoExposeToken:      getEnvBoolOrDefault("DEMO_EXPOSE_TOKEN", false),
		WebhookRetention:     getEnvDurationOrDefault("WEBHOOK_RETENTION", 30*24*time.Hour),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Hour),
		DBStatsInterval:      getEnvDurationOrDefault("DB_STATS_INTERVAL", 15*time.Second),
	}
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	switch c.Algorithm {
	case jwtx.AlgorithmHS256:
		if len(c.SigningSecret) < jwtx.MinHMACSecretLength {
			errs = append(errs, fmt.Errorf("AUTH_SIGNING_SECRET must be at least %d bytes for HS256", jwtx.MinHMACSecretLength))
		}
	case jwtx.AlgorithmEdDSA:
		if c.SigningKeyPEM == "" && c.Env != "dev" {
			errs = append(errs, errors.New("AUTH_SIGNING_KEY_FILE is required for EdDSA outside dev"))
		}
	default:
		errs = append(errs, fmt.Errorf("AUTH_ALGORITHM %q is not supported", c.Algorithm))
	}

	if c.PreviousSigningSecret != "" && c.PreviousSigningKeyID == c.SigningKeyID {
		errs = append(errs, errors.New("AUTH_PREVIOUS_SIGNING_KEY_ID must differ from AUTH_SIGNING_KEY_ID"))
	}

	switch c.DatabaseDriver {
	case "sqlite":
		if c.DatabaseFile == "" {
			errs = append(errs, errors.New("DATABASE_FILE is required for sqlite"))
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER %q is not supported", c.DatabaseDriver))
	}

	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.AccessTTL >= c.RefreshTTL {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL must be shorter than REFRESH_TOKEN_TTL"))
	}
	if c.Env == "prod" && c.DemoExposeToken {
		errs = append(errs, errors.New("DEMO_EXPOSE_TOKEN must not be set in prod"))
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

// getEnvList splits a comma-separated value, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
