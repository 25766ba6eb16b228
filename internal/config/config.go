package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Backend selects which remote implementation the controllers talk to.
const (
	BackendFrappe  = "frappe"
	BackendSandbox = "sandbox"
)

// Config holds the service settings read from the environment.
type Config struct {
	Port           string
	AllowedOrigins []string
	Backend        string

	FrappeURL       string
	FrappeAPIKey    string
	FrappeAPISecret string
	FrappeTimeout   time.Duration

	DefaultCompany string

	DatabaseDSN string
	SiteURL     string

	VerifySignature bool
	KCBPublicKey    string

	LogLevel  string
	LogFormat string
}

// Load reads the configuration from environment variables and validates it.
// Call godotenv.Load beforehand to pick up a .env file.
func Load() (*Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv reads the configuration without validating it, so callers can
// override fields first.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:            getenv("PORT", "8080"),
		AllowedOrigins:  splitList(getenv("CORS_ORIGINS", "http://localhost:3000")),
		Backend:         strings.ToLower(getenv("BACKEND", BackendFrappe)),
		FrappeURL:       strings.TrimRight(os.Getenv("FRAPPE_URL"), "/"),
		FrappeAPIKey:    os.Getenv("FRAPPE_API_KEY"),
		FrappeAPISecret: os.Getenv("FRAPPE_API_SECRET"),
		DefaultCompany:  os.Getenv("DEFAULT_COMPANY"),
		DatabaseDSN:     os.Getenv("DATABASE_DSN"),
		SiteURL:         strings.TrimRight(getenv("SITE_URL", "http://localhost:8080"), "/"),
		KCBPublicKey:    os.Getenv("KCB_PUBLIC_KEY"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogFormat:       getenv("LOG_FORMAT", "json"),
	}

	timeout, err := time.ParseDuration(getenv("FRAPPE_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("parsing FRAPPE_TIMEOUT: %w", err)
	}
	cfg.FrappeTimeout = timeout

	verify, err := strconv.ParseBool(getenv("KCB_VERIFY_SIGNATURE", "true"))
	if err != nil {
		return nil, fmt.Errorf("parsing KCB_VERIFY_SIGNATURE: %w", err)
	}
	cfg.VerifySignature = verify

	if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = dsnFromParts()
	}
	return cfg, nil
}

// Validate checks that the selected backend has what it needs.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFrappe:
		if c.FrappeURL == "" {
			return errors.New("FRAPPE_URL is required when BACKEND=frappe")
		}
	case BackendSandbox:
		if c.DatabaseDSN == "" {
			return errors.New("DATABASE_DSN or DB_HOST is required when BACKEND=sandbox")
		}
	default:
		return fmt.Errorf("unknown BACKEND %q", c.Backend)
	}
	return nil
}

// InitDB opens the postgres database backing the sandbox ledger.
func InitDB(cfg *Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func dsnFromParts() string {
	host := os.Getenv("DB_HOST")
	if host == "" {
		return ""
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host,
		getenv("DB_PORT", "5432"),
		getenv("DB_USER", "postgres"),
		os.Getenv("DB_PASSWORD"),
		getenv("DB_NAME", "kcb_payments"),
		getenv("DB_SSLMODE", "disable"),
	)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
