// Package config loads service configuration from environment variables,
// applying the platform defaults when a variable is unset.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultPort                    = "8080"
	defaultCommissionPercent       = "5.0"
	defaultSellerConfirmationHours = 24
	defaultBuyerConfirmationDays   = 7
	defaultCurrency                = "USD"
	defaultSweepInterval           = time.Hour
	defaultFrontendBaseURL         = "http://localhost:5173"
	defaultLogLevel                = "info"
	defaultPayPalMode              = "sandbox"
)

// Config aggregates all runtime settings.
type Config struct {
	Port     string
	LogLevel string
	Database DatabaseConfig
	PayPal   PayPalConfig
	Payments PaymentsConfig
}

// DatabaseConfig holds postgres connection settings.
type DatabaseConfig struct {
	Host     string
	User     string
	Password string
	Name     string
	Port     string
}

// DSN renders the gorm/postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		d.Host, d.User, d.Password, d.Name, d.Port,
	)
}

// PayPalConfig holds provider credentials. Mode selects the API base URL
// ("sandbox" or "live").
type PayPalConfig struct {
	Mode     string
	ClientID string
	Secret   string
}

// PaymentsConfig governs the transaction lifecycle.
type PaymentsConfig struct {
	CommissionPercent        decimal.Decimal
	SellerConfirmationWindow time.Duration
	BuyerConfirmationWindow  time.Duration
	Currency                 string
	SweepInterval            time.Duration
	FrontendBaseURL          string
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		Port:     valueOrDefault("PORT", defaultPort),
		LogLevel: valueOrDefault("LOG_LEVEL", defaultLogLevel),
		Database: DatabaseConfig{
			Host:     valueOrDefault("DB_HOST", "localhost"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     os.Getenv("DB_NAME"),
			Port:     valueOrDefault("DB_PORT", "5432"),
		},
		PayPal: PayPalConfig{
			Mode:     valueOrDefault("PAYPAL_MODE", defaultPayPalMode),
			ClientID: os.Getenv("PAYPAL_CLIENT_ID"),
			Secret:   os.Getenv("PAYPAL_CLIENT_SECRET"),
		},
		Payments: PaymentsConfig{
			Currency:        valueOrDefault("CURRENCY", defaultCurrency),
			FrontendBaseURL: valueOrDefault("FRONTEND_BASE_URL", defaultFrontendBaseURL),
		},
	}

	commission, err := decimal.NewFromString(valueOrDefault("PLATFORM_COMMISSION_PERCENT", defaultCommissionPercent))
	if err != nil {
		return Config{}, fmt.Errorf("invalid PLATFORM_COMMISSION_PERCENT: %w", err)
	}
	if commission.IsNegative() || commission.GreaterThan(decimal.NewFromInt(100)) {
		return Config{}, fmt.Errorf("PLATFORM_COMMISSION_PERCENT %s out of range", commission)
	}
	cfg.Payments.CommissionPercent = commission

	sellerHours, err := parseIntEnv("SELLER_CONFIRMATION_HOURS", defaultSellerConfirmationHours)
	if err != nil {
		return Config{}, err
	}
	cfg.Payments.SellerConfirmationWindow = time.Duration(sellerHours) * time.Hour

	buyerDays, err := parseIntEnv("BUYER_CONFIRMATION_DAYS", defaultBuyerConfirmationDays)
	if err != nil {
		return Config{}, err
	}
	cfg.Payments.BuyerConfirmationWindow = time.Duration(buyerDays) * 24 * time.Hour

	cfg.Payments.SweepInterval = defaultSweepInterval
	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
		}
		cfg.Payments.SweepInterval = d
	}

	return cfg, nil
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseIntEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}
