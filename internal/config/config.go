package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Port            int
	BackendURL      string
	ExchangeRate    float64
	TaxRate         float64
	AnnualDiscount  float64
	RetryDelay      time.Duration
	MaxRetries      int
	HTTPTimeout     time.Duration
	PricingTTL      time.Duration
	JWTSecret       string
	DatabaseURL     string
	CORSOrigins     []string
	LogLevel        logrus.Level
	CredentialsPath string
	EncryptionKey   string
}

// AdminEnabled reports whether the admin routes can verify tokens.
func (c *Config) AdminEnabled() bool {
	return c.JWTSecret != ""
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	port, err := strconv.Atoi(getEnv("PORT", "4001"))
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("PORT must be a valid port number, got %q", os.Getenv("PORT"))
	}

	rate, err := parseFloat("EXCHANGE_RATE_INR_PER_USD", "83")
	if err != nil {
		return nil, err
	}
	if rate <= 0 {
		return nil, fmt.Errorf("EXCHANGE_RATE_INR_PER_USD must be positive, got %v", rate)
	}

	taxRate, err := parseFloat("TAX_RATE", "0.18")
	if err != nil {
		return nil, err
	}
	if taxRate < 0 || taxRate >= 1 {
		return nil, fmt.Errorf("TAX_RATE must be in [0, 1), got %v", taxRate)
	}

	discount, err := parseFloat("ANNUAL_DISCOUNT", "0.15")
	if err != nil {
		return nil, err
	}
	if discount < 0 || discount >= 1 {
		return nil, fmt.Errorf("ANNUAL_DISCOUNT must be in [0, 1), got %v", discount)
	}

	retryDelay, err := parseDuration("VERIFY_RETRY_DELAY", "3s")
	if err != nil {
		return nil, err
	}
	maxRetries, err := strconv.Atoi(getEnv("VERIFY_MAX_RETRIES", "40"))
	if err != nil || maxRetries <= 0 {
		return nil, fmt.Errorf("VERIFY_MAX_RETRIES must be a positive integer")
	}
	httpTimeout, err := parseDuration("HTTP_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}
	pricingTTL, err := parseDuration("PRICING_SESSION_TTL", "10m")
	if err != nil {
		return nil, err
	}

	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	backendURL := strings.TrimRight(getEnv("BILLING_API_BASE_URL", "http://localhost:5000"), "/")
	if !strings.HasPrefix(backendURL, "http://") && !strings.HasPrefix(backendURL, "https://") {
		return nil, fmt.Errorf("BILLING_API_BASE_URL must be an http(s) URL, got %q", backendURL)
	}

	encKey := getEnv("ENCRYPTION_KEY", "")
	if encKey != "" && len(encKey) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(encKey))
	}

	var origins []string
	for _, o := range strings.Split(getEnv("CORS_ORIGINS", ""), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return &Config{
		Port:            port,
		BackendURL:      backendURL,
		ExchangeRate:    rate,
		TaxRate:         taxRate,
		AnnualDiscount:  discount,
		RetryDelay:      retryDelay,
		MaxRetries:      maxRetries,
		HTTPTimeout:     httpTimeout,
		PricingTTL:      pricingTTL,
		JWTSecret:       getEnv("JWT_SECRET", ""),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		CORSOrigins:     origins,
		LogLevel:        level,
		CredentialsPath: getEnv("BILLINGCTL_CREDENTIALS", defaultCredentialsPath()),
		EncryptionKey:   encKey,
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseFloat(key, fallback string) (float64, error) {
	v, err := strconv.ParseFloat(getEnv(key, fallback), 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return v, nil
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func defaultCredentialsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".billingctl", "credentials")
	}
	return filepath.Join(home, ".billingctl", "credentials")
}
