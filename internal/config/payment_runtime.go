package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultGatewayBaseURL  = "https://api.razorpay.com"
	defaultGatewayTimeout  = "10s"
	defaultAllowCurrencies = "INR"
	defaultPendingTimeout  = "30m"
	defaultSweepInterval   = "5m"
	defaultSweepBatchSize  = "50"
	defaultMaxSweeps       = "48"
	defaultJWTSecret       = "change-me-jwt-secret"
	defaultJWTAccessTTL    = "24h"
)

// PaymentRuntimeConfig is loaded once at startup and passed explicitly to the
// gateway client and payment services. Secrets never appear in logs or
// responses.
type PaymentRuntimeConfig struct {
	AppEnv string

	GatewayBaseURL   string
	GatewayKeyID     string
	GatewayKeySecret string
	WebhookSecret    string
	GatewayTimeout   time.Duration

	AllowedCurrencies []string

	PendingTimeout time.Duration
	SweepInterval  time.Duration
	SweepBatchSize int
	MaxSweeps      int

	JWTSecret    string
	JWTAccessTTL time.Duration
}

func LoadPaymentRuntimeConfig() (*PaymentRuntimeConfig, error) {
	cfg := &PaymentRuntimeConfig{}

	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)

	cfg.GatewayBaseURL = strings.TrimRight(getEnv("GATEWAY_BASE_URL", defaultGatewayBaseURL), "/")
	cfg.GatewayKeyID = strings.TrimSpace(os.Getenv("GATEWAY_KEY_ID"))
	cfg.GatewayKeySecret = strings.TrimSpace(os.Getenv("GATEWAY_KEY_SECRET"))
	cfg.WebhookSecret = strings.TrimSpace(os.Getenv("GATEWAY_WEBHOOK_SECRET"))
	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", defaultJWTSecret))

	if cfg.GatewayKeyID == "" || cfg.GatewayKeySecret == "" || cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("GATEWAY_KEY_ID, GATEWAY_KEY_SECRET and GATEWAY_WEBHOOK_SECRET are required")
	}
	if cfg.AppEnv != "dev" && cfg.JWTSecret == defaultJWTSecret {
		return nil, fmt.Errorf("JWT_SECRET must be set outside dev")
	}

	for _, c := range strings.Split(getEnv("ALLOWED_CURRENCIES", defaultAllowCurrencies), ",") {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			cfg.AllowedCurrencies = append(cfg.AllowedCurrencies, c)
		}
	}
	if len(cfg.AllowedCurrencies) == 0 {
		return nil, fmt.Errorf("ALLOWED_CURRENCIES must name at least one currency")
	}

	var err error
	if cfg.GatewayTimeout, err = parseDurationEnv("GATEWAY_TIMEOUT", defaultGatewayTimeout); err != nil {
		return nil, err
	}
	if cfg.PendingTimeout, err = parseDurationEnv("PAYMENT_PENDING_TIMEOUT", defaultPendingTimeout); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = parseDurationEnv("PAYMENT_SWEEP_INTERVAL", defaultSweepInterval); err != nil {
		return nil, err
	}
	if cfg.JWTAccessTTL, err = parseDurationEnv("JWT_ACCESS_TTL", defaultJWTAccessTTL); err != nil {
		return nil, err
	}
	if cfg.SweepBatchSize, err = parseIntEnv("PAYMENT_SWEEP_BATCH_SIZE", defaultSweepBatchSize); err != nil {
		return nil, err
	}
	if cfg.MaxSweeps, err = parseIntEnv("PAYMENT_MAX_SWEEPS", defaultMaxSweeps); err != nil {
		return nil, err
	}

	return cfg, nil
}

// CurrencyAllowed checks the supported-currency allowlist.
func (c *PaymentRuntimeConfig) CurrencyAllowed(currency string) bool {
	for _, allowed := range c.AllowedCurrencies {
		if strings.EqualFold(currency, allowed) {
			return true
		}
	}
	return false
}

func getEnv(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(name, def string) (time.Duration, error) {
	raw := getEnv(name, def)
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", name, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: duration must be positive, got %q", name, raw)
	}
	return d, nil
}

func parseIntEnv(name, def string) (int, error) {
	raw := getEnv(name, def)
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", name, raw, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %q", name, raw)
	}
	return n, nil
}
