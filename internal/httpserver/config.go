package httpserver

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultListenAddr      = ":8787"
	defaultUpstreamTimeout = 10 * time.Second
)

// Config aggregates runtime settings for the widget-facing API.
type Config struct {
	ListenAddr      string
	DatabaseURL     string
	AllowedOrigins  []string
	UpstreamTimeout time.Duration

	SquareAccessToken string
	SquareLocationID  string
	SquareProgramID   string
	SquareAPIVersion  string

	ShopifyShopDomain  string
	ShopifyAccessToken string
	ShopifyAPIVersion  string

	// AccrualEnabled turns on point accrual from the order webhook in
	// addition to finalization.
	AccrualEnabled bool
	// EarnRateMinor is minor currency units per point for accrual.
	EarnRateMinor int64
}

// Validate ensures the configuration contains sane values.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = defaultUpstreamTimeout
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.EarnRateMinor <= 0 {
		cfg.EarnRateMinor = 100
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return fmt.Errorf("database url is required")
	}
	if strings.TrimSpace(cfg.SquareAccessToken) == "" {
		return fmt.Errorf("square access token is required")
	}
	if strings.TrimSpace(cfg.SquareProgramID) == "" {
		return fmt.Errorf("square program id is required")
	}
	if strings.TrimSpace(cfg.ShopifyShopDomain) == "" {
		return fmt.Errorf("shopify shop domain is required")
	}
	if strings.TrimSpace(cfg.ShopifyAccessToken) == "" {
		return fmt.Errorf("shopify access token is required")
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
