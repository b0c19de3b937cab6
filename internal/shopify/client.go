package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/copperkettle/loyaltybridge/pkg/loyalty"
	"go.uber.org/zap"
)

const (
	defaultAPIVersion = "2024-04"
	defaultTimeout    = 10 * time.Second
)

// Config carries the Shopify Admin API credentials.
type Config struct {
	ShopDomain  string
	AccessToken string
	APIVersion  string
	Timeout     time.Duration
}

// Client is a typed Shopify Admin REST client implementing loyalty.ShopifyAPI.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient wires a Client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.ShopDomain) == "" {
		return nil, fmt.Errorf("shopify shop domain is required")
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, fmt.Errorf("shopify access token is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

// UpstreamError is a non-2xx Shopify response.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (upstreamError *UpstreamError) Error() string {
	return fmt.Sprintf("shopify: %d: %s", upstreamError.StatusCode, upstreamError.Body)
}

type priceRuleRequest struct {
	PriceRule priceRule `json:"price_rule"`
}

type priceRule struct {
	ID                int64  `json:"id,omitempty"`
	Title             string `json:"title"`
	TargetType        string `json:"target_type"`
	TargetSelection   string `json:"target_selection"`
	AllocationMethod  string `json:"allocation_method"`
	ValueType         string `json:"value_type"`
	Value             string `json:"value"`
	CustomerSelection string `json:"customer_selection"`
	StartsAt          string `json:"starts_at"`
	UsageLimit        int    `json:"usage_limit"`
	OncePerCustomer   bool   `json:"once_per_customer"`
}

type priceRuleResponse struct {
	PriceRule priceRule `json:"price_rule"`
}

type discountCodeRequest struct {
	DiscountCode discountCode `json:"discount_code"`
}

type discountCode struct {
	ID   int64  `json:"id,omitempty"`
	Code string `json:"code"`
}

type discountCodeResponse struct {
	DiscountCode discountCode `json:"discount_code"`
}

// CreateDiscount creates a one-use price rule and a discount code bound to
// it, returning the code Shopify accepted.
func (client *Client) CreateDiscount(ctx context.Context, input loyalty.ShopifyDiscountInput) (string, error) {
	rule := priceRule{
		Title:             input.Title,
		TargetType:        "line_item",
		TargetSelection:   "all",
		AllocationMethod:  "across",
		CustomerSelection: "all",
		StartsAt:          time.Now().UTC().Format(time.RFC3339),
		UsageLimit:        1,
		OncePerCustomer:   true,
	}
	switch input.DiscountType {
	case loyalty.DiscountFixedAmount:
		rule.ValueType = "fixed_amount"
		rule.Value = fmt.Sprintf("-%.2f", float64(input.AmountMinor)/100)
	case loyalty.DiscountPercentage:
		rule.ValueType = "percentage"
		rule.Value = fmt.Sprintf("-%d.0", input.Percentage)
	default:
		return "", fmt.Errorf("unsupported discount type %q", input.DiscountType)
	}

	var createdRule priceRuleResponse
	if err := client.do(ctx, http.MethodPost, "/price_rules.json", priceRuleRequest{PriceRule: rule}, &createdRule); err != nil {
		return "", err
	}
	if createdRule.PriceRule.ID == 0 {
		return "", fmt.Errorf("shopify: price rule response missing id")
	}

	var createdCode discountCodeResponse
	path := fmt.Sprintf("/price_rules/%d/discount_codes.json", createdRule.PriceRule.ID)
	if err := client.do(ctx, http.MethodPost, path, discountCodeRequest{DiscountCode: discountCode{Code: input.Code}}, &createdCode); err != nil {
		return "", err
	}
	if createdCode.DiscountCode.Code == "" {
		return "", fmt.Errorf("shopify: discount code response missing code")
	}
	return createdCode.DiscountCode.Code, nil
}

func (client *Client) do(ctx context.Context, method string, path string, requestBody any, responseBody any) error {
	endpoint := fmt.Sprintf("https://%s/admin/api/%s%s", client.cfg.ShopDomain, client.cfg.APIVersion, path)
	var reader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("encode shopify request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("X-Shopify-Access-Token", client.cfg.AccessToken)

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("shopify request: %w", err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("read shopify response: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		client.logger.Warn("shopify call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", response.StatusCode),
			zap.String("body", string(raw)),
		)
		return &UpstreamError{StatusCode: response.StatusCode, Body: string(raw)}
	}
	if responseBody == nil {
		return nil
	}
	if err := json.Unmarshal(raw, responseBody); err != nil {
		return fmt.Errorf("decode shopify response: %w", err)
	}
	return nil
}
