package square

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/copperkettle/loyaltybridge/pkg/loyalty"
	"go.uber.org/zap"
)

const (
	baseURLSandbox    = "https://connect.squareupsandbox.com"
	baseURLProduction = "https://connect.squareup.com"

	environmentProduction = "production"

	defaultAPIVersion = "2024-06-04"
	defaultTimeout    = 10 * time.Second

	codeAlreadyRedeemed = "REWARD_ALREADY_REDEEMED"
)

// EnvironmentSource yields the Square environment ("sandbox"|"production")
// before each call. Backed by the app_settings row in production so the
// environment can be flipped without a restart.
type EnvironmentSource interface {
	Setting(ctx context.Context, key string) (string, error)
}

// Config carries the client's credentials and tuning.
type Config struct {
	AccessToken string
	LocationID  string
	APIVersion  string
	// EarnRateMinor is how many minor currency units earn one point when
	// reporting accumulation. Defaults to 100 (one point per dollar).
	EarnRateMinor int64
	Timeout       time.Duration
}

// Client is a typed Square Connect v2 client implementing loyalty.SquareAPI.
type Client struct {
	cfg        Config
	env        EnvironmentSource
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient wires a Client. The environment source is consulted before
// every request to pick the base URL.
func NewClient(cfg Config, env EnvironmentSource, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, fmt.Errorf("square access token is required")
	}
	if env == nil {
		return nil, fmt.Errorf("square environment source is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.EarnRateMinor <= 0 {
		cfg.EarnRateMinor = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		env:        env,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

// UpstreamError is a non-2xx Square response with the decoded error list.
type UpstreamError struct {
	StatusCode int
	Errors     []apiError
	Body       string
}

func (upstreamError *UpstreamError) Error() string {
	if len(upstreamError.Errors) > 0 {
		first := upstreamError.Errors[0]
		return fmt.Sprintf("square: %d %s: %s", upstreamError.StatusCode, first.Code, first.Detail)
	}
	return fmt.Sprintf("square: %d: %s", upstreamError.StatusCode, upstreamError.Body)
}

func (upstreamError *UpstreamError) hasCode(code string) bool {
	for _, apiErr := range upstreamError.Errors {
		if apiErr.Code == code {
			return true
		}
	}
	return false
}

func (client *Client) baseURL(ctx context.Context) (string, error) {
	environment, err := client.env.Setting(ctx, loyalty.SettingSquareEnvironment)
	if err != nil {
		return "", fmt.Errorf("resolve square environment: %w", err)
	}
	if strings.EqualFold(strings.TrimSpace(environment), environmentProduction) {
		return baseURLProduction, nil
	}
	return baseURLSandbox, nil
}

func (client *Client) do(ctx context.Context, method string, path string, requestBody any, responseBody any) error {
	base, err := client.baseURL(ctx)
	if err != nil {
		return err
	}
	var reader io.Reader
	if requestBody != nil {
		encoded, marshalErr := json.Marshal(requestBody)
		if marshalErr != nil {
			return fmt.Errorf("encode square request: %w", marshalErr)
		}
		reader = bytes.NewReader(encoded)
	}
	request, err := http.NewRequestWithContext(ctx, method, base+path, reader)
	if err != nil {
		return err
	}
	request.Header.Set("Authorization", "Bearer "+client.cfg.AccessToken)
	request.Header.Set("Square-Version", client.cfg.APIVersion)
	request.Header.Set("Content-Type", "application/json")

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("square request: %w", err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("read square response: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		upstream := &UpstreamError{StatusCode: response.StatusCode, Body: string(raw)}
		var decoded errorResponse
		if json.Unmarshal(raw, &decoded) == nil {
			upstream.Errors = decoded.Errors
		}
		client.logger.Warn("square call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", response.StatusCode),
			zap.String("body", string(raw)),
		)
		return upstream
	}
	if responseBody == nil {
		return nil
	}
	if err := json.Unmarshal(raw, responseBody); err != nil {
		return fmt.Errorf("decode square response: %w", err)
	}
	return nil
}

func (client *Client) SearchCustomer(ctx context.Context, phone string, email string) (*loyalty.SquareCustomer, error) {
	filter := searchCustomersFilter{}
	if phone != "" {
		filter.PhoneNumber = &exactFilter{Exact: phone}
	} else if email != "" {
		filter.EmailAddress = &exactFilter{Exact: email}
	} else {
		return nil, nil
	}
	var decoded searchCustomersResponse
	err := client.do(ctx, http.MethodPost, "/v2/customers/search", searchCustomersRequest{
		Query: searchCustomersQuery{Filter: filter},
		Limit: 1,
	}, &decoded)
	if err != nil {
		return nil, err
	}
	if len(decoded.Customers) == 0 {
		return nil, nil
	}
	mapped := customerToDomain(decoded.Customers[0])
	return &mapped, nil
}

func (client *Client) GetCustomer(ctx context.Context, customerID string) (*loyalty.SquareCustomer, error) {
	var decoded customerResponse
	err := client.do(ctx, http.MethodGet, "/v2/customers/"+customerID, nil, &decoded)
	if err != nil {
		return nil, err
	}
	mapped := customerToDomain(decoded.Customer)
	return &mapped, nil
}

func (client *Client) CreateCustomer(ctx context.Context, input loyalty.SquareCustomerInput) (*loyalty.SquareCustomer, error) {
	var decoded customerResponse
	err := client.do(ctx, http.MethodPost, "/v2/customers", createCustomerRequest{
		GivenName:    input.GivenName,
		FamilyName:   input.FamilyName,
		EmailAddress: input.Email,
		PhoneNumber:  input.Phone,
	}, &decoded)
	if err != nil {
		return nil, err
	}
	mapped := customerToDomain(decoded.Customer)
	return &mapped, nil
}

func (client *Client) SearchLoyaltyAccount(ctx context.Context, phone string) (*loyalty.SquareLoyaltyAccount, error) {
	var decoded searchLoyaltyAccountsResponse
	err := client.do(ctx, http.MethodPost, "/v2/loyalty/accounts/search", searchLoyaltyAccountsRequest{
		Query: searchLoyaltyAccountsQuery{
			Mappings: []loyaltyAccountMapping{{PhoneNumber: phone}},
		},
		Limit: 1,
	}, &decoded)
	if err != nil {
		return nil, err
	}
	if len(decoded.LoyaltyAccounts) == 0 {
		return nil, nil
	}
	mapped := loyaltyAccountToDomain(decoded.LoyaltyAccounts[0])
	return &mapped, nil
}

func (client *Client) CreateLoyaltyAccount(ctx context.Context, programID string, customerID string, phone string) (*loyalty.SquareLoyaltyAccount, error) {
	var decoded loyaltyAccountResponse
	err := client.do(ctx, http.MethodPost, "/v2/loyalty/accounts", createLoyaltyAccountRequest{
		LoyaltyAccount: loyaltyAccountInput{
			ProgramID:  programID,
			CustomerID: customerID,
			Mapping:    loyaltyAccountMapping{PhoneNumber: phone},
		},
		IdempotencyKey: "enroll:" + phone,
	}, &decoded)
	if err != nil {
		return nil, err
	}
	mapped := loyaltyAccountToDomain(decoded.LoyaltyAccount)
	return &mapped, nil
}

func (client *Client) RetrieveLoyaltyAccount(ctx context.Context, accountID string) (*loyalty.SquareLoyaltyAccount, error) {
	var decoded loyaltyAccountResponse
	err := client.do(ctx, http.MethodGet, "/v2/loyalty/accounts/"+accountID, nil, &decoded)
	if err != nil {
		return nil, err
	}
	mapped := loyaltyAccountToDomain(decoded.LoyaltyAccount)
	return &mapped, nil
}

func (client *Client) ListRewardTiers(ctx context.Context, programID string) ([]loyalty.SquareRewardTier, error) {
	var decoded programResponse
	err := client.do(ctx, http.MethodGet, "/v2/loyalty/programs/"+programID, nil, &decoded)
	if err != nil {
		return nil, err
	}
	tiers := make([]loyalty.SquareRewardTier, 0, len(decoded.Program.RewardTiers))
	for _, tier := range decoded.Program.RewardTiers {
		tiers = append(tiers, rewardTierToDomain(tier))
	}
	return tiers, nil
}

func (client *Client) ListPromotions(ctx context.Context, programID string) ([]loyalty.SquarePromotion, error) {
	var decoded listPromotionsResponse
	err := client.do(ctx, http.MethodGet, "/v2/loyalty/programs/"+programID+"/promotions", nil, &decoded)
	if err != nil {
		return nil, err
	}
	promotions := make([]loyalty.SquarePromotion, 0, len(decoded.LoyaltyPromotions))
	for _, promotion := range decoded.LoyaltyPromotions {
		promotions = append(promotions, promotionToDomain(promotion))
	}
	return promotions, nil
}

func (client *Client) ReserveReward(ctx context.Context, accountID string, tierID string, idempotencyKey loyalty.IdempotencyKey) (string, error) {
	var decoded rewardResponse
	err := client.do(ctx, http.MethodPost, "/v2/loyalty/rewards", createRewardRequest{
		Reward: rewardInput{
			LoyaltyAccountID: accountID,
			RewardTierID:     tierID,
		},
		IdempotencyKey: idempotencyKey.String(),
	}, &decoded)
	if err != nil {
		return "", err
	}
	if decoded.Reward.ID == "" {
		return "", fmt.Errorf("square: reward response missing id")
	}
	return decoded.Reward.ID, nil
}

func (client *Client) RedeemReward(ctx context.Context, rewardID string, idempotencyKey loyalty.IdempotencyKey) error {
	err := client.do(ctx, http.MethodPost, "/v2/loyalty/rewards/"+rewardID+"/redeem", redeemRewardRequest{
		IdempotencyKey: idempotencyKey.String(),
		LocationID:     client.cfg.LocationID,
	}, nil)
	if err != nil {
		var upstream *UpstreamError
		if errors.As(err, &upstream) && upstream.hasCode(codeAlreadyRedeemed) {
			return loyalty.ErrRewardAlreadyRedeemed
		}
		return err
	}
	return nil
}

func (client *Client) DeleteReward(ctx context.Context, rewardID string) error {
	return client.do(ctx, http.MethodDelete, "/v2/loyalty/rewards/"+rewardID, nil, nil)
}

func (client *Client) AccumulatePoints(ctx context.Context, accountID string, spendMinor int64, idempotencyKey loyalty.IdempotencyKey) (int64, error) {
	points := spendMinor / client.cfg.EarnRateMinor
	if points <= 0 {
		return 0, nil
	}
	var decoded accumulatePointsResponse
	err := client.do(ctx, http.MethodPost, "/v2/loyalty/accounts/"+accountID+"/accumulate", accumulatePointsRequest{
		AccumulatePoints: accumulatePoints{Points: points},
		IdempotencyKey:   idempotencyKey.String(),
		LocationID:       client.cfg.LocationID,
	}, &decoded)
	if err != nil {
		return 0, err
	}
	var earned int64
	for _, event := range decoded.Events {
		if event.AccumulatePoints != nil {
			earned += event.AccumulatePoints.Points
		}
	}
	if earned == 0 && decoded.Event != nil && decoded.Event.AccumulatePoints != nil {
		earned = decoded.Event.AccumulatePoints.Points
	}
	if earned == 0 {
		earned = points
	}
	return earned, nil
}

func customerToDomain(upstream customer) loyalty.SquareCustomer {
	return loyalty.SquareCustomer{
		ID:         upstream.ID,
		GivenName:  upstream.GivenName,
		FamilyName: upstream.FamilyName,
		Email:      upstream.EmailAddress,
		Phone:      upstream.PhoneNumber,
		BirthDate:  upstream.Birthday,
	}
}

func loyaltyAccountToDomain(upstream loyaltyAccount) loyalty.SquareLoyaltyAccount {
	return loyalty.SquareLoyaltyAccount{
		ID:             upstream.ID,
		ProgramID:      upstream.ProgramID,
		CustomerID:     upstream.CustomerID,
		Balance:        upstream.Balance,
		LifetimePoints: upstream.LifetimePoints,
	}
}

func rewardTierToDomain(tier rewardTier) loyalty.SquareRewardTier {
	mapped := loyalty.SquareRewardTier{
		ID:           tier.ID,
		Name:         tier.Name,
		Points:       tier.Points,
		DiscountType: tier.Definition.DiscountType,
		Scope:        loyalty.RewardTierScope(tier.Definition.Scope),
	}
	if tier.Definition.FixedDiscountMoney != nil {
		mapped.AmountMinor = tier.Definition.FixedDiscountMoney.Amount
	}
	if tier.Definition.MaxDiscountMoney != nil {
		mapped.MaxAmountMinor = tier.Definition.MaxDiscountMoney.Amount
	}
	mapped.Percentage = parsePercentage(tier.Definition.PercentageDiscount)
	return mapped
}

func promotionToDomain(promotion loyaltyPromotion) loyalty.SquarePromotion {
	mapped := loyalty.SquarePromotion{
		ID:            promotion.ID,
		Name:          promotion.Name,
		Status:        promotion.Status,
		IncentiveType: promotion.Incentive.Type,
		Percentage:    parsePercentage(promotion.Incentive.PercentageDiscount),
	}
	if promotion.Incentive.FixedDiscountMoney != nil {
		mapped.FixedAmountMinor = promotion.Incentive.FixedDiscountMoney.Amount
	}
	if promotion.MinimumSpendAmountMoney != nil {
		mapped.MinimumSpend = promotion.MinimumSpendAmountMoney.Amount
	}
	if promotion.AvailableTime != nil {
		mapped.StartsAt = parseSquareDate(promotion.AvailableTime.StartDate, false)
		mapped.EndsAt = parseSquareDate(promotion.AvailableTime.EndDate, true)
	}
	return mapped
}

// parseSquareDate accepts RFC3339 timestamps or bare dates. Bare end dates
// land on the last second of the day so window boundaries stay inclusive.
func parseSquareDate(raw string, endOfDay bool) *time.Time {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return &parsed
	}
	parsed, err := time.Parse("2006-01-02", trimmed)
	if err != nil {
		return nil
	}
	if endOfDay {
		parsed = parsed.Add(24*time.Hour - time.Second)
	}
	return &parsed
}

// parsePercentage reads Square's decimal-string percentages ("10", "12.5")
// into a whole-number percentage.
func parsePercentage(raw string) int64 {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0
	}
	return int64(parsed)
}
