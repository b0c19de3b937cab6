package square

// Wire payloads for the Square Connect v2 endpoints this service consumes.
// Responses are parsed into these explicit shapes at the boundary; anything
// that fails to parse surfaces as an upstream error instead of propagating
// undefined fields.

type money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency,omitempty"`
}

type customer struct {
	ID           string `json:"id"`
	GivenName    string `json:"given_name,omitempty"`
	FamilyName   string `json:"family_name,omitempty"`
	EmailAddress string `json:"email_address,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	Birthday     string `json:"birthday,omitempty"`
}

type searchCustomersRequest struct {
	Query searchCustomersQuery `json:"query"`
	Limit int                  `json:"limit,omitempty"`
}

type searchCustomersQuery struct {
	Filter searchCustomersFilter `json:"filter"`
}

type searchCustomersFilter struct {
	PhoneNumber  *exactFilter `json:"phone_number,omitempty"`
	EmailAddress *exactFilter `json:"email_address,omitempty"`
}

type exactFilter struct {
	Exact string `json:"exact"`
}

type searchCustomersResponse struct {
	Customers []customer `json:"customers"`
}

type createCustomerRequest struct {
	GivenName    string `json:"given_name,omitempty"`
	FamilyName   string `json:"family_name,omitempty"`
	EmailAddress string `json:"email_address,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
}

type customerResponse struct {
	Customer customer `json:"customer"`
}

type loyaltyAccount struct {
	ID             string                 `json:"id"`
	ProgramID      string                 `json:"program_id"`
	CustomerID     string                 `json:"customer_id,omitempty"`
	Balance        int64                  `json:"balance"`
	LifetimePoints int64                  `json:"lifetime_points"`
	Mapping        *loyaltyAccountMapping `json:"mapping,omitempty"`
}

type loyaltyAccountMapping struct {
	PhoneNumber string `json:"phone_number,omitempty"`
}

type searchLoyaltyAccountsRequest struct {
	Query searchLoyaltyAccountsQuery `json:"query"`
	Limit int                        `json:"limit,omitempty"`
}

type searchLoyaltyAccountsQuery struct {
	Mappings []loyaltyAccountMapping `json:"mappings"`
}

type searchLoyaltyAccountsResponse struct {
	LoyaltyAccounts []loyaltyAccount `json:"loyalty_accounts"`
}

type createLoyaltyAccountRequest struct {
	LoyaltyAccount loyaltyAccountInput `json:"loyalty_account"`
	IdempotencyKey string              `json:"idempotency_key"`
}

type loyaltyAccountInput struct {
	ProgramID  string                `json:"program_id"`
	CustomerID string                `json:"customer_id,omitempty"`
	Mapping    loyaltyAccountMapping `json:"mapping"`
}

type loyaltyAccountResponse struct {
	LoyaltyAccount loyaltyAccount `json:"loyalty_account"`
}

type programResponse struct {
	Program program `json:"program"`
}

type program struct {
	ID          string       `json:"id"`
	RewardTiers []rewardTier `json:"reward_tiers"`
}

type rewardTier struct {
	ID         string               `json:"id"`
	Name       string               `json:"name"`
	Points     int64                `json:"points"`
	Definition rewardTierDefinition `json:"definition"`
}

type rewardTierDefinition struct {
	Scope              string `json:"scope"`
	DiscountType       string `json:"discount_type"`
	PercentageDiscount string `json:"percentage_discount,omitempty"`
	FixedDiscountMoney *money `json:"fixed_discount_money,omitempty"`
	MaxDiscountMoney   *money `json:"max_discount_money,omitempty"`
}

type listPromotionsResponse struct {
	LoyaltyPromotions []loyaltyPromotion `json:"loyalty_promotions"`
}

type loyaltyPromotion struct {
	ID                      string              `json:"id"`
	Name                    string              `json:"name"`
	Status                  string              `json:"status"`
	Incentive               promotionIncentive  `json:"incentive"`
	AvailableTime           *promotionTimeRange `json:"available_time,omitempty"`
	MinimumSpendAmountMoney *money              `json:"minimum_spend_amount_money,omitempty"`
}

type promotionIncentive struct {
	Type                 string `json:"type"`
	PointsMultiplierData *struct {
		PointsMultiplier int64 `json:"points_multiplier"`
	} `json:"points_multiplier_data,omitempty"`
	PercentageDiscount string `json:"percentage_discount,omitempty"`
	FixedDiscountMoney *money `json:"fixed_discount_money,omitempty"`
}

type promotionTimeRange struct {
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

type createRewardRequest struct {
	Reward         rewardInput `json:"reward"`
	IdempotencyKey string      `json:"idempotency_key"`
}

type rewardInput struct {
	LoyaltyAccountID string `json:"loyalty_account_id"`
	RewardTierID     string `json:"reward_tier_id"`
}

type rewardResponse struct {
	Reward reward `json:"reward"`
}

type reward struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	LoyaltyAccountID string `json:"loyalty_account_id"`
	RewardTierID     string `json:"reward_tier_id"`
	Points           int64  `json:"points"`
}

type redeemRewardRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	LocationID     string `json:"location_id"`
}

type accumulatePointsRequest struct {
	AccumulatePoints accumulatePoints `json:"accumulate_points"`
	IdempotencyKey   string           `json:"idempotency_key"`
	LocationID       string           `json:"location_id"`
}

type accumulatePoints struct {
	Points int64 `json:"points"`
}

type accumulatePointsResponse struct {
	Events []loyaltyEvent `json:"events"`
	Event  *loyaltyEvent  `json:"event,omitempty"`
}

type loyaltyEvent struct {
	ID               string `json:"id"`
	Type             string `json:"type"`
	AccumulatePoints *struct {
		Points int64 `json:"points"`
	} `json:"accumulate_points,omitempty"`
}

type errorResponse struct {
	Errors []apiError `json:"errors"`
}

type apiError struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Detail   string `json:"detail,omitempty"`
	Field    string `json:"field,omitempty"`
}
