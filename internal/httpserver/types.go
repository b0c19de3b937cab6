package httpserver

// Request and response envelopes for the widget-facing JSON API.

type identifyRequest struct {
	Phone             string `json:"phone,omitempty"`
	Email             string `json:"email,omitempty"`
	ShopifyCustomerID string `json:"shopify_customer_id,omitempty"`
}

type accountRequest struct {
	ProfileID string `json:"profile_id"`
	Phone     string `json:"phone,omitempty"`
}

type redeemRequest struct {
	AccountID      string `json:"account_id"`
	RewardID       string `json:"reward_id"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type redeemPromotionRequest struct {
	PromotionID      string `json:"promotion_id"`
	SquareCustomerID string `json:"square_customer_id,omitempty"`
}

type releaseRequest struct {
	DiscountCode string `json:"discount_code"`
}

type profilePayload struct {
	ID                string `json:"id"`
	ShopifyCustomerID string `json:"shopify_customer_id,omitempty"`
	SquareCustomerID  string `json:"square_customer_id,omitempty"`
	Email             string `json:"email,omitempty"`
	Phone             string `json:"phone,omitempty"`
	GivenName         string `json:"given_name,omitempty"`
	FamilyName        string `json:"family_name,omitempty"`
}

type accountPayload struct {
	ID              string `json:"id"`
	ProfileID       string `json:"profile_id"`
	SquareAccountID string `json:"square_account_id"`
	ProgramID       string `json:"program_id"`
	Balance         int64  `json:"balance"`
	LifetimePoints  int64  `json:"lifetime_points"`
}

type rewardPayload struct {
	ID             string `json:"id"`
	SquareRewardID string `json:"square_reward_id"`
	Name           string `json:"name"`
	PointsRequired int64  `json:"points_required"`
	DiscountType   string `json:"discount_type"`
	AmountMinor    int64  `json:"amount_minor,omitempty"`
	Percentage     int64  `json:"percentage,omitempty"`
	MaxAmountMinor int64  `json:"max_amount_minor,omitempty"`
}

type promotionPayload struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Status            string `json:"status"`
	IncentiveType     string `json:"incentive_type"`
	Percentage        int64  `json:"percentage,omitempty"`
	FixedAmountMinor  int64  `json:"fixed_amount_minor,omitempty"`
	MinimumSpend      int64  `json:"minimum_spend,omitempty"`
	StartsAt          string `json:"starts_at,omitempty"`
	EndsAt            string `json:"ends_at,omitempty"`
	CustomerEligible  bool   `json:"customer_eligible"`
	EligibilityReason string `json:"eligibility_reason"`
}

type transactionPayload struct {
	ID             string `json:"id"`
	AccountID      string `json:"account_id"`
	Type           string `json:"type"`
	Points         int64  `json:"points"`
	Description    string `json:"description,omitempty"`
	ExternalID     string `json:"external_id,omitempty"`
	DiscountCode   string `json:"discount_code,omitempty"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
}

type lookupEnvelope struct {
	Profile          *profilePayload `json:"profile"`
	LoyaltyAccount   *accountPayload `json:"loyalty_account"`
	AvailableRewards []rewardPayload `json:"available_rewards"`
}

type accountEnvelope struct {
	LoyaltyAccount   *accountPayload `json:"loyalty_account"`
	AvailableRewards []rewardPayload `json:"available_rewards"`
}

type redeemEnvelope struct {
	DiscountCode    string `json:"discount_code"`
	RewardID        string `json:"reward_id"`
	PointsSpent     int64  `json:"points_spent"`
	Balance         int64  `json:"balance"`
	ManualSetupNote string `json:"manual_setup_note,omitempty"`
}

type syncEnvelope struct {
	Synced  int `json:"synced"`
	Skipped int `json:"skipped"`
	Total   int `json:"total"`
}

type webhookEnvelope struct {
	Processed     int   `json:"processed"`
	Failed        int   `json:"failed"`
	PointsAccrued int64 `json:"points_accrued,omitempty"`
}

type errorEnvelope struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// orderWebhook is the subset of Shopify's order payload the finalize and
// accrual paths read.
type orderWebhook struct {
	ID            int64  `json:"id"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	TotalPrice    string `json:"total_price,omitempty"`
	DiscountCodes []struct {
		Code string `json:"code"`
	} `json:"discount_codes"`
	Customer *struct {
		ID    int64  `json:"id"`
		Email string `json:"email,omitempty"`
		Phone string `json:"phone,omitempty"`
	} `json:"customer,omitempty"`
}
