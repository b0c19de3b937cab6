package loyalty

import (
	"context"
	"time"
)

// SquareCustomer is the subset of a Square customer record the service reads.
type SquareCustomer struct {
	ID         string
	GivenName  string
	FamilyName string
	Email      string
	Phone      string
	// BirthDate is Square's YYYY-MM-DD (or 0000-MM-DD when the year is
	// withheld). Empty when the customer has no birthday on file.
	BirthDate string
}

// SquareCustomerInput carries the fields sent on customer creation.
type SquareCustomerInput struct {
	GivenName  string
	FamilyName string
	Email      string
	Phone      string
}

// SquareLoyaltyAccount mirrors Square's loyalty account payload.
type SquareLoyaltyAccount struct {
	ID             string
	ProgramID      string
	CustomerID     string
	Balance        int64
	LifetimePoints int64
}

// RewardTierScope enumerates what a Square reward tier discounts.
type RewardTierScope string

const (
	ScopeOrder         RewardTierScope = "ORDER"
	ScopeItemVariation RewardTierScope = "ITEM_VARIATION"
	ScopeCategory      RewardTierScope = "CATEGORY"
)

// SquareRewardTier is one reward tier from the program definition.
type SquareRewardTier struct {
	ID             string
	Name           string
	Points         int64
	DiscountType   string
	AmountMinor    int64
	Percentage     int64
	MaxAmountMinor int64
	Scope          RewardTierScope
}

// SquarePromotion is one loyalty promotion as returned by Square.
type SquarePromotion struct {
	ID               string
	Name             string
	Status           string
	IncentiveType    string
	Percentage       int64
	FixedAmountMinor int64
	MinimumSpend     int64
	StartsAt         *time.Time
	EndsAt           *time.Time
}

// SquareAPI is the boundary contract for Square's Loyalty and Customers
// REST APIs. Any non-2xx upstream response surfaces as an error; callers
// never retry automatically.
type SquareAPI interface {
	SearchCustomer(ctx context.Context, phone string, email string) (*SquareCustomer, error)
	GetCustomer(ctx context.Context, customerID string) (*SquareCustomer, error)
	CreateCustomer(ctx context.Context, input SquareCustomerInput) (*SquareCustomer, error)

	SearchLoyaltyAccount(ctx context.Context, phone string) (*SquareLoyaltyAccount, error)
	CreateLoyaltyAccount(ctx context.Context, programID string, customerID string, phone string) (*SquareLoyaltyAccount, error)
	RetrieveLoyaltyAccount(ctx context.Context, accountID string) (*SquareLoyaltyAccount, error)

	ListRewardTiers(ctx context.Context, programID string) ([]SquareRewardTier, error)
	ListPromotions(ctx context.Context, programID string) ([]SquarePromotion, error)

	// ReserveReward locks points against a reward tier and returns the
	// Square reward id acting as the reservation handle.
	ReserveReward(ctx context.Context, accountID string, tierID string, idempotencyKey IdempotencyKey) (string, error)
	// RedeemReward converts a reservation into a permanent redemption.
	// Re-redeeming an already-redeemed reward returns ErrRewardAlreadyRedeemed.
	RedeemReward(ctx context.Context, rewardID string, idempotencyKey IdempotencyKey) error
	// DeleteReward releases a reservation, returning the locked points.
	DeleteReward(ctx context.Context, rewardID string) error

	// AccumulatePoints reports a spend to Square and returns the points earned.
	AccumulatePoints(ctx context.Context, accountID string, spendMinor int64, idempotencyKey IdempotencyKey) (int64, error)
}

// ShopifyDiscountInput describes the discount artifact to mint on Shopify.
type ShopifyDiscountInput struct {
	Code           string
	Title          string
	DiscountType   DiscountType
	AmountMinor    int64
	Percentage     int64
	MaxAmountMinor int64
}

// ShopifyAPI is the boundary contract for the Shopify Admin REST API.
type ShopifyAPI interface {
	// CreateDiscount creates a price rule plus a discount code bound to it
	// and returns the code as accepted by Shopify.
	CreateDiscount(ctx context.Context, input ShopifyDiscountInput) (string, error)
}
