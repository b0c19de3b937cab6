package loyalty

import (
	"context"
	"strings"
	"time"
	"unicode"
)

// PhoneNumber is a normalized E.164-ish phone value.
type PhoneNumber struct {
	value string
}

// NewPhoneNumber strips formatting and normalizes to a +-prefixed number.
// Ten-digit inputs are treated as US numbers (+1), eleven digits with a
// leading 1 keep their country code, and anything already starting with +
// passes through untouched. Other lengths get a bare + prefix; no true
// validation is attempted.
func NewPhoneNumber(raw string) (PhoneNumber, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return PhoneNumber{}, ErrInvalidPhoneNumber
	}
	if strings.HasPrefix(trimmed, "+") {
		return PhoneNumber{value: trimmed}, nil
	}
	var digits strings.Builder
	for _, character := range trimmed {
		if unicode.IsDigit(character) {
			digits.WriteRune(character)
		}
	}
	cleaned := digits.String()
	if cleaned == "" {
		return PhoneNumber{}, ErrInvalidPhoneNumber
	}
	switch {
	case len(cleaned) == 10:
		return PhoneNumber{value: "+1" + cleaned}, nil
	case len(cleaned) == 11 && strings.HasPrefix(cleaned, "1"):
		return PhoneNumber{value: "+" + cleaned}, nil
	default:
		return PhoneNumber{value: "+" + cleaned}, nil
	}
}

// String returns the normalized phone number.
func (phone PhoneNumber) String() string {
	return phone.value
}

// IsZero reports whether the phone number is unset.
func (phone PhoneNumber) IsZero() bool {
	return phone.value == ""
}

// IdempotencyKey scopes duplicate detection on external calls.
type IdempotencyKey struct {
	value string
}

// NewIdempotencyKey validates and normalizes an idempotency key.
func NewIdempotencyKey(raw string) (IdempotencyKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return IdempotencyKey{}, ErrInvalidIdempotencyKey
	}
	return IdempotencyKey{value: trimmed}, nil
}

// String returns the normalized key.
func (key IdempotencyKey) String() string {
	return key.value
}

// Identity carries the identifiers a caller may supply to resolve a profile.
// At least one of the three fields must be present.
type Identity struct {
	Phone             string
	Email             string
	ShopifyCustomerID string
}

// Profile is one end-customer across both identity systems.
type Profile struct {
	ID                string
	ShopifyCustomerID string
	SquareCustomerID  string
	Email             string
	Phone             string
	GivenName         string
	FamilyName        string
}

// Account mirrors a Square loyalty account. Balance is a cache of the last
// value fetched or written against Square; Square stays authoritative.
type Account struct {
	ID              string
	ProfileID       string
	SquareAccountID string
	ProgramID       string
	Balance         int64
	LifetimePoints  int64
}

// DiscountType enumerates reward discount shapes.
type DiscountType string

const (
	DiscountFixedAmount DiscountType = "FIXED_AMOUNT"
	DiscountPercentage  DiscountType = "PERCENTAGE"
)

// RewardDefinition is a cached Square reward tier. Scope keeps the
// Square-side discount target so the orchestrator knows when a Shopify
// price rule cannot express it directly.
type RewardDefinition struct {
	ID             string
	SquareRewardID string
	Name           string
	PointsRequired int64
	DiscountType   DiscountType
	AmountMinor    int64
	Percentage     int64
	MaxAmountMinor int64
	Scope          RewardTierScope
	Active         bool
}

// TransactionType enumerates ledger row kinds.
type TransactionType string

const (
	TransactionEarn       TransactionType = "EARN"
	TransactionRedeem     TransactionType = "REDEEM"
	TransactionRedemption TransactionType = "REDEMPTION"
)

// TransactionRecord is an append-only ledger row. The local ledger is
// advisory; reconciliation against Square is best effort.
type TransactionRecord struct {
	ID             string
	AccountID      string
	Type           TransactionType
	Points         int64
	Description    string
	ExternalID     string
	DiscountCode   string
	MetadataJSON   string
	CreatedUnixUTC int64
}

// Promotion is a transient view of a Square loyalty promotion. Never
// persisted; recomputed on every call.
type Promotion struct {
	ID               string
	Name             string
	Status           string
	IncentiveType    DiscountType
	Percentage       int64
	FixedAmountMinor int64
	MinimumSpend     int64
	StartsAt         *time.Time
	EndsAt           *time.Time
}

// EvaluatedPromotion annotates a promotion with the eligibility verdict for
// one customer.
type EvaluatedPromotion struct {
	Promotion
	CustomerEligible  bool
	EligibilityReason string
}

// Eligibility reason codes.
const (
	ReasonBirthdayMonth         = "birthday_month"
	ReasonBirthdayMonthMismatch = "birthday_month_mismatch"
	ReasonGeneralPromotion      = "general_promotion"
	ReasonInactive              = "promotion_inactive"
	ReasonOutsideWindow         = "outside_date_window"
)

// Redemption is the result of a successful reserve-and-issue sequence.
type Redemption struct {
	DiscountCode    string
	RewardID        string
	SquareRewardID  string
	PointsSpent     int64
	Balance         int64
	ManualSetupNote string
}

// SyncResult reports a catalog sync pass.
type SyncResult struct {
	Synced  int
	Skipped int
	Total   int
}

// FinalizeResult reports how many discount codes a webhook finalized.
type FinalizeResult struct {
	Processed int
	Failed    int
}

// Store is the persistence contract used by Service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	FindProfileByShopifyID(ctx context.Context, shopifyCustomerID string) (*Profile, error)
	FindProfileByEmail(ctx context.Context, email string) (*Profile, error)
	FindProfileByPhone(ctx context.Context, phone string) (*Profile, error)
	FindProfileByID(ctx context.Context, profileID string) (*Profile, error)
	SaveProfile(ctx context.Context, profile *Profile) error

	FindAccountByProfileID(ctx context.Context, profileID string) (*Account, error)
	FindAccountByID(ctx context.Context, accountID string) (*Account, error)
	SaveAccount(ctx context.Context, account *Account) error
	DecrementBalance(ctx context.Context, accountID string, points int64) error
	IncrementBalance(ctx context.Context, accountID string, points int64) error
	SetBalance(ctx context.Context, accountID string, balance int64, lifetimePoints int64) error

	UpsertReward(ctx context.Context, reward *RewardDefinition) error
	ListActiveRewards(ctx context.Context) ([]RewardDefinition, error)
	FindRewardByID(ctx context.Context, rewardID string) (*RewardDefinition, error)

	AppendTransaction(ctx context.Context, record *TransactionRecord) error
	FindRedemptionByCode(ctx context.Context, discountCode string) (*TransactionRecord, error)
	ListTransactions(ctx context.Context, accountID string, limit int) ([]TransactionRecord, error)

	Setting(ctx context.Context, key string) (string, error)
}
