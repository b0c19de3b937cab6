package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Profile represents the profiles table: one end-customer across the
// Shopify and Square identity systems.
type Profile struct {
	ProfileID         string    `gorm:"type:uuid;primaryKey"`
	ShopifyCustomerID *string   `gorm:"uniqueIndex:uniq_profiles_shopify_id"`
	SquareCustomerID  *string   `gorm:"index:idx_profiles_square_id"`
	Email             *string   `gorm:"index:idx_profiles_email"`
	Phone             *string   `gorm:"index:idx_profiles_phone"`
	GivenName         string    `gorm:""`
	FamilyName        string    `gorm:""`
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

func (Profile) TableName() string { return "profiles" }

func (profile *Profile) BeforeCreate(tx *gorm.DB) error {
	if profile.ProfileID == "" {
		profile.ProfileID = uuid.NewString()
	}
	return nil
}

// LoyaltyAccount mirrors the loyalty_accounts table. Balance is the cached
// Square balance, never the source of truth.
type LoyaltyAccount struct {
	AccountID       string    `gorm:"type:uuid;primaryKey"`
	ProfileID       string    `gorm:"type:uuid;not null;uniqueIndex:uniq_accounts_profile"`
	SquareAccountID string    `gorm:"not null;index:idx_accounts_square_id"`
	ProgramID       string    `gorm:"not null"`
	Balance         int64     `gorm:"not null;default:0"`
	LifetimePoints  int64     `gorm:"not null;default:0"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (LoyaltyAccount) TableName() string { return "loyalty_accounts" }

func (account *LoyaltyAccount) BeforeCreate(tx *gorm.DB) error {
	if account.AccountID == "" {
		account.AccountID = uuid.NewString()
	}
	return nil
}

// LoyaltyReward mirrors the loyalty_rewards table (the cached Square reward
// catalog). Rows are upserted by square_reward_id and deactivated rather
// than deleted.
type LoyaltyReward struct {
	RewardID       string    `gorm:"type:uuid;primaryKey"`
	SquareRewardID string    `gorm:"not null;uniqueIndex:uniq_rewards_square_id"`
	Name           string    `gorm:"not null"`
	PointsRequired int64     `gorm:"not null"`
	DiscountType   string    `gorm:"not null"`
	AmountMinor    int64     `gorm:"not null;default:0"`
	Percentage     int64     `gorm:"not null;default:0"`
	MaxAmountMinor int64     `gorm:"not null;default:0"`
	Scope          string    `gorm:""`
	Active         bool      `gorm:"not null;default:true"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (LoyaltyReward) TableName() string { return "loyalty_rewards" }

func (reward *LoyaltyReward) BeforeCreate(tx *gorm.DB) error {
	if reward.RewardID == "" {
		reward.RewardID = uuid.NewString()
	}
	return nil
}

// LoyaltyTransaction mirrors the loyalty_transactions table, an append-only
// ledger of balance-affecting events.
type LoyaltyTransaction struct {
	TransactionID string         `gorm:"type:uuid;primaryKey"`
	AccountID     string         `gorm:"type:uuid;not null;index:idx_transactions_account_created,priority:1"`
	Type          string         `gorm:"not null"`
	Points        int64          `gorm:"not null"`
	Description   string         `gorm:""`
	ExternalID    string         `gorm:""`
	DiscountCode  *string        `gorm:"uniqueIndex:uniq_transactions_discount_code"`
	Metadata      datatypes.JSON `gorm:"not null"`
	CreatedAt     time.Time      `gorm:"not null;index:idx_transactions_account_created,priority:2"`
}

func (LoyaltyTransaction) TableName() string { return "loyalty_transactions" }

func (record *LoyaltyTransaction) BeforeCreate(tx *gorm.DB) error {
	if record.TransactionID == "" {
		record.TransactionID = uuid.NewString()
	}
	return nil
}

// AppSetting mirrors the app_settings key/value table
// (square_environment lives here).
type AppSetting struct {
	Key       string    `gorm:"primaryKey"`
	Value     string    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (AppSetting) TableName() string { return "app_settings" }
