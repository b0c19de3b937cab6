package gormstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/copperkettle/loyaltybridge/pkg/loyalty"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19

	errorOperationStore     = "store"
	errorSubjectProfile     = "profile"
	errorSubjectAccount     = "account"
	errorSubjectReward      = "reward"
	errorSubjectTransaction = "transaction"
	errorSubjectSetting     = "setting"
	errorCodeFind           = "find"
	errorCodeSave           = "save"
	errorCodeUpsert         = "upsert"
	errorCodeInsert         = "insert"
	errorCodeDuplicate      = "duplicate"
	errorCodeDecrement      = "decrement"
	errorCodeIncrement      = "increment"
	errorCodeSetBalance     = "set_balance"
	errorCodeList           = "list"
)

// Store implements loyalty.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the five logical tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Profile{},
		&LoyaltyAccount{},
		&LoyaltyReward{},
		&LoyaltyTransaction{},
		&AppSetting{},
	)
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore loyalty.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) FindProfileByShopifyID(ctx context.Context, shopifyCustomerID string) (*loyalty.Profile, error) {
	return store.findProfile(ctx, "shopify_customer_id = ?", shopifyCustomerID)
}

func (store *Store) FindProfileByEmail(ctx context.Context, email string) (*loyalty.Profile, error) {
	return store.findProfile(ctx, "email = ?", email)
}

func (store *Store) FindProfileByPhone(ctx context.Context, phone string) (*loyalty.Profile, error) {
	return store.findProfile(ctx, "phone = ?", phone)
}

func (store *Store) FindProfileByID(ctx context.Context, profileID string) (*loyalty.Profile, error) {
	return store.findProfile(ctx, "profile_id = ?", profileID)
}

func (store *Store) findProfile(ctx context.Context, query string, argument string) (*loyalty.Profile, error) {
	var model Profile
	err := store.db.WithContext(ctx).Where(query, argument).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreError(errorSubjectProfile, errorCodeFind, err)
	}
	return profileFromModel(model), nil
}

func (store *Store) SaveProfile(ctx context.Context, profile *loyalty.Profile) error {
	model := profileToModel(profile)
	var err error
	if profile.ID == "" {
		err = store.db.WithContext(ctx).Create(model).Error
	} else {
		err = store.db.WithContext(ctx).
			Model(&Profile{}).
			Where("profile_id = ?", profile.ID).
			Updates(map[string]any{
				"shopify_customer_id": model.ShopifyCustomerID,
				"square_customer_id":  model.SquareCustomerID,
				"email":               model.Email,
				"phone":               model.Phone,
				"given_name":          model.GivenName,
				"family_name":         model.FamilyName,
				"updated_at":          time.Now().UTC(),
			}).Error
	}
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectProfile, errorCodeDuplicate, err)
	}
	if err != nil {
		return wrapStoreError(errorSubjectProfile, errorCodeSave, err)
	}
	profile.ID = model.ProfileID
	return nil
}

func (store *Store) FindAccountByProfileID(ctx context.Context, profileID string) (*loyalty.Account, error) {
	return store.findAccount(ctx, "profile_id = ?", profileID)
}

func (store *Store) FindAccountByID(ctx context.Context, accountID string) (*loyalty.Account, error) {
	return store.findAccount(ctx, "account_id = ?", accountID)
}

func (store *Store) findAccount(ctx context.Context, query string, argument string) (*loyalty.Account, error) {
	var model LoyaltyAccount
	err := store.db.WithContext(ctx).Where(query, argument).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreError(errorSubjectAccount, errorCodeFind, err)
	}
	return accountFromModel(model), nil
}

func (store *Store) SaveAccount(ctx context.Context, account *loyalty.Account) error {
	model := LoyaltyAccount{
		AccountID:       account.ID,
		ProfileID:       account.ProfileID,
		SquareAccountID: account.SquareAccountID,
		ProgramID:       account.ProgramID,
		Balance:         account.Balance,
		LifetimePoints:  account.LifetimePoints,
	}
	var err error
	if account.ID == "" {
		err = store.db.WithContext(ctx).Create(&model).Error
	} else {
		err = store.db.WithContext(ctx).
			Model(&LoyaltyAccount{}).
			Where("account_id = ?", account.ID).
			Updates(map[string]any{
				"square_account_id": model.SquareAccountID,
				"program_id":        model.ProgramID,
				"balance":           model.Balance,
				"lifetime_points":   model.LifetimePoints,
				"updated_at":        time.Now().UTC(),
			}).Error
	}
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectAccount, errorCodeDuplicate, err)
	}
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeSave, err)
	}
	account.ID = model.AccountID
	return nil
}

// DecrementBalance atomically lowers the cached balance, guarding against
// concurrent redemptions: the conditional update either lands fully or not
// at all, and zero affected rows means the points are not there.
func (store *Store) DecrementBalance(ctx context.Context, accountID string, points int64) error {
	result := store.db.WithContext(ctx).
		Model(&LoyaltyAccount{}).
		Where("account_id = ? AND balance >= ?", accountID, points).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance - ?", points),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeDecrement, result.Error)
	}
	if result.RowsAffected == 0 {
		return loyalty.ErrInsufficientPoints
	}
	return nil
}

func (store *Store) IncrementBalance(ctx context.Context, accountID string, points int64) error {
	result := store.db.WithContext(ctx).
		Model(&LoyaltyAccount{}).
		Where("account_id = ?", accountID).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", points),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeIncrement, result.Error)
	}
	if result.RowsAffected == 0 {
		return loyalty.ErrUnknownAccount
	}
	return nil
}

func (store *Store) SetBalance(ctx context.Context, accountID string, balance int64, lifetimePoints int64) error {
	result := store.db.WithContext(ctx).
		Model(&LoyaltyAccount{}).
		Where("account_id = ?", accountID).
		Updates(map[string]any{
			"balance":         balance,
			"lifetime_points": lifetimePoints,
			"updated_at":      time.Now().UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeSetBalance, result.Error)
	}
	if result.RowsAffected == 0 {
		return loyalty.ErrUnknownAccount
	}
	return nil
}

// UpsertReward inserts or overwrites a catalog row keyed by the Square
// reward id. Running twice with identical upstream data is a no-op.
func (store *Store) UpsertReward(ctx context.Context, reward *loyalty.RewardDefinition) error {
	model := LoyaltyReward{
		RewardID:       reward.ID,
		SquareRewardID: reward.SquareRewardID,
		Name:           reward.Name,
		PointsRequired: reward.PointsRequired,
		DiscountType:   string(reward.DiscountType),
		AmountMinor:    reward.AmountMinor,
		Percentage:     reward.Percentage,
		MaxAmountMinor: reward.MaxAmountMinor,
		Scope:          string(reward.Scope),
		Active:         reward.Active,
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "square_reward_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name",
				"points_required",
				"discount_type",
				"amount_minor",
				"percentage",
				"max_amount_minor",
				"scope",
				"active",
				"updated_at",
			}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectReward, errorCodeUpsert, err)
	}
	reward.ID = model.RewardID
	return nil
}

func (store *Store) ListActiveRewards(ctx context.Context) ([]loyalty.RewardDefinition, error) {
	var rows []LoyaltyReward
	err := store.db.WithContext(ctx).
		Where("active = ?", true).
		Order("points_required ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectReward, errorCodeList, err)
	}
	rewards := make([]loyalty.RewardDefinition, 0, len(rows))
	for _, row := range rows {
		rewards = append(rewards, rewardFromModel(row))
	}
	return rewards, nil
}

func (store *Store) FindRewardByID(ctx context.Context, rewardID string) (*loyalty.RewardDefinition, error) {
	var model LoyaltyReward
	err := store.db.WithContext(ctx).
		Where("reward_id = ? OR square_reward_id = ?", rewardID, rewardID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreError(errorSubjectReward, errorCodeFind, err)
	}
	reward := rewardFromModel(model)
	return &reward, nil
}

func (store *Store) AppendTransaction(ctx context.Context, record *loyalty.TransactionRecord) error {
	model := LoyaltyTransaction{
		TransactionID: record.ID,
		AccountID:     record.AccountID,
		Type:          string(record.Type),
		Points:        record.Points,
		Description:   record.Description,
		ExternalID:    record.ExternalID,
		DiscountCode:  optionalString(record.DiscountCode),
		Metadata:      datatypesJSON(record.MetadataJSON),
		CreatedAt:     time.Unix(record.CreatedUnixUTC, 0).UTC(),
	}
	if model.CreatedAt.IsZero() || record.CreatedUnixUTC == 0 {
		model.CreatedAt = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectTransaction, errorCodeDuplicate, err)
	}
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
	}
	record.ID = model.TransactionID
	return nil
}

func (store *Store) FindRedemptionByCode(ctx context.Context, discountCode string) (*loyalty.TransactionRecord, error) {
	var model LoyaltyTransaction
	err := store.db.WithContext(ctx).
		Where("discount_code = ? AND type = ?", discountCode, string(loyalty.TransactionRedemption)).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeFind, err)
	}
	record := transactionFromModel(model)
	return &record, nil
}

func (store *Store) ListTransactions(ctx context.Context, accountID string, limit int) ([]loyalty.TransactionRecord, error) {
	var rows []LoyaltyTransaction
	query := store.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	records := make([]loyalty.TransactionRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, transactionFromModel(row))
	}
	return records, nil
}

func (store *Store) Setting(ctx context.Context, key string) (string, error) {
	var model AppSetting
	err := store.db.WithContext(ctx).Where("key = ?", key).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", wrapStoreError(errorSubjectSetting, errorCodeFind, err)
	}
	return model.Value, nil
}

// PutSetting stores a key/value setting (seed and admin tooling).
func (store *Store) PutSetting(ctx context.Context, key string, value string) error {
	model := AppSetting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectSetting, errorCodeUpsert, err)
	}
	return nil
}

func profileFromModel(model Profile) *loyalty.Profile {
	return &loyalty.Profile{
		ID:                model.ProfileID,
		ShopifyCustomerID: stringOrEmpty(model.ShopifyCustomerID),
		SquareCustomerID:  stringOrEmpty(model.SquareCustomerID),
		Email:             stringOrEmpty(model.Email),
		Phone:             stringOrEmpty(model.Phone),
		GivenName:         model.GivenName,
		FamilyName:        model.FamilyName,
	}
}

func profileToModel(profile *loyalty.Profile) *Profile {
	return &Profile{
		ProfileID:         profile.ID,
		ShopifyCustomerID: optionalString(profile.ShopifyCustomerID),
		SquareCustomerID:  optionalString(profile.SquareCustomerID),
		Email:             optionalString(profile.Email),
		Phone:             optionalString(profile.Phone),
		GivenName:         profile.GivenName,
		FamilyName:        profile.FamilyName,
	}
}

func accountFromModel(model LoyaltyAccount) *loyalty.Account {
	return &loyalty.Account{
		ID:              model.AccountID,
		ProfileID:       model.ProfileID,
		SquareAccountID: model.SquareAccountID,
		ProgramID:       model.ProgramID,
		Balance:         model.Balance,
		LifetimePoints:  model.LifetimePoints,
	}
}

func rewardFromModel(model LoyaltyReward) loyalty.RewardDefinition {
	return loyalty.RewardDefinition{
		ID:             model.RewardID,
		SquareRewardID: model.SquareRewardID,
		Name:           model.Name,
		PointsRequired: model.PointsRequired,
		DiscountType:   loyalty.DiscountType(model.DiscountType),
		AmountMinor:    model.AmountMinor,
		Percentage:     model.Percentage,
		MaxAmountMinor: model.MaxAmountMinor,
		Scope:          loyalty.RewardTierScope(model.Scope),
		Active:         model.Active,
	}
}

func transactionFromModel(model LoyaltyTransaction) loyalty.TransactionRecord {
	return loyalty.TransactionRecord{
		ID:             model.TransactionID,
		AccountID:      model.AccountID,
		Type:           loyalty.TransactionType(model.Type),
		Points:         model.Points,
		Description:    model.Description,
		ExternalID:     model.ExternalID,
		DiscountCode:   stringOrEmpty(model.DiscountCode),
		MetadataJSON:   string(model.Metadata),
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}
}

func datatypesJSON(raw string) datatypes.JSON {
	if strings.TrimSpace(raw) == "" {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON([]byte(raw))
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func stringOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func wrapStoreError(subject string, code string, err error) error {
	return loyalty.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
