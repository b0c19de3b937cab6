package loyalty

import (
	"context"
	"fmt"
	"testing"
)

// stubStore is an in-memory Store used across the service tests.
type stubStore struct {
	profiles     map[string]*Profile
	accounts     map[string]*Account
	rewards      map[string]*RewardDefinition
	transactions []TransactionRecord
	settings     map[string]string

	nextProfileID int
	nextAccountID int

	decrementCalls int
	incrementCalls int

	appendErr error
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		profiles: map[string]*Profile{},
		accounts: map[string]*Account{},
		rewards:  map[string]*RewardDefinition{},
		settings: map[string]string{},
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) FindProfileByShopifyID(_ context.Context, shopifyID string) (*Profile, error) {
	for _, profile := range store.profiles {
		if profile.ShopifyCustomerID == shopifyID {
			return profile, nil
		}
	}
	return nil, nil
}

func (store *stubStore) FindProfileByEmail(_ context.Context, email string) (*Profile, error) {
	for _, profile := range store.profiles {
		if profile.Email == email {
			return profile, nil
		}
	}
	return nil, nil
}

func (store *stubStore) FindProfileByPhone(_ context.Context, phone string) (*Profile, error) {
	for _, profile := range store.profiles {
		if profile.Phone == phone {
			return profile, nil
		}
	}
	return nil, nil
}

func (store *stubStore) FindProfileByID(_ context.Context, profileID string) (*Profile, error) {
	return store.profiles[profileID], nil
}

func (store *stubStore) SaveProfile(_ context.Context, profile *Profile) error {
	if profile.ID == "" {
		store.nextProfileID++
		profile.ID = fmt.Sprintf("profile-%d", store.nextProfileID)
	}
	store.profiles[profile.ID] = profile
	return nil
}

func (store *stubStore) FindAccountByProfileID(_ context.Context, profileID string) (*Account, error) {
	for _, account := range store.accounts {
		if account.ProfileID == profileID {
			return account, nil
		}
	}
	return nil, nil
}

func (store *stubStore) FindAccountByID(_ context.Context, accountID string) (*Account, error) {
	return store.accounts[accountID], nil
}

func (store *stubStore) SaveAccount(_ context.Context, account *Account) error {
	if account.ID == "" {
		store.nextAccountID++
		account.ID = fmt.Sprintf("account-%d", store.nextAccountID)
	}
	store.accounts[account.ID] = account
	return nil
}

func (store *stubStore) DecrementBalance(_ context.Context, accountID string, points int64) error {
	store.decrementCalls++
	account, ok := store.accounts[accountID]
	if !ok || account.Balance < points {
		return ErrInsufficientPoints
	}
	account.Balance -= points
	return nil
}

func (store *stubStore) IncrementBalance(_ context.Context, accountID string, points int64) error {
	store.incrementCalls++
	account, ok := store.accounts[accountID]
	if !ok {
		return ErrUnknownAccount
	}
	account.Balance += points
	return nil
}

func (store *stubStore) SetBalance(_ context.Context, accountID string, balance int64, lifetimePoints int64) error {
	account, ok := store.accounts[accountID]
	if !ok {
		return ErrUnknownAccount
	}
	account.Balance = balance
	account.LifetimePoints = lifetimePoints
	return nil
}

func (store *stubStore) UpsertReward(_ context.Context, reward *RewardDefinition) error {
	for _, existing := range store.rewards {
		if existing.SquareRewardID == reward.SquareRewardID {
			reward.ID = existing.ID
			store.rewards[existing.ID] = reward
			return nil
		}
	}
	if reward.ID == "" {
		reward.ID = fmt.Sprintf("reward-%d", len(store.rewards)+1)
	}
	store.rewards[reward.ID] = reward
	return nil
}

func (store *stubStore) ListActiveRewards(_ context.Context) ([]RewardDefinition, error) {
	rewards := make([]RewardDefinition, 0, len(store.rewards))
	for _, reward := range store.rewards {
		if reward.Active {
			rewards = append(rewards, *reward)
		}
	}
	return rewards, nil
}

func (store *stubStore) FindRewardByID(_ context.Context, rewardID string) (*RewardDefinition, error) {
	if reward, ok := store.rewards[rewardID]; ok {
		return reward, nil
	}
	for _, reward := range store.rewards {
		if reward.SquareRewardID == rewardID {
			return reward, nil
		}
	}
	return nil, nil
}

func (store *stubStore) AppendTransaction(_ context.Context, record *TransactionRecord) error {
	if store.appendErr != nil {
		return store.appendErr
	}
	if record.ID == "" {
		record.ID = fmt.Sprintf("txn-%d", len(store.transactions)+1)
	}
	store.transactions = append(store.transactions, *record)
	return nil
}

func (store *stubStore) FindRedemptionByCode(_ context.Context, discountCode string) (*TransactionRecord, error) {
	for index := range store.transactions {
		record := store.transactions[index]
		if record.Type == TransactionRedemption && record.DiscountCode == discountCode {
			return &record, nil
		}
	}
	return nil, nil
}

func (store *stubStore) ListTransactions(_ context.Context, accountID string, limit int) ([]TransactionRecord, error) {
	records := make([]TransactionRecord, 0, limit)
	for index := len(store.transactions) - 1; index >= 0 && len(records) < limit; index-- {
		if store.transactions[index].AccountID == accountID {
			records = append(records, store.transactions[index])
		}
	}
	return records, nil
}

func (store *stubStore) Setting(_ context.Context, key string) (string, error) {
	return store.settings[key], nil
}

// stubSquare counts calls and serves canned responses.
type stubSquare struct {
	customer       *SquareCustomer
	loyaltyAccount *SquareLoyaltyAccount
	rewardTiers    []SquareRewardTier
	promotions     []SquarePromotion
	earnedPoints   int64

	reserveErr    error
	redeemErr     error
	accumulateErr error
	promotionsErr error

	searchCustomerCalls int
	createCustomerCalls int
	searchAccountCalls  int
	createAccountCalls  int
	retrieveCalls       int
	reserveCalls        int
	redeemCalls         int
	deleteCalls         int
	accumulateCalls     int
	accumulateKeys      map[string]bool
}

func newStubSquare() *stubSquare {
	return &stubSquare{accumulateKeys: map[string]bool{}}
}

func (square *stubSquare) SearchCustomer(_ context.Context, _ string, _ string) (*SquareCustomer, error) {
	square.searchCustomerCalls++
	return square.customer, nil
}

func (square *stubSquare) GetCustomer(_ context.Context, _ string) (*SquareCustomer, error) {
	return square.customer, nil
}

func (square *stubSquare) CreateCustomer(_ context.Context, input SquareCustomerInput) (*SquareCustomer, error) {
	square.createCustomerCalls++
	return &SquareCustomer{ID: "sq-customer-new", Email: input.Email, Phone: input.Phone}, nil
}

func (square *stubSquare) SearchLoyaltyAccount(_ context.Context, _ string) (*SquareLoyaltyAccount, error) {
	square.searchAccountCalls++
	return square.loyaltyAccount, nil
}

func (square *stubSquare) CreateLoyaltyAccount(_ context.Context, programID string, customerID string, _ string) (*SquareLoyaltyAccount, error) {
	square.createAccountCalls++
	return &SquareLoyaltyAccount{ID: "sq-account-new", ProgramID: programID, CustomerID: customerID}, nil
}

func (square *stubSquare) RetrieveLoyaltyAccount(_ context.Context, accountID string) (*SquareLoyaltyAccount, error) {
	square.retrieveCalls++
	if square.loyaltyAccount != nil {
		return square.loyaltyAccount, nil
	}
	return &SquareLoyaltyAccount{ID: accountID}, nil
}

func (square *stubSquare) ListRewardTiers(_ context.Context, _ string) ([]SquareRewardTier, error) {
	return square.rewardTiers, nil
}

func (square *stubSquare) ListPromotions(_ context.Context, _ string) ([]SquarePromotion, error) {
	if square.promotionsErr != nil {
		return nil, square.promotionsErr
	}
	return square.promotions, nil
}

func (square *stubSquare) ReserveReward(_ context.Context, _ string, _ string, _ IdempotencyKey) (string, error) {
	square.reserveCalls++
	if square.reserveErr != nil {
		return "", square.reserveErr
	}
	return fmt.Sprintf("sq-reward-%d", square.reserveCalls), nil
}

func (square *stubSquare) RedeemReward(_ context.Context, _ string, _ IdempotencyKey) error {
	square.redeemCalls++
	return square.redeemErr
}

func (square *stubSquare) DeleteReward(_ context.Context, _ string) error {
	square.deleteCalls++
	return nil
}

func (square *stubSquare) AccumulatePoints(_ context.Context, _ string, _ int64, key IdempotencyKey) (int64, error) {
	square.accumulateCalls++
	if square.accumulateErr != nil {
		return 0, square.accumulateErr
	}
	if square.accumulateKeys[key.String()] {
		return 0, nil
	}
	square.accumulateKeys[key.String()] = true
	return square.earnedPoints, nil
}

// stubShopify records every discount it was asked to mint.
type stubShopify struct {
	createErr   error
	createCalls int
	inputs      []ShopifyDiscountInput
}

func (shopify *stubShopify) CreateDiscount(_ context.Context, input ShopifyDiscountInput) (string, error) {
	shopify.createCalls++
	if shopify.createErr != nil {
		return "", shopify.createErr
	}
	shopify.inputs = append(shopify.inputs, input)
	return input.Code, nil
}

func mustNewService(test *testing.T, store Store, square SquareAPI, shopify ShopifyAPI, options ...ServiceOption) *Service {
	test.Helper()
	clock := func() int64 { return 1735689600 }
	service, err := NewService(store, square, shopify, "program-1", clock, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustIdempotencyKey(test *testing.T, raw string) IdempotencyKey {
	test.Helper()
	key, err := NewIdempotencyKey(raw)
	if err != nil {
		test.Fatalf("idempotency key %q: %v", raw, err)
	}
	return key
}

func seedAccount(test *testing.T, store *stubStore, balance int64) *Account {
	test.Helper()
	profile := &Profile{Phone: "+15551234567", Email: "seed@example.com"}
	if err := store.SaveProfile(context.Background(), profile); err != nil {
		test.Fatalf("seed profile: %v", err)
	}
	account := &Account{
		ProfileID:       profile.ID,
		SquareAccountID: "sq-account-1",
		ProgramID:       "program-1",
		Balance:         balance,
	}
	if err := store.SaveAccount(context.Background(), account); err != nil {
		test.Fatalf("seed account: %v", err)
	}
	return account
}

func seedReward(test *testing.T, store *stubStore, squareRewardID string, points int64, amountMinor int64) *RewardDefinition {
	test.Helper()
	reward := &RewardDefinition{
		SquareRewardID: squareRewardID,
		Name:           fmt.Sprintf("%d point reward", points),
		PointsRequired: points,
		DiscountType:   DiscountFixedAmount,
		AmountMinor:    amountMinor,
		Active:         true,
	}
	if err := store.UpsertReward(context.Background(), reward); err != nil {
		test.Fatalf("seed reward: %v", err)
	}
	return reward
}
