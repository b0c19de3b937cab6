package loyalty

import (
	"context"
	"strings"
)

// BindAccount finds or creates the Square loyalty account for a resolved
// profile and returns it with the rewards affordable at its balance.
//
// When the profile already owns a mirrored account row, its last-synced
// balance is treated as current; no live refresh is forced. That staleness
// is a deliberate latency tradeoff.
func (service *Service) BindAccount(ctx context.Context, profileID string, rawPhone string) (*Account, []RewardDefinition, error) {
	profile, err := service.store.FindProfileByID(ctx, profileID)
	if err != nil {
		return nil, nil, err
	}
	if profile == nil {
		return nil, nil, ErrUnknownProfile
	}

	account, err := service.store.FindAccountByProfileID(ctx, profile.ID)
	if err != nil {
		return nil, nil, err
	}
	if account == nil {
		if strings.TrimSpace(rawPhone) == "" && profile.Phone == "" {
			return nil, nil, ErrPhoneRequired
		}
		phoneValue := profile.Phone
		if strings.TrimSpace(rawPhone) != "" {
			phone, phoneErr := NewPhoneNumber(rawPhone)
			if phoneErr != nil {
				return nil, nil, phoneErr
			}
			phoneValue = phone.String()
		}
		account, err = service.enrollAccount(ctx, profile, phoneValue)
		if err != nil {
			service.logOperation(ctx, OperationLog{
				Operation: operationBind,
				ProfileID: profile.ID,
				Error:     err,
			})
			return nil, nil, err
		}
	}

	rewards, err := service.AvailableRewards(ctx, account.Balance)
	if err != nil {
		return nil, nil, err
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationBind,
		ProfileID: profile.ID,
		AccountID: account.ID,
	})
	return account, rewards, nil
}

// enrollAccount locates or creates the Square-side customer and loyalty
// account, then persists the mirrored row.
func (service *Service) enrollAccount(ctx context.Context, profile *Profile, phone string) (*Account, error) {
	squareAccount, err := service.square.SearchLoyaltyAccount(ctx, phone)
	if err != nil {
		return nil, WrapError(operationBind, "square_account", "search", err)
	}
	if squareAccount == nil {
		customerID := profile.SquareCustomerID
		if customerID == "" {
			customer, createErr := service.square.CreateCustomer(ctx, SquareCustomerInput{
				GivenName:  profile.GivenName,
				FamilyName: profile.FamilyName,
				Email:      profile.Email,
				Phone:      phone,
			})
			if createErr != nil {
				return nil, WrapError(operationBind, "square_customer", "create", createErr)
			}
			customerID = customer.ID
		}
		squareAccount, err = service.square.CreateLoyaltyAccount(ctx, service.programID, customerID, phone)
		if err != nil {
			return nil, WrapError(operationBind, "square_account", "create", err)
		}
	}

	account := &Account{
		ProfileID:       profile.ID,
		SquareAccountID: squareAccount.ID,
		ProgramID:       squareAccount.ProgramID,
		Balance:         squareAccount.Balance,
		LifetimePoints:  squareAccount.LifetimePoints,
	}
	if err := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		if squareAccount.CustomerID != "" && profile.SquareCustomerID == "" {
			profile.SquareCustomerID = squareAccount.CustomerID
			if saveErr := txStore.SaveProfile(ctx, profile); saveErr != nil {
				return saveErr
			}
		}
		return txStore.SaveAccount(ctx, account)
	}); err != nil {
		return nil, err
	}
	return account, nil
}

// RefreshBalance re-reads the authoritative balance from Square and writes
// it through to the mirrored row.
func (service *Service) RefreshBalance(ctx context.Context, accountID string) (*Account, error) {
	account, err := service.store.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrUnknownAccount
	}
	squareAccount, err := service.square.RetrieveLoyaltyAccount(ctx, account.SquareAccountID)
	if err != nil {
		return nil, WrapError(operationBind, "square_account", "retrieve", err)
	}
	if err := service.store.SetBalance(ctx, account.ID, squareAccount.Balance, squareAccount.LifetimePoints); err != nil {
		return nil, err
	}
	account.Balance = squareAccount.Balance
	account.LifetimePoints = squareAccount.LifetimePoints
	return account, nil
}
