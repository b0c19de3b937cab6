package loyalty

import "context"

// Account returns a mirrored account by id along with the rewards
// affordable at its cached balance.
func (service *Service) Account(ctx context.Context, accountID string) (*Account, []RewardDefinition, error) {
	account, err := service.store.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	if account == nil {
		return nil, nil, ErrUnknownAccount
	}
	rewards, err := service.AvailableRewards(ctx, account.Balance)
	if err != nil {
		return nil, nil, err
	}
	return account, rewards, nil
}

// Transactions lists the most recent ledger rows for an account.
func (service *Service) Transactions(ctx context.Context, accountID string, limit int) ([]TransactionRecord, error) {
	account, err := service.store.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrUnknownAccount
	}
	return service.store.ListTransactions(ctx, account.ID, limit)
}
