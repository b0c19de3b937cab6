package loyalty

import (
	"context"
	"fmt"
)

// Accrue reports an order spend to Square and mirrors the earned points
// locally. The order id scopes the idempotency key, so webhook redeliveries
// do not double-earn. The balance written back comes from a post-accumulate
// resync against Square, never from local arithmetic.
func (service *Service) Accrue(ctx context.Context, identity Identity, orderID string, spendMinor int64) (*Account, int64, error) {
	if orderID == "" {
		return nil, 0, fmt.Errorf("%w: order id is required", ErrInvalidIdempotencyKey)
	}
	if spendMinor <= 0 {
		return nil, 0, nil
	}

	identity = normalizeIdentity(identity)
	var normalizedPhone string
	if identity.Phone != "" {
		phone, err := NewPhoneNumber(identity.Phone)
		if err == nil {
			normalizedPhone = phone.String()
		}
	}
	profile, err := findExistingProfile(ctx, service.store, identity, normalizedPhone)
	if err != nil {
		return nil, 0, err
	}
	if profile == nil {
		return nil, 0, ErrUnknownProfile
	}
	account, err := service.store.FindAccountByProfileID(ctx, profile.ID)
	if err != nil {
		return nil, 0, err
	}
	if account == nil {
		return nil, 0, ErrUnknownAccount
	}

	accrueKey, err := NewIdempotencyKey("accrue:" + orderID)
	if err != nil {
		return nil, 0, err
	}
	earned, err := service.square.AccumulatePoints(ctx, account.SquareAccountID, spendMinor, accrueKey)
	if err != nil {
		wrapped := WrapError(operationAccrue, "square_points", "accumulate", err)
		service.logOperation(ctx, OperationLog{
			Operation: operationAccrue,
			ProfileID: profile.ID,
			AccountID: account.ID,
			Error:     wrapped,
		})
		return nil, 0, wrapped
	}

	if earned > 0 {
		record := &TransactionRecord{
			AccountID:      account.ID,
			Type:           TransactionEarn,
			Points:         earned,
			Description:    fmt.Sprintf("Earned on order %s", orderID),
			ExternalID:     orderID,
			CreatedUnixUTC: service.nowFn(),
		}
		if err := service.store.AppendTransaction(ctx, record); err != nil {
			return nil, 0, err
		}
	}

	refreshed, err := service.RefreshBalance(ctx, account.ID)
	if err != nil {
		// Accumulation succeeded upstream; a failed resync only leaves the
		// cache stale.
		refreshed = account
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationAccrue,
		ProfileID: profile.ID,
		AccountID: account.ID,
		Points:    earned,
	})
	return refreshed, earned, nil
}
