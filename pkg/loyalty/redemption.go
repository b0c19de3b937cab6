package loyalty

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const manualScopeNote = "Square scopes this reward to specific items or a category. Shopify price rules cannot reference Square catalog ids, so the discount was created storewide; restrict it manually in the Shopify admin if needed."

// Redeem runs the reserve-and-issue sequence for one reward: lock the points
// locally, reserve them on Square, mint the Shopify discount, then append
// the REDEMPTION ledger row.
//
// The local conditional decrement serializes concurrent attempts per
// account; a zero-row update means insufficient points and no external call
// is made. Any later failure reverses the decrement (and deletes the Square
// reservation when one exists), so a redemption that returns no discount
// code leaves the balance and the ledger untouched.
func (service *Service) Redeem(ctx context.Context, accountID string, rewardID string, idempotencyKey IdempotencyKey) (*Redemption, error) {
	redemption, err := service.redeem(ctx, accountID, rewardID, idempotencyKey)
	entry := OperationLog{
		Operation: operationRedeem,
		AccountID: accountID,
		RewardID:  rewardID,
		Error:     err,
	}
	if redemption != nil {
		entry.DiscountCode = redemption.DiscountCode
		entry.Points = redemption.PointsSpent
	}
	service.logOperation(ctx, entry)
	return redemption, err
}

func (service *Service) redeem(ctx context.Context, accountID string, rewardID string, idempotencyKey IdempotencyKey) (*Redemption, error) {
	account, err := service.store.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrUnknownAccount
	}
	reward, err := service.store.FindRewardByID(ctx, rewardID)
	if err != nil {
		return nil, err
	}
	if reward == nil || !reward.Active {
		return nil, ErrUnknownReward
	}
	if account.Balance < reward.PointsRequired {
		return nil, ErrInsufficientPoints
	}

	// The conditional decrement is the concurrency guard: two simultaneous
	// attempts cannot both pass once the first one lands.
	if err := service.store.DecrementBalance(ctx, account.ID, reward.PointsRequired); err != nil {
		return nil, err
	}

	squareRewardID, err := service.square.ReserveReward(ctx, account.SquareAccountID, reward.SquareRewardID, idempotencyKey)
	if err != nil {
		service.restoreBalance(ctx, account.ID, reward.PointsRequired)
		return nil, WrapError(operationRedeem, "square_reward", "reserve", err)
	}

	code, err := service.generateCode()
	if err != nil {
		service.releaseReservation(ctx, squareRewardID)
		service.restoreBalance(ctx, account.ID, reward.PointsRequired)
		return nil, err
	}
	input, manualNote := discountInputForReward(reward, code)
	issuedCode, err := service.shopify.CreateDiscount(ctx, input)
	if err != nil {
		service.releaseReservation(ctx, squareRewardID)
		service.restoreBalance(ctx, account.ID, reward.PointsRequired)
		return nil, WrapError(operationRedeem, "shopify_discount", "create", err)
	}

	record := &TransactionRecord{
		AccountID:      account.ID,
		Type:           TransactionRedemption,
		Points:         -reward.PointsRequired,
		Description:    fmt.Sprintf("Redeemed %s", reward.Name),
		ExternalID:     squareRewardID,
		DiscountCode:   issuedCode,
		CreatedUnixUTC: service.nowFn(),
	}
	if err := service.store.AppendTransaction(ctx, record); err != nil {
		// The discount code and the Square reservation already exist; the
		// points are spent whether or not the ledger row lands. Log the gap
		// and hand the code back.
		service.logOperation(ctx, OperationLog{
			Operation:    operationRedeem,
			AccountID:    account.ID,
			RewardID:     reward.ID,
			DiscountCode: issuedCode,
			Status:       operationStatusError,
			Error:        WrapError(operationRedeem, "transaction", "append", err),
		})
	}

	updated, err := service.store.FindAccountByID(ctx, account.ID)
	balance := account.Balance - reward.PointsRequired
	if err == nil && updated != nil {
		balance = updated.Balance
	}
	return &Redemption{
		DiscountCode:    issuedCode,
		RewardID:        reward.ID,
		SquareRewardID:  squareRewardID,
		PointsSpent:     reward.PointsRequired,
		Balance:         balance,
		ManualSetupNote: manualNote,
	}, nil
}

func (service *Service) restoreBalance(ctx context.Context, accountID string, points int64) {
	if err := service.store.IncrementBalance(ctx, accountID, points); err != nil {
		service.logOperation(ctx, OperationLog{
			Operation: operationRedeem,
			AccountID: accountID,
			Points:    points,
			Status:    operationStatusError,
			Error:     WrapError(operationRedeem, "balance", "restore", err),
		})
	}
}

func (service *Service) releaseReservation(ctx context.Context, squareRewardID string) {
	if err := service.square.DeleteReward(ctx, squareRewardID); err != nil {
		service.logOperation(ctx, OperationLog{
			Operation: operationRedeem,
			RewardID:  squareRewardID,
			Status:    operationStatusError,
			Error:     WrapError(operationRedeem, "square_reward", "delete", err),
		})
	}
}

// discountInputForReward maps a reward's discount shape onto a Shopify price
// rule. Item and category scopes degrade to a storewide rule with a manual
// configuration note.
func discountInputForReward(reward *RewardDefinition, code string) (ShopifyDiscountInput, string) {
	input := ShopifyDiscountInput{
		Code:           code,
		Title:          reward.Name,
		DiscountType:   reward.DiscountType,
		AmountMinor:    reward.AmountMinor,
		Percentage:     reward.Percentage,
		MaxAmountMinor: reward.MaxAmountMinor,
	}
	if reward.Scope == ScopeItemVariation || reward.Scope == ScopeCategory {
		return input, manualScopeNote
	}
	return input, ""
}

// Finalize converts reservations into permanent Square redemptions for the
// discount codes carried by an order webhook. Codes without the expected
// prefix are ignored without any Square call. A reservation Square already
// finalized is tolerated: logged and swallowed. Individual failures never
// abort the pass; the webhook response stays successful either way.
func (service *Service) Finalize(ctx context.Context, discountCodes []string) (FinalizeResult, error) {
	var result FinalizeResult
	for _, code := range discountCodes {
		trimmed := strings.TrimSpace(code)
		if !strings.HasPrefix(trimmed, DiscountCodePrefix) {
			continue
		}
		record, err := service.store.FindRedemptionByCode(ctx, trimmed)
		if err != nil {
			result.Failed++
			service.logOperation(ctx, OperationLog{
				Operation:    operationFinalize,
				DiscountCode: trimmed,
				Error:        err,
			})
			continue
		}
		if record == nil {
			result.Failed++
			service.logOperation(ctx, OperationLog{
				Operation:    operationFinalize,
				DiscountCode: trimmed,
				Error:        ErrUnknownRedemption,
			})
			continue
		}
		finalizeKey, err := NewIdempotencyKey("finalize:" + trimmed)
		if err != nil {
			result.Failed++
			continue
		}
		err = service.square.RedeemReward(ctx, record.ExternalID, finalizeKey)
		if err != nil && !errors.Is(err, ErrRewardAlreadyRedeemed) {
			result.Failed++
			service.logOperation(ctx, OperationLog{
				Operation:    operationFinalize,
				AccountID:    record.AccountID,
				DiscountCode: trimmed,
				Error:        WrapError(operationFinalize, "square_reward", "redeem", err),
			})
			continue
		}
		result.Processed++
		service.logOperation(ctx, OperationLog{
			Operation:    operationFinalize,
			AccountID:    record.AccountID,
			DiscountCode: trimmed,
			Error:        nil,
		})
	}
	return result, nil
}

// Release voids the Square reservation behind a discount code after the
// caller reported failure (abandoned cart, declined payment). The cached
// balance is then re-synced from Square rather than hand-adjusted, since
// Square is authoritative for the released points.
func (service *Service) Release(ctx context.Context, discountCode string) error {
	trimmed := strings.TrimSpace(discountCode)
	record, err := service.store.FindRedemptionByCode(ctx, trimmed)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrUnknownRedemption
	}
	if err := service.square.DeleteReward(ctx, record.ExternalID); err != nil {
		wrapped := WrapError(operationRelease, "square_reward", "delete", err)
		service.logOperation(ctx, OperationLog{
			Operation:    operationRelease,
			AccountID:    record.AccountID,
			DiscountCode: trimmed,
			Error:        wrapped,
		})
		return wrapped
	}
	if _, err := service.RefreshBalance(ctx, record.AccountID); err != nil {
		// The points are back on Square regardless; a failed resync only
		// leaves the cache stale until the next refresh.
		service.logOperation(ctx, OperationLog{
			Operation:    operationRelease,
			AccountID:    record.AccountID,
			DiscountCode: trimmed,
			Status:       operationStatusError,
			Error:        err,
		})
		return nil
	}
	service.logOperation(ctx, OperationLog{
		Operation:    operationRelease,
		AccountID:    record.AccountID,
		DiscountCode: trimmed,
	})
	return nil
}
