package loyalty

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestRedeemIssuesCodeAndDebitsBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	account := seedAccount(test, store, 785)
	reward := seedReward(test, store, "tier-500", 500, 500)
	square := newStubSquare()
	shopify := &stubShopify{}
	service := mustNewService(test, store, square, shopify)

	redemption, err := service.Redeem(context.Background(), account.ID, reward.ID, mustIdempotencyKey(test, "redeem-1"))
	if err != nil {
		test.Fatalf("redeem: %v", err)
	}
	if !strings.HasPrefix(redemption.DiscountCode, DiscountCodePrefix) {
		test.Fatalf("expected %s prefix, got %q", DiscountCodePrefix, redemption.DiscountCode)
	}
	if redemption.PointsSpent != 500 {
		test.Fatalf("expected 500 points spent, got %d", redemption.PointsSpent)
	}
	if redemption.Balance != 285 {
		test.Fatalf("expected balance 285, got %d", redemption.Balance)
	}
	if store.accounts[account.ID].Balance != 285 {
		test.Fatalf("expected stored balance 285, got %d", store.accounts[account.ID].Balance)
	}
	if len(store.transactions) != 1 {
		test.Fatalf("expected one ledger row, got %d", len(store.transactions))
	}
	record := store.transactions[0]
	if record.Type != TransactionRedemption || record.Points != -500 {
		test.Fatalf("unexpected ledger row: %+v", record)
	}
	if record.DiscountCode != redemption.DiscountCode {
		test.Fatalf("ledger row must carry the issued code, got %q", record.DiscountCode)
	}
	if square.reserveCalls != 1 || shopify.createCalls != 1 {
		test.Fatalf("expected one reserve and one discount call, got %d and %d", square.reserveCalls, shopify.createCalls)
	}
}

func TestRedeemInsufficientPointsMakesNoExternalCalls(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	account := seedAccount(test, store, 200)
	reward := seedReward(test, store, "tier-500", 500, 500)
	square := newStubSquare()
	shopify := &stubShopify{}
	service := mustNewService(test, store, square, shopify)

	_, err := service.Redeem(context.Background(), account.ID, reward.ID, mustIdempotencyKey(test, "redeem-poor"))
	if !errors.Is(err, ErrInsufficientPoints) {
		test.Fatalf("expected ErrInsufficientPoints, got %v", err)
	}
	if square.reserveCalls != 0 || shopify.createCalls != 0 {
		test.Fatalf("expected zero external calls, got reserve=%d create=%d", square.reserveCalls, shopify.createCalls)
	}
	if store.accounts[account.ID].Balance != 200 {
		test.Fatalf("balance must be unchanged, got %d", store.accounts[account.ID].Balance)
	}
	if len(store.transactions) != 0 {
		test.Fatalf("expected no ledger rows, got %d", len(store.transactions))
	}
}

func TestRedeemRestoresBalanceWhenReservationFails(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	account := seedAccount(test, store, 785)
	reward := seedReward(test, store, "tier-500", 500, 500)
	square := newStubSquare()
	square.reserveErr = fmt.Errorf("square is down")
	service := mustNewService(test, store, square, &stubShopify{})

	_, err := service.Redeem(context.Background(), account.ID, reward.ID, mustIdempotencyKey(test, "redeem-fail"))
	if err == nil {
		test.Fatal("expected reservation failure")
	}
	if store.accounts[account.ID].Balance != 785 {
		test.Fatalf("balance must be restored to 785, got %d", store.accounts[account.ID].Balance)
	}
	if len(store.transactions) != 0 {
		test.Fatalf("expected no ledger rows after failed redemption, got %d", len(store.transactions))
	}
}

func TestRedeemVoidsReservationWhenDiscountFails(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	account := seedAccount(test, store, 785)
	reward := seedReward(test, store, "tier-500", 500, 500)
	square := newStubSquare()
	shopify := &stubShopify{createErr: fmt.Errorf("shopify rejected the rule")}
	service := mustNewService(test, store, square, shopify)

	_, err := service.Redeem(context.Background(), account.ID, reward.ID, mustIdempotencyKey(test, "redeem-shopify-fail"))
	if err == nil {
		test.Fatal("expected discount failure")
	}
	if square.deleteCalls != 1 {
		test.Fatalf("expected the reservation to be voided, got %d delete calls", square.deleteCalls)
	}
	if store.accounts[account.ID].Balance != 785 {
		test.Fatalf("balance must be restored to 785, got %d", store.accounts[account.ID].Balance)
	}
	if len(store.transactions) != 0 {
		test.Fatalf("expected no ledger rows, got %d", len(store.transactions))
	}
}

func TestRedeemReturnsCodeWhenLedgerAppendFails(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	account := seedAccount(test, store, 785)
	reward := seedReward(test, store, "tier-500", 500, 500)
	store.appendErr = fmt.Errorf("disk full")
	square := newStubSquare()
	shopify := &stubShopify{}
	service := mustNewService(test, store, square, shopify)

	redemption, err := service.Redeem(context.Background(), account.ID, reward.ID, mustIdempotencyKey(test, "redeem-ledger-fail"))
	if err != nil {
		test.Fatalf("a ledger write failure must not fail the redemption: %v", err)
	}
	if !strings.HasPrefix(redemption.DiscountCode, DiscountCodePrefix) {
		test.Fatalf("expected an issued code, got %q", redemption.DiscountCode)
	}
	if store.accounts[account.ID].Balance != 285 {
		test.Fatalf("points stay spent, expected 285, got %d", store.accounts[account.ID].Balance)
	}
	if square.deleteCalls != 0 {
		test.Fatalf("the reservation must stand, got %d delete calls", square.deleteCalls)
	}
}

func TestRedeemUnknownAccountAndReward(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	account := seedAccount(test, store, 785)
	service := mustNewService(test, store, newStubSquare(), &stubShopify{})

	_, err := service.Redeem(context.Background(), "missing", "whatever", mustIdempotencyKey(test, "k1"))
	if !errors.Is(err, ErrUnknownAccount) {
		test.Fatalf("expected ErrUnknownAccount, got %v", err)
	}
	_, err = service.Redeem(context.Background(), account.ID, "missing", mustIdempotencyKey(test, "k2"))
	if !errors.Is(err, ErrUnknownReward) {
		test.Fatalf("expected ErrUnknownReward, got %v", err)
	}
}

func TestRedeemScopedRewardCarriesManualNote(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	account := seedAccount(test, store, 785)
	reward := seedReward(test, store, "tier-item", 500, 500)
	reward.Scope = ScopeItemVariation
	service := mustNewService(test, store, newStubSquare(), &stubShopify{})

	redemption, err := service.Redeem(context.Background(), account.ID, reward.ID, mustIdempotencyKey(test, "redeem-scoped"))
	if err != nil {
		test.Fatalf("redeem: %v", err)
	}
	if redemption.ManualSetupNote == "" {
		test.Fatal("expected a manual setup note for an item-scoped reward")
	}
}

func TestFinalizeIgnoresForeignCodes(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	square := newStubSquare()
	service := mustNewService(test, store, square, &stubShopify{})

	result, err := service.Finalize(context.Background(), []string{"SUMMER10", "WELCOME", "PROMO-ABCD1234"})
	if err != nil {
		test.Fatalf("finalize: %v", err)
	}
	if result.Processed != 0 || result.Failed != 0 {
		test.Fatalf("expected nothing processed, got %+v", result)
	}
	if square.redeemCalls != 0 {
		test.Fatalf("expected zero Square calls for foreign codes, got %d", square.redeemCalls)
	}
}

func TestFinalizeRedeemsMatchingReservation(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	account := seedAccount(test, store, 785)
	reward := seedReward(test, store, "tier-500", 500, 500)
	square := newStubSquare()
	service := mustNewService(test, store, square, &stubShopify{})

	redemption, err := service.Redeem(context.Background(), account.ID, reward.ID, mustIdempotencyKey(test, "redeem-final"))
	if err != nil {
		test.Fatalf("redeem: %v", err)
	}

	result, err := service.Finalize(context.Background(), []string{redemption.DiscountCode, "SUMMER10"})
	if err != nil {
		test.Fatalf("finalize: %v", err)
	}
	if result.Processed != 1 || result.Failed != 0 {
		test.Fatalf("expected one processed code, got %+v", result)
	}
	if square.redeemCalls != 1 {
		test.Fatalf("expected one Square redeem call, got %d", square.redeemCalls)
	}
}

func TestFinalizeToleratesAlreadyRedeemedReservation(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	account := seedAccount(test, store, 785)
	reward := seedReward(test, store, "tier-500", 500, 500)
	square := newStubSquare()
	service := mustNewService(test, store, square, &stubShopify{})

	redemption, err := service.Redeem(context.Background(), account.ID, reward.ID, mustIdempotencyKey(test, "redeem-dup"))
	if err != nil {
		test.Fatalf("redeem: %v", err)
	}

	square.redeemErr = ErrRewardAlreadyRedeemed
	result, err := service.Finalize(context.Background(), []string{redemption.DiscountCode})
	if err != nil {
		test.Fatalf("finalize: %v", err)
	}
	if result.Processed != 1 || result.Failed != 0 {
		test.Fatalf("already-redeemed must count as processed, got %+v", result)
	}
}

func TestFinalizeCountsUnknownCodeAsFailed(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	square := newStubSquare()
	service := mustNewService(test, store, square, &stubShopify{})

	result, err := service.Finalize(context.Background(), []string{DiscountCodePrefix + "UNKNOWN1"})
	if err != nil {
		test.Fatalf("finalize: %v", err)
	}
	if result.Processed != 0 || result.Failed != 1 {
		test.Fatalf("expected one failed code, got %+v", result)
	}
	if square.redeemCalls != 0 {
		test.Fatalf("expected no Square call for an unknown code, got %d", square.redeemCalls)
	}
}

func TestReleaseVoidsReservationAndResyncsBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	account := seedAccount(test, store, 785)
	reward := seedReward(test, store, "tier-500", 500, 500)
	square := newStubSquare()
	service := mustNewService(test, store, square, &stubShopify{})

	redemption, err := service.Redeem(context.Background(), account.ID, reward.ID, mustIdempotencyKey(test, "redeem-release"))
	if err != nil {
		test.Fatalf("redeem: %v", err)
	}

	// Square returns the restored balance once the reservation is voided.
	square.loyaltyAccount = &SquareLoyaltyAccount{ID: account.SquareAccountID, Balance: 785, LifetimePoints: 900}
	if err := service.Release(context.Background(), redemption.DiscountCode); err != nil {
		test.Fatalf("release: %v", err)
	}
	if square.deleteCalls != 1 {
		test.Fatalf("expected one delete call, got %d", square.deleteCalls)
	}
	if store.accounts[account.ID].Balance != 785 {
		test.Fatalf("expected resynced balance 785, got %d", store.accounts[account.ID].Balance)
	}
}

func TestReleaseUnknownCode(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store, newStubSquare(), &stubShopify{})

	err := service.Release(context.Background(), DiscountCodePrefix+"MISSING1")
	if !errors.Is(err, ErrUnknownRedemption) {
		test.Fatalf("expected ErrUnknownRedemption, got %v", err)
	}
}
