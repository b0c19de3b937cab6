package loyalty

import (
	"context"
	"errors"
	"testing"
)

func TestBindAccountReusesExistingRow(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	account := seedAccount(test, store, 300)
	seedReward(test, store, "tier-250", 250, 250)
	square := newStubSquare()
	service := mustNewService(test, store, square, &stubShopify{})

	bound, rewards, err := service.BindAccount(context.Background(), account.ProfileID, "")
	if err != nil {
		test.Fatalf("bind: %v", err)
	}
	if bound.ID != account.ID {
		test.Fatalf("expected existing account %s, got %s", account.ID, bound.ID)
	}
	if square.searchAccountCalls != 0 {
		test.Fatalf("expected no Square search for a bound profile, got %d", square.searchAccountCalls)
	}
	if len(rewards) != 1 {
		test.Fatalf("expected one affordable reward, got %d", len(rewards))
	}
}

func TestBindAccountEnrollsThroughSquare(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	profile := &Profile{Email: "new@example.com"}
	if err := store.SaveProfile(context.Background(), profile); err != nil {
		test.Fatalf("seed profile: %v", err)
	}
	square := newStubSquare()
	service := mustNewService(test, store, square, &stubShopify{})

	account, _, err := service.BindAccount(context.Background(), profile.ID, "(555) 987-6543")
	if err != nil {
		test.Fatalf("bind: %v", err)
	}
	if square.searchAccountCalls != 1 || square.createCustomerCalls != 1 || square.createAccountCalls != 1 {
		test.Fatalf("unexpected Square call counts: search=%d createCustomer=%d createAccount=%d",
			square.searchAccountCalls, square.createCustomerCalls, square.createAccountCalls)
	}
	if account.SquareAccountID != "sq-account-new" {
		test.Fatalf("expected mirrored Square account id, got %q", account.SquareAccountID)
	}
	if profile.SquareCustomerID == "" {
		test.Fatal("expected the Square customer id backfilled onto the profile")
	}
}

func TestBindAccountAdoptsExistingSquareAccount(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	profile := &Profile{Phone: "+15559876543"}
	if err := store.SaveProfile(context.Background(), profile); err != nil {
		test.Fatalf("seed profile: %v", err)
	}
	square := newStubSquare()
	square.loyaltyAccount = &SquareLoyaltyAccount{
		ID:             "sq-account-existing",
		ProgramID:      "program-1",
		CustomerID:     "sq-customer-existing",
		Balance:        420,
		LifetimePoints: 900,
	}
	service := mustNewService(test, store, square, &stubShopify{})

	account, _, err := service.BindAccount(context.Background(), profile.ID, "")
	if err != nil {
		test.Fatalf("bind: %v", err)
	}
	if square.createCustomerCalls != 0 || square.createAccountCalls != 0 {
		test.Fatal("an existing Square account must be adopted, not recreated")
	}
	if account.Balance != 420 || account.LifetimePoints != 900 {
		test.Fatalf("expected mirrored balances, got %+v", account)
	}
}

func TestBindAccountRequiresPhoneForEnrollment(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	profile := &Profile{Email: "phoneless@example.com"}
	if err := store.SaveProfile(context.Background(), profile); err != nil {
		test.Fatalf("seed profile: %v", err)
	}
	service := mustNewService(test, store, newStubSquare(), &stubShopify{})

	_, _, err := service.BindAccount(context.Background(), profile.ID, "")
	if !errors.Is(err, ErrPhoneRequired) {
		test.Fatalf("expected ErrPhoneRequired, got %v", err)
	}
}

func TestBindAccountUnknownProfile(test *testing.T) {
	test.Parallel()
	service := mustNewService(test, newStubStore(test), newStubSquare(), &stubShopify{})

	_, _, err := service.BindAccount(context.Background(), "missing", "5551234567")
	if !errors.Is(err, ErrUnknownProfile) {
		test.Fatalf("expected ErrUnknownProfile, got %v", err)
	}
}

func TestRefreshBalanceWritesThrough(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	account := seedAccount(test, store, 100)
	square := newStubSquare()
	square.loyaltyAccount = &SquareLoyaltyAccount{ID: account.SquareAccountID, Balance: 950, LifetimePoints: 2000}
	service := mustNewService(test, store, square, &stubShopify{})

	refreshed, err := service.RefreshBalance(context.Background(), account.ID)
	if err != nil {
		test.Fatalf("refresh: %v", err)
	}
	if refreshed.Balance != 950 || refreshed.LifetimePoints != 2000 {
		test.Fatalf("expected refreshed balances, got %+v", refreshed)
	}
	if store.accounts[account.ID].Balance != 950 {
		test.Fatalf("expected stored balance 950, got %d", store.accounts[account.ID].Balance)
	}
}
