package loyalty

import (
	"context"
	"errors"
	"testing"
)

func TestIdentifyCreatesProfileOnFirstContact(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store, newStubSquare(), &stubShopify{})

	profile, err := service.Identify(context.Background(), Identity{Phone: "(555) 123-4567"})
	if err != nil {
		test.Fatalf("identify: %v", err)
	}
	if profile.ID == "" {
		test.Fatal("expected a persisted profile id")
	}
	if profile.Phone != "+15551234567" {
		test.Fatalf("expected normalized phone, got %q", profile.Phone)
	}
}

func TestIdentifyResolvesSameProfileAcrossIdentifiers(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store, newStubSquare(), &stubShopify{})

	first, err := service.Identify(context.Background(), Identity{Email: "Jo@Example.com", Phone: "5551234567"})
	if err != nil {
		test.Fatalf("first identify: %v", err)
	}

	byEmail, err := service.Identify(context.Background(), Identity{Email: "jo@example.com"})
	if err != nil {
		test.Fatalf("identify by email: %v", err)
	}
	if byEmail.ID != first.ID {
		test.Fatalf("expected same profile by email, got %s and %s", first.ID, byEmail.ID)
	}

	byPhone, err := service.Identify(context.Background(), Identity{Phone: "555.123.4567"})
	if err != nil {
		test.Fatalf("identify by phone: %v", err)
	}
	if byPhone.ID != first.ID {
		test.Fatalf("expected same profile by phone, got %s and %s", first.ID, byPhone.ID)
	}
	if len(store.profiles) != 1 {
		test.Fatalf("expected a single profile row, got %d", len(store.profiles))
	}
}

func TestIdentifyMergesNewIdentifiersWithoutOverwriting(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store, newStubSquare(), &stubShopify{})

	if _, err := service.Identify(context.Background(), Identity{Email: "jo@example.com"}); err != nil {
		test.Fatalf("seed identify: %v", err)
	}

	merged, err := service.Identify(context.Background(), Identity{Email: "jo@example.com", ShopifyCustomerID: "shopify-9"})
	if err != nil {
		test.Fatalf("merge identify: %v", err)
	}
	if merged.ShopifyCustomerID != "shopify-9" {
		test.Fatalf("expected merged shopify id, got %q", merged.ShopifyCustomerID)
	}

	again, err := service.Identify(context.Background(), Identity{Email: "other@example.com", ShopifyCustomerID: "shopify-9"})
	if err != nil {
		test.Fatalf("repeat identify: %v", err)
	}
	if again.Email != "jo@example.com" {
		test.Fatalf("existing email must win, got %q", again.Email)
	}
}

func TestIdentifyRequiresAtLeastOneIdentifier(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store, newStubSquare(), &stubShopify{})

	if _, err := service.Identify(context.Background(), Identity{}); !errors.Is(err, ErrMissingIdentifier) {
		test.Fatalf("expected ErrMissingIdentifier, got %v", err)
	}
	if len(store.profiles) != 0 {
		test.Fatalf("expected no profile rows, got %d", len(store.profiles))
	}
}

func TestLookupByPhoneReturnsNilsWhenUnknown(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store, newStubSquare(), &stubShopify{})

	profile, account, rewards, err := service.LookupByPhone(context.Background(), "5550000000")
	if err != nil {
		test.Fatalf("lookup: %v", err)
	}
	if profile != nil || account != nil || rewards != nil {
		test.Fatal("expected all-nil result for an unknown phone")
	}
}

func TestLookupByPhoneReturnsAffordableRewards(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	account := seedAccount(test, store, 785)
	seedReward(test, store, "tier-500", 500, 500)
	seedReward(test, store, "tier-1000", 1000, 1200)
	service := mustNewService(test, store, newStubSquare(), &stubShopify{})

	profile, found, rewards, err := service.LookupByPhone(context.Background(), "+15551234567")
	if err != nil {
		test.Fatalf("lookup: %v", err)
	}
	if profile == nil || found == nil {
		test.Fatal("expected profile and account")
	}
	if found.ID != account.ID {
		test.Fatalf("expected account %s, got %s", account.ID, found.ID)
	}
	if len(rewards) != 1 || rewards[0].PointsRequired != 500 {
		test.Fatalf("expected only the 500 point reward at balance 785, got %+v", rewards)
	}
}
