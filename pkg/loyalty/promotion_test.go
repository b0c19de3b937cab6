package loyalty

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// The fixed test clock is 2025-01-01T00:00:00Z, so "now" is January.
func TestPromotionsBirthdayEligibility(test *testing.T) {
	test.Parallel()
	square := newStubSquare()
	square.promotions = []SquarePromotion{
		{ID: "promo-bday", Name: "Birthday Bonus", Status: "ACTIVE", Percentage: 20},
	}
	square.customer = &SquareCustomer{ID: "sq-customer-1", BirthDate: "1990-01-15"}
	service := mustNewService(test, newStubStore(test), square, &stubShopify{})

	promotions, err := service.Promotions(context.Background(), "sq-customer-1")
	if err != nil {
		test.Fatalf("promotions: %v", err)
	}
	if len(promotions) != 1 {
		test.Fatalf("expected one promotion, got %d", len(promotions))
	}
	if !promotions[0].CustomerEligible {
		test.Fatalf("expected birthday eligibility in the birth month, got %+v", promotions[0])
	}
	if promotions[0].EligibilityReason != ReasonBirthdayMonth {
		test.Fatalf("expected %s, got %s", ReasonBirthdayMonth, promotions[0].EligibilityReason)
	}
}

func TestPromotionsBirthdayMismatch(test *testing.T) {
	test.Parallel()
	square := newStubSquare()
	square.promotions = []SquarePromotion{
		{ID: "promo-bday", Name: "Birthday Bonus", Status: "ACTIVE", Percentage: 20},
	}
	square.customer = &SquareCustomer{ID: "sq-customer-1", BirthDate: "0000-07-15"}
	service := mustNewService(test, newStubStore(test), square, &stubShopify{})

	promotions, err := service.Promotions(context.Background(), "sq-customer-1")
	if err != nil {
		test.Fatalf("promotions: %v", err)
	}
	if promotions[0].CustomerEligible {
		test.Fatal("expected ineligible outside the birth month")
	}
	if promotions[0].EligibilityReason != ReasonBirthdayMonthMismatch {
		test.Fatalf("expected %s, got %s", ReasonBirthdayMonthMismatch, promotions[0].EligibilityReason)
	}
}

func TestPromotionsBirthdayWithoutCustomerIsIneligible(test *testing.T) {
	test.Parallel()
	square := newStubSquare()
	square.promotions = []SquarePromotion{
		{ID: "promo-bday", Name: "Birthday Bonus", Status: "ACTIVE", Percentage: 20},
	}
	service := mustNewService(test, newStubStore(test), square, &stubShopify{})

	promotions, err := service.Promotions(context.Background(), "")
	if err != nil {
		test.Fatalf("promotions: %v", err)
	}
	if promotions[0].CustomerEligible {
		test.Fatal("birthday promotion must require a known birth month")
	}
}

func TestPromotionsStatusAndWindow(test *testing.T) {
	test.Parallel()
	past := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	pastEnd := time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC)
	future := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	square := newStubSquare()
	square.promotions = []SquarePromotion{
		{ID: "promo-general", Name: "Double Points Weekend", Status: "ACTIVE"},
		{ID: "promo-draft", Name: "Unlaunched", Status: "SCHEDULED"},
		{ID: "promo-expired", Name: "June Sale", Status: "ACTIVE", StartsAt: &past, EndsAt: &pastEnd},
		{ID: "promo-upcoming", Name: "Summer Sale", Status: "ACTIVE", StartsAt: &future},
	}
	service := mustNewService(test, newStubStore(test), square, &stubShopify{})

	promotions, err := service.Promotions(context.Background(), "")
	if err != nil {
		test.Fatalf("promotions: %v", err)
	}
	verdicts := map[string]EvaluatedPromotion{}
	for _, promotion := range promotions {
		verdicts[promotion.ID] = promotion
	}
	if !verdicts["promo-general"].CustomerEligible || verdicts["promo-general"].EligibilityReason != ReasonGeneralPromotion {
		test.Fatalf("expected general eligibility, got %+v", verdicts["promo-general"])
	}
	if verdicts["promo-draft"].CustomerEligible || verdicts["promo-draft"].EligibilityReason != ReasonInactive {
		test.Fatalf("expected inactive verdict, got %+v", verdicts["promo-draft"])
	}
	if verdicts["promo-expired"].CustomerEligible || verdicts["promo-expired"].EligibilityReason != ReasonOutsideWindow {
		test.Fatalf("expected expired verdict, got %+v", verdicts["promo-expired"])
	}
	if verdicts["promo-upcoming"].CustomerEligible || verdicts["promo-upcoming"].EligibilityReason != ReasonOutsideWindow {
		test.Fatalf("expected not-yet-started verdict, got %+v", verdicts["promo-upcoming"])
	}
}

func TestPromotionsListFailureCarriesListOperation(test *testing.T) {
	test.Parallel()
	square := newStubSquare()
	square.promotionsErr = errors.New("square is down")
	service := mustNewService(test, newStubStore(test), square, &stubShopify{})

	_, err := service.Promotions(context.Background(), "")
	var operationError OperationError
	if !errors.As(err, &operationError) {
		test.Fatalf("expected an OperationError, got %v", err)
	}
	if operationError.Operation() != "list_promotions" {
		test.Fatalf("expected list_promotions operation, got %q", operationError.Operation())
	}
}

func TestRedeemPromotionMintsPromoCode(test *testing.T) {
	test.Parallel()
	square := newStubSquare()
	square.promotions = []SquarePromotion{
		{ID: "promo-general", Name: "Double Points Weekend", Status: "ACTIVE", Percentage: 15},
	}
	shopify := &stubShopify{}
	service := mustNewService(test, newStubStore(test), square, shopify)

	code, err := service.RedeemPromotion(context.Background(), "promo-general", "")
	if err != nil {
		test.Fatalf("redeem promotion: %v", err)
	}
	if !strings.HasPrefix(code, "PROMO-") {
		test.Fatalf("expected PROMO- prefix, got %q", code)
	}
	if strings.HasPrefix(code, DiscountCodePrefix) {
		test.Fatalf("promotion code must not collide with reward codes: %q", code)
	}
	if shopify.createCalls != 1 {
		test.Fatalf("expected one discount call, got %d", shopify.createCalls)
	}
}

func TestRedeemPromotionRejectsIneligibleCustomer(test *testing.T) {
	test.Parallel()
	square := newStubSquare()
	square.promotions = []SquarePromotion{
		{ID: "promo-bday", Name: "Birthday Bonus", Status: "ACTIVE", Percentage: 20},
	}
	square.customer = &SquareCustomer{ID: "sq-customer-1", BirthDate: "0000-07-15"}
	shopify := &stubShopify{}
	service := mustNewService(test, newStubStore(test), square, shopify)

	_, err := service.RedeemPromotion(context.Background(), "promo-bday", "sq-customer-1")
	if !errors.Is(err, ErrPromotionNotEligible) {
		test.Fatalf("expected ErrPromotionNotEligible, got %v", err)
	}
	if shopify.createCalls != 0 {
		test.Fatalf("expected no discount call, got %d", shopify.createCalls)
	}
}

func TestRedeemPromotionUnknownID(test *testing.T) {
	test.Parallel()
	service := mustNewService(test, newStubStore(test), newStubSquare(), &stubShopify{})

	_, err := service.RedeemPromotion(context.Background(), "promo-missing", "")
	if !errors.Is(err, ErrUnknownPromotion) {
		test.Fatalf("expected ErrUnknownPromotion, got %v", err)
	}
}
