package loyalty

import (
	"context"
	"strings"
	"time"
)

// Promotions returns the program's current promotions annotated with a
// per-customer eligibility verdict. Nothing is persisted; the list is small
// and recomputed on every call.
//
// A promotion whose name contains "birthday" (case-insensitive) is eligible
// only when the customer's on-file birth date falls in the current calendar
// month. Every other promotion that is ACTIVE and inside its optional date
// window is eligible by default.
func (service *Service) Promotions(ctx context.Context, squareCustomerID string) ([]EvaluatedPromotion, error) {
	promotions, err := service.square.ListPromotions(ctx, service.programID)
	if err != nil {
		return nil, WrapError(operationListPromotions, "square_promotions", "list", err)
	}

	birthMonth := time.Month(0)
	if squareCustomerID != "" {
		customer, customerErr := service.square.GetCustomer(ctx, squareCustomerID)
		if customerErr != nil {
			return nil, WrapError(operationListPromotions, "square_customer", "get", customerErr)
		}
		if customer != nil {
			birthMonth = parseBirthMonth(customer.BirthDate)
		}
	}

	now := time.Unix(service.nowFn(), 0).UTC()
	evaluated := make([]EvaluatedPromotion, 0, len(promotions))
	for _, upstream := range promotions {
		promotion := promotionFromSquare(upstream)
		evaluated = append(evaluated, evaluatePromotion(promotion, now, birthMonth))
	}
	return evaluated, nil
}

func promotionFromSquare(upstream SquarePromotion) Promotion {
	promotion := Promotion{
		ID:               upstream.ID,
		Name:             upstream.Name,
		Status:           upstream.Status,
		Percentage:       upstream.Percentage,
		FixedAmountMinor: upstream.FixedAmountMinor,
		MinimumSpend:     upstream.MinimumSpend,
		StartsAt:         upstream.StartsAt,
		EndsAt:           upstream.EndsAt,
	}
	if upstream.FixedAmountMinor > 0 {
		promotion.IncentiveType = DiscountFixedAmount
	} else {
		promotion.IncentiveType = DiscountPercentage
	}
	return promotion
}

func evaluatePromotion(promotion Promotion, now time.Time, birthMonth time.Month) EvaluatedPromotion {
	result := EvaluatedPromotion{Promotion: promotion}
	if promotion.Status != "ACTIVE" {
		result.EligibilityReason = ReasonInactive
		return result
	}
	if !withinWindow(promotion, now) {
		result.EligibilityReason = ReasonOutsideWindow
		return result
	}
	if strings.Contains(strings.ToLower(promotion.Name), "birthday") {
		if birthMonth != 0 && birthMonth == now.Month() {
			result.CustomerEligible = true
			result.EligibilityReason = ReasonBirthdayMonth
		} else {
			result.EligibilityReason = ReasonBirthdayMonthMismatch
		}
		return result
	}
	result.CustomerEligible = true
	result.EligibilityReason = ReasonGeneralPromotion
	return result
}

// withinWindow checks the optional date window with inclusive boundaries. A
// promotion with no start is eligible from the beginning of time; one with
// no end never expires.
func withinWindow(promotion Promotion, now time.Time) bool {
	if promotion.StartsAt != nil && now.Before(*promotion.StartsAt) {
		return false
	}
	if promotion.EndsAt != nil && now.After(*promotion.EndsAt) {
		return false
	}
	return true
}

// parseBirthMonth extracts the month from Square's YYYY-MM-DD birthday
// format (the year may be 0000 when withheld). Returns 0 when absent or
// unparseable.
func parseBirthMonth(birthDate string) time.Month {
	parts := strings.Split(strings.TrimSpace(birthDate), "-")
	if len(parts) < 2 {
		return 0
	}
	parsed, err := time.Parse("01", parts[1])
	if err != nil {
		return 0
	}
	return parsed.Month()
}

// RedeemPromotion mints a Shopify discount for an eligible promotion. No
// points are spent and no Square reservation exists for promotion discounts.
func (service *Service) RedeemPromotion(ctx context.Context, promotionID string, squareCustomerID string) (string, error) {
	promotions, err := service.Promotions(ctx, squareCustomerID)
	if err != nil {
		return "", err
	}
	var target *EvaluatedPromotion
	for index := range promotions {
		if promotions[index].ID == promotionID {
			target = &promotions[index]
			break
		}
	}
	if target == nil {
		return "", ErrUnknownPromotion
	}
	if !target.CustomerEligible {
		return "", ErrPromotionNotEligible
	}
	code, err := service.generateCode()
	if err != nil {
		return "", err
	}
	// Promotion codes must not match the reward prefix or the order webhook
	// would try to finalize a reservation that does not exist.
	code = "PROMO-" + strings.TrimPrefix(code, DiscountCodePrefix)
	issued, err := service.shopify.CreateDiscount(ctx, ShopifyDiscountInput{
		Code:         code,
		Title:        target.Name,
		DiscountType: target.IncentiveType,
		AmountMinor:  target.FixedAmountMinor,
		Percentage:   target.Percentage,
	})
	if err != nil {
		wrapped := WrapError(operationRedeemPromo, "shopify_discount", "create", err)
		service.logOperation(ctx, OperationLog{
			Operation:    operationRedeemPromo,
			DiscountCode: code,
			Error:        wrapped,
		})
		return "", wrapped
	}
	service.logOperation(ctx, OperationLog{
		Operation:    operationRedeemPromo,
		DiscountCode: issued,
	})
	return issued, nil
}
