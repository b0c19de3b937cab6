package loyalty

import (
	"context"
	"sort"
)

// SyncCatalog pulls the reward tiers for the configured program and upserts
// them into the local catalog, keyed by Square reward id. Re-running with
// unchanged upstream data produces no net change. Unparseable tiers are
// skipped and counted; the sync continues. Rows are never deleted here; a
// tier that disappeared upstream stays until manually deactivated.
func (service *Service) SyncCatalog(ctx context.Context) (SyncResult, error) {
	tiers, err := service.square.ListRewardTiers(ctx, service.programID)
	if err != nil {
		wrapped := WrapError(operationSyncCatalog, "square_program", "list_tiers", err)
		service.logOperation(ctx, OperationLog{Operation: operationSyncCatalog, Error: wrapped})
		return SyncResult{}, wrapped
	}

	result := SyncResult{Total: len(tiers)}
	for _, tier := range tiers {
		reward, parseErr := parseRewardTier(tier)
		if parseErr != nil {
			result.Skipped++
			service.logOperation(ctx, OperationLog{
				Operation: operationSyncCatalog,
				RewardID:  tier.ID,
				Status:    operationStatusError,
				Error:     parseErr,
			})
			continue
		}
		if err := service.store.UpsertReward(ctx, reward); err != nil {
			return result, err
		}
		result.Synced++
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationSyncCatalog,
		Points:    int64(result.Synced),
	})
	return result, nil
}

func parseRewardTier(tier SquareRewardTier) (*RewardDefinition, error) {
	if tier.ID == "" || tier.Points < 0 {
		return nil, ErrInvalidRewardTier
	}
	reward := &RewardDefinition{
		SquareRewardID: tier.ID,
		Name:           tier.Name,
		PointsRequired: tier.Points,
		Scope:          tier.Scope,
		Active:         true,
	}
	switch tier.DiscountType {
	case "FIXED_AMOUNT":
		if tier.AmountMinor <= 0 {
			return nil, ErrInvalidRewardTier
		}
		reward.DiscountType = DiscountFixedAmount
		reward.AmountMinor = tier.AmountMinor
	case "FIXED_PERCENTAGE", "PERCENTAGE":
		if tier.Percentage <= 0 {
			return nil, ErrInvalidRewardTier
		}
		reward.DiscountType = DiscountPercentage
		reward.Percentage = tier.Percentage
		reward.MaxAmountMinor = tier.MaxAmountMinor
	default:
		return nil, ErrInvalidRewardTier
	}
	return reward, nil
}

// AvailableRewards returns the active catalog entries affordable at the
// given balance, cheapest first.
func (service *Service) AvailableRewards(ctx context.Context, balance int64) ([]RewardDefinition, error) {
	rewards, err := service.store.ListActiveRewards(ctx)
	if err != nil {
		return nil, err
	}
	return EligibleRewards(rewards, balance), nil
}

// EligibleRewards filters definitions to those with points_required <= balance
// and sorts ascending by points_required. Pure function; no I/O.
func EligibleRewards(rewards []RewardDefinition, balance int64) []RewardDefinition {
	eligible := make([]RewardDefinition, 0, len(rewards))
	for _, reward := range rewards {
		if reward.Active && reward.PointsRequired <= balance {
			eligible = append(eligible, reward)
		}
	}
	sort.SliceStable(eligible, func(left, right int) bool {
		return eligible[left].PointsRequired < eligible[right].PointsRequired
	})
	return eligible
}
