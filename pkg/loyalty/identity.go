package loyalty

import (
	"context"
	"strings"
)

// Identify resolves an Identity to a single Customer Profile, creating one
// when nothing matches. Lookup order: Shopify customer id, then email, then
// normalized phone. Newly discovered external ids are merged onto an
// already-matched profile. No external API is called.
func (service *Service) Identify(ctx context.Context, identity Identity) (*Profile, error) {
	identity = normalizeIdentity(identity)

	var normalizedPhone string
	if strings.TrimSpace(identity.Phone) != "" {
		phone, err := NewPhoneNumber(identity.Phone)
		if err != nil {
			return nil, WrapError(operationIdentify, "phone", "invalid", err)
		}
		normalizedPhone = phone.String()
	}

	if identity.ShopifyCustomerID == "" && identity.Email == "" && normalizedPhone == "" {
		return nil, ErrMissingIdentifier
	}

	var resolved *Profile
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		profile, err := findExistingProfile(ctx, txStore, identity, normalizedPhone)
		if err != nil {
			return err
		}
		if profile == nil {
			profile = &Profile{}
		}
		mergeIdentity(profile, identity, normalizedPhone)
		if err := txStore.SaveProfile(ctx, profile); err != nil {
			return err
		}
		resolved = profile
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationIdentify,
		ProfileID: profileIDOrEmpty(resolved),
		Error:     operationError,
	})
	if operationError != nil {
		return nil, operationError
	}
	return resolved, nil
}

// normalizeIdentity canonicalizes the free-text identifiers so every caller
// looks up the same rows Identify wrote. Emails are stored lowercase.
func normalizeIdentity(identity Identity) Identity {
	identity.Email = strings.ToLower(strings.TrimSpace(identity.Email))
	identity.ShopifyCustomerID = strings.TrimSpace(identity.ShopifyCustomerID)
	return identity
}

func findExistingProfile(ctx context.Context, store Store, identity Identity, normalizedPhone string) (*Profile, error) {
	if identity.ShopifyCustomerID != "" {
		profile, err := store.FindProfileByShopifyID(ctx, identity.ShopifyCustomerID)
		if err != nil || profile != nil {
			return profile, err
		}
	}
	if identity.Email != "" {
		profile, err := store.FindProfileByEmail(ctx, identity.Email)
		if err != nil || profile != nil {
			return profile, err
		}
	}
	if normalizedPhone != "" {
		profile, err := store.FindProfileByPhone(ctx, normalizedPhone)
		if err != nil || profile != nil {
			return profile, err
		}
	}
	return nil, nil
}

// mergeIdentity fills identifiers the stored profile did not know yet.
// Existing values win; profiles are never overwritten with blanks.
func mergeIdentity(profile *Profile, identity Identity, normalizedPhone string) {
	if profile.ShopifyCustomerID == "" && identity.ShopifyCustomerID != "" {
		profile.ShopifyCustomerID = identity.ShopifyCustomerID
	}
	if profile.Email == "" && identity.Email != "" {
		profile.Email = identity.Email
	}
	if profile.Phone == "" && normalizedPhone != "" {
		profile.Phone = normalizedPhone
	}
}

func profileIDOrEmpty(profile *Profile) string {
	if profile == nil {
		return ""
	}
	return profile.ID
}

// LookupByPhone returns the profile, bound account, and affordable rewards
// for a phone number, or all nils when nothing matches. "Nothing found" is a
// valid, non-error result on this read path.
func (service *Service) LookupByPhone(ctx context.Context, rawPhone string) (*Profile, *Account, []RewardDefinition, error) {
	phone, err := NewPhoneNumber(rawPhone)
	if err != nil {
		return nil, nil, nil, err
	}
	profile, err := service.store.FindProfileByPhone(ctx, phone.String())
	if err != nil {
		return nil, nil, nil, err
	}
	if profile == nil {
		return nil, nil, nil, nil
	}
	account, err := service.store.FindAccountByProfileID(ctx, profile.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	if account == nil {
		return profile, nil, nil, nil
	}
	rewards, err := service.AvailableRewards(ctx, account.Balance)
	if err != nil {
		return nil, nil, nil, err
	}
	return profile, account, rewards, nil
}
