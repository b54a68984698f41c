package entitlement

import (
	"context"
	"time"
)

// StatusKind is the locally derived subscription state for one transaction.
type StatusKind string

const (
	StatusActive    StatusKind = "active"
	StatusCancelled StatusKind = "cancelled"
	StatusExpired   StatusKind = "expired"
)

func (k StatusKind) String() string {
	return string(k)
}

// DerivedStatus is a proposal sent to the ledger, never an authoritative answer.
type DerivedStatus struct {
	Kind      StatusKind
	WillRenew bool
	// RenewalUndetermined is set when no renewal state answered positively but
	// the scan met states it could not classify, or the lookup itself failed.
	// WillRenew is false in that case, and the ledger may override it.
	RenewalUndetermined bool
}

// PlatformSubscriptionState is the billing authority's view of a subscription.
type PlatformSubscriptionState string

const (
	StateSubscribed           PlatformSubscriptionState = "subscribed"
	StateExpired              PlatformSubscriptionState = "expired"
	StateInGracePeriod        PlatformSubscriptionState = "in_grace_period"
	StateInBillingRetryPeriod PlatformSubscriptionState = "in_billing_retry_period"
	StateRevoked              PlatformSubscriptionState = "revoked"
	StateUnknown              PlatformSubscriptionState = "unknown"
)

// RenewalState is one entry of a renewal-intent lookup. Verified is false when
// the attached renewal info failed signature verification.
type RenewalState struct {
	State         PlatformSubscriptionState
	WillAutoRenew bool
	Verified      bool
}

// RenewalIntentLookup asks the billing authority for the subscription states
// of a product.
type RenewalIntentLookup interface {
	SubscriptionStatus(ctx context.Context, productID string) ([]RenewalState, error)
}

// DeriveStatus computes the status proposal for tx at now. Revocation wins over
// expiration; only an active transaction consults the renewal lookup.
func DeriveStatus(ctx context.Context, tx Transaction, lookup RenewalIntentLookup, now time.Time) DerivedStatus {
	if tx.IsRevoked() {
		return DerivedStatus{Kind: StatusCancelled}
	}
	if tx.IsExpiredAt(now) {
		return DerivedStatus{Kind: StatusExpired}
	}

	willRenew, undetermined := resolveWillRenew(ctx, tx.ProductID, lookup)
	return DerivedStatus{
		Kind:                StatusActive,
		WillRenew:           willRenew,
		RenewalUndetermined: undetermined,
	}
}

func resolveWillRenew(ctx context.Context, productID string, lookup RenewalIntentLookup) (willRenew, undetermined bool) {
	if lookup == nil {
		return false, false
	}

	states, err := lookup.SubscriptionStatus(ctx, productID)
	if err != nil {
		return false, true
	}

	for _, s := range states {
		if !s.Verified {
			continue
		}
		switch s.State {
		case StateSubscribed, StateInGracePeriod, StateInBillingRetryPeriod:
			if s.WillAutoRenew {
				return true, false
			}
		case StateExpired, StateRevoked:
		default:
			undetermined = true
		}
	}
	return false, undetermined
}
