// Package entitlement models what this installation has purchased from the
// billing authority and how that turns into a subscription status proposal
// for the backend ledger.
package entitlement

import (
	"fmt"
	"strings"
)

// SubscriptionTier is the purchasable plan family.
type SubscriptionTier string

const (
	TierNone        SubscriptionTier = "none"
	TierPlusMonthly SubscriptionTier = "plus_monthly"
	TierPlusYearly  SubscriptionTier = "plus_yearly"
	TierTeamMonthly SubscriptionTier = "team_monthly"
	TierTeamYearly  SubscriptionTier = "team_yearly"
)

// PurchasableTiers lists every tier that maps onto store products.
var PurchasableTiers = []SubscriptionTier{
	TierPlusMonthly,
	TierPlusYearly,
	TierTeamMonthly,
	TierTeamYearly,
}

// ParseTier parses a tier name as used on the wire.
func ParseTier(s string) (SubscriptionTier, error) {
	t := SubscriptionTier(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return TierNone, fmt.Errorf("%w: %q", ErrInvalidTier, s)
	}
	return t, nil
}

func (t SubscriptionTier) IsValid() bool {
	switch t {
	case TierNone, TierPlusMonthly, TierPlusYearly, TierTeamMonthly, TierTeamYearly:
		return true
	default:
		return false
	}
}

// Purchasable reports whether the tier corresponds to store products.
func (t SubscriptionTier) Purchasable() bool {
	return t.IsValid() && t != TierNone
}

func (t SubscriptionTier) IsTeam() bool {
	return t == TierTeamMonthly || t == TierTeamYearly
}

// Name returns the human-readable tier name.
func (t SubscriptionTier) Name() string {
	switch t {
	case TierPlusMonthly:
		return "Plus Monthly"
	case TierPlusYearly:
		return "Plus Yearly"
	case TierTeamMonthly:
		return "Team Monthly"
	case TierTeamYearly:
		return "Team Yearly"
	default:
		return "Free"
	}
}

// family is the product-id segment shared by the monthly and yearly variant.
func (t SubscriptionTier) family() string {
	switch t {
	case TierPlusMonthly, TierPlusYearly:
		return "plus"
	case TierTeamMonthly, TierTeamYearly:
		return "team"
	default:
		return ""
	}
}

// ProductIDPrefix returns the product identifier prefix for the tier inside
// the given namespace, e.g. "com.x.plus". TierNone has no prefix.
func (t SubscriptionTier) ProductIDPrefix(namespace string) string {
	family := t.family()
	if family == "" {
		return ""
	}
	if namespace == "" {
		return family
	}
	return namespace + "." + family
}

func (t SubscriptionTier) String() string {
	return string(t)
}

// BillingInterval selects the monthly or annual product of a tier.
type BillingInterval string

const (
	IntervalMonthly BillingInterval = "monthly"
	IntervalAnnual  BillingInterval = "annual"
)

// ParseBillingInterval accepts "monthly"/"month" and "annual"/"yearly"/"year".
func ParseBillingInterval(s string) (BillingInterval, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly", "month":
		return IntervalMonthly, nil
	case "annual", "yearly", "year":
		return IntervalAnnual, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidInterval, s)
	}
}

// Suffix is the trailing product-id segment for the interval.
func (i BillingInterval) Suffix() string {
	if i == IntervalAnnual {
		return "year"
	}
	return "month"
}

func (i BillingInterval) String() string {
	return string(i)
}

// ResolveProductID builds the concrete product identifier for a tier and
// billing interval: prefix + "." + ("year" | "month").
func ResolveProductID(namespace string, tier SubscriptionTier, interval BillingInterval) (string, error) {
	if !tier.Purchasable() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTier, tier)
	}
	return tier.ProductIDPrefix(namespace) + "." + interval.Suffix(), nil
}

// TierForProductID maps a product identifier back onto its tier. Unknown
// identifiers map to TierNone.
func TierForProductID(namespace, productID string) SubscriptionTier {
	for _, tier := range []SubscriptionTier{TierPlusMonthly, TierTeamMonthly} {
		prefix := tier.ProductIDPrefix(namespace)
		switch productID {
		case prefix + "." + IntervalMonthly.Suffix():
			return tier
		case prefix + "." + IntervalAnnual.Suffix():
			if tier.IsTeam() {
				return TierTeamYearly
			}
			return TierPlusYearly
		}
	}
	return TierNone
}

// AllProductIDs returns every product identifier the engine may encounter.
func AllProductIDs(namespace string) []string {
	ids := make([]string, 0, 4)
	for _, tier := range []SubscriptionTier{TierPlusMonthly, TierTeamMonthly} {
		for _, interval := range []BillingInterval{IntervalMonthly, IntervalAnnual} {
			id, _ := ResolveProductID(namespace, tier, interval)
			ids = append(ids, id)
		}
	}
	return ids
}

// Product is a catalog entry owned by the billing authority. The engine only
// references products, it never mutates them.
type Product struct {
	ID           string
	DisplayName  string
	Description  string
	DisplayPrice string
	Tier         SubscriptionTier
}
