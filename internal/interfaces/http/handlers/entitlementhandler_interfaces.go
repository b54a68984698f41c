package handlers

import (
	"context"

	"github.com/orris-inc/entitlementsync/internal/domain/entitlement"
	"github.com/orris-inc/entitlementsync/internal/domain/shared/events"
)

// Engine operations used by EntitlementHandler

type entitlementEngine interface {
	CurrentEntitlements() ([]entitlement.Product, error)
	Products() []entitlement.Product
	CatalogLoaded() bool
	Closed() bool
	Status(ctx context.Context) (*entitlement.BackendSubscriptionInfo, error)
	ForceCheck(ctx context.Context) (*entitlement.BackendSubscriptionInfo, error)
	Purchase(ctx context.Context, tier entitlement.SubscriptionTier, interval entitlement.BillingInterval, userEmail string) (*entitlement.BackendSubscriptionInfo, error)
}

type eventSource interface {
	Subscribe(eventTypes ...string) *events.Subscription
}
