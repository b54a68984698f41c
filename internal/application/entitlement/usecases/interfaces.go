package usecases

import (
	"context"

	"github.com/orris-inc/entitlementsync/internal/application/entitlement/services"
	"github.com/orris-inc/entitlementsync/internal/domain/entitlement"
)

// ProductLookup resolves products from the locally cached catalog.
type ProductLookup interface {
	Lookup(productID string) (entitlement.Product, error)
}

// PurchaseAuthority starts a purchase with the billing authority.
type PurchaseAuthority interface {
	Purchase(ctx context.Context, product entitlement.Product) (entitlement.PurchaseOutcome, error)
}

// PurchaseRecorder upserts a purchased transaction and registers it with the ledger.
type PurchaseRecorder interface {
	RecordPurchase(ctx context.Context, result entitlement.VerificationResult, userEmail string) (*entitlement.BackendSubscriptionInfo, error)
}

// TransactionApplier feeds one verification result through reconciliation.
type TransactionApplier interface {
	Apply(ctx context.Context, result entitlement.VerificationResult, trigger services.Trigger) (*entitlement.BackendSubscriptionInfo, error)
}

// Reconciler runs full reconciliation passes.
type Reconciler interface {
	Scan(ctx context.Context, trigger services.Trigger) (int, error)
	Current(ctx context.Context) (*entitlement.BackendSubscriptionInfo, error)
}
