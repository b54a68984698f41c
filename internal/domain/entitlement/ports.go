package entitlement

import (
	"context"
	"time"
)

// BillingAuthority is the platform store. Its channels are closed by the
// implementation once the passed context is done.
type BillingAuthority interface {
	RenewalIntentLookup

	FetchProducts(ctx context.Context, ids []string) ([]Product, error)
	// CurrentEntitlements returns a finite snapshot of held transactions.
	CurrentEntitlements(ctx context.Context) (<-chan VerificationResult, error)
	// TransactionUpdates returns the live, unbounded update stream.
	TransactionUpdates(ctx context.Context) (<-chan VerificationResult, error)
	Purchase(ctx context.Context, product Product) (PurchaseOutcome, error)
}

// SyncRequest proposes a locally derived status to the ledger.
type SyncRequest struct {
	UserEmail      string
	ProductID      string
	Status         DerivedStatus
	ExpirationDate *time.Time
}

// PurchaseRecord registers a new billing relationship with the ledger.
type PurchaseRecord struct {
	UserEmail     string
	ProductID     string
	TransactionID string
}

// Ledger is the backend system of record. Failures wrap ErrNetwork or ErrBackend.
type Ledger interface {
	SyncStatus(ctx context.Context, req SyncRequest) (*BackendSubscriptionInfo, error)
	RecordPurchase(ctx context.Context, rec PurchaseRecord) (*BackendSubscriptionInfo, error)
}
