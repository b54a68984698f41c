package services

import (
	"context"
	"time"

	"github.com/orris-inc/entitlementsync/internal/domain/entitlement"
)

// Trigger names what started a reconciliation pass.
type Trigger string

const (
	TriggerListener   Trigger = "listener"
	TriggerPeriodic   Trigger = "periodic"
	TriggerPurchase   Trigger = "purchase"
	TriggerForceCheck Trigger = "force_check"
	TriggerPrime      Trigger = "prime"
)

func (t Trigger) String() string {
	return string(t)
}

// StatusCache holds the last authoritative record returned by the ledger,
// per product and for the subscription as a whole. A miss returns nil, nil.
type StatusCache interface {
	Get(ctx context.Context, productID string) (*entitlement.BackendSubscriptionInfo, error)
	Set(ctx context.Context, productID string, info *entitlement.BackendSubscriptionInfo) error
	Current(ctx context.Context) (*entitlement.BackendSubscriptionInfo, error)
	SetCurrent(ctx context.Context, info *entitlement.BackendSubscriptionInfo) error
}

// Ledger operations recorded in the sync history.
const (
	OperationSync     = "sync"
	OperationPurchase = "purchase"
)

// SyncAttempt describes one backend write, successful or not.
type SyncAttempt struct {
	Operation     string
	Trigger       Trigger
	ProductID     string
	TransactionID string
	Status        entitlement.DerivedStatus
	Result        *entitlement.BackendSubscriptionInfo
	Err           error
	Duration      time.Duration
	AttemptedAt   time.Time
}

// SyncHistoryRecorder appends backend write attempts to an audit log.
type SyncHistoryRecorder interface {
	Record(ctx context.Context, attempt SyncAttempt) error
}
