package entitlement

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePurchaseCompleted = "entitlement.purchase_completed"
	EventTypeStatusUpdated     = "entitlement.status_updated"
)

// PurchaseCompletedEvent is emitted once the ledger confirmed a new purchase.
type PurchaseCompletedEvent struct {
	EventID       string
	ProductID     string
	TransactionID string
	Info          BackendSubscriptionInfo
	Timestamp     time.Time
}

func NewPurchaseCompletedEvent(productID, transactionID string, info BackendSubscriptionInfo, at time.Time) *PurchaseCompletedEvent {
	return &PurchaseCompletedEvent{
		EventID:       uuid.NewString(),
		ProductID:     productID,
		TransactionID: transactionID,
		Info:          info,
		Timestamp:     at,
	}
}

func (e *PurchaseCompletedEvent) GetEventType() string {
	return EventTypePurchaseCompleted
}

func (e *PurchaseCompletedEvent) GetAggregateID() string {
	return e.ProductID
}

func (e *PurchaseCompletedEvent) GetOccurredAt() time.Time {
	return e.Timestamp
}

// StatusUpdatedEvent carries every authoritative record the ledger returns.
type StatusUpdatedEvent struct {
	EventID   string
	ProductID string
	Trigger   string
	Info      BackendSubscriptionInfo
	Timestamp time.Time
}

func NewStatusUpdatedEvent(productID, trigger string, info BackendSubscriptionInfo, at time.Time) *StatusUpdatedEvent {
	return &StatusUpdatedEvent{
		EventID:   uuid.NewString(),
		ProductID: productID,
		Trigger:   trigger,
		Info:      info,
		Timestamp: at,
	}
}

func (e *StatusUpdatedEvent) GetEventType() string {
	return EventTypeStatusUpdated
}

func (e *StatusUpdatedEvent) GetAggregateID() string {
	return e.ProductID
}

func (e *StatusUpdatedEvent) GetOccurredAt() time.Time {
	return e.Timestamp
}
