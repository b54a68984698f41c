package entitlement

import "time"

// Ledger status values with special meaning to the engine.
const (
	LedgerStatusActive = "active"
	LedgerStatusNone   = "none"
)

// BackendSubscriptionInfo is the ledger's merged, authoritative record. It
// supersedes any locally derived status for feature gating and UI.
type BackendSubscriptionInfo struct {
	ProductID     string
	Status        string
	PlanName      string
	ExpiresAt     *time.Time
	WillRenew     bool
	SeatCount     int
	CanCreateTeam bool
}

func (i *BackendSubscriptionInfo) IsActive() bool {
	return i != nil && i.Status == LedgerStatusActive
}

// NoSubscription is returned when nothing has ever been synced.
func NoSubscription() *BackendSubscriptionInfo {
	return &BackendSubscriptionInfo{Status: LedgerStatusNone}
}
