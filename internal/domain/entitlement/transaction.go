package entitlement

import "time"

// Transaction is a purchase record issued by the billing authority. It is
// immutable; the engine only reads it.
type Transaction struct {
	ID             string
	OriginalID     string
	ProductID      string
	PurchaseDate   time.Time
	ExpirationDate *time.Time
	RevocationDate *time.Time
}

func (t Transaction) IsRevoked() bool {
	return t.RevocationDate != nil
}

// IsExpiredAt reports whether the transaction carries an expiration date that
// is already in the past at now.
func (t Transaction) IsExpiredAt(now time.Time) bool {
	return t.ExpirationDate != nil && t.ExpirationDate.Before(now)
}

// EntitledAt reports whether the transaction still grants access at now.
func (t Transaction) EntitledAt(now time.Time) bool {
	return !t.IsRevoked() && !t.IsExpiredAt(now)
}

// VerificationResult is what the billing authority hands over for every
// transaction: the payload plus whether its signature checked out.
type VerificationResult struct {
	Transaction Transaction
	Verified    bool
	Reason      string
}

func Verified(tx Transaction) VerificationResult {
	return VerificationResult{Transaction: tx, Verified: true}
}

func Unverified(tx Transaction, reason string) VerificationResult {
	return VerificationResult{Transaction: tx, Verified: false, Reason: reason}
}

// PurchaseOutcomeKind classifies the billing authority's answer to a purchase.
type PurchaseOutcomeKind string

const (
	OutcomeSuccess       PurchaseOutcomeKind = "success"
	OutcomeUserCancelled PurchaseOutcomeKind = "user_cancelled"
	OutcomePending       PurchaseOutcomeKind = "pending"
	OutcomeUnknown       PurchaseOutcomeKind = "unknown"
)

// PurchaseOutcome carries the verification result only when Kind is success.
type PurchaseOutcome struct {
	Kind   PurchaseOutcomeKind
	Result VerificationResult
}
