package entitlement

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrPurchaseUnverified = errors.New("purchase could not be verified")
	ErrUserCancelled      = errors.New("purchase cancelled by user")
	ErrPurchasePending    = errors.New("purchase pending approval")
	ErrPurchaseUnknown    = errors.New("purchase failed")
	ErrCatalogUnavailable = errors.New("product catalog unavailable")
	ErrVerificationFailed = errors.New("transaction verification failed")
	ErrNetwork            = errors.New("ledger unreachable")
	ErrBackend            = errors.New("ledger rejected request")
	ErrEngineClosed       = errors.New("subscription engine closed")
	ErrInvalidTier        = errors.New("invalid subscription tier")
	ErrInvalidInterval    = errors.New("invalid billing interval")
)

// BackendError is a server-side rejection from the ledger.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", ErrBackend, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", ErrBackend, e.StatusCode, e.Message)
}

func (e *BackendError) Unwrap() error {
	return ErrBackend
}

// NetworkError wraps a transport failure talking to the ledger.
func NetworkError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrNetwork, op, err)
}
