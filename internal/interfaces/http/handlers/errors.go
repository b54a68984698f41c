package handlers

import (
	"context"
	"errors"

	"github.com/orris-inc/entitlementsync/internal/domain/entitlement"
	apperrors "github.com/orris-inc/entitlementsync/internal/shared/errors"
)

// toAppError maps engine errors onto HTTP-facing application errors.
func toAppError(err error) error {
	if err == nil || apperrors.IsAppError(err) {
		return err
	}

	switch {
	case errors.Is(err, entitlement.ErrInvalidTier), errors.Is(err, entitlement.ErrInvalidInterval):
		return apperrors.NewValidationError("Invalid purchase request", err.Error())
	case errors.Is(err, entitlement.ErrProductNotFound):
		return apperrors.NewNotFoundError("Product not found")
	case errors.Is(err, entitlement.ErrUserCancelled):
		return apperrors.NewConflictError("Purchase cancelled by user")
	case errors.Is(err, entitlement.ErrPurchasePending):
		return apperrors.NewPendingError("Purchase is pending approval")
	case errors.Is(err, entitlement.ErrPurchaseUnverified):
		return apperrors.NewUnprocessableError("Purchase could not be verified")
	case errors.Is(err, entitlement.ErrPurchaseUnknown):
		return apperrors.NewUpstreamError("Billing authority failed the purchase")
	case errors.Is(err, entitlement.ErrNetwork):
		return apperrors.NewUpstreamError("Subscription ledger unreachable", err.Error())
	case errors.Is(err, entitlement.ErrBackend):
		return apperrors.NewUpstreamError("Subscription ledger rejected the request", err.Error())
	case errors.Is(err, entitlement.ErrCatalogUnavailable):
		return apperrors.NewUnavailableError("Product catalog is not loaded yet")
	case errors.Is(err, entitlement.ErrEngineClosed):
		return apperrors.NewUnavailableError("Subscription engine is shutting down")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperrors.NewUpstreamError("Request timed out")
	default:
		return apperrors.NewInternalError("Internal server error occurred")
	}
}
