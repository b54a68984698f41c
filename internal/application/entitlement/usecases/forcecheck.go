package usecases

import (
	"context"

	"github.com/orris-inc/entitlementsync/internal/application/entitlement/services"
	"github.com/orris-inc/entitlementsync/internal/domain/entitlement"
	"github.com/orris-inc/entitlementsync/internal/shared/logger"
)

// ForceCheckUseCase runs one synchronous reconciliation pass for an explicit
// "refresh my subscription" request.
type ForceCheckUseCase struct {
	reconciler Reconciler
	logger     logger.Interface
}

// NewForceCheckUseCase creates a new ForceCheckUseCase
func NewForceCheckUseCase(reconciler Reconciler, logger logger.Interface) *ForceCheckUseCase {
	return &ForceCheckUseCase{
		reconciler: reconciler,
		logger:     logger,
	}
}

// Execute reconciles every held entitlement and returns the current
// authoritative record, or a "none" record when nothing was ever synced.
func (uc *ForceCheckUseCase) Execute(ctx context.Context) (*entitlement.BackendSubscriptionInfo, error) {
	synced, err := uc.reconciler.Scan(ctx, services.TriggerForceCheck)
	if err != nil {
		uc.logger.Warnw("force check failed",
			"synced", synced,
			"error", err,
		)
		return nil, err
	}

	current, err := uc.reconciler.Current(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return entitlement.NoSubscription(), nil
	}

	uc.logger.Infow("force check completed",
		"synced", synced,
		"product_id", current.ProductID,
		"status", current.Status,
	)
	return current, nil
}
