package usecases

import (
	"context"

	"github.com/orris-inc/entitlementsync/internal/application/entitlement/services"
	"github.com/orris-inc/entitlementsync/internal/shared/logger"
)

// ReconcileEntitlementsUseCase is the periodic backstop against missed or
// delayed transaction updates.
type ReconcileEntitlementsUseCase struct {
	reconciler Reconciler
	logger     logger.Interface
}

// NewReconcileEntitlementsUseCase creates a new ReconcileEntitlementsUseCase
func NewReconcileEntitlementsUseCase(reconciler Reconciler, logger logger.Interface) *ReconcileEntitlementsUseCase {
	return &ReconcileEntitlementsUseCase{
		reconciler: reconciler,
		logger:     logger,
	}
}

// Execute scans the current entitlements and syncs every held product.
// Returns the number of products synced.
func (uc *ReconcileEntitlementsUseCase) Execute(ctx context.Context) (int, error) {
	synced, err := uc.reconciler.Scan(ctx, services.TriggerPeriodic)
	if err != nil {
		return synced, err
	}

	uc.logger.Debugw("periodic reconciliation completed", "synced", synced)
	return synced, nil
}
