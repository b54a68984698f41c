package usecases

import (
	"context"
	"errors"

	"github.com/orris-inc/entitlementsync/internal/application/entitlement/services"
	"github.com/orris-inc/entitlementsync/internal/domain/entitlement"
	"github.com/orris-inc/entitlementsync/internal/shared/logger"
)

// ReconcileTransactionUseCase handles one update from the live transaction
// stream.
type ReconcileTransactionUseCase struct {
	applier TransactionApplier
	logger  logger.Interface
}

// NewReconcileTransactionUseCase creates a new ReconcileTransactionUseCase
func NewReconcileTransactionUseCase(applier TransactionApplier, logger logger.Interface) *ReconcileTransactionUseCase {
	return &ReconcileTransactionUseCase{
		applier: applier,
		logger:  logger,
	}
}

// Execute applies the update. Unverified updates are dropped silently since
// the pipeline already logged them; ledger failures are returned for logging
// and left to the next periodic pass.
func (uc *ReconcileTransactionUseCase) Execute(ctx context.Context, result entitlement.VerificationResult) error {
	_, err := uc.applier.Apply(ctx, result, services.TriggerListener)
	if errors.Is(err, entitlement.ErrVerificationFailed) {
		return nil
	}
	return err
}
