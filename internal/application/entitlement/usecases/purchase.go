package usecases

import (
	"context"
	"errors"
	"fmt"

	"github.com/orris-inc/entitlementsync/internal/domain/entitlement"
	"github.com/orris-inc/entitlementsync/internal/shared/logger"
	"github.com/orris-inc/entitlementsync/internal/shared/utils/logutil"
)

// PurchaseCommand asks for the product of Tier billed every Interval.
type PurchaseCommand struct {
	Tier      entitlement.SubscriptionTier
	Interval  entitlement.BillingInterval
	UserEmail string
}

// PurchaseUseCase drives a purchase from product resolution to the ledger.
type PurchaseUseCase struct {
	namespace string
	catalog   ProductLookup
	billing   PurchaseAuthority
	recorder  PurchaseRecorder
	logger    logger.Interface
}

// NewPurchaseUseCase creates a new PurchaseUseCase
func NewPurchaseUseCase(
	namespace string,
	catalog ProductLookup,
	billing PurchaseAuthority,
	recorder PurchaseRecorder,
	logger logger.Interface,
) *PurchaseUseCase {
	return &PurchaseUseCase{
		namespace: namespace,
		catalog:   catalog,
		billing:   billing,
		recorder:  recorder,
		logger:    logger,
	}
}

// Execute purchases the requested product. It fails with ErrProductNotFound,
// ErrPurchaseUnverified, ErrUserCancelled, ErrPurchasePending or
// ErrPurchaseUnknown, or with the ledger error when recording failed after a
// successful platform purchase.
func (uc *PurchaseUseCase) Execute(ctx context.Context, cmd PurchaseCommand) (*entitlement.BackendSubscriptionInfo, error) {
	productID, err := entitlement.ResolveProductID(uc.namespace, cmd.Tier, cmd.Interval)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entitlement.ErrProductNotFound, err)
	}

	product, err := uc.catalog.Lookup(productID)
	if err != nil {
		uc.logger.Warnw("purchase product lookup failed",
			"product_id", productID,
			"error", err,
		)
		if errors.Is(err, entitlement.ErrProductNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", entitlement.ErrProductNotFound, err)
	}

	outcome, err := uc.billing.Purchase(ctx, product)
	if err != nil {
		uc.logger.Errorw("billing authority purchase failed",
			"product_id", productID,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %w", entitlement.ErrPurchaseUnknown, err)
	}

	switch outcome.Kind {
	case entitlement.OutcomeSuccess:
		if !outcome.Result.Verified {
			uc.logger.Warnw("purchase returned unverified transaction",
				"product_id", productID,
				"reason", outcome.Result.Reason,
			)
			return nil, fmt.Errorf("%w: %s", entitlement.ErrPurchaseUnverified, outcome.Result.Reason)
		}
	case entitlement.OutcomeUserCancelled:
		uc.logger.Infow("purchase cancelled by user", "product_id", productID)
		return nil, entitlement.ErrUserCancelled
	case entitlement.OutcomePending:
		uc.logger.Infow("purchase pending approval", "product_id", productID)
		return nil, entitlement.ErrPurchasePending
	default:
		uc.logger.Warnw("unexpected purchase outcome",
			"product_id", productID,
			"outcome", outcome.Kind,
		)
		return nil, fmt.Errorf("%w: outcome %q", entitlement.ErrPurchaseUnknown, outcome.Kind)
	}

	uc.logger.Infow("purchase verified, recording with ledger",
		"product_id", productID,
		"transaction_id", outcome.Result.Transaction.ID,
		"user", logutil.MaskEmail(cmd.UserEmail),
	)

	return uc.recorder.RecordPurchase(ctx, outcome.Result, cmd.UserEmail)
}
