package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/orris-inc/entitlementsync/internal/domain/entitlement"
	"github.com/orris-inc/entitlementsync/internal/domain/shared/events"
	"github.com/orris-inc/entitlementsync/internal/shared/logger"
)

const defaultSyncTimeout = 30 * time.Second

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	UserEmail   string
	SyncTimeout time.Duration
}

// PipelineOption customizes optional collaborators of a Pipeline.
type PipelineOption func(*Pipeline)

// WithSyncHistory records every ledger write attempt.
func WithSyncHistory(recorder SyncHistoryRecorder) PipelineOption {
	return func(p *Pipeline) {
		p.history = recorder
	}
}

// WithEventPublisher emits StatusUpdated and PurchaseCompleted events.
func WithEventPublisher(publisher events.Publisher) PipelineOption {
	return func(p *Pipeline) {
		p.events = publisher
	}
}

// WithClock overrides the time source used for status derivation.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		p.now = now
	}
}

// Pipeline is the single reconciliation path shared by the transaction
// listener, the periodic reconciler, purchases and forced checks.
//
// mu guards the entitlement store and the status cache writes. Ledger calls
// run outside mu: concurrent syncs of one product collapse into a single
// in-flight call, and sync and purchase writes for one product are
// serialized by a per-product lock. Different products proceed concurrently.
type Pipeline struct {
	mu    sync.Mutex
	store *entitlement.Store

	billing entitlement.BillingAuthority
	ledger  entitlement.Ledger
	cache   StatusCache
	history SyncHistoryRecorder
	events  events.Publisher

	flights singleflight.Group
	locks   *productLocks

	cfg    PipelineConfig
	now    func() time.Time
	logger logger.Interface
}

// NewPipeline creates a Pipeline over an empty entitlement store.
func NewPipeline(
	billing entitlement.BillingAuthority,
	ledger entitlement.Ledger,
	cache StatusCache,
	cfg PipelineConfig,
	log logger.Interface,
	opts ...PipelineOption,
) *Pipeline {
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = defaultSyncTimeout
	}
	p := &Pipeline{
		store:   entitlement.NewStore(),
		billing: billing,
		ledger:  ledger,
		cache:   cache,
		locks:   newProductLocks(),
		cfg:     cfg,
		now:     time.Now,
		logger:  log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type flightResult struct {
	tx   entitlement.Transaction
	info *entitlement.BackendSubscriptionInfo
}

// Apply feeds one verification result through the pipeline: unverified
// results are discarded, verified ones are upserted and synced.
func (p *Pipeline) Apply(ctx context.Context, result entitlement.VerificationResult, trigger Trigger) (*entitlement.BackendSubscriptionInfo, error) {
	tx := result.Transaction
	if !result.Verified {
		p.logger.Warnw("discarding unverified transaction",
			"product_id", tx.ProductID,
			"transaction_id", tx.ID,
			"reason", result.Reason,
			"trigger", trigger,
		)
		return nil, fmt.Errorf("%w: %s", entitlement.ErrVerificationFailed, result.Reason)
	}

	if !p.upsert(tx) {
		p.logger.Debugw("older transaction ignored",
			"product_id", tx.ProductID,
			"transaction_id", tx.ID,
			"trigger", trigger,
		)
	}

	return p.SyncProduct(ctx, tx.ProductID, trigger)
}

// SyncProduct derives the status of the transaction held for productID and
// proposes it to the ledger. A caller that joined an in-flight sync which
// carried an older transaction than the one now held re-syncs once.
//
// A cancelled ctx stops the pipeline from issuing new ledger calls; a call
// already issued runs to completion within the sync timeout.
func (p *Pipeline) SyncProduct(ctx context.Context, productID string, trigger Trigger) (*entitlement.BackendSubscriptionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := p.syncFlight(ctx, productID, trigger)
	if res != nil && ctx.Err() == nil {
		if held, ok := p.held(productID); ok && !sameTransaction(held, res.tx) {
			p.logger.Debugw("held transaction changed during sync, syncing again",
				"product_id", productID,
				"synced_transaction_id", res.tx.ID,
				"held_transaction_id", held.ID,
			)
			res, err = p.syncFlight(ctx, productID, trigger)
		}
	}
	if err != nil {
		return nil, err
	}
	return res.info, nil
}

func (p *Pipeline) syncFlight(ctx context.Context, productID string, trigger Trigger) (*flightResult, error) {
	v, err, shared := p.flights.Do(productID, func() (any, error) {
		return p.syncOnce(ctx, productID, trigger)
	})
	if shared {
		p.logger.Debugw("sync shared with in-flight call",
			"product_id", productID,
			"trigger", trigger,
		)
	}
	res, _ := v.(*flightResult)
	return res, err
}

func (p *Pipeline) syncOnce(ctx context.Context, productID string, trigger Trigger) (*flightResult, error) {
	ctx, cancel := p.syncContext(ctx)
	defer cancel()

	if err := p.locks.acquire(ctx, productID); err != nil {
		return nil, err
	}
	defer p.locks.release(productID)

	tx, ok := p.held(productID)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not held", entitlement.ErrProductNotFound, productID)
	}

	status := entitlement.DeriveStatus(ctx, tx, p.billing, p.now())
	if status.RenewalUndetermined {
		p.logger.Warnw("renewal intent undetermined, proposing will_renew=false",
			"product_id", productID,
			"transaction_id", tx.ID,
		)
	}

	req := entitlement.SyncRequest{
		UserEmail:      p.cfg.UserEmail,
		ProductID:      productID,
		Status:         status,
		ExpirationDate: tx.ExpirationDate,
	}

	started := time.Now()
	info, err := p.ledger.SyncStatus(ctx, req)
	if err == nil && info == nil {
		err = fmt.Errorf("%w: empty response", entitlement.ErrBackend)
	}
	p.recordAttempt(ctx, SyncAttempt{
		Operation:     OperationSync,
		Trigger:       trigger,
		ProductID:     productID,
		TransactionID: tx.ID,
		Status:        status,
		Result:        info,
		Err:           err,
		Duration:      time.Since(started),
		AttemptedAt:   p.now(),
	})
	if err != nil {
		p.logger.Warnw("backend sync failed",
			"product_id", productID,
			"transaction_id", tx.ID,
			"status", status.Kind,
			"will_renew", status.WillRenew,
			"trigger", trigger,
			"error", err,
		)
		return &flightResult{tx: tx}, err
	}

	merged := p.commit(ctx, productID, info)
	p.logger.Infow("subscription status synced",
		"product_id", productID,
		"transaction_id", tx.ID,
		"status", status.Kind,
		"will_renew", status.WillRenew,
		"ledger_status", merged.Status,
		"trigger", trigger,
	)
	p.publish(entitlement.NewStatusUpdatedEvent(productID, trigger.String(), *merged, p.now()))

	return &flightResult{tx: tx, info: merged}, nil
}

// RecordPurchase registers a freshly purchased transaction with the ledger on
// behalf of userEmail, falling back to the configured user when empty. It
// issues at most one ledger write per transaction even when called
// concurrently, and notifies observers only after the ledger confirmed.
func (p *Pipeline) RecordPurchase(ctx context.Context, result entitlement.VerificationResult, userEmail string) (*entitlement.BackendSubscriptionInfo, error) {
	tx := result.Transaction
	if !result.Verified {
		p.logger.Warnw("purchase returned unverified transaction",
			"product_id", tx.ProductID,
			"transaction_id", tx.ID,
			"reason", result.Reason,
		)
		return nil, fmt.Errorf("%w: %s", entitlement.ErrPurchaseUnverified, result.Reason)
	}

	p.upsert(tx)

	key := "purchase:" + tx.ProductID + ":" + tx.ID
	v, err, _ := p.flights.Do(key, func() (any, error) {
		return p.recordOnce(ctx, tx, userEmail)
	})
	if err != nil {
		return nil, err
	}
	return v.(*entitlement.BackendSubscriptionInfo), nil
}

func (p *Pipeline) recordOnce(ctx context.Context, tx entitlement.Transaction, userEmail string) (*entitlement.BackendSubscriptionInfo, error) {
	if userEmail == "" {
		userEmail = p.cfg.UserEmail
	}

	ctx, cancel := p.syncContext(ctx)
	defer cancel()

	if err := p.locks.acquire(ctx, tx.ProductID); err != nil {
		return nil, err
	}
	defer p.locks.release(tx.ProductID)

	rec := entitlement.PurchaseRecord{
		UserEmail:     userEmail,
		ProductID:     tx.ProductID,
		TransactionID: tx.ID,
	}

	started := time.Now()
	info, err := p.ledger.RecordPurchase(ctx, rec)
	if err == nil && info == nil {
		err = fmt.Errorf("%w: empty response", entitlement.ErrBackend)
	}
	p.recordAttempt(ctx, SyncAttempt{
		Operation:     OperationPurchase,
		Trigger:       TriggerPurchase,
		ProductID:     tx.ProductID,
		TransactionID: tx.ID,
		Status:        entitlement.DeriveStatus(ctx, tx, nil, p.now()),
		Result:        info,
		Err:           err,
		Duration:      time.Since(started),
		AttemptedAt:   p.now(),
	})
	if err != nil {
		p.logger.Warnw("recording purchase failed, periodic reconciliation will retry",
			"product_id", tx.ProductID,
			"transaction_id", tx.ID,
			"error", err,
		)
		return nil, err
	}

	merged := p.commit(ctx, tx.ProductID, info)
	p.logger.Infow("purchase recorded",
		"product_id", tx.ProductID,
		"transaction_id", tx.ID,
		"ledger_status", merged.Status,
	)

	now := p.now()
	p.publish(entitlement.NewPurchaseCompletedEvent(tx.ProductID, tx.ID, *merged, now))
	p.publish(entitlement.NewStatusUpdatedEvent(tx.ProductID, TriggerPurchase.String(), *merged, now))

	return merged, nil
}

// Scan reads the billing authority's current-entitlements snapshot into the
// store and syncs every held product. It returns how many products synced;
// per-product failures are joined into the error.
func (p *Pipeline) Scan(ctx context.Context, trigger Trigger) (int, error) {
	if _, err := p.drainSnapshot(ctx, trigger); err != nil {
		return 0, err
	}

	var errs []error
	synced := 0
	for _, tx := range p.Snapshot() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := p.SyncProduct(ctx, tx.ProductID, trigger); err != nil {
			errs = append(errs, fmt.Errorf("sync %s: %w", tx.ProductID, err))
			continue
		}
		synced++
	}

	return synced, errors.Join(errs...)
}

// Prime fills the store from the current-entitlements snapshot without
// talking to the ledger.
func (p *Pipeline) Prime(ctx context.Context) (int, error) {
	return p.drainSnapshot(ctx, TriggerPrime)
}

func (p *Pipeline) drainSnapshot(ctx context.Context, trigger Trigger) (int, error) {
	results, err := p.billing.CurrentEntitlements(ctx)
	if err != nil {
		return 0, fmt.Errorf("read current entitlements: %w", err)
	}

	stored := 0
	for result := range results {
		if !result.Verified {
			p.logger.Warnw("discarding unverified entitlement",
				"product_id", result.Transaction.ProductID,
				"transaction_id", result.Transaction.ID,
				"reason", result.Reason,
				"trigger", trigger,
			)
			continue
		}
		if p.upsert(result.Transaction) {
			stored++
		}
	}

	if err := ctx.Err(); err != nil {
		return stored, err
	}
	return stored, nil
}

// Snapshot returns the held transactions ordered by product identifier.
func (p *Pipeline) Snapshot() []entitlement.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.All()
}

// Current returns the last authoritative record promoted to "current", or
// nil when nothing was synced yet.
func (p *Pipeline) Current(ctx context.Context) (*entitlement.BackendSubscriptionInfo, error) {
	return p.cache.Current(ctx)
}

// Status returns the last authoritative record for one product.
func (p *Pipeline) Status(ctx context.Context, productID string) (*entitlement.BackendSubscriptionInfo, error) {
	return p.cache.Get(ctx, productID)
}

func (p *Pipeline) upsert(tx entitlement.Transaction) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.Upsert(tx)
}

func (p *Pipeline) held(productID string) (entitlement.Transaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.Get(productID)
}

// commit stores the ledger's record and promotes it to current unless it
// would replace an active record of another product with an inactive one.
func (p *Pipeline) commit(ctx context.Context, productID string, info *entitlement.BackendSubscriptionInfo) *entitlement.BackendSubscriptionInfo {
	merged := *info
	if merged.ProductID == "" {
		merged.ProductID = productID
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.cache.Set(ctx, productID, &merged); err != nil {
		p.logger.Warnw("failed to cache subscription status",
			"product_id", productID,
			"error", err,
		)
	}

	current, err := p.cache.Current(ctx)
	if err != nil {
		p.logger.Warnw("failed to read current subscription status",
			"error", err,
		)
		current = nil
	}

	if promotes(current, &merged) {
		if err := p.cache.SetCurrent(ctx, &merged); err != nil {
			p.logger.Warnw("failed to cache current subscription status",
				"product_id", productID,
				"error", err,
			)
		}
	}

	return &merged
}

func promotes(current, next *entitlement.BackendSubscriptionInfo) bool {
	return current == nil ||
		current.ProductID == next.ProductID ||
		next.IsActive() ||
		!current.IsActive()
}

func (p *Pipeline) publish(event events.DomainEvent) {
	if p.events == nil {
		return
	}
	p.events.Publish(event)
}

func (p *Pipeline) recordAttempt(ctx context.Context, attempt SyncAttempt) {
	if p.history == nil {
		return
	}
	if err := p.history.Record(ctx, attempt); err != nil {
		p.logger.Warnw("failed to record sync attempt",
			"product_id", attempt.ProductID,
			"operation", attempt.Operation,
			"error", err,
		)
	}
}

// syncContext detaches a ledger call from its trigger's cancellation: once
// issued, a sync either completes or fails within the sync timeout.
func (p *Pipeline) syncContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), p.cfg.SyncTimeout)
}

func sameTransaction(a, b entitlement.Transaction) bool {
	return a.ID == b.ID &&
		a.PurchaseDate.Equal(b.PurchaseDate) &&
		sameTime(a.ExpirationDate, b.ExpirationDate) &&
		sameTime(a.RevocationDate, b.RevocationDate)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
