// Package entitlement composes the reconciliation engine: the transaction
// listener, the periodic reconciler, purchases and forced checks, all feeding
// one serialized pipeline.
package entitlement

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/orris-inc/entitlementsync/internal/application/entitlement/services"
	"github.com/orris-inc/entitlementsync/internal/application/entitlement/usecases"
	domain "github.com/orris-inc/entitlementsync/internal/domain/entitlement"
	"github.com/orris-inc/entitlementsync/internal/domain/shared/events"
	"github.com/orris-inc/entitlementsync/internal/infrastructure/scheduler"
	"github.com/orris-inc/entitlementsync/internal/shared/config"
	"github.com/orris-inc/entitlementsync/internal/shared/goroutine"
	"github.com/orris-inc/entitlementsync/internal/shared/logger"
)

// ReconcileScheduler runs the periodic reconciliation job.
type ReconcileScheduler interface {
	RegisterReconciliationJob(job scheduler.BatchJob, interval, timeout time.Duration) error
	Start()
	Stop() error
}

// Dependencies are the collaborators of a SubscriptionEngine. History,
// Scheduler, Clock and Logger are optional.
type Dependencies struct {
	Billing   domain.BillingAuthority
	Ledger    domain.Ledger
	Cache     services.StatusCache
	History   services.SyncHistoryRecorder
	Scheduler ReconcileScheduler
	Clock     func() time.Time
	Logger    logger.Interface
}

// SubscriptionEngine is the composition root of entitlement reconciliation.
type SubscriptionEngine struct {
	cfg    config.EngineConfig
	now    func() time.Time
	logger logger.Interface

	pipeline  *services.Pipeline
	catalog   *services.Catalog
	listener  *TransactionListener
	scheduler ReconcileScheduler
	bus       *events.Bus

	purchaseUC  *usecases.PurchaseUseCase
	forceCheck  *usecases.ForceCheckUseCase
	reconcileUC *usecases.ReconcileEntitlementsUseCase

	lifecycleMu sync.Mutex
	started     bool
	closed      atomic.Bool
	closeErr    error

	runCtx    context.Context
	runCancel context.CancelFunc
	bgWG      sync.WaitGroup
}

// NewSubscriptionEngine wires the engine without starting it.
func NewSubscriptionEngine(cfg config.EngineConfig, deps Dependencies) (*SubscriptionEngine, error) {
	if deps.Billing == nil || deps.Ledger == nil || deps.Cache == nil {
		return nil, errors.New("subscription engine requires billing, ledger and cache")
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Scheduler == nil {
		manager, err := scheduler.NewSchedulerManager(deps.Logger.Named("scheduler"),
			scheduler.WithStopTimeout(stopTimeout(cfg.SyncTimeout)))
		if err != nil {
			return nil, err
		}
		deps.Scheduler = manager
	}

	log := deps.Logger
	bus := events.NewBus(cfg.EventBuffer)

	opts := []services.PipelineOption{
		services.WithClock(deps.Clock),
		services.WithEventPublisher(bus),
	}
	if deps.History != nil {
		opts = append(opts, services.WithSyncHistory(deps.History))
	}

	pipeline := services.NewPipeline(deps.Billing, deps.Ledger, deps.Cache,
		services.PipelineConfig{UserEmail: cfg.UserEmail, SyncTimeout: cfg.SyncTimeout},
		log.Named("pipeline"),
		opts...,
	)
	catalog := services.NewCatalog(deps.Billing, cfg.ProductNamespace, services.DefaultCatalogRetryConfig(), log.Named("catalog"))

	runCtx, runCancel := context.WithCancel(context.Background())

	return &SubscriptionEngine{
		cfg:       cfg,
		now:       deps.Clock,
		logger:    log,
		pipeline:  pipeline,
		catalog:   catalog,
		scheduler: deps.Scheduler,
		bus:       bus,
		listener: NewTransactionListener(deps.Billing,
			usecases.NewReconcileTransactionUseCase(pipeline, log), log.Named("listener")),
		purchaseUC:  usecases.NewPurchaseUseCase(cfg.ProductNamespace, catalog, deps.Billing, pipeline, log),
		forceCheck:  usecases.NewForceCheckUseCase(pipeline, log),
		reconcileUC: usecases.NewReconcileEntitlementsUseCase(pipeline, log),
		runCtx:      runCtx,
		runCancel:   runCancel,
	}, nil
}

// Start fetches the catalog and primes the entitlement store concurrently,
// then starts the transaction listener and the periodic reconciler. A failed
// catalog fetch keeps retrying in the background.
func (e *SubscriptionEngine) Start(ctx context.Context) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if e.closed.Load() {
		return domain.ErrEngineClosed
	}
	if e.started {
		return nil
	}

	var catalogErr error
	var g errgroup.Group
	g.Go(func() error {
		catalogErr = e.catalog.Refresh(ctx)
		return nil
	})
	g.Go(func() error {
		primed, err := e.pipeline.Prime(ctx)
		if err != nil {
			e.logger.Warnw("priming entitlements failed", "error", err)
			return nil
		}
		e.logger.Infow("entitlements primed", "count", primed)
		return nil
	})
	_ = g.Wait()

	if catalogErr != nil {
		e.logger.Warnw("product catalog unavailable, retrying in background", "error", catalogErr)
		e.bgWG.Add(1)
		goroutine.SafeGo(e.logger, "catalog-load", func() {
			defer e.bgWG.Done()
			if err := e.catalog.Load(e.runCtx); err != nil && !errors.Is(err, context.Canceled) {
				e.logger.Errorw("product catalog load abandoned", "error", err)
			}
		})
	}

	if err := e.listener.Start(e.runCtx); err != nil {
		return err
	}

	if err := e.scheduler.RegisterReconciliationJob(e.reconcileUC, e.cfg.ReconcileInterval, 0); err != nil {
		e.listener.Stop()
		return err
	}
	e.scheduler.Start()

	e.started = true
	e.logger.Infow("subscription engine started",
		"reconcile_interval", e.cfg.ReconcileInterval.String(),
		"namespace", e.cfg.ProductNamespace,
	)
	return nil
}

// CurrentEntitlements returns the products whose held transaction still
// grants access, ordered by product identifier.
func (e *SubscriptionEngine) CurrentEntitlements() ([]domain.Product, error) {
	if e.closed.Load() {
		return nil, domain.ErrEngineClosed
	}

	now := e.now()
	products := make([]domain.Product, 0)
	for _, tx := range e.pipeline.Snapshot() {
		if !tx.EntitledAt(now) {
			continue
		}
		product, err := e.catalog.Lookup(tx.ProductID)
		if err != nil {
			product = domain.Product{
				ID:   tx.ProductID,
				Tier: domain.TierForProductID(e.cfg.ProductNamespace, tx.ProductID),
			}
		}
		products = append(products, product)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

// Purchase buys the product for tier and interval on behalf of userEmail.
func (e *SubscriptionEngine) Purchase(ctx context.Context, tier domain.SubscriptionTier, interval domain.BillingInterval, userEmail string) (*domain.BackendSubscriptionInfo, error) {
	if e.closed.Load() {
		return nil, domain.ErrEngineClosed
	}
	return e.purchaseUC.Execute(ctx, usecases.PurchaseCommand{
		Tier:      tier,
		Interval:  interval,
		UserEmail: userEmail,
	})
}

// ForceCheck synchronously drives one reconciliation pass.
func (e *SubscriptionEngine) ForceCheck(ctx context.Context) (*domain.BackendSubscriptionInfo, error) {
	if e.closed.Load() {
		return nil, domain.ErrEngineClosed
	}
	return e.forceCheck.Execute(ctx)
}

// Status returns the last authoritative record without contacting the ledger.
func (e *SubscriptionEngine) Status(ctx context.Context) (*domain.BackendSubscriptionInfo, error) {
	if e.closed.Load() {
		return nil, domain.ErrEngineClosed
	}
	current, err := e.pipeline.Current(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return domain.NoSubscription(), nil
	}
	return current, nil
}

// Products returns the loaded catalog.
func (e *SubscriptionEngine) Products() []domain.Product {
	return e.catalog.Products()
}

// CatalogLoaded reports whether the catalog was fetched at least once.
func (e *SubscriptionEngine) CatalogLoaded() bool {
	return e.catalog.Loaded()
}

// Subscribe registers an observer for the given event types, or all events.
func (e *SubscriptionEngine) Subscribe(eventTypes ...string) *events.Subscription {
	return e.bus.Subscribe(eventTypes...)
}

// Closed reports whether Close was called.
func (e *SubscriptionEngine) Closed() bool {
	return e.closed.Load()
}

// Close stops the periodic reconciler, unsubscribes the transaction listener
// and closes observer subscriptions. The reconciler cannot fire once Close
// returns. Close is idempotent.
func (e *SubscriptionEngine) Close() error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if e.closed.Swap(true) {
		return e.closeErr
	}

	e.closeErr = e.scheduler.Stop()
	e.runCancel()
	e.listener.Stop()
	e.bgWG.Wait()
	e.bus.Close()

	e.logger.Infow("subscription engine closed")
	return e.closeErr
}

// stopTimeout leaves room for one ledger sync that is already in flight when
// the engine closes.
func stopTimeout(syncTimeout time.Duration) time.Duration {
	if syncTimeout <= 0 {
		return scheduler.DefaultStopTimeout
	}
	return syncTimeout + 5*time.Second
}
