// Package billing adapts billing authorities to entitlement.BillingAuthority.
package billing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orris-inc/entitlementsync/internal/domain/entitlement"
	"github.com/orris-inc/entitlementsync/internal/shared/config"
	"github.com/orris-inc/entitlementsync/internal/shared/logger"
)

const (
	updateBufferSize = 16
	monthlyPeriod    = 30 * 24 * time.Hour
	annualPeriod     = 365 * 24 * time.Hour
)

var defaultPrices = map[entitlement.SubscriptionTier]string{
	entitlement.TierPlusMonthly: "$9.99",
	entitlement.TierPlusYearly:  "$99.99",
	entitlement.TierTeamMonthly: "$29.99",
	entitlement.TierTeamYearly:  "$299.99",
}

type updateSubscriber struct {
	ch  chan entitlement.VerificationResult
	ctx context.Context
}

// Sandbox is an in-process billing authority for local runs and tests. Its
// purchases succeed and verify unless an outcome was queued, and every
// mutation made through Push, Revoke or Renew is delivered on the live
// update stream.
type Sandbox struct {
	namespace string
	logger    logger.Interface
	now       func() time.Time

	mu       sync.Mutex
	products map[string]entitlement.Product
	held     map[string]entitlement.VerificationResult
	states   map[string][]entitlement.RenewalState
	outcomes []entitlement.PurchaseOutcome
	fetchErr error

	subMu       sync.RWMutex
	subscribers map[*updateSubscriber]struct{}
}

// NewSandbox creates a sandbox seeded with products, or with every product
// of namespace when products is empty.
func NewSandbox(namespace string, products []config.SandboxProduct, log logger.Interface) *Sandbox {
	s := &Sandbox{
		namespace:   namespace,
		logger:      log,
		now:         time.Now,
		products:    make(map[string]entitlement.Product),
		held:        make(map[string]entitlement.VerificationResult),
		states:      make(map[string][]entitlement.RenewalState),
		subscribers: make(map[*updateSubscriber]struct{}),
	}

	if len(products) == 0 {
		for _, id := range entitlement.AllProductIDs(namespace) {
			tier := entitlement.TierForProductID(namespace, id)
			s.products[id] = entitlement.Product{
				ID:           id,
				DisplayName:  tier.Name(),
				DisplayPrice: defaultPrices[tier],
				Tier:         tier,
			}
		}
		return s
	}

	for _, p := range products {
		tier := entitlement.TierForProductID(namespace, p.ID)
		name := p.DisplayName
		if name == "" {
			name = tier.Name()
		}
		s.products[p.ID] = entitlement.Product{
			ID:           p.ID,
			DisplayName:  name,
			DisplayPrice: p.Price,
			Tier:         tier,
		}
	}
	return s
}

// SetClock overrides the sandbox's time source.
func (s *Sandbox) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Sandbox) FetchProducts(_ context.Context, ids []string) ([]entitlement.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fetchErr != nil {
		return nil, s.fetchErr
	}

	out := make([]entitlement.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Sandbox) SubscriptionStatus(_ context.Context, productID string) ([]entitlement.RenewalState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entitlement.RenewalState(nil), s.states[productID]...), nil
}

func (s *Sandbox) CurrentEntitlements(_ context.Context) (<-chan entitlement.VerificationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.held))
	for id := range s.held {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	ch := make(chan entitlement.VerificationResult, len(ids))
	for _, id := range ids {
		ch <- s.held[id]
	}
	close(ch)
	return ch, nil
}

// TransactionUpdates subscribes to the live stream. The channel is closed
// once ctx is done.
func (s *Sandbox) TransactionUpdates(ctx context.Context) (<-chan entitlement.VerificationResult, error) {
	sub := &updateSubscriber{
		ch:  make(chan entitlement.VerificationResult, updateBufferSize),
		ctx: ctx,
	}

	s.subMu.Lock()
	s.subscribers[sub] = struct{}{}
	s.subMu.Unlock()

	go func() {
		<-ctx.Done()
		s.subMu.Lock()
		delete(s.subscribers, sub)
		close(sub.ch)
		s.subMu.Unlock()
	}()

	return sub.ch, nil
}

func (s *Sandbox) Purchase(_ context.Context, product entitlement.Product) (entitlement.PurchaseOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[product.ID]; !ok {
		return entitlement.PurchaseOutcome{}, fmt.Errorf("sandbox: unknown product %q", product.ID)
	}

	if len(s.outcomes) > 0 {
		outcome := s.outcomes[0]
		s.outcomes = s.outcomes[1:]
		if outcome.Kind == entitlement.OutcomeSuccess && outcome.Result.Transaction.ProductID == "" {
			outcome.Result.Transaction = s.newTransactionLocked(product.ID)
		}
		if outcome.Kind == entitlement.OutcomeSuccess && outcome.Result.Verified {
			s.holdLocked(outcome.Result)
		}
		return outcome, nil
	}

	result := entitlement.Verified(s.newTransactionLocked(product.ID))
	s.holdLocked(result)

	s.logger.Infow("sandbox purchase completed",
		"product_id", product.ID,
		"transaction_id", result.Transaction.ID,
	)
	return entitlement.PurchaseOutcome{Kind: entitlement.OutcomeSuccess, Result: result}, nil
}

// QueueOutcome makes the next purchase return outcome. A success outcome
// without a transaction gets a fresh one.
func (s *Sandbox) QueueOutcome(outcome entitlement.PurchaseOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, outcome)
}

// SetFetchError makes FetchProducts fail with err until cleared with nil.
func (s *Sandbox) SetFetchError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErr = err
}

// SetRenewalStates replaces the renewal states reported for productID.
func (s *Sandbox) SetRenewalStates(productID string, states ...entitlement.RenewalState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[productID] = states
}

// Hold adds a transaction to the current entitlements without notifying.
func (s *Sandbox) Hold(result entitlement.VerificationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdLocked(result)
}

// Push delivers result on the live update stream. Verified results also
// become part of the current entitlements.
func (s *Sandbox) Push(ctx context.Context, result entitlement.VerificationResult) error {
	s.mu.Lock()
	if result.Verified {
		s.holdLocked(result)
	}
	s.mu.Unlock()

	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for sub := range s.subscribers {
		select {
		case sub.ch <- result:
		case <-sub.ctx.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Revoke marks the held transaction of productID as refunded and pushes it.
func (s *Sandbox) Revoke(ctx context.Context, productID string) (entitlement.Transaction, error) {
	s.mu.Lock()
	held, ok := s.held[productID]
	if !ok {
		s.mu.Unlock()
		return entitlement.Transaction{}, fmt.Errorf("%w: %s is not held", entitlement.ErrProductNotFound, productID)
	}
	tx := held.Transaction
	revokedAt := s.now()
	tx.RevocationDate = &revokedAt
	s.states[productID] = []entitlement.RenewalState{{State: entitlement.StateRevoked, Verified: true}}
	s.mu.Unlock()

	return tx, s.Push(ctx, entitlement.Verified(tx))
}

// Renew issues the next period's transaction for productID and pushes it.
func (s *Sandbox) Renew(ctx context.Context, productID string) (entitlement.Transaction, error) {
	s.mu.Lock()
	held, ok := s.held[productID]
	if !ok {
		s.mu.Unlock()
		return entitlement.Transaction{}, fmt.Errorf("%w: %s is not held", entitlement.ErrProductNotFound, productID)
	}
	tx := s.newTransactionLocked(productID)
	tx.OriginalID = held.Transaction.OriginalID
	s.mu.Unlock()

	return tx, s.Push(ctx, entitlement.Verified(tx))
}

func (s *Sandbox) newTransactionLocked(productID string) entitlement.Transaction {
	now := s.now()
	period := monthlyPeriod
	switch entitlement.TierForProductID(s.namespace, productID) {
	case entitlement.TierPlusYearly, entitlement.TierTeamYearly:
		period = annualPeriod
	}
	expiresAt := now.Add(period)
	id := uuid.NewString()
	return entitlement.Transaction{
		ID:             id,
		OriginalID:     id,
		ProductID:      productID,
		PurchaseDate:   now,
		ExpirationDate: &expiresAt,
	}
}

func (s *Sandbox) holdLocked(result entitlement.VerificationResult) {
	productID := result.Transaction.ProductID
	s.held[productID] = result
	if _, ok := s.states[productID]; ok || !result.Transaction.EntitledAt(s.now()) {
		return
	}
	s.states[productID] = []entitlement.RenewalState{{
		State:         entitlement.StateSubscribed,
		WillAutoRenew: true,
		Verified:      true,
	}}
}
