package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/orris-inc/entitlementsync/internal/domain/entitlement"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func at(d time.Duration) *time.Time {
	t := testNow.Add(d)
	return &t
}

type fakeBilling struct {
	mu          sync.Mutex
	states      map[string][]entitlement.RenewalState
	snapshot    []entitlement.VerificationResult
	snapshotErr error
	products    []entitlement.Product
	fetchFails  int
	fetchCalls  int
}

func newFakeBilling() *fakeBilling {
	return &fakeBilling{states: make(map[string][]entitlement.RenewalState)}
}

func (f *fakeBilling) SubscriptionStatus(_ context.Context, productID string) ([]entitlement.RenewalState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[productID], nil
}

func (f *fakeBilling) FetchProducts(_ context.Context, _ []string) ([]entitlement.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchCalls <= f.fetchFails {
		return nil, errors.New("store unavailable")
	}
	return f.products, nil
}

func (f *fakeBilling) CurrentEntitlements(_ context.Context) (<-chan entitlement.VerificationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	ch := make(chan entitlement.VerificationResult, len(f.snapshot))
	for _, r := range f.snapshot {
		ch <- r
	}
	close(ch)
	return ch, nil
}

func (f *fakeBilling) TransactionUpdates(ctx context.Context) (<-chan entitlement.VerificationResult, error) {
	ch := make(chan entitlement.VerificationResult)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (f *fakeBilling) Purchase(_ context.Context, product entitlement.Product) (entitlement.PurchaseOutcome, error) {
	return entitlement.PurchaseOutcome{
		Kind:   entitlement.OutcomeSuccess,
		Result: entitlement.Verified(entitlement.Transaction{ID: "tx-" + product.ID, ProductID: product.ID, PurchaseDate: testNow}),
	}, nil
}

func (f *fakeBilling) setStates(productID string, states ...entitlement.RenewalState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[productID] = states
}

type fakeLedger struct {
	mu          sync.Mutex
	syncReqs    []entitlement.SyncRequest
	purchases   []entitlement.PurchaseRecord
	syncErrs    map[string]error
	purchaseErr error

	block    chan struct{}
	entered  chan string
	inFlight map[string]int
	maxIn    map[string]int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		syncErrs: make(map[string]error),
		inFlight: make(map[string]int),
		maxIn:    make(map[string]int),
	}
}

func (f *fakeLedger) SyncStatus(_ context.Context, req entitlement.SyncRequest) (*entitlement.BackendSubscriptionInfo, error) {
	f.mu.Lock()
	f.syncReqs = append(f.syncReqs, req)
	f.inFlight[req.ProductID]++
	if f.inFlight[req.ProductID] > f.maxIn[req.ProductID] {
		f.maxIn[req.ProductID] = f.inFlight[req.ProductID]
	}
	err := f.syncErrs[req.ProductID]
	block, entered := f.block, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- req.ProductID
	}
	if block != nil {
		<-block
	}

	f.mu.Lock()
	f.inFlight[req.ProductID]--
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &entitlement.BackendSubscriptionInfo{
		ProductID: req.ProductID,
		Status:    string(req.Status.Kind),
		PlanName:  "plan " + req.ProductID,
		WillRenew: req.Status.WillRenew,
		ExpiresAt: req.ExpirationDate,
	}, nil
}

func (f *fakeLedger) RecordPurchase(_ context.Context, rec entitlement.PurchaseRecord) (*entitlement.BackendSubscriptionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purchases = append(f.purchases, rec)
	if f.purchaseErr != nil {
		return nil, f.purchaseErr
	}
	return &entitlement.BackendSubscriptionInfo{
		ProductID: rec.ProductID,
		Status:    entitlement.LedgerStatusActive,
		PlanName:  "plan " + rec.ProductID,
		WillRenew: true,
	}, nil
}

func (f *fakeLedger) syncCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.syncReqs)
}

func (f *fakeLedger) lastSync() entitlement.SyncRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncReqs[len(f.syncReqs)-1]
}

type memoryCache struct {
	mu       sync.Mutex
	products map[string]*entitlement.BackendSubscriptionInfo
	current  *entitlement.BackendSubscriptionInfo
}

func newMemoryCache() *memoryCache {
	return &memoryCache{products: make(map[string]*entitlement.BackendSubscriptionInfo)}
}

func (m *memoryCache) Get(_ context.Context, productID string) (*entitlement.BackendSubscriptionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[productID], nil
}

func (m *memoryCache) Set(_ context.Context, productID string, info *entitlement.BackendSubscriptionInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[productID] = info
	return nil
}

func (m *memoryCache) Current(_ context.Context) (*entitlement.BackendSubscriptionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, nil
}

func (m *memoryCache) SetCurrent(_ context.Context, info *entitlement.BackendSubscriptionInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = info
	return nil
}

type recordingHistory struct {
	mu       sync.Mutex
	attempts []SyncAttempt
}

func (r *recordingHistory) Record(_ context.Context, attempt SyncAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, attempt)
	return nil
}
