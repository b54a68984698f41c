package usecases

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/orris-inc/entitlementsync/internal/application/entitlement/services"
	"github.com/orris-inc/entitlementsync/internal/domain/entitlement"
)

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) Lookup(productID string) (entitlement.Product, error) {
	args := m.Called(productID)
	return args.Get(0).(entitlement.Product), args.Error(1)
}

type mockBilling struct {
	mock.Mock
}

func (m *mockBilling) Purchase(ctx context.Context, product entitlement.Product) (entitlement.PurchaseOutcome, error) {
	args := m.Called(ctx, product)
	return args.Get(0).(entitlement.PurchaseOutcome), args.Error(1)
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) RecordPurchase(ctx context.Context, result entitlement.VerificationResult, userEmail string) (*entitlement.BackendSubscriptionInfo, error) {
	args := m.Called(ctx, result, userEmail)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entitlement.BackendSubscriptionInfo), args.Error(1)
}

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) Scan(ctx context.Context, trigger services.Trigger) (int, error) {
	args := m.Called(ctx, trigger)
	return args.Int(0), args.Error(1)
}

func (m *mockReconciler) Current(ctx context.Context) (*entitlement.BackendSubscriptionInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entitlement.BackendSubscriptionInfo), args.Error(1)
}

type mockApplier struct {
	mock.Mock
}

func (m *mockApplier) Apply(ctx context.Context, result entitlement.VerificationResult, trigger services.Trigger) (*entitlement.BackendSubscriptionInfo, error) {
	args := m.Called(ctx, result, trigger)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entitlement.BackendSubscriptionInfo), args.Error(1)
}
