package handlers

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/entitlementsync/internal/application/entitlement/dto"
	"github.com/orris-inc/entitlementsync/internal/domain/entitlement"
	"github.com/orris-inc/entitlementsync/internal/interfaces/http/handlers/testutil"
	"github.com/orris-inc/entitlementsync/internal/shared/logger"
)

var registerOnce sync.Once

func registerTestValidators(t *testing.T) {
	t.Helper()
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		require.True(t, ok)
		require.NoError(t, RegisterValidators(v))
	})
}

// =====================================================================
// Mock engine
// =====================================================================

type purchaseCall struct {
	tier      entitlement.SubscriptionTier
	interval  entitlement.BillingInterval
	userEmail string
}

type mockEngine struct {
	entitlements  []entitlement.Product
	products      []entitlement.Product
	catalogLoaded bool
	closed        bool
	status        *entitlement.BackendSubscriptionInfo
	err           error

	purchases []purchaseCall
}

func (m *mockEngine) CurrentEntitlements() ([]entitlement.Product, error) {
	return m.entitlements, m.err
}

func (m *mockEngine) Products() []entitlement.Product { return m.products }
func (m *mockEngine) CatalogLoaded() bool             { return m.catalogLoaded }
func (m *mockEngine) Closed() bool                    { return m.closed }

func (m *mockEngine) Status(ctx context.Context) (*entitlement.BackendSubscriptionInfo, error) {
	return m.status, m.err
}

func (m *mockEngine) ForceCheck(ctx context.Context) (*entitlement.BackendSubscriptionInfo, error) {
	return m.status, m.err
}

func (m *mockEngine) Purchase(ctx context.Context, tier entitlement.SubscriptionTier, interval entitlement.BillingInterval, userEmail string) (*entitlement.BackendSubscriptionInfo, error) {
	m.purchases = append(m.purchases, purchaseCall{tier: tier, interval: interval, userEmail: userEmail})
	return m.status, m.err
}

// =====================================================================
// Test helpers
// =====================================================================

func activeInfo() *entitlement.BackendSubscriptionInfo {
	expires := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	return &entitlement.BackendSubscriptionInfo{
		ProductID: "com.x.plus.month",
		Status:    entitlement.LedgerStatusActive,
		PlanName:  "Plus",
		ExpiresAt: &expires,
		WillRenew: true,
	}
}

func newTestEntitlementHandler(engine *mockEngine) *EntitlementHandler {
	return NewEntitlementHandler(engine, "com.x", logger.NewNop())
}

// =====================================================================
// Tests
// =====================================================================

func TestEntitlementHandler_ListEntitlements(t *testing.T) {
	handler := newTestEntitlementHandler(&mockEngine{
		entitlements:  []entitlement.Product{{ID: "com.x.team.year", DisplayName: "Team", Tier: entitlement.TierTeamYearly}},
		catalogLoaded: true,
	})

	c, w := testutil.NewTestContext(http.MethodGet, "/v1/entitlements", nil)
	handler.ListEntitlements(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := testutil.DecodeEnvelope(t, w)
	assert.True(t, resp.Success)

	var data dto.EntitlementsDTO
	require.NoError(t, resp.DecodeData(&data))
	require.Len(t, data.Products, 1)
	assert.Equal(t, "team_yearly", data.Products[0].Tier)
	assert.True(t, data.Products[0].IsTeam)
	assert.True(t, data.CatalogLoaded)
}

func TestEntitlementHandler_ListEntitlements_Closed(t *testing.T) {
	handler := newTestEntitlementHandler(&mockEngine{err: entitlement.ErrEngineClosed})

	c, w := testutil.NewTestContext(http.MethodGet, "/v1/entitlements", nil)
	handler.ListEntitlements(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestEntitlementHandler_ListProducts(t *testing.T) {
	t.Run("catalog not loaded", func(t *testing.T) {
		handler := newTestEntitlementHandler(&mockEngine{})
		c, w := testutil.NewTestContext(http.MethodGet, "/v1/products", nil)
		handler.ListProducts(c)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("catalog loaded", func(t *testing.T) {
		handler := newTestEntitlementHandler(&mockEngine{
			catalogLoaded: true,
			products:      []entitlement.Product{{ID: "com.x.plus.month", Tier: entitlement.TierPlusMonthly, DisplayPrice: "$9.99"}},
		})
		c, w := testutil.NewTestContext(http.MethodGet, "/v1/products", nil)
		handler.ListProducts(c)

		assert.Equal(t, http.StatusOK, w.Code)
		resp := testutil.DecodeEnvelope(t, w)
		var data []dto.ProductDTO
		require.NoError(t, resp.DecodeData(&data))
		require.Len(t, data, 1)
		assert.Equal(t, "$9.99", data[0].DisplayPrice)
	})
}

func TestEntitlementHandler_GetSubscription(t *testing.T) {
	handler := newTestEntitlementHandler(&mockEngine{status: activeInfo()})

	c, w := testutil.NewTestContext(http.MethodGet, "/v1/subscription", nil)
	handler.GetSubscription(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := testutil.DecodeEnvelope(t, w)
	var data dto.SubscriptionInfoDTO
	require.NoError(t, resp.DecodeData(&data))
	assert.Equal(t, "plus_monthly", data.Tier)
	assert.True(t, data.Active)
	assert.True(t, data.WillRenew)
}

func TestEntitlementHandler_RefreshSubscription_LedgerDown(t *testing.T) {
	handler := newTestEntitlementHandler(&mockEngine{
		err: entitlement.NetworkError("sync", context.DeadlineExceeded),
	})

	c, w := testutil.NewTestContext(http.MethodPost, "/v1/subscription/refresh", nil)
	handler.RefreshSubscription(c)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	resp := testutil.DecodeEnvelope(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, "upstream_error", resp.Error.Type)
}

func TestEntitlementHandler_Purchase_Success(t *testing.T) {
	registerTestValidators(t)
	engine := &mockEngine{status: activeInfo()}
	handler := newTestEntitlementHandler(engine)

	c, w := testutil.NewTestContext(http.MethodPost, "/v1/purchases", PurchaseRequest{
		Tier:      "plus_monthly",
		Interval:  "monthly",
		UserEmail: "a@b.com",
	})
	handler.Purchase(c)

	if w.Code != http.StatusCreated {
		t.Logf("Response body: %s", w.Body.String())
	}
	assert.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, engine.purchases, 1)
	assert.Equal(t, entitlement.TierPlusMonthly, engine.purchases[0].tier)
	assert.Equal(t, entitlement.IntervalMonthly, engine.purchases[0].interval)
	assert.Equal(t, "a@b.com", engine.purchases[0].userEmail)
}

func TestEntitlementHandler_Purchase_InvalidRequest(t *testing.T) {
	registerTestValidators(t)

	tests := []struct {
		name string
		body PurchaseRequest
	}{
		{name: "missing tier", body: PurchaseRequest{Interval: "monthly"}},
		{name: "free tier is not purchasable", body: PurchaseRequest{Tier: "none", Interval: "monthly"}},
		{name: "unknown interval", body: PurchaseRequest{Tier: "team_yearly", Interval: "weekly"}},
		{name: "bad email", body: PurchaseRequest{Tier: "team_yearly", Interval: "annual", UserEmail: "nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &mockEngine{}
			handler := newTestEntitlementHandler(engine)

			c, w := testutil.NewTestContext(http.MethodPost, "/v1/purchases", tt.body)
			handler.Purchase(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, engine.purchases)

			resp := testutil.DecodeEnvelope(t, w)
			assert.Equal(t, "validation_error", resp.Error.Type)
		})
	}
}

func TestEntitlementHandler_Purchase_ErrorMapping(t *testing.T) {
	registerTestValidators(t)

	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "product not found", err: entitlement.ErrProductNotFound, wantCode: http.StatusNotFound},
		{name: "user cancelled", err: entitlement.ErrUserCancelled, wantCode: http.StatusConflict},
		{name: "pending", err: entitlement.ErrPurchasePending, wantCode: http.StatusAccepted},
		{name: "unverified", err: entitlement.ErrPurchaseUnverified, wantCode: http.StatusUnprocessableEntity},
		{name: "backend", err: &entitlement.BackendError{StatusCode: 500}, wantCode: http.StatusBadGateway},
		{name: "unknown", err: entitlement.ErrPurchaseUnknown, wantCode: http.StatusBadGateway},
		{name: "closed", err: entitlement.ErrEngineClosed, wantCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestEntitlementHandler(&mockEngine{err: tt.err})

			c, w := testutil.NewTestContext(http.MethodPost, "/v1/purchases", PurchaseRequest{
				Tier:     "team_monthly",
				Interval: "month",
			})
			handler.Purchase(c)

			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestEntitlementHandler_Health(t *testing.T) {
	t.Run("running", func(t *testing.T) {
		handler := newTestEntitlementHandler(&mockEngine{catalogLoaded: true})
		c, w := testutil.NewTestContext(http.MethodGet, "/healthz", nil)
		handler.Health(c)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp HealthResponse
		require.NoError(t, testutil.ParseResponse(w, &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.True(t, resp.CatalogLoaded)
		assert.NotEmpty(t, resp.Build.GoVersion)
	})

	t.Run("closed", func(t *testing.T) {
		handler := newTestEntitlementHandler(&mockEngine{closed: true})
		c, w := testutil.NewTestContext(http.MethodGet, "/healthz", nil)
		handler.Health(c)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}
