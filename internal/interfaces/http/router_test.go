package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appentitlement "github.com/orris-inc/entitlementsync/internal/application/entitlement"
	"github.com/orris-inc/entitlementsync/internal/domain/entitlement"
	"github.com/orris-inc/entitlementsync/internal/infrastructure/billing"
	"github.com/orris-inc/entitlementsync/internal/infrastructure/cache"
	"github.com/orris-inc/entitlementsync/internal/shared/config"
	"github.com/orris-inc/entitlementsync/internal/shared/logger"
)

type acceptingLedger struct{}

func (acceptingLedger) SyncStatus(_ context.Context, req entitlement.SyncRequest) (*entitlement.BackendSubscriptionInfo, error) {
	return &entitlement.BackendSubscriptionInfo{
		ProductID: req.ProductID,
		Status:    req.Status.Kind.String(),
		WillRenew: req.Status.WillRenew,
	}, nil
}

func (acceptingLedger) RecordPurchase(_ context.Context, rec entitlement.PurchaseRecord) (*entitlement.BackendSubscriptionInfo, error) {
	return &entitlement.BackendSubscriptionInfo{
		ProductID:     rec.ProductID,
		Status:        entitlement.LedgerStatusActive,
		PlanName:      "Team",
		SeatCount:     5,
		CanCreateTeam: true,
	}, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine, err := appentitlement.NewSubscriptionEngine(config.EngineConfig{
		ProductNamespace:  "com.x",
		ReconcileInterval: time.Hour,
	}, appentitlement.Dependencies{
		Billing: billing.NewSandbox("com.x", nil, logger.NewNop()),
		Ledger:  acceptingLedger{},
		Cache:   cache.NewMemoryStatusCache(),
		Logger:  logger.NewNop(),
	})
	require.NoError(t, err)
	require.NoError(t, engine.Start(context.Background()))
	t.Cleanup(func() { _ = engine.Close() })

	router, err := NewRouter(engine, "com.x", logger.NewNop())
	require.NoError(t, err)
	router.SetupRoutes()
	return router.GetEngine()
}

func serve(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_PurchaseFlow(t *testing.T) {
	r := newTestRouter(t)

	w := serve(r, http.MethodGet, "/v1/subscription", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"none"`)

	w = serve(r, http.MethodPost, "/v1/purchases", map[string]string{
		"tier":       "team_monthly",
		"interval":   "monthly",
		"user_email": "a@b.com",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"can_create_team":true`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = serve(r, http.MethodGet, "/v1/entitlements", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"com.x.team.month"`)

	w = serve(r, http.MethodGet, "/v1/subscription", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tier":"team_monthly"`)

	w = serve(r, http.MethodPost, "/v1/subscription/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"product_id":"com.x.team.month"`)
}

func TestRouter_RejectsInvalidTier(t *testing.T) {
	r := newTestRouter(t)

	w := serve(r, http.MethodPost, "/v1/purchases", map[string]string{"tier": "gold", "interval": "monthly"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "tier must be a purchasable subscription tier")
}

func TestRouter_Health(t *testing.T) {
	r := newTestRouter(t)

	w := serve(r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"catalog_loaded":true`)
}
