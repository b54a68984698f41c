package ledger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/entitlementsync/internal/domain/entitlement"
	"github.com/orris-inc/entitlementsync/internal/infrastructure/auth"
	"github.com/orris-inc/entitlementsync/internal/shared/config"
	"github.com/orris-inc/entitlementsync/internal/shared/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeLedgerServer struct {
	tokens       *auth.LedgerTokenService
	lastSync     syncStatusRequest
	lastPurchase recordPurchaseRequest
	requestIDs   []string
	failWith     int
}

func (s *fakeLedgerServer) router() *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		s.requestIDs = append(s.requestIDs, c.GetHeader(requestIDHeader))
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if _, err := s.tokens.Verify(token); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if s.failWith != 0 {
			c.AbortWithStatusJSON(s.failWith, gin.H{"message": "ledger maintenance"})
			return
		}
		c.Next()
	})
	r.POST(syncPath, func(c *gin.Context) {
		if err := c.ShouldBindJSON(&s.lastSync); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"productId":     s.lastSync.ProductID,
			"status":        s.lastSync.Status,
			"planName":      "Plus",
			"expiresAt":     s.lastSync.ExpirationDate,
			"willRenew":     s.lastSync.WillRenew,
			"seatCount":     1,
			"canCreateTeam": false,
		})
	})
	r.POST(purchasePath, func(c *gin.Context) {
		if err := c.ShouldBindJSON(&s.lastPurchase); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"productId":     s.lastPurchase.ProductID,
			"status":        "active",
			"planName":      "Team",
			"willRenew":     true,
			"seatCount":     5,
			"canCreateTeam": true,
		})
	})
	return r
}

func newTestClient(t *testing.T, secret string) (*Client, *fakeLedgerServer) {
	t.Helper()
	fake := &fakeLedgerServer{tokens: auth.NewLedgerTokenService("server-secret", time.Minute)}
	srv := httptest.NewServer(fake.router())
	t.Cleanup(srv.Close)

	client := NewClient(config.LedgerConfig{BaseURL: srv.URL + "/", Timeout: 2 * time.Second},
		auth.NewLedgerTokenService(secret, time.Minute), logger.NewNop())
	return client, fake
}

func TestClient_SyncStatus(t *testing.T) {
	client, fake := newTestClient(t, "server-secret")
	expiresAt := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	info, err := client.SyncStatus(context.Background(), entitlement.SyncRequest{
		UserEmail:      "a@b.c",
		ProductID:      "com.x.plus.month",
		Status:         entitlement.DerivedStatus{Kind: entitlement.StatusActive, RenewalUndetermined: true},
		ExpirationDate: &expiresAt,
	})
	require.NoError(t, err)

	assert.Equal(t, "a@b.c", fake.lastSync.UserEmail)
	assert.Equal(t, "active", fake.lastSync.Status)
	assert.False(t, fake.lastSync.WillRenew)
	assert.True(t, fake.lastSync.RenewalUndetermined)

	assert.Equal(t, "com.x.plus.month", info.ProductID)
	assert.Equal(t, "Plus", info.PlanName)
	require.NotNil(t, info.ExpiresAt)
	assert.True(t, expiresAt.Equal(*info.ExpiresAt))
	require.Len(t, fake.requestIDs, 1)
	assert.NotEmpty(t, fake.requestIDs[0])
}

func TestClient_RecordPurchase(t *testing.T) {
	client, fake := newTestClient(t, "server-secret")

	info, err := client.RecordPurchase(context.Background(), entitlement.PurchaseRecord{
		UserEmail:     "a@b.c",
		ProductID:     "com.x.team.year",
		TransactionID: "t1",
	})
	require.NoError(t, err)

	assert.Equal(t, "t1", fake.lastPurchase.TransactionID)
	assert.True(t, info.IsActive())
	assert.Equal(t, 5, info.SeatCount)
	assert.True(t, info.CanCreateTeam)
	assert.Nil(t, info.ExpiresAt)
}

func TestClient_BackendRejection(t *testing.T) {
	client, fake := newTestClient(t, "server-secret")
	fake.failWith = http.StatusServiceUnavailable

	_, err := client.SyncStatus(context.Background(), entitlement.SyncRequest{ProductID: "p"})

	var backendErr *entitlement.BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, http.StatusServiceUnavailable, backendErr.StatusCode)
	assert.Equal(t, "ledger maintenance", backendErr.Message)
	assert.ErrorIs(t, err, entitlement.ErrBackend)
}

func TestClient_Unauthorized(t *testing.T) {
	client, _ := newTestClient(t, "wrong-secret")

	_, err := client.RecordPurchase(context.Background(), entitlement.PurchaseRecord{ProductID: "p"})

	var backendErr *entitlement.BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, http.StatusUnauthorized, backendErr.StatusCode)
	assert.Equal(t, "unauthorized", backendErr.Message)
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(config.LedgerConfig{BaseURL: url, Timeout: time.Second}, nil, logger.NewNop())
	_, err := client.SyncStatus(context.Background(), entitlement.SyncRequest{ProductID: "p"})

	assert.ErrorIs(t, err, entitlement.ErrNetwork)
	assert.NotErrorIs(t, err, entitlement.ErrBackend)
}

func TestClient_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html>"))
	}))
	defer srv.Close()

	client := NewClient(config.LedgerConfig{BaseURL: srv.URL}, nil, logger.NewNop())
	_, err := client.SyncStatus(context.Background(), entitlement.SyncRequest{ProductID: "p"})

	assert.ErrorIs(t, err, entitlement.ErrBackend)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "boom", errorMessage([]byte(`{"error":"boom"}`)))
	assert.Equal(t, "detail", errorMessage([]byte(`{"error":"boom","message":"detail"}`)))
	assert.Equal(t, "plain text", errorMessage([]byte(" plain text \n")))
}
