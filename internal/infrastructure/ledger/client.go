// Package ledger talks to the backend subscription ledger, the system of
// record for feature gating, billing periods, seats and team eligibility.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/orris-inc/entitlementsync/internal/domain/entitlement"
	"github.com/orris-inc/entitlementsync/internal/shared/config"
	"github.com/orris-inc/entitlementsync/internal/shared/logger"
	"github.com/orris-inc/entitlementsync/internal/shared/utils/logutil"
)

const (
	syncPath          = "/subscriptions/sync"
	purchasePath      = "/subscriptions/purchase"
	defaultTimeout    = 30 * time.Second
	maxResponseBytes  = 1 << 20
	requestIDHeader   = "X-Request-ID"
	errorBodyLogLimit = 256
)

// TokenSource issues bearer tokens for ledger requests.
type TokenSource interface {
	Token(userEmail string) (string, error)
}

// Client implements entitlement.Ledger over HTTP/JSON.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     logger.Interface
}

// NewClient creates a ledger client. tokens may be nil for unauthenticated
// deployments.
func NewClient(cfg config.LedgerConfig, tokens TokenSource, log logger.Interface) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		tokens: tokens,
		logger: log,
	}
}

type syncStatusRequest struct {
	UserEmail           string     `json:"userEmail"`
	ProductID           string     `json:"productId"`
	Status              string     `json:"status"`
	WillRenew           bool       `json:"willRenew"`
	RenewalUndetermined bool       `json:"renewalUndetermined,omitempty"`
	ExpirationDate      *time.Time `json:"expirationDate,omitempty"`
}

type recordPurchaseRequest struct {
	UserEmail     string `json:"userEmail"`
	ProductID     string `json:"productId"`
	TransactionID string `json:"transactionId"`
}

type subscriptionResponse struct {
	ProductID     string     `json:"productId"`
	Status        string     `json:"status"`
	PlanName      string     `json:"planName"`
	ExpiresAt     *time.Time `json:"expiresAt"`
	WillRenew     bool       `json:"willRenew"`
	SeatCount     int        `json:"seatCount"`
	CanCreateTeam bool       `json:"canCreateTeam"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SyncStatus proposes a locally derived status and returns the ledger's
// merged record.
func (c *Client) SyncStatus(ctx context.Context, req entitlement.SyncRequest) (*entitlement.BackendSubscriptionInfo, error) {
	body := syncStatusRequest{
		UserEmail:           req.UserEmail,
		ProductID:           req.ProductID,
		Status:              req.Status.Kind.String(),
		WillRenew:           req.Status.WillRenew,
		RenewalUndetermined: req.Status.RenewalUndetermined,
		ExpirationDate:      req.ExpirationDate,
	}
	return c.post(ctx, "sync status", syncPath, req.UserEmail, body)
}

// RecordPurchase registers a new billing relationship.
func (c *Client) RecordPurchase(ctx context.Context, rec entitlement.PurchaseRecord) (*entitlement.BackendSubscriptionInfo, error) {
	body := recordPurchaseRequest{
		UserEmail:     rec.UserEmail,
		ProductID:     rec.ProductID,
		TransactionID: rec.TransactionID,
	}
	return c.post(ctx, "record purchase", purchasePath, rec.UserEmail, body)
}

func (c *Client) post(ctx context.Context, op, path, userEmail string, payload any) (*entitlement.BackendSubscriptionInfo, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, requestID)

	if c.tokens != nil {
		token, err := c.tokens.Token(userEmail)
		if err != nil {
			return nil, fmt.Errorf("failed to issue ledger token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, entitlement.NetworkError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, entitlement.NetworkError(op, err)
	}

	c.logger.Debugw("ledger request completed",
		"op", op,
		"request_id", requestID,
		"user", logutil.MaskEmail(userEmail),
		"status_code", resp.StatusCode,
		"duration", time.Since(started),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &entitlement.BackendError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(data),
		}
	}

	var result subscriptionResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, &entitlement.BackendError{
			StatusCode: resp.StatusCode,
			Message:    "malformed response: " + err.Error(),
		}
	}

	return &entitlement.BackendSubscriptionInfo{
		ProductID:     result.ProductID,
		Status:        result.Status,
		PlanName:      result.PlanName,
		ExpiresAt:     result.ExpiresAt,
		WillRenew:     result.WillRenew,
		SeatCount:     result.SeatCount,
		CanCreateTeam: result.CanCreateTeam,
	}, nil
}

func errorMessage(data []byte) string {
	var body errorResponse
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return logutil.TruncateForLog(strings.TrimSpace(string(data)), errorBodyLogLimit)
}
