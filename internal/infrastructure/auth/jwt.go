package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/orris-inc/entitlementsync/internal/shared/biztime"
)

const (
	ledgerTokenIssuer   = "entitlementsync"
	ledgerTokenAudience = "subscription-ledger"
	defaultTokenTTL     = 10 * time.Minute
	// tokens are re-issued once less than this remains
	refreshThreshold = time.Minute
)

// LedgerClaims identify the installation and user a ledger request acts for.
type LedgerClaims struct {
	UserEmail string `json:"user_email"`
	jwt.RegisteredClaims
}

// LedgerTokenService signs short-lived HS256 bearer tokens for the ledger.
type LedgerTokenService struct {
	secret []byte
	ttl    time.Duration

	mu     sync.Mutex
	cached map[string]cachedToken
}

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// NewLedgerTokenService creates a new LedgerTokenService
func NewLedgerTokenService(secret string, ttl time.Duration) *LedgerTokenService {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &LedgerTokenService{
		secret: []byte(secret),
		ttl:    ttl,
		cached: make(map[string]cachedToken),
	}
}

// Token returns a bearer token for userEmail, reusing the previous one until
// it is about to expire.
func (s *LedgerTokenService) Token(userEmail string) (string, error) {
	now := biztime.NowUTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.cached[userEmail]; ok && now.Add(refreshThreshold).Before(cached.expiresAt) {
		return cached.token, nil
	}

	expiresAt := now.Add(s.ttl)
	claims := &LedgerClaims{
		UserEmail: userEmail,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ledgerTokenIssuer,
			Subject:   userEmail,
			Audience:  jwt.ClaimStrings{ledgerTokenAudience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign ledger token: %w", err)
	}

	s.cached[userEmail] = cachedToken{token: token, expiresAt: expiresAt}
	return token, nil
}

// Verify parses a token signed with the same secret.
func (s *LedgerTokenService) Verify(tokenString string) (*LedgerClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &LedgerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithAudience(ledgerTokenAudience), jwt.WithIssuer(ledgerTokenIssuer))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*LedgerClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
