// Package auth issues and validates the backend's bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dstepanov-dev/localnotes/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenTTL = 12 * time.Hour
	tokenIssuer     = "notesyncd"
)

var errMissingSigningSecret = errors.New("signing secret must be provided")

// TokenManager signs and validates HS256 bearer tokens carrying the user id
// as subject.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

// NewTokenManager returns a TokenManager. A non-positive ttl selects the
// default; a nil clock selects time.Now.
func NewTokenManager(secret []byte, ttl time.Duration, clock func() time.Time) (*TokenManager, error) {
	if len(secret) == 0 {
		return nil, errMissingSigningSecret
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &TokenManager{secret: secret, ttl: ttl, clock: clock}, nil
}

// Issue produces a signed token and its expiry for the given user id.
func (m *TokenManager) Issue(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, fmt.Errorf("user id must be provided")
	}
	now := m.clock().UTC()
	expiresAt := now.Add(m.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Validate parses a token and returns its subject user id.
func (m *TokenManager) Validate(raw string) (string, error) {
	parsed, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.clock))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", common.ErrInvalidToken
	}
	return claims.Subject, nil
}
