package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token type claim values.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// ErrInvalidToken covers every verification failure: malformed structure, bad
// signature, expired token, or wrong type claim. The causes are deliberately
// indistinguishable so that verification cannot be used as an oracle.
var ErrInvalidToken = errors.New("security: invalid token")

// TokenClaims is the claim set carried by issued tokens.
type TokenClaims struct {
	jwt.RegisteredClaims
	Type  string         `json:"type"`
	Extra map[string]any `json:"extra,omitempty"`
}

// TokenService issues and verifies signed, expiring access and refresh
// tokens. It holds only immutable configuration and is safe for concurrent
// use. Rotating the secret invalidates all previously issued tokens; there is
// no key versioning.
type TokenService struct {
	secret     []byte
	method     jwt.SigningMethod
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenService creates a TokenService. algorithm must be an HMAC variant
// (HS256, HS384, HS512).
func NewTokenService(secret, algorithm string, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, fmt.Errorf("token service: secret is required")
	}

	method := jwt.GetSigningMethod(algorithm)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("token service: unsupported signing algorithm %q", algorithm)
	}

	return &TokenService{
		secret:     []byte(secret),
		method:     method,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// IssueAccess issues an access token for the subject. extra claims, if any,
// are embedded alongside the registered ones.
func (s *TokenService) IssueAccess(subject string, extra map[string]any) (string, error) {
	return s.issue(subject, TokenTypeAccess, s.accessTTL, extra)
}

// IssueRefresh issues a refresh token for the subject.
func (s *TokenService) IssueRefresh(subject string) (string, error) {
	return s.issue(subject, TokenTypeRefresh, s.refreshTTL, nil)
}

func (s *TokenService) issue(subject, tokenType string, ttl time.Duration, extra map[string]any) (string, error) {
	now := time.Now()
	claims := &TokenClaims{
		// The jti keeps two tokens for the same subject distinct even when
		// issued within the same second.
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type:  tokenType,
		Extra: extra,
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// Verify parses and validates a token and checks its type claim. Every
// failure mode returns ErrInvalidToken.
func (s *TokenService) Verify(tokenString, expectedType string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{s.method.Alg()}), jwt.WithExpirationRequired())

	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != expectedType {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// HashToken returns a one-way hash of a raw token, suitable for storage and
// comparison. Raw refresh tokens are never persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
