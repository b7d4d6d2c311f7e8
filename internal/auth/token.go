package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the verified contents of an issued token. The subject is the
// user ID. Permissions are never embedded; they are resolved from the store
// on every request so role changes take effect immediately.
type Claims struct {
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 JWT binding the user identity to an expiry a
// fixed TTL from issuance. Tokens are not persisted server side; expiry is
// the only invalidation mechanism (logout does not invalidate a still-valid
// token).
func (s *Service) IssueToken(user *User) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("auth: signing secret is not configured")
	}
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return "", time.Time{}, fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	expiresAt := now.Add(s.accessTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseToken verifies structure, signature and expiry, in that order of
// failure precedence: ErrTokenMalformed when the encoding cannot be parsed,
// ErrInvalidSignature when the signature does not verify, ErrTokenExpired at
// or after the embedded expiry.
func (s *Service) ParseToken(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrTokenMalformed
	}
	if len(s.secret) == 0 {
		return nil, errors.New("auth: signing secret is not configured")
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidSignature
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenExpired
		default:
			return nil, ErrTokenMalformed
		}
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, ErrInvalidSignature
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrTokenMalformed
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, ErrTokenMalformed
	}
	if !s.now().Before(claims.ExpiresAt.Time) {
		return nil, ErrTokenExpired
	}
	return claims, nil
}
