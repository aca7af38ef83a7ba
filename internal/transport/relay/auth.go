package relay

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenAudience identifies relay session tokens.
const tokenAudience = "tillsync-relay"

// TenantTag returns the tenant-scoping tag value: the hex SHA-256 of the
// tenant's shared secret. The secret itself never leaves the device; relays
// and filters only ever see the hash.
func TenantTag(tenantSecret string) string {
	sum := sha256.Sum256([]byte(tenantSecret))
	return hex.EncodeToString(sum[:])
}

// SessionToken mints the HS256 session token presented in the AUTH frame.
// The token is signed with the tenant secret, so only devices holding the
// secret can authenticate into the tenant's scope.
func SessionToken(tenantSecret, author string, ttl time.Duration) (string, error) {
	if tenantSecret == "" {
		return "", fmt.Errorf("tenant secret cannot be empty")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":    author,
		"aud":    tokenAudience,
		"tenant": TenantTag(tenantSecret),
		"iat":    now.Unix(),
		"exp":    now.Add(ttl).Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(tenantSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return token, nil
}

// VerifySessionToken validates a session token against the tenant secret.
// Exposed for relay-side tooling and tests.
func VerifySessionToken(tokenString, tenantSecret string) (author string, err error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(tenantSecret), nil
	}, jwt.WithAudience(tokenAudience), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("invalid session token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("unexpected claims type")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("session token missing subject")
	}

	if claims["tenant"] != TenantTag(tenantSecret) {
		return "", fmt.Errorf("session token tenant mismatch")
	}

	return sub, nil
}
