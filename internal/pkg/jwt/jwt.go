// Package jwt signs the session cookie. The cookie wraps the opaque session
// token so a tampered cookie is rejected before any session lookup.
package jwt

import (
	"fmt"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const issuer = "folio"

var (
	mu     sync.RWMutex
	secret []byte
)

// SetSecret configures the signing secret (call on startup).
func SetSecret(s string) {
	if s == "" {
		return
	}
	mu.Lock()
	secret = []byte(s)
	mu.Unlock()
}

// HasSecret reports whether a secret was configured.
func HasSecret() bool {
	mu.RLock()
	defer mu.RUnlock()
	return len(secret) > 0
}

func key() ([]byte, error) {
	mu.RLock()
	defer mu.RUnlock()
	if len(secret) == 0 {
		return nil, fmt.Errorf("signing secret not configured")
	}
	return secret, nil
}

// Claims is the cookie payload.
type Claims struct {
	SessionToken string `json:"sid"`
	jwtlib.RegisteredClaims
}

// Sign wraps a session token that expires at expiresAt.
func Sign(sessionToken string, expiresAt time.Time) (string, error) {
	k, err := key()
	if err != nil {
		return "", err
	}
	claims := Claims{
		SessionToken: sessionToken,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			IssuedAt:  jwtlib.NewNumericDate(time.Now()),
		},
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(k)
}

// Parse validates a cookie value and returns its claims.
func Parse(tokenStr string) (*Claims, error) {
	k, err := key()
	if err != nil {
		return nil, err
	}
	token, err := jwtlib.ParseWithClaims(tokenStr, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return k, nil
	}, jwtlib.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.SessionToken == "" {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
