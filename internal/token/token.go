// Package token implements the stateless session credential issued at
// activation: an HS256 JWT binding a device fingerprint to a user id.
// Liveness (user active, device not blocked) is checked separately
// against the database on every request, so the token itself never
// needs revoking.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	Fingerprint string `json:"fp"`
	UserID      string `json:"uid"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

// Sign issues a credential scoped to (fingerprint, userID).
func (i *Issuer) Sign(fingerprint, userID string) (string, error) {
	now := time.Now()
	claims := Claims{
		Fingerprint: fingerprint,
		UserID:      userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(i.secret)
}

// Verify checks signature and expiry and requires the embedded
// fingerprint to exactly match the one presented with the request.
// Returns the owning user id. Any failure is opaque: callers treat it
// as unauthorized without distinguishing why.
func (i *Issuer) Verify(tokenString, fingerprint string) (string, error) {
	if tokenString == "" || fingerprint == "" {
		return "", fmt.Errorf("missing token or fingerprint")
	}

	var claims Claims
	t, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return "", err
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid token")
	}

	if claims.Fingerprint != fingerprint {
		return "", fmt.Errorf("fingerprint mismatch")
	}
	if claims.UserID == "" {
		return "", fmt.Errorf("token has no user id")
	}

	return claims.UserID, nil
}
