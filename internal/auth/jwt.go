// Package auth issues and verifies the bearer tokens the remote service uses
// to call the connector webhook.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authconnector/internal/common"
	"github.com/dmitrijs2005/authconnector/internal/tenant"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the registered claims plus the webhook key the token was
// minted for. An empty Key authorizes every webhook.
type Claims struct {
	jwt.RegisteredClaims
	Key string `json:"key,omitempty"`
}

// GenerateToken signs an HS256 token with the tenant secret. The issuer is
// the tenant public key.
func GenerateToken(creds tenant.Credentials, key string, validityDuration time.Duration) (string, error) {
	if err := creds.Validate(); err != nil {
		return "", err
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    creds.Public,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		Key: key,
	})

	tokenString, err := token.SignedString([]byte(creds.Secret))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// VerifyToken checks signature, issuer and expiry.
func VerifyToken(tokenString string, creds tenant.Credentials, leeway time.Duration) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(creds.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(creds.Public),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}

// Allows reports whether the claims authorize the given webhook key.
func (c *Claims) Allows(key string) bool {
	return c.Key == "" || c.Key == key
}
