// Copyright 2026 The OpenEnroll Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package identity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/openenroll/openenroll/internal/enrollment"
	"github.com/openenroll/openenroll/internal/id"
)

// TokenClaims is the bearer token payload. Subject carries the principal
// id; TenantID scopes every later request to one storage artifact.
type TokenClaims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// PrincipalID returns the subject as a numeric principal id
func (c *TokenClaims) PrincipalID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// TokenIssuer mints and verifies HS256 bearer tokens.
type TokenIssuer struct {
	secret    []byte
	ttl       time.Duration
	blacklist Blacklist
	now       func() time.Time
}

// NewTokenIssuer creates a token issuer. blacklist may be nil (no
// revocation support).
func NewTokenIssuer(secret string, ttl time.Duration, blacklist Blacklist) *TokenIssuer {
	return &TokenIssuer{
		secret:    []byte(secret),
		ttl:       ttl,
		blacklist: blacklist,
		now:       time.Now,
	}
}

// Issue mints a token for the principal scoped to the tenant
func (i *TokenIssuer) Issue(tenantID string, p *enrollment.Principal) (string, error) {
	now := i.now()
	claims := TokenClaims{
		TenantID: tenantID,
		Role:     p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "openenroll",
			Subject:   strconv.FormatInt(p.ID, 10),
			ID:        id.NewUUIDv7(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, including the revocation check
func (i *TokenIssuer) Verify(ctx context.Context, tokenString string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if i.blacklist != nil {
		revoked, err := i.blacklist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check token revocation: %w", err)
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}

	return claims, nil
}

// Revoke blacklists the token until its natural expiry. A no-op without a
// blacklist.
func (i *TokenIssuer) Revoke(ctx context.Context, claims *TokenClaims) error {
	if i.blacklist == nil || claims.ExpiresAt == nil {
		return nil
	}
	ttl := claims.ExpiresAt.Time.Sub(i.now())
	return i.blacklist.Revoke(ctx, claims.ID, ttl)
}
