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
	"testing"
	"time"

	"github.com/openenroll/openenroll/internal/enrollment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates token issuance and verification boundaries.
// Scope: Unit Test
// Security: Bearer token integrity
// Expected: Tokens verify with the issuing secret only, expire after the
// TTL, and are rejected after revocation.
// Test Case ID: TOK-01
func TestTokenIssuer(t *testing.T) {
	ctx := context.Background()
	principal := &enrollment.Principal{ID: 42, Username: "alex", Role: enrollment.RoleAdministrator}

	t.Run("RoundTrip", func(t *testing.T) {
		issuer := NewTokenIssuer("secret-a", time.Hour, nil)
		token, err := issuer.Issue("school-a", principal)
		require.NoError(t, err)

		claims, err := issuer.Verify(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "school-a", claims.TenantID)
		assert.Equal(t, enrollment.RoleAdministrator, claims.Role)
		assert.NotEmpty(t, claims.ID)
	})

	t.Run("WrongSecret_Rejected", func(t *testing.T) {
		issuer := NewTokenIssuer("secret-a", time.Hour, nil)
		token, err := issuer.Issue("school-a", principal)
		require.NoError(t, err)

		other := NewTokenIssuer("secret-b", time.Hour, nil)
		_, err = other.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("Garbage_Rejected", func(t *testing.T) {
		issuer := NewTokenIssuer("secret-a", time.Hour, nil)
		_, err := issuer.Verify(ctx, "not-a-token")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("Expired_Rejected", func(t *testing.T) {
		issuer := NewTokenIssuer("secret-a", time.Minute, nil)
		issued := time.Now()
		issuer.now = func() time.Time { return issued }
		token, err := issuer.Issue("school-a", principal)
		require.NoError(t, err)

		issuer.now = func() time.Time { return issued.Add(2 * time.Minute) }
		_, err = issuer.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("Revoked_Rejected", func(t *testing.T) {
		issuer := NewTokenIssuer("secret-a", time.Hour, NewMemoryBlacklist())
		token, err := issuer.Issue("school-a", principal)
		require.NoError(t, err)

		claims, err := issuer.Verify(ctx, token)
		require.NoError(t, err)
		require.NoError(t, issuer.Revoke(ctx, claims))

		_, err = issuer.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrTokenRevoked)
	})
}

// TestPurpose: Validates blacklist expiry behavior.
// Scope: Unit Test
// Expected: Revocations lapse once the token would have expired anyway;
// Sweep drops lapsed entries.
// Test Case ID: TOK-02
func TestMemoryBlacklist_Expiry(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBlacklist()
	now := time.Now()
	b.now = func() time.Time { return now }

	require.NoError(t, b.Revoke(ctx, "jti-1", time.Minute))
	revoked, err := b.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	now = now.Add(2 * time.Minute)
	revoked, err = b.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, b.Revoke(ctx, "jti-2", time.Minute))
	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, b.Sweep())
}

// Verifies round-trip hashing and rejection of tampered encodings.
func TestPasswordHasher(t *testing.T) {
	h := testHasher()

	hash, err := h.Hash("open sesame")
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$")

	ok, err := h.Verify("open sesame", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.Verify("open sesame", "bcrypt$nope")
	assert.Error(t, err)

	// Two hashes of the same password differ by salt.
	hash2, err := h.Hash("open sesame")
	require.NoError(t, err)
	assert.NotEqual(t, hash, hash2)
}
