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

package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openenroll/openenroll/internal/enrollment"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Create(context.Background(), filepath.Join(t.TempDir(), "tenant.db"), Config{
		BusyTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mustCreatePrincipal(t *testing.T, db *DB, username string) *enrollment.Principal {
	t.Helper()
	now := time.Now()
	p := &enrollment.Principal{
		Username:     username,
		Role:         enrollment.RoleMember,
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, NewPrincipalStore(db).CreatePrincipal(context.Background(), p))
	return p
}

func mustCreateResource(t *testing.T, db *DB, name string, category enrollment.Category, capacity int) *enrollment.Resource {
	t.Helper()
	now := time.Now()
	r := &enrollment.Resource{
		Name:      name,
		Category:  category,
		Capacity:  capacity,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, NewStore(db).CreateResource(context.Background(), r))
	return r
}

// seedSelection creates one primary and two electives and returns a valid
// selection over them.
func seedSelection(t *testing.T, db *DB, primaryCap int) enrollment.Selection {
	t.Helper()
	primary := mustCreateResource(t, db, "Physics", enrollment.CategoryPrimary, primaryCap)
	one := mustCreateResource(t, db, "Art", enrollment.CategoryElective, 0)
	two := mustCreateResource(t, db, "Music", enrollment.CategoryElective, 0)
	return enrollment.Selection{PrimaryID: primary.ID, ElectiveOneID: one.ID, ElectiveTwoID: two.ID}
}

// TestPurpose: Validates the artifact lifecycle of Create, Open and
// Bootstrap.
// Scope: Unit Test
// Expected: Create refuses an existing artifact, Open refuses a missing one,
// Bootstrap is idempotent, and rows survive a close-and-reopen cycle.
// Test Case ID: STO-01
func TestDB_CreateOpenBootstrap(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tenant.db")

	_, err := Open(ctx, path, Config{})
	assert.ErrorIs(t, err, os.ErrNotExist)

	db, err := Create(ctx, path, Config{})
	require.NoError(t, err)
	assert.Equal(t, path, db.Path())

	_, err = Create(ctx, path, Config{})
	assert.ErrorIs(t, err, os.ErrExist)

	// Bootstrap is create-if-missing; running it again must not disturb data.
	mustCreatePrincipal(t, db, "alice")
	require.NoError(t, db.Bootstrap(ctx))

	require.NoError(t, db.Close())

	db, err = Open(ctx, path, Config{})
	require.NoError(t, err)
	defer db.Close()

	p, err := NewPrincipalStore(db).PrincipalByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
}

// TestPurpose: Validates unique-constraint mapping to domain errors.
// Scope: Unit Test
// Expected: Duplicate resource names fail with ErrResourceAlreadyExists and
// duplicate usernames with ErrPrincipalAlreadyExists.
// Test Case ID: STO-02
func TestStore_UniqueViolations(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	mustCreateResource(t, db, "Physics", enrollment.CategoryPrimary, 10)
	err := NewStore(db).CreateResource(ctx, &enrollment.Resource{
		Name: "Physics", Category: enrollment.CategoryPrimary, CreatedAt: now, UpdatedAt: now,
	})
	assert.ErrorIs(t, err, enrollment.ErrResourceAlreadyExists)

	mustCreatePrincipal(t, db, "alice")
	err = NewPrincipalStore(db).CreatePrincipal(ctx, &enrollment.Principal{
		Username: "alice", Role: enrollment.RoleMember, PasswordHash: "hash",
		CreatedAt: now, UpdatedAt: now,
	})
	assert.ErrorIs(t, err, enrollment.ErrPrincipalAlreadyExists)
}

// TestPurpose: Validates SubmitClaim's single-row upsert semantics.
// Scope: Unit Test
// Expected: The first submission inserts the principal's claim row and a
// resubmission rewrites that same row, resetting status to submitted and
// clearing any confirmation timestamp.
// Test Case ID: STO-03
func TestStore_SubmitClaim_Upsert(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	p := mustCreatePrincipal(t, db, "alice")
	sel := seedSelection(t, db, 10)
	drama := mustCreateResource(t, db, "Drama", enrollment.CategoryElective, 0)

	first, err := store.SubmitClaim(ctx, p.ID, sel, time.Now())
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusSubmitted, first.Status)

	_, err = store.SetClaimStatus(ctx, p.ID, []enrollment.Status{enrollment.StatusSubmitted}, enrollment.StatusConfirmed, time.Now())
	require.NoError(t, err)

	resel := sel
	resel.ElectiveTwoID = drama.ID
	second, err := store.SubmitClaim(ctx, p.ID, resel, time.Now())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, resel, second.Selection)
	assert.Equal(t, enrollment.StatusSubmitted, second.Status)
	assert.Nil(t, second.ConfirmedAt)

	// Unknown resources are rejected inside the transaction.
	bad := sel
	bad.PrimaryID = 9999
	_, err = store.SubmitClaim(ctx, p.ID, bad, time.Now())
	assert.ErrorIs(t, err, enrollment.ErrResourceNotFound)
}

// TestPurpose: Validates in-transaction capacity counting and the exclusion
// of the submitting principal's own claim.
// Scope: Unit Test
// Expected: A resource at capacity rejects other principals but never blocks
// the holder from resubmitting the slot it already occupies.
// Test Case ID: STO-04
func TestStore_SubmitClaim_CapacityExcludesOwnClaim(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	alice := mustCreatePrincipal(t, db, "alice")
	bob := mustCreatePrincipal(t, db, "bob")
	sel := seedSelection(t, db, 1)

	_, err := store.SubmitClaim(ctx, alice.ID, sel, time.Now())
	require.NoError(t, err)

	var capErr *enrollment.CapacityError
	_, err = store.SubmitClaim(ctx, bob.ID, sel, time.Now())
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, sel.PrimaryID, capErr.ResourceID)
	assert.Equal(t, 1, capErr.Capacity)

	// Alice's own seat does not count against her resubmission.
	_, err = store.SubmitClaim(ctx, alice.ID, sel, time.Now())
	require.NoError(t, err)

	count, err := store.ActiveClaimCount(ctx, sel.PrimaryID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// TestPurpose: Validates guarded status transitions.
// Scope: Unit Test
// Expected: Transitions only fire from the allowed source states; anything
// else reports ErrNoActiveClaim. Confirming stamps confirmed_at.
// Test Case ID: STO-05
func TestStore_SetClaimStatus(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	p := mustCreatePrincipal(t, db, "alice")
	sel := seedSelection(t, db, 10)

	_, err := store.SetClaimStatus(ctx, p.ID, enrollment.ActiveStatuses, enrollment.StatusCancelled, time.Now())
	assert.ErrorIs(t, err, enrollment.ErrNoActiveClaim)

	_, err = store.SubmitClaim(ctx, p.ID, sel, time.Now())
	require.NoError(t, err)

	confirmed, err := store.SetClaimStatus(ctx, p.ID, []enrollment.Status{enrollment.StatusSubmitted}, enrollment.StatusConfirmed, time.Now())
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)

	_, err = store.SetClaimStatus(ctx, p.ID, []enrollment.Status{enrollment.StatusSubmitted}, enrollment.StatusConfirmed, time.Now())
	assert.ErrorIs(t, err, enrollment.ErrNoActiveClaim)

	cancelled, err := store.SetClaimStatus(ctx, p.ID, enrollment.ActiveStatuses, enrollment.StatusCancelled, time.Now())
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusCancelled, cancelled.Status)
}

// TestPurpose: Validates the derived per-resource claim counts.
// Scope: Unit Test
// Expected: Counts cover every resource including zeroes and ignore
// cancelled claims.
// Test Case ID: STO-06
func TestStore_ActiveClaimCounts(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	alice := mustCreatePrincipal(t, db, "alice")
	bob := mustCreatePrincipal(t, db, "bob")
	sel := seedSelection(t, db, 10)
	idle := mustCreateResource(t, db, "Latin", enrollment.CategoryElective, 0)

	_, err := store.SubmitClaim(ctx, alice.ID, sel, time.Now())
	require.NoError(t, err)
	_, err = store.SubmitClaim(ctx, bob.ID, sel, time.Now())
	require.NoError(t, err)
	_, err = store.SetClaimStatus(ctx, bob.ID, enrollment.ActiveStatuses, enrollment.StatusCancelled, time.Now())
	require.NoError(t, err)

	counts, err := store.ActiveClaimCounts(ctx)
	require.NoError(t, err)
	assert.Len(t, counts, 4)
	assert.Equal(t, 1, counts[sel.PrimaryID])
	assert.Equal(t, 1, counts[sel.ElectiveOneID])
	assert.Equal(t, 1, counts[sel.ElectiveTwoID])
	assert.Equal(t, 0, counts[idle.ID])
}

// TestPurpose: Validates the tenant settings store.
// Scope: Unit Test
// Expected: Set upserts, Get reads back, missing keys report
// ErrConfigNotFound, and All returns the full map.
// Test Case ID: STO-07
func TestConfigStore(t *testing.T) {
	db := newTestDB(t)
	store := NewConfigStore(db)
	ctx := context.Background()

	_, err := store.Get(ctx, "announcement")
	assert.ErrorIs(t, err, ErrConfigNotFound)

	require.NoError(t, store.Set(ctx, "announcement", "enrollment opens Monday"))
	require.NoError(t, store.Set(ctx, "announcement", "enrollment opens Tuesday"))
	require.NoError(t, store.Set(ctx, "show_remaining", "true"))

	got, err := store.Get(ctx, "announcement")
	require.NoError(t, err)
	assert.Equal(t, "enrollment opens Tuesday", got)

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"announcement":   "enrollment opens Tuesday",
		"show_remaining": "true",
	}, all)
}

// TestPurpose: Validates principal bookkeeping around login attempts and
// password changes.
// Scope: Unit Test
// Expected: Failure counts and lockouts round trip, reset clears both, and
// an updated password hash is what later reads return.
// Test Case ID: STO-08
func TestPrincipalStore_LoginBookkeeping(t *testing.T) {
	db := newTestDB(t)
	store := NewPrincipalStore(db)
	ctx := context.Background()

	_, err := store.PrincipalByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, enrollment.ErrPrincipalNotFound)

	p := mustCreatePrincipal(t, db, "alice")

	until := time.Now().Add(15 * time.Minute).UTC()
	require.NoError(t, store.RecordLoginFailure(ctx, p.ID, 3, &until))

	got, err := store.PrincipalByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.FailedLoginAttempts)
	require.NotNil(t, got.LockedUntil)
	assert.WithinDuration(t, until, *got.LockedUntil, time.Second)

	require.NoError(t, store.ResetLoginFailures(ctx, p.ID))
	got, err = store.PrincipalByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, got.FailedLoginAttempts)
	assert.Nil(t, got.LockedUntil)

	require.NoError(t, store.UpdatePassword(ctx, p.ID, "rehashed"))
	got, err = store.PrincipalByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "rehashed", got.PasswordHash)
}
