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

package tenant

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, maxHandles int) *Registry {
	t.Helper()
	r, err := NewRegistry(Config{
		Root:           t.TempDir(),
		MaxOpenHandles: maxHandles,
		BusyTimeout:    time.Second,
		ReleaseTimeout: 2 * time.Second,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Shutdown(context.Background()) })
	return r
}

func provisionReleased(t *testing.T, r *Registry, tenantID string) {
	t.Helper()
	h, err := r.Provision(context.Background(), tenantID)
	require.NoError(t, err)
	h.Release()
}

// TestPurpose: Validates that provisioning creates the storage artifact and
// that subsequent acquires reuse the cached handle.
// Scope: Unit Test
// Expected: Provision returns a pinned handle; a second Acquire for the same
// tenant returns the same underlying handle without reopening.
// Test Case ID: REG-01
func TestRegistry_ProvisionThenAcquire_ReusesHandle(t *testing.T) {
	r := newTestRegistry(t, 4)
	ctx := context.Background()

	h1, err := r.Provision(ctx, "school-a")
	require.NoError(t, err)
	require.NotNil(t, h1.DB())
	assert.Equal(t, "school-a", h1.TenantID())

	_, err = os.Stat(ArtifactPath(r.cfg.Root, "school-a"))
	require.NoError(t, err)

	h2, err := r.Acquire(ctx, "school-a")
	require.NoError(t, err)
	assert.Same(t, h1.DB(), h2.DB())
	assert.Equal(t, 1, r.OpenHandles())

	h1.Release()
	h2.Release()
}

// TestPurpose: Validates the failure taxonomy of Acquire.
// Scope: Unit Test
// Expected: Unknown tenants fail with ErrTenantNotFound, malformed ids with
// ErrInvalidTenantID, and a shut-down registry with ErrRegistryClosed.
// Test Case ID: REG-02
func TestRegistry_Acquire_Errors(t *testing.T) {
	r := newTestRegistry(t, 2)
	ctx := context.Background()

	_, err := r.Acquire(ctx, "no-such-tenant")
	assert.ErrorIs(t, err, ErrTenantNotFound)
	assert.Equal(t, 0, r.OpenHandles())

	_, err = r.Acquire(ctx, "bad/../id")
	assert.ErrorIs(t, err, ErrInvalidTenantID)

	_, err = r.Acquire(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidTenantID)

	require.NoError(t, r.Shutdown(ctx))
	_, err = r.Acquire(ctx, "school-a")
	assert.ErrorIs(t, err, ErrRegistryClosed)
}

// TestPurpose: Validates that provisioning an already-provisioned tenant is
// rejected, whether the handle is cached or only the artifact exists.
// Scope: Unit Test
// Expected: ErrTenantAlreadyExists in both cases.
// Test Case ID: REG-03
func TestRegistry_Provision_Duplicate(t *testing.T) {
	r := newTestRegistry(t, 4)
	ctx := context.Background()

	provisionReleased(t, r, "school-a")

	_, err := r.Provision(ctx, "school-a")
	assert.ErrorIs(t, err, ErrTenantAlreadyExists)

	// Drop the cached handle so only the artifact remains on disk.
	require.NoError(t, r.Release(ctx, "school-a"))
	_, err = r.Provision(ctx, "school-a")
	assert.ErrorIs(t, err, ErrTenantAlreadyExists)
}

// TestPurpose: Validates strict least-recently-used eviction under the
// handle bound.
// Scope: Unit Test
// Expected: With a bound of 2, touching A after B makes B the victim when C
// is opened; A survives and re-acquiring B transparently reopens it.
// Test Case ID: REG-04
func TestRegistry_Eviction_StrictLRU(t *testing.T) {
	r := newTestRegistry(t, 2)
	ctx := context.Background()

	provisionReleased(t, r, "school-a")
	provisionReleased(t, r, "school-b")

	// Touch A so B becomes least recently used.
	h, err := r.Acquire(ctx, "school-a")
	require.NoError(t, err)
	dbA := h.DB()
	h.Release()

	h, err = r.Provision(ctx, "school-c")
	require.NoError(t, err)
	h.Release()
	assert.Equal(t, 2, r.OpenHandles())

	// A was not the victim: its cached handle is still live.
	h, err = r.Acquire(ctx, "school-a")
	require.NoError(t, err)
	assert.Same(t, dbA, h.DB())
	h.Release()

	// B was evicted; acquiring it again reopens the artifact.
	h, err = r.Acquire(ctx, "school-b")
	require.NoError(t, err)
	assert.NotNil(t, h.DB())
	h.Release()
	assert.Equal(t, 2, r.OpenHandles())
}

// TestPurpose: Validates that a full registry with every handle pinned
// rejects new opens instead of closing a handle in use.
// Scope: Unit Test
// Expected: ErrRegistryExhausted immediately; after releasing one pin the
// open succeeds.
// Test Case ID: REG-05
func TestRegistry_Exhaustion_AllPinned(t *testing.T) {
	r := newTestRegistry(t, 1)
	ctx := context.Background()

	pinned, err := r.Provision(ctx, "school-a")
	require.NoError(t, err)

	_, err = r.Provision(ctx, "school-b")
	assert.ErrorIs(t, err, ErrRegistryExhausted)

	pinned.Release()

	h, err := r.Provision(ctx, "school-b")
	require.NoError(t, err)
	h.Release()
}

// TestPurpose: Validates that concurrent acquires of the same tenant open
// the artifact exactly once and all share the cached handle.
// Scope: Unit Test (concurrency)
// Expected: Every goroutine gets the same handle and no error; the registry
// holds a single entry afterwards.
// Test Case ID: REG-06
func TestRegistry_ConcurrentAcquire_SingleOpen(t *testing.T) {
	r := newTestRegistry(t, 2)
	ctx := context.Background()

	provisionReleased(t, r, "school-a")
	require.NoError(t, r.Release(ctx, "school-a"))

	const workers = 16
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		dbs = make(map[any]struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := r.Acquire(ctx, "school-a")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			dbs[h.DB()] = struct{}{}
			mu.Unlock()
			h.Release()
		}()
	}
	wg.Wait()

	assert.Len(t, dbs, 1)
	assert.Equal(t, 1, r.OpenHandles())
}

// TestPurpose: Validates tenant teardown semantics.
// Scope: Unit Test
// Expected: Destroy drains leases, removes the artifact, and later acquires
// fail with ErrTenantNotFound. Destroying an unknown tenant also reports
// ErrTenantNotFound.
// Test Case ID: REG-07
func TestRegistry_Destroy(t *testing.T) {
	r := newTestRegistry(t, 4)
	ctx := context.Background()

	provisionReleased(t, r, "school-a")

	require.NoError(t, r.Destroy(ctx, "school-a"))
	_, err := os.Stat(ArtifactPath(r.cfg.Root, "school-a"))
	assert.True(t, os.IsNotExist(err))

	_, err = r.Acquire(ctx, "school-a")
	assert.ErrorIs(t, err, ErrTenantNotFound)

	err = r.Destroy(ctx, "school-a")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

// TestPurpose: Validates that teardown waits for in-flight leases and times
// out rather than closing a handle mid-operation.
// Scope: Unit Test (concurrency)
// Expected: Destroy blocks while a lease is held and fails once the drain
// timeout elapses; after the lease is released it succeeds.
// Test Case ID: REG-08
func TestRegistry_Destroy_WaitsForLeases(t *testing.T) {
	r, err := NewRegistry(Config{
		Root:           t.TempDir(),
		MaxOpenHandles: 2,
		BusyTimeout:    time.Second,
		ReleaseTimeout: 100 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	defer r.Shutdown(context.Background())
	ctx := context.Background()

	h, err := r.Provision(ctx, "school-a")
	require.NoError(t, err)

	err = r.Destroy(ctx, "school-a")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	h.Release()
	require.NoError(t, r.Destroy(ctx, "school-a"))
}

// TestPurpose: Validates artifact discovery for the orphan sweep tooling.
// Scope: Unit Test
// Expected: Only .sqlite files are reported, by tenant id.
// Test Case ID: REG-09
func TestListArtifacts(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(ArtifactPath(root, "school-a"), nil, 0o640))
	require.NoError(t, os.WriteFile(ArtifactPath(root, "school-b"), nil, 0o640))
	require.NoError(t, os.WriteFile(root+"/notes.txt", nil, 0o640))
	require.NoError(t, os.Mkdir(root+"/sub", 0o750))

	ids, err := ListArtifacts(root)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"school-a", "school-b"}, ids)

	ids, err = ListArtifacts(root + "/missing")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
