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

package enrollment

import (
	"context"
	"time"
)

// ResourceStore is the per-tenant resource persistence interface.
type ResourceStore interface {
	ResourceByID(ctx context.Context, id int64) (*Resource, error)
	ListResources(ctx context.Context) ([]*Resource, error)
	CreateResource(ctx context.Context, r *Resource) error
	UpdateResource(ctx context.Context, r *Resource) error
	DeleteResource(ctx context.Context, id int64) error
	// ActiveClaimCount counts claims in {submitted, confirmed} referencing
	// the resource in any of the three selection slots.
	ActiveClaimCount(ctx context.Context, resourceID int64) (int, error)
}

// ClaimStore is the per-tenant claim persistence interface.
//
// SubmitClaim is the capacity allocator: inside one write transaction it
// re-reads each selected resource's capacity, counts active claims
// referencing it while excluding the submitting principal's own row, and
// either upserts the principal's single claim row to submitted or fails with
// a *CapacityError. An engine-level lock conflict surfaces as
// ErrStorageConflict so the ledger can retry the whole operation.
type ClaimStore interface {
	ClaimByPrincipal(ctx context.Context, principalID int64) (*Claim, error)
	SubmitClaim(ctx context.Context, principalID int64, sel Selection, at time.Time) (*Claim, error)
	// SetClaimStatus moves the principal's claim from one of the given
	// states to the target state; ErrNoActiveClaim if no row qualifies.
	SetClaimStatus(ctx context.Context, principalID int64, from []Status, to Status, at time.Time) (*Claim, error)
	// ActiveClaimCounts returns resource id -> active claim count for every
	// resource, including zeroes.
	ActiveClaimCounts(ctx context.Context) (map[int64]int, error)
}

// Store is the combined per-tenant storage surface the ledger operates on.
// The registry hands out one implementation per tenant storage artifact.
type Store interface {
	ResourceStore
	ClaimStore
}
