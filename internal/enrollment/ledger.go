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
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/openenroll/openenroll/internal/audit"
)

const (
	submitMaxAttempts = 3
	submitBackoffBase = 25 * time.Millisecond
)

// Ledger accepts or rejects claims against capacity-limited resources.
// Correctness under concurrency is delegated to the storage engine's
// transaction (ClaimStore.SubmitClaim); the ledger owns validation, the
// bounded retry loop, and auditing. It is stateless across tenants: every
// call receives the store for the tenant it should operate on.
type Ledger struct {
	auditLogger audit.Logger
	maxAttempts int
	backoffBase time.Duration
	now         func() time.Time
	sleep       func(context.Context, time.Duration) error
}

// NewLedger creates a new enrollment ledger
func NewLedger(auditLogger audit.Logger) *Ledger {
	return &Ledger{
		auditLogger: auditLogger,
		maxAttempts: submitMaxAttempts,
		backoffBase: submitBackoffBase,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

// Submit validates the selection and atomically claims the three resources.
// Resubmission from the same principal replaces the existing claim row; the
// principal's own prior slots are excluded from the capacity counts inside
// the same transaction, so replacing a selection is never blocked by the
// slot it is giving up.
func (l *Ledger) Submit(ctx context.Context, store Store, tenantID string, principalID int64, sel Selection) (*Claim, error) {
	if err := l.validate(ctx, store, sel); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < l.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := l.sleep(ctx, l.backoffDelay(attempt)); err != nil {
				return nil, err
			}
		}

		claim, err := store.SubmitClaim(ctx, principalID, sel, l.now())
		if err == nil {
			l.auditLogger.Log(ctx, audit.Event{
				Type:     audit.TypeClaimSubmitted,
				TenantID: tenantID,
				ActorID:  fmt.Sprintf("%d", principalID),
				Metadata: map[string]any{
					"primary_id":      sel.PrimaryID,
					"elective_one_id": sel.ElectiveOneID,
					"elective_two_id": sel.ElectiveTwoID,
				},
			})
			return claim, nil
		}

		if errors.Is(err, ErrStorageConflict) {
			lastErr = err
			continue
		}

		var capErr *CapacityError
		if errors.As(err, &capErr) {
			l.auditLogger.Log(ctx, audit.Event{
				Type:     audit.TypeClaimRejected,
				TenantID: tenantID,
				ActorID:  fmt.Sprintf("%d", principalID),
				Metadata: map[string]any{
					audit.AttrReason:   "capacity_exceeded",
					audit.AttrResource: capErr.ResourceID,
				},
			})
		}
		return nil, err
	}

	return nil, fmt.Errorf("%w: %v", ErrConcurrencyConflict, lastErr)
}

// Cancel moves the principal's active claim to cancelled. Capacity is freed
// implicitly: counts only ever include submitted and confirmed claims.
func (l *Ledger) Cancel(ctx context.Context, store Store, tenantID string, principalID int64) (*Claim, error) {
	claim, err := store.SetClaimStatus(ctx, principalID, ActiveStatuses, StatusCancelled, l.now())
	if err != nil {
		return nil, err
	}

	l.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeClaimCancelled,
		TenantID: tenantID,
		ActorID:  fmt.Sprintf("%d", principalID),
	})
	return claim, nil
}

// Confirm is the administrative transition submitted -> confirmed.
func (l *Ledger) Confirm(ctx context.Context, store Store, tenantID string, actorID, principalID int64) (*Claim, error) {
	claim, err := store.SetClaimStatus(ctx, principalID, []Status{StatusSubmitted}, StatusConfirmed, l.now())
	if err != nil {
		return nil, err
	}

	l.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeClaimConfirmed,
		TenantID: tenantID,
		ActorID:  fmt.Sprintf("%d", actorID),
		Metadata: map[string]any{"principal_id": principalID},
	})
	return claim, nil
}

// MyClaim returns the principal's claim, or a synthesized draft when none
// has been written yet. The draft row itself is only created on first
// submit.
func (l *Ledger) MyClaim(ctx context.Context, store Store, principalID int64) (*Claim, error) {
	claim, err := store.ClaimByPrincipal(ctx, principalID)
	if errors.Is(err, ErrClaimNotFound) {
		return &Claim{PrincipalID: principalID, Status: StatusDraft}, nil
	}
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// Stats reports, for every resource, the current active claim count and the
// remaining capacity. It reads outside any transaction: the result is
// advisory, only Submit's in-transaction counts are authoritative.
func (l *Ledger) Stats(ctx context.Context, store Store) ([]Usage, error) {
	resources, err := store.ListResources(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := store.ActiveClaimCounts(ctx)
	if err != nil {
		return nil, err
	}

	usage := make([]Usage, 0, len(resources))
	for _, r := range resources {
		u := Usage{
			ResourceID: r.ID,
			Name:       r.Name,
			Category:   r.Category,
			Capacity:   r.Capacity,
			Count:      counts[r.ID],
		}
		if r.Unlimited() {
			u.Unlimited = true
			u.Remaining = -1
		} else {
			u.Remaining = r.Capacity - u.Count
			if u.Remaining < 0 {
				u.Remaining = 0
			}
		}
		usage = append(usage, u)
	}
	sort.Slice(usage, func(i, j int) bool { return usage[i].ResourceID < usage[j].ResourceID })
	return usage, nil
}

// CreateResource adds a new resource to the tenant.
func (l *Ledger) CreateResource(ctx context.Context, store Store, tenantID string, actorID int64, r *Resource) error {
	if r.Name == "" {
		return &InvalidSelectionError{Reason: "resource name is required"}
	}
	if r.Category != CategoryPrimary && r.Category != CategoryElective {
		return &InvalidSelectionError{Reason: fmt.Sprintf("unknown category %q", r.Category)}
	}
	now := l.now()
	r.CreatedAt = now
	r.UpdatedAt = now
	if err := store.CreateResource(ctx, r); err != nil {
		return err
	}

	l.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeResourceCreated,
		TenantID: tenantID,
		ActorID:  fmt.Sprintf("%d", actorID),
		Resource: r.Name,
	})
	return nil
}

// UpdateResource updates name, description, capacity and active flag.
// Shrinking capacity below the live count is allowed: existing claims stand,
// the resource just stops accepting new ones.
func (l *Ledger) UpdateResource(ctx context.Context, store Store, tenantID string, actorID int64, r *Resource) error {
	r.UpdatedAt = l.now()
	if err := store.UpdateResource(ctx, r); err != nil {
		return err
	}

	l.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeResourceUpdated,
		TenantID: tenantID,
		ActorID:  fmt.Sprintf("%d", actorID),
		Resource: r.Name,
	})
	return nil
}

// DeleteResource removes a resource that no active claim references.
func (l *Ledger) DeleteResource(ctx context.Context, store Store, tenantID string, actorID, resourceID int64) error {
	count, err := store.ActiveClaimCount(ctx, resourceID)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: %d active claims", ErrResourceInUse, count)
	}
	if err := store.DeleteResource(ctx, resourceID); err != nil {
		return err
	}

	l.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeResourceDeleted,
		TenantID: tenantID,
		ActorID:  fmt.Sprintf("%d", actorID),
		Metadata: map[string]any{audit.AttrResource: resourceID},
	})
	return nil
}

// validate re-checks resource existence and category correctness before any
// transaction is opened. The same resources are read again inside the
// transaction for the authoritative capacity counts.
func (l *Ledger) validate(ctx context.Context, store Store, sel Selection) error {
	if sel.PrimaryID == 0 {
		return &InvalidSelectionError{Reason: "a primary-choice resource is required"}
	}
	if sel.ElectiveOneID == 0 || sel.ElectiveTwoID == 0 {
		return &InvalidSelectionError{Reason: "two elective resources are required"}
	}
	if sel.ElectiveOneID == sel.ElectiveTwoID {
		return &InvalidSelectionError{Reason: "electives must be distinct"}
	}

	primary, err := store.ResourceByID(ctx, sel.PrimaryID)
	if err != nil {
		return selectionLookupErr(sel.PrimaryID, err)
	}
	if primary.Category != CategoryPrimary {
		return &InvalidSelectionError{Reason: fmt.Sprintf("%q is not a primary-choice resource", primary.Name)}
	}
	if !primary.Active {
		return &InvalidSelectionError{Reason: fmt.Sprintf("%q is not open for enrollment", primary.Name)}
	}

	for _, id := range []int64{sel.ElectiveOneID, sel.ElectiveTwoID} {
		elective, err := store.ResourceByID(ctx, id)
		if err != nil {
			return selectionLookupErr(id, err)
		}
		if elective.Category != CategoryElective {
			return &InvalidSelectionError{Reason: fmt.Sprintf("%q is not an elective resource", elective.Name)}
		}
		if !elective.Active {
			return &InvalidSelectionError{Reason: fmt.Sprintf("%q is not open for enrollment", elective.Name)}
		}
	}
	return nil
}

func selectionLookupErr(id int64, err error) error {
	if errors.Is(err, ErrResourceNotFound) {
		return &InvalidSelectionError{Reason: fmt.Sprintf("resource %d does not exist", id)}
	}
	return err
}

// backoffDelay returns the jittered delay before the given retry attempt.
func (l *Ledger) backoffDelay(attempt int) time.Duration {
	base := l.backoffBase * time.Duration(attempt)
	jitter := time.Duration(rand.Int64N(int64(l.backoffBase)))
	return base + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
