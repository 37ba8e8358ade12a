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
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrResourceNotFound       = errors.New("resource not found")
	ErrResourceAlreadyExists  = errors.New("resource already exists")
	ErrResourceInUse          = errors.New("resource has active claims")
	ErrClaimNotFound          = errors.New("claim not found")
	ErrNoActiveClaim          = errors.New("no active claim")
	ErrPrincipalNotFound      = errors.New("principal not found")
	ErrPrincipalAlreadyExists = errors.New("principal already exists")

	// ErrStorageConflict is the retryable engine-level serialization failure.
	// The ledger resolves it internally; callers only ever see
	// ErrConcurrencyConflict once the retry budget is spent.
	ErrStorageConflict     = errors.New("storage serialization conflict")
	ErrConcurrencyConflict = errors.New("concurrent submissions conflicted, retry")
)

// InvalidSelectionError rejects a malformed selection before any capacity
// check runs. Caller error, not retried.
type InvalidSelectionError struct {
	Reason string
}

func (e *InvalidSelectionError) Error() string {
	return "invalid selection: " + e.Reason
}

// CapacityError reports the first resource whose capacity the submission
// would exceed. The whole submission is rejected; there is no partial
// acceptance across the three slots.
type CapacityError struct {
	ResourceID int64
	Name       string
	Capacity   int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("resource %q (id %d) is at capacity (%d)", e.Name, e.ResourceID, e.Capacity)
}
