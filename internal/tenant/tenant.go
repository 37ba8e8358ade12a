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

// Package tenant owns the lifecycle of per-tenant storage handles: lazy
// open, LRU eviction under a fixed bound, and exclusive teardown during
// tenant deletion.
package tenant

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Registry errors
var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrTenantAlreadyExists = errors.New("tenant already exists")
	// ErrRegistryExhausted: the cache is full and every entry is pinned by
	// in-flight work. Transient; callers may retry after backoff.
	ErrRegistryExhausted = errors.New("tenant handle registry exhausted")
	// ErrStorageUnavailable wraps any storage-engine failure. Transient;
	// the registry itself never retries.
	ErrStorageUnavailable = errors.New("tenant storage unavailable")
	ErrInvalidTenantID    = errors.New("invalid tenant id")
	ErrRegistryClosed     = errors.New("tenant registry is shut down")
)

// Tenant ids double as artifact filenames, so the charset is restricted to
// keep them filesystem-safe on every platform.
var tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9-]{1,64}$`)

// ValidateID checks that a tenant id is usable as an artifact name.
func ValidateID(id string) error {
	if !tenantIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidTenantID, id)
	}
	return nil
}

// ArtifactPath returns the storage artifact path for a tenant under root.
// The id must have been validated first.
func ArtifactPath(root, tenantID string) string {
	return filepath.Join(root, tenantID+".sqlite")
}

// ListArtifacts returns the tenant ids that have a storage artifact under
// root, in directory order.
func ListArtifacts(root string) ([]string, error) {
	dirents, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read tenant storage root: %w", err)
	}

	var ids []string
	for _, d := range dirents {
		name := d.Name()
		if d.IsDir() || !strings.HasSuffix(name, ".sqlite") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".sqlite"))
	}
	return ids, nil
}
