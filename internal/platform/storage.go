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

package platform

import (
	"context"

	"github.com/openenroll/openenroll/internal/tenant"
)

// RegistryStorage adapts the tenant handle registry to the Storage
// interface. Provision releases the pinned handle right away; the catalog
// only cares that the artifact exists and is bootstrapped.
type RegistryStorage struct {
	Registry *tenant.Registry
}

func (s RegistryStorage) Provision(ctx context.Context, tenantID string) error {
	h, err := s.Registry.Provision(ctx, tenantID)
	if err != nil {
		return err
	}
	h.Release()
	return nil
}

func (s RegistryStorage) Destroy(ctx context.Context, tenantID string) error {
	return s.Registry.Destroy(ctx, tenantID)
}
