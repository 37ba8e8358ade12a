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
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/openenroll/openenroll/internal/audit"
	"github.com/openenroll/openenroll/internal/tenant"
)

// Service provides tenant catalog business logic. Catalog rows and storage
// artifacts are kept in step: a tenant either has both or neither.
type Service struct {
	repo        Repository
	storage     Storage
	auditLogger audit.Logger
	now         func() time.Time
}

// NewService creates a new catalog service
func NewService(repo Repository, storage Storage, auditLogger audit.Logger) *Service {
	return &Service{
		repo:        repo,
		storage:     storage,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// CreateTenant registers a tenant in the catalog and provisions its storage
// artifact. The catalog row is rolled back if provisioning fails, so a
// half-created tenant is never left behind.
func (s *Service) CreateTenant(ctx context.Context, id, name string) (*Tenant, error) {
	if err := tenant.ValidateID(id); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("tenant name is required")
	}

	code, err := newRegistrationCode()
	if err != nil {
		return nil, err
	}

	now := s.now()
	t := &Tenant{
		ID:               id,
		Name:             name,
		Status:           StatusActive,
		RegistrationCode: code,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}

	if err := s.storage.Provision(ctx, id); err != nil {
		if delErr := s.repo.Delete(ctx, id); delErr != nil {
			return nil, fmt.Errorf("failed to roll back catalog row after provision failure: %v: %w", delErr, err)
		}
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantProvisioned,
		TenantID: id,
		Metadata: map[string]any{"name": name},
	})

	return t, nil
}

// GetTenant retrieves a catalog row by tenant id
func (s *Service) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

// ListTenants lists catalog rows with pagination
func (s *Service) ListTenants(ctx context.Context, limit, offset int) ([]*Tenant, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.List(ctx, limit, offset)
}

// DeleteTenant removes the tenant's storage artifact and its catalog row.
// The artifact goes first: a catalog row without storage is recoverable, an
// orphaned artifact is what the cleanup sweep exists for.
func (s *Service) DeleteTenant(ctx context.Context, id string) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}

	if err := s.storage.Destroy(ctx, id); err != nil && !isNotFound(err) {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantDestroyed,
		TenantID: id,
	})
	return nil
}

// SetStatus activates or suspends a tenant
func (s *Service) SetStatus(ctx context.Context, id, status string) (*Tenant, error) {
	if status != StatusActive && status != StatusSuspended {
		return nil, fmt.Errorf("invalid tenant status: %s", status)
	}
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Status = status
	t.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// SetEnrollmentWindow sets the time span during which members of the tenant
// may submit or change claims. Either bound may be nil.
func (s *Service) SetEnrollmentWindow(ctx context.Context, id string, opensAt, closesAt *time.Time) (*Tenant, error) {
	if opensAt != nil && closesAt != nil && closesAt.Before(*opensAt) {
		return nil, ErrInvalidEnrollmentWindow
	}
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t.OpensAt = opensAt
	t.ClosesAt = closesAt
	t.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// RotateRegistrationCode replaces the tenant's self-registration code
func (s *Service) RotateRegistrationCode(ctx context.Context, id string) (string, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	code, err := newRegistrationCode()
	if err != nil {
		return "", err
	}
	t.RegistrationCode = code
	t.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, t); err != nil {
		return "", err
	}
	return code, nil
}

// CheckRegistrationCode verifies a self-registration code for a tenant.
// Only active tenants accept registrations.
func (s *Service) CheckRegistrationCode(ctx context.Context, id, code string) error {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if t.Status != StatusActive {
		return ErrTenantSuspended
	}
	if t.RegistrationCode == "" {
		return ErrRegistrationCodeNotSet
	}
	if subtle.ConstantTimeCompare([]byte(t.RegistrationCode), []byte(code)) != 1 {
		return ErrRegistrationCodeInvalid
	}
	return nil
}

// CheckEnrollmentOpen reports whether claims may be submitted or changed
// for the tenant right now.
func (s *Service) CheckEnrollmentOpen(ctx context.Context, id string) error {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if t.Status != StatusActive {
		return ErrTenantSuspended
	}
	now := s.now()
	if t.OpensAt != nil && now.Before(*t.OpensAt) {
		return ErrEnrollmentClosed
	}
	if t.ClosesAt != nil && now.After(*t.ClosesAt) {
		return ErrEnrollmentClosed
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, tenant.ErrTenantNotFound)
}

func newRegistrationCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate registration code: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
