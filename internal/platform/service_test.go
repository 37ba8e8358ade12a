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
	"errors"
	"testing"
	"time"

	"github.com/openenroll/openenroll/internal/audit"
	"github.com/openenroll/openenroll/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Create(ctx context.Context, t *Tenant) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *mockRepo) GetByID(ctx context.Context, id string) (*Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Tenant), args.Error(1)
}

func (m *mockRepo) Update(ctx context.Context, t *Tenant) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *mockRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockRepo) List(ctx context.Context, limit, offset int) ([]*Tenant, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Tenant), args.Error(1)
}

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) Provision(ctx context.Context, tenantID string) error {
	args := m.Called(ctx, tenantID)
	return args.Error(0)
}

func (m *mockStorage) Destroy(ctx context.Context, tenantID string) error {
	args := m.Called(ctx, tenantID)
	return args.Error(0)
}

type mockAudit struct {
	mock.Mock
}

func (m *mockAudit) Log(ctx context.Context, event audit.Event) {
	m.Called(ctx, event)
}

func newTestService(repo *mockRepo, storage *mockStorage) (*Service, *mockAudit) {
	auditLogger := new(mockAudit)
	auditLogger.On("Log", mock.Anything, mock.Anything).Return()
	return NewService(repo, storage, auditLogger), auditLogger
}

// TestPurpose: Validates that creating a tenant writes the catalog row and
// provisions storage, and that a provisioning failure rolls the row back.
// Scope: Unit Test
// Expected: Success leaves row plus artifact; failure leaves neither.
// Test Case ID: PLT-01
func TestService_CreateTenant(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_ProvisionsStorage", func(t *testing.T) {
		repo := new(mockRepo)
		storage := new(mockStorage)
		svc, auditLogger := newTestService(repo, storage)

		repo.On("Create", ctx, mock.Anything).Return(nil)
		storage.On("Provision", ctx, "school-a").Return(nil)

		created, err := svc.CreateTenant(ctx, "school-a", "School A")
		require.NoError(t, err)
		assert.Equal(t, StatusActive, created.Status)
		assert.Len(t, created.RegistrationCode, 16)

		storage.AssertExpectations(t)
		auditLogger.AssertCalled(t, "Log", ctx, mock.MatchedBy(func(e audit.Event) bool {
			return e.Type == audit.TypeTenantProvisioned && e.TenantID == "school-a"
		}))
	})

	t.Run("ProvisionFails_RollsBackCatalogRow", func(t *testing.T) {
		repo := new(mockRepo)
		storage := new(mockStorage)
		svc, _ := newTestService(repo, storage)

		repo.On("Create", ctx, mock.Anything).Return(nil)
		storage.On("Provision", ctx, "school-a").Return(tenant.ErrRegistryExhausted)
		repo.On("Delete", ctx, "school-a").Return(nil)

		_, err := svc.CreateTenant(ctx, "school-a", "School A")
		assert.ErrorIs(t, err, tenant.ErrRegistryExhausted)
		repo.AssertCalled(t, "Delete", ctx, "school-a")
	})

	t.Run("InvalidID_Rejected", func(t *testing.T) {
		repo := new(mockRepo)
		storage := new(mockStorage)
		svc, _ := newTestService(repo, storage)

		_, err := svc.CreateTenant(ctx, "school a!", "School A")
		assert.ErrorIs(t, err, tenant.ErrInvalidTenantID)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

// TestPurpose: Validates tenant deletion ordering.
// Scope: Unit Test
// Expected: The storage artifact is destroyed before the catalog row; a
// missing artifact does not block row removal.
// Test Case ID: PLT-02
func TestService_DeleteTenant(t *testing.T) {
	ctx := context.Background()
	existing := &Tenant{ID: "school-a", Name: "School A", Status: StatusActive}

	t.Run("Success", func(t *testing.T) {
		repo := new(mockRepo)
		storage := new(mockStorage)
		svc, auditLogger := newTestService(repo, storage)

		repo.On("GetByID", ctx, "school-a").Return(existing, nil)
		storage.On("Destroy", ctx, "school-a").Return(nil)
		repo.On("Delete", ctx, "school-a").Return(nil)

		require.NoError(t, svc.DeleteTenant(ctx, "school-a"))
		auditLogger.AssertCalled(t, "Log", ctx, mock.MatchedBy(func(e audit.Event) bool {
			return e.Type == audit.TypeTenantDestroyed
		}))
	})

	t.Run("MissingArtifact_StillRemovesRow", func(t *testing.T) {
		repo := new(mockRepo)
		storage := new(mockStorage)
		svc, _ := newTestService(repo, storage)

		repo.On("GetByID", ctx, "school-a").Return(existing, nil)
		storage.On("Destroy", ctx, "school-a").Return(tenant.ErrTenantNotFound)
		repo.On("Delete", ctx, "school-a").Return(nil)

		require.NoError(t, svc.DeleteTenant(ctx, "school-a"))
	})

	t.Run("UnknownTenant", func(t *testing.T) {
		repo := new(mockRepo)
		storage := new(mockStorage)
		svc, _ := newTestService(repo, storage)

		repo.On("GetByID", ctx, "school-a").Return(nil, tenant.ErrTenantNotFound)

		err := svc.DeleteTenant(ctx, "school-a")
		assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
		storage.AssertNotCalled(t, "Destroy", mock.Anything, mock.Anything)
	})
}

// TestPurpose: Validates registration code verification.
// Scope: Unit Test
// Security: Codes gate self-registration per tenant.
// Expected: Correct code passes; wrong code, suspended tenant, and unset
// code each fail with their own error.
// Test Case ID: PLT-03
func TestService_CheckRegistrationCode(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name    string
		row     *Tenant
		code    string
		wantErr error
	}{
		{"Valid", &Tenant{ID: "s", Status: StatusActive, RegistrationCode: "c0ffee"}, "c0ffee", nil},
		{"WrongCode", &Tenant{ID: "s", Status: StatusActive, RegistrationCode: "c0ffee"}, "nope", ErrRegistrationCodeInvalid},
		{"Suspended", &Tenant{ID: "s", Status: StatusSuspended, RegistrationCode: "c0ffee"}, "c0ffee", ErrTenantSuspended},
		{"NoCodeSet", &Tenant{ID: "s", Status: StatusActive}, "", ErrRegistrationCodeNotSet},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := new(mockRepo)
			svc, _ := newTestService(repo, new(mockStorage))
			repo.On("GetByID", ctx, "s").Return(tc.row, nil)

			err := svc.CheckRegistrationCode(ctx, "s", tc.code)
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

// TestPurpose: Validates enrollment window evaluation against the clock.
// Scope: Unit Test
// Expected: Claims are allowed only between OpensAt and ClosesAt; nil
// bounds are unbounded; suspended tenants are always closed.
// Test Case ID: PLT-04
func TestService_CheckEnrollmentOpen(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name    string
		row     *Tenant
		wantErr error
	}{
		{"NoWindow", &Tenant{ID: "s", Status: StatusActive}, nil},
		{"InsideWindow", &Tenant{ID: "s", Status: StatusActive, OpensAt: &past, ClosesAt: &future}, nil},
		{"NotYetOpen", &Tenant{ID: "s", Status: StatusActive, OpensAt: &future}, ErrEnrollmentClosed},
		{"AlreadyClosed", &Tenant{ID: "s", Status: StatusActive, ClosesAt: &past}, ErrEnrollmentClosed},
		{"Suspended", &Tenant{ID: "s", Status: StatusSuspended}, ErrTenantSuspended},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := new(mockRepo)
			svc, _ := newTestService(repo, new(mockStorage))
			svc.now = func() time.Time { return now }
			repo.On("GetByID", ctx, "s").Return(tc.row, nil)

			err := svc.CheckEnrollmentOpen(ctx, "s")
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

// TestPurpose: Validates enrollment window updates.
// Scope: Unit Test
// Expected: A window that closes before it opens is rejected before any
// write; valid windows are persisted.
// Test Case ID: PLT-05
func TestService_SetEnrollmentWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	later := now.Add(time.Hour)

	t.Run("InvertedWindow_Rejected", func(t *testing.T) {
		repo := new(mockRepo)
		svc, _ := newTestService(repo, new(mockStorage))

		_, err := svc.SetEnrollmentWindow(ctx, "s", &later, &now)
		assert.ErrorIs(t, err, ErrInvalidEnrollmentWindow)
		repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("Valid_Persisted", func(t *testing.T) {
		repo := new(mockRepo)
		svc, _ := newTestService(repo, new(mockStorage))
		repo.On("GetByID", ctx, "s").Return(&Tenant{ID: "s", Status: StatusActive}, nil)
		repo.On("Update", ctx, mock.Anything).Return(nil)

		updated, err := svc.SetEnrollmentWindow(ctx, "s", &now, &later)
		require.NoError(t, err)
		assert.Equal(t, &now, updated.OpensAt)
		assert.Equal(t, &later, updated.ClosesAt)
	})
}

// TestPurpose: Validates that rotating the registration code persists a new
// value and never repeats the old one.
// Scope: Unit Test
// Test Case ID: PLT-06
func TestService_RotateRegistrationCode(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	svc, _ := newTestService(repo, new(mockStorage))

	row := &Tenant{ID: "s", Status: StatusActive, RegistrationCode: "old-code"}
	repo.On("GetByID", ctx, "s").Return(row, nil)
	repo.On("Update", ctx, mock.Anything).Return(nil)

	code, err := svc.RotateRegistrationCode(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, code, 16)
	assert.NotEqual(t, "old-code", code)

	repo.AssertCalled(t, "Update", ctx, mock.MatchedBy(func(u *Tenant) bool {
		return u.RegistrationCode == code
	}))
}

// Ensures storage failures during update surface to the caller.
func TestService_SetStatus_RepoError(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	svc, _ := newTestService(repo, new(mockStorage))

	repo.On("GetByID", ctx, "s").Return(&Tenant{ID: "s", Status: StatusActive}, nil)
	repo.On("Update", ctx, mock.Anything).Return(errors.New("connection reset"))

	_, err := svc.SetStatus(ctx, "s", StatusSuspended)
	assert.Error(t, err)

	_, err = svc.SetStatus(ctx, "s", "archived")
	assert.Error(t, err)
}
