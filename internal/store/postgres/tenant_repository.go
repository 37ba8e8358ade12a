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

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/openenroll/openenroll/internal/platform"
	"github.com/openenroll/openenroll/internal/tenant"
)

// TenantRepository implements platform.Repository
type TenantRepository struct {
	db *DB
}

// NewTenantRepository creates a new tenant catalog repository
func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// Create inserts a new catalog row
func (r *TenantRepository) Create(ctx context.Context, t *platform.Tenant) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO tenants (id, name, status, registration_code, opens_at, closes_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.Name, t.Status, t.RegistrationCode, t.OpensAt, t.ClosesAt, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", tenant.ErrTenantAlreadyExists, t.ID)
		}
		return fmt.Errorf("failed to create tenant row: %w", err)
	}
	return nil
}

// GetByID retrieves a catalog row by tenant id
func (r *TenantRepository) GetByID(ctx context.Context, id string) (*platform.Tenant, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, name, status, registration_code, opens_at, closes_at, created_at, updated_at
		FROM tenants WHERE id = $1
	`, id)
	return scanTenant(row)
}

// Update persists catalog row changes
func (r *TenantRepository) Update(ctx context.Context, t *platform.Tenant) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE tenants
		SET name = $2, status = $3, registration_code = $4, opens_at = $5, closes_at = $6, updated_at = $7
		WHERE id = $1
	`, t.ID, t.Name, t.Status, t.RegistrationCode, t.OpensAt, t.ClosesAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update tenant row: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", tenant.ErrTenantNotFound, t.ID)
	}
	return nil
}

// Delete removes a catalog row
func (r *TenantRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tenant row: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", tenant.ErrTenantNotFound, id)
	}
	return nil
}

// List returns catalog rows ordered by id with pagination
func (r *TenantRepository) List(ctx context.Context, limit, offset int) ([]*platform.Tenant, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, name, status, registration_code, opens_at, closes_at, created_at, updated_at
		FROM tenants ORDER BY id LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant rows: %w", err)
	}
	defer rows.Close()

	var tenants []*platform.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func scanTenant(row pgx.Row) (*platform.Tenant, error) {
	var (
		t                platform.Tenant
		registrationCode *string
		opensAt          *time.Time
		closesAt         *time.Time
	)
	err := row.Scan(&t.ID, &t.Name, &t.Status, &registrationCode, &opensAt, &closesAt, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tenant.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan tenant row: %w", err)
	}
	if registrationCode != nil {
		t.RegistrationCode = *registrationCode
	}
	t.OpensAt = opensAt
	t.ClosesAt = closesAt
	return &t, nil
}
