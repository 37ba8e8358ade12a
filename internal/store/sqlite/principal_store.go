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
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/openenroll/openenroll/internal/enrollment"
)

// PrincipalStore persists principals inside one tenant artifact.
type PrincipalStore struct {
	db *DB
}

// NewPrincipalStore creates a principal store bound to the given handle
func NewPrincipalStore(db *DB) *PrincipalStore {
	return &PrincipalStore{db: db}
}

// PrincipalByUsername retrieves a principal by username
func (s *PrincipalStore) PrincipalByUsername(ctx context.Context, username string) (*enrollment.Principal, error) {
	return s.principalBy(ctx, "username = ?", username)
}

// PrincipalByID retrieves a principal by id
func (s *PrincipalStore) PrincipalByID(ctx context.Context, id int64) (*enrollment.Principal, error) {
	return s.principalBy(ctx, "id = ?", id)
}

func (s *PrincipalStore) principalBy(ctx context.Context, where string, arg any) (*enrollment.Principal, error) {
	row := s.db.sql.QueryRowContext(ctx, `
		SELECT id, username, display_name, role, password_hash,
		       failed_login_attempts, locked_until, created_at, updated_at
		FROM principals WHERE `+where, arg)

	var (
		p           enrollment.Principal
		lockedUntil sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Username, &p.DisplayName, &p.Role, &p.PasswordHash,
		&p.FailedLoginAttempts, &lockedUntil, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, enrollment.ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get principal: %w", err)
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		p.LockedUntil = &t
	}
	return &p, nil
}

// ListPrincipals returns all principals ordered by username
func (s *PrincipalStore) ListPrincipals(ctx context.Context) ([]*enrollment.Principal, error) {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT id, username, display_name, role, password_hash,
		       failed_login_attempts, locked_until, created_at, updated_at
		FROM principals ORDER BY username
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list principals: %w", err)
	}
	defer rows.Close()

	var principals []*enrollment.Principal
	for rows.Next() {
		var (
			p           enrollment.Principal
			lockedUntil sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.Username, &p.DisplayName, &p.Role, &p.PasswordHash,
			&p.FailedLoginAttempts, &lockedUntil, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan principal: %w", err)
		}
		if lockedUntil.Valid {
			t := lockedUntil.Time
			p.LockedUntil = &t
		}
		principals = append(principals, &p)
	}
	return principals, rows.Err()
}

// CreatePrincipal inserts a new principal
func (s *PrincipalStore) CreatePrincipal(ctx context.Context, p *enrollment.Principal) error {
	result, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO principals (username, display_name, role, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.Username, p.DisplayName, p.Role, p.PasswordHash, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", enrollment.ErrPrincipalAlreadyExists, p.Username)
		}
		return fmt.Errorf("failed to create principal: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read principal id: %w", err)
	}
	p.ID = id
	return nil
}

// UpdatePassword replaces a principal's password hash
func (s *PrincipalStore) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	_, err := s.db.sql.ExecContext(ctx, `
		UPDATE principals SET password_hash = ?, updated_at = ? WHERE id = ?
	`, passwordHash, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// RecordLoginFailure stores the updated failure count and optional lockout
func (s *PrincipalStore) RecordLoginFailure(ctx context.Context, id int64, failures int, lockedUntil *time.Time) error {
	var locked sql.NullTime
	if lockedUntil != nil {
		locked = sql.NullTime{Time: *lockedUntil, Valid: true}
	}
	_, err := s.db.sql.ExecContext(ctx, `
		UPDATE principals SET failed_login_attempts = ?, locked_until = ?, updated_at = ?
		WHERE id = ?
	`, failures, locked, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to record login failure: %w", err)
	}
	return nil
}

// ResetLoginFailures clears the failure count after a successful login
func (s *PrincipalStore) ResetLoginFailures(ctx context.Context, id int64) error {
	_, err := s.db.sql.ExecContext(ctx, `
		UPDATE principals SET failed_login_attempts = 0, locked_until = NULL, updated_at = ?
		WHERE id = ?
	`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to reset login failures: %w", err)
	}
	return nil
}
