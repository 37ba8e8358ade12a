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
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/openenroll/openenroll/internal/enrollment"
)

// Store implements enrollment.Store over one tenant artifact.
type Store struct {
	db *DB
}

// NewStore creates an enrollment store bound to the given handle
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// ResourceByID retrieves a resource by id
func (s *Store) ResourceByID(ctx context.Context, id int64) (*enrollment.Resource, error) {
	row := s.db.sql.QueryRowContext(ctx, `
		SELECT id, name, category, description, capacity, active, created_at, updated_at
		FROM resources WHERE id = ?
	`, id)

	r, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, enrollment.ErrResourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	return r, nil
}

// ListResources returns all resources ordered by id
func (s *Store) ListResources(ctx context.Context) ([]*enrollment.Resource, error) {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT id, name, category, description, capacity, active, created_at, updated_at
		FROM resources ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	var resources []*enrollment.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		resources = append(resources, r)
	}
	return resources, rows.Err()
}

// CreateResource inserts a new resource
func (s *Store) CreateResource(ctx context.Context, r *enrollment.Resource) error {
	result, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO resources (name, category, description, capacity, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.Name, string(r.Category), r.Description, r.Capacity, r.Active, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", enrollment.ErrResourceAlreadyExists, r.Name)
		}
		return fmt.Errorf("failed to create resource: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read resource id: %w", err)
	}
	r.ID = id
	return nil
}

// UpdateResource updates a resource in place
func (s *Store) UpdateResource(ctx context.Context, r *enrollment.Resource) error {
	result, err := s.db.sql.ExecContext(ctx, `
		UPDATE resources
		SET name = ?, description = ?, capacity = ?, active = ?, updated_at = ?
		WHERE id = ?
	`, r.Name, r.Description, r.Capacity, r.Active, r.UpdatedAt, r.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", enrollment.ErrResourceAlreadyExists, r.Name)
		}
		return fmt.Errorf("failed to update resource: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return enrollment.ErrResourceNotFound
	}
	return nil
}

// DeleteResource removes a resource row. The ledger checks for active
// claims first; this is plain row removal.
func (s *Store) DeleteResource(ctx context.Context, id int64) error {
	result, err := s.db.sql.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return enrollment.ErrResourceNotFound
	}
	return nil
}

// ActiveClaimCount counts active claims referencing the resource
func (s *Store) ActiveClaimCount(ctx context.Context, resourceID int64) (int, error) {
	var count int
	err := s.db.sql.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM claims
		WHERE status IN ('submitted', 'confirmed')
		  AND (primary_id = ? OR elective_one_id = ? OR elective_two_id = ?)
	`, resourceID, resourceID, resourceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count claims: %w", err)
	}
	return count, nil
}

// ClaimByPrincipal retrieves the principal's single claim row
func (s *Store) ClaimByPrincipal(ctx context.Context, principalID int64) (*enrollment.Claim, error) {
	claim, err := claimByPrincipal(ctx, s.db.sql, principalID)
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// SubmitClaim atomically accepts or rejects a submission. The whole
// check-and-upsert runs inside one immediate transaction: SQLite's writer
// lock guarantees no other submission can change the counts between the
// capacity check and the upsert. The submitting principal's own existing
// claim is excluded from every count so replacing a selection is never
// blocked by the slot it is vacating.
func (s *Store) SubmitClaim(ctx context.Context, principalID int64, sel enrollment.Selection, at time.Time) (*enrollment.Claim, error) {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapConflict(err, "failed to begin submit transaction")
	}
	defer tx.Rollback()

	for _, resourceID := range sel.ResourceIDs() {
		var (
			name     string
			capacity int
		)
		err := tx.QueryRowContext(ctx,
			`SELECT name, capacity FROM resources WHERE id = ?`, resourceID,
		).Scan(&name, &capacity)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, enrollment.ErrResourceNotFound
		}
		if err != nil {
			return nil, mapConflict(err, "failed to read resource capacity")
		}

		if capacity <= 0 {
			continue
		}

		var count int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM claims
			WHERE status IN ('submitted', 'confirmed')
			  AND principal_id != ?
			  AND (primary_id = ? OR elective_one_id = ? OR elective_two_id = ?)
		`, principalID, resourceID, resourceID, resourceID).Scan(&count)
		if err != nil {
			return nil, mapConflict(err, "failed to count active claims")
		}

		if count >= capacity {
			return nil, &enrollment.CapacityError{
				ResourceID: resourceID,
				Name:       name,
				Capacity:   capacity,
			}
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO claims (principal_id, primary_id, elective_one_id, elective_two_id,
		                    status, submitted_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'submitted', ?, ?, ?)
		ON CONFLICT(principal_id) DO UPDATE SET
			primary_id = excluded.primary_id,
			elective_one_id = excluded.elective_one_id,
			elective_two_id = excluded.elective_two_id,
			status = 'submitted',
			submitted_at = excluded.submitted_at,
			confirmed_at = NULL,
			updated_at = excluded.updated_at
	`, principalID, sel.PrimaryID, sel.ElectiveOneID, sel.ElectiveTwoID, at, at, at)
	if err != nil {
		return nil, mapConflict(err, "failed to upsert claim")
	}

	claim, err := claimByPrincipal(ctx, tx, principalID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, mapConflict(err, "failed to commit submit transaction")
	}
	return claim, nil
}

// SetClaimStatus transitions the principal's claim between lifecycle states
func (s *Store) SetClaimStatus(ctx context.Context, principalID int64, from []enrollment.Status, to enrollment.Status, at time.Time) (*enrollment.Claim, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	query := `UPDATE claims SET status = ?, updated_at = ?`
	args := []any{string(to), at}
	if to == enrollment.StatusConfirmed {
		query += `, confirmed_at = ?`
		args = append(args, at)
	}
	query += ` WHERE principal_id = ? AND status IN (` + placeholders + `)`
	args = append(args, principalID)
	for _, st := range from {
		args = append(args, string(st))
	}

	result, err := s.db.sql.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, mapConflict(err, "failed to update claim status")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, enrollment.ErrNoActiveClaim
	}

	return claimByPrincipal(ctx, s.db.sql, principalID)
}

// ActiveClaimCounts returns the derived claim count for every resource
func (s *Store) ActiveClaimCounts(ctx context.Context) (map[int64]int, error) {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT r.id, COUNT(c.id)
		FROM resources r
		LEFT JOIN claims c
		  ON c.status IN ('submitted', 'confirmed')
		 AND (c.primary_id = r.id OR c.elective_one_id = r.id OR c.elective_two_id = r.id)
		GROUP BY r.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count claims: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var (
			id    int64
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("failed to scan claim count: %w", err)
		}
		counts[id] = count
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(row rowScanner) (*enrollment.Resource, error) {
	var r enrollment.Resource
	var category string
	if err := row.Scan(&r.ID, &r.Name, &category, &r.Description, &r.Capacity, &r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Category = enrollment.Category(category)
	return &r, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func claimByPrincipal(ctx context.Context, q querier, principalID int64) (*enrollment.Claim, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, principal_id, primary_id, elective_one_id, elective_two_id,
		       status, submitted_at, confirmed_at, remark, created_at, updated_at
		FROM claims WHERE principal_id = ?
	`, principalID)

	var (
		c                         enrollment.Claim
		status                    string
		primary, elecOne, elecTwo sql.NullInt64
		submittedAt, confirmedAt  sql.NullTime
	)
	err := row.Scan(&c.ID, &c.PrincipalID, &primary, &elecOne, &elecTwo,
		&status, &submittedAt, &confirmedAt, &c.Remark, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, enrollment.ErrClaimNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}

	c.Status = enrollment.Status(status)
	c.Selection = enrollment.Selection{
		PrimaryID:     primary.Int64,
		ElectiveOneID: elecOne.Int64,
		ElectiveTwoID: elecTwo.Int64,
	}
	if submittedAt.Valid {
		t := submittedAt.Time
		c.SubmittedAt = &t
	}
	if confirmedAt.Valid {
		t := confirmedAt.Time
		c.ConfirmedAt = &t
	}
	return &c, nil
}

// mapConflict wraps engine errors, translating lock contention into the
// retryable enrollment.ErrStorageConflict.
func mapConflict(err error, msg string) error {
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", enrollment.ErrStorageConflict, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}
