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
)

// ErrConfigNotFound is returned when a config key has no value.
var ErrConfigNotFound = errors.New("config key not found")

// ConfigStore is the per-tenant key/value settings table for anything a
// tenant administrator tweaks, such as announcement text and display options.
type ConfigStore struct {
	db *DB
}

// NewConfigStore creates a config store bound to the given handle
func NewConfigStore(db *DB) *ConfigStore {
	return &ConfigStore{db: db}
}

// Get returns the value for a key
func (s *ConfigStore) Get(ctx context.Context, key string) (string, error) {
	var value sql.NullString
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT value FROM config WHERE key = ?`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrConfigNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get config: %w", err)
	}
	return value.String, nil
}

// Set upserts a key/value pair
func (s *ConfigStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set config: %w", err)
	}
	return nil
}

// All returns every key/value pair
func (s *ConfigStore) All(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.sql.QueryContext(ctx, `SELECT key, value FROM config ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list config: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var (
			key   string
			value sql.NullString
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan config: %w", err)
		}
		out[key] = value.String
	}
	return out, rows.Err()
}
