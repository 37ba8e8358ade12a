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

// Package sqlite implements per-tenant storage over one SQLite artifact per
// tenant. Handles are opened in WAL mode with an immediate transaction lock
// so a write transaction owns the database for its whole lifetime; that
// single-writer discipline is what makes the capacity check in SubmitClaim
// race-free.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var tenantSchema string

// DB wraps one open connection pool to a tenant's storage artifact.
type DB struct {
	sql  *sql.DB
	path string
}

// Config holds per-handle open options.
type Config struct {
	BusyTimeout time.Duration
}

func dsn(path string, cfg Config) string {
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	// _txlock=immediate: BEGIN takes the write lock up front, so two
	// submit transactions can never interleave their count and upsert.
	return fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on&_txlock=immediate",
		path, busy.Milliseconds(),
	)
}

// Open opens an existing tenant artifact. The artifact must already exist;
// provisioning goes through Create.
func Open(ctx context.Context, path string, cfg Config) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("tenant artifact %s: %w", path, err)
	}
	return open(ctx, path, cfg)
}

// Create creates a new tenant artifact and bootstraps its schema. Fails if
// the artifact already exists.
func Create(ctx context.Context, path string, cfg Config) (*DB, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("tenant artifact %s: %w", path, os.ErrExist)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create tenant storage directory: %w", err)
	}

	db, err := open(ctx, path, cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Bootstrap(ctx); err != nil {
		db.Close()
		os.Remove(path)
		return nil, err
	}
	return db, nil
}

func open(ctx context.Context, path string, cfg Config) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", dsn(path, cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open tenant artifact: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping tenant artifact: %w", err)
	}

	return &DB{sql: sqlDB, path: path}, nil
}

// Bootstrap creates the tenant-scoped tables if and only if they do not
// already exist. Safe to run repeatedly.
func (db *DB) Bootstrap(ctx context.Context) error {
	if _, err := db.sql.ExecContext(ctx, tenantSchema); err != nil {
		return fmt.Errorf("failed to bootstrap tenant schema: %w", err)
	}
	return nil
}

// Path returns the artifact path this handle is bound to.
func (db *DB) Path() string {
	return db.path
}

// Close closes the underlying pool.
func (db *DB) Close() error {
	return db.sql.Close()
}
