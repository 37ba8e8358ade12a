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

// Package platform holds the cross-tenant catalog: which tenants exist,
// their lifecycle status, self-registration codes, and enrollment windows.
// Per-tenant data never lives here.
package platform

import (
	"context"
	"errors"
	"time"
)

// Tenant lifecycle status
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

var (
	ErrEnrollmentClosed        = errors.New("enrollment window is closed")
	ErrRegistrationCodeInvalid = errors.New("registration code is invalid")
	ErrTenantSuspended         = errors.New("tenant is suspended")
	ErrInvalidEnrollmentWindow = errors.New("enrollment window closes before it opens")
	ErrRegistrationCodeNotSet  = errors.New("tenant has no registration code")
)

// Tenant is one catalog row. OpensAt/ClosesAt bound the enrollment window;
// a nil bound means unbounded on that side.
type Tenant struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Status           string     `json:"status"`
	RegistrationCode string     `json:"-"`
	OpensAt          *time.Time `json:"opens_at,omitempty"`
	ClosesAt         *time.Time `json:"closes_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Repository defines the interface for catalog storage
type Repository interface {
	Create(ctx context.Context, t *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	Update(ctx context.Context, t *Tenant) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit, offset int) ([]*Tenant, error)
}

// Storage is the slice of the tenant handle registry the catalog needs:
// creating and destroying the per-tenant storage artifact.
type Storage interface {
	Provision(ctx context.Context, tenantID string) error
	Destroy(ctx context.Context, tenantID string) error
}
