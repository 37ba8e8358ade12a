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

// Package identity handles authentication inside a tenant: password
// hashing, login with lockout, bearer tokens, and token revocation.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/openenroll/openenroll/internal/enrollment"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrWeakPassword       = errors.New("password does not meet requirements")
	ErrTokenInvalid       = errors.New("token is invalid")
	ErrTokenRevoked       = errors.New("token has been revoked")
)

// PrincipalStore is the slice of per-tenant storage the identity service
// needs. Implementations are scoped to one tenant artifact.
type PrincipalStore interface {
	PrincipalByUsername(ctx context.Context, username string) (*enrollment.Principal, error)
	PrincipalByID(ctx context.Context, id int64) (*enrollment.Principal, error)
	CreatePrincipal(ctx context.Context, p *enrollment.Principal) error
	RecordLoginFailure(ctx context.Context, id int64, failures int, lockedUntil *time.Time) error
	ResetLoginFailures(ctx context.Context, id int64) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}
