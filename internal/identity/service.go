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

package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openenroll/openenroll/internal/audit"
	"github.com/openenroll/openenroll/internal/enrollment"
)

// Service provides authentication business logic. Stores are passed per
// call because each tenant has its own storage artifact.
type Service struct {
	hasher             *PasswordHasher
	tokens             *TokenIssuer
	auditLogger        audit.Logger
	lockoutMaxAttempts int
	lockoutDuration    time.Duration
	now                func() time.Time
}

// NewService creates a new identity service
func NewService(
	hasher *PasswordHasher,
	tokens *TokenIssuer,
	auditLogger audit.Logger,
	lockoutMaxAttempts int,
	lockoutDuration time.Duration,
) *Service {
	return &Service{
		hasher:             hasher,
		tokens:             tokens,
		auditLogger:        auditLogger,
		lockoutMaxAttempts: lockoutMaxAttempts,
		lockoutDuration:    lockoutDuration,
		now:                time.Now,
	}
}

// Login authenticates a principal and mints a bearer token. Every failure
// surfaces as ErrInvalidCredentials except an active lockout.
func (s *Service) Login(ctx context.Context, store PrincipalStore, tenantID, username, password string) (*enrollment.Principal, string, error) {
	p, err := store.PrincipalByUsername(ctx, username)
	if err != nil {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			TenantID: tenantID,
			Resource: username,
			Metadata: map[string]any{audit.AttrReason: "principal_not_found"},
		})
		return nil, "", ErrInvalidCredentials
	}

	if p.LockedUntil != nil && p.LockedUntil.After(s.now()) {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			TenantID: tenantID,
			ActorID:  p.Username,
			Resource: "login",
			Metadata: map[string]any{audit.AttrReason: "locked_out"},
		})
		return nil, "", ErrAccountLocked
	}

	valid, err := s.hasher.Verify(password, p.PasswordHash)
	if err != nil || !valid {
		s.recordFailure(ctx, store, tenantID, p)
		return nil, "", ErrInvalidCredentials
	}

	if p.FailedLoginAttempts > 0 || p.LockedUntil != nil {
		_ = store.ResetLoginFailures(ctx, p.ID)
	}

	token, err := s.tokens.Issue(tenantID, p)
	if err != nil {
		return nil, "", err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeLoginSuccess,
		TenantID: tenantID,
		ActorID:  p.Username,
		Resource: "login",
	})
	return p, token, nil
}

func (s *Service) recordFailure(ctx context.Context, store PrincipalStore, tenantID string, p *enrollment.Principal) {
	attempts := p.FailedLoginAttempts + 1
	var lockedUntil *time.Time
	if attempts >= s.lockoutMaxAttempts {
		until := s.now().Add(s.lockoutDuration)
		lockedUntil = &until
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypePrincipalLocked,
			TenantID: tenantID,
			ActorID:  p.Username,
			Resource: "login",
			Metadata: map[string]any{audit.AttrAttempts: attempts},
		})
	}
	_ = store.RecordLoginFailure(ctx, p.ID, attempts, lockedUntil)

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeLoginFailed,
		TenantID: tenantID,
		ActorID:  p.Username,
		Resource: "login",
		Metadata: map[string]any{
			audit.AttrReason:   "invalid_password",
			audit.AttrAttempts: attempts,
		},
	})
}

// Logout revokes the presented token
func (s *Service) Logout(ctx context.Context, tenantID string, claims *TokenClaims) error {
	if err := s.tokens.Revoke(ctx, claims); err != nil {
		return err
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeLogout,
		TenantID: tenantID,
		ActorID:  claims.Subject,
	})
	return nil
}

// Register creates a member principal. Registration code verification
// happens at the transport layer against the platform catalog.
func (s *Service) Register(ctx context.Context, store PrincipalStore, tenantID, username, displayName, password string) (*enrollment.Principal, error) {
	return s.createPrincipal(ctx, store, tenantID, username, displayName, enrollment.RoleMember, password)
}

// CreatePrincipal creates a principal with an explicit role. Administrator
// use only.
func (s *Service) CreatePrincipal(ctx context.Context, store PrincipalStore, tenantID, username, displayName, role, password string) (*enrollment.Principal, error) {
	if role != enrollment.RoleMember && role != enrollment.RoleAdministrator {
		return nil, fmt.Errorf("invalid role: %s", role)
	}
	return s.createPrincipal(ctx, store, tenantID, username, displayName, role, password)
}

func (s *Service) createPrincipal(ctx context.Context, store PrincipalStore, tenantID, username, displayName, role, password string) (*enrollment.Principal, error) {
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if !isStrongPassword(password) {
		return nil, ErrWeakPassword
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	p := &enrollment.Principal{
		Username:     username,
		DisplayName:  displayName,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreatePrincipal(ctx, p); err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePrincipalCreated,
		TenantID: tenantID,
		ActorID:  username,
		Metadata: map[string]any{"role": role},
	})
	return p, nil
}

// ChangePassword replaces a principal's password after verifying the old one
func (s *Service) ChangePassword(ctx context.Context, store PrincipalStore, principalID int64, oldPassword, newPassword string) error {
	p, err := store.PrincipalByID(ctx, principalID)
	if err != nil {
		return err
	}

	valid, err := s.hasher.Verify(oldPassword, p.PasswordHash)
	if err != nil || !valid {
		return ErrInvalidCredentials
	}
	if !isStrongPassword(newPassword) {
		return ErrWeakPassword
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return store.UpdatePassword(ctx, principalID, hash)
}

// VerifyToken validates a bearer token and returns its claims
func (s *Service) VerifyToken(ctx context.Context, token string) (*TokenClaims, error) {
	claims, err := s.tokens.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, ErrTokenRevoked) {
			return nil, ErrTokenRevoked
		}
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
