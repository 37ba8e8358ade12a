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

package http

import (
	"context"

	"github.com/openenroll/openenroll/internal/identity"
)

type contextKey string

const (
	tenantIDKey    contextKey = "tenant_id"
	principalIDKey contextKey = "principal_id"
	claimsKey      contextKey = "token_claims"
)

// GetTenantID retrieves the authenticated tenant id from context.
// Tenant context is derived exclusively from the bearer token, never from
// headers the client controls.
func GetTenantID(ctx context.Context) string {
	if val, ok := ctx.Value(tenantIDKey).(string); ok {
		return val
	}
	return ""
}

// GetPrincipalID retrieves the authenticated principal id from context.
func GetPrincipalID(ctx context.Context) int64 {
	if val, ok := ctx.Value(principalIDKey).(int64); ok {
		return val
	}
	return 0
}

// GetTokenClaims retrieves the verified token claims from context.
func GetTokenClaims(ctx context.Context) *identity.TokenClaims {
	if val, ok := ctx.Value(claimsKey).(*identity.TokenClaims); ok {
		return val
	}
	return nil
}
