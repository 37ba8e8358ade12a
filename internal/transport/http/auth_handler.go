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
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/openenroll/openenroll/internal/enrollment"
	"github.com/openenroll/openenroll/internal/identity"
	"github.com/openenroll/openenroll/internal/observability/logger"
	"github.com/openenroll/openenroll/internal/platform"
	"github.com/openenroll/openenroll/internal/store/sqlite"
	"github.com/openenroll/openenroll/internal/tenant"
)

// RegisterRequest represents self-registration data
type RegisterRequest struct {
	RegistrationCode string `json:"registration_code" example:"4f2d9c01ab35e877"`
	Username         string `json:"username" example:"alex"`
	DisplayName      string `json:"display_name" example:"Alex Smith"`
	Password         string `json:"password" example:"correct horse battery"`
}

// Register handles member self-registration
// @Summary Register
// @Description Register a member in the tenant using its registration code
// @Tags Auth
// @Accept json
// @Produce json
// @Param tenantID path string true "Tenant ID"
// @Param request body RegisterRequest true "Registration Data"
// @Success 201 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /tenants/{tenantID}/auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.platformService.CheckRegistrationCode(r.Context(), tenantID, req.RegistrationCode); err != nil {
		switch {
		case errors.Is(err, tenant.ErrTenantNotFound):
			respondError(w, http.StatusNotFound, "tenant not found")
		case errors.Is(err, platform.ErrTenantSuspended):
			respondError(w, http.StatusForbidden, "tenant is suspended")
		default:
			respondError(w, http.StatusForbidden, "invalid registration code")
		}
		return
	}

	handle, ok := h.acquireTenant(w, r, tenantID)
	if !ok {
		return
	}
	defer handle.Release()

	store := sqlite.NewPrincipalStore(handle.DB())
	p, err := h.identityService.Register(r.Context(), store, tenantID, req.Username, req.DisplayName, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, enrollment.ErrPrincipalAlreadyExists):
			respondError(w, http.StatusConflict, "username already taken")
		case errors.Is(err, identity.ErrWeakPassword):
			respondError(w, http.StatusBadRequest, "password does not meet requirements")
		default:
			slog.ErrorContext(r.Context(), "failed to register principal",
				logger.Error(err),
				logger.TenantID(tenantID),
				logger.Username(req.Username),
			)
			respondError(w, http.StatusInternalServerError, "failed to register")
		}
		return
	}

	respondJSON(w, http.StatusCreated, p)
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Username string `json:"username" example:"alex"`
	Password string `json:"password" example:"correct horse battery"`
}

// Login authenticates a principal and returns a bearer token
// @Summary Login
// @Description Authenticate against the tenant and mint a bearer token
// @Tags Auth
// @Accept json
// @Produce json
// @Param tenantID path string true "Tenant ID"
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} map[string]any
// @Failure 401 {object} map[string]string
// @Failure 423 {object} map[string]string
// @Router /tenants/{tenantID}/auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	handle, ok := h.acquireTenant(w, r, tenantID)
	if !ok {
		return
	}
	defer handle.Release()

	store := sqlite.NewPrincipalStore(handle.DB())
	p, token, err := h.identityService.Login(r.Context(), store, tenantID, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrAccountLocked):
			respondError(w, http.StatusLocked, "account is temporarily locked")
		case errors.Is(err, identity.ErrInvalidCredentials):
			respondError(w, http.StatusUnauthorized, "invalid credentials")
		default:
			respondError(w, http.StatusInternalServerError, "failed to log in")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"principal": p,
	})
}

// Logout revokes the presented bearer token
// @Summary Logout
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string
// @Router /auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := GetTokenClaims(r.Context())
	if err := h.identityService.Logout(r.Context(), GetTenantID(r.Context()), claims); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to log out")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Me returns the authenticated principal
// @Summary Current principal
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} enrollment.Principal
// @Router /auth/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.acquireTenant(w, r, GetTenantID(r.Context()))
	if !ok {
		return
	}
	defer handle.Release()

	store := sqlite.NewPrincipalStore(handle.DB())
	p, err := store.PrincipalByID(r.Context(), GetPrincipalID(r.Context()))
	if err != nil {
		respondError(w, http.StatusNotFound, "principal not found")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// ChangePasswordRequest represents password change data
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangePassword changes the authenticated principal's password
// @Summary Change Password
// @Tags Auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /auth/change-password [post]
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	handle, ok := h.acquireTenant(w, r, GetTenantID(r.Context()))
	if !ok {
		return
	}
	defer handle.Release()

	store := sqlite.NewPrincipalStore(handle.DB())
	err := h.identityService.ChangePassword(r.Context(), store, GetPrincipalID(r.Context()), req.OldPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials):
			respondError(w, http.StatusUnauthorized, "invalid old password")
		case errors.Is(err, identity.ErrWeakPassword):
			respondError(w, http.StatusBadRequest, "new password does not meet requirements")
		default:
			respondError(w, http.StatusInternalServerError, "failed to change password")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}

// CreatePrincipalRequest represents administrator principal creation
type CreatePrincipalRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role" example:"member"`
	Password    string `json:"password"`
}

// CreatePrincipal creates a principal with an explicit role
// @Summary Create principal
// @Tags Principals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 201 {object} enrollment.Principal
// @Failure 409 {object} map[string]string
// @Router /principals [post]
func (h *Handler) CreatePrincipal(w http.ResponseWriter, r *http.Request) {
	var req CreatePrincipalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	handle, ok := h.acquireTenant(w, r, GetTenantID(r.Context()))
	if !ok {
		return
	}
	defer handle.Release()

	store := sqlite.NewPrincipalStore(handle.DB())
	p, err := h.identityService.CreatePrincipal(r.Context(), store, GetTenantID(r.Context()), req.Username, req.DisplayName, req.Role, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, enrollment.ErrPrincipalAlreadyExists):
			respondError(w, http.StatusConflict, "username already taken")
		case errors.Is(err, identity.ErrWeakPassword):
			respondError(w, http.StatusBadRequest, "password does not meet requirements")
		default:
			respondError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	respondJSON(w, http.StatusCreated, p)
}

// ListPrincipals lists the tenant's principals
// @Summary List principals
// @Tags Principals
// @Produce json
// @Security BearerAuth
// @Success 200 {array} enrollment.Principal
// @Router /principals [get]
func (h *Handler) ListPrincipals(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.acquireTenant(w, r, GetTenantID(r.Context()))
	if !ok {
		return
	}
	defer handle.Release()

	store := sqlite.NewPrincipalStore(handle.DB())
	principals, err := store.ListPrincipals(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list principals")
		return
	}
	respondJSON(w, http.StatusOK, principals)
}
