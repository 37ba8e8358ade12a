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
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/openenroll/openenroll/internal/platform"
	"github.com/openenroll/openenroll/internal/tenant"
)

// CreateTenantRequest represents tenant creation data
type CreateTenantRequest struct {
	ID   string `json:"id" example:"school-a"`
	Name string `json:"name" example:"School A"`
}

// CreateTenant registers a tenant and provisions its storage
// @Summary Create tenant
// @Tags Platform
// @Accept json
// @Produce json
// @Security PlatformKey
// @Success 201 {object} map[string]any
// @Failure 409 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /platform/tenants [post]
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.platformService.CreateTenant(r.Context(), req.ID, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, tenant.ErrTenantAlreadyExists):
			respondError(w, http.StatusConflict, "tenant already exists")
		case errors.Is(err, tenant.ErrInvalidTenantID):
			respondError(w, http.StatusBadRequest, "invalid tenant id")
		case errors.Is(err, tenant.ErrRegistryExhausted):
			respondError(w, http.StatusServiceUnavailable, "tenant storage is busy, retry shortly")
		default:
			respondError(w, http.StatusInternalServerError, "failed to create tenant")
		}
		return
	}

	// The registration code is returned exactly once, at creation.
	respondJSON(w, http.StatusCreated, map[string]any{
		"tenant":            created,
		"registration_code": created.RegistrationCode,
	})
}

// ListTenants lists catalog rows
// @Summary List tenants
// @Tags Platform
// @Produce json
// @Security PlatformKey
// @Success 200 {array} platform.Tenant
// @Router /platform/tenants [get]
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	tenants, err := h.platformService.ListTenants(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list tenants")
		return
	}
	respondJSON(w, http.StatusOK, tenants)
}

// GetTenant returns one catalog row
// @Summary Get tenant
// @Tags Platform
// @Produce json
// @Security PlatformKey
// @Success 200 {object} platform.Tenant
// @Failure 404 {object} map[string]string
// @Router /platform/tenants/{tenantID} [get]
func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	t, err := h.platformService.GetTenant(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		respondError(w, http.StatusNotFound, "tenant not found")
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// DeleteTenant destroys a tenant's storage and removes its catalog row
// @Summary Delete tenant
// @Tags Platform
// @Produce json
// @Security PlatformKey
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /platform/tenants/{tenantID} [delete]
func (h *Handler) DeleteTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	if err := h.platformService.DeleteTenant(r.Context(), tenantID); err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete tenant")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "tenant deleted"})
}

// SetTenantStatusRequest carries the target lifecycle status
type SetTenantStatusRequest struct {
	Status string `json:"status" example:"suspended"`
}

// SetTenantStatus activates or suspends a tenant
// @Summary Set tenant status
// @Tags Platform
// @Accept json
// @Produce json
// @Security PlatformKey
// @Success 200 {object} platform.Tenant
// @Router /platform/tenants/{tenantID}/status [put]
func (h *Handler) SetTenantStatus(w http.ResponseWriter, r *http.Request) {
	var req SetTenantStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	t, err := h.platformService.SetStatus(r.Context(), chi.URLParam(r, "tenantID"), req.Status)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// SetEnrollmentWindowRequest carries the window bounds; omitted bounds are
// unbounded
type SetEnrollmentWindowRequest struct {
	OpensAt  *time.Time `json:"opens_at,omitempty"`
	ClosesAt *time.Time `json:"closes_at,omitempty"`
}

// SetEnrollmentWindow sets when the tenant accepts claim changes
// @Summary Set enrollment window
// @Tags Platform
// @Accept json
// @Produce json
// @Security PlatformKey
// @Success 200 {object} platform.Tenant
// @Router /platform/tenants/{tenantID}/enrollment-window [put]
func (h *Handler) SetEnrollmentWindow(w http.ResponseWriter, r *http.Request) {
	var req SetEnrollmentWindowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	t, err := h.platformService.SetEnrollmentWindow(r.Context(), chi.URLParam(r, "tenantID"), req.OpensAt, req.ClosesAt)
	if err != nil {
		switch {
		case errors.Is(err, tenant.ErrTenantNotFound):
			respondError(w, http.StatusNotFound, "tenant not found")
		case errors.Is(err, platform.ErrInvalidEnrollmentWindow):
			respondError(w, http.StatusBadRequest, "enrollment window closes before it opens")
		default:
			respondError(w, http.StatusInternalServerError, "failed to set enrollment window")
		}
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// RotateRegistrationCode replaces the tenant's registration code
// @Summary Rotate registration code
// @Tags Platform
// @Produce json
// @Security PlatformKey
// @Success 200 {object} map[string]string
// @Router /platform/tenants/{tenantID}/registration-code [post]
func (h *Handler) RotateRegistrationCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.platformService.RotateRegistrationCode(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to rotate registration code")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"registration_code": code})
}
