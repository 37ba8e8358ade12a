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

	"github.com/go-chi/chi/v5"
	"github.com/openenroll/openenroll/internal/enrollment"
	"github.com/openenroll/openenroll/internal/platform"
	"github.com/openenroll/openenroll/internal/store/sqlite"
)

// MyClaim returns the authenticated principal's claim, synthesizing an
// empty draft when none has been submitted yet
// @Summary My claim
// @Tags Claims
// @Produce json
// @Security BearerAuth
// @Success 200 {object} enrollment.Claim
// @Router /claim [get]
func (h *Handler) MyClaim(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.acquireTenant(w, r, GetTenantID(r.Context()))
	if !ok {
		return
	}
	defer handle.Release()

	claim, err := h.ledger.MyClaim(r.Context(), sqlite.NewStore(handle.DB()), GetPrincipalID(r.Context()))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load claim")
		return
	}
	respondJSON(w, http.StatusOK, claim)
}

// SubmitClaimRequest carries the three selection slots
type SubmitClaimRequest struct {
	PrimaryID     int64 `json:"primary_id"`
	ElectiveOneID int64 `json:"elective_one_id"`
	ElectiveTwoID int64 `json:"elective_two_id"`
}

// SubmitClaim submits or replaces the principal's claim atomically
// @Summary Submit claim
// @Description Validates the selection and claims capacity in all three resources atomically
// @Tags Claims
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} enrollment.Claim
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 409 {object} map[string]any
// @Router /claim [put]
func (h *Handler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	var req SubmitClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tenantID := GetTenantID(r.Context())
	if !h.enrollmentOpen(w, r, tenantID) {
		return
	}

	handle, ok := h.acquireTenant(w, r, tenantID)
	if !ok {
		return
	}
	defer handle.Release()

	sel := enrollment.Selection{
		PrimaryID:     req.PrimaryID,
		ElectiveOneID: req.ElectiveOneID,
		ElectiveTwoID: req.ElectiveTwoID,
	}
	claim, err := h.ledger.Submit(r.Context(), sqlite.NewStore(handle.DB()), tenantID, GetPrincipalID(r.Context()), sel)
	if err != nil {
		respondClaimError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, claim)
}

// CancelClaim cancels the principal's active claim, releasing its capacity
// @Summary Cancel claim
// @Tags Claims
// @Produce json
// @Security BearerAuth
// @Success 200 {object} enrollment.Claim
// @Failure 404 {object} map[string]string
// @Router /claim [delete]
func (h *Handler) CancelClaim(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())
	if !h.enrollmentOpen(w, r, tenantID) {
		return
	}

	handle, ok := h.acquireTenant(w, r, tenantID)
	if !ok {
		return
	}
	defer handle.Release()

	claim, err := h.ledger.Cancel(r.Context(), sqlite.NewStore(handle.DB()), tenantID, GetPrincipalID(r.Context()))
	if err != nil {
		if errors.Is(err, enrollment.ErrNoActiveClaim) {
			respondError(w, http.StatusNotFound, "no active claim to cancel")
			return
		}
		respondClaimError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, claim)
}

// ConfirmClaim moves a member's submitted claim to confirmed
// @Summary Confirm claim
// @Tags Claims
// @Produce json
// @Security BearerAuth
// @Success 200 {object} enrollment.Claim
// @Failure 404 {object} map[string]string
// @Router /claims/{principalID}/confirm [post]
func (h *Handler) ConfirmClaim(w http.ResponseWriter, r *http.Request) {
	principalID, err := strconv.ParseInt(chi.URLParam(r, "principalID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid principal id")
		return
	}

	tenantID := GetTenantID(r.Context())
	handle, ok := h.acquireTenant(w, r, tenantID)
	if !ok {
		return
	}
	defer handle.Release()

	claim, err := h.ledger.Confirm(r.Context(), sqlite.NewStore(handle.DB()), tenantID, GetPrincipalID(r.Context()), principalID)
	if err != nil {
		if errors.Is(err, enrollment.ErrNoActiveClaim) {
			respondError(w, http.StatusNotFound, "no submitted claim to confirm")
			return
		}
		respondClaimError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, claim)
}

// ResourceUsage returns per-resource capacity usage
// @Summary Resource usage
// @Tags Resources
// @Produce json
// @Security BearerAuth
// @Success 200 {array} enrollment.Usage
// @Router /resources/usage [get]
func (h *Handler) ResourceUsage(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.acquireTenant(w, r, GetTenantID(r.Context()))
	if !ok {
		return
	}
	defer handle.Release()

	usage, err := h.ledger.Stats(r.Context(), sqlite.NewStore(handle.DB()))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to compute usage")
		return
	}
	respondJSON(w, http.StatusOK, usage)
}

// enrollmentOpen enforces the tenant's enrollment window on claim
// mutations. Reads are never gated.
func (h *Handler) enrollmentOpen(w http.ResponseWriter, r *http.Request, tenantID string) bool {
	err := h.platformService.CheckEnrollmentOpen(r.Context(), tenantID)
	if err == nil {
		return true
	}
	switch {
	case errors.Is(err, platform.ErrEnrollmentClosed):
		respondError(w, http.StatusForbidden, "enrollment window is closed")
	case errors.Is(err, platform.ErrTenantSuspended):
		respondError(w, http.StatusForbidden, "tenant is suspended")
	default:
		respondError(w, http.StatusInternalServerError, "failed to check enrollment window")
	}
	return false
}

// respondClaimError maps ledger failures onto HTTP status codes
func respondClaimError(w http.ResponseWriter, err error) {
	var invalid *enrollment.InvalidSelectionError
	var capacity *enrollment.CapacityError

	switch {
	case errors.As(err, &invalid):
		respondError(w, http.StatusBadRequest, invalid.Error())
	case errors.As(err, &capacity):
		respondJSON(w, http.StatusConflict, map[string]any{
			"error":       "resource is at capacity",
			"resource_id": capacity.ResourceID,
			"name":        capacity.Name,
			"capacity":    capacity.Capacity,
		})
	case errors.Is(err, enrollment.ErrConcurrencyConflict):
		w.Header().Set("Retry-After", "1")
		respondError(w, http.StatusConflict, "concurrent submissions conflicted, retry")
	case errors.Is(err, enrollment.ErrResourceNotFound):
		respondError(w, http.StatusBadRequest, "selection references an unknown resource")
	default:
		respondError(w, http.StatusInternalServerError, "claim operation failed")
	}
}
