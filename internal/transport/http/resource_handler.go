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
	"github.com/openenroll/openenroll/internal/store/sqlite"
)

// ListResources lists the tenant's resources
// @Summary List resources
// @Tags Resources
// @Produce json
// @Security BearerAuth
// @Success 200 {array} enrollment.Resource
// @Router /resources [get]
func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.acquireTenant(w, r, GetTenantID(r.Context()))
	if !ok {
		return
	}
	defer handle.Release()

	resources, err := sqlite.NewStore(handle.DB()).ListResources(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list resources")
		return
	}
	respondJSON(w, http.StatusOK, resources)
}

// ResourceRequest represents resource creation or update data
type ResourceRequest struct {
	Name        string              `json:"name"`
	Category    enrollment.Category `json:"category" example:"elective"`
	Description string              `json:"description"`
	Capacity    int                 `json:"capacity"`
	Active      *bool               `json:"active,omitempty"`
}

// CreateResource adds a resource to the tenant
// @Summary Create resource
// @Tags Resources
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 201 {object} enrollment.Resource
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /resources [post]
func (h *Handler) CreateResource(w http.ResponseWriter, r *http.Request) {
	var req ResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	handle, ok := h.acquireTenant(w, r, GetTenantID(r.Context()))
	if !ok {
		return
	}
	defer handle.Release()

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	resource := &enrollment.Resource{
		Name:        req.Name,
		Category:    req.Category,
		Description: req.Description,
		Capacity:    req.Capacity,
		Active:      active,
	}

	err := h.ledger.CreateResource(r.Context(), sqlite.NewStore(handle.DB()), GetTenantID(r.Context()), GetPrincipalID(r.Context()), resource)
	if err != nil {
		var invalid *enrollment.InvalidSelectionError
		switch {
		case errors.As(err, &invalid):
			respondError(w, http.StatusBadRequest, invalid.Error())
		case errors.Is(err, enrollment.ErrResourceAlreadyExists):
			respondError(w, http.StatusConflict, "resource already exists")
		default:
			respondError(w, http.StatusInternalServerError, "failed to create resource")
		}
		return
	}

	respondJSON(w, http.StatusCreated, resource)
}

// UpdateResource updates a resource's name, description, capacity or
// active flag
// @Summary Update resource
// @Tags Resources
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} enrollment.Resource
// @Failure 404 {object} map[string]string
// @Router /resources/{resourceID} [put]
func (h *Handler) UpdateResource(w http.ResponseWriter, r *http.Request) {
	resourceID, err := strconv.ParseInt(chi.URLParam(r, "resourceID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid resource id")
		return
	}

	var req ResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	handle, ok := h.acquireTenant(w, r, GetTenantID(r.Context()))
	if !ok {
		return
	}
	defer handle.Release()

	store := sqlite.NewStore(handle.DB())
	resource, err := store.ResourceByID(r.Context(), resourceID)
	if err != nil {
		respondError(w, http.StatusNotFound, "resource not found")
		return
	}

	if req.Name != "" {
		resource.Name = req.Name
	}
	resource.Description = req.Description
	resource.Capacity = req.Capacity
	if req.Active != nil {
		resource.Active = *req.Active
	}

	if err := h.ledger.UpdateResource(r.Context(), store, GetTenantID(r.Context()), GetPrincipalID(r.Context()), resource); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update resource")
		return
	}
	respondJSON(w, http.StatusOK, resource)
}

// DeleteResource removes a resource with no active claims
// @Summary Delete resource
// @Tags Resources
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /resources/{resourceID} [delete]
func (h *Handler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	resourceID, err := strconv.ParseInt(chi.URLParam(r, "resourceID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid resource id")
		return
	}

	handle, ok := h.acquireTenant(w, r, GetTenantID(r.Context()))
	if !ok {
		return
	}
	defer handle.Release()

	err = h.ledger.DeleteResource(r.Context(), sqlite.NewStore(handle.DB()), GetTenantID(r.Context()), GetPrincipalID(r.Context()), resourceID)
	if err != nil {
		switch {
		case errors.Is(err, enrollment.ErrResourceNotFound):
			respondError(w, http.StatusNotFound, "resource not found")
		case errors.Is(err, enrollment.ErrResourceInUse):
			respondError(w, http.StatusConflict, "resource has active claims")
		default:
			respondError(w, http.StatusInternalServerError, "failed to delete resource")
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "resource deleted"})
}
