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
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/openenroll/openenroll/internal/store/sqlite"
)

// TenantConfig returns the tenant's settings map (announcement text,
// display options)
// @Summary Tenant settings
// @Tags Config
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string
// @Router /config [get]
func (h *Handler) TenantConfig(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.acquireTenant(w, r, GetTenantID(r.Context()))
	if !ok {
		return
	}
	defer handle.Release()

	settings, err := sqlite.NewConfigStore(handle.DB()).All(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// SetTenantConfigRequest carries one setting value
type SetTenantConfigRequest struct {
	Value string `json:"value"`
}

// SetTenantConfig upserts one tenant setting
// @Summary Set tenant setting
// @Tags Config
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string
// @Router /config/{key} [put]
func (h *Handler) SetTenantConfig(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		respondError(w, http.StatusBadRequest, "setting key is required")
		return
	}

	var req SetTenantConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	handle, ok := h.acquireTenant(w, r, GetTenantID(r.Context()))
	if !ok {
		return
	}
	defer handle.Release()

	if err := sqlite.NewConfigStore(handle.DB()).Set(r.Context(), key, req.Value); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to store setting")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{key: req.Value})
}
