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

// Package http is the REST surface. Two planes share the router: the
// platform plane (tenant catalog management, keyed by X-Platform-Key) and
// the tenant plane (everything else, scoped by the bearer token's tenant).
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/openenroll/openenroll/internal/audit"
	"github.com/openenroll/openenroll/internal/enrollment"
	"github.com/openenroll/openenroll/internal/identity"
	"github.com/openenroll/openenroll/internal/platform"
	"github.com/openenroll/openenroll/internal/tenant"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	registry        *tenant.Registry
	platformService *platform.Service
	identityService *identity.Service
	ledger          *enrollment.Ledger
	auditLogger     audit.Logger
	platformKey     string
}

// NewHandler creates a new HTTP handler
func NewHandler(
	registry *tenant.Registry,
	platformService *platform.Service,
	identityService *identity.Service,
	ledger *enrollment.Ledger,
	auditLogger audit.Logger,
	platformKey string,
) *Handler {
	return &Handler{
		registry:        registry,
		platformService: platformService,
		identityService: identityService,
		ledger:          ledger,
		auditLogger:     auditLogger,
		platformKey:     platformKey,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		// Platform plane: cross-tenant catalog management.
		r.Route("/platform/tenants", func(r chi.Router) {
			r.Use(h.PlatformAuthMiddleware)
			r.Post("/", h.CreateTenant)
			r.Get("/", h.ListTenants)
			r.Route("/{tenantID}", func(r chi.Router) {
				r.Get("/", h.GetTenant)
				r.Delete("/", h.DeleteTenant)
				r.Put("/status", h.SetTenantStatus)
				r.Put("/enrollment-window", h.SetEnrollmentWindow)
				r.Post("/registration-code", h.RotateRegistrationCode)
			})
		})

		// Unauthenticated tenant plane: the tenant comes from the URL here
		// and from the token everywhere else.
		r.Route("/tenants/{tenantID}/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
		})

		// Authenticated tenant plane.
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Post("/auth/logout", h.Logout)
			r.Get("/auth/me", h.Me)
			r.Post("/auth/change-password", h.ChangePassword)

			r.Get("/resources", h.ListResources)
			r.Get("/resources/usage", h.ResourceUsage)

			r.Get("/claim", h.MyClaim)
			r.Put("/claim", h.SubmitClaim)
			r.Delete("/claim", h.CancelClaim)

			r.Get("/config", h.TenantConfig)

			// Administrator-only surface.
			r.Group(func(r chi.Router) {
				r.Use(RequireAdministrator)

				r.Post("/resources", h.CreateResource)
				r.Put("/resources/{resourceID}", h.UpdateResource)
				r.Delete("/resources/{resourceID}", h.DeleteResource)

				r.Get("/principals", h.ListPrincipals)
				r.Post("/principals", h.CreatePrincipal)

				r.Post("/claims/{principalID}/confirm", h.ConfirmClaim)

				r.Put("/config/{key}", h.SetTenantConfig)
			})
		})
	})

	return r
}

// HealthCheck returns the health status
// @Summary Health Check
// @Description Checks if the service is up and running
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"service":      "openenroll",
		"open_handles": h.registry.OpenHandles(),
	})
}

// acquireTenant leases the tenant's storage handle and maps registry
// failures onto HTTP status codes. Callers must Release the handle when a
// nil error is returned.
func (h *Handler) acquireTenant(w http.ResponseWriter, r *http.Request, tenantID string) (*tenant.Handle, bool) {
	handle, err := h.registry.Acquire(r.Context(), tenantID)
	if err == nil {
		return handle, true
	}

	switch {
	case errors.Is(err, tenant.ErrTenantNotFound), errors.Is(err, tenant.ErrInvalidTenantID):
		respondError(w, http.StatusNotFound, "tenant not found")
	case errors.Is(err, tenant.ErrRegistryExhausted):
		w.Header().Set("Retry-After", "1")
		respondError(w, http.StatusServiceUnavailable, "tenant storage is busy, retry shortly")
	case errors.Is(err, tenant.ErrRegistryClosed):
		respondError(w, http.StatusServiceUnavailable, "service is shutting down")
	default:
		respondError(w, http.StatusServiceUnavailable, "tenant storage unavailable")
	}
	return nil, false
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func getIPAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
