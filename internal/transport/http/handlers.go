// Copyright 2026 The Gatewarden Authors
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
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/gatewarden/gatewarden/internal/access"
	"github.com/gatewarden/gatewarden/internal/answer"
	"github.com/gatewarden/gatewarden/internal/observability/logger"
	"github.com/gatewarden/gatewarden/internal/observability/metrics"
	"github.com/gatewarden/gatewarden/internal/policy"
	"github.com/gatewarden/gatewarden/internal/token"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	tokenService  *token.Service
	pipeline      *access.Pipeline
	answerService answer.Service
	table         *policy.Table
	metrics       *metrics.AccessMetrics
}

// NewHandler creates a new HTTP handler. metrics may be nil when the meter
// is disabled.
func NewHandler(
	tokenService *token.Service,
	pipeline *access.Pipeline,
	answerService answer.Service,
	table *policy.Table,
	accessMetrics *metrics.AccessMetrics,
) *Handler {
	return &Handler{
		tokenService:  tokenService,
		pipeline:      pipeline,
		answerService: answerService,
		table:         table,
		metrics:       accessMetrics,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, loginLimiter *LoginLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(SecurityHeadersMiddleware)
	r.Use(MaxBodyBytes(1 << 20))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	r.Route("/v1", func(r chi.Router) {
		// Unauthenticated login, per-IP limited
		r.With(LoginRateLimitMiddleware(loginLimiter)).Post("/auth/login", h.Login)

		// Protected routes, each gated on its permission
		r.With(h.RequirePermission(policy.PermRead)).Post("/answer", h.Answer)
		r.With(h.RequirePermission(policy.PermEvaluate)).Post("/evaluate/offline", h.EvaluateOffline)
		r.With(h.RequirePermission(policy.PermAdmin)).Get("/admin/policy", h.PolicyTable)
	})

	return r
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "gatewarden",
	})
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates credentials and issues a signed access token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	issued, err := h.tokenService.Issue(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, token.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		slog.ErrorContext(r.Context(), "failed to issue token",
			logger.Error(err),
			logger.Username(req.Username),
		)
		respondError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	if h.metrics != nil {
		h.metrics.RecordTokenIssued(r.Context(), string(issued.Principal.Role))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"access_token": issued.AccessToken,
		"token_type":   issued.TokenType,
		"expires_in":   issued.ExpiresIn,
		"user_id":      issued.Principal.ID,
		"username":     issued.Principal.Username,
		"role":         string(issued.Principal.Role),
	})
}

// Answer forwards a question to the protected answer backend.
func (h *Handler) Answer(w http.ResponseWriter, r *http.Request) {
	var req answer.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.answerService.Answer(r.Context(), req)
	if err != nil {
		if errors.Is(err, answer.ErrEmptyQuestion) {
			respondError(w, http.StatusBadRequest, "question must not be empty")
			return
		}
		slog.ErrorContext(r.Context(), "answer backend error", logger.Error(err))
		respondError(w, http.StatusBadGateway, "answer backend unavailable")
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// EvaluateOffline runs an offline evaluation on the answer backend.
func (h *Handler) EvaluateOffline(w http.ResponseWriter, r *http.Request) {
	var req answer.EvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.answerService.Evaluate(r.Context(), req)
	if err != nil {
		slog.ErrorContext(r.Context(), "evaluation backend error", logger.Error(err))
		respondError(w, http.StatusBadGateway, "evaluation backend unavailable")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// policyEntry is the wire form of one role's policy.
type policyEntry struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	Capacity    int      `json:"capacity"`
	RefillPerS  float64  `json:"refill_per_second"`
	Burst       int      `json:"burst"`
}

// PolicyTable exposes the effective role policy to administrators.
func (h *Handler) PolicyTable(w http.ResponseWriter, r *http.Request) {
	entries := h.table.Entries()

	out := make([]policyEntry, 0, len(entries))
	for _, role := range policy.Roles {
		entry, ok := entries[role]
		if !ok {
			continue
		}
		perms := entry.Permissions.List()
		names := make([]string, len(perms))
		for i, p := range perms {
			names[i] = string(p)
		}
		out = append(out, policyEntry{
			Role:        string(role),
			Permissions: names,
			Capacity:    entry.Profile.Capacity,
			RefillPerS:  entry.Profile.RefillPerSecond,
			Burst:       entry.Profile.Burst,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{"roles": out})
}

// Helper functions
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
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
