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
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/gatewarden/gatewarden/internal/access"
	"github.com/gatewarden/gatewarden/internal/observability/logger"
	"github.com/gatewarden/gatewarden/internal/policy"
	"github.com/gatewarden/gatewarden/internal/ratelimit"
	"github.com/gatewarden/gatewarden/internal/token"
)

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			slog.InfoContext(r.Context(), "http_request_start",
				logger.RequestID(middleware.GetReqID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.RemoteAddr(r.RemoteAddr),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request_end",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// SecurityHeadersMiddleware sets defensive response headers on every route.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// MaxBodyBytes caps request body size before any handler reads it.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission gates a route group behind the access pipeline. The
// request must present a bearer token whose role grants the permission and
// whose principal has rate budget left. Admitted requests carry the
// principal in the context and rate-limit headers on the response.
func (h *Handler) RequirePermission(required policy.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			raw := bearerToken(r)

			grant, err := h.pipeline.Authorize(r.Context(), raw, r.URL.Path, required)
			if err != nil {
				h.denyRequest(w, r, err, time.Since(start))
				return
			}

			setRateHeaders(w, grant.Decision)
			h.recordDecision(r, "admitted", string(grant.Principal.Role), time.Since(start))

			ctx := WithAuthContext(r.Context(), &grant.Principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (h *Handler) denyRequest(w http.ResponseWriter, r *http.Request, err error, elapsed time.Duration) {
	var (
		authErr   *access.AuthFailedError
		forbidden *access.ForbiddenError
		limited   *access.RateLimitedError
		unknown   *access.UnknownRoleError
	)

	switch {
	case errors.As(err, &authErr):
		h.recordDecision(r, "auth_failed", "", elapsed)
		w.Header().Set("WWW-Authenticate", `Bearer realm="gatewarden"`)
		respondError(w, http.StatusUnauthorized, authReasonMessage(authErr.Err))

	case errors.As(err, &forbidden):
		h.recordDecision(r, "forbidden", string(forbidden.Role), elapsed)
		respondError(w, http.StatusForbidden, "insufficient permissions")

	case errors.As(err, &limited):
		h.recordDecision(r, "rate_limited", "", elapsed)
		setRateHeaders(w, limited.Decision)
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(limited.Decision.RetryAfter))))
		respondError(w, http.StatusTooManyRequests, "rate limit exceeded")

	case errors.As(err, &unknown):
		h.recordDecision(r, "error", string(unknown.Role), elapsed)
		slog.ErrorContext(r.Context(), "role missing from policy table",
			logger.Role(string(unknown.Role)),
			logger.Component("access"),
		)
		respondError(w, http.StatusInternalServerError, "internal server error")

	default:
		h.recordDecision(r, "error", "", elapsed)
		slog.ErrorContext(r.Context(), "access pipeline error", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// authReasonMessage maps token validation failures to client-facing text
// without leaking signature or key details.
func authReasonMessage(err error) string {
	switch {
	case errors.Is(err, token.ErrMissing):
		return "missing bearer token"
	case errors.Is(err, token.ErrExpired):
		return "token expired"
	default:
		return "invalid token"
	}
}

func setRateHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(int(d.Remaining)))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset, 10))
}

// bearerToken extracts the token from the Authorization header. Any scheme
// other than Bearer counts as no token at all.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	const prefix = "bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

func (h *Handler) recordDecision(r *http.Request, outcome, role string, elapsed time.Duration) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordDecision(r.Context(), outcome, role, float64(elapsed.Microseconds())/1000.0)
}
