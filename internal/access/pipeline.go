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

// Package access composes token validation, role policy lookup and rate
// limiting into a single per-request decision with a fixed stage order:
// authenticate, authorize, then rate-check. The order is a contract, not an
// optimization: a request that fails authentication or authorization must
// never consume rate-limit tokens.
package access

import (
	"context"
	"errors"

	"github.com/gatewarden/gatewarden/internal/audit"
	"github.com/gatewarden/gatewarden/internal/policy"
	"github.com/gatewarden/gatewarden/internal/ratelimit"
	"github.com/gatewarden/gatewarden/internal/token"
)

// Grant is the result of a fully admitted request.
type Grant struct {
	Principal token.AuthContext
	Decision  ratelimit.Decision
}

// Pipeline evaluates requests against the access-control stages.
type Pipeline struct {
	validator   *token.Validator
	table       *policy.Table
	limiter     *ratelimit.Limiter
	auditLogger audit.Logger
}

// NewPipeline creates an access pipeline over the given collaborators.
func NewPipeline(validator *token.Validator, table *policy.Table, limiter *ratelimit.Limiter, auditLogger audit.Logger) *Pipeline {
	return &Pipeline{
		validator:   validator,
		table:       table,
		limiter:     limiter,
		auditLogger: auditLogger,
	}
}

// Authorize runs a request through the pipeline. rawToken is the bearer
// token as presented, or empty when the request carried none; resource names
// the protected target for audit purposes.
//
// On admission it returns a Grant; otherwise the error is one of
// *AuthFailedError, *ForbiddenError, *RateLimitedError or *UnknownRoleError.
func (p *Pipeline) Authorize(ctx context.Context, rawToken, resource string, required policy.Permission) (*Grant, error) {
	if rawToken == "" {
		p.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeAuthRejected,
			Resource: resource,
			Metadata: map[string]any{audit.AttrReason: string(token.ReasonMissing)},
		})
		return nil, &AuthFailedError{Err: token.ErrMissing}
	}

	principal, err := p.validator.Validate(rawToken)
	if err != nil {
		reason := "invalid"
		var authErr *token.AuthError
		if errors.As(err, &authErr) {
			reason = string(authErr.Reason)
		}
		p.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeAuthRejected,
			Resource: resource,
			Metadata: map[string]any{audit.AttrReason: reason},
		})
		return nil, &AuthFailedError{Err: err}
	}

	perms, profile, err := p.table.Lookup(principal.Role)
	if err != nil {
		p.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeUnknownRole,
			ActorID:  principal.Subject,
			Resource: resource,
			Metadata: map[string]any{audit.AttrRole: string(principal.Role)},
		})
		return nil, &UnknownRoleError{Role: principal.Role}
	}

	if !perms.Has(required) {
		p.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeAccessForbidden,
			ActorID:  principal.Subject,
			Resource: resource,
			Metadata: map[string]any{
				audit.AttrRole:        string(principal.Role),
				"required_permission": string(required),
			},
		})
		return nil, &ForbiddenError{Role: principal.Role, Required: required}
	}

	decision := p.limiter.CheckAndConsume(principal.Subject, profile, 1)
	if !decision.Admitted {
		p.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeRateLimited,
			ActorID:  principal.Subject,
			Resource: resource,
			Metadata: map[string]any{
				audit.AttrRole: string(principal.Role),
				"retry_after":  decision.RetryAfter,
			},
		})
		return nil, &RateLimitedError{Decision: decision}
	}

	return &Grant{Principal: *principal, Decision: decision}, nil
}
