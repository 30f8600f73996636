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

package access

import (
	"fmt"

	"github.com/gatewarden/gatewarden/internal/policy"
	"github.com/gatewarden/gatewarden/internal/ratelimit"
)

// AuthFailedError reports a request that failed authentication. It wraps the
// underlying token error so callers can inspect the precise reason.
type AuthFailedError struct {
	Err error
}

func (e *AuthFailedError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthFailedError) Unwrap() error { return e.Err }

// ForbiddenError reports an authenticated principal whose role lacks the
// required permission.
type ForbiddenError struct {
	Role     policy.Role
	Required policy.Permission
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("role %q lacks permission %q", e.Role, e.Required)
}

// RateLimitedError reports a request rejected by the rate limiter. The
// decision carries the metadata the transport layer needs for the
// Retry-After and X-RateLimit-* headers.
type RateLimitedError struct {
	Decision ratelimit.Decision
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %.2fs", e.Decision.RetryAfter)
}

// UnknownRoleError reports a validated token whose role has no policy entry.
// The policy table is validated for completeness at startup, so this
// indicates an internal inconsistency rather than a client mistake.
type UnknownRoleError struct {
	Role policy.Role
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("no policy entry for role %q", e.Role)
}
