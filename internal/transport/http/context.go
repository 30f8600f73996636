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
	"context"

	"github.com/gatewarden/gatewarden/internal/token"
)

type contextKey string

const authContextKey contextKey = "auth_context"

// WithAuthContext attaches the authenticated principal to the context.
func WithAuthContext(ctx context.Context, auth *token.AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, auth)
}

// GetAuthContext retrieves the authenticated principal from the context.
// Returns nil on unauthenticated requests.
func GetAuthContext(ctx context.Context) *token.AuthContext {
	if val, ok := ctx.Value(authContextKey).(*token.AuthContext); ok {
		return val
	}
	return nil
}
