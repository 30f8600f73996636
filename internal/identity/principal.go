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

package identity

import (
	"context"
	"errors"

	"github.com/gatewarden/gatewarden/internal/policy"
)

// Domain errors
var (
	ErrPrincipalNotFound = errors.New("principal not found")
	ErrDuplicateUsername = errors.New("username already registered")
)

// Principal is the authenticated identity a request acts as. Immutable once
// resolved for a request; never cached across requests beyond the token's
// own claims.
type Principal struct {
	ID       string
	Username string
	Role     policy.Role
}

// Record is a credential-store row: a principal plus its password hash.
// The hash never leaves this package's consumers except for verification.
type Record struct {
	ID           string
	Username     string
	PasswordHash string
	Role         policy.Role
}

// Principal strips the credential material from a record.
func (r *Record) Principal() Principal {
	return Principal{ID: r.ID, Username: r.Username, Role: r.Role}
}

// CredentialStore resolves usernames to principal records. It is consulted
// only on the login path; the per-request pipeline relies solely on token
// claims.
type CredentialStore interface {
	// Lookup returns the record for a username, or ErrPrincipalNotFound.
	Lookup(ctx context.Context, username string) (*Record, error)
}
