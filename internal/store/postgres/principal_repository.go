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

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gatewarden/gatewarden/internal/identity"
	"github.com/gatewarden/gatewarden/internal/policy"
	"github.com/jackc/pgx/v5"
)

// PrincipalRepository implements identity.CredentialStore over PostgreSQL.
type PrincipalRepository struct {
	db *DB
}

// NewPrincipalRepository creates a new principal repository
func NewPrincipalRepository(db *DB) *PrincipalRepository {
	return &PrincipalRepository{db: db}
}

// Create inserts a new principal record.
func (r *PrincipalRepository) Create(ctx context.Context, rec *identity.Record) error {
	now := time.Now()
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO principals (id, username, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.ID, rec.Username, rec.PasswordHash, string(rec.Role), now, now)
	if err != nil {
		return fmt.Errorf("failed to insert principal: %w", err)
	}
	return nil
}

// Lookup retrieves a principal by username.
func (r *PrincipalRepository) Lookup(ctx context.Context, username string) (*identity.Record, error) {
	var rec identity.Record
	var role string

	err := r.db.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, role
		FROM principals
		WHERE username = $1 AND deleted_at IS NULL
	`, username).Scan(&rec.ID, &rec.Username, &rec.PasswordHash, &role)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("failed to get principal: %w", err)
	}

	rec.Role = policy.Role(role)
	return &rec, nil
}

// UpdatePassword replaces a principal's password hash.
func (r *PrincipalRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE principals SET password_hash = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if result.RowsAffected() == 0 {
		return identity.ErrPrincipalNotFound
	}
	return nil
}

// Delete soft-deletes a principal.
func (r *PrincipalRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE principals SET deleted_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to delete principal: %w", err)
	}
	if result.RowsAffected() == 0 {
		return identity.ErrPrincipalNotFound
	}
	return nil
}

var _ identity.CredentialStore = (*PrincipalRepository)(nil)
