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

package token

import (
	"context"
	"fmt"
	"time"

	"github.com/gatewarden/gatewarden/internal/audit"
	"github.com/gatewarden/gatewarden/internal/identity"
	"github.com/golang-jwt/jwt/v5"
)

// Config holds the signing parameters shared by the service and validator.
// The secret is process-wide configuration loaded once at startup; rotating
// it invalidates all previously issued, not-yet-expired tokens, an accepted
// tradeoff of the stateless design.
type Config struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

// IssuedToken is the result of a successful login.
type IssuedToken struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int
	Principal   identity.Principal
}

// Service authenticates credentials and issues signed tokens. It is the only
// consumer of the credential store; the per-request pipeline never touches it.
type Service struct {
	store       identity.CredentialStore
	hasher      *identity.PasswordHasher
	auditLogger audit.Logger
	cfg         Config
	now         func() time.Time
	dummyHash   string
}

// NewService creates a token service.
func NewService(store identity.CredentialStore, hasher *identity.PasswordHasher, auditLogger audit.Logger, cfg Config) *Service {
	// Verified against on the unknown-user path so a login attempt costs the
	// same hash work whether or not the username exists.
	dummyHash, err := hasher.Hash("gatewarden-timing-pad")
	if err != nil {
		dummyHash = ""
	}
	return &Service{
		store:       store,
		hasher:      hasher,
		auditLogger: auditLogger,
		cfg:         cfg,
		now:         time.Now,
		dummyHash:   dummyHash,
	}
}

// Issue verifies a username/password pair and returns a signed token. Both
// unknown-user and wrong-password failures surface as the same
// InvalidCredentials error so the response does not leak which usernames
// exist.
func (s *Service) Issue(ctx context.Context, username, password string) (*IssuedToken, error) {
	rec, err := s.store.Lookup(ctx, username)
	if err != nil {
		// Burn the same argon2 work a real verification would, so response
		// time does not reveal whether the username exists.
		_, _ = s.hasher.Verify(password, s.dummyHash)
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			Resource: username,
			Metadata: map[string]any{audit.AttrReason: "unknown_user"},
		})
		return nil, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(password, rec.PasswordHash)
	if err != nil || !ok {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			ActorID:  rec.ID,
			Resource: "login",
			Metadata: map[string]any{audit.AttrReason: "invalid_password"},
		})
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	claims := Claims{
		Username: rec.Username,
		Role:     string(rec.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   rec.ID,
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTokenIssued,
		ActorID:  rec.ID,
		Resource: "access_token",
		Metadata: map[string]any{
			audit.AttrRole: string(rec.Role),
			"expires_in":   int(s.cfg.TTL.Seconds()),
		},
	})
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeLoginSuccess,
		ActorID:  rec.ID,
		Resource: "login",
	})

	return &IssuedToken{
		AccessToken: signed,
		TokenType:   "bearer",
		ExpiresIn:   int(s.cfg.TTL.Seconds()),
		Principal:   rec.Principal(),
	}, nil
}
