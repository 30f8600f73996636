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
	"errors"
	"time"

	"github.com/gatewarden/gatewarden/internal/policy"
	"github.com/golang-jwt/jwt/v5"
)

// Validator verifies presented tokens. Validation is a pure function of the
// token, the current time, and this static configuration — no I/O, no
// mutation, safe for concurrent use without locking.
type Validator struct {
	cfg    Config
	parser *jwt.Parser
	now    func() time.Time
}

// NewValidator creates a validator for tokens issued under cfg.
func NewValidator(cfg Config) *Validator {
	v := &Validator{
		cfg: cfg,
		now: time.Now,
	}
	v.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return v.now() }),
	)
	return v
}

// Validate checks a raw token string and extracts the authenticated context.
// Failures short-circuit in a fixed order: structure, signature, expiry,
// issuer/audience. Each failure maps to a specific AuthError reason.
func (v *Validator) Validate(raw string) (*AuthContext, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return v.cfg.Secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformed
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		default:
			// Unknown alg, missing exp, or any other structural defect.
			return nil, ErrMalformed
		}
	}

	if claims.Issuer != v.cfg.Issuer {
		return nil, ErrWrongIssuerOrAudience
	}
	if !containsAudience(claims.Audience, v.cfg.Audience) {
		return nil, ErrWrongIssuerOrAudience
	}

	return &AuthContext{
		Subject:  claims.Subject,
		Username: claims.Username,
		Role:     policy.Role(claims.Role),
	}, nil
}

func containsAudience(audiences jwt.ClaimStrings, target string) bool {
	for _, aud := range audiences {
		if aud == target {
			return true
		}
	}
	return false
}
