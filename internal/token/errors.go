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

import "fmt"

// AuthReason identifies why authentication failed.
type AuthReason string

const (
	ReasonMissing               AuthReason = "missing"
	ReasonMalformed             AuthReason = "malformed"
	ReasonInvalidSignature      AuthReason = "invalid_signature"
	ReasonExpired               AuthReason = "expired"
	ReasonWrongIssuerOrAudience AuthReason = "wrong_issuer_or_audience"
	ReasonInvalidCredentials    AuthReason = "invalid_credentials"
)

// AuthError is a typed authentication failure. Every rejection path in the
// token service and validator produces one so callers can branch on Reason
// without string matching.
type AuthError struct {
	Reason AuthReason
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// Is makes errors.Is match on reason, so sentinel comparisons like
// errors.Is(err, token.ErrExpired) work through wrapping.
func (e *AuthError) Is(target error) bool {
	other, ok := target.(*AuthError)
	return ok && other.Reason == e.Reason
}

// Sentinel instances, one per reason.
var (
	ErrMissing               = &AuthError{Reason: ReasonMissing}
	ErrMalformed             = &AuthError{Reason: ReasonMalformed}
	ErrInvalidSignature      = &AuthError{Reason: ReasonInvalidSignature}
	ErrExpired               = &AuthError{Reason: ReasonExpired}
	ErrWrongIssuerOrAudience = &AuthError{Reason: ReasonWrongIssuerOrAudience}
	ErrInvalidCredentials    = &AuthError{Reason: ReasonInvalidCredentials}
)
