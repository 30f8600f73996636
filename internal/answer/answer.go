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

// Package answer is the protected workload behind the access layer. The
// gateway treats it as an opaque downstream; the Service interface exists so
// deployments can swap in a real backend without touching the access path.
package answer

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrEmptyQuestion = errors.New("question must not be empty")

// Request is a question posed to the answer backend.
type Request struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

// Response carries the backend's answer.
type Response struct {
	Answer    string    `json:"answer"`
	Model     string    `json:"model"`
	Timestamp time.Time `json:"timestamp"`
}

// EvaluationRequest asks for an offline evaluation run over a named dataset.
type EvaluationRequest struct {
	Dataset string `json:"dataset"`
	Limit   int    `json:"limit,omitempty"`
}

// EvaluationResult summarizes one offline evaluation run.
type EvaluationResult struct {
	Dataset   string    `json:"dataset"`
	Evaluated int       `json:"evaluated"`
	Score     float64   `json:"score"`
	StartedAt time.Time `json:"started_at"`
}

// Service is the downstream workload contract.
type Service interface {
	Answer(ctx context.Context, req Request) (*Response, error)
	Evaluate(ctx context.Context, req EvaluationRequest) (*EvaluationResult, error)
}

// StubService is the built-in development backend. It echoes deterministic
// responses so the access layer can be exercised end to end without a real
// model behind it.
type StubService struct {
	Model string
	now   func() time.Time
}

// NewStubService creates the development backend.
func NewStubService(model string) *StubService {
	if model == "" {
		model = "stub-v1"
	}
	return &StubService{Model: model, now: time.Now}
}

func (s *StubService) Answer(_ context.Context, req Request) (*Response, error) {
	if req.Question == "" {
		return nil, ErrEmptyQuestion
	}
	return &Response{
		Answer:    fmt.Sprintf("no answer available for %q yet", req.Question),
		Model:     s.Model,
		Timestamp: s.now(),
	}, nil
}

func (s *StubService) Evaluate(_ context.Context, req EvaluationRequest) (*EvaluationResult, error) {
	dataset := req.Dataset
	if dataset == "" {
		dataset = "default"
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	return &EvaluationResult{
		Dataset:   dataset,
		Evaluated: limit,
		Score:     0,
		StartedAt: s.now(),
	}, nil
}

var _ Service = (*StubService)(nil)
