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

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Meter wraps OpenTelemetry meter
type Meter struct {
	meter metric.Meter
}

// New creates a new meter instance
func New(ctx context.Context, cfg Config, serviceName string) (*Meter, error) {
	if !cfg.Enabled {
		return &Meter{
			meter: otel.Meter("noop"),
		}, nil
	}

	// Get meter from global meter provider
	// In production, configure a proper meter provider with exporters
	meter := otel.Meter(serviceName)

	return &Meter{
		meter: meter,
	}, nil
}

// GetMeter returns the underlying meter
func (m *Meter) GetMeter() metric.Meter {
	return m.meter
}

// AccessMetrics instruments the access pipeline outcomes.
type AccessMetrics struct {
	decisions    metric.Int64Counter
	rateLimited  metric.Int64Counter
	tokensIssued metric.Int64Counter
	latency      metric.Float64Histogram
}

// NewAccessMetrics creates the counters and histograms for access decisions.
func NewAccessMetrics(m *Meter) (*AccessMetrics, error) {
	decisions, err := m.meter.Int64Counter(
		"gatewarden.access.decisions",
		metric.WithDescription("Access pipeline decisions by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create decisions counter: %w", err)
	}

	rateLimited, err := m.meter.Int64Counter(
		"gatewarden.access.rate_limited",
		metric.WithDescription("Requests rejected by the rate limiter"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limited counter: %w", err)
	}

	tokensIssued, err := m.meter.Int64Counter(
		"gatewarden.tokens.issued",
		metric.WithDescription("Access tokens issued"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens_issued counter: %w", err)
	}

	latency, err := m.meter.Float64Histogram(
		"gatewarden.access.duration",
		metric.WithDescription("End-to-end access decision latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return &AccessMetrics{
		decisions:    decisions,
		rateLimited:  rateLimited,
		tokensIssued: tokensIssued,
		latency:      latency,
	}, nil
}

// RecordDecision records one pipeline outcome: admitted, auth_failed,
// forbidden, rate_limited or error.
func (a *AccessMetrics) RecordDecision(ctx context.Context, outcome, role string, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("role", role),
	)
	a.decisions.Add(ctx, 1, attrs)
	a.latency.Record(ctx, durationMs, attrs)
	if outcome == "rate_limited" {
		a.rateLimited.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
	}
}

// RecordTokenIssued records one successful login.
func (a *AccessMetrics) RecordTokenIssued(ctx context.Context, role string) {
	a.tokensIssued.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
}
