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

// Package ratelimit implements the per-principal token-bucket rate limiter.
//
// The limiter exclusively owns all bucket state. Buckets are created lazily
// on first check, keyed by principal id (not token: several tokens may
// represent one principal), refilled lazily on each access, and evicted
// after a configurable idle window to bound memory. A bucket evicted during
// an in-flight check is simply recreated at full capacity on the next
// access; this is a documented approximation, not a bug.
package ratelimit

import (
	"sync"
	"time"

	"github.com/gatewarden/gatewarden/internal/policy"
)

// Decision is the outcome of one rate-limit check. It also carries the
// metadata the transport layer exposes as X-RateLimit-* headers.
type Decision struct {
	Admitted   bool
	Remaining  float64
	RetryAfter float64 // seconds until the request could succeed; 0 when admitted
	Limit      int
	Reset      int64 // unix seconds when the bucket is full again
}

// bucket is per-principal mutable state. Invariant: 0 <= tokens <= capacity,
// enforced by clamping on every refill. The mutex linearizes all
// check-read-modify-write sequences for one principal.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// Config holds limiter housekeeping configuration.
type Config struct {
	// EvictionWindow is how long a bucket may sit idle before the sweeper
	// removes it.
	EvictionWindow time.Duration

	// SweepInterval is how often the background sweeper runs.
	SweepInterval time.Duration
}

// Limiter maintains one token bucket per principal and enforces consumption
// atomically under concurrent access. Per-bucket locks keep unrelated
// principals from serializing each other; the map's own insert/evict
// structural changes take the coarser RWMutex.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucket

	cfg  Config
	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

// NewLimiter creates a limiter and starts its background eviction sweeper.
// Call Close to stop the sweeper.
func NewLimiter(cfg Config) *Limiter {
	if cfg.EvictionWindow <= 0 {
		cfg.EvictionWindow = 10 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}

	l := &Limiter{
		buckets: make(map[string]*bucket),
		cfg:     cfg,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Close stops the eviction sweeper.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

// CheckAndConsume decides whether a request of the given cost may proceed
// for the principal. On admission the cost is deducted; on rejection the
// bucket is left untouched and RetryAfter reports how long until the cost
// could be covered.
func (l *Limiter) CheckAndConsume(principalID string, profile policy.RateProfile, cost float64) Decision {
	b := l.getOrCreate(principalID, profile)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.now()
	capacity := float64(profile.Capacity)

	// Lazy refill: accrue what elapsed time would have added, clamped to
	// capacity. No background ticking thread needed; the bucket state is
	// always consistent with "tokens that would have accrued by now".
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = min(capacity, b.tokens+elapsed*profile.RefillPerSecond)
	}
	b.lastRefill = now

	d := Decision{
		Limit: profile.Limit(),
	}

	if b.tokens >= cost {
		b.tokens -= cost
		d.Admitted = true
	} else {
		d.RetryAfter = (cost - b.tokens) / profile.RefillPerSecond
	}
	d.Remaining = b.tokens
	d.Reset = now.Unix() + int64((capacity-b.tokens)/profile.RefillPerSecond)

	return d
}

// Remaining reports the tokens currently available to a principal without
// consuming any. A principal with no bucket has an implicit full bucket.
func (l *Limiter) Remaining(principalID string, profile policy.RateProfile) float64 {
	l.mu.RLock()
	b, ok := l.buckets[principalID]
	l.mu.RUnlock()
	if !ok {
		return float64(profile.Capacity)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	elapsed := l.now().Sub(b.lastRefill).Seconds()
	return min(float64(profile.Capacity), b.tokens+elapsed*profile.RefillPerSecond)
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}

func (l *Limiter) getOrCreate(principalID string, profile policy.RateProfile) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[principalID]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[principalID]; ok {
		return b
	}
	b = &bucket{
		tokens:     float64(profile.Capacity),
		lastRefill: l.now(),
	}
	l.buckets[principalID] = b
	return b
}

// sweep periodically evicts buckets idle longer than the eviction window.
// This is memory-bounding housekeeping, not part of the request-path
// contract: a concurrent check holding a just-evicted bucket finishes on the
// detached state, and the next access recreates the bucket at full capacity.
func (l *Limiter) sweep() {
	ticker := time.NewTicker(l.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

func (l *Limiter) evictIdle() {
	cutoff := l.now().Add(-l.cfg.EvictionWindow)

	l.mu.Lock()
	defer l.mu.Unlock()
	for id, b := range l.buckets {
		b.mu.Lock()
		idle := b.lastRefill.Before(cutoff)
		b.mu.Unlock()
		if idle {
			delete(l.buckets, id)
		}
	}
}
