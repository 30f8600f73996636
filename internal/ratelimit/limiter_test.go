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

package ratelimit

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gatewarden/gatewarden/internal/policy"
)

// fakeClock drives the limiter's notion of time in tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(clock *fakeClock) *Limiter {
	l := NewLimiter(Config{EvictionWindow: 10 * time.Minute, SweepInterval: time.Hour})
	l.now = clock.Now
	return l
}

func TestCheckAndConsume_Exhaustion(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	defer l.Close()

	profile := policy.RateProfile{Capacity: 3, RefillPerSecond: 1, Burst: 3}

	for i := 0; i < 3; i++ {
		d := l.CheckAndConsume("alice", profile, 1)
		if !d.Admitted {
			t.Fatalf("request %d: expected admitted", i)
		}
	}

	d := l.CheckAndConsume("alice", profile, 1)
	if d.Admitted {
		t.Fatal("expected rejection once bucket is empty")
	}
	if d.Remaining != 0 {
		t.Fatalf("expected 0 remaining, got %v", d.Remaining)
	}
	if d.RetryAfter <= 0 || d.RetryAfter > 1 {
		t.Fatalf("expected retry-after in (0,1], got %v", d.RetryAfter)
	}
}

func TestRefill_ProportionalAndClamped(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	defer l.Close()

	profile := policy.RateProfile{Capacity: 10, RefillPerSecond: 1, Burst: 10}

	// Drain the bucket completely.
	for i := 0; i < 10; i++ {
		if d := l.CheckAndConsume("bob", profile, 1); !d.Admitted {
			t.Fatalf("drain request %d rejected", i)
		}
	}

	// 5 seconds at 1 token/s accrues 5 tokens.
	clock.Advance(5 * time.Second)
	if got := l.Remaining("bob", profile); math.Abs(got-5) > 1e-9 {
		t.Fatalf("after 5s expected 5 tokens, got %v", got)
	}

	// A long idle period clamps at capacity, never above.
	clock.Advance(20 * time.Second)
	if got := l.Remaining("bob", profile); got != 10 {
		t.Fatalf("after long idle expected full bucket of 10, got %v", got)
	}
}

func TestDecision_Metadata(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	defer l.Close()

	profile := policy.RateProfile{Capacity: 10, RefillPerSecond: 2, Burst: 10}

	d := l.CheckAndConsume("carol", profile, 1)
	if !d.Admitted {
		t.Fatal("expected admission on fresh bucket")
	}
	if d.Limit != 10 {
		t.Fatalf("expected limit 10, got %d", d.Limit)
	}
	if d.Remaining != 9 {
		t.Fatalf("expected 9 remaining, got %v", d.Remaining)
	}
	if d.RetryAfter != 0 {
		t.Fatalf("expected zero retry-after on admission, got %v", d.RetryAfter)
	}
	if d.Reset != clock.Now().Unix() {
		// One token at 2/s refills in half a second; Reset truncates to
		// whole seconds.
		t.Fatalf("unexpected reset %d", d.Reset)
	}
}

func TestCheckAndConsume_ConcurrentCeiling(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	defer l.Close()

	profile := policy.RateProfile{Capacity: 5, RefillPerSecond: 0.001, Burst: 5}

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d := l.CheckAndConsume("dave", profile, 1); d.Admitted {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != 5 {
		t.Fatalf("expected exactly 5 admissions, got %d", got)
	}
}

func TestBuckets_IndependentPerPrincipal(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	defer l.Close()

	profile := policy.RateProfile{Capacity: 1, RefillPerSecond: 1, Burst: 1}

	if d := l.CheckAndConsume("erin", profile, 1); !d.Admitted {
		t.Fatal("erin's first request rejected")
	}
	if d := l.CheckAndConsume("erin", profile, 1); d.Admitted {
		t.Fatal("erin's second request admitted on empty bucket")
	}

	// Exhausting one principal must not affect another.
	if d := l.CheckAndConsume("frank", profile, 1); !d.Admitted {
		t.Fatal("frank's first request rejected")
	}
}

func TestEvictIdle(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	defer l.Close()

	profile := policy.RateProfile{Capacity: 2, RefillPerSecond: 1, Burst: 2}

	l.CheckAndConsume("grace", profile, 1)
	l.CheckAndConsume("heidi", profile, 1)
	if got := l.Len(); got != 2 {
		t.Fatalf("expected 2 buckets, got %d", got)
	}

	// grace stays active, heidi goes idle past the window.
	clock.Advance(9 * time.Minute)
	l.CheckAndConsume("grace", profile, 1)
	clock.Advance(2 * time.Minute)

	l.evictIdle()
	if got := l.Len(); got != 1 {
		t.Fatalf("expected 1 bucket after eviction, got %d", got)
	}

	// An evicted principal starts over at full capacity.
	if got := l.Remaining("heidi", profile); got != 2 {
		t.Fatalf("expected recreated bucket at capacity 2, got %v", got)
	}
}

func TestRetryAfter_CoversDeficit(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	defer l.Close()

	profile := policy.RateProfile{Capacity: 4, RefillPerSecond: 2, Burst: 4}

	for i := 0; i < 4; i++ {
		l.CheckAndConsume("ivan", profile, 1)
	}
	d := l.CheckAndConsume("ivan", profile, 1)
	if d.Admitted {
		t.Fatal("expected rejection")
	}
	// Deficit of 1 token at 2 tokens/s.
	if math.Abs(d.RetryAfter-0.5) > 1e-9 {
		t.Fatalf("expected retry-after 0.5s, got %v", d.RetryAfter)
	}

	// Waiting the advertised duration makes the request succeed.
	clock.Advance(500 * time.Millisecond)
	if d := l.CheckAndConsume("ivan", profile, 1); !d.Admitted {
		t.Fatal("expected admission after waiting retry-after")
	}
}

func TestCheckAndConsume_VariableCost(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	defer l.Close()

	profile := policy.RateProfile{Capacity: 10, RefillPerSecond: 1, Burst: 10}

	if d := l.CheckAndConsume("judy", profile, 7); !d.Admitted {
		t.Fatal("expected cost-7 request admitted")
	}
	if d := l.CheckAndConsume("judy", profile, 7); d.Admitted {
		t.Fatal("expected second cost-7 request rejected with 3 tokens left")
	}
	if d := l.CheckAndConsume("judy", profile, 3); !d.Admitted {
		t.Fatal("expected cost-3 request admitted")
	}
}

func BenchmarkCheckAndConsume(b *testing.B) {
	l := NewLimiter(Config{EvictionWindow: time.Hour, SweepInterval: time.Hour})
	defer l.Close()

	profile := policy.RateProfile{Capacity: 1 << 30, RefillPerSecond: 1, Burst: 1}

	b.RunParallel(func(pb *testing.PB) {
		var i int
		for pb.Next() {
			i++
			l.CheckAndConsume(fmt.Sprintf("principal-%d", i%64), profile, 1)
		}
	})
}
