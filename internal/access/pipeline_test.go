package access

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gatewarden/gatewarden/internal/audit"
	"github.com/gatewarden/gatewarden/internal/identity"
	"github.com/gatewarden/gatewarden/internal/policy"
	"github.com/gatewarden/gatewarden/internal/ratelimit"
	"github.com/gatewarden/gatewarden/internal/token"
)

// recordingAudit captures audit events for assertions.
type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) Log(_ context.Context, event audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingAudit) last(t *testing.T) audit.Event {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		t.Fatal("no audit events recorded")
	}
	return r.events[len(r.events)-1]
}

type fixture struct {
	pipeline *Pipeline
	limiter  *ratelimit.Limiter
	svc      *token.Service
	audit    *recordingAudit
	table    *policy.Table
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := token.Config{
		Secret:   []byte("pipeline-test-secret"),
		Issuer:   "gatewarden",
		Audience: "gatewarden-api",
		TTL:      30 * time.Minute,
	}

	hasher := identity.NewPasswordHasher(8, 1, 1, 16, 32)
	var records []*identity.Record
	for _, u := range []struct {
		id, username, password string
		role                   policy.Role
	}{
		{"u-admin", "admin", "admin-pw", policy.RoleAdmin},
		{"u-analyst", "analyst", "analyst-pw", policy.RoleAnalyst},
		{"u-viewer", "viewer", "viewer-pw", policy.RoleViewer},
		{"u-ghost", "ghost", "ghost-pw", policy.Role("superuser")},
	} {
		hash, err := hasher.Hash(u.password)
		if err != nil {
			t.Fatal(err)
		}
		records = append(records, &identity.Record{
			ID: u.id, Username: u.username, PasswordHash: hash, Role: u.role,
		})
	}
	store, err := identity.NewStaticStore(records)
	if err != nil {
		t.Fatal(err)
	}

	rec := &recordingAudit{}
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		EvictionWindow: time.Hour,
		SweepInterval:  time.Hour,
	})
	t.Cleanup(limiter.Close)

	table := policy.Defaults()
	return &fixture{
		pipeline: NewPipeline(token.NewValidator(cfg), table, limiter, rec),
		limiter:  limiter,
		svc:      token.NewService(store, hasher, rec, cfg),
		audit:    rec,
		table:    table,
	}
}

func (f *fixture) login(t *testing.T, username, password string) string {
	t.Helper()
	issued, err := f.svc.Issue(context.Background(), username, password)
	if err != nil {
		t.Fatalf("issue token for %s: %v", username, err)
	}
	return issued.AccessToken
}

func TestAuthorize_Admitted(t *testing.T) {
	f := newFixture(t)
	raw := f.login(t, "analyst", "analyst-pw")

	grant, err := f.pipeline.Authorize(context.Background(), raw, "/v1/answer", policy.PermRead)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if grant.Principal.Subject != "u-analyst" {
		t.Errorf("subject = %q, want u-analyst", grant.Principal.Subject)
	}
	if !grant.Decision.Admitted {
		t.Error("expected admitted decision")
	}
	if grant.Decision.Remaining != 119 {
		t.Errorf("remaining = %v, want 119", grant.Decision.Remaining)
	}
}

func TestAuthorize_MissingToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Authorize(context.Background(), "", "/v1/answer", policy.PermRead)
	var authErr *AuthFailedError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthFailedError, got %v", err)
	}
	if !errors.Is(err, token.ErrMissing) {
		t.Errorf("expected wrapped ErrMissing, got %v", err)
	}
	if got := f.audit.last(t); got.Type != audit.TypeAuthRejected {
		t.Errorf("audit type = %q, want %q", got.Type, audit.TypeAuthRejected)
	}
}

func TestAuthorize_InvalidTokenSkipsLimiter(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Authorize(context.Background(), "not-a-jwt", "/v1/answer", policy.PermRead)
	var authErr *AuthFailedError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthFailedError, got %v", err)
	}
	if !errors.Is(err, token.ErrMalformed) {
		t.Errorf("expected wrapped ErrMalformed, got %v", err)
	}
	// Failed authentication must not create or drain any bucket.
	if got := f.limiter.Len(); got != 0 {
		t.Errorf("limiter has %d buckets after auth failure, want 0", got)
	}
}

func TestAuthorize_ForbiddenSkipsLimiter(t *testing.T) {
	f := newFixture(t)
	raw := f.login(t, "viewer", "viewer-pw")

	_, err := f.pipeline.Authorize(context.Background(), raw, "/v1/evaluate/offline", policy.PermEvaluate)
	var forbidden *ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
	if forbidden.Role != policy.RoleViewer || forbidden.Required != policy.PermEvaluate {
		t.Errorf("forbidden = %+v", forbidden)
	}
	if got := f.audit.last(t); got.Type != audit.TypeAccessForbidden {
		t.Errorf("audit type = %q, want %q", got.Type, audit.TypeAccessForbidden)
	}
	// A denied request leaves the viewer's bucket untouched.
	if got := f.limiter.Len(); got != 0 {
		t.Errorf("limiter has %d buckets after forbidden request, want 0", got)
	}
}

func TestAuthorize_RateLimited(t *testing.T) {
	f := newFixture(t)
	raw := f.login(t, "viewer", "viewer-pw")

	_, profile, err := f.table.Lookup(policy.RoleViewer)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < profile.Capacity; i++ {
		if _, err := f.pipeline.Authorize(context.Background(), raw, "/v1/answer", policy.PermRead); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}

	_, err = f.pipeline.Authorize(context.Background(), raw, "/v1/answer", policy.PermRead)
	var limited *RateLimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if limited.Decision.RetryAfter <= 0 {
		t.Errorf("retry-after = %v, want > 0", limited.Decision.RetryAfter)
	}
	if got := f.audit.last(t); got.Type != audit.TypeRateLimited {
		t.Errorf("audit type = %q, want %q", got.Type, audit.TypeRateLimited)
	}
}

func TestAuthorize_UnknownRole(t *testing.T) {
	f := newFixture(t)
	raw := f.login(t, "ghost", "ghost-pw")

	_, err := f.pipeline.Authorize(context.Background(), raw, "/v1/answer", policy.PermRead)
	var unknown *UnknownRoleError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownRoleError, got %v", err)
	}
	if unknown.Role != policy.Role("superuser") {
		t.Errorf("role = %q, want superuser", unknown.Role)
	}
	if got := f.audit.last(t); got.Type != audit.TypeUnknownRole {
		t.Errorf("audit type = %q, want %q", got.Type, audit.TypeUnknownRole)
	}
}

func TestAuthorize_PermissionMatrix(t *testing.T) {
	f := newFixture(t)

	tokens := map[policy.Role]string{
		policy.RoleAdmin:   f.login(t, "admin", "admin-pw"),
		policy.RoleAnalyst: f.login(t, "analyst", "analyst-pw"),
		policy.RoleViewer:  f.login(t, "viewer", "viewer-pw"),
	}

	cases := []struct {
		role    policy.Role
		perm    policy.Permission
		allowed bool
	}{
		{policy.RoleAdmin, policy.PermRead, true},
		{policy.RoleAdmin, policy.PermWrite, true},
		{policy.RoleAdmin, policy.PermEvaluate, true},
		{policy.RoleAdmin, policy.PermAdmin, true},
		{policy.RoleAnalyst, policy.PermRead, true},
		{policy.RoleAnalyst, policy.PermWrite, true},
		{policy.RoleAnalyst, policy.PermEvaluate, true},
		{policy.RoleAnalyst, policy.PermAdmin, false},
		{policy.RoleViewer, policy.PermRead, true},
		{policy.RoleViewer, policy.PermWrite, false},
		{policy.RoleViewer, policy.PermEvaluate, false},
		{policy.RoleViewer, policy.PermAdmin, false},
	}

	for _, tc := range cases {
		t.Run(string(tc.role)+"/"+string(tc.perm), func(t *testing.T) {
			_, err := f.pipeline.Authorize(context.Background(), tokens[tc.role], "/v1/test", tc.perm)
			if tc.allowed && err != nil {
				t.Errorf("expected admission, got %v", err)
			}
			if !tc.allowed {
				var forbidden *ForbiddenError
				if !errors.As(err, &forbidden) {
					t.Errorf("expected ForbiddenError, got %v", err)
				}
			}
		})
	}
}
