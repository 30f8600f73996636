package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gatewarden/gatewarden/internal/audit"
	"github.com/gatewarden/gatewarden/internal/identity"
	"github.com/gatewarden/gatewarden/internal/policy"
)

type nopAudit struct{}

func (nopAudit) Log(_ context.Context, _ audit.Event) {}

func testConfig() Config {
	return Config{
		Secret:   []byte("test-signing-secret"),
		Issuer:   "gatewarden",
		Audience: "gatewarden-api",
		TTL:      30 * time.Minute,
	}
}

func testService(t *testing.T) (*Service, identity.Principal) {
	t.Helper()
	hasher := identity.NewPasswordHasher(8, 1, 1, 16, 32)
	hash, err := hasher.Hash("analyst-pw")
	if err != nil {
		t.Fatal(err)
	}
	store, err := identity.NewStaticStore([]*identity.Record{
		{ID: "u-analyst", Username: "analyst", PasswordHash: hash, Role: policy.RoleAnalyst},
	})
	if err != nil {
		t.Fatal(err)
	}
	svc := NewService(store, hasher, nopAudit{}, testConfig())
	return svc, identity.Principal{ID: "u-analyst", Username: "analyst", Role: policy.RoleAnalyst}
}

func TestIssueAndValidate_RoundTrip(t *testing.T) {
	svc, want := testService(t)

	issued, err := svc.Issue(context.Background(), "analyst", "analyst-pw")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if issued.TokenType != "bearer" {
		t.Errorf("token type = %q, want bearer", issued.TokenType)
	}
	if issued.ExpiresIn != 1800 {
		t.Errorf("expires_in = %d, want 1800", issued.ExpiresIn)
	}

	auth, err := NewValidator(testConfig()).Validate(issued.AccessToken)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if auth.Subject != want.ID || auth.Username != want.Username || auth.Role != want.Role {
		t.Errorf("auth context = %+v, want %+v", auth, want)
	}
}

func TestIssue_InvalidCredentials(t *testing.T) {
	svc, _ := testService(t)

	for _, tt := range []struct{ username, password string }{
		{"analyst", "wrong-pw"},
		{"nobody", "analyst-pw"},
	} {
		_, err := svc.Issue(context.Background(), tt.username, tt.password)
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Issue(%q, %q): expected ErrInvalidCredentials, got %v", tt.username, tt.password, err)
		}
	}
}

func TestIssue_UnknownUserBurnsHashWork(t *testing.T) {
	svc, _ := testService(t)

	// The service keeps a real encoded hash so an unknown username goes
	// through the same argon2 verification as a known one.
	if svc.dummyHash == "" {
		t.Fatal("dummy hash was not precomputed")
	}
	if ok, err := svc.hasher.Verify("anything", svc.dummyHash); err != nil {
		t.Fatalf("dummy hash is not verifiable: %v", err)
	} else if ok {
		t.Fatal("dummy hash unexpectedly matched an arbitrary password")
	}

	_, err := svc.Issue(context.Background(), "nobody", "anything")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestValidate_WrongKey(t *testing.T) {
	svc, _ := testService(t)
	issued, err := svc.Issue(context.Background(), "analyst", "analyst-pw")
	if err != nil {
		t.Fatal(err)
	}

	otherCfg := testConfig()
	otherCfg.Secret = []byte("a-completely-different-secret")

	_, err = NewValidator(otherCfg).Validate(issued.AccessToken)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestValidate_Expired(t *testing.T) {
	svc, _ := testService(t)
	issueTime := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issueTime }

	issued, err := svc.Issue(context.Background(), "analyst", "analyst-pw")
	if err != nil {
		t.Fatal(err)
	}

	v := NewValidator(testConfig())

	// Just inside the validity window.
	v.now = func() time.Time { return issueTime.Add(29 * time.Minute) }
	if _, err := v.Validate(issued.AccessToken); err != nil {
		t.Errorf("token should be valid before expiry, got %v", err)
	}

	// Past expiry: the signature is still valid, only time has moved.
	v.now = func() time.Time { return issueTime.Add(31 * time.Minute) }
	if _, err := v.Validate(issued.AccessToken); !errors.Is(err, ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}
}

func TestValidate_WrongIssuerOrAudience(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"issuer", func(c *Config) { c.Issuer = "someone-else" }},
		{"audience", func(c *Config) { c.Audience = "other-api" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			issuerCfg := testConfig()
			tc.mutate(&issuerCfg)

			hasher := identity.NewPasswordHasher(8, 1, 1, 16, 32)
			hash, _ := hasher.Hash("pw")
			store, _ := identity.NewStaticStore([]*identity.Record{
				{ID: "u1", Username: "u1", PasswordHash: hash, Role: policy.RoleViewer},
			})
			svc := NewService(store, hasher, nopAudit{}, issuerCfg)

			issued, err := svc.Issue(context.Background(), "u1", "pw")
			if err != nil {
				t.Fatal(err)
			}

			// Validator expects the canonical issuer/audience; the token
			// was signed with the same secret but divergent claims.
			_, err = NewValidator(testConfig()).Validate(issued.AccessToken)
			if !errors.Is(err, ErrWrongIssuerOrAudience) {
				t.Errorf("expected ErrWrongIssuerOrAudience, got %v", err)
			}
		})
	}
}

func TestValidate_Malformed(t *testing.T) {
	v := NewValidator(testConfig())

	for _, raw := range []string{
		"",
		"not-a-jwt",
		"aaaa.bbbb",
		"aaaa.bbbb.cccc.dddd",
	} {
		if _, err := v.Validate(raw); !errors.Is(err, ErrMalformed) {
			t.Errorf("Validate(%q): expected ErrMalformed, got %v", raw, err)
		}
	}
}

func TestAuthError_Is(t *testing.T) {
	if !errors.Is(ErrExpired, &AuthError{Reason: ReasonExpired}) {
		t.Error("errors.Is should match on reason")
	}
	if errors.Is(ErrExpired, ErrMalformed) {
		t.Error("distinct reasons should not match")
	}
}
