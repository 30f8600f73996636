package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/gatewarden/gatewarden/internal/id"
	"github.com/gatewarden/gatewarden/internal/policy"
)

// StaticStore is an in-memory CredentialStore seeded at startup. It is the
// default backend for development and small deployments; production
// installations point the service at the Postgres store instead.
type StaticStore struct {
	records map[string]*Record
}

// NewStaticStore builds a store from pre-hashed records, keyed by username.
func NewStaticStore(records []*Record) (*StaticStore, error) {
	byName := make(map[string]*Record, len(records))
	for _, rec := range records {
		if _, exists := byName[rec.Username]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateUsername, rec.Username)
		}
		if rec.ID == "" {
			rec.ID = id.NewUUIDv7()
		}
		byName[rec.Username] = rec
	}
	return &StaticStore{records: byName}, nil
}

// ParseStaticUsers parses the USERS configuration string into records,
// hashing the given plaintext passwords. Format: a comma-separated list of
// username:role:password triples, e.g. "alice:analyst:s3cret,bob:viewer:pw".
// Passwords arrive in plaintext only through this boot-time path; what is
// stored is the Argon2id hash.
func ParseStaticUsers(spec string, hasher *PasswordHasher) ([]*Record, error) {
	var records []*Record
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid user entry %q: want username:role:password", entry)
		}
		role, err := policy.ParseRole(parts[1])
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", parts[0], err)
		}
		hash, err := hasher.Hash(parts[2])
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", parts[0], err)
		}
		records = append(records, &Record{
			Username:     parts[0],
			PasswordHash: hash,
			Role:         role,
		})
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no users configured")
	}
	return records, nil
}

// Lookup implements CredentialStore.
func (s *StaticStore) Lookup(_ context.Context, username string) (*Record, error) {
	rec, ok := s.records[username]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	return rec, nil
}

var _ CredentialStore = (*StaticStore)(nil)
