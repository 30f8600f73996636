package policy

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrUnknownRole    = errors.New("unknown role")
	ErrInvalidProfile = errors.New("invalid rate profile")
)

// Role is the closed set of roles a principal may hold.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleAnalyst Role = "analyst"
	RoleViewer  Role = "viewer"
)

// Roles lists every valid role. The table's Validate method checks
// completeness against this enumeration so that an unknown role can only
// ever be a boot-time configuration error, never a request-time surprise.
var Roles = []Role{RoleAdmin, RoleAnalyst, RoleViewer}

// ParseRole converts a raw role string (e.g. a token claim) to a Role.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// Permission is a single grantable capability.
type Permission string

const (
	PermRead     Permission = "read"
	PermWrite    Permission = "write"
	PermEvaluate Permission = "evaluate"
	PermAdmin    Permission = "admin"
)

// PermissionSet is the set of permissions a role grants.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports whether the set grants the permission.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// List returns the permissions in the set. Order is unspecified.
func (s PermissionSet) List() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	return out
}

// RateProfile describes a role's token-bucket parameters. Capacity is the
// hard ceiling on accrued tokens; Burst is recorded for operators but does
// not raise the ceiling (clamp-on-refill already yields bursty-then-throttled
// behavior under a single ceiling).
type RateProfile struct {
	Capacity        int
	RefillPerSecond float64
	Burst           int
}

// Limit returns the advertised request limit for response headers.
func (p RateProfile) Limit() int {
	return p.Capacity
}

// Entry pairs the grants and rate profile of one role.
type Entry struct {
	Permissions PermissionSet
	Profile     RateProfile
}

// Table is the static role policy mapping. It is populated once at startup
// and read-only afterwards, so lookups need no locking.
type Table struct {
	entries map[Role]Entry
}

// NewTable builds a policy table from per-role entries.
func NewTable(entries map[Role]Entry) *Table {
	return &Table{entries: entries}
}

// Defaults returns the built-in role policy table.
func Defaults() *Table {
	return NewTable(map[Role]Entry{
		RoleAdmin: {
			Permissions: NewPermissionSet(PermRead, PermWrite, PermEvaluate, PermAdmin),
			Profile:     RateProfile{Capacity: 300, RefillPerSecond: 5.0, Burst: 50},
		},
		RoleAnalyst: {
			Permissions: NewPermissionSet(PermRead, PermWrite, PermEvaluate),
			Profile:     RateProfile{Capacity: 120, RefillPerSecond: 2.0, Burst: 20},
		},
		RoleViewer: {
			Permissions: NewPermissionSet(PermRead),
			Profile:     RateProfile{Capacity: 60, RefillPerSecond: 1.0, Burst: 10},
		},
	})
}

// Lookup resolves a role to its permission set and rate profile. An unknown
// role is a configuration/token inconsistency and is never silently
// defaulted.
func (t *Table) Lookup(role Role) (PermissionSet, RateProfile, error) {
	entry, ok := t.entries[role]
	if !ok {
		return nil, RateProfile{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return entry.Permissions, entry.Profile, nil
}

// Validate checks the table covers every enumerated role with a sane rate
// profile. Run at boot so ErrUnknownRole is unreachable in steady state.
func (t *Table) Validate() error {
	for _, role := range Roles {
		entry, ok := t.entries[role]
		if !ok {
			return fmt.Errorf("%w: role %q has no policy entry", ErrUnknownRole, role)
		}
		if entry.Profile.Capacity <= 0 {
			return fmt.Errorf("%w: role %q capacity must be > 0", ErrInvalidProfile, role)
		}
		if entry.Profile.RefillPerSecond <= 0 {
			return fmt.Errorf("%w: role %q refill rate must be > 0", ErrInvalidProfile, role)
		}
		if entry.Profile.Burst < 0 {
			return fmt.Errorf("%w: role %q burst must be >= 0", ErrInvalidProfile, role)
		}
	}
	return nil
}

// Entries returns a copy of the table contents, for operator inspection.
func (t *Table) Entries() map[Role]Entry {
	out := make(map[Role]Entry, len(t.entries))
	for r, e := range t.entries {
		out[r] = e
	}
	return out
}
