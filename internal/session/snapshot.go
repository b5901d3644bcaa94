package session

import (
	"slices"

	"github.com/aussiebroadwan/invoicer/pkg/billingsdk"
)

// Snapshot is an immutable view of the session. User and its Permissions
// are shared between snapshots and must not be modified.
type Snapshot struct {
	AccessToken  string
	RefreshToken string
	User         *billingsdk.User

	Loading bool
	Error   string

	// Version increases with every mutation, so subscribers can drop
	// snapshots that arrive out of order.
	Version uint64
}

// IsAuthenticated holds iff both an access token and a user are present.
func (s Snapshot) IsAuthenticated() bool {
	return s.AccessToken != "" && s.User != nil
}

// Role is the user's role, or "" without a user.
func (s Snapshot) Role() string {
	if s.User == nil {
		return ""
	}
	return s.User.Role
}

// Permissions is the user's permission set, empty without a user.
func (s Snapshot) Permissions() []string {
	if s.User == nil {
		return nil
	}
	return s.User.Permissions
}

func (s Snapshot) HasPermission(tag string) bool {
	return slices.Contains(s.Permissions(), tag)
}

// HasPermissions reports whether every tag is held. An empty list is
// vacuously satisfied, even without a user.
func (s Snapshot) HasPermissions(tags ...string) bool {
	for _, tag := range tags {
		if !s.HasPermission(tag) {
			return false
		}
	}
	return true
}

// HasRole reports whether the user's role is one of roles. With a single
// role this is exact equality; with none it is always false. A user without
// a role matches nothing.
func (s Snapshot) HasRole(roles ...string) bool {
	if s.User == nil || s.User.Role == "" {
		return false
	}
	return slices.Contains(roles, s.User.Role)
}
