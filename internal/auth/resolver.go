// Package auth provides the authorization collaborator consumed by the
// tool executor: a lookup from user id to the permission strings that
// user holds.
package auth

import (
	"context"
	"sync"
)

// Resolver resolves the permission set held by a user. Implementations
// must be safe for concurrent use.
type Resolver interface {
	// Permissions returns the permission strings held by userID.
	// An unknown user resolves to an empty set, not an error.
	Permissions(ctx context.Context, userID string) ([]string, error)
}

// PermissionSet is a lookup-friendly view of a permission list.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from a permission slice.
func NewPermissionSet(perms []string) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// HasAll reports whether every required permission is present.
func (s PermissionSet) HasAll(required []string) bool {
	for _, p := range required {
		if _, ok := s[p]; !ok {
			return false
		}
	}
	return true
}

// Missing returns the required permissions not present in the set.
func (s PermissionSet) Missing(required []string) []string {
	var missing []string
	for _, p := range required {
		if _, ok := s[p]; !ok {
			missing = append(missing, p)
		}
	}
	return missing
}

// StaticResolver is an in-memory Resolver for tests and local runs.
type StaticResolver struct {
	mu    sync.RWMutex
	users map[string][]string
}

// NewStaticResolver creates a resolver with a fixed user→permissions map.
func NewStaticResolver(users map[string][]string) *StaticResolver {
	if users == nil {
		users = map[string][]string{}
	}
	return &StaticResolver{users: users}
}

// Grant adds permissions to a user.
func (r *StaticResolver) Grant(userID string, perms ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[userID] = append(r.users[userID], perms...)
}

// Permissions implements Resolver.
func (r *StaticResolver) Permissions(_ context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	perms := r.users[userID]
	out := make([]string, len(perms))
	copy(out, perms)
	return out, nil
}
