package permission

import (
	"context"
	"sync"

	"github.com/roach88/automaton/internal/ir"
)

// Everyone is the grant key matching every user.
const Everyone = "*"

// StaticResolver answers from an in-memory grant table keyed by resource,
// then by user id, group name or Everyone. A user's roles are the union of
// all matching grants.
//
// Thread-safety: StaticResolver is safe for concurrent use.
type StaticResolver struct {
	mu     sync.RWMutex
	grants map[Resource]map[string]RoleSet
}

// NewStaticResolver creates an empty resolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{grants: make(map[Resource]map[string]RoleSet)}
}

// AllowAll returns a resolver that grants roles to everyone on any resource.
func AllowAll(roles ...Role) Resolver {
	return allowAll(NewRoleSet(roles...))
}

type allowAll RoleSet

func (a allowAll) Roles(context.Context, Resource, ir.User) (RoleSet, error) {
	return NewRoleSet(RoleSet(a).Sorted()...), nil
}

// Grant adds roles for a user id, group name or Everyone on a resource.
func (r *StaticResolver) Grant(resource Resource, who string, roles ...Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byWho, ok := r.grants[resource]
	if !ok {
		byWho = make(map[string]RoleSet)
		r.grants[resource] = byWho
	}
	set, ok := byWho[who]
	if !ok {
		set = RoleSet{}
		byWho[who] = set
	}
	for _, role := range roles {
		set[role] = true
	}
}

// Roles implements Resolver.
func (r *StaticResolver) Roles(_ context.Context, resource Resource, user ir.User) (RoleSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := RoleSet{}
	byWho := r.grants[resource]
	keys := append([]string{Everyone, user.ID}, user.Groups...)
	for _, k := range keys {
		for role := range byWho[k] {
			out[role] = true
		}
	}
	return out, nil
}
