// Package permission is the contract between the automation engine and the
// role-resolution subsystem.
//
// The engine never computes the role lattice. It asks a Resolver for the
// effective roles of a user on a resource and only consumes the result, for
// example to scope which documents an auto-link query may see.
package permission

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/automaton/internal/ir"
	"github.com/roach88/automaton/internal/query"
)

// Role is an effective role type.
type Role string

const (
	RoleRead           Role = "Read"
	RoleManage         Role = "Manage"
	RoleDataRead       Role = "DataRead"
	RoleDataWrite      Role = "DataWrite"
	RoleDataContribute Role = "DataContribute"
	RoleDataDelete     Role = "DataDelete"
)

// ResourceType names the level a role applies to.
type ResourceType string

const (
	Organization ResourceType = "organization"
	Project      ResourceType = "project"
	Collection   ResourceType = "collection"
	LinkType     ResourceType = "link_type"
)

// Resource identifies one level of the permission hierarchy.
type Resource struct {
	Type ResourceType
	ID   string
}

func (r Resource) String() string {
	return fmt.Sprintf("%s:%s", r.Type, r.ID)
}

// RoleSet is a set of effective roles.
type RoleSet map[Role]bool

// NewRoleSet returns a set holding roles.
func NewRoleSet(roles ...Role) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		s[r] = true
	}
	return s
}

// Has reports whether r is in the set.
func (s RoleSet) Has(r Role) bool {
	return s[r]
}

// Sorted returns the roles in lexical order.
func (s RoleSet) Sorted() []Role {
	out := make([]Role, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

// Intersect returns the roles present in every set. No sets yields an
// empty set.
func Intersect(sets ...RoleSet) RoleSet {
	out := RoleSet{}
	if len(sets) == 0 {
		return out
	}
	for r := range sets[0] {
		in := true
		for _, s := range sets[1:] {
			if !s[r] {
				in = false
				break
			}
		}
		if in {
			out[r] = true
		}
	}
	return out
}

// Resolver returns the effective roles of a user on a resource.
type Resolver interface {
	Roles(ctx context.Context, resource Resource, user ir.User) (RoleSet, error)
}

// Scope is the chain of resources an automation runs under.
type Scope struct {
	OrganizationID string
	ProjectID      string
}

// ReadRoles intersects the user's roles on the organization, the project
// and the resource itself. Empty organization or project ids are skipped.
func ReadRoles(ctx context.Context, r Resolver, scope Scope, resource Resource, user ir.User) (RoleSet, error) {
	chain := []Resource{resource}
	if scope.ProjectID != "" {
		chain = append([]Resource{{Type: Project, ID: scope.ProjectID}}, chain...)
	}
	if scope.OrganizationID != "" {
		chain = append([]Resource{{Type: Organization, ID: scope.OrganizationID}}, chain...)
	}

	sets := make([]RoleSet, 0, len(chain))
	for _, res := range chain {
		roles, err := r.Roles(ctx, res, user)
		if err != nil {
			return nil, fmt.Errorf("resolve roles on %s: %w", res, err)
		}
		sets = append(sets, roles)
	}
	return Intersect(sets...), nil
}

// Visibility returns the predicate restricting a search to documents the
// user may read. DataRead sees everything (nil predicate); DataContribute
// sees only documents the user created. ok is false when nothing is
// visible.
func Visibility(roles RoleSet, user ir.User) (pred query.Predicate, ok bool) {
	switch {
	case roles.Has(RoleDataRead):
		return nil, true
	case roles.Has(RoleDataContribute) && user.ID != "":
		return query.CreatedBy{UserID: user.ID}, true
	default:
		return nil, false
	}
}
