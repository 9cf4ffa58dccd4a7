// Package rbac checks permission tokens such as "blog.delete_post" with a
// casbin enforcer. Policies may use a trailing "*" ("blog.*", "*").
package rbac

import (
	"slices"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// SuperRole is granted every permission.
const SuperRole = "admin"

// User is the acting principal.
type User struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles,omitempty"`
}

// Authorizer answers permission checks.
type Authorizer interface {
	HasPerm(u User, perm string) bool
}

// Enforcer is the casbin-backed Authorizer.
type Enforcer struct {
	e *casbin.Enforcer
}

// NewEnforcer returns an enforcer where SuperRole holds every permission.
func NewEnforcer() (*Enforcer, error) {
	m := model.NewModel()
	m.AddDef("r", "r", "sub, perm")
	m.AddDef("p", "p", "sub, perm")
	m.AddDef("g", "g", "_, _")
	m.AddDef("e", "e", "some(where (p.eft == allow))")
	m.AddDef("m", "m", "g(r.sub, p.sub) && keyMatch(r.perm, p.perm)")
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}
	if _, err := e.AddPolicy(SuperRole, "*"); err != nil {
		return nil, err
	}
	return &Enforcer{e: e}, nil
}

// Grant gives role the listed permissions.
func (e *Enforcer) Grant(role string, perms ...string) error {
	for _, p := range perms {
		if _, err := e.e.AddPolicy(role, p); err != nil {
			return err
		}
	}
	return nil
}

// Assign adds user to roles.
func (e *Enforcer) Assign(user string, roles ...string) error {
	for _, r := range roles {
		if _, err := e.e.AddGroupingPolicy(user, r); err != nil {
			return err
		}
	}
	return nil
}

// HasPerm reports whether the user, or any role the user carries, holds
// perm. An empty perm is always allowed.
func (e *Enforcer) HasPerm(u User, perm string) bool {
	if perm == "" {
		return true
	}
	subjects := append([]string{u.ID}, u.Roles...)
	for _, s := range slices.Compact(subjects) {
		if s == "" {
			continue
		}
		if ok, _ := e.e.Enforce(s, perm); ok {
			return true
		}
	}
	return false
}

// AllowAll grants every permission.
type AllowAll struct{}

func (AllowAll) HasPerm(User, string) bool { return true }
