package models

import (
	"fmt"
)

type Role string

const (
	RoleClient       Role = "client"
	RoleAttendant    Role = "attendant"
	RoleProfessional Role = "professional"
	RoleAdmin        Role = "admin"
)

// Roles that grant the same permissions map to one canonical role
var canonicalRoles = map[Role]Role{
	RoleClient:       RoleClient,
	RoleAttendant:    RoleAttendant,
	RoleProfessional: RoleAttendant,
	RoleAdmin:        RoleAdmin,
}

func ParseRole(value string) (Role, error) {
	r := Role(value)
	if _, ok := canonicalRoles[r]; !ok {
		return "", fmt.Errorf("unknown role %q", value)
	}
	return r, nil
}

func (r Role) Valid() bool {
	_, ok := canonicalRoles[r]
	return ok
}

// Canonical returns the role the permissions are granted to.
// Unknown roles return empty string and satisfy nothing.
func (r Role) Canonical() Role {
	return canonicalRoles[r]
}

// Satisfies reports whether role r may access a resource restricted to required.
// Admin satisfies every requirement.
func (r Role) Satisfies(required Role) bool {
	c := r.Canonical()
	switch {
	case c == "":
		return false
	case c == RoleAdmin:
		return true
	default:
		return c == required.Canonical()
	}
}
