package model

import "strings"

// Role is the privilege level supplied by the authentication collaborator
// in the JWT "role" claim.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleManager  Role = "manager"
)

// PrivilegedRoles lists the roles allowed to book directly, cancel bookings,
// read statistics and regenerate the calendar.
var PrivilegedRoles = []Role{RoleAdmin, RoleOperator, RoleManager}

// ParseRole normalises a role claim.  Unknown values map to RoleCustomer so
// that a malformed token can never gain privileges.
func ParseRole(s string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleOperator, RoleManager:
		return r
	}
	return RoleCustomer
}

// Privileged reports whether the role may use the admin flows.
func (r Role) Privileged() bool {
	for _, p := range PrivilegedRoles {
		if r == p {
			return true
		}
	}
	return false
}

// Caller identifies who is invoking an engine operation.
type Caller struct {
	ID   string // subject claim of the access token
	Role Role
}

// Privileged reports whether the caller may use the admin flows.
func (c Caller) Privileged() bool { return c.Role.Privileged() }
