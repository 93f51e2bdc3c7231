package profile

import (
	"fmt"
	"strings"
)

// Role is the authorization tier attached to a profile.
type Role string

const (
	RoleMentee       Role = "mentee"
	RoleMentor       Role = "mentor"
	RoleOrganization Role = "organization"
	RoleAdmin        Role = "admin"
	RoleSuperAdmin   Role = "super_admin"
)

// LeastPrivileged is the role given to profiles created on first login
// unless the resolver is configured otherwise.
const LeastPrivileged = RoleMentee

// Roles lists every valid role.
func Roles() []Role {
	return []Role{RoleMentee, RoleMentor, RoleOrganization, RoleAdmin, RoleSuperAdmin}
}

// ParseRole accepts the wire value of a role. "super-admin" is accepted as an
// alias of super_admin.
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "super-admin" {
		return RoleSuperAdmin, nil
	}
	for _, r := range Roles() {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("profile: unknown role %q", s)
}

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	for _, known := range Roles() {
		if r == known {
			return true
		}
	}
	return false
}

// SelfService reports whether a principal may pick r when signing up.
// Administrative roles are granted out of band.
func (r Role) SelfService() bool {
	return r == RoleMentee || r == RoleMentor || r == RoleOrganization
}

func (r Role) String() string { return string(r) }
