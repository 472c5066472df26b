package types

import "strings"

// Role is the single-valued authorization level of an identity.
type Role string

const (
	RoleStudent   Role = "STUDENT"
	RoleTeacher   Role = "TEACHER"
	RoleAdmin     Role = "ADMIN"
	RoleSuperuser Role = "SUPERUSER"
)

var roleLabels = map[Role]string{
	RoleStudent:   "Student",
	RoleTeacher:   "Ustoz",
	RoleAdmin:     "Admin",
	RoleSuperuser: "Superadmin",
}

// Roles returns every role in declaration order.
func Roles() []Role {
	return []Role{RoleStudent, RoleTeacher, RoleAdmin, RoleSuperuser}
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	_, ok := roleLabels[r]
	return ok
}

// Label returns the human readable name of the role.
func (r Role) Label() string {
	return roleLabels[r]
}

func (r Role) String() string {
	return string(r)
}

// ParseRole matches raw against the declared roles, ignoring case and
// surrounding whitespace.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", false
	}
	return role, true
}
