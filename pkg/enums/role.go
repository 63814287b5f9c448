package enums

import "fmt"

// Role is the platform-wide authorization role of a user.
type Role string

const (
	RoleUser       Role = "user"
	RoleDeveloper  Role = "developer"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

var roleRank = map[Role]int{
	RoleUser:       1,
	RoleDeveloper:  2,
	RoleAdmin:      3,
	RoleSuperadmin: 4,
}

func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the value is a known Role.
func (r Role) IsValid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r is ranked at or above min.
func (r Role) AtLeast(min Role) bool {
	have, ok := roleRank[r]
	if !ok {
		return false
	}
	return have >= roleRank[min]
}

// IsStaff reports whether the role can act on other users' resources.
func (r Role) IsStaff() bool {
	return r.AtLeast(RoleAdmin)
}

// ParseRole converts raw input into a Role.
func ParseRole(value string) (Role, error) {
	role := Role(value)
	if !role.IsValid() {
		return "", fmt.Errorf("invalid role %q", value)
	}
	return role, nil
}
