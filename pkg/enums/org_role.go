package enums

import "fmt"

// OrgRole is a member's role inside an organization.
type OrgRole string

const (
	OrgRoleOwner  OrgRole = "owner"
	OrgRoleAdmin  OrgRole = "admin"
	OrgRoleMember OrgRole = "member"
)

func (o OrgRole) IsValid() bool {
	return o == OrgRoleOwner || o == OrgRoleAdmin || o == OrgRoleMember
}

// CanManage reports whether the role may add members or act on org-owned items.
func (o OrgRole) CanManage() bool {
	return o == OrgRoleOwner || o == OrgRoleAdmin
}

func ParseOrgRole(value string) (OrgRole, error) {
	role := OrgRole(value)
	if !role.IsValid() {
		return "", fmt.Errorf("invalid organization role %q", value)
	}
	return role, nil
}
