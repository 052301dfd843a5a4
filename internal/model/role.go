package model

// Role is the closed set of authorization roles. The zero value is not a
// valid role; parse input with ParseRole so an unknown string is an error
// instead of a silently unranked role.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "Moderator"
	RolePowerUser Role = "PowerUser"
	RoleUser      Role = "User"
)

// rank gives the total order admin(4) > Moderator(3) > PowerUser(2) > User(1).
var roleRanks = map[Role]int{
	RoleAdmin:     4,
	RoleModerator: 3,
	RolePowerUser: 2,
	RoleUser:      1,
}

// ParseRole validates a role string against the closed set.
// The legacy registration label "agent" is accepted as an alias for User;
// it never appears in stored data or tokens.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleModerator, RolePowerUser, RoleUser:
		return Role(s), true
	}
	if s == "agent" {
		return RoleUser, true
	}
	return "", false
}

// Rank returns the hierarchical rank of the role, 0 for an unknown role.
func (r Role) Rank() int {
	return roleRanks[r]
}

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// CanModify reports whether a caller with role r may change the role (or
// record) of a user holding target. Admins may modify anyone, themselves
// included; everyone else needs a strictly higher rank, so same-rank
// modification is disallowed below admin.
func (r Role) CanModify(target Role) bool {
	if r == RoleAdmin {
		return true
	}
	return r.Rank() > target.Rank()
}

// Capability is a named permission checked against the role table.
type Capability string

const (
	CapManageUsers      Capability = "manage_users"
	CapManageProperties Capability = "manage_properties"
	CapViewAllData      Capability = "view_all_data"
	CapChangePasswords  Capability = "change_passwords"
)

// capability table: which roles hold each capability. Fixed at compile
// time; an unknown role or capability holds nothing.
var capabilityRoles = map[Capability]map[Role]bool{
	CapManageUsers:      {RoleAdmin: true, RoleModerator: true},
	CapManageProperties: {RoleAdmin: true, RoleModerator: true, RolePowerUser: true},
	CapViewAllData:      {RoleAdmin: true, RoleModerator: true, RolePowerUser: true},
	CapChangePasswords:  {RoleAdmin: true, RoleModerator: true},
}

// HasPermission reports whether role holds the capability. Unknown roles
// and unknown capabilities are never permitted.
func HasPermission(role Role, cap Capability) bool {
	return capabilityRoles[cap][role]
}
