package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleRanks(t *testing.T) {
	assert.Equal(t, 4, RoleAdmin.Rank())
	assert.Equal(t, 3, RoleModerator.Rank())
	assert.Equal(t, 2, RolePowerUser.Rank())
	assert.Equal(t, 1, RoleUser.Rank())
	assert.Equal(t, 0, Role("unknown_role").Rank())
}

func TestAdminCanModifyAnyRole(t *testing.T) {
	for _, target := range []Role{RoleAdmin, RoleModerator, RolePowerUser, RoleUser} {
		assert.True(t, RoleAdmin.CanModify(target), "admin must be able to modify %s", target)
	}
}

func TestNonAdminNeedsStrictlyHigherRank(t *testing.T) {
	cases := []struct {
		acting, target Role
		want           bool
	}{
		{RoleModerator, RolePowerUser, true},
		{RoleModerator, RoleUser, true},
		{RoleModerator, RoleModerator, false},
		{RoleModerator, RoleAdmin, false},
		{RolePowerUser, RolePowerUser, false},
		{RolePowerUser, RoleUser, true},
		{RoleUser, RoleUser, false},
		{RoleUser, RoleAdmin, false},
	}
	for _, tc := range cases {
		got := tc.acting.CanModify(tc.target)
		assert.Equal(t, tc.want, got, "%s modifying %s", tc.acting, tc.target)
		// Same invariant stated through ranks.
		assert.Equal(t, tc.acting.Rank() > tc.target.Rank(), got)
	}
}

func TestHasPermission(t *testing.T) {
	assert.True(t, HasPermission(RoleAdmin, CapManageUsers))
	assert.True(t, HasPermission(RoleModerator, CapManageUsers))
	assert.False(t, HasPermission(RolePowerUser, CapManageUsers))
	assert.False(t, HasPermission(RoleUser, CapManageUsers))

	assert.True(t, HasPermission(RolePowerUser, CapManageProperties))
	assert.True(t, HasPermission(RolePowerUser, CapViewAllData))
	assert.False(t, HasPermission(RoleUser, CapViewAllData))

	assert.True(t, HasPermission(RoleAdmin, CapChangePasswords))
	assert.False(t, HasPermission(RolePowerUser, CapChangePasswords))

	// Unknown role or capability never grants anything.
	assert.False(t, HasPermission(Role("unknown_role"), CapManageProperties))
	assert.False(t, HasPermission(RoleAdmin, Capability("fly_to_moon")))
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole("Moderator")
	require.True(t, ok)
	assert.Equal(t, RoleModerator, role)

	// The legacy registration label maps to User.
	role, ok = ParseRole("agent")
	require.True(t, ok)
	assert.Equal(t, RoleUser, role)

	_, ok = ParseRole("superuser")
	assert.False(t, ok)
	_, ok = ParseRole("")
	assert.False(t, ok)
}
