package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-service/internal/model"
)

func TestListUsersRequiresManageUsers(t *testing.T) {
	f := newFixture(t)
	plain := f.createUser(t, "ana", model.RoleUser)

	c, rec := f.request(http.MethodGet, "/api/users", "", plain)
	require.NoError(t, f.handler.ListUsers(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	c, rec = f.request(http.MethodGet, "/api/users", "", f.admin)
	require.NoError(t, f.handler.ListUsers(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Len(t, body["items"], 2)
}

func TestCreateUserRankCeiling(t *testing.T) {
	f := newFixture(t)
	moderator := f.createUser(t, "mod", model.RoleModerator)

	// A moderator cannot mint a peer moderator.
	c, rec := f.request(http.MethodPost, "/api/users",
		`{"username":"mod2","password":"secret1","role":"Moderator"}`, moderator)
	require.NoError(t, f.handler.CreateUser(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Strictly below own rank is allowed.
	c, rec = f.request(http.MethodPost, "/api/users",
		`{"username":"power","password":"secret1","role":"PowerUser"}`, moderator)
	require.NoError(t, f.handler.CreateUser(c))
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody(t, rec)
	assert.Equal(t, "PowerUser", created["role"])
	assert.Equal(t, f.company.ID, created["companyId"])

	// The admin can mint another admin.
	c, rec = f.request(http.MethodPost, "/api/users",
		`{"username":"admin2","password":"secret1","role":"admin"}`, f.admin)
	require.NoError(t, f.handler.CreateUser(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateUserUnknownRole(t *testing.T) {
	f := newFixture(t)
	c, rec := f.request(http.MethodPost, "/api/users",
		`{"username":"x","password":"secret1","role":"overlord"}`, f.admin)
	require.NoError(t, f.handler.CreateUser(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateUserAcceptsLegacyAgentRole(t *testing.T) {
	f := newFixture(t)
	c, rec := f.request(http.MethodPost, "/api/users",
		`{"username":"vlad","password":"secret1","role":"agent"}`, f.admin)
	require.NoError(t, f.handler.CreateUser(c))
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody(t, rec)
	assert.Equal(t, "User", created["role"])
}

func TestPatchUserRoleEscalationBlocked(t *testing.T) {
	f := newFixture(t)
	moderator := f.createUser(t, "mod", model.RoleModerator)
	plain := f.createUser(t, "ana", model.RoleUser)

	// Cannot raise a subordinate to own rank.
	c, rec := f.request(http.MethodPatch, "/api/users/"+plain.ID,
		`{"role":"Moderator"}`, moderator)
	setParam(c, "id", plain.ID)
	require.NoError(t, f.handler.PatchUser(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Cannot touch a target at own rank at all.
	peer := f.createUser(t, "mod2", model.RoleModerator)
	c, rec = f.request(http.MethodPatch, "/api/users/"+peer.ID,
		`{"username":"renamed"}`, moderator)
	setParam(c, "id", peer.ID)
	require.NoError(t, f.handler.PatchUser(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// A permitted raise below own rank goes through.
	c, rec = f.request(http.MethodPatch, "/api/users/"+plain.ID,
		`{"role":"PowerUser"}`, moderator)
	setParam(c, "id", plain.ID)
	require.NoError(t, f.handler.PatchUser(c))
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeBody(t, rec)
	assert.Equal(t, "PowerUser", updated["role"])
}

func TestDeleteUserSelfRefused(t *testing.T) {
	f := newFixture(t)

	c, rec := f.request(http.MethodDelete, "/api/users/"+f.admin.ID, "", f.admin)
	setParam(c, "id", f.admin.ID)
	require.NoError(t, f.handler.DeleteUser(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "cannot delete your own user")

	// The admin record is untouched.
	got, err := f.store.UserByID(context.Background(), f.admin.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestDeleteUserIdempotent(t *testing.T) {
	f := newFixture(t)
	plain := f.createUser(t, "ana", model.RoleUser)

	c, rec := f.request(http.MethodDelete, "/api/users/"+plain.ID, "", f.admin)
	setParam(c, "id", plain.ID)
	require.NoError(t, f.handler.DeleteUser(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Deleting the already-deleted user is a clean no-op.
	c, rec = f.request(http.MethodDelete, "/api/users/"+plain.ID, "", f.admin)
	setParam(c, "id", plain.ID)
	require.NoError(t, f.handler.DeleteUser(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestDeleteUserRankCeiling(t *testing.T) {
	f := newFixture(t)
	moderator := f.createUser(t, "mod", model.RoleModerator)
	peer := f.createUser(t, "mod2", model.RoleModerator)

	c, rec := f.request(http.MethodDelete, "/api/users/"+peer.ID, "", moderator)
	setParam(c, "id", peer.ID)
	require.NoError(t, f.handler.DeleteUser(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
