package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-service/internal/model"
	"crm-service/pkg/jwtutil"
)

func TestSignupCreatesCompanyAndAdmin(t *testing.T) {
	f := newFixture(t)

	c, rec := f.request(http.MethodPost, "/auth/signup",
		`{"companyName":"Globex SRL","alias":"Globex","username":"root","password":"secret1"}`, nil)
	require.NoError(t, f.handler.Signup(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	company := body["company"].(map[string]interface{})
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "globex", company["alias"], "alias stored lowercase")
	assert.Equal(t, "admin", user["role"])
	// Password material never appears in responses.
	assert.NotContains(t, rec.Body.String(), "passwordHash")
	assert.NotContains(t, rec.Body.String(), "secret1")
}

func TestSignupMissingFields(t *testing.T) {
	f := newFixture(t)
	c, rec := f.request(http.MethodPost, "/auth/signup",
		`{"companyName":"Globex SRL","alias":"globex"}`, nil)
	require.NoError(t, f.handler.Signup(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignupDuplicateAlias(t *testing.T) {
	f := newFixture(t)
	// "acme" is taken by the fixture company, case-insensitively.
	c, rec := f.request(http.MethodPost, "/auth/signup",
		`{"companyName":"Other","alias":" ACME ","username":"root","password":"secret1"}`, nil)
	require.NoError(t, f.handler.Signup(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t)

	c, rec := f.request(http.MethodPost, "/auth/login",
		`{"username":"admin","companyAlias":"acme","password":"parola123"}`, nil)
	require.NoError(t, f.handler.Login(c))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	claims, err := jwtutil.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, f.admin.ID, claims.UserID)
	assert.Equal(t, "acme", claims.CompanyAlias)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)

	// Wrong password and unknown user produce the same answer.
	c, rec := f.request(http.MethodPost, "/auth/login",
		`{"username":"admin","companyAlias":"acme","password":"wrong"}`, nil)
	require.NoError(t, f.handler.Login(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	wrongPassword := rec.Body.String()

	c, rec = f.request(http.MethodPost, "/auth/login",
		`{"username":"nobody","companyAlias":"acme","password":"parola123"}`, nil)
	require.NoError(t, f.handler.Login(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, wrongPassword, rec.Body.String())
}

func TestRefreshIssuesToken(t *testing.T) {
	f := newFixture(t)
	c, rec := f.request(http.MethodPost, "/api/auth/refresh", "", f.admin)
	require.NoError(t, f.handler.Refresh(c))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	token, _ := body["token"].(string)
	_, err := jwtutil.ValidateToken(token)
	assert.NoError(t, err)
}

func TestChangeOwnPasswordNeedsCurrent(t *testing.T) {
	f := newFixture(t)

	c, rec := f.request(http.MethodPost, "/api/auth/change-password",
		`{"currentPassword":"wrong","newPassword":"parola456"}`, f.admin)
	require.NoError(t, f.handler.ChangePassword(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c, rec = f.request(http.MethodPost, "/api/auth/change-password",
		`{"currentPassword":"parola123","newPassword":"parola456"}`, f.admin)
	require.NoError(t, f.handler.ChangePassword(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	// The new password logs in.
	c, rec = f.request(http.MethodPost, "/auth/login",
		`{"username":"admin","companyAlias":"acme","password":"parola456"}`, nil)
	require.NoError(t, f.handler.Login(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChangeOtherPasswordRequiresRank(t *testing.T) {
	f := newFixture(t)
	moderator := f.createUser(t, "mod", model.RoleModerator)
	plain := f.createUser(t, "ana", model.RoleUser)

	// A plain user cannot change someone else's password.
	c, rec := f.request(http.MethodPost, "/api/auth/change-password",
		`{"userId":"`+moderator.ID+`","newPassword":"x1234567"}`, plain)
	require.NoError(t, f.handler.ChangePassword(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// A moderator cannot change a peer moderator's password.
	peer := f.createUser(t, "mod2", model.RoleModerator)
	c, rec = f.request(http.MethodPost, "/api/auth/change-password",
		`{"userId":"`+peer.ID+`","newPassword":"x1234567"}`, moderator)
	require.NoError(t, f.handler.ChangePassword(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// But can change a lower-ranked user's, without the current password.
	c, rec = f.request(http.MethodPost, "/api/auth/change-password",
		`{"userId":"`+plain.ID+`","newPassword":"x1234567"}`, moderator)
	require.NoError(t, f.handler.ChangePassword(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}
