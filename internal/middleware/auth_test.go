package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-service/internal/model"
	"crm-service/internal/store"
	"crm-service/pkg/config"
	"crm-service/pkg/jwtutil"
)

func newAuthFixture(t *testing.T) (*store.Store, *model.User, string) {
	t.Helper()
	jwtutil.Initialize(&config.JWTConfig{SigningKey: "test-secret", ExpirationHours: 1})

	s := store.NewStore(filepath.Join(t.TempDir(), "crm.db"))
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() { s.Close() })

	company := &model.Company{Name: "Acme SRL", Alias: "acme"}
	admin := &model.User{Username: "admin", PasswordHash: "hash"}
	require.NoError(t, s.SignupCompany(context.Background(), company, admin))

	token, err := jwtutil.GenerateToken(admin)
	require.NoError(t, err)
	return s, admin, token
}

func invoke(mw echo.MiddlewareFunc, authHeader string) (*httptest.ResponseRecorder, echo.Context, bool) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/leads", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	reached := false
	handler := mw(func(c echo.Context) error {
		reached = true
		return c.NoContent(http.StatusOK)
	})
	_ = handler(c)
	return rec, c, reached
}

func TestAuthMissingToken(t *testing.T) {
	s, _, _ := newAuthFixture(t)
	rec, _, reached := invoke(Auth(s), "")
	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing authorization token")
}

func TestAuthBadHeaderFormat(t *testing.T) {
	s, _, token := newAuthFixture(t)
	rec, _, reached := invoke(Auth(s), token) // no "Bearer " prefix
	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthInvalidToken(t *testing.T) {
	s, _, _ := newAuthFixture(t)
	rec, _, reached := invoke(Auth(s), "Bearer not-a-jwt")
	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthExpiredToken(t *testing.T) {
	s, admin, _ := newAuthFixture(t)

	jwtutil.Initialize(&config.JWTConfig{SigningKey: "test-secret", ExpirationHours: -1})
	expired, err := jwtutil.GenerateToken(admin)
	require.NoError(t, err)
	jwtutil.Initialize(&config.JWTConfig{SigningKey: "test-secret", ExpirationHours: 1})

	rec, _, reached := invoke(Auth(s), "Bearer "+expired)
	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "token expired")
}

func TestAuthDeletedUserRejected(t *testing.T) {
	s, admin, token := newAuthFixture(t)
	require.NoError(t, s.DeleteUser(context.Background(), admin.ID, admin.CompanyID))

	// Token is still cryptographically valid, but the user is gone.
	rec, _, reached := invoke(Auth(s), "Bearer "+token)
	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "user not found")
}

func TestAuthAttachesIdentity(t *testing.T) {
	s, admin, token := newAuthFixture(t)

	rec, c, reached := invoke(Auth(s), "Bearer "+token)
	require.True(t, reached)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, admin.ID, CallerUserID(c))
	assert.Equal(t, admin.CompanyID, CallerCompanyID(c))
	assert.Equal(t, model.RoleAdmin, CallerRole(c))
	assert.False(t, IsAnonymous(c))
	// Tenant context propagated on the request.
	assert.Equal(t, admin.CompanyID, c.Request().Header.Get("X-Company-ID"))
	assert.Equal(t, "acme", c.Request().Header.Get("X-Company-Alias"))
}

func TestOptionalAuthDowngradesToAnonymous(t *testing.T) {
	s, _, _ := newAuthFixture(t)

	rec, c, reached := invoke(OptionalAuth(s), "")
	require.True(t, reached)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, IsAnonymous(c))
	assert.Empty(t, CallerCompanyID(c))

	rec, c, reached = invoke(OptionalAuth(s), "Bearer garbage")
	require.True(t, reached)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, IsAnonymous(c))
}

func TestRequireCompanyContext(t *testing.T) {
	// No company attached: rejected before any lookup.
	rec, _, reached := invoke(RequireCompanyContext, "")
	assert.False(t, reached)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "access denied")

	// With company context the request passes through.
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/leads", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set(CtxCompanyID, "company-1")
	passed := false
	err := RequireCompanyContext(func(c echo.Context) error {
		passed = true
		return nil
	})(c)
	require.NoError(t, err)
	assert.True(t, passed)
}
