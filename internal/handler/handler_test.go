package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"crm-service/internal/blob"
	"crm-service/internal/middleware"
	"crm-service/internal/model"
	"crm-service/internal/store"
	"crm-service/pkg/config"
	"crm-service/pkg/jwtutil"
)

type fixture struct {
	handler *Handler
	store   *store.Store
	company *model.Company
	admin   *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	jwtutil.Initialize(&config.JWTConfig{SigningKey: "test-secret", ExpirationHours: 1})

	s := store.NewStore(filepath.Join(t.TempDir(), "crm.db"))
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() { s.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("parola123"), bcrypt.MinCost)
	require.NoError(t, err)
	company := &model.Company{Name: "Acme SRL", Alias: "acme"}
	admin := &model.User{Username: "admin", PasswordHash: string(hash)}
	require.NoError(t, s.SignupCompany(context.Background(), company, admin))

	return &fixture{
		handler: &Handler{
			Store:      s,
			Blob:       blob.NewMemoryStore("test-bucket"),
			Extractor:  blob.NopExtractor{},
			PresignTTL: time.Minute,
		},
		store:   s,
		company: company,
		admin:   admin,
	}
}

// createUser seeds an additional user in the fixture company.
func (f *fixture) createUser(t *testing.T, username string, role model.Role) *model.User {
	t.Helper()
	user := &model.User{
		Username:     username,
		PasswordHash: "hash",
		CompanyID:    f.company.ID,
		CompanyAlias: f.company.Alias,
		Role:         role,
	}
	require.NoError(t, f.store.CreateUser(context.Background(), user))
	return user
}

// request builds an echo context carrying the given caller identity, the
// way the auth middleware would have left it.
func (f *fixture) request(method, path, body string, caller *model.User) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if caller != nil {
		c.Set(middleware.CtxUserID, caller.ID)
		c.Set(middleware.CtxUsername, caller.Username)
		c.Set(middleware.CtxCompanyAlias, caller.CompanyAlias)
		c.Set(middleware.CtxCompanyID, caller.CompanyID)
		c.Set(middleware.CtxUserRole, caller.Role)
	}
	return c, rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func setParam(c echo.Context, name, value string) {
	c.SetParamNames(name)
	c.SetParamValues(value)
}
