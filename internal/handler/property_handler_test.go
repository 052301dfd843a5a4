package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-service/internal/middleware"
	"crm-service/internal/model"
)

func (f *fixture) createProperty(t *testing.T, name string, companyID string) *model.Property {
	t.Helper()
	property := &model.Property{Name: name, Address: "Strada Exemplu 1", CompanyID: companyID}
	require.NoError(t, f.store.CreateProperty(context.Background(), property))
	return property
}

func TestCreatePropertyForcesCallerCompany(t *testing.T) {
	f := newFixture(t)

	// The companyId in the body is ignored; the caller's tenant wins.
	c, rec := f.request(http.MethodPost, "/api/properties",
		`{"name":"Vila Park","companyId":"someone-else"}`, f.admin)
	require.NoError(t, f.handler.CreateProperty(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, f.company.ID, body["companyId"])
}

func TestCreatePropertyRequiresManageProperties(t *testing.T) {
	f := newFixture(t)
	plain := f.createUser(t, "ana", model.RoleUser)

	c, rec := f.request(http.MethodPost, "/api/properties",
		`{"name":"Vila Park"}`, plain)
	require.NoError(t, f.handler.CreateProperty(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetPropertyCrossTenant(t *testing.T) {
	f := newFixture(t)
	other := &model.Company{Name: "Globex SRL", Alias: "globex"}
	otherAdmin := &model.User{Username: "root", PasswordHash: "hash"}
	require.NoError(t, f.store.SignupCompany(context.Background(), other, otherAdmin))
	foreign := f.createProperty(t, "Globex Tower", other.ID)

	c, rec := f.request(http.MethodGet, "/api/properties/"+foreign.ID, "", f.admin)
	setParam(c, "id", foreign.ID)
	require.NoError(t, f.handler.GetProperty(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Globex Tower")

	c, rec = f.request(http.MethodGet, "/api/properties/missing", "", f.admin)
	setParam(c, "id", "missing")
	require.NoError(t, f.handler.GetProperty(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPropertiesSearch(t *testing.T) {
	f := newFixture(t)
	f.createProperty(t, "Ansamblul Brândușa", f.company.ID)
	f.createProperty(t, "Vila Park", f.company.ID)

	c, rec := f.request(http.MethodGet, "/api/properties?q=brandusa", "", f.admin)
	require.NoError(t, f.handler.ListProperties(c))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Len(t, body["items"], 1)

	c, rec = f.request(http.MethodGet, "/api/properties", "", f.admin)
	require.NoError(t, f.handler.ListProperties(c))
	body = decodeBody(t, rec)
	assert.Len(t, body["items"], 2)
	assert.Equal(t, false, body["hasMore"])
}

func TestPublicPropertyViews(t *testing.T) {
	f := newFixture(t)
	property := f.createProperty(t, "Vila Park", f.company.ID)
	_, err := f.store.PatchProperty(context.Background(), property.ID, f.company.ID,
		model.Patch{"status": "reserved", "description": "vedere la parc"})
	require.NoError(t, err)

	// Anonymous caller: public subset only, no status or tenant id.
	c, rec := f.request(http.MethodGet, "/public/properties/"+property.ID, "", nil)
	setParam(c, "id", property.ID)
	c.Set(middleware.CtxAnonymous, true)
	require.NoError(t, f.handler.PublicProperty(c))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Vila Park", body["name"])
	assert.Equal(t, "vedere la parc", body["description"])
	assert.NotContains(t, body, "status")
	assert.NotContains(t, body, "companyId")

	// A member of the owning company sees the full record.
	c, rec = f.request(http.MethodGet, "/public/properties/"+property.ID, "", f.admin)
	setParam(c, "id", property.ID)
	require.NoError(t, f.handler.PublicProperty(c))
	body = decodeBody(t, rec)
	assert.Equal(t, "reserved", body["status"])

	// A member of another company gets the public subset, not an error.
	other := &model.Company{Name: "Globex SRL", Alias: "globex"}
	otherAdmin := &model.User{Username: "root", PasswordHash: "hash"}
	require.NoError(t, f.store.SignupCompany(context.Background(), other, otherAdmin))
	c, rec = f.request(http.MethodGet, "/public/properties/"+property.ID, "", otherAdmin)
	setParam(c, "id", property.ID)
	require.NoError(t, f.handler.PublicProperty(c))
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.NotContains(t, body, "price")
}

func TestAttachPropertyFile(t *testing.T) {
	f := newFixture(t)
	property := f.createProperty(t, "Vila Park", f.company.ID)

	c, rec := f.request(http.MethodPost, "/api/properties/"+property.ID+"/files",
		`{"name":"contract.pdf","type":"application/pdf","size":1024}`, f.admin)
	setParam(c, "id", property.ID)
	require.NoError(t, f.handler.AttachPropertyFile(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["uploadUrl"])
	updated := body["property"].(map[string]interface{})
	files := updated["files"].([]interface{})
	require.Len(t, files, 1)
	file := files[0].(map[string]interface{})
	assert.Equal(t, "contract.pdf", file["name"])
	assert.NotEmpty(t, file["id"])
	assert.Contains(t, file["s3Key"], f.company.ID+"/properties/"+property.ID)
}
