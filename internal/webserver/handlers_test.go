package webserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"authcore/internal/cron"
	"authcore/internal/featureflag"
	"authcore/internal/multitenancy"
	"authcore/internal/signingkeys"
	"authcore/internal/storage"
	"authcore/internal/tenantconfig"
	"authcore/pkg/tenants"
)

func newTestApp(t *testing.T, apiKey string) (*App, *storage.MemoryFactory) {
	t.Helper()
	log := zap.NewNop().Sugar()
	catalog := storage.NewMemoryCatalog()
	require.NoError(t, storage.EnsureDefaultTenant(context.Background(), catalog))
	factory := storage.NewMemoryFactory(catalog)

	core := multitenancy.New(log, catalog,
		storage.NewLayer(log, factory),
		tenantconfig.NewRegistry(nil),
		signingkeys.NewRegistry(log),
		featureflag.New(featureflag.MultiTenancy),
		cron.NewScheduler(log),
	)
	core.RefreshIfRequired(context.Background())

	return New(log, core, nil, Config{APIKey: apiKey}), factory
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestGetPermissionsForRole(t *testing.T) {
	app, factory := newTestApp(t, "")
	h := app.Handler()

	require.NoError(t, factory.Pool(tenantconfig.DefaultUserPoolID).
		CreateOrUpdateRole(context.Background(), "admin", []string{"read", "write"}))

	rec := doJSON(t, h, http.MethodGet, "/recipe/role/permissions?role=admin", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "OK", body["status"])
	assert.ElementsMatch(t, []any{"read", "write"}, body["permissions"])
}

func TestGetPermissionsForUnknownRole(t *testing.T) {
	app, _ := newTestApp(t, "")
	rec := doJSON(t, app.Handler(), http.MethodGet, "/recipe/role/permissions?role=ghost", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "UNKNOWN_ROLE_ERROR", decode(t, rec)["status"])
}

func TestGetPermissionsBlankRoleIsBadRequest(t *testing.T) {
	app, _ := newTestApp(t, "")
	h := app.Handler()

	rec := doJSON(t, h, http.MethodGet, "/recipe/role/permissions", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/recipe/role/permissions?role=%20%20", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutRoleThenLookupRoundTrips(t *testing.T) {
	app, _ := newTestApp(t, "")
	h := app.Handler()

	rec := doJSON(t, h, http.MethodPut, "/recipe/role",
		map[string]any{"role": "support", "permissions": []string{"tickets:read"}}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/recipe/role/permissions?role=support", nil, nil)
	body := decode(t, rec)
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, []any{"tickets:read"}, body["permissions"])
}

func TestTenantAdminFlow(t *testing.T) {
	app, _ := newTestApp(t, "")
	h := app.Handler()

	rec := doJSON(t, h, http.MethodPut, "/recipe/multitenancy/tenant", map[string]any{
		"connectionUriDomain": "c1",
		"coreConfig": map[string]any{
			"access_token_signing_key_update_interval": 200,
			"user_pool_id": 2,
		},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, true, body["createdNew"])

	// Second PUT is an update, not a create.
	rec = doJSON(t, h, http.MethodPut, "/recipe/multitenancy/tenant", map[string]any{
		"connectionUriDomain": "c1",
		"coreConfig": map[string]any{
			"access_token_signing_key_update_interval": 200,
			"user_pool_id": 2,
		},
	}, nil)
	assert.Equal(t, false, decode(t, rec)["createdNew"])

	rec = doJSON(t, h, http.MethodGet, "/recipe/multitenancy/tenant?connectionUriDomain=c1", nil, nil)
	assert.Equal(t, "OK", decode(t, rec)["status"])

	rec = doJSON(t, h, http.MethodGet, "/recipe/multitenancy/tenant/list", nil, nil)
	body = decode(t, rec)
	assert.Equal(t, "OK", body["status"])
	assert.Len(t, body["tenants"], 2)

	rec = doJSON(t, h, http.MethodDelete, "/recipe/multitenancy/tenant?connectionUriDomain=c1", nil, nil)
	body = decode(t, rec)
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, true, body["didExist"])

	rec = doJSON(t, h, http.MethodGet, "/recipe/multitenancy/tenant?connectionUriDomain=c1", nil, nil)
	assert.Equal(t, "TENANT_NOT_FOUND_ERROR", decode(t, rec)["status"])
}

func TestTenantAdminRequiresAPIKey(t *testing.T) {
	app, _ := newTestApp(t, "secret")
	h := app.Handler()

	rec := doJSON(t, h, http.MethodGet, "/recipe/multitenancy/tenant/list", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/recipe/multitenancy/tenant/list", nil,
		map[string]string{"Api-Key": "secret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// The public role endpoint stays open.
	rec = doJSON(t, h, http.MethodGet, "/recipe/role/permissions?role=ghost", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteDefaultTenantForbidden(t *testing.T) {
	app, _ := newTestApp(t, "")
	rec := doJSON(t, app.Handler(), http.MethodDelete, "/recipe/multitenancy/tenant", nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeleteAppGuardedByTenantComponent(t *testing.T) {
	app, _ := newTestApp(t, "")
	rec := doJSON(t, app.Handler(), http.MethodDelete,
		"/recipe/multitenancy/app?appId=app1&tenantId=t1", nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTenantUserAssociation(t *testing.T) {
	app, factory := newTestApp(t, "")
	h := app.Handler()
	factory.Pool(tenantconfig.DefaultUserPoolID).CreateUser("u1")

	rec := doJSON(t, h, http.MethodPost, "/recipe/multitenancy/tenant/user",
		map[string]any{"userId": "u1", "newTenantId": "t1"}, nil)
	assert.Equal(t, "OK", decode(t, rec)["status"])

	rec = doJSON(t, h, http.MethodPost, "/recipe/multitenancy/tenant/user",
		map[string]any{"userId": "nobody", "newTenantId": "t1"}, nil)
	assert.Equal(t, "UNKNOWN_USER_ID_ERROR", decode(t, rec)["status"])

	rec = doJSON(t, h, http.MethodPost, "/recipe/multitenancy/tenant/user",
		map[string]any{"userId": "u1", "newTenantId": tenants.DefaultTenantID}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTenantRoleAssociation(t *testing.T) {
	app, factory := newTestApp(t, "")
	h := app.Handler()
	require.NoError(t, factory.Pool(tenantconfig.DefaultUserPoolID).
		CreateOrUpdateRole(context.Background(), "admin", []string{"read"}))

	rec := doJSON(t, h, http.MethodPost, "/recipe/multitenancy/tenant/role",
		map[string]any{"role": "admin", "newTenantId": "t1"}, nil)
	assert.Equal(t, "OK", decode(t, rec)["status"])

	rec = doJSON(t, h, http.MethodPost, "/recipe/multitenancy/tenant/role",
		map[string]any{"role": "ghost", "newTenantId": "t1"}, nil)
	assert.Equal(t, "UNKNOWN_ROLE_ERROR", decode(t, rec)["status"])
}
