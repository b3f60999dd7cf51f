package multitenancy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authcore/internal/featureflag"
	"authcore/pkg/tenants"
)

func TestInitialReconcileInstallsDefaultTenant(t *testing.T) {
	tc := multiTenantCore(t)

	def := tc.svc.Resolve(tenants.DefaultIdentifier())
	require.NotNil(t, def)
	assert.True(t, tc.svc.VisibleIdentifiers()[tenants.DefaultIdentifier()])

	access, refresh, jwt := tc.svc.SigningKeyManagers(tenants.DefaultIdentifier())
	assert.NotNil(t, access)
	assert.NotNil(t, refresh)
	assert.NotNil(t, jwt)
}

func TestSnapshotCompletenessAfterCatalogDrift(t *testing.T) {
	ctx := context.Background()
	tc := multiTenantCore(t)

	// Mutate the catalog behind the fleet's back, as another node would.
	require.NoError(t, tc.catalog.CreateTenant(ctx, customTenant("c1", 2, 200)))
	tc.svc.RefreshIfRequired(ctx)

	visible := tc.svc.VisibleIdentifiers()
	rows, err := tc.catalog.ListAllTenants(ctx)
	require.NoError(t, err)
	expected := map[tenants.Identifier]bool{}
	for _, row := range rows {
		if row.Visible() {
			expected[row.Identifier] = true
		}
	}
	assert.Equal(t, expected, visible)
}

func TestEqualSizeSwapIsDetected(t *testing.T) {
	ctx := context.Background()
	tc := multiTenantCore(t)

	c1 := customTenant("c1", 2, 200)
	require.NoError(t, tc.catalog.CreateTenant(ctx, c1))
	tc.svc.RefreshIfRequired(ctx)
	require.NotNil(t, tc.svc.Resolve(c1.Identifier))
	require.True(t, tc.keys.Has(c1.Identifier))

	// One removed, one added: the visible set size is unchanged.
	c2 := customTenant("c2", 3, 400)
	require.NoError(t, tc.catalog.DeleteTenant(ctx, c1.Identifier))
	require.NoError(t, tc.catalog.CreateTenant(ctx, c2))
	tc.svc.RefreshIfRequired(ctx)

	assert.Nil(t, tc.svc.Resolve(c1.Identifier))
	require.NotNil(t, tc.svc.Resolve(c2.Identifier))
	assert.False(t, tc.keys.Has(c1.Identifier), "managers of the removed tenant must be destroyed")
	assert.True(t, tc.keys.Has(c2.Identifier), "managers of the added tenant must exist")
}

func TestNoOpReconcileSkipsReload(t *testing.T) {
	ctx := context.Background()
	tc := multiTenantCore(t)

	before := tc.sched.TenantsInfo()
	tc.svc.RefreshIfRequired(ctx)
	tc.svc.RefreshIfRequired(ctx)
	assert.Equal(t, before, tc.sched.TenantsInfo())
}

func TestCronReceivesTenantList(t *testing.T) {
	ctx := context.Background()
	tc := multiTenantCore(t)

	require.NoError(t, tc.catalog.CreateTenant(ctx, customTenant("c1", 2, 200)))
	tc.svc.RefreshIfRequired(ctx)

	ids := tc.sched.TenantsInfo()
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, tenants.NewIdentifier("c1", "", ""))
	assert.Contains(t, ids, tenants.DefaultIdentifier())
}

func TestSoftDeletedTenantsAreInvisible(t *testing.T) {
	ctx := context.Background()
	tc := multiTenantCore(t)

	require.NoError(t, tc.catalog.CreateTenant(ctx, tenants.TenantConfig{
		Identifier: tenants.NewIdentifier("", "app1", ""),
	}))
	tc.svc.RefreshIfRequired(ctx)
	require.NotNil(t, tc.svc.Resolve(tenants.NewIdentifier("", "app1", "")))

	require.NoError(t, tc.catalog.MarkAppIDAsDeleted(ctx, "app1"))
	tc.svc.RefreshIfRequired(ctx)
	assert.Nil(t, tc.svc.Resolve(tenants.NewIdentifier("", "app1", "")))
	assert.False(t, tc.svc.VisibleIdentifiers()[tenants.NewIdentifier("", "app1", "")])
}

func TestFeatureFlagDisabledServesOnlyDefaultTenant(t *testing.T) {
	ctx := context.Background()
	tc := newTestCore(t) // MULTI_TENANCY off

	require.NoError(t, tc.catalog.CreateTenant(ctx, customTenant("c1", 2, 200)))
	tc.svc.RefreshIfRequired(ctx)

	// The snapshot tracks the catalog, but no resources are loaded for
	// non-default tenants.
	require.NotNil(t, tc.svc.Resolve(tenants.NewIdentifier("c1", "", "")))
	assert.False(t, tc.keys.Has(tenants.NewIdentifier("c1", "", "")))
	_, err := tc.svc.StorageFor(tenants.NewIdentifier("c1", "", ""))
	assert.ErrorIs(t, err, tenants.ErrTenantOrAppNotFound)

	// The default tenant stays fully functional.
	access, _, _ := tc.svc.SigningKeyManagers(tenants.DefaultIdentifier())
	keys, err := access.GetAllKeys()
	require.NoError(t, err)
	assert.Len(t, keys, 1)
	_, err = tc.svc.StorageFor(tenants.DefaultIdentifier())
	assert.NoError(t, err)
}

func TestFeatureFlagEnableLoadsPendingTenants(t *testing.T) {
	ctx := context.Background()
	tc := newTestCore(t)

	require.NoError(t, tc.catalog.CreateTenant(ctx, customTenant("c1", 2, 200)))
	tc.svc.RefreshIfRequired(ctx)
	require.False(t, tc.keys.Has(tenants.NewIdentifier("c1", "", "")))

	tc.flags.Enable(featureflag.MultiTenancy)
	// The snapshot itself did not drift, so force one more cycle via a
	// catalog change.
	require.NoError(t, tc.catalog.CreateTenant(ctx, customTenant("c2", 3, 400)))
	tc.svc.RefreshIfRequired(ctx)

	assert.True(t, tc.keys.Has(tenants.NewIdentifier("c1", "", "")))
	assert.True(t, tc.keys.Has(tenants.NewIdentifier("c2", "", "")))
}

func TestKeyExpirySpreadAcrossPools(t *testing.T) {
	ctx := context.Background()
	tc := multiTenantCore(t)

	c1 := customTenant("c1", 2, 200)
	c2 := customTenant("c2", 3, 400)
	created, err := tc.svc.AddOrUpdateTenant(ctx, c1)
	require.NoError(t, err)
	require.True(t, created)
	created, err = tc.svc.AddOrUpdateTenant(ctx, c2)
	require.NoError(t, err)
	require.True(t, created)

	baseAccess, _, _ := tc.svc.SigningKeyManagers(tenants.DefaultIdentifier())
	c1Access, _, _ := tc.svc.SigningKeyManagers(c1.Identifier)
	c2Access, _, _ := tc.svc.SigningKeyManagers(c2.Identifier)

	base, err := baseAccess.GetLatestKey()
	require.NoError(t, err)
	k1, err := c1Access.GetLatestKey()
	require.NoError(t, err)
	k2, err := c2Access.GetLatestKey()
	require.NoError(t, err)

	assert.NotEqual(t, base.Value, k1.Value)
	assert.True(t, k1.Expiry.After(base.Expiry.Add(31*time.Hour)))
	assert.NotEqual(t, base.Value, k2.Value)
	assert.True(t, k2.Expiry.After(base.Expiry.Add(60*time.Hour)))

	// Unknown identifiers fall back to the default tenant's key material.
	c3Access, _, _ := tc.svc.SigningKeyManagers(tenants.NewIdentifier("c3", "", ""))
	k3, err := c3Access.GetLatestKey()
	require.NoError(t, err)
	assert.Equal(t, base.Value, k3.Value)
	assert.Equal(t, base.Expiry, k3.Expiry)
}
