package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authcore/pkg/tenants"
)

func TestMemoryCatalogCreateDuplicate(t *testing.T) {
	ctx := context.Background()
	cat := NewMemoryCatalog()
	cfg := tenants.TenantConfig{Identifier: tenants.NewIdentifier("c1", "", "")}

	require.NoError(t, cat.CreateTenant(ctx, cfg))
	assert.ErrorIs(t, cat.CreateTenant(ctx, cfg), tenants.ErrDuplicateTenant)
}

func TestMemoryCatalogOverwriteUnknown(t *testing.T) {
	ctx := context.Background()
	cat := NewMemoryCatalog()
	cfg := tenants.TenantConfig{Identifier: tenants.NewIdentifier("c1", "", "")}

	assert.ErrorIs(t, cat.OverwriteTenantConfig(ctx, cfg), tenants.ErrUnknownTenant)

	require.NoError(t, cat.CreateTenant(ctx, cfg))
	cfg.EmailPassword.Enabled = true
	require.NoError(t, cat.OverwriteTenantConfig(ctx, cfg))

	rows, err := cat.ListAllTenants(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].EmailPassword.Enabled)
}

func TestMemoryCatalogDeleteUnknown(t *testing.T) {
	ctx := context.Background()
	cat := NewMemoryCatalog()
	assert.ErrorIs(t, cat.DeleteTenant(ctx, tenants.NewIdentifier("c1", "", "")), tenants.ErrUnknownTenant)
}

func TestMarkAppIDAsDeletedIsIdempotentAndSticky(t *testing.T) {
	ctx := context.Background()
	cat := NewMemoryCatalog()
	require.NoError(t, cat.CreateTenant(ctx, tenants.TenantConfig{Identifier: tenants.NewIdentifier("", "app1", "")}))
	require.NoError(t, cat.CreateTenant(ctx, tenants.TenantConfig{Identifier: tenants.NewIdentifier("", "app1", "t1")}))

	require.NoError(t, cat.MarkAppIDAsDeleted(ctx, "app1"))
	require.NoError(t, cat.MarkAppIDAsDeleted(ctx, "app1"))

	rows, err := cat.ListAllTenants(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.True(t, row.AppIDMarkedAsDeleted)
		assert.False(t, row.Visible())
	}

	// A row created under a soft-deleted app inherits the marker.
	require.NoError(t, cat.CreateTenant(ctx, tenants.TenantConfig{Identifier: tenants.NewIdentifier("", "app1", "t2")}))
	rows, err = cat.ListAllTenants(ctx)
	require.NoError(t, err)
	for _, row := range rows {
		if row.Identifier.TenantID() == "t2" {
			assert.True(t, row.AppIDMarkedAsDeleted)
		}
	}
}

func TestPurgeDeletedRows(t *testing.T) {
	ctx := context.Background()
	cat := NewMemoryCatalog()
	require.NoError(t, cat.CreateTenant(ctx, tenants.TenantConfig{Identifier: tenants.DefaultIdentifier()}))
	require.NoError(t, cat.CreateTenant(ctx, tenants.TenantConfig{Identifier: tenants.NewIdentifier("", "doomed", "")}))
	require.NoError(t, cat.MarkAppIDAsDeleted(ctx, "doomed"))

	n, err := cat.PurgeDeletedRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := cat.ListAllTenants(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, tenants.DefaultIdentifier(), rows[0].Identifier)
}

func TestMemoryPoolMembershipChecksParent(t *testing.T) {
	ctx := context.Background()
	cat := NewMemoryCatalog()
	factory := NewMemoryFactory(cat)
	pool := factory.Pool("0")

	orphan := tenants.NewIdentifier("ghost", "", "")
	assert.ErrorIs(t, pool.AddTenantIDInUserPool(ctx, orphan), tenants.ErrTenantOrAppNotFound)

	require.NoError(t, cat.CreateTenant(ctx, tenants.TenantConfig{Identifier: orphan}))
	require.NoError(t, pool.AddTenantIDInUserPool(ctx, orphan))
	assert.True(t, pool.HasTenantInUserPool(orphan))

	require.NoError(t, pool.DeleteTenantIDInUserPool(ctx, orphan))
	assert.ErrorIs(t, pool.DeleteTenantIDInUserPool(ctx, orphan), tenants.ErrUnknownTenant)
}

func TestMemoryPoolUserAndRoleAssociations(t *testing.T) {
	ctx := context.Background()
	cat := NewMemoryCatalog()
	pool := NewMemoryFactory(cat).Pool("0")
	target := tenants.NewIdentifier("", "", "t1")

	assert.ErrorIs(t, pool.AddUserIDToTenant(ctx, target, "u1"), tenants.ErrUnknownUserID)
	pool.CreateUser("u1")
	require.NoError(t, pool.AddUserIDToTenant(ctx, target, "u1"))

	assert.ErrorIs(t, pool.AddRoleToTenant(ctx, target, "admin"), tenants.ErrUnknownRole)
	require.NoError(t, pool.CreateOrUpdateRole(ctx, "admin", []string{"read", "write"}))
	require.NoError(t, pool.AddRoleToTenant(ctx, target, "admin"))

	perms, err := pool.GetPermissionsForRole(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, []string{"read", "write"}, perms)

	_, err = pool.GetPermissionsForRole(ctx, "nope")
	assert.ErrorIs(t, err, tenants.ErrUnknownRole)
}
