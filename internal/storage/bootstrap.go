package storage

import (
	"context"
	"errors"

	"authcore/pkg/tenants"
)

// EnsureDefaultTenant seeds the always-present default tenant row. Safe
// to call on every boot.
func EnsureDefaultTenant(ctx context.Context, cs tenants.CatalogStore) error {
	err := cs.CreateTenant(ctx, tenants.TenantConfig{
		Identifier:    tenants.DefaultIdentifier(),
		EmailPassword: tenants.EmailPasswordConfig{Enabled: true},
		ThirdParty:    tenants.ThirdPartyConfig{Enabled: true},
		Passwordless:  tenants.PasswordlessConfig{Enabled: true},
		CoreConfig:    tenants.CoreConfig{},
	})
	if errors.Is(err, tenants.ErrDuplicateTenant) {
		return nil
	}
	return err
}
