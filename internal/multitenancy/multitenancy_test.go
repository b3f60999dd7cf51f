package multitenancy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"authcore/internal/cron"
	"authcore/internal/featureflag"
	"authcore/internal/signingkeys"
	"authcore/internal/storage"
	"authcore/internal/tenantconfig"
	"authcore/pkg/tenants"
)

type testCore struct {
	svc     *Service
	catalog *storage.MemoryCatalog
	factory *storage.MemoryFactory
	configs *tenantconfig.Registry
	keys    *signingkeys.Registry
	flags   *featureflag.Flags
	sched   *cron.Scheduler
}

func newTestCore(t *testing.T, features ...featureflag.Feature) *testCore {
	t.Helper()
	log := zap.NewNop().Sugar()
	catalog := storage.NewMemoryCatalog()
	require.NoError(t, storage.EnsureDefaultTenant(context.Background(), catalog))

	factory := storage.NewMemoryFactory(catalog)
	tc := &testCore{
		catalog: catalog,
		factory: factory,
		configs: tenantconfig.NewRegistry(nil),
		keys:    signingkeys.NewRegistry(log),
		flags:   featureflag.New(features...),
		sched:   cron.NewScheduler(log),
	}
	tc.svc = New(log, catalog, storage.NewLayer(log, factory), tc.configs, tc.keys, tc.flags, tc.sched)
	tc.svc.RefreshIfRequired(context.Background())
	return tc
}

func multiTenantCore(t *testing.T) *testCore {
	return newTestCore(t, featureflag.MultiTenancy)
}

func customTenant(domain string, pool, intervalHours float64) tenants.TenantConfig {
	return tenants.TenantConfig{
		Identifier: tenants.NewIdentifier(domain, "", ""),
		CoreConfig: tenants.CoreConfig{
			tenantconfig.KeyUserPoolID:                          pool,
			tenantconfig.KeyAccessTokenSigningKeyUpdateInterval: intervalHours,
		},
	}
}
