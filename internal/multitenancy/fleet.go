// Package multitenancy is the control plane reconciling the persisted
// tenant catalog with the in-memory fleet of per-tenant runtime
// resources: config snapshots, storage handles, signing-key managers,
// and the cron tenant list.
package multitenancy

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"authcore/internal/cron"
	"authcore/internal/featureflag"
	"authcore/internal/signingkeys"
	"authcore/internal/storage"
	"authcore/internal/tenantconfig"
	"authcore/pkg/tenants"
)

// ResourceKey names the fleet inside a process resource registry; there
// is exactly one fleet per process, owned by the default tenant.
const ResourceKey = "multitenancy"

// Service owns the fleet snapshot and orchestrates catalog mutations.
type Service struct {
	log     *zap.SugaredLogger
	catalog tenants.CatalogStore
	layer   *storage.Layer
	configs *tenantconfig.Registry
	keys    *signingkeys.Registry
	flags   *featureflag.Flags
	sched   *cron.Scheduler

	// lock guards tenantConfigs and serializes fleet reloads.
	lock          sync.Mutex
	tenantConfigs []tenants.TenantConfig
}

func New(
	log *zap.SugaredLogger,
	catalog tenants.CatalogStore,
	layer *storage.Layer,
	configs *tenantconfig.Registry,
	keys *signingkeys.Registry,
	flags *featureflag.Flags,
	sched *cron.Scheduler,
) *Service {
	return &Service{
		log:     log,
		catalog: catalog,
		layer:   layer,
		configs: configs,
		keys:    keys,
		flags:   flags,
		sched:   sched,
	}
}

// Resolve returns the visible tenant config for id, or nil if absent
// from the current snapshot.
func (s *Service) Resolve(id tenants.Identifier) *tenants.TenantConfig {
	for _, t := range s.snapshot() {
		if t.Identifier == id {
			cfg := t
			return &cfg
		}
	}
	return nil
}

// VisibleIdentifiers returns the identifier set of the current snapshot.
func (s *Service) VisibleIdentifiers() map[tenants.Identifier]bool {
	snap := s.snapshot()
	out := make(map[tenants.Identifier]bool, len(snap))
	for _, t := range snap {
		out[t.Identifier] = true
	}
	return out
}

// SigningKeyManagers returns the (access-token, refresh-token, jwt)
// managers for id; unknown identifiers get the default tenant's.
func (s *Service) SigningKeyManagers(id tenants.Identifier) (accessToken, refreshToken, jwt *signingkeys.Manager) {
	return s.keys.Managers(id)
}

// StorageFor resolves the user-pool handle hosting id.
func (s *Service) StorageFor(id tenants.Identifier) (*storage.Handle, error) {
	return s.layer.GetStorage(id)
}

// RefreshIfRequired re-reads the catalog and, when the visible set
// drifted, reloads configs, storage, signing keys, and the cron tenant
// list. Load errors are logged and swallowed; the next invocation
// retries. The catalog read happens before the lock is taken so the
// critical section stays short.
func (s *Service) RefreshIfRequired(ctx context.Context) {
	fresh, err := s.visibleTenants(ctx)
	if err != nil {
		s.log.Errorw("refresh: listing tenants", "err", err)
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	reconcileTotal.Inc()
	changed := drift(s.tenantConfigs, fresh)
	s.tenantConfigs = fresh
	if !changed {
		return
	}
	reconcileChanged.Inc()

	if err := s.reloadLocked(ctx, fresh); err != nil {
		s.log.Errorw("refresh: fleet reload", "err", err)
	}
}

// drift compares identifier sets by symmetric difference: any
// membership change counts, including an equal-size swap where one
// tenant replaced another.
func drift(current, fresh []tenants.TenantConfig) bool {
	if len(current) != len(fresh) {
		return true
	}
	freshSet := make(map[tenants.Identifier]bool, len(fresh))
	for _, t := range fresh {
		freshSet[t.Identifier] = true
	}
	for _, t := range current {
		if !freshSet[t.Identifier] {
			return true
		}
	}
	return false
}

func (s *Service) reloadLocked(ctx context.Context, fresh []tenants.TenantConfig) error {
	serve := fresh
	if !s.flags.Enabled(featureflag.MultiTenancy) {
		// Multi-tenancy off: only the default tenant is served; loads of
		// non-default tenants are skipped entirely.
		serve = nil
		for _, t := range fresh {
			if t.Identifier == tenants.DefaultIdentifier() {
				serve = append(serve, t)
				break
			}
		}
	}

	if err := s.configs.LoadAll(serve); err != nil {
		return err
	}
	if err := s.layer.LoadAll(ctx, serve, s.configs); err != nil {
		return err
	}
	if err := s.keys.LoadAll(serve, s.configs); err != nil {
		return err
	}
	ids := make([]tenants.Identifier, 0, len(serve))
	for _, t := range serve {
		ids = append(ids, t.Identifier)
	}
	s.sched.SetTenantsInfo(ids)
	return nil
}

func (s *Service) visibleTenants(ctx context.Context) ([]tenants.TenantConfig, error) {
	all, err := s.catalog.ListAllTenants(ctx)
	if err != nil {
		return nil, err
	}
	visible := make([]tenants.TenantConfig, 0, len(all))
	for _, t := range all {
		if t.Visible() {
			visible = append(visible, t)
		}
	}
	return visible, nil
}

// snapshot captures the slice header under the lock; iteration happens
// lock-free on the immutable snapshot.
func (s *Service) snapshot() []tenants.TenantConfig {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.tenantConfigs
}
