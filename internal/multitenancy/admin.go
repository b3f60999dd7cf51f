package multitenancy

import (
	"context"
	"errors"
	"time"

	"authcore/pkg/tenants"
)

// maxWriteAttempts bounds the recovery protocol; without a budget, a
// hostile catalog state could keep the create/overwrite loop from ever
// terminating.
const maxWriteAttempts = 3

var retryBackoff = 50 * time.Millisecond

// AddOrUpdateTenant writes cfg to the shared catalog, reconciles, and
// records user-pool membership on the tenant-targeted storage. Returns
// true iff a new catalog row was created by this call.
//
// Partial failures from earlier interrupted attempts are repaired: an
// existing shared row is overwritten and its user-pool membership
// re-asserted. Concurrent deletion of the parent app or domain surfaces
// as ErrTenantOrAppNotFound from the pool write and restarts the
// protocol; it runs at most maxWriteAttempts times in all.
func (s *Service) AddOrUpdateTenant(ctx context.Context, cfg tenants.TenantConfig) (bool, error) {
	adminMutations.WithLabelValues("add_or_update_tenant").Inc()
	var lastErr error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * retryBackoff)
		}
		created, retry, err := s.tryAddOrUpdate(ctx, cfg)
		if !retry {
			return created, err
		}
		lastErr = err
	}
	return false, errors.Join(ErrRetriesExhausted, lastErr)
}

func (s *Service) tryAddOrUpdate(ctx context.Context, cfg tenants.TenantConfig) (created, retry bool, err error) {
	createErr := s.catalog.CreateTenant(ctx, cfg)
	if createErr == nil {
		s.RefreshIfRequired(ctx)
		if err := s.addTenantIDInUserPool(ctx, cfg.Identifier); err != nil {
			if errors.Is(err, tenants.ErrTenantOrAppNotFound) {
				// The parent vanished between the shared write and the pool
				// write; restart to recover.
				return false, true, err
			}
			return false, false, err
		}
		return true, false, nil
	}
	if !errors.Is(createErr, tenants.ErrDuplicateTenant) {
		return false, false, createErr
	}

	// The shared row already exists: overwrite, then repair the pool
	// membership a previously interrupted attempt may have skipped.
	if err := s.catalog.OverwriteTenantConfig(ctx, cfg); err != nil {
		switch {
		case errors.Is(err, tenants.ErrUnknownTenant):
			// Deleted mid-flight; recreate from the top.
			return false, true, err
		case errors.Is(err, tenants.ErrDuplicateTenant):
			return false, false, nil
		default:
			return false, false, err
		}
	}
	s.RefreshIfRequired(ctx)
	if err := s.addTenantIDInUserPool(ctx, cfg.Identifier); err != nil {
		if errors.Is(err, tenants.ErrTenantOrAppNotFound) || errors.Is(err, tenants.ErrUnknownTenant) {
			return false, true, err
		}
		return false, false, err
	}
	return false, false, nil
}

func (s *Service) addTenantIDInUserPool(ctx context.Context, id tenants.Identifier) error {
	h, err := s.layer.GetStorage(id)
	if err != nil {
		return err
	}
	return h.UserPool.AddTenantIDInUserPool(ctx, id)
}

// DeleteTenant removes a tenant: best-effort delete of the user-pool
// membership, then the shared catalog row, then a reconcile. The default
// tenant is protected.
func (s *Service) DeleteTenant(ctx context.Context, id tenants.Identifier) error {
	adminMutations.WithLabelValues("delete_tenant").Inc()
	if id == tenants.DefaultIdentifier() {
		return ErrDefaultTenantProtected
	}
	if h, err := s.layer.GetStorage(id); err == nil {
		// A past deletion attempt may have removed this already; the shared
		// row is the source of truth.
		if err := h.UserPool.DeleteTenantIDInUserPool(ctx, id); err != nil &&
			!errors.Is(err, tenants.ErrUnknownTenant) && !errors.Is(err, tenants.ErrTenantOrAppNotFound) {
			return err
		}
	}
	if err := s.catalog.DeleteTenant(ctx, id); err != nil {
		return err
	}
	s.RefreshIfRequired(ctx)
	return nil
}

// DeleteApp soft-deletes every tenant of id's app. Only permitted via
// the app's default tenant; physical cleanup across pools is the
// janitor's job.
func (s *Service) DeleteApp(ctx context.Context, id tenants.Identifier) error {
	adminMutations.WithLabelValues("delete_app").Inc()
	if !id.IsDefaultTenant() {
		return ErrDefaultTenantRequired
	}
	if id.IsDefaultApp() {
		return ErrDefaultTenantProtected
	}
	if err := s.catalog.MarkAppIDAsDeleted(ctx, id.AppID()); err != nil {
		return err
	}
	s.RefreshIfRequired(ctx)
	return nil
}

// DeleteConnectionURIDomain soft-deletes every tenant under id's
// connection-URI domain. Only permitted via the domain's default app and
// tenant.
func (s *Service) DeleteConnectionURIDomain(ctx context.Context, id tenants.Identifier) error {
	adminMutations.WithLabelValues("delete_connection_uri_domain").Inc()
	if !id.IsDefaultTenant() || !id.IsDefaultApp() {
		return ErrDefaultAppRequired
	}
	if id.IsDefaultConnectionURIDomain() {
		return ErrDefaultTenantProtected
	}
	if err := s.catalog.MarkConnectionURIDomainAsDeleted(ctx, id.ConnectionURIDomain()); err != nil {
		return err
	}
	s.RefreshIfRequired(ctx)
	return nil
}

// AddUserIDToTenant associates an existing user of source's pool with
// the target tenant (source with only the tenant component replaced).
func (s *Service) AddUserIDToTenant(ctx context.Context, source tenants.Identifier, userID, newTenantID string) error {
	adminMutations.WithLabelValues("add_user_to_tenant").Inc()
	target := source.WithTenantID(newTenantID)
	if target == source {
		return ErrSameTenantMove
	}
	h, err := s.layer.GetStorage(source)
	if err != nil {
		return err
	}
	return h.UserPool.AddUserIDToTenant(ctx, target, userID)
}

// AddRoleToTenant associates an existing role of source's pool with the
// target tenant.
func (s *Service) AddRoleToTenant(ctx context.Context, source tenants.Identifier, role, newTenantID string) error {
	adminMutations.WithLabelValues("add_role_to_tenant").Inc()
	target := source.WithTenantID(newTenantID)
	if target == source {
		return ErrSameTenantMove
	}
	h, err := s.layer.GetStorage(source)
	if err != nil {
		return err
	}
	return h.UserPool.AddRoleToTenant(ctx, target, role)
}

// GetTenantInfo reconciles, then returns the visible config for id, or
// nil if absent.
func (s *Service) GetTenantInfo(ctx context.Context, id tenants.Identifier) *tenants.TenantConfig {
	s.RefreshIfRequired(ctx)
	return s.Resolve(id)
}

// GetAllTenantsForApp lists the visible tenants sharing id's app. Only
// permitted via the app's default tenant.
func (s *Service) GetAllTenantsForApp(ctx context.Context, id tenants.Identifier) ([]tenants.TenantConfig, error) {
	if !id.IsDefaultTenant() {
		return nil, ErrDefaultTenantRequired
	}
	s.RefreshIfRequired(ctx)
	var out []tenants.TenantConfig
	for _, t := range s.snapshot() {
		if t.Identifier.AppID() == id.AppID() {
			out = append(out, t)
		}
	}
	return out, nil
}

// GetAllTenantsForConnectionURIDomain lists the visible tenants under
// id's connection-URI domain. Only permitted via the domain's default
// app and tenant.
func (s *Service) GetAllTenantsForConnectionURIDomain(ctx context.Context, id tenants.Identifier) ([]tenants.TenantConfig, error) {
	if !id.IsDefaultTenant() || !id.IsDefaultApp() {
		return nil, ErrDefaultAppRequired
	}
	s.RefreshIfRequired(ctx)
	var out []tenants.TenantConfig
	for _, t := range s.snapshot() {
		if t.Identifier.ConnectionURIDomain() == id.ConnectionURIDomain() {
			out = append(out, t)
		}
	}
	return out, nil
}

// GetAllTenants returns the full visible snapshot. Only permitted via
// the default identifier.
func (s *Service) GetAllTenants(ctx context.Context, id tenants.Identifier) ([]tenants.TenantConfig, error) {
	if !id.IsDefaultTenant() || !id.IsDefaultApp() || !id.IsDefaultConnectionURIDomain() {
		return nil, ErrDefaultConnectionURIDomainRequired
	}
	s.RefreshIfRequired(ctx)
	snap := s.snapshot()
	out := make([]tenants.TenantConfig, len(snap))
	copy(out, snap)
	return out, nil
}
