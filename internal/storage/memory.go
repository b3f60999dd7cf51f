package storage

import (
	"context"
	"sort"
	"sync"

	"authcore/internal/tenantconfig"
	"authcore/pkg/tenants"
)

// MemoryCatalog is the in-memory catalog store used when DATABASE_URL is
// unset (dev mode) and throughout the test suite.
type MemoryCatalog struct {
	mu   sync.RWMutex
	rows map[tenants.Identifier]tenants.TenantConfig
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{rows: map[tenants.Identifier]tenants.TenantConfig{}}
}

func (s *MemoryCatalog) ListAllTenants(ctx context.Context) ([]tenants.TenantConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]tenants.TenantConfig, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, row)
	}
	// Deterministic order: default tenant first, then by tuple.
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Identifier, out[j].Identifier
		if a == tenants.DefaultIdentifier() {
			return b != tenants.DefaultIdentifier()
		}
		if b == tenants.DefaultIdentifier() {
			return false
		}
		if a.ConnectionURIDomain() != b.ConnectionURIDomain() {
			return a.ConnectionURIDomain() < b.ConnectionURIDomain()
		}
		if a.AppID() != b.AppID() {
			return a.AppID() < b.AppID()
		}
		return a.TenantID() < b.TenantID()
	})
	return out, nil
}

func (s *MemoryCatalog) CreateTenant(ctx context.Context, cfg tenants.TenantConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[cfg.Identifier]; ok {
		return tenants.ErrDuplicateTenant
	}
	s.applyMarkersLocked(&cfg)
	s.rows[cfg.Identifier] = cfg
	return nil
}

func (s *MemoryCatalog) OverwriteTenantConfig(ctx context.Context, cfg tenants.TenantConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[cfg.Identifier]; !ok {
		return tenants.ErrUnknownTenant
	}
	s.applyMarkersLocked(&cfg)
	s.rows[cfg.Identifier] = cfg
	return nil
}

func (s *MemoryCatalog) DeleteTenant(ctx context.Context, id tenants.Identifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return tenants.ErrUnknownTenant
	}
	delete(s.rows, id)
	return nil
}

func (s *MemoryCatalog) MarkAppIDAsDeleted(ctx context.Context, appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, row := range s.rows {
		if id.AppID() == appID {
			row.AppIDMarkedAsDeleted = true
			s.rows[id] = row
		}
	}
	return nil
}

func (s *MemoryCatalog) MarkConnectionURIDomainAsDeleted(ctx context.Context, domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, row := range s.rows {
		if id.ConnectionURIDomain() == domain {
			row.ConnectionURIDomainMarkedAsDeleted = true
			s.rows[id] = row
		}
	}
	return nil
}

// PurgeDeletedRows physically removes rows whose app or domain is soft
// deleted; the janitor cron calls this.
func (s *MemoryCatalog) PurgeDeletedRows(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, row := range s.rows {
		if !row.Visible() {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

// parentRecognized reports whether the app level of id still exists
// un-deleted. New rows inherit their parents' markers separately, in
// applyMarkersLocked.
func (s *MemoryCatalog) parentRecognized(id tenants.Identifier) bool {
	for rowID, row := range s.rows {
		if rowID.ConnectionURIDomain() == id.ConnectionURIDomain() &&
			rowID.AppID() == id.AppID() && row.Visible() {
			return true
		}
	}
	return false
}

func (s *MemoryCatalog) applyMarkersLocked(cfg *tenants.TenantConfig) {
	for rowID, row := range s.rows {
		if rowID.AppID() == cfg.Identifier.AppID() && row.AppIDMarkedAsDeleted {
			cfg.AppIDMarkedAsDeleted = true
		}
		if rowID.ConnectionURIDomain() == cfg.Identifier.ConnectionURIDomain() &&
			row.ConnectionURIDomainMarkedAsDeleted {
			cfg.ConnectionURIDomainMarkedAsDeleted = true
		}
	}
}

// MemoryPool is one in-memory user-pool database: tenant membership,
// users, and the roles recipe tables.
type MemoryPool struct {
	poolID  string
	catalog *MemoryCatalog

	mu          sync.RWMutex
	members     map[tenants.Identifier]bool
	users       map[string]bool
	roles       map[string][]string
	userTenants map[string]map[tenants.Identifier]bool
	roleTenants map[string]map[tenants.Identifier]bool
}

func newMemoryPool(poolID string, catalog *MemoryCatalog) *MemoryPool {
	return &MemoryPool{
		poolID:      poolID,
		catalog:     catalog,
		members:     map[tenants.Identifier]bool{},
		users:       map[string]bool{},
		roles:       map[string][]string{},
		userTenants: map[string]map[tenants.Identifier]bool{},
		roleTenants: map[string]map[tenants.Identifier]bool{},
	}
}

func (p *MemoryPool) AddTenantIDInUserPool(ctx context.Context, id tenants.Identifier) error {
	p.catalog.mu.RLock()
	recognized := p.catalog.parentRecognized(id)
	p.catalog.mu.RUnlock()
	if !recognized {
		return tenants.ErrTenantOrAppNotFound
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.members[id] = true
	return nil
}

func (p *MemoryPool) DeleteTenantIDInUserPool(ctx context.Context, id tenants.Identifier) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.members[id] {
		return tenants.ErrUnknownTenant
	}
	delete(p.members, id)
	return nil
}

func (p *MemoryPool) AddUserIDToTenant(ctx context.Context, id tenants.Identifier, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.users[userID] {
		return tenants.ErrUnknownUserID
	}
	set, ok := p.userTenants[userID]
	if !ok {
		set = map[tenants.Identifier]bool{}
		p.userTenants[userID] = set
	}
	set[id] = true
	return nil
}

func (p *MemoryPool) AddRoleToTenant(ctx context.Context, id tenants.Identifier, role string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.roles[role]; !ok {
		return tenants.ErrUnknownRole
	}
	set, ok := p.roleTenants[role]
	if !ok {
		set = map[tenants.Identifier]bool{}
		p.roleTenants[role] = set
	}
	set[id] = true
	return nil
}

// HasTenantInUserPool reports pool membership; used by tests.
func (p *MemoryPool) HasTenantInUserPool(id tenants.Identifier) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.members[id]
}

// CreateUser seeds a user row; users are otherwise owned by the
// email-password / passwordless recipes.
func (p *MemoryPool) CreateUser(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[userID] = true
}

func (p *MemoryPool) GetPermissionsForRole(ctx context.Context, role string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	perms, ok := p.roles[role]
	if !ok {
		return nil, tenants.ErrUnknownRole
	}
	out := make([]string, len(perms))
	copy(out, perms)
	return out, nil
}

func (p *MemoryPool) CreateOrUpdateRole(ctx context.Context, role string, permissions []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	perms := make([]string, len(permissions))
	copy(perms, permissions)
	p.roles[role] = perms
	return nil
}

// MemoryFactory opens in-memory pool handles. Pool data survives
// close/reopen the way a real database would.
type MemoryFactory struct {
	catalog *MemoryCatalog

	mu    sync.Mutex
	pools map[string]*MemoryPool
}

func NewMemoryFactory(catalog *MemoryCatalog) *MemoryFactory {
	return &MemoryFactory{catalog: catalog, pools: map[string]*MemoryPool{}}
}

func (f *MemoryFactory) Open(ctx context.Context, poolID string, snap *tenantconfig.Snapshot) (*Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pool, ok := f.pools[poolID]
	if !ok {
		pool = newMemoryPool(poolID, f.catalog)
		f.pools[poolID] = pool
	}
	return &Handle{PoolID: poolID, UserPool: pool, Roles: pool}, nil
}

// Pool exposes the raw pool for seeding in tests and dev mode.
func (f *MemoryFactory) Pool(poolID string) *MemoryPool {
	f.mu.Lock()
	defer f.mu.Unlock()
	pool, ok := f.pools[poolID]
	if !ok {
		pool = newMemoryPool(poolID, f.catalog)
		f.pools[poolID] = pool
	}
	return pool
}
