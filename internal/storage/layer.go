package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"authcore/internal/tenantconfig"
	"authcore/internal/userroles"
	"authcore/pkg/tenants"
)

// ErrDBInit wraps failures to open a physical user-pool database.
var ErrDBInit = errors.New("db init failed")

// Handle is one open physical user-pool database with the surfaces the
// core consumes from it.
type Handle struct {
	PoolID   string
	UserPool tenants.UserPoolStore
	Roles    userroles.Store

	close func() error
}

func (h *Handle) Close() error {
	if h.close == nil {
		return nil
	}
	return h.close()
}

// Factory opens pool handles; implementations exist for postgres and
// memory.
type Factory interface {
	Open(ctx context.Context, poolID string, snap *tenantconfig.Snapshot) (*Handle, error)
}

// Layer maintains one open handle per distinct user pool and the
// identifier-to-pool routing table. LoadAll realigns both with a tenant
// snapshot: tenants sharing a pool share the handle, orphaned handles
// are closed.
type Layer struct {
	log     *zap.SugaredLogger
	factory Factory

	mu       sync.RWMutex
	handles  map[string]*Handle
	poolByID map[tenants.Identifier]string
}

func NewLayer(log *zap.SugaredLogger, factory Factory) *Layer {
	return &Layer{
		log:      log,
		factory:  factory,
		handles:  map[string]*Handle{},
		poolByID: map[tenants.Identifier]string{},
	}
}

// LoadAll opens/closes physical connections so that exactly one handle
// exists per distinct user pool among the given tenants (the default
// tenant is always included).
func (l *Layer) LoadAll(ctx context.Context, cfgs []tenants.TenantConfig, configs *tenantconfig.Registry) error {
	want := map[tenants.Identifier]bool{tenants.DefaultIdentifier(): true}
	for _, cfg := range cfgs {
		want[cfg.Identifier] = true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	nextRouting := make(map[tenants.Identifier]string, len(want))
	nextHandles := make(map[string]*Handle)
	for id := range want {
		snap := configs.Get(id)
		poolID := snap.UserPoolID()
		nextRouting[id] = poolID
		if _, ok := nextHandles[poolID]; ok {
			continue
		}
		if h, ok := l.handles[poolID]; ok {
			nextHandles[poolID] = h
			continue
		}
		h, err := l.factory.Open(ctx, poolID, snap)
		if err != nil {
			return fmt.Errorf("%w: pool %s: %v", ErrDBInit, poolID, err)
		}
		nextHandles[poolID] = h
	}

	for poolID, h := range l.handles {
		if _, ok := nextHandles[poolID]; ok {
			continue
		}
		if err := h.Close(); err != nil {
			l.log.Warnw("closing user pool", "pool", poolID, "err", err)
		}
	}

	l.handles = nextHandles
	l.poolByID = nextRouting
	return nil
}

// GetStorage resolves the handle hosting id's user pool. Unknown
// identifiers fail with tenants.ErrTenantOrAppNotFound.
func (l *Layer) GetStorage(id tenants.Identifier) (*Handle, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	poolID, ok := l.poolByID[id]
	if !ok {
		return nil, tenants.ErrTenantOrAppNotFound
	}
	return l.handles[poolID], nil
}

// PoolCount reports how many physical pools are open.
func (l *Layer) PoolCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.handles)
}
