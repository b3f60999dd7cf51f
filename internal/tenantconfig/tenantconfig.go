package tenantconfig

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	jmes "github.com/jmespath/go-jmespath"

	"authcore/pkg/tenants"
)

// ErrInvalidConfig wraps any per-tenant core config that fails validation.
var ErrInvalidConfig = errors.New("invalid core config")

// Core config keys understood by the control plane. Everything else in
// the document is opaque and passed through to whoever asks for it.
const (
	KeyAccessTokenSigningKeyUpdateInterval = "access_token_signing_key_update_interval"
	KeyRefreshTokenKeyUpdateInterval       = "refresh_token_key_update_interval"
	KeyJWTSigningKeyUpdateInterval         = "jwt_signing_key_update_interval"
	KeyJWTSigningAlgorithm                 = "jwt_signing_algorithm"
	KeyUserPoolID                          = "user_pool_id"
)

// Defaults, in hours, applied when a tenant document omits the key.
const (
	DefaultAccessTokenSigningKeyUpdateIntervalHours = 168
	DefaultRefreshTokenKeyUpdateIntervalHours       = 168
	DefaultJWTSigningKeyUpdateIntervalHours         = 8760
)

const DefaultUserPoolID = "0"

// Snapshot is the effective configuration of one tenant: the process
// base document with the tenant's own core config merged over it.
type Snapshot struct {
	Identifier tenants.Identifier

	raw    tenants.CoreConfig // tenant overrides, kept for change detection
	values tenants.CoreConfig // effective document
}

// Lookup evaluates a JMESPath expression against the effective document.
func (s *Snapshot) Lookup(path string) (any, bool) {
	v, err := jmes.Search(path, map[string]any(s.values))
	if err != nil || v == nil {
		return nil, false
	}
	return v, true
}

func (s *Snapshot) String(path, def string) string {
	if v, ok := s.Lookup(path); ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return def
}

// Hours reads a numeric key expressed in hours.
func (s *Snapshot) Hours(path string, defHours float64) time.Duration {
	h := defHours
	if v, ok := s.Lookup(path); ok {
		if f, ok := asFloat(v); ok {
			h = f
		}
	}
	return time.Duration(h * float64(time.Hour))
}

// UserPoolID returns the physical pool selector of this tenant.
func (s *Snapshot) UserPoolID() string {
	if v, ok := s.Lookup(KeyUserPoolID); ok {
		if f, ok := asFloat(v); ok {
			return fmt.Sprintf("%v", int64(f))
		}
		if str, ok := v.(string); ok && str != "" {
			return str
		}
	}
	return DefaultUserPoolID
}

func (s *Snapshot) AccessTokenSigningKeyUpdateInterval() time.Duration {
	return s.Hours(KeyAccessTokenSigningKeyUpdateInterval, DefaultAccessTokenSigningKeyUpdateIntervalHours)
}

func (s *Snapshot) RefreshTokenKeyUpdateInterval() time.Duration {
	return s.Hours(KeyRefreshTokenKeyUpdateInterval, DefaultRefreshTokenKeyUpdateIntervalHours)
}

func (s *Snapshot) JWTSigningKeyUpdateInterval() time.Duration {
	return s.Hours(KeyJWTSigningKeyUpdateInterval, DefaultJWTSigningKeyUpdateIntervalHours)
}

func (s *Snapshot) JWTSigningAlgorithm() string {
	return s.String(KeyJWTSigningAlgorithm, "RS256")
}

// Registry materializes and caches per-tenant snapshots.
type Registry struct {
	mu   sync.RWMutex
	base tenants.CoreConfig
	byID map[tenants.Identifier]*Snapshot
}

func NewRegistry(base tenants.CoreConfig) *Registry {
	if base == nil {
		base = tenants.CoreConfig{}
	}
	return &Registry{base: base, byID: map[tenants.Identifier]*Snapshot{}}
}

// LoadAll installs snapshots for the given tenants, reusing snapshots
// whose overrides did not change and dropping tenants that disappeared.
// The default tenant always gets a snapshot, listed or not.
func (r *Registry) LoadAll(cfgs []tenants.TenantConfig) error {
	for _, cfg := range cfgs {
		if err := validate(cfg.CoreConfig); err != nil {
			return fmt.Errorf("tenant %s: %w", cfg.Identifier, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[tenants.Identifier]*Snapshot, len(cfgs)+1)
	for _, cfg := range cfgs {
		if prev, ok := r.byID[cfg.Identifier]; ok && reflect.DeepEqual(prev.raw, cfg.CoreConfig) {
			next[cfg.Identifier] = prev
			continue
		}
		next[cfg.Identifier] = r.build(cfg.Identifier, cfg.CoreConfig)
	}
	def := tenants.DefaultIdentifier()
	if _, ok := next[def]; !ok {
		if prev, ok := r.byID[def]; ok {
			next[def] = prev
		} else {
			next[def] = r.build(def, nil)
		}
	}
	r.byID = next
	return nil
}

// Get returns the snapshot for id, or the default tenant's snapshot when
// the id is unknown.
func (r *Registry) Get(id tenants.Identifier) *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.byID[id]; ok {
		return s
	}
	return r.byID[tenants.DefaultIdentifier()]
}

// Has reports whether id has its own snapshot (no default fallback).
func (r *Registry) Has(id tenants.Identifier) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}

func (r *Registry) build(id tenants.Identifier, overrides tenants.CoreConfig) *Snapshot {
	eff := r.base.Clone()
	if eff == nil {
		eff = tenants.CoreConfig{}
	}
	for k, v := range overrides {
		eff[k] = v
	}
	return &Snapshot{Identifier: id, raw: overrides.Clone(), values: eff}
}

func validate(cfg tenants.CoreConfig) error {
	for _, key := range []string{
		KeyAccessTokenSigningKeyUpdateInterval,
		KeyRefreshTokenKeyUpdateInterval,
		KeyJWTSigningKeyUpdateInterval,
	} {
		v, ok := cfg[key]
		if !ok {
			continue
		}
		f, isNum := asFloat(v)
		if !isNum || f <= 0 {
			return fmt.Errorf("%w: %s must be a positive number of hours", ErrInvalidConfig, key)
		}
	}
	return nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
