package signingkeys

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"go.uber.org/zap"

	"authcore/internal/tenantconfig"
	"authcore/pkg/tenants"
)

// ErrUnsupportedJWTSigningAlgorithm is returned when a tenant asks for a
// JWT signing algorithm the core cannot mint keys for.
var ErrUnsupportedJWTSigningAlgorithm = errors.New("unsupported jwt signing algorithm")

// Kind is one class of key the core rotates independently.
type Kind string

const (
	KindAccessToken  Kind = "access_token"
	KindRefreshToken Kind = "refresh_token"
	KindJWT          Kind = "jwt"
)

var allKinds = []Kind{KindAccessToken, KindRefreshToken, KindJWT}

// KeyInfo is one piece of key material. Value is the serialized key
// (JWK JSON for RSA kinds, hex for the refresh HMAC secret).
type KeyInfo struct {
	KeyID     string
	Value     string
	CreatedAt time.Time
	Expiry    time.Time
}

// poolKeys is the key material shared by every tenant routed to one
// user pool; mirrors keys living in the pool's database.
type poolKeys struct {
	mu   sync.Mutex
	keys []KeyInfo
}

type poolKey struct {
	pool string
	kind Kind
}

// Manager mints and serves keys of one kind for one tenant. Tenants
// mapped to the same user pool share key material; the update interval
// is the owning tenant's.
type Manager struct {
	identifier     tenants.Identifier
	kind           Kind
	poolID         string
	updateInterval time.Duration
	algorithm      jwa.SignatureAlgorithm

	shared *poolKeys
	now    func() time.Time
}

// GetAllKeys returns every non-purged key for this manager's pool,
// generating the first one on demand.
func (m *Manager) GetAllKeys() ([]KeyInfo, error) {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()
	if err := m.ensureLatestLocked(); err != nil {
		return nil, err
	}
	out := make([]KeyInfo, len(m.shared.keys))
	copy(out, m.shared.keys)
	return out, nil
}

// GetLatestKey returns the newest key, rotating first if the current one
// passed its expiry.
func (m *Manager) GetLatestKey() (KeyInfo, error) {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()
	if err := m.ensureLatestLocked(); err != nil {
		return KeyInfo{}, err
	}
	return m.shared.keys[len(m.shared.keys)-1], nil
}

func (m *Manager) UpdateInterval() time.Duration { return m.updateInterval }
func (m *Manager) PoolID() string                { return m.poolID }

func (m *Manager) ensureLatestLocked() error {
	if n := len(m.shared.keys); n > 0 && m.now().Before(m.shared.keys[n-1].Expiry) {
		return nil
	}
	info, err := m.generate()
	if err != nil {
		return err
	}
	m.shared.keys = append(m.shared.keys, info)
	return nil
}

func (m *Manager) generate() (KeyInfo, error) {
	created := m.now()
	info := KeyInfo{
		KeyID:     uuid.NewString(),
		CreatedAt: created,
		Expiry:    created.Add(m.updateInterval),
	}
	switch m.kind {
	case KindRefreshToken:
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			return KeyInfo{}, fmt.Errorf("refresh key material: %w", err)
		}
		info.Value = hex.EncodeToString(raw)
	default:
		priv, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return KeyInfo{}, fmt.Errorf("rsa keygen: %w", err)
		}
		key, err := jwk.FromRaw(priv)
		if err != nil {
			return KeyInfo{}, fmt.Errorf("jwk wrap: %w", err)
		}
		if err := key.Set(jwk.KeyIDKey, info.KeyID); err != nil {
			return KeyInfo{}, err
		}
		if err := key.Set(jwk.AlgorithmKey, m.algorithm); err != nil {
			return KeyInfo{}, err
		}
		serialized, err := json.Marshal(key)
		if err != nil {
			return KeyInfo{}, fmt.Errorf("jwk serialize: %w", err)
		}
		info.Value = string(serialized)
	}
	return info, nil
}

// Registry owns every tenant's managers for all three kinds, plus the
// per-pool key material behind them.
type Registry struct {
	log *zap.SugaredLogger
	now func() time.Time

	mu       sync.RWMutex
	managers map[Kind]map[tenants.Identifier]*Manager
	pools    map[poolKey]*poolKeys
}

func NewRegistry(log *zap.SugaredLogger) *Registry {
	r := &Registry{
		log:      log,
		now:      time.Now,
		managers: map[Kind]map[tenants.Identifier]*Manager{},
		pools:    map[poolKey]*poolKeys{},
	}
	for _, k := range allKinds {
		r.managers[k] = map[tenants.Identifier]*Manager{}
	}
	return r
}

// LoadAll ensures one manager per kind exists for every given tenant
// (and always for the default tenant), constructed with that tenant's
// update intervals, and destroys managers for tenants that disappeared.
// The first key of each pool is minted eagerly so the first lookup does
// not block on key generation; a lookup after the latest key expired
// still generates its replacement.
func (r *Registry) LoadAll(cfgs []tenants.TenantConfig, configs *tenantconfig.Registry) error {
	want := map[tenants.Identifier]bool{tenants.DefaultIdentifier(): true}
	for _, cfg := range cfgs {
		want[cfg.Identifier] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range want {
		snap := configs.Get(id)
		alg := snap.JWTSigningAlgorithm()
		if alg != jwa.RS256.String() {
			return fmt.Errorf("tenant %s: %w: %s", id, ErrUnsupportedJWTSigningAlgorithm, alg)
		}
		pool := snap.UserPoolID()
		intervals := map[Kind]time.Duration{
			KindAccessToken:  snap.AccessTokenSigningKeyUpdateInterval(),
			KindRefreshToken: snap.RefreshTokenKeyUpdateInterval(),
			KindJWT:          snap.JWTSigningKeyUpdateInterval(),
		}
		for _, kind := range allKinds {
			existing, ok := r.managers[kind][id]
			if ok && existing.poolID == pool && existing.updateInterval == intervals[kind] {
				continue
			}
			r.managers[kind][id] = r.newManagerLocked(id, kind, pool, intervals[kind])
		}
	}

	// Destroy managers for removed tenants, then drop key material for
	// pools no tenant references anymore.
	for _, kind := range allKinds {
		for id := range r.managers[kind] {
			if !want[id] {
				delete(r.managers[kind], id)
			}
		}
	}
	referenced := map[poolKey]bool{}
	for _, kind := range allKinds {
		for _, m := range r.managers[kind] {
			referenced[poolKey{m.poolID, kind}] = true
		}
	}
	for pk := range r.pools {
		if !referenced[pk] {
			delete(r.pools, pk)
		}
	}

	// Eager mint.
	for _, kind := range allKinds {
		for _, m := range r.managers[kind] {
			if _, err := m.GetLatestKey(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Get returns the manager of one kind for id, falling back to the
// default tenant's manager when id is unknown.
func (r *Registry) Get(kind Kind, id tenants.Identifier) *Manager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.managers[kind][id]; ok {
		return m
	}
	return r.managers[kind][tenants.DefaultIdentifier()]
}

// Managers returns the (access-token, refresh-token, jwt) triple for id.
func (r *Registry) Managers(id tenants.Identifier) (accessToken, refreshToken, jwt *Manager) {
	return r.Get(KindAccessToken, id), r.Get(KindRefreshToken, id), r.Get(KindJWT, id)
}

// Has reports whether id has its own managers (no default fallback).
func (r *Registry) Has(id tenants.Identifier) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.managers[KindAccessToken][id]
	return ok
}

func (r *Registry) newManagerLocked(id tenants.Identifier, kind Kind, pool string, interval time.Duration) *Manager {
	pk := poolKey{pool, kind}
	shared, ok := r.pools[pk]
	if !ok {
		shared = &poolKeys{}
		r.pools[pk] = shared
	}
	return &Manager{
		identifier:     id,
		kind:           kind,
		poolID:         pool,
		updateInterval: interval,
		algorithm:      jwa.RS256,
		shared:         shared,
		now:            r.now,
	}
}
