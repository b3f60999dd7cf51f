package userroles

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the per-user-pool persistence surface of the roles recipe.
type Store interface {
	// GetPermissionsForRole fails with tenants.ErrUnknownRole when the role
	// does not exist in this pool.
	GetPermissionsForRole(ctx context.Context, role string) ([]string, error)
	// CreateOrUpdateRole upserts a role with the given permission set.
	CreateOrUpdateRole(ctx context.Context, role string, permissions []string) error
}

// CachedStore puts a redis cache in front of a Store. Permission reads
// are served from cache for an hour; role upserts invalidate.
type CachedStore struct {
	inner Store
	rdb   *redis.Client
	ttl   time.Duration
}

func NewCachedStore(inner Store, rdb *redis.Client) *CachedStore {
	return &CachedStore{inner: inner, rdb: rdb, ttl: time.Hour}
}

func (c *CachedStore) cacheKey(role string) string {
	return fmt.Sprintf("role_permissions:%s", role)
}

func (c *CachedStore) GetPermissionsForRole(ctx context.Context, role string) ([]string, error) {
	if c.rdb != nil {
		if cached, err := c.rdb.Get(ctx, c.cacheKey(role)).Result(); err == nil {
			var perms []string
			if err := json.Unmarshal([]byte(cached), &perms); err == nil {
				return perms, nil
			}
		}
	}
	perms, err := c.inner.GetPermissionsForRole(ctx, role)
	if err != nil {
		return nil, err
	}
	if c.rdb != nil {
		if data, err := json.Marshal(perms); err == nil {
			c.rdb.SetEx(ctx, c.cacheKey(role), data, c.ttl)
		}
	}
	return perms, nil
}

func (c *CachedStore) CreateOrUpdateRole(ctx context.Context, role string, permissions []string) error {
	if err := c.inner.CreateOrUpdateRole(ctx, role, permissions); err != nil {
		return err
	}
	if c.rdb != nil {
		c.rdb.Del(ctx, c.cacheKey(role))
	}
	return nil
}

// GetPermissionsForRole is the recipe entry point used by the HTTP
// layer; it exists so callers depend on the operation, not the store.
func GetPermissionsForRole(ctx context.Context, store Store, role string) ([]string, error) {
	return store.GetPermissionsForRole(ctx, role)
}
