package webserver

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"authcore/internal/multitenancy"
	"authcore/internal/userroles"
)

// Config holds webserver-specific configuration.
type Config struct {
	HTTPAddr string
	// APIKey gates the multitenancy admin surface when non-empty.
	APIKey string
}

// App is the HTTP application container: shared deps and config only,
// request-scoped work uses context.
type App struct {
	log    *zap.SugaredLogger
	core   *multitenancy.Service
	rdb    *redis.Client
	apiKey string
}

func New(log *zap.SugaredLogger, core *multitenancy.Service, rdb *redis.Client, cfg Config) *App {
	return &App{log: log, core: core, rdb: rdb, apiKey: cfg.APIKey}
}

// rolesStore wraps a pool's roles surface with the redis cache when one
// is configured.
func (a *App) rolesStore(inner userroles.Store) userroles.Store {
	if a.rdb == nil {
		return inner
	}
	return userroles.NewCachedStore(inner, a.rdb)
}
