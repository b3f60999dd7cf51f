// cmd/core-service/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"authcore/internal/cron"
	"authcore/internal/featureflag"
	"authcore/internal/multitenancy"
	"authcore/internal/signingkeys"
	"authcore/internal/storage"
	"authcore/internal/tenantconfig"
	"authcore/internal/webserver"
	"authcore/pkg/config"
	"authcore/pkg/db"
	"authcore/pkg/logger"
	"authcore/pkg/tenants"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	defer log.Sync()

	baseCoreConfig, err := config.LoadBaseCoreConfig(cfg.BaseConfigPath)
	if err != nil {
		log.Fatalw("core config", "err", err)
	}

	pool := db.MustConnect(cfg, log)
	rdb := db.MustRedis(cfg, log)

	var (
		catalog tenants.CatalogStore
		factory storage.Factory
		purger  cron.Purger
	)
	if pool != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := storage.EnsureCatalogSchema(ctx, pool); err != nil {
			log.Fatalw("catalog schema", "err", err)
		}
		cancel()
		pg := storage.NewPostgresCatalog(pool, log)
		catalog = pg
		factory = storage.NewPostgresFactory(pool, pg, log)
		purger = pg
	} else {
		log.Warnw("DATABASE_URL not set, using in-memory stores")
		mem := storage.NewMemoryCatalog()
		catalog = mem
		factory = storage.NewMemoryFactory(mem)
		purger = mem
	}

	if err := storage.EnsureDefaultTenant(context.Background(), catalog); err != nil {
		log.Fatalw("default tenant bootstrap", "err", err)
	}

	flags := featureflag.New()
	if cfg.MultiTenancy {
		flags.Enable(featureflag.MultiTenancy)
	}

	configs := tenantconfig.NewRegistry(baseCoreConfig)
	layer := storage.NewLayer(log, factory)
	keys := signingkeys.NewRegistry(log)
	sched := cron.NewScheduler(log)

	core := multitenancy.New(log, catalog, layer, configs, keys, flags, sched)

	sched.Register(cron.NewJanitor(log, purger, time.Hour))
	sched.Register(cron.NewFunc("tenant-refresh", time.Minute,
		func(ctx context.Context, _ []tenants.Identifier) error {
			core.RefreshIfRequired(ctx)
			return nil
		}))

	core.RefreshIfRequired(context.Background())
	sched.Start()

	app := webserver.New(log, core, rdb, webserver.Config{
		HTTPAddr: cfg.HTTPAddr,
		APIKey:   cfg.APIKey,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: app.Handler()}
	go func() {
		log.Infow("core-service listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	_ = srv.Shutdown(ctx)
	sched.Stop()
	fmt.Println("core-service stopped")
}
