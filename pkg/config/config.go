// pkg/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"authcore/pkg/tenants"
)

type Config struct {
	Env      string
	HTTPAddr string

	// APIKey gates the admin HTTP surface when set.
	APIKey string

	// BaseConfigPath points at the process-wide core config document
	// (yaml); per-tenant core config is merged over it.
	BaseConfigPath string

	// MultiTenancy toggles the MULTI_TENANCY feature at boot.
	MultiTenancy bool

	ShutdownGrace time.Duration

	// Redis & Postgres
	RedisURL    string
	DatabaseURL string
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:            env("AUTHCORE_ENV", "dev"),
		HTTPAddr:       env("AUTHCORE_HTTP_ADDR", ":3567"),
		APIKey:         env("AUTHCORE_API_KEY", ""),
		BaseConfigPath: env("AUTHCORE_CONFIG_PATH", "config.yaml"),
		MultiTenancy:   envBool("AUTHCORE_MULTI_TENANCY", true),
		ShutdownGrace:  envDur("AUTHCORE_SHUTDOWN_GRACE_SEC", 10) * time.Second,
		RedisURL:       env("REDIS_URL", ""),
		DatabaseURL:    env("DATABASE_URL", ""),
	}
	return cfg
}

// LoadBaseCoreConfig reads the process-wide core config document. A
// missing file is not an error; tenants then run on built-in defaults.
func LoadBaseCoreConfig(path string) (tenants.CoreConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return tenants.CoreConfig{}, nil
		}
		return nil, fmt.Errorf("read core config: %w", err)
	}
	var out tenants.CoreConfig
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse core config: %w", err)
	}
	if out == nil {
		out = tenants.CoreConfig{}
	}
	return out, nil
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		b, _ := strconv.ParseBool(v)
		return b
	}
	return def
}

func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		i, _ := strconv.Atoi(v)
		return time.Duration(i)
	}
	return time.Duration(def)
}
