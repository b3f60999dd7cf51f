package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"authcore/internal/tenantconfig"
	"authcore/pkg/tenants"
)

// ErrStorageQuery wraps unexpected database failures so callers can
// distinguish them from domain errors.
var ErrStorageQuery = errors.New("storage query failed")

// PostgresCatalog is the shared-database catalog store.
type PostgresCatalog struct {
	db  *pgxpool.Pool
	log *zap.SugaredLogger
}

func NewPostgresCatalog(db *pgxpool.Pool, log *zap.SugaredLogger) *PostgresCatalog {
	return &PostgresCatalog{db: db, log: log}
}

// EnsureCatalogSchema creates the shared catalog tables if they do not
// already exist. Safe to call repeatedly.
func EnsureCatalogSchema(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenant_configs (
  connection_uri_domain text NOT NULL DEFAULT '',
  app_id text NOT NULL DEFAULT 'public',
  tenant_id text NOT NULL DEFAULT 'public',
  email_password jsonb NOT NULL DEFAULT '{}'::jsonb,
  third_party jsonb NOT NULL DEFAULT '{}'::jsonb,
  passwordless jsonb NOT NULL DEFAULT '{}'::jsonb,
  core_config jsonb NOT NULL DEFAULT '{}'::jsonb,
  app_id_marked_as_deleted boolean NOT NULL DEFAULT false,
  connection_uri_domain_marked_as_deleted boolean NOT NULL DEFAULT false,
  created_at timestamptz NOT NULL DEFAULT NOW(),
  PRIMARY KEY (connection_uri_domain, app_id, tenant_id)
);
`)
	return err
}

func (s *PostgresCatalog) ListAllTenants(ctx context.Context) ([]tenants.TenantConfig, error) {
	rows, err := s.db.Query(ctx, `
SELECT connection_uri_domain, app_id, tenant_id,
       email_password, third_party, passwordless, core_config,
       app_id_marked_as_deleted, connection_uri_domain_marked_as_deleted
FROM tenant_configs
ORDER BY connection_uri_domain, app_id, tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageQuery, err)
	}
	defer rows.Close()

	var out []tenants.TenantConfig
	for rows.Next() {
		var (
			cud, appID, tenantID       string
			epRaw, tpRaw, plRaw, ccRaw []byte
			appDeleted, domainDeleted  bool
		)
		if err := rows.Scan(&cud, &appID, &tenantID, &epRaw, &tpRaw, &plRaw, &ccRaw,
			&appDeleted, &domainDeleted); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageQuery, err)
		}
		cfg := tenants.TenantConfig{
			Identifier:                         tenants.NewIdentifier(cud, appID, tenantID),
			AppIDMarkedAsDeleted:               appDeleted,
			ConnectionURIDomainMarkedAsDeleted: domainDeleted,
		}
		_ = json.Unmarshal(epRaw, &cfg.EmailPassword)
		_ = json.Unmarshal(tpRaw, &cfg.ThirdParty)
		_ = json.Unmarshal(plRaw, &cfg.Passwordless)
		_ = json.Unmarshal(ccRaw, &cfg.CoreConfig)
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func (s *PostgresCatalog) CreateTenant(ctx context.Context, cfg tenants.TenantConfig) error {
	ep, tp, pl, cc, err := marshalRow(cfg)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
INSERT INTO tenant_configs
  (connection_uri_domain, app_id, tenant_id, email_password, third_party, passwordless, core_config,
   app_id_marked_as_deleted, connection_uri_domain_marked_as_deleted)
VALUES ($1,$2,$3,$4,$5,$6,$7,
  EXISTS (SELECT 1 FROM tenant_configs t WHERE t.app_id=$2 AND t.app_id_marked_as_deleted),
  EXISTS (SELECT 1 FROM tenant_configs t WHERE t.connection_uri_domain=$1 AND t.connection_uri_domain_marked_as_deleted))`,
		cfg.Identifier.ConnectionURIDomain(), cfg.Identifier.AppID(), cfg.Identifier.TenantID(),
		ep, tp, pl, cc)
	if isUniqueViolation(err) {
		return tenants.ErrDuplicateTenant
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageQuery, err)
	}
	return nil
}

func (s *PostgresCatalog) OverwriteTenantConfig(ctx context.Context, cfg tenants.TenantConfig) error {
	ep, tp, pl, cc, err := marshalRow(cfg)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
UPDATE tenant_configs
SET email_password=$4, third_party=$5, passwordless=$6, core_config=$7
WHERE connection_uri_domain=$1 AND app_id=$2 AND tenant_id=$3`,
		cfg.Identifier.ConnectionURIDomain(), cfg.Identifier.AppID(), cfg.Identifier.TenantID(),
		ep, tp, pl, cc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageQuery, err)
	}
	if tag.RowsAffected() == 0 {
		return tenants.ErrUnknownTenant
	}
	return nil
}

func (s *PostgresCatalog) DeleteTenant(ctx context.Context, id tenants.Identifier) error {
	tag, err := s.db.Exec(ctx, `
DELETE FROM tenant_configs
WHERE connection_uri_domain=$1 AND app_id=$2 AND tenant_id=$3`,
		id.ConnectionURIDomain(), id.AppID(), id.TenantID())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageQuery, err)
	}
	if tag.RowsAffected() == 0 {
		return tenants.ErrUnknownTenant
	}
	return nil
}

func (s *PostgresCatalog) MarkAppIDAsDeleted(ctx context.Context, appID string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE tenant_configs SET app_id_marked_as_deleted=true WHERE app_id=$1`, appID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageQuery, err)
	}
	return nil
}

func (s *PostgresCatalog) MarkConnectionURIDomainAsDeleted(ctx context.Context, domain string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE tenant_configs SET connection_uri_domain_marked_as_deleted=true WHERE connection_uri_domain=$1`, domain)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageQuery, err)
	}
	return nil
}

// PurgeDeletedRows physically removes soft-deleted rows; the janitor
// cron calls this.
func (s *PostgresCatalog) PurgeDeletedRows(ctx context.Context) (int, error) {
	tag, err := s.db.Exec(ctx, `
DELETE FROM tenant_configs
WHERE app_id_marked_as_deleted OR connection_uri_domain_marked_as_deleted`)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageQuery, err)
	}
	return int(tag.RowsAffected()), nil
}

// PostgresPool is the tenant-targeted store for one physical user pool.
type PostgresPool struct {
	db      *pgxpool.Pool
	catalog *PostgresCatalog
	poolID  string
}

func NewPostgresPool(db *pgxpool.Pool, catalog *PostgresCatalog, poolID string) *PostgresPool {
	return &PostgresPool{db: db, catalog: catalog, poolID: poolID}
}

// EnsurePoolSchema creates the per-pool tables if missing.
func EnsurePoolSchema(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenant_id_in_user_pool (
  connection_uri_domain text NOT NULL,
  app_id text NOT NULL,
  tenant_id text NOT NULL,
  PRIMARY KEY (connection_uri_domain, app_id, tenant_id)
);
CREATE TABLE IF NOT EXISTS pool_users (
  user_id text PRIMARY KEY,
  created_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS roles (
  role text PRIMARY KEY,
  permissions text[] NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS user_tenants (
  user_id text REFERENCES pool_users(user_id) ON DELETE CASCADE,
  connection_uri_domain text NOT NULL,
  app_id text NOT NULL,
  tenant_id text NOT NULL,
  PRIMARY KEY (user_id, connection_uri_domain, app_id, tenant_id)
);
CREATE TABLE IF NOT EXISTS role_tenants (
  role text REFERENCES roles(role) ON DELETE CASCADE,
  connection_uri_domain text NOT NULL,
  app_id text NOT NULL,
  tenant_id text NOT NULL,
  PRIMARY KEY (role, connection_uri_domain, app_id, tenant_id)
);
`)
	return err
}

func (p *PostgresPool) AddTenantIDInUserPool(ctx context.Context, id tenants.Identifier) error {
	var recognized bool
	err := p.catalog.db.QueryRow(ctx, `
SELECT EXISTS (
  SELECT 1 FROM tenant_configs
  WHERE connection_uri_domain=$1 AND app_id=$2
    AND NOT app_id_marked_as_deleted AND NOT connection_uri_domain_marked_as_deleted)`,
		id.ConnectionURIDomain(), id.AppID()).Scan(&recognized)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageQuery, err)
	}
	if !recognized {
		return tenants.ErrTenantOrAppNotFound
	}
	_, err = p.db.Exec(ctx, `
INSERT INTO tenant_id_in_user_pool (connection_uri_domain, app_id, tenant_id)
VALUES ($1,$2,$3) ON CONFLICT DO NOTHING`,
		id.ConnectionURIDomain(), id.AppID(), id.TenantID())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageQuery, err)
	}
	return nil
}

func (p *PostgresPool) DeleteTenantIDInUserPool(ctx context.Context, id tenants.Identifier) error {
	tag, err := p.db.Exec(ctx, `
DELETE FROM tenant_id_in_user_pool
WHERE connection_uri_domain=$1 AND app_id=$2 AND tenant_id=$3`,
		id.ConnectionURIDomain(), id.AppID(), id.TenantID())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageQuery, err)
	}
	if tag.RowsAffected() == 0 {
		return tenants.ErrUnknownTenant
	}
	return nil
}

func (p *PostgresPool) AddUserIDToTenant(ctx context.Context, id tenants.Identifier, userID string) error {
	_, err := p.db.Exec(ctx, `
INSERT INTO user_tenants (user_id, connection_uri_domain, app_id, tenant_id)
VALUES ($1,$2,$3,$4) ON CONFLICT DO NOTHING`,
		userID, id.ConnectionURIDomain(), id.AppID(), id.TenantID())
	if isForeignKeyViolation(err) {
		return tenants.ErrUnknownUserID
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageQuery, err)
	}
	return nil
}

func (p *PostgresPool) AddRoleToTenant(ctx context.Context, id tenants.Identifier, role string) error {
	_, err := p.db.Exec(ctx, `
INSERT INTO role_tenants (role, connection_uri_domain, app_id, tenant_id)
VALUES ($1,$2,$3,$4) ON CONFLICT DO NOTHING`,
		role, id.ConnectionURIDomain(), id.AppID(), id.TenantID())
	if isForeignKeyViolation(err) {
		return tenants.ErrUnknownRole
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageQuery, err)
	}
	return nil
}

func (p *PostgresPool) GetPermissionsForRole(ctx context.Context, role string) ([]string, error) {
	var perms []string
	err := p.db.QueryRow(ctx, `SELECT permissions FROM roles WHERE role=$1`, role).Scan(&perms)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tenants.ErrUnknownRole
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageQuery, err)
	}
	return perms, nil
}

func (p *PostgresPool) CreateOrUpdateRole(ctx context.Context, role string, permissions []string) error {
	_, err := p.db.Exec(ctx, `
INSERT INTO roles (role, permissions) VALUES ($1,$2)
ON CONFLICT (role) DO UPDATE SET permissions=EXCLUDED.permissions`, role, permissions)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageQuery, err)
	}
	return nil
}

// PostgresFactory opens pool handles. Pools without an explicit
// database_url in their core config live on the shared database.
type PostgresFactory struct {
	shared  *pgxpool.Pool
	catalog *PostgresCatalog
	log     *zap.SugaredLogger
}

func NewPostgresFactory(shared *pgxpool.Pool, catalog *PostgresCatalog, log *zap.SugaredLogger) *PostgresFactory {
	return &PostgresFactory{shared: shared, catalog: catalog, log: log}
}

func (f *PostgresFactory) Open(ctx context.Context, poolID string, snap *tenantconfig.Snapshot) (*Handle, error) {
	dsn := snap.String("database_url", "")
	db := f.shared
	var closeFn func() error
	if dsn != "" {
		opened, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := opened.Ping(ctx); err != nil {
			opened.Close()
			return nil, err
		}
		db = opened
		closeFn = func() error { opened.Close(); return nil }
	}
	if err := EnsurePoolSchema(ctx, db); err != nil {
		if closeFn != nil {
			_ = closeFn()
		}
		return nil, err
	}
	pool := NewPostgresPool(db, f.catalog, poolID)
	return &Handle{PoolID: poolID, UserPool: pool, Roles: pool, close: closeFn}, nil
}

func marshalRow(cfg tenants.TenantConfig) (ep, tp, pl, cc []byte, err error) {
	if ep, err = json.Marshal(cfg.EmailPassword); err != nil {
		return
	}
	if tp, err = json.Marshal(cfg.ThirdParty); err != nil {
		return
	}
	if pl, err = json.Marshal(cfg.Passwordless); err != nil {
		return
	}
	if cfg.CoreConfig == nil {
		cc = []byte("{}")
		return
	}
	cc, err = json.Marshal(cfg.CoreConfig)
	return
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
