package tenants

// Identifier locates a tenant inside the three-level hierarchy: a
// connection-URI domain owns apps, an app owns tenants. Build values
// with NewIdentifier or DefaultIdentifier: the zero value has empty app
// and tenant components and is not equal to the default identifier.
//
// Identifiers are immutable values, comparable with == and usable as
// map keys.
type Identifier struct {
	connectionURIDomain string
	appID               string
	tenantID            string
}

const (
	DefaultConnectionURIDomain = ""
	DefaultAppID               = "public"
	DefaultTenantID            = "public"
)

// NewIdentifier normalizes each component: an empty string selects the
// well-known default for that level.
func NewIdentifier(connectionURIDomain, appID, tenantID string) Identifier {
	if appID == "" {
		appID = DefaultAppID
	}
	if tenantID == "" {
		tenantID = DefaultTenantID
	}
	return Identifier{
		connectionURIDomain: connectionURIDomain,
		appID:               appID,
		tenantID:            tenantID,
	}
}

// DefaultIdentifier returns the identifier of the always-present default tenant.
func DefaultIdentifier() Identifier {
	return NewIdentifier("", "", "")
}

func (i Identifier) ConnectionURIDomain() string { return i.connectionURIDomain }
func (i Identifier) AppID() string               { return i.appID }
func (i Identifier) TenantID() string            { return i.tenantID }

func (i Identifier) IsDefaultTenant() bool { return i.tenantID == DefaultTenantID }
func (i Identifier) IsDefaultApp() bool    { return i.appID == DefaultAppID }
func (i Identifier) IsDefaultConnectionURIDomain() bool {
	return i.connectionURIDomain == DefaultConnectionURIDomain
}

// WithTenantID returns a copy with only the tenant component replaced.
func (i Identifier) WithTenantID(tenantID string) Identifier {
	return NewIdentifier(i.connectionURIDomain, i.appID, tenantID)
}

func (i Identifier) String() string {
	cud := i.connectionURIDomain
	if cud == "" {
		cud = "<default>"
	}
	return cud + "/" + i.appID + "/" + i.tenantID
}

// EmailPasswordConfig toggles the email-password recipe for a tenant.
type EmailPasswordConfig struct {
	Enabled bool `json:"enabled"`
}

// ThirdPartyProvider is opaque to the control plane; it is stored and
// handed to the third-party recipe as-is.
type ThirdPartyProvider struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ThirdPartyConfig struct {
	Enabled   bool                 `json:"enabled"`
	Providers []ThirdPartyProvider `json:"providers,omitempty"`
}

type PasswordlessConfig struct {
	Enabled bool `json:"enabled"`
}

// CoreConfig is the per-tenant structured configuration document. It is
// merged over the process base config and may carry the user-pool
// selector that routes the tenant to a physical database.
type CoreConfig map[string]any

// Clone returns a shallow copy; values are treated as immutable.
func (c CoreConfig) Clone() CoreConfig {
	if c == nil {
		return nil
	}
	out := make(CoreConfig, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// TenantConfig is one catalog row: the tenant identity, its recipe
// enablement, its core config, and the soft-delete markers of its
// parents.
type TenantConfig struct {
	Identifier    Identifier
	EmailPassword EmailPasswordConfig
	ThirdParty    ThirdPartyConfig
	Passwordless  PasswordlessConfig
	CoreConfig    CoreConfig

	AppIDMarkedAsDeleted               bool
	ConnectionURIDomainMarkedAsDeleted bool
}

// Visible reports whether neither parent soft-delete flag is set.
func (t TenantConfig) Visible() bool {
	return !t.AppIDMarkedAsDeleted && !t.ConnectionURIDomainMarkedAsDeleted
}
