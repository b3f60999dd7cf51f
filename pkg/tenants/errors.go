package tenants

import "errors"

// Catalog and tenant-scoped error kinds. Admin flows recover from some
// of these internally; the rest are returned to the caller as-is.
var (
	// ErrDuplicateTenant is returned by CreateTenant on an identifier collision.
	ErrDuplicateTenant = errors.New("tenant already exists")

	// ErrUnknownTenant is returned when an identifier is absent from the catalog.
	ErrUnknownTenant = errors.New("unknown tenant")

	// ErrTenantOrAppNotFound is returned by tenant-targeted operations when
	// the hosting database no longer recognizes the hierarchical parent.
	ErrTenantOrAppNotFound = errors.New("tenant or app not found")

	// ErrUnknownUserID is returned when a user id does not exist in the
	// tenant's user pool.
	ErrUnknownUserID = errors.New("unknown user id")

	// ErrUnknownRole is returned when a role does not exist in the tenant's
	// user pool.
	ErrUnknownRole = errors.New("unknown role")
)
