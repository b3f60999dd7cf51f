package multitenancy

import "errors"

var (
	// ErrDefaultTenantProtected rejects deletion of the always-present
	// default tenant (or of the default app / connection-URI domain, which
	// would soft-delete it transitively).
	ErrDefaultTenantProtected = errors.New("the default tenant cannot be deleted")

	// ErrDefaultTenantRequired rejects app-level operations invoked from a
	// non-default tenant.
	ErrDefaultTenantRequired = errors.New("operation requires the default tenant")

	// ErrDefaultAppRequired rejects domain-level operations invoked from a
	// non-default app.
	ErrDefaultAppRequired = errors.New("operation requires the default app")

	// ErrDefaultConnectionURIDomainRequired rejects core-level queries
	// invoked from a non-default connection-URI domain.
	ErrDefaultConnectionURIDomainRequired = errors.New("operation requires the default connection-uri domain")

	// ErrSameTenantMove rejects user/role association where source and
	// target tenant are identical.
	ErrSameTenantMove = errors.New("source and target tenant are the same")

	// ErrRetriesExhausted is returned when the add-or-update recovery
	// protocol ran out of attempts against a concurrently mutating catalog.
	ErrRetriesExhausted = errors.New("tenant write retries exhausted")
)
