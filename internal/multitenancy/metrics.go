package multitenancy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconcileTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authcore_tenant_reconcile_total",
		Help: "Catalog reconcile passes.",
	})
	reconcileChanged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authcore_tenant_reconcile_changed_total",
		Help: "Reconcile passes that detected catalog drift and reloaded the fleet.",
	})
	adminMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_tenant_admin_mutations_total",
		Help: "Tenant admin mutations by operation.",
	}, []string{"op"})
)
