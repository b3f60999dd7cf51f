package cron

import (
	"context"
	"time"

	"go.uber.org/zap"

	"authcore/pkg/tenants"
)

// Purger is the catalog surface the janitor needs: physical removal of
// soft-deleted rows.
type Purger interface {
	PurgeDeletedRows(ctx context.Context) (int, error)
}

// Janitor physically removes the catalog rows of apps and
// connection-URI domains that were soft-deleted by the admin API.
// Deletion marks rows first; this job does the destructive part out of
// band. Data inside the user pools is not touched.
type Janitor struct {
	log      *zap.SugaredLogger
	purger   Purger
	interval time.Duration
}

func NewJanitor(log *zap.SugaredLogger, purger Purger, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{log: log, purger: purger, interval: interval}
}

func (j *Janitor) Name() string            { return "janitor" }
func (j *Janitor) Interval() time.Duration { return j.interval }

func (j *Janitor) Run(ctx context.Context, ids []tenants.Identifier) error {
	n, err := j.purger.PurgeDeletedRows(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		j.log.Infow("janitor purged soft-deleted rows", "rows", n, "tenants", len(ids))
	}
	return nil
}
