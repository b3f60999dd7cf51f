package cron

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"authcore/pkg/tenants"
)

// Job is one piece of recurring work. Run receives the identifiers the
// scheduler currently knows about.
type Job interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context, ids []tenants.Identifier) error
}

// funcJob adapts a bare function to the Job interface.
type funcJob struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context, ids []tenants.Identifier) error
}

func NewFunc(name string, interval time.Duration, fn func(ctx context.Context, ids []tenants.Identifier) error) Job {
	return &funcJob{name: name, interval: interval, fn: fn}
}

func (j *funcJob) Name() string            { return j.name }
func (j *funcJob) Interval() time.Duration { return j.interval }
func (j *funcJob) Run(ctx context.Context, ids []tenants.Identifier) error {
	return j.fn(ctx, ids)
}

// Scheduler owns recurring jobs and the tenant list they operate over.
// SetTenantsInfo is a total replacement of that list; jobs pick up the
// new set on their next tick.
type Scheduler struct {
	log *zap.SugaredLogger

	mu      sync.Mutex
	ids     []tenants.Identifier
	jobs    []Job
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func NewScheduler(log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{log: log, ids: []tenants.Identifier{tenants.DefaultIdentifier()}}
}

// Register adds a job. Must be called before Start.
func (s *Scheduler) Register(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
}

// SetTenantsInfo replaces the scheduler's known tenant set. Idempotent.
func (s *Scheduler) SetTenantsInfo(ids []tenants.Identifier) {
	copied := make([]tenants.Identifier, len(ids))
	copy(copied, ids)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = copied
}

// TenantsInfo returns the current tenant set snapshot.
func (s *Scheduler) TenantsInfo() []tenants.Identifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]tenants.Identifier, len(s.ids))
	copy(out, s.ids)
	return out
}

// Start launches one ticker goroutine per registered job.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.started = true
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
}

// Stop cancels every job loop and waits for them to drain.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.started = false
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()
	ticker := time.NewTicker(job.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := job.Run(ctx, s.TenantsInfo()); err != nil {
				s.log.Errorw("cron job failed", "job", job.Name(), "err", err)
			}
		}
	}
}
