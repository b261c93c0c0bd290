package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/eoyilmaz/stalker-sub003/internal/task"
)

// Store is the persistence the runner reads from and writes results to.
type Store interface {
	Load(ctx context.Context) (*task.Production, error)
	Update(ctx context.Context, fn func(*task.Production) error) error
}

// Report summarizes one scheduling run.
type Report struct {
	Production string
	Projected  int
	Applied    int
	Elapsed    time.Duration
}

// Runner projects a stored production, calls the scheduler and applies the
// results in a single update. Concurrent runs for the same production share
// one scheduler call.
type Runner struct {
	store     Store
	scheduler Scheduler
	logger    *log.Logger
	group     singleflight.Group
}

func NewRunner(store Store, s Scheduler, logger *log.Logger) *Runner {
	return &Runner{store: store, scheduler: s, logger: logger}
}

func (r *Runner) Run(ctx context.Context) (*Report, error) {
	p, err := r.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load production: %w", err)
	}
	v, err, shared := r.group.Do(p.Name(), func() (interface{}, error) {
		return r.run(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.logf("production[%s]: joined a running schedule", p.Name())
	}
	return v.(*Report), nil
}

func (r *Runner) run(ctx context.Context, p *task.Production) (*Report, error) {
	began := time.Now()
	tasks := Project(p)
	report := &Report{Production: p.Name(), Projected: len(tasks)}

	results, err := r.scheduler.Schedule(ctx, p.Name(), tasks)
	if err != nil {
		r.logf("production[%s]: schedule failed: %v", p.Name(), err)
		return nil, err
	}

	err = r.store.Update(ctx, func(current *task.Production) error {
		n, err := Apply(current, results)
		report.Applied = n
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("apply schedule: %w", err)
	}
	report.Elapsed = time.Since(began)
	r.logf("production[%s]: scheduled %d of %d tasks in %v", p.Name(), report.Applied, report.Projected, report.Elapsed)
	return report, nil
}

func (r *Runner) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}
