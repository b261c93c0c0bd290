// Package scheduler hands a production to an external resource scheduler and
// applies the computed dates back to it.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eoyilmaz/stalker-sub003/internal/model"
	"github.com/eoyilmaz/stalker-sub003/internal/task"
)

// Projection is the scheduling-relevant view of one task.
type Projection struct {
	ID                   string                   `json:"id"`
	Name                 string                   `json:"name"`
	Parent               string                   `json:"parent,omitempty"`
	Children             []string                 `json:"children,omitempty"`
	IsMilestone          bool                     `json:"is_milestone,omitempty"`
	Status               model.Status             `json:"status"`
	ScheduleModel        model.ScheduleModel      `json:"schedule_model"`
	ScheduleTiming       float64                  `json:"schedule_timing"`
	ScheduleUnit         model.TimeUnit           `json:"schedule_unit"`
	ScheduleConstraint   model.ScheduleConstraint `json:"schedule_constraint"`
	ScheduleSeconds      float64                  `json:"schedule_seconds"`
	Start                time.Time                `json:"start"`
	End                  time.Time                `json:"end"`
	Resources            []string                 `json:"resources,omitempty"`
	AlternativeResources []string                 `json:"alternative_resources,omitempty"`
	Dependencies         []DependencyProjection   `json:"dependencies,omitempty"`
	Priority             int                      `json:"priority"`
	TimeLogs             []TimeLogProjection      `json:"time_logs,omitempty"`
}

type DependencyProjection struct {
	ID         string                 `json:"id"`
	Target     model.DependencyTarget `json:"target"`
	GapTiming  float64                `json:"gap_timing"`
	GapUnit    model.TimeUnit         `json:"gap_unit"`
	GapModel   model.ScheduleModel    `json:"gap_model"`
	GapSeconds float64                `json:"gap_seconds"`
}

type TimeLogProjection struct {
	Resource string    `json:"resource"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// Result is the scheduler's answer for one task.
type Result struct {
	ID                string    `json:"id"`
	ComputedStart     time.Time `json:"computed_start"`
	ComputedEnd       time.Time `json:"computed_end"`
	ComputedResources []string  `json:"computed_resources,omitempty"`
}

// Scheduler computes dates for a projected production.
type Scheduler interface {
	Schedule(ctx context.Context, production string, tasks []Projection) ([]Result, error)
}

// Func adapts a plain function to the Scheduler interface.
type Func func(ctx context.Context, production string, tasks []Projection) ([]Result, error)

func (f Func) Schedule(ctx context.Context, production string, tasks []Projection) ([]Result, error) {
	return f(ctx, production, tasks)
}

// Project lists every task of p in id order. Completed and stopped tasks are
// included so the scheduler can pin their booked time.
func Project(p *task.Production) []Projection {
	tasks := p.Tasks()
	out := make([]Projection, 0, len(tasks))
	for _, t := range tasks {
		pr := Projection{
			ID:                   t.ID(),
			Name:                 t.Name(),
			Parent:               t.Parent(),
			Children:             t.Children(),
			IsMilestone:          t.IsMilestone(),
			Status:               t.Status(),
			ScheduleModel:        t.ScheduleModel(),
			ScheduleTiming:       t.ScheduleTiming(),
			ScheduleUnit:         t.ScheduleUnit(),
			ScheduleConstraint:   t.ScheduleConstraint(),
			ScheduleSeconds:      t.ScheduleSeconds(),
			Start:                t.Start(),
			End:                  t.End(),
			Resources:            t.Resources(),
			AlternativeResources: t.AlternativeResources(),
			Priority:             t.Priority(),
		}
		for _, d := range p.Dependencies(t.ID()) {
			pr.Dependencies = append(pr.Dependencies, DependencyProjection{
				ID:         d.DependsOnID,
				Target:     d.Target,
				GapTiming:  d.GapTiming,
				GapUnit:    d.GapUnit,
				GapModel:   d.GapModel,
				GapSeconds: d.GapSeconds(p),
			})
		}
		for _, tl := range p.TimeLogs(t.ID()) {
			pr.TimeLogs = append(pr.TimeLogs, TimeLogProjection{Resource: tl.Resource, Start: tl.Start, End: tl.End})
		}
		out = append(out, pr)
	}
	return out
}

// Apply writes results into p. Results for tasks that no longer exist are
// skipped; the number of applied results is returned.
func Apply(p *task.Production, results []Result) (int, error) {
	applied := 0
	for _, r := range results {
		if r.ComputedStart.IsZero() || r.ComputedEnd.IsZero() {
			return applied, fmt.Errorf("result for %s: computed_start and computed_end are required", r.ID)
		}
		err := p.ApplySchedule(r.ID, r.ComputedStart, r.ComputedEnd, r.ComputedResources)
		if errors.Is(err, task.ErrNotFound) {
			continue
		}
		if err != nil {
			return applied, fmt.Errorf("result for %s: %w", r.ID, err)
		}
		applied++
	}
	return applied, nil
}
