package task

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/eoyilmaz/stalker-sub003/internal/events"
	"github.com/eoyilmaz/stalker-sub003/internal/model"
)

// TimeLog books a resource on a leaf task for [Start, End).
type TimeLog struct {
	ID       string    `yaml:"id" json:"id"`
	TaskID   string    `yaml:"task_id" json:"task_id"`
	Resource string    `yaml:"resource" json:"resource"`
	Start    time.Time `yaml:"start" json:"start"`
	End      time.Time `yaml:"end" json:"end"`
}

func (tl TimeLog) Seconds() float64 { return tl.End.Sub(tl.Start).Seconds() }

// overlaps applies the booking collision rule to two half-open intervals.
func overlaps(existing TimeLog, start, end time.Time) bool {
	startsInside := !start.Before(existing.Start) && start.Before(existing.End)
	endsInside := end.After(existing.Start) && !end.After(existing.End)
	covers := !start.After(existing.Start) && !end.Before(existing.End)
	return startsInside || endsInside || covers
}

// CreateTimeLog books resource on taskID between start and end. The task
// moves to WIP when it was RTS or HREV.
func (p *Production) CreateTimeLog(taskID, resource string, start, end time.Time) (*TimeLog, error) {
	t, err := p.bookableTask(taskID, model.OpCreateTimeLog)
	if err != nil {
		return nil, err
	}
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return nil, invalid("resource", "must not be empty")
	}
	id, err := model.GenerateID(model.IDTypeTimeLog)
	if err != nil {
		return nil, err
	}
	tl := TimeLog{ID: id, TaskID: taskID, Resource: resource, Start: start, End: end}
	if err := p.checkBooking(tl); err != nil {
		p.log(LogLevelInfo, "task=%s resource=%s booking rejected: %v", taskID, resource, err)
		return nil, err
	}

	p.timeLogs[id] = &tl
	index(p.taskLogs, taskID, id)
	index(p.resourceLogs, resource, id)
	p.refreshLeaf(taskID)
	p.log(LogLevelDebug, "task=%s time log %s %s %s..%s", taskID, id, resource,
		start.Format(time.RFC3339), end.Format(time.RFC3339))
	p.notify(events.EventTimeLogCreated, map[string]interface{}{
		"task_id": taskID, "time_log_id": id, "resource": resource, "start": start, "end": end,
	})

	if t.status == model.StatusReadyToStart || t.status == model.StatusHasRevision {
		if p.setStatus(t, model.StatusWorkInProgress) {
			p.propagate(taskID)
		}
	}
	out := tl
	return &out, nil
}

// ResizeTimeLog moves the boundaries of an existing booking.
func (p *Production) ResizeTimeLog(id string, start, end time.Time) error {
	tl, ok := p.timeLogs[id]
	if !ok {
		return notFound("time log", id)
	}
	resized := *tl
	resized.Start, resized.End = start, end
	if err := p.checkBooking(resized); err != nil {
		p.log(LogLevelInfo, "time log %s resize rejected: %v", id, err)
		return err
	}
	tl.Start, tl.End = start, end
	p.refreshLeaf(tl.TaskID)
	p.notify(events.EventTimeLogResized, map[string]interface{}{
		"task_id": tl.TaskID, "time_log_id": id, "start": start, "end": end,
	})
	return nil
}

// DeleteTimeLog removes a booking. A WIP task left without bookings falls
// back to RTS and is reconciled with its dependencies.
func (p *Production) DeleteTimeLog(id string) error {
	tl, ok := p.timeLogs[id]
	if !ok {
		return notFound("time log", id)
	}
	t := p.tasks[tl.TaskID]
	if !model.CanApply(model.OpDeleteTimeLog, t.status) {
		return statusError(t, model.OpDeleteTimeLog)
	}
	if p.backstop != nil {
		if err := p.backstop.Release(id); err != nil {
			return fmt.Errorf("release time log %s: %w", id, err)
		}
	}
	taskID := tl.TaskID
	p.dropTimeLog(id)
	p.refreshLeaf(taskID)
	p.notify(events.EventTimeLogDeleted, map[string]interface{}{"task_id": taskID, "time_log_id": id})

	if t.status == model.StatusWorkInProgress && !t.HasTimeLogs() {
		if p.setStatus(t, model.StatusReadyToStart) {
			p.settle(taskID)
			p.propagate(taskID)
		}
	}
	return nil
}

// TimeLog returns a copy of the booking with the given id.
func (p *Production) TimeLog(id string) (TimeLog, error) {
	tl, ok := p.timeLogs[id]
	if !ok {
		return TimeLog{}, notFound("time log", id)
	}
	return *tl, nil
}

// TimeLogs returns the bookings of a task ordered by start.
func (p *Production) TimeLogs(taskID string) []TimeLog {
	return p.collectLogs(p.taskLogs[taskID])
}

// ResourceTimeLogs returns the bookings of a resource ordered by start.
func (p *Production) ResourceTimeLogs(resource string) []TimeLog {
	return p.collectLogs(p.resourceLogs[resource])
}

// AllTimeLogs returns every booking ordered by start.
func (p *Production) AllTimeLogs() []TimeLog {
	out := make([]TimeLog, 0, len(p.timeLogs))
	for _, tl := range p.timeLogs {
		out = append(out, *tl)
	}
	sortLogs(out)
	return out
}

func (p *Production) collectLogs(ids map[string]struct{}) []TimeLog {
	out := make([]TimeLog, 0, len(ids))
	for id := range ids {
		out = append(out, *p.timeLogs[id])
	}
	sortLogs(out)
	return out
}

func sortLogs(logs []TimeLog) {
	sort.Slice(logs, func(i, j int) bool {
		if !logs[i].Start.Equal(logs[j].Start) {
			return logs[i].Start.Before(logs[j].Start)
		}
		return logs[i].ID < logs[j].ID
	})
}

// bookableTask checks that taskID is a leaf in a status op allows.
func (p *Production) bookableTask(taskID string, op model.Operation) (*Task, error) {
	t, err := p.Task(taskID)
	if err != nil {
		return nil, err
	}
	if p.isContainer(taskID) {
		return nil, invalid("task", "%s is a container; time can only be logged on leaf tasks", taskID)
	}
	if !model.CanApply(op, t.status) {
		return nil, statusError(t, op)
	}
	return t, nil
}

// checkBooking validates the final state of a new or resized booking:
// its range, the dependency boundaries, other bookings of the same resource
// and finally the persistence backstop.
func (p *Production) checkBooking(tl TimeLog) error {
	if !tl.End.After(tl.Start) {
		return invalid("end", "must be after start (%s)", tl.Start.Format(time.RFC3339))
	}
	for _, d := range p.Dependencies(tl.TaskID) {
		dep := p.tasks[d.DependsOnID]
		boundary := dep.end
		if d.Target == model.TargetOnStart {
			boundary = dep.start
		}
		if tl.Start.Before(boundary) {
			return &DependencyViolationError{
				TaskID:      tl.TaskID,
				DependsOnID: d.DependsOnID,
				Target:      string(d.Target),
				Boundary:    boundary,
				Start:       tl.Start,
			}
		}
	}
	for id := range p.resourceLogs[tl.Resource] {
		if id == tl.ID {
			continue
		}
		if existing := p.timeLogs[id]; overlaps(*existing, tl.Start, tl.End) {
			return &OverBookedError{
				Resource:   tl.Resource,
				Start:      tl.Start,
				End:        tl.End,
				ConflictID: id,
			}
		}
	}
	if p.backstop != nil {
		if err := p.backstop.Reserve(tl); err != nil {
			if errors.Is(err, ErrBookingConflict) {
				return &OverBookedError{Resource: tl.Resource, Start: tl.Start, End: tl.End, Err: err}
			}
			return fmt.Errorf("reserve time log %s: %w", tl.ID, err)
		}
	}
	return nil
}

// dropTimeLog removes a booking from every index without touching the
// aggregates.
func (p *Production) dropTimeLog(id string) {
	tl, ok := p.timeLogs[id]
	if !ok {
		return
	}
	unindex(p.taskLogs, tl.TaskID, id)
	unindex(p.resourceLogs, tl.Resource, id)
	delete(p.timeLogs, id)
}

func index(idx map[string]map[string]struct{}, key, id string) {
	if idx[key] == nil {
		idx[key] = make(map[string]struct{})
	}
	idx[key][id] = struct{}{}
}

func unindex(idx map[string]map[string]struct{}, key, id string) {
	delete(idx[key], id)
	if len(idx[key]) == 0 {
		delete(idx, key)
	}
}

func statusError(t *Task, op model.Operation) *StatusError {
	allowed := model.AllowedFrom(op)
	names := make([]string, 0, len(allowed))
	for _, s := range allowed {
		names = append(names, string(s))
	}
	return &StatusError{ID: t.id, Operation: string(op), Status: string(t.status), Allowed: names}
}
