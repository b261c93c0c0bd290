package task

import (
	"sort"
	"strings"
	"time"

	"github.com/eoyilmaz/stalker-sub003/internal/events"
	"github.com/eoyilmaz/stalker-sub003/internal/model"
	"github.com/eoyilmaz/stalker-sub003/internal/timing"
)

// Task is a work item of a production. Its fields are only changed through
// Production methods; a *Task handed out by the production always reflects
// the current state.
type Task struct {
	p *Production

	id        string
	name      string
	milestone bool

	timing     float64
	unit       model.TimeUnit
	model      model.ScheduleModel
	constraint model.ScheduleConstraint

	start time.Time
	end   time.Time

	scheduleSeconds float64
	loggedSeconds   float64

	status       model.Status
	priority     int
	reviewNumber int

	resources    []string
	alternatives []string
	computed     []string
	responsible  []string
}

func (t *Task) ID() string                                   { return t.id }
func (t *Task) Name() string                                 { return t.name }
func (t *Task) IsMilestone() bool                            { return t.milestone }
func (t *Task) ScheduleTiming() float64                      { return t.timing }
func (t *Task) ScheduleUnit() model.TimeUnit                 { return t.unit }
func (t *Task) ScheduleModel() model.ScheduleModel           { return t.model }
func (t *Task) ScheduleConstraint() model.ScheduleConstraint { return t.constraint }
func (t *Task) Start() time.Time                             { return t.start }
func (t *Task) End() time.Time                               { return t.end }
func (t *Task) Duration() time.Duration                      { return t.end.Sub(t.start) }
func (t *Task) Status() model.Status                         { return t.status }
func (t *Task) Priority() int                                { return t.priority }
func (t *Task) ReviewNumber() int                            { return t.reviewNumber }

// ScheduleSeconds is the cached schedule in seconds; for a container the sum
// over its children.
func (t *Task) ScheduleSeconds() float64 { return t.scheduleSeconds }

// TotalLoggedSeconds is the cached logged time in seconds; for a container
// the sum over its children.
func (t *Task) TotalLoggedSeconds() float64 { return t.loggedSeconds }

func (t *Task) Resources() []string            { return clone(t.resources) }
func (t *Task) AlternativeResources() []string { return clone(t.alternatives) }
func (t *Task) ComputedResources() []string    { return clone(t.computed) }
func (t *Task) Responsible() []string          { return clone(t.responsible) }

func (t *Task) IsContainer() bool { return t.p.isContainer(t.id) }
func (t *Task) IsLeaf() bool      { return !t.IsContainer() }

// Parent returns the parent id, or "" for a root task.
func (t *Task) Parent() string { return t.p.parentOf(t.id) }

// Children returns the ids of the direct children in sorted order.
func (t *Task) Children() []string { return t.p.children.Successors(t.id) }

// PercentComplete is logged over scheduled time; 0 when nothing is scheduled.
func (t *Task) PercentComplete() float64 {
	if t.scheduleSeconds == 0 {
		return 0
	}
	return t.loggedSeconds / t.scheduleSeconds * 100
}

// RemainingSeconds is the scheduled time not yet logged, never negative.
func (t *Task) RemainingSeconds() float64 {
	if r := t.scheduleSeconds - t.loggedSeconds; r > 0 {
		return r
	}
	return 0
}

// ResolvedResponsible returns the responsible users of the task or, when it
// has none, of its nearest ancestor that has some.
func (t *Task) ResolvedResponsible() []string {
	if len(t.responsible) > 0 {
		return clone(t.responsible)
	}
	for _, id := range t.p.ancestors(t.id) {
		if a := t.p.tasks[id]; len(a.responsible) > 0 {
			return clone(a.responsible)
		}
	}
	return nil
}

func (t *Task) HasTimeLogs() bool { return len(t.p.taskLogs[t.id]) > 0 }

// TaskSpec describes a task to create. Zero values pick the defaults:
// 1 hour of effort, the production's default priority, a default span
// starting now.
type TaskSpec struct {
	ID                   string
	Name                 string
	ParentID             string
	IsMilestone          bool
	ScheduleTiming       float64
	ScheduleUnit         model.TimeUnit
	ScheduleModel        model.ScheduleModel
	ScheduleConstraint   model.ScheduleConstraint
	Start                *time.Time
	End                  *time.Time
	Duration             *time.Duration
	Priority             *int
	Resources            []string
	AlternativeResources []string
	Responsible          []string
	DependsOn            []DependencySpec
}

func (s *TaskSpec) applyDefaults() {
	if s.ScheduleUnit == "" {
		s.ScheduleUnit = model.UnitHour
	}
	if s.ScheduleModel == "" {
		s.ScheduleModel = model.ModelEffort
	}
	if s.ScheduleConstraint == "" {
		s.ScheduleConstraint = model.ConstraintNone
	}
	if s.IsMilestone {
		s.ScheduleTiming = 0
	} else if s.ScheduleTiming == 0 {
		s.ScheduleTiming = 1
	}
}

// CreateTask adds a task. It starts as WFD and is immediately re-evaluated
// against its dependencies.
func (p *Production) CreateTask(spec TaskSpec) (*Task, error) {
	spec.applyDefaults()

	if strings.TrimSpace(spec.Name) == "" {
		return nil, invalid("name", "must not be empty")
	}
	if spec.ID == "" {
		id, err := p.generateID()
		if err != nil {
			return nil, err
		}
		spec.ID = id
	} else if _, exists := p.tasks[spec.ID]; exists {
		return nil, invalid("id", "task %s already exists", spec.ID)
	}
	if err := validateSchedule(spec.ScheduleTiming, spec.ScheduleUnit, spec.ScheduleModel); err != nil {
		return nil, err
	}
	if _, err := model.ParseScheduleConstraint(string(spec.ScheduleConstraint)); err != nil {
		return nil, invalid("schedule_constraint", "%v", err)
	}
	priority := p.defaultPriority
	if spec.Priority != nil {
		priority = *spec.Priority
	}
	if err := validatePriority(priority); err != nil {
		return nil, err
	}
	resources, err := normalizeNames("resources", spec.Resources)
	if err != nil {
		return nil, err
	}
	alternatives, err := normalizeNames("alternative_resources", spec.AlternativeResources)
	if err != nil {
		return nil, err
	}
	responsible, err := normalizeNames("responsible", spec.Responsible)
	if err != nil {
		return nil, err
	}
	if spec.ParentID != "" {
		if _, err := p.checkNewChildOf(spec.ParentID); err != nil {
			return nil, err
		}
	}
	deps := make([]Dependency, 0, len(spec.DependsOn))
	seen := make(map[string]bool, len(spec.DependsOn))
	for _, ds := range spec.DependsOn {
		d, err := p.newDependency(spec.ID, ds)
		if err != nil {
			return nil, err
		}
		if seen[d.DependsOnID] {
			return nil, invalid("depends_on", "%s is listed twice", d.DependsOnID)
		}
		seen[d.DependsOnID] = true
		if err := p.checkNewTaskDependency(spec.ID, spec.ParentID, d.DependsOnID); err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}

	rng := p.settings.Reconcile(spec.Start, spec.End, spec.Duration, p.now())
	t := &Task{
		p:            p,
		id:           spec.ID,
		name:         spec.Name,
		milestone:    spec.IsMilestone,
		timing:       spec.ScheduleTiming,
		unit:         spec.ScheduleUnit,
		model:        spec.ScheduleModel,
		constraint:   spec.ScheduleConstraint,
		start:        rng.Start,
		end:          rng.End,
		status:       model.StatusWaitingForDependency,
		priority:     priority,
		resources:    resources,
		alternatives: alternatives,
		responsible:  responsible,
	}
	p.tasks[t.id] = t
	p.refreshLeaf(t.id)
	p.log(LogLevelDebug, "task=%s created name=%q", t.id, t.name)
	p.notify(events.EventTaskCreated, map[string]interface{}{"task_id": t.id, "name": t.name})

	if spec.ParentID != "" {
		p.attach(spec.ParentID, t.id)
	}
	for i := range deps {
		p.insertDependency(deps[i])
	}
	p.settle(t.id)
	if spec.ParentID != "" {
		p.settle(spec.ParentID)
	}
	return t, nil
}

func (p *Production) generateID() (string, error) {
	id, err := model.GenerateID(model.IDTypeTask)
	if err != nil {
		return "", err
	}
	return id, nil
}

// SetName renames a task.
func (p *Production) SetName(id, name string) error {
	t, err := p.Task(id)
	if err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		return invalid("name", "must not be empty")
	}
	t.name = name
	return nil
}

// SetSchedule changes the timing of a task. A container keeps the value for
// when it turns back into a leaf but its aggregates stay derived from its
// children.
func (p *Production) SetSchedule(id string, timingValue float64, unit model.TimeUnit, m model.ScheduleModel) error {
	t, err := p.Task(id)
	if err != nil {
		return err
	}
	if t.milestone && timingValue != 0 {
		return invalid("schedule_timing", "milestones have no timing")
	}
	if !t.milestone {
		if err := validatePositiveTiming(timingValue); err != nil {
			return err
		}
	}
	if err := validateSchedule(timingValue, unit, m); err != nil {
		return err
	}
	t.timing, t.unit, t.model = timingValue, unit, m
	if !p.isContainer(id) {
		p.refreshLeaf(id)
	}
	p.log(LogLevelDebug, "task=%s schedule=%g%s model=%s", id, timingValue, unit, m)
	p.notify(events.EventScheduleChanged, map[string]interface{}{
		"task_id": id, "schedule_timing": timingValue, "schedule_unit": string(unit), "schedule_model": string(m),
	})
	return nil
}

// SetConstraint changes which boundary the external scheduler must keep.
func (p *Production) SetConstraint(id string, c model.ScheduleConstraint) error {
	t, err := p.Task(id)
	if err != nil {
		return err
	}
	parsed, err := model.ParseScheduleConstraint(string(c))
	if err != nil {
		return invalid("schedule_constraint", "%v", err)
	}
	t.constraint = parsed
	return nil
}

// SetStart moves the start of a leaf; end is re-derived from the previous
// end and duration.
func (p *Production) SetStart(id string, start time.Time) error {
	t, err := p.leafForRange(id)
	if err != nil {
		return err
	}
	p.applyRange(t, p.settings.WithStart(t.dateRange(), start))
	return nil
}

// SetEnd moves the end of a leaf, keeping its start.
func (p *Production) SetEnd(id string, end time.Time) error {
	t, err := p.leafForRange(id)
	if err != nil {
		return err
	}
	p.applyRange(t, p.settings.WithEnd(t.dateRange(), end))
	return nil
}

// SetDuration keeps the start of a leaf and moves its end.
func (p *Production) SetDuration(id string, d time.Duration) error {
	t, err := p.leafForRange(id)
	if err != nil {
		return err
	}
	p.applyRange(t, p.settings.WithDuration(t.dateRange(), d))
	return nil
}

func (p *Production) leafForRange(id string) (*Task, error) {
	t, err := p.Task(id)
	if err != nil {
		return nil, err
	}
	if p.isContainer(id) {
		return nil, invalid("start", "the date range of container %s is derived from its children", id)
	}
	return t, nil
}

func (t *Task) dateRange() timing.Range {
	return timing.Range{Start: t.start, End: t.end, Duration: t.end.Sub(t.start)}
}

func (p *Production) applyRange(t *Task, r timing.Range) {
	t.start, t.end = r.Start, r.End
	p.refreshLeaf(t.id)
	p.refreshEnvelope(p.parentOf(t.id))
	p.notify(events.EventScheduleChanged, map[string]interface{}{
		"task_id": t.id, "start": t.start, "end": t.end,
	})
}

// SetResources replaces the resources of a leaf.
func (p *Production) SetResources(id string, resources, alternatives []string) error {
	t, err := p.Task(id)
	if err != nil {
		return err
	}
	if p.isContainer(id) && (len(resources) > 0 || len(alternatives) > 0) {
		return invalid("resources", "container %s cannot hold resources", id)
	}
	res, err := normalizeNames("resources", resources)
	if err != nil {
		return err
	}
	alt, err := normalizeNames("alternative_resources", alternatives)
	if err != nil {
		return err
	}
	t.resources, t.alternatives = res, alt
	return nil
}

// SetResponsible replaces the responsible users; an empty list falls back to
// the nearest ancestor's at read time.
func (p *Production) SetResponsible(id string, users []string) error {
	t, err := p.Task(id)
	if err != nil {
		return err
	}
	res, err := normalizeNames("responsible", users)
	if err != nil {
		return err
	}
	t.responsible = res
	return nil
}

func (p *Production) SetPriority(id string, priority int) error {
	t, err := p.Task(id)
	if err != nil {
		return err
	}
	if err := validatePriority(priority); err != nil {
		return err
	}
	t.priority = priority
	return nil
}

// ApplySchedule accepts a result of the external scheduler as authoritative.
// Containers ignore start and end since those follow their children.
func (p *Production) ApplySchedule(id string, start, end time.Time, computed []string) error {
	t, err := p.Task(id)
	if err != nil {
		return err
	}
	if p.isContainer(id) {
		return nil
	}
	names, err := normalizeNames("computed_resources", computed)
	if err != nil {
		return err
	}
	t.computed = names
	p.applyRange(t, p.settings.Reconcile(&start, &end, nil, p.now()))
	return nil
}

// DeleteTask removes a task together with its children, their time logs,
// reviews and dependency edges. Time logs are released from the backstop
// one by one before anything else changes; when a release fails the engine
// is untouched but earlier releases are not undone, so the caller must roll
// back the backstop's transaction.
func (p *Production) DeleteTask(id string) error {
	if _, err := p.Task(id); err != nil {
		return err
	}
	doomed := p.subtree(id)
	if p.backstop != nil {
		for _, tid := range doomed {
			for _, lid := range sortedSet(p.taskLogs[tid]) {
				if err := p.backstop.Release(lid); err != nil {
					return err
				}
			}
		}
	}

	parent := p.parentOf(id)
	var before model.Status
	if parent != "" {
		before = p.tasks[parent].status
		p.detach(parent, id)
	}

	gone := make(map[string]bool, len(doomed))
	for _, tid := range doomed {
		gone[tid] = true
	}
	var affected []string
	for i := len(doomed) - 1; i >= 0; i-- {
		tid := doomed[i]
		for _, dependent := range p.depends.Predecessors(tid) {
			if !gone[dependent] {
				affected = append(affected, dependent)
			}
		}
		for _, dep := range p.depends.Successors(tid) {
			delete(p.dependencies, depKey{tid, dep})
		}
		for _, dependent := range p.depends.Predecessors(tid) {
			delete(p.dependencies, depKey{dependent, tid})
		}
		p.depends.RemoveNode(tid)
		p.children.RemoveNode(tid)
		for _, lid := range sortedSet(p.taskLogs[tid]) {
			p.dropTimeLog(lid)
		}
		delete(p.taskLogs, tid)
		for _, rid := range p.taskReviews[tid] {
			delete(p.reviews, rid)
		}
		delete(p.taskReviews, tid)
		delete(p.tasks, tid)
		p.log(LogLevelDebug, "task=%s deleted", tid)
		p.notify(events.EventTaskDeleted, map[string]interface{}{"task_id": tid})
	}

	if parent != "" {
		affected = append(affected, parent)
	}
	p.settle(affected...)
	p.settleFormerParent(parent, before)
	return nil
}

func validateSchedule(timingValue float64, unit model.TimeUnit, m model.ScheduleModel) error {
	if timingValue < 0 {
		return invalid("schedule_timing", "must not be negative, got %g", timingValue)
	}
	if !unit.IsValid() {
		return invalid("schedule_unit", "unknown time unit %q", unit)
	}
	if !m.IsValid() {
		return invalid("schedule_model", "unknown schedule model %q", m)
	}
	return nil
}

// validatePositiveTiming rejects a caller supplied timing that is not positive.
func validatePositiveTiming(timingValue float64) error {
	if timingValue <= 0 {
		return invalid("schedule_timing", "must be positive, got %g", timingValue)
	}
	return nil
}

func validatePriority(priority int) error {
	if priority < 0 || priority > MaxPriority {
		return invalid("priority", "must be between 0 and %d, got %d", MaxPriority, priority)
	}
	return nil
}

// normalizeNames trims, dedupes and sorts a list of identifiers.
func normalizeNames(field string, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			return nil, invalid(field, "must not contain empty names")
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func clone(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return append([]string(nil), s...)
}

func sortedSet(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
