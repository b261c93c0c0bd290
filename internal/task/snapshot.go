package task

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/eoyilmaz/stalker-sub003/internal/graph"
	"github.com/eoyilmaz/stalker-sub003/internal/model"
)

const (
	SnapshotSchemaVersion = 1
	SnapshotFileType      = "production_snapshot"
)

// Snapshot is the persisted form of a production. The cached seconds of each
// task travel with it and are verified on Restore.
type Snapshot struct {
	SchemaVersion int          `yaml:"schema_version" json:"schema_version"`
	FileType      string       `yaml:"file_type" json:"file_type"`
	Name          string       `yaml:"name" json:"name"`
	SavedAt       time.Time    `yaml:"saved_at" json:"saved_at"`
	Tasks         []TaskRecord `yaml:"tasks" json:"tasks"`
	Dependencies  []Dependency `yaml:"dependencies" json:"dependencies"`
	TimeLogs      []TimeLog    `yaml:"time_logs" json:"time_logs"`
	Reviews       []Review     `yaml:"reviews" json:"reviews"`
}

type TaskRecord struct {
	ID                   string                   `yaml:"id" json:"id"`
	Name                 string                   `yaml:"name" json:"name"`
	ParentID             string                   `yaml:"parent_id,omitempty" json:"parent_id,omitempty"`
	IsMilestone          bool                     `yaml:"is_milestone,omitempty" json:"is_milestone,omitempty"`
	ScheduleTiming       float64                  `yaml:"schedule_timing" json:"schedule_timing"`
	ScheduleUnit         model.TimeUnit           `yaml:"schedule_unit" json:"schedule_unit"`
	ScheduleModel        model.ScheduleModel      `yaml:"schedule_model" json:"schedule_model"`
	ScheduleConstraint   model.ScheduleConstraint `yaml:"schedule_constraint" json:"schedule_constraint"`
	Start                time.Time                `yaml:"start" json:"start"`
	End                  time.Time                `yaml:"end" json:"end"`
	ScheduleSeconds      float64                  `yaml:"schedule_seconds" json:"schedule_seconds"`
	TotalLoggedSeconds   float64                  `yaml:"total_logged_seconds" json:"total_logged_seconds"`
	Status               model.Status             `yaml:"status" json:"status"`
	Priority             int                      `yaml:"priority" json:"priority"`
	ReviewNumber         int                      `yaml:"review_number,omitempty" json:"review_number,omitempty"`
	Resources            []string                 `yaml:"resources,omitempty" json:"resources,omitempty"`
	AlternativeResources []string                 `yaml:"alternative_resources,omitempty" json:"alternative_resources,omitempty"`
	ComputedResources    []string                 `yaml:"computed_resources,omitempty" json:"computed_resources,omitempty"`
	Responsible          []string                 `yaml:"responsible,omitempty" json:"responsible,omitempty"`
}

// Snapshot captures the whole production.
func (p *Production) Snapshot() Snapshot {
	s := Snapshot{
		SchemaVersion: SnapshotSchemaVersion,
		FileType:      SnapshotFileType,
		Name:          p.name,
		SavedAt:       p.now().UTC(),
		Dependencies:  p.AllDependencies(),
		TimeLogs:      p.AllTimeLogs(),
	}
	for _, t := range p.Tasks() {
		s.Tasks = append(s.Tasks, TaskRecord{
			ID:                   t.id,
			Name:                 t.name,
			ParentID:             p.parentOf(t.id),
			IsMilestone:          t.milestone,
			ScheduleTiming:       t.timing,
			ScheduleUnit:         t.unit,
			ScheduleModel:        t.model,
			ScheduleConstraint:   t.constraint,
			Start:                t.start,
			End:                  t.end,
			ScheduleSeconds:      t.scheduleSeconds,
			TotalLoggedSeconds:   t.loggedSeconds,
			Status:               t.status,
			Priority:             t.priority,
			ReviewNumber:         t.reviewNumber,
			Resources:            clone(t.resources),
			AlternativeResources: clone(t.alternatives),
			ComputedResources:    clone(t.computed),
			Responsible:          clone(t.responsible),
		})
		s.Reviews = append(s.Reviews, p.Reviews(t.id)...)
	}
	return s
}

// Restore rebuilds a production from a snapshot. Every problem found is
// reported at once as *ValidationErrors. Cached aggregates and container
// statuses are re-derived; leaf statuses are taken as stored.
func Restore(s Snapshot, opts ...Option) (*Production, error) {
	if err := validateSnapshot(s); err != nil {
		return nil, err
	}

	p := New(s.Name, opts...)
	for _, r := range s.Tasks {
		p.tasks[r.ID] = &Task{
			p:               p,
			id:              r.ID,
			name:            r.Name,
			milestone:       r.IsMilestone,
			timing:          r.ScheduleTiming,
			unit:            r.ScheduleUnit,
			model:           r.ScheduleModel,
			constraint:      r.ScheduleConstraint,
			start:           r.Start,
			end:             r.End,
			scheduleSeconds: r.ScheduleSeconds,
			loggedSeconds:   r.TotalLoggedSeconds,
			status:          r.Status,
			priority:        r.Priority,
			reviewNumber:    r.ReviewNumber,
			resources:       clone(r.Resources),
			alternatives:    clone(r.AlternativeResources),
			computed:        clone(r.ComputedResources),
			responsible:     clone(r.Responsible),
		}
		if r.ParentID != "" {
			p.children.Add(r.ParentID, r.ID)
		}
	}
	for _, d := range s.Dependencies {
		if d.Target == "" {
			d.Target = model.TargetOnEnd
		}
		d := d
		p.depends.Add(d.TaskID, d.DependsOnID)
		p.dependencies[depKey{d.TaskID, d.DependsOnID}] = &d
	}
	for _, tl := range s.TimeLogs {
		tl := tl
		p.timeLogs[tl.ID] = &tl
		index(p.taskLogs, tl.TaskID, tl.ID)
		index(p.resourceLogs, tl.Resource, tl.ID)
	}
	reviews := append([]Review(nil), s.Reviews...)
	sort.SliceStable(reviews, func(i, j int) bool { return reviews[i].CreatedAt.Before(reviews[j].CreatedAt) })
	for _, r := range reviews {
		r := r
		p.reviews[r.ID] = &r
		p.taskReviews[r.TaskID] = append(p.taskReviews[r.TaskID], r.ID)
	}

	if p.RecomputeAggregates() {
		p.log(LogLevelWarn, "snapshot %s carried stale aggregates", s.Name)
	}

	// children come before their parents in this order
	order, err := graph.TopoSort(p.taskIDs(), p.children)
	if err != nil {
		return nil, err
	}
	for _, id := range order {
		if !p.isContainer(id) {
			continue
		}
		p.refreshEnvelope(id)
		p.updateContainerStatus(p.tasks[id])
	}
	return p, nil
}

func (p *Production) taskIDs() []string {
	ids := make([]string, 0, len(p.tasks))
	for id := range p.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func validateSnapshot(s Snapshot) error {
	ve := &ValidationErrors{}
	if s.SchemaVersion < 1 || s.SchemaVersion > SnapshotSchemaVersion {
		ve.Add("schema_version", fmt.Sprintf("unsupported schema_version %d (max supported: %d)", s.SchemaVersion, SnapshotSchemaVersion))
	}
	if s.FileType != SnapshotFileType {
		ve.Add("file_type", fmt.Sprintf("got %q, expected %q", s.FileType, SnapshotFileType))
	}

	ids := make(map[string]bool, len(s.Tasks))
	for i, t := range s.Tasks {
		field := fmt.Sprintf("tasks[%d]", i)
		switch {
		case t.ID == "":
			ve.Add(field+".id", "must not be empty")
		case ids[t.ID]:
			ve.Add(field+".id", fmt.Sprintf("duplicate task id %s", t.ID))
		}
		ids[t.ID] = true
		if strings.TrimSpace(t.Name) == "" {
			ve.Add(field+".name", "must not be empty")
		}
		if err := validateSchedule(t.ScheduleTiming, t.ScheduleUnit, t.ScheduleModel); err != nil {
			addValidation(ve, field, err)
		}
		if !t.Status.IsValid() {
			ve.Add(field+".status", fmt.Sprintf("unknown status %q", t.Status))
		}
		if err := validatePriority(t.Priority); err != nil {
			addValidation(ve, field, err)
		}
		if !t.End.After(t.Start) {
			ve.Add(field+".end", "must be after start")
		}
	}

	for i, t := range s.Tasks {
		if t.ParentID != "" && !ids[t.ParentID] {
			ve.Add(fmt.Sprintf("tasks[%d].parent_id", i), fmt.Sprintf("unknown task %s", t.ParentID))
		}
	}

	children := graph.NewEdges()
	depends := graph.NewEdges()
	for _, t := range s.Tasks {
		if t.ParentID != "" && ids[t.ParentID] {
			children.Add(t.ParentID, t.ID)
		}
	}
	for i, d := range s.Dependencies {
		field := fmt.Sprintf("dependencies[%d]", i)
		if !ids[d.TaskID] || !ids[d.DependsOnID] {
			ve.Add(field, fmt.Sprintf("references unknown task (%s -> %s)", d.TaskID, d.DependsOnID))
			continue
		}
		if _, err := model.ParseDependencyTarget(string(d.Target)); err != nil {
			ve.Add(field+".target", err.Error())
		}
		if !depends.Add(d.TaskID, d.DependsOnID) {
			ve.Add(field, fmt.Sprintf("duplicate dependency %s -> %s", d.TaskID, d.DependsOnID))
		}
	}

	nodes := make([]string, 0, len(ids))
	for id := range ids {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)
	if _, err := graph.TopoSort(nodes, children); err != nil {
		ve.Add("tasks", err.Error())
	} else if _, err := graph.TopoSort(nodes, graph.Union(children, depends)); err != nil {
		ve.Add("dependencies", err.Error())
	}

	containers := make(map[string]bool)
	for _, t := range s.Tasks {
		if t.ParentID != "" {
			containers[t.ParentID] = true
		}
	}
	logIDs := make(map[string]bool, len(s.TimeLogs))
	byResource := make(map[string][]TimeLog)
	for i, tl := range s.TimeLogs {
		field := fmt.Sprintf("time_logs[%d]", i)
		if tl.ID == "" || logIDs[tl.ID] {
			ve.Add(field+".id", fmt.Sprintf("missing or duplicate id %q", tl.ID))
		}
		logIDs[tl.ID] = true
		if !ids[tl.TaskID] {
			ve.Add(field+".task_id", fmt.Sprintf("unknown task %s", tl.TaskID))
		} else if containers[tl.TaskID] {
			ve.Add(field+".task_id", fmt.Sprintf("%s is a container", tl.TaskID))
		}
		if strings.TrimSpace(tl.Resource) == "" {
			ve.Add(field+".resource", "must not be empty")
		}
		if !tl.End.After(tl.Start) {
			ve.Add(field+".end", "must be after start")
		}
		for _, other := range byResource[tl.Resource] {
			if overlaps(other, tl.Start, tl.End) {
				ve.Add(field, fmt.Sprintf("overlaps time log %s of %s", other.ID, tl.Resource))
			}
		}
		byResource[tl.Resource] = append(byResource[tl.Resource], tl)
	}

	for i, r := range s.Reviews {
		if !ids[r.TaskID] {
			ve.Add(fmt.Sprintf("reviews[%d].task_id", i), fmt.Sprintf("unknown task %s", r.TaskID))
		}
	}

	if ve.HasErrors() {
		return ve
	}
	return nil
}

func addValidation(ve *ValidationErrors, prefix string, err error) {
	var v *ValidationError
	if errors.As(err, &v) {
		ve.Add(prefix+"."+v.Field, v.Message)
		return
	}
	ve.Add(prefix, err.Error())
}
