package task

import (
	"fmt"

	"github.com/eoyilmaz/stalker-sub003/internal/events"
	"github.com/eoyilmaz/stalker-sub003/internal/graph"
	"github.com/eoyilmaz/stalker-sub003/internal/model"
)

const relationDependsOn = "depends_on"

// Dependency is a depends-on edge: TaskID cannot progress past Target of
// DependsOnID. The gap is handed to the external scheduler.
type Dependency struct {
	TaskID      string                 `yaml:"task_id" json:"task_id"`
	DependsOnID string                 `yaml:"depends_on_id" json:"depends_on_id"`
	Target      model.DependencyTarget `yaml:"target" json:"target"`
	GapTiming   float64                `yaml:"gap_timing" json:"gap_timing"`
	GapUnit     model.TimeUnit         `yaml:"gap_unit" json:"gap_unit"`
	GapModel    model.ScheduleModel    `yaml:"gap_model" json:"gap_model"`
}

// GapSeconds converts the gap with the production's settings.
func (d Dependency) GapSeconds(p *Production) float64 {
	return p.settings.ToSeconds(d.GapTiming, d.GapUnit, d.GapModel)
}

// DependencySpec describes a dependency to add. Empty values default to an
// onend target with no gap measured in length.
type DependencySpec struct {
	DependsOnID string
	Target      model.DependencyTarget
	GapTiming   float64
	GapUnit     model.TimeUnit
	GapModel    model.ScheduleModel
}

func (p *Production) newDependency(taskID string, s DependencySpec) (Dependency, error) {
	if _, err := p.Task(s.DependsOnID); err != nil {
		return Dependency{}, err
	}
	target, err := model.ParseDependencyTarget(string(s.Target))
	if err != nil {
		return Dependency{}, invalid("dependency_target", "%v", err)
	}
	if s.GapUnit == "" {
		s.GapUnit = model.UnitHour
	}
	if s.GapModel == "" {
		s.GapModel = model.ModelLength
	}
	if s.GapModel == model.ModelEffort {
		return Dependency{}, invalid("gap_model", "gap model must be length or duration")
	}
	if err := validateSchedule(s.GapTiming, s.GapUnit, s.GapModel); err != nil {
		return Dependency{}, err
	}
	return Dependency{
		TaskID:      taskID,
		DependsOnID: s.DependsOnID,
		Target:      target,
		GapTiming:   s.GapTiming,
		GapUnit:     s.GapUnit,
		GapModel:    s.GapModel,
	}, nil
}

// AddDependency makes taskID depend on spec.DependsOnID and re-evaluates
// taskID.
func (p *Production) AddDependency(taskID string, spec DependencySpec) (*Dependency, error) {
	if _, err := p.Task(taskID); err != nil {
		return nil, err
	}
	d, err := p.newDependency(taskID, spec)
	if err != nil {
		return nil, err
	}
	if p.depends.Has(taskID, d.DependsOnID) {
		return nil, invalid("depends_on", "%s already depends on %s", taskID, d.DependsOnID)
	}
	if err := p.checkDependency(taskID, d.DependsOnID); err != nil {
		p.log(LogLevelInfo, "task=%s depends_on=%s rejected: %v", taskID, d.DependsOnID, err)
		return nil, err
	}
	p.insertDependency(d)
	p.settle(taskID)
	out := *p.dependencies[depKey{taskID, d.DependsOnID}]
	return &out, nil
}

// RemoveDependency drops the edge and re-evaluates taskID.
func (p *Production) RemoveDependency(taskID, dependsOnID string) error {
	if !p.depends.Has(taskID, dependsOnID) {
		return notFound("dependency", taskID+" -> "+dependsOnID)
	}
	p.depends.Remove(taskID, dependsOnID)
	delete(p.dependencies, depKey{taskID, dependsOnID})
	p.log(LogLevelDebug, "task=%s no longer depends on %s", taskID, dependsOnID)
	p.notify(events.EventDependencyRemoved, map[string]interface{}{
		"task_id": taskID, "depends_on_id": dependsOnID,
	})
	p.settle(taskID)
	return nil
}

func (p *Production) insertDependency(d Dependency) {
	p.depends.Add(d.TaskID, d.DependsOnID)
	p.dependencies[depKey{d.TaskID, d.DependsOnID}] = &d
	p.log(LogLevelDebug, "task=%s depends on %s (%s)", d.TaskID, d.DependsOnID, d.Target)
	p.notify(events.EventDependencyAdded, map[string]interface{}{
		"task_id": d.TaskID, "depends_on_id": d.DependsOnID, "target": string(d.Target),
	})
}

// Dependencies returns the edges taskID depends on, ordered by dependency id.
func (p *Production) Dependencies(taskID string) []Dependency {
	var out []Dependency
	for _, dep := range p.depends.Successors(taskID) {
		out = append(out, *p.dependencies[depKey{taskID, dep}])
	}
	return out
}

// Dependents returns the ids of the tasks that depend on taskID.
func (p *Production) Dependents(taskID string) []string {
	return p.depends.Predecessors(taskID)
}

// AllDependencies returns every edge of the production.
func (p *Production) AllDependencies() []Dependency {
	pairs := p.depends.Pairs()
	out := make([]Dependency, 0, len(pairs))
	for _, pair := range pairs {
		out = append(out, *p.dependencies[depKey{pair[0], pair[1]}])
	}
	return out
}

// checkDependency rejects "a depends on b" when it would close a cycle
// through the combined relations or tie a task to its own family.
func (p *Production) checkDependency(a, b string) error {
	if a == b {
		return &CircularDependencyError{
			Relation: relationDependsOn,
			Path:     []string{a, a},
			Reason:   "a task cannot depend on itself",
		}
	}
	if graph.Reachable(p.children, a, b) {
		return &CircularDependencyError{
			Relation: relationDependsOn,
			Path:     []string{a, b, a},
			Reason:   fmt.Sprintf("%s is a descendant of %s", b, a),
		}
	}
	if graph.Reachable(p.children, b, a) {
		return &CircularDependencyError{
			Relation: relationDependsOn,
			Path:     []string{a, b, a},
			Reason:   fmt.Sprintf("%s is an ancestor of %s", b, a),
		}
	}
	if path, ok := graph.PathTo(p.waitsFor(), b, a); ok {
		return &CircularDependencyError{
			Relation: relationDependsOn,
			Path:     append([]string{a}, path...),
		}
	}
	for _, anc := range p.ancestors(a) {
		if p.depends.Has(anc, b) {
			return &CircularDependencyError{
				Relation: relationDependsOn,
				Path:     []string{anc, b, a},
				Reason:   fmt.Sprintf("ancestor %s already depends on %s", anc, b),
			}
		}
	}
	return nil
}

// checkNewTaskDependency runs checkDependency for a task that is not in the
// production yet and will be created under parentID.
func (p *Production) checkNewTaskDependency(taskID, parentID, b string) error {
	if parentID == "" {
		return nil
	}
	if b == parentID || graph.Reachable(p.children, b, parentID) {
		return &CircularDependencyError{
			Relation: relationDependsOn,
			Path:     []string{taskID, b, taskID},
			Reason:   fmt.Sprintf("%s is an ancestor of %s", b, taskID),
		}
	}
	if path, ok := graph.PathTo(p.waitsFor(), b, parentID); ok {
		return &CircularDependencyError{
			Relation: relationDependsOn,
			Path:     append(append([]string{taskID}, path...), taskID),
		}
	}
	for _, anc := range append([]string{parentID}, p.ancestors(parentID)...) {
		if p.depends.Has(anc, b) {
			return &CircularDependencyError{
				Relation: relationDependsOn,
				Path:     []string{anc, b, taskID},
				Reason:   fmt.Sprintf("ancestor %s already depends on %s", anc, b),
			}
		}
	}
	return nil
}
