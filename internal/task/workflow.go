package task

import (
	"github.com/eoyilmaz/stalker-sub003/internal/events"
	"github.com/eoyilmaz/stalker-sub003/internal/model"
)

// worksAloneBelow is the binary status under which a leaf ignores its
// dependencies: only OH, STOP and CMPL bits, or no dependencies at all.
const worksAloneBelow = 4

var containerStatusIndex = []model.Status{
	model.StatusWaitingForDependency,
	model.StatusReadyToStart,
	model.StatusWorkInProgress,
	model.StatusCompleted,
}

// containerStatusMap maps the binary status of a container's children to an
// index of containerStatusIndex. Any combination not listed resolves to WIP,
// STOP-only children included; the fallback is kept as is on purpose.
var containerStatusMap = map[int]int{
	0b100000000: 0, // WFD
	0b100000010: 0, // WFD + STOP
	0b010000000: 1, // RTS
	0b010000010: 1, // RTS + STOP
	0b110000000: 1, // WFD + RTS
	0b110000010: 1, // WFD + RTS + STOP
	0b000000001: 3, // CMPL
	0b000000011: 3, // CMPL + STOP
}

const containerFallbackIndex = 2

// ContainerStatusFor resolves the status a container derives from the given
// children statuses.
func ContainerStatusFor(children []model.Status) model.Status {
	idx, ok := containerStatusMap[model.BinaryStatus(children)]
	if !ok {
		idx = containerFallbackIndex
	}
	return containerStatusIndex[idx]
}

func (p *Production) setStatus(t *Task, to model.Status) bool {
	from := t.status
	if from == to {
		return false
	}
	t.status = to
	p.log(LogLevelDebug, "task=%s status %s -> %s", t.id, from, to)
	p.notify(events.EventStatusChanged, map[string]interface{}{
		"task_id": t.id, "from": string(from), "to": string(to),
	})
	return true
}

// evaluate re-derives the status of id from its children or dependencies
// and reports whether it changed.
func (p *Production) evaluate(id string) bool {
	t, ok := p.tasks[id]
	if !ok {
		return false
	}
	if p.isContainer(id) {
		return p.updateContainerStatus(t)
	}
	return p.updateDependencyStatus(t)
}

func (p *Production) updateContainerStatus(t *Task) bool {
	kids := p.children.Successors(t.id)
	statuses := make([]model.Status, 0, len(kids))
	for _, k := range kids {
		statuses = append(statuses, p.tasks[k].status)
	}
	return p.setStatus(t, ContainerStatusFor(statuses))
}

func (p *Production) dependencyBinary(id string) int {
	var statuses []model.Status
	for _, dep := range p.depends.Successors(id) {
		statuses = append(statuses, p.tasks[dep].status)
	}
	return model.BinaryStatus(statuses)
}

func (p *Production) updateDependencyStatus(t *Task) bool {
	if p.dependencyBinary(t.id) < worksAloneBelow {
		switch t.status {
		case model.StatusWaitingForDependency:
			return p.setStatus(t, model.StatusReadyToStart)
		case model.StatusDependencyHasRevision:
			if t.RemainingSeconds() <= 0 {
				p.extendByResolution(t)
			}
			return p.setStatus(t, model.StatusHasRevision)
		}
		return false
	}
	switch t.status {
	case model.StatusReadyToStart:
		return p.setStatus(t, model.StatusWaitingForDependency)
	case model.StatusWorkInProgress, model.StatusHasRevision, model.StatusCompleted:
		return p.setStatus(t, model.StatusDependencyHasRevision)
	}
	return false
}

// extendByResolution gives a leaf with no effort left one more resolution
// unit of timing on top of what it already logged.
func (p *Production) extendByResolution(t *Task) {
	seconds := t.loggedSeconds + p.settings.ResolutionSeconds()
	t.timing, t.unit = p.settings.LeastMeaningfulUnit(seconds, t.model.IsWorkTime())
	p.refreshLeaf(t.id)
}

// settle re-evaluates the seed tasks and, for every task whose status
// changed, its parent and dependents, until nothing moves.
func (p *Production) settle(seeds ...string) {
	queue := append([]string(nil), seeds...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if p.evaluate(id) {
			queue = append(queue, p.neighbours(id)...)
		}
	}
}

// propagate settles everything a task's status feeds into, used after an
// explicit transition of that task.
func (p *Production) propagate(id string) {
	p.settle(p.neighbours(id)...)
}

// neighbours are the tasks whose status derives from id's status.
func (p *Production) neighbours(id string) []string {
	out := p.depends.Predecessors(id)
	if parent := p.parentOf(id); parent != "" {
		out = append(out, parent)
	}
	return out
}
