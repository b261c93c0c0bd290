package task

import (
	"fmt"

	"github.com/eoyilmaz/stalker-sub003/internal/events"
	"github.com/eoyilmaz/stalker-sub003/internal/graph"
	"github.com/eoyilmaz/stalker-sub003/internal/model"
)

const relationParent = "parent"

// SetParent moves a task under parentID. An empty parentID detaches it and
// makes it a root task.
func (p *Production) SetParent(childID, parentID string) error {
	if _, err := p.Task(childID); err != nil {
		return err
	}
	oldParent := p.parentOf(childID)
	if oldParent == parentID {
		return nil
	}
	if parentID != "" {
		if _, err := p.checkNewChildOf(parentID); err != nil {
			return err
		}
		if err := p.checkParent(childID, parentID); err != nil {
			p.log(LogLevelInfo, "task=%s parent=%s rejected: %v", childID, parentID, err)
			return err
		}
	}

	var before model.Status
	if oldParent != "" {
		before = p.tasks[oldParent].status
		p.detach(oldParent, childID)
	}
	if parentID != "" {
		p.attach(parentID, childID)
	}
	p.log(LogLevelDebug, "task=%s parent %q -> %q", childID, oldParent, parentID)
	p.notify(events.EventHierarchyChanged, map[string]interface{}{
		"task_id": childID, "old_parent": oldParent, "new_parent": parentID,
	})

	var affected []string
	for _, id := range []string{oldParent, parentID} {
		if id != "" {
			affected = append(affected, id)
		}
	}
	p.settle(affected...)
	p.settleFormerParent(oldParent, before)
	return nil
}

// settleFormerParent propagates a net status change of a task that may have
// lost its last child. revertToLeaf restarts it as WFD, so settle sees no
// change when the dependency rule keeps it there.
func (p *Production) settleFormerParent(id string, before model.Status) {
	t, ok := p.tasks[id]
	if !ok || t.status == before {
		return
	}
	p.propagate(id)
}

// checkNewChildOf reports whether parentID may receive a child.
func (p *Production) checkNewChildOf(parentID string) (*Task, error) {
	parent, err := p.Task(parentID)
	if err != nil {
		return nil, err
	}
	if parent.HasTimeLogs() {
		return nil, invalid("parent", "task %s has time logs and cannot hold children", parentID)
	}
	return parent, nil
}

// checkParent rejects parentID as the new parent of childID when the move
// would close a cycle through the hierarchy or the dependencies.
func (p *Production) checkParent(childID, parentID string) error {
	if childID == parentID {
		return &CircularDependencyError{
			Relation: relationParent,
			Path:     []string{childID, childID},
			Reason:   "a task cannot be its own parent",
		}
	}
	if path, ok := graph.PathTo(p.waitsFor(), childID, parentID); ok {
		return &CircularDependencyError{
			Relation: relationParent,
			Path:     append(path, childID),
			Reason:   fmt.Sprintf("%s already waits for %s", childID, parentID),
		}
	}

	subtree := p.subtree(childID)
	newAncestors := append([]string{parentID}, p.ancestors(parentID)...)
	for _, a := range newAncestors {
		ancestorDeps := p.depends.Successors(a)
		for _, n := range subtree {
			if p.depends.Has(n, a) {
				return &CircularDependencyError{
					Relation: relationParent,
					Path:     []string{a, n, a},
					Reason:   fmt.Sprintf("%s depends on its future ancestor %s", n, a),
				}
			}
			if p.depends.Has(a, n) {
				return &CircularDependencyError{
					Relation: relationParent,
					Path:     []string{a, n, a},
					Reason:   fmt.Sprintf("%s would depend on its own descendant %s", a, n),
				}
			}
			for _, d := range ancestorDeps {
				if p.depends.Has(n, d) {
					return &CircularDependencyError{
						Relation: relationParent,
						Path:     []string{a, d, n},
						Reason:   fmt.Sprintf("ancestor %s already depends on %s", a, d),
					}
				}
			}
		}
	}
	return nil
}

// attach links childID under parentID and rolls the child's aggregates up.
func (p *Production) attach(parentID, childID string) {
	parent, child := p.tasks[parentID], p.tasks[childID]
	if !p.isContainer(parentID) {
		p.becomeContainer(parent)
	}
	p.children.Add(parentID, childID)
	p.addUp(parentID, child.scheduleSeconds, child.loggedSeconds)
	p.refreshEnvelope(parentID)
}

// detach unlinks childID from parentID. A parent left without children
// turns back into a leaf.
func (p *Production) detach(parentID, childID string) {
	child := p.tasks[childID]
	p.addUp(parentID, -child.scheduleSeconds, -child.loggedSeconds)
	p.children.Remove(parentID, childID)
	if p.isContainer(parentID) {
		p.refreshEnvelope(parentID)
		return
	}
	p.revertToLeaf(p.tasks[parentID])
}

// becomeContainer takes the former leaf's own timing out of the aggregates
// and drops its resources.
func (p *Production) becomeContainer(t *Task) {
	p.addUp(t.id, -t.scheduleSeconds, -t.loggedSeconds)
	t.scheduleSeconds, t.loggedSeconds = 0, 0
	t.resources, t.alternatives, t.computed = nil, nil, nil
	p.log(LogLevelDebug, "task=%s became a container", t.id)
}

// revertToLeaf gives a former container a fresh default range and puts its
// own timing back into the aggregates. It restarts as WFD; the caller
// settles it.
func (p *Production) revertToLeaf(t *Task) {
	rng := p.settings.DefaultRange(p.now())
	t.start, t.end = rng.Start, rng.End
	p.addUp(t.id, -t.scheduleSeconds, -t.loggedSeconds)
	p.refreshLeaf(t.id)
	p.refreshEnvelope(p.parentOf(t.id))
	p.setStatus(t, model.StatusWaitingForDependency)
	p.log(LogLevelDebug, "task=%s reverted to a leaf", t.id)
}

// refreshEnvelope recomputes the range of id and its ancestors from their
// children, stopping at the first one that did not move.
func (p *Production) refreshEnvelope(id string) {
	for cur := id; cur != ""; cur = p.parentOf(cur) {
		if !p.isContainer(cur) {
			return
		}
		t := p.tasks[cur]
		kids := p.children.Successors(cur)
		start, end := p.tasks[kids[0]].start, p.tasks[kids[0]].end
		for _, k := range kids[1:] {
			c := p.tasks[k]
			if c.start.Before(start) {
				start = c.start
			}
			if c.end.After(end) {
				end = c.end
			}
		}
		if start.Equal(t.start) && end.Equal(t.end) {
			return
		}
		t.start, t.end = start, end
	}
}
