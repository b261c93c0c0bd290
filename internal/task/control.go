package task

import (
	"github.com/eoyilmaz/stalker-sub003/internal/model"
)

func (p *Production) controllableTask(id string, op model.Operation) (*Task, error) {
	t, err := p.Task(id)
	if err != nil {
		return nil, err
	}
	if p.isContainer(id) {
		return nil, invalid("task", "%s is a container; its status follows its children", id)
	}
	if !model.CanApply(op, t.status) {
		return nil, statusError(t, op)
	}
	return t, nil
}

// Hold parks a task and drops its priority to zero.
func (p *Production) Hold(id string) error {
	t, err := p.controllableTask(id, model.OpHold)
	if err != nil {
		return err
	}
	t.priority = 0
	if p.setStatus(t, model.StatusOnHold) {
		p.propagate(id)
	}
	return nil
}

// Stop closes a task early. Its timing is cut to exactly the time logged so
// far, expressed in the least meaningful unit.
func (p *Production) Stop(id string) error {
	t, err := p.controllableTask(id, model.OpStop)
	if err != nil {
		return err
	}
	t.timing, t.unit = p.settings.LeastMeaningfulUnit(t.loggedSeconds, t.model.IsWorkTime())
	p.refreshLeaf(id)
	if p.setStatus(t, model.StatusStopped) {
		p.propagate(id)
	}
	return nil
}

// Resume brings a held or stopped task back to WIP, or RTS when nothing was
// logged yet, then reconciles it with its dependencies. Dependents see the
// task in progress again.
func (p *Production) Resume(id string) error {
	t, err := p.controllableTask(id, model.OpResume)
	if err != nil {
		return err
	}
	to := model.StatusReadyToStart
	if t.HasTimeLogs() {
		to = model.StatusWorkInProgress
	}
	p.setStatus(t, to)
	p.settle(id)
	p.propagate(id)
	return nil
}
