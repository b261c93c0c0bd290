package task

import (
	"math"

	"github.com/eoyilmaz/stalker-sub003/internal/model"
)

// aggregateTolerance absorbs float drift between incremental and full sums.
const aggregateTolerance = 1e-6

// addUp adds a delta to id and every ancestor of it.
func (p *Production) addUp(id string, dSchedule, dLogged float64) {
	if dSchedule == 0 && dLogged == 0 {
		return
	}
	for cur := id; cur != ""; cur = p.parentOf(cur) {
		t := p.tasks[cur]
		t.scheduleSeconds += dSchedule
		t.loggedSeconds += dLogged
	}
}

// refreshLeaf recomputes the own values of a leaf and propagates the change
// to its ancestors.
func (p *Production) refreshLeaf(id string) {
	t := p.tasks[id]
	schedule, logged := p.leafValues(t)
	dSchedule, dLogged := schedule-t.scheduleSeconds, logged-t.loggedSeconds
	t.scheduleSeconds, t.loggedSeconds = schedule, logged
	p.addUp(p.parentOf(id), dSchedule, dLogged)
}

// leafValues computes schedule and logged seconds of a leaf from its inputs.
func (p *Production) leafValues(t *Task) (schedule, logged float64) {
	schedule = p.settings.ToSeconds(t.timing, t.unit, t.model)
	if t.model == model.ModelEffort {
		for id := range p.taskLogs[t.id] {
			logged += p.timeLogs[id].Seconds()
		}
		return schedule, logged
	}

	// length and duration tasks progress with the clock
	now := p.now()
	switch {
	case !now.After(t.start):
		return schedule, 0
	case !now.Before(t.end):
		return schedule, schedule
	}
	elapsed := now.Sub(t.start).Seconds()
	if t.model == model.ModelLength {
		elapsed = p.settings.CalendarToWorkSeconds(elapsed)
	}
	return schedule, math.Min(elapsed, schedule)
}

// RecomputeAggregates rebuilds every cached schedule and logged value from
// the leaves up and reports whether any cached value was stale. Length and
// duration leaves also pick up the time passed since their last refresh.
func (p *Production) RecomputeAggregates() bool {
	stale := false
	var walk func(id string) (float64, float64)
	walk = func(id string) (float64, float64) {
		t := p.tasks[id]
		var schedule, logged float64
		if kids := p.children.Successors(id); len(kids) > 0 {
			for _, k := range kids {
				s, l := walk(k)
				schedule += s
				logged += l
			}
		} else {
			schedule, logged = p.leafValues(t)
		}
		if !nearlyEqual(schedule, t.scheduleSeconds) || !nearlyEqual(logged, t.loggedSeconds) {
			stale = true
		}
		t.scheduleSeconds, t.loggedSeconds = schedule, logged
		return schedule, logged
	}
	for _, root := range p.Roots() {
		walk(root.id)
	}
	if stale {
		p.log(LogLevelWarn, "aggregate cache was stale and has been rebuilt")
	}
	return stale
}

func nearlyEqual(a, b float64) bool {
	return math.Abs(a-b) <= aggregateTolerance
}
