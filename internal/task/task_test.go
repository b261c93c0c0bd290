package task

import (
	"bytes"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eoyilmaz/stalker-sub003/internal/events"
	"github.com/eoyilmaz/stalker-sub003/internal/model"
)

func TestCreateTask_Defaults(t *testing.T) {
	p, _ := newTestProduction(t)

	task := mustCreate(t, p, TaskSpec{Name: "layout"})

	assert.True(t, model.ValidateID(task.ID()), "generated id %q", task.ID())
	assertStatus(t, model.StatusReadyToStart, task)
	assert.Equal(t, 1.0, task.ScheduleTiming())
	assert.Equal(t, model.UnitHour, task.ScheduleUnit())
	assert.Equal(t, model.ModelEffort, task.ScheduleModel())
	assert.Equal(t, model.ConstraintNone, task.ScheduleConstraint())
	assert.Equal(t, 3600.0, task.ScheduleSeconds())
	assert.Equal(t, DefaultPriority, task.Priority())
	assert.Equal(t, t0, task.Start())
	assert.Equal(t, t0.Add(10*24*time.Hour), task.End())
	assert.True(t, task.IsLeaf())
	assert.Empty(t, task.Parent())
}

func TestCreateTask_Validation(t *testing.T) {
	p, _ := newTestProduction(t)
	existing := mustCreate(t, p, TaskSpec{ID: "task_fixed", Name: "existing"})

	tests := []struct {
		name string
		spec TaskSpec
		want error
	}{
		{"empty name", TaskSpec{Name: " "}, ErrValidation},
		{"negative timing", TaskSpec{Name: "x", ScheduleTiming: -1}, ErrValidation},
		{"bad unit", TaskSpec{Name: "x", ScheduleUnit: "fortnight"}, ErrValidation},
		{"bad model", TaskSpec{Name: "x", ScheduleModel: "guess"}, ErrValidation},
		{"bad constraint", TaskSpec{Name: "x", ScheduleConstraint: "sometimes"}, ErrValidation},
		{"priority too high", TaskSpec{Name: "x", Priority: intPtr(1001)}, ErrValidation},
		{"duplicate id", TaskSpec{ID: existing.ID(), Name: "x"}, ErrValidation},
		{"unknown parent", TaskSpec{Name: "x", ParentID: "task_missing"}, ErrNotFound},
		{"unknown dependency", TaskSpec{Name: "x", DependsOn: dependsOn("task_missing")}, ErrNotFound},
		{"duplicate dependency", TaskSpec{Name: "x", DependsOn: dependsOn(existing.ID(), existing.ID())}, ErrValidation},
		{"empty resource", TaskSpec{Name: "x", Resources: []string{"alice", ""}}, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(p.Tasks())
			_, err := p.CreateTask(tt.spec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Len(t, p.Tasks(), before, "rejected task must not be stored")
		})
	}
}

func intPtr(v int) *int { return &v }

func TestCreateTask_Milestone(t *testing.T) {
	p, _ := newTestProduction(t)
	m := mustCreate(t, p, TaskSpec{Name: "delivery", IsMilestone: true, ScheduleTiming: 5})

	assert.True(t, m.IsMilestone())
	assert.Equal(t, 0.0, m.ScheduleSeconds())
	assert.Equal(t, 0.0, m.PercentComplete())

	err := p.SetSchedule(m.ID(), 1, model.UnitHour, model.ModelEffort)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestEffortTask_CompletesWhenFullyLogged(t *testing.T) {
	p, _ := newTestProduction(t)
	task := mustCreate(t, p, TaskSpec{Name: "anim", ScheduleTiming: 2, ScheduleUnit: model.UnitHour})

	assert.Equal(t, 7200.0, task.ScheduleSeconds())

	mustLog(t, p, task.ID(), "alice", 0, 2*time.Hour)

	assert.Equal(t, 7200.0, task.TotalLoggedSeconds())
	assert.Equal(t, 100.0, task.PercentComplete())
	assert.Equal(t, 0.0, task.RemainingSeconds())
	assertStatus(t, model.StatusWorkInProgress, task)
}

func TestScheduleModels_ClockDrivenLoggedTime(t *testing.T) {
	p, clock := newTestProduction(t)
	duration := mustCreate(t, p, TaskSpec{
		Name: "render", ScheduleTiming: 2, ScheduleUnit: model.UnitDay, ScheduleModel: model.ModelDuration,
		Start: at(0), Duration: dur(48 * time.Hour),
	})
	length := mustCreate(t, p, TaskSpec{
		Name: "review cycle", ScheduleTiming: 1, ScheduleUnit: model.UnitWeek, ScheduleModel: model.ModelLength,
		Start: at(0), Duration: dur(7 * 24 * time.Hour),
	})

	assert.Equal(t, 172800.0, duration.ScheduleSeconds())
	assert.Equal(t, 162000.0, length.ScheduleSeconds())
	assert.Equal(t, 0.0, duration.TotalLoggedSeconds())

	clock.Advance(24 * time.Hour)
	assert.True(t, p.RecomputeAggregates(), "time passing must refresh clock-driven values")
	assert.Equal(t, 86400.0, duration.TotalLoggedSeconds())

	clock.now = t0.Add(84 * time.Hour)
	p.RecomputeAggregates()
	assert.Equal(t, 172800.0, duration.TotalLoggedSeconds(), "past the end the full schedule is logged")
	assert.Equal(t, 81000.0, length.TotalLoggedSeconds(), "half a calendar week is half a work week")
}

func TestSetRange(t *testing.T) {
	p, _ := newTestProduction(t)
	task := mustCreate(t, p, TaskSpec{Name: "comp", Start: at(0), Duration: dur(4 * time.Hour)})

	require.NoError(t, p.SetStart(task.ID(), t0.Add(2*time.Hour)))
	assert.Equal(t, t0.Add(2*time.Hour), task.Start())
	assert.Equal(t, t0.Add(4*time.Hour), task.End(), "previous end wins over previous duration")

	require.NoError(t, p.SetDuration(task.ID(), 3*time.Hour))
	assert.Equal(t, t0.Add(5*time.Hour), task.End())

	require.NoError(t, p.SetEnd(task.ID(), t0.Add(time.Hour)))
	assert.True(t, task.End().After(task.Start()), "an inverted range is corrected")
	assert.Equal(t, 24*time.Hour, task.Duration())
}

func TestSetters_Validation(t *testing.T) {
	p, _ := newTestProduction(t)
	parent := mustCreate(t, p, TaskSpec{Name: "seq"})
	mustCreate(t, p, TaskSpec{Name: "shot", ParentID: parent.ID()})

	assert.ErrorIs(t, p.SetStart(parent.ID(), t0), ErrValidation)
	assert.ErrorIs(t, p.SetResources(parent.ID(), []string{"alice"}, nil), ErrValidation)
	assert.ErrorIs(t, p.SetPriority(parent.ID(), -1), ErrValidation)
	assert.ErrorIs(t, p.SetName(parent.ID(), ""), ErrValidation)
	assert.ErrorIs(t, p.SetConstraint(parent.ID(), "never"), ErrValidation)
	assert.ErrorIs(t, p.SetPriority("task_missing", 1), ErrNotFound)

	leaf := mustCreate(t, p, TaskSpec{Name: "edit"})
	assert.ErrorIs(t, p.SetSchedule(leaf.ID(), 0, model.UnitHour, model.ModelEffort), ErrValidation)
	assert.ErrorIs(t, p.SetSchedule(leaf.ID(), -2, model.UnitHour, model.ModelEffort), ErrValidation)
	assert.Equal(t, 1.0, leaf.ScheduleTiming())
	milestone := mustCreate(t, p, TaskSpec{Name: "delivery", IsMilestone: true})
	assert.NoError(t, p.SetSchedule(milestone.ID(), 0, model.UnitDay, model.ModelEffort))

	require.NoError(t, p.SetConstraint(parent.ID(), model.ConstraintBoth))
	assert.Equal(t, model.ConstraintBoth, parent.ScheduleConstraint())
}

func TestSetSchedule_PropagatesToAncestors(t *testing.T) {
	p, _ := newTestProduction(t)
	root := mustCreate(t, p, TaskSpec{Name: "root"})
	leaf := mustCreate(t, p, TaskSpec{Name: "leaf", ParentID: root.ID()})

	require.NoError(t, p.SetSchedule(leaf.ID(), 2, model.UnitDay, model.ModelEffort))

	assert.Equal(t, 2*9*3600.0, leaf.ScheduleSeconds())
	assert.Equal(t, leaf.ScheduleSeconds(), root.ScheduleSeconds())
	assert.ErrorIs(t, p.SetSchedule(leaf.ID(), 1, "parsec", model.ModelEffort), ErrValidation)
}

func TestResolvedResponsible_InheritsFromNearestAncestor(t *testing.T) {
	p, _ := newTestProduction(t)
	root := mustCreate(t, p, TaskSpec{Name: "project", Responsible: []string{"carol"}})
	mid := mustCreate(t, p, TaskSpec{Name: "seq", ParentID: root.ID()})
	leaf := mustCreate(t, p, TaskSpec{Name: "shot", ParentID: mid.ID()})

	assert.Equal(t, []string{"carol"}, leaf.ResolvedResponsible())
	assert.Empty(t, leaf.Responsible(), "inherited users are never stored")

	require.NoError(t, p.SetResponsible(mid.ID(), []string{"dave", "bob", "dave"}))
	assert.Equal(t, []string{"bob", "dave"}, leaf.ResolvedResponsible())
}

func TestApplySchedule(t *testing.T) {
	p, _ := newTestProduction(t)
	parent := mustCreate(t, p, TaskSpec{Name: "seq"})
	leaf := mustCreate(t, p, TaskSpec{Name: "shot", ParentID: parent.ID(), Resources: []string{"alice", "bob"}})

	require.NoError(t, p.ApplySchedule(leaf.ID(), t0.Add(24*time.Hour), t0.Add(30*time.Hour), []string{"bob"}))

	assert.Equal(t, t0.Add(24*time.Hour), leaf.Start())
	assert.Equal(t, t0.Add(30*time.Hour), leaf.End())
	assert.Equal(t, []string{"bob"}, leaf.ComputedResources())
	assert.Equal(t, leaf.Start(), parent.Start(), "container follows its children")
	assert.Equal(t, leaf.End(), parent.End())

	require.NoError(t, p.ApplySchedule(parent.ID(), t0, t0.Add(time.Hour), nil))
	assert.Equal(t, leaf.Start(), parent.Start(), "containers ignore scheduler dates")
}

func TestDeleteTask_Cascades(t *testing.T) {
	backstop := newFakeBackstop()
	p, _ := newTestProduction(t, WithBackstop(backstop))
	root := mustCreate(t, p, TaskSpec{Name: "root"})
	parent := mustCreate(t, p, TaskSpec{Name: "seq", ParentID: root.ID()})
	shot := mustCreate(t, p, TaskSpec{Name: "shot", ParentID: parent.ID(), Start: at(0), Duration: dur(time.Hour)})
	other := mustCreate(t, p, TaskSpec{Name: "other", ParentID: parent.ID()})
	tl := mustLog(t, p, shot.ID(), "alice", time.Hour, 2*time.Hour)
	waiting := mustCreate(t, p, TaskSpec{Name: "waiting", DependsOn: dependsOn(shot.ID())})
	assertStatus(t, model.StatusWaitingForDependency, waiting)

	require.NoError(t, p.DeleteTask(parent.ID()))

	for _, id := range []string{parent.ID(), shot.ID(), other.ID()} {
		_, err := p.Task(id)
		assert.ErrorIs(t, err, ErrNotFound)
	}
	_, err := p.TimeLog(tl.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{tl.ID}, backstop.released)
	assert.Empty(t, p.ResourceTimeLogs("alice"))
	assert.Empty(t, p.Dependencies(waiting.ID()))
	assertStatus(t, model.StatusReadyToStart, waiting)

	assert.True(t, root.IsLeaf(), "root lost its only child")
	assert.Equal(t, 3600.0, root.ScheduleSeconds())
	assert.Equal(t, 0.0, root.TotalLoggedSeconds())
	assertStatus(t, model.StatusReadyToStart, root)
	assert.False(t, p.RecomputeAggregates())
}

func TestDeleteTask_BackstopFailureLeavesStateUnchanged(t *testing.T) {
	backstop := newFakeBackstop()
	p, _ := newTestProduction(t, WithBackstop(backstop))
	task := mustCreate(t, p, TaskSpec{Name: "shot"})
	mustLog(t, p, task.ID(), "alice", 0, time.Hour)

	backstop.releaseErr = errors.New("database is locked")
	require.Error(t, p.DeleteTask(task.ID()))

	_, err := p.Task(task.ID())
	assert.NoError(t, err)
	assert.Len(t, p.TimeLogs(task.ID()), 1)
}

func TestNotifier_ReceivesEngineEvents(t *testing.T) {
	rec := &recordingNotifier{}
	p, _ := newTestProduction(t, WithNotifier(rec))

	task := mustCreate(t, p, TaskSpec{Name: "shot"})
	mustLog(t, p, task.ID(), "alice", 0, time.Hour)

	created := rec.ofType(events.EventTaskCreated)
	require.Len(t, created, 1)
	assert.Equal(t, task.ID(), created[0].Data["task_id"])
	assert.Equal(t, "test", created[0].Data["production"])

	changes := rec.ofType(events.EventStatusChanged)
	require.Len(t, changes, 2)
	assert.Equal(t, "WFD", changes[0].Data["from"])
	assert.Equal(t, "RTS", changes[0].Data["to"])
	assert.Equal(t, "WIP", changes[1].Data["to"])
	assert.Len(t, rec.ofType(events.EventTimeLogCreated), 1)
}

func TestNotifier_EventBus(t *testing.T) {
	bus := events.NewBus(16)
	got := make(chan events.Event, 4)
	unsub := bus.Subscribe(events.EventTaskCreated, func(e events.Event) { got <- e })
	defer unsub()

	p, _ := newTestProduction(t, WithNotifier(bus))
	task := mustCreate(t, p, TaskSpec{Name: "shot"})

	select {
	case e := <-got:
		assert.Equal(t, task.ID(), e.Data["task_id"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for task_created")
	}
}

func TestLogger_UsesProductionClock(t *testing.T) {
	var buf bytes.Buffer
	p, _ := newTestProduction(t, WithLogger(log.New(&buf, "", 0), LogLevelDebug))
	mustCreate(t, p, TaskSpec{Name: "shot"})

	assert.Contains(t, buf.String(), "2026-03-02T09:00:00Z DEBUG production[test]: ")
}
