package task

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eoyilmaz/stalker-sub003/internal/model"
)

func TestContainer_DerivesFromChildren(t *testing.T) {
	p, _ := newTestProduction(t)
	parent := mustCreate(t, p, TaskSpec{Name: "seq", ScheduleTiming: 5, Resources: []string{"alice"}})

	a := mustCreate(t, p, TaskSpec{Name: "a", ParentID: parent.ID(), ScheduleTiming: 2, Start: at(24 * time.Hour), Duration: dur(2 * time.Hour)})
	b := mustCreate(t, p, TaskSpec{Name: "b", ParentID: parent.ID(), ScheduleTiming: 3, Start: at(0), Duration: dur(time.Hour)})

	assert.True(t, parent.IsContainer())
	assert.Empty(t, parent.Resources(), "containers never hold resources")
	assert.Equal(t, 5.0, parent.ScheduleTiming(), "own timing is kept for later")
	assert.Equal(t, a.ScheduleSeconds()+b.ScheduleSeconds(), parent.ScheduleSeconds())
	assert.Equal(t, b.Start(), parent.Start())
	assert.Equal(t, a.End(), parent.End())
	assert.ElementsMatch(t, []string{a.ID(), b.ID()}, parent.Children())
	assert.Equal(t, parent.ID(), a.Parent())
}

func TestContainerStatus_ReadyAndWaitingChildren(t *testing.T) {
	p, _ := newTestProduction(t)
	blocker := mustCreate(t, p, TaskSpec{Name: "blocker"})
	parent := mustCreate(t, p, TaskSpec{Name: "seq"})
	c1 := mustCreate(t, p, TaskSpec{Name: "c1", ParentID: parent.ID()})
	c2 := mustCreate(t, p, TaskSpec{Name: "c2", ParentID: parent.ID()})
	c3 := mustCreate(t, p, TaskSpec{Name: "c3", ParentID: parent.ID(), DependsOn: dependsOn(blocker.ID())})

	assertStatus(t, model.StatusReadyToStart, c1)
	assertStatus(t, model.StatusReadyToStart, c2)
	assertStatus(t, model.StatusWaitingForDependency, c3)
	assertStatus(t, model.StatusReadyToStart, parent)
}

func TestContainerStatusFor(t *testing.T) {
	s := func(codes ...model.Status) []model.Status { return codes }
	tests := []struct {
		name     string
		children []model.Status
		want     model.Status
	}{
		{"all waiting", s("WFD", "WFD"), model.StatusWaitingForDependency},
		{"waiting and stopped", s("WFD", "STOP"), model.StatusWaitingForDependency},
		{"all ready", s("RTS"), model.StatusReadyToStart},
		{"ready and stopped", s("RTS", "STOP"), model.StatusReadyToStart},
		{"ready and waiting", s("RTS", "RTS", "WFD"), model.StatusReadyToStart},
		{"ready waiting stopped", s("RTS", "WFD", "STOP"), model.StatusReadyToStart},
		{"all complete", s("CMPL", "CMPL"), model.StatusCompleted},
		{"complete and stopped", s("CMPL", "STOP"), model.StatusCompleted},
		{"stopped only falls back", s("STOP"), model.StatusWorkInProgress},
		{"pending review", s("PREV", "CMPL"), model.StatusWorkInProgress},
		{"on hold", s("OH"), model.StatusWorkInProgress},
		{"ready and complete", s("RTS", "CMPL"), model.StatusWorkInProgress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContainerStatusFor(tt.children))
		})
	}
}

func TestContainerStatus_PropagatesToGrandparent(t *testing.T) {
	p, _ := newTestProduction(t)
	root := mustCreate(t, p, TaskSpec{Name: "project"})
	seq := mustCreate(t, p, TaskSpec{Name: "seq", ParentID: root.ID()})
	shot := mustCreate(t, p, TaskSpec{Name: "shot", ParentID: seq.ID()})

	mustLog(t, p, shot.ID(), "alice", 0, time.Hour)

	assertStatus(t, model.StatusWorkInProgress, shot)
	assertStatus(t, model.StatusWorkInProgress, seq)
	assertStatus(t, model.StatusWorkInProgress, root)
}

func TestRemoveOnlyChild_RevertsToFreshLeaf(t *testing.T) {
	p, clock := newTestProduction(t)
	parent := mustCreate(t, p, TaskSpec{Name: "seq", ScheduleTiming: 3})
	child := mustCreate(t, p, TaskSpec{Name: "shot", ParentID: parent.ID(), Start: at(0), Duration: dur(2 * time.Hour)})
	mustLog(t, p, child.ID(), "alice", 0, time.Hour)
	assertStatus(t, model.StatusWorkInProgress, parent)

	clock.Advance(48 * time.Hour)
	require.NoError(t, p.SetParent(child.ID(), ""))

	assert.True(t, parent.IsLeaf())
	assert.Equal(t, t0.Add(48*time.Hour), parent.Start())
	assert.Equal(t, t0.Add(48*time.Hour+10*24*time.Hour), parent.End())
	assert.Equal(t, 3*3600.0, parent.ScheduleSeconds(), "own timing re-enters the aggregate")
	assert.Equal(t, 0.0, parent.TotalLoggedSeconds())
	assertStatus(t, model.StatusReadyToStart, parent)
	assert.Empty(t, child.Parent())
}

func TestRemoveOnlyChild_BlockedLeafUpdatesAncestors(t *testing.T) {
	build := func(t *testing.T) (*Production, *Task, *Task, *Task) {
		p, _ := newTestProduction(t)
		blocker := mustCreate(t, p, TaskSpec{Name: "blocker"})
		seq := mustCreate(t, p, TaskSpec{Name: "seq"})
		shot := mustCreate(t, p, TaskSpec{Name: "shot", ParentID: seq.ID(), DependsOn: dependsOn(blocker.ID())})
		layout := mustCreate(t, p, TaskSpec{Name: "layout", ParentID: shot.ID()})
		assertStatus(t, model.StatusReadyToStart, shot)
		assertStatus(t, model.StatusReadyToStart, seq)
		return p, seq, shot, layout
	}

	t.Run("detach", func(t *testing.T) {
		p, seq, shot, layout := build(t)
		require.NoError(t, p.SetParent(layout.ID(), ""))
		assert.True(t, shot.IsLeaf())
		assertStatus(t, model.StatusWaitingForDependency, shot)
		assertStatus(t, model.StatusWaitingForDependency, seq)
	})

	t.Run("delete", func(t *testing.T) {
		p, seq, shot, layout := build(t)
		require.NoError(t, p.DeleteTask(layout.ID()))
		assert.True(t, shot.IsLeaf())
		assertStatus(t, model.StatusWaitingForDependency, shot)
		assertStatus(t, model.StatusWaitingForDependency, seq)
	})
}

func TestSetParent_MovesAggregates(t *testing.T) {
	p, _ := newTestProduction(t)
	a := mustCreate(t, p, TaskSpec{Name: "a"})
	b := mustCreate(t, p, TaskSpec{Name: "b"})
	a1 := mustCreate(t, p, TaskSpec{Name: "a1", ParentID: a.ID(), ScheduleTiming: 2})
	a2 := mustCreate(t, p, TaskSpec{Name: "a2", ParentID: a.ID(), ScheduleTiming: 4})
	b1 := mustCreate(t, p, TaskSpec{Name: "b1", ParentID: b.ID()})
	mustLog(t, p, a2.ID(), "alice", 0, 30*time.Minute)

	require.NoError(t, p.SetParent(a2.ID(), b.ID()))

	assert.Equal(t, a1.ScheduleSeconds(), a.ScheduleSeconds())
	assert.Equal(t, 0.0, a.TotalLoggedSeconds())
	assert.Equal(t, a2.ScheduleSeconds()+b1.ScheduleSeconds(), b.ScheduleSeconds())
	assert.Equal(t, 1800.0, b.TotalLoggedSeconds())
	assertStatus(t, model.StatusReadyToStart, a)
	assertStatus(t, model.StatusWorkInProgress, b)
	assertAggregates(t, p)
}

func TestSetParent_TaskWithTimeLogsCannotHoldChildren(t *testing.T) {
	p, _ := newTestProduction(t)
	logged := mustCreate(t, p, TaskSpec{Name: "logged"})
	mustLog(t, p, logged.ID(), "alice", 0, time.Hour)
	other := mustCreate(t, p, TaskSpec{Name: "other"})

	err := p.SetParent(other.ID(), logged.ID())
	assert.ErrorIs(t, err, ErrValidation)

	_, err = p.CreateTask(TaskSpec{Name: "child", ParentID: logged.ID()})
	assert.ErrorIs(t, err, ErrValidation)
	assert.True(t, logged.IsLeaf())
}

func TestAddDependency_RejectsCycles(t *testing.T) {
	p, _ := newTestProduction(t)
	a := mustCreate(t, p, TaskSpec{Name: "a"})
	b := mustCreate(t, p, TaskSpec{Name: "b"})
	c := mustCreate(t, p, TaskSpec{Name: "c"})
	parent := mustCreate(t, p, TaskSpec{Name: "parent"})
	child := mustCreate(t, p, TaskSpec{Name: "child", ParentID: parent.ID()})
	x := mustCreate(t, p, TaskSpec{Name: "x"})
	y := mustCreate(t, p, TaskSpec{Name: "y"})

	_, err := p.AddDependency(a.ID(), DependencySpec{DependsOnID: b.ID()})
	require.NoError(t, err)
	_, err = p.AddDependency(b.ID(), DependencySpec{DependsOnID: c.ID()})
	require.NoError(t, err)
	_, err = p.AddDependency(parent.ID(), DependencySpec{DependsOnID: x.ID()})
	require.NoError(t, err)
	_, err = p.AddDependency(y.ID(), DependencySpec{DependsOnID: parent.ID()})
	require.NoError(t, err)

	tests := []struct {
		name      string
		task, dep string
	}{
		{"self", a.ID(), a.ID()},
		{"direct", b.ID(), a.ID()},
		{"transitive", c.ID(), a.ID()},
		{"on own ancestor", child.ID(), parent.ID()},
		{"on own descendant", parent.ID(), child.ID()},
		{"ancestor already depends", child.ID(), x.ID()},
		{"through a container", child.ID(), y.ID()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := p.AllDependencies()
			_, err := p.AddDependency(tt.task, DependencySpec{DependsOnID: tt.dep})
			require.Error(t, err)
			var cycle *CircularDependencyError
			require.True(t, errors.As(err, &cycle), "got %T: %v", err, err)
			assert.NotEmpty(t, cycle.Path)
			assert.ErrorIs(t, err, ErrCircularDependency)
			assert.Equal(t, before, p.AllDependencies(), "graph must be unchanged")
		})
	}
}

func TestAddDependency_CyclePath(t *testing.T) {
	p, _ := newTestProduction(t)
	a := mustCreate(t, p, TaskSpec{ID: "a", Name: "a"})
	mustCreate(t, p, TaskSpec{ID: "b", Name: "b", DependsOn: dependsOn("a")})
	mustCreate(t, p, TaskSpec{ID: "c", Name: "c", DependsOn: dependsOn("b")})

	_, err := p.AddDependency(a.ID(), DependencySpec{DependsOnID: "c"})
	var cycle *CircularDependencyError
	require.True(t, errors.As(err, &cycle))
	assert.Equal(t, []string{"a", "c", "b", "a"}, cycle.Path)
	assert.Contains(t, err.Error(), "a -> c -> b -> a")
}

func TestSetParent_RejectsCycles(t *testing.T) {
	p, _ := newTestProduction(t)
	root := mustCreate(t, p, TaskSpec{Name: "root"})
	mid := mustCreate(t, p, TaskSpec{Name: "mid", ParentID: root.ID()})
	leaf := mustCreate(t, p, TaskSpec{Name: "leaf", ParentID: mid.ID()})
	dep := mustCreate(t, p, TaskSpec{Name: "dep"})
	dependent := mustCreate(t, p, TaskSpec{Name: "dependent", DependsOn: dependsOn(root.ID())})
	sibling := mustCreate(t, p, TaskSpec{Name: "sibling", DependsOn: dependsOn(dep.ID())})
	_, err := p.AddDependency(mid.ID(), DependencySpec{DependsOnID: dep.ID()})
	require.NoError(t, err)

	tests := []struct {
		name          string
		child, parent string
	}{
		{"own parent", root.ID(), root.ID()},
		{"under own descendant", root.ID(), leaf.ID()},
		{"under a task depending on it", root.ID(), dependent.ID()},
		{"new ancestor depends on it", dep.ID(), mid.ID()},
		{"depends on its new ancestor", dependent.ID(), leaf.ID()},
		{"shares a dependency with new ancestor", sibling.ID(), leaf.ID()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := p.tasks[tt.child].Parent()
			err := p.SetParent(tt.child, tt.parent)
			assert.ErrorIs(t, err, ErrCircularDependency)
			assert.Equal(t, before, p.tasks[tt.child].Parent())
		})
	}
}

func TestRemoveDependency_OnlyDependencyFreesTask(t *testing.T) {
	p, _ := newTestProduction(t)
	b := mustCreate(t, p, TaskSpec{Name: "b"})
	a := mustCreate(t, p, TaskSpec{Name: "a", DependsOn: dependsOn(b.ID())})
	assertStatus(t, model.StatusWaitingForDependency, a)
	assert.Equal(t, []string{a.ID()}, p.Dependents(b.ID()))

	require.NoError(t, p.RemoveDependency(a.ID(), b.ID()))

	assertStatus(t, model.StatusReadyToStart, a)
	assert.ErrorIs(t, p.RemoveDependency(a.ID(), b.ID()), ErrNotFound)
}

func TestAddDependency_Defaults(t *testing.T) {
	p, _ := newTestProduction(t)
	b := mustCreate(t, p, TaskSpec{Name: "b"})
	a := mustCreate(t, p, TaskSpec{Name: "a"})

	d, err := p.AddDependency(a.ID(), DependencySpec{DependsOnID: b.ID(), GapTiming: 2, GapUnit: model.UnitDay})
	require.NoError(t, err)
	assert.Equal(t, model.TargetOnEnd, d.Target)
	assert.Equal(t, model.ModelLength, d.GapModel)
	assert.Equal(t, 2*9*3600.0, d.GapSeconds(p))

	_, err = p.AddDependency(a.ID(), DependencySpec{DependsOnID: b.ID()})
	assert.ErrorIs(t, err, ErrValidation, "duplicate edge")
	_, err = p.AddDependency(b.ID(), DependencySpec{DependsOnID: a.ID(), Target: "sideways"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = p.AddDependency(b.ID(), DependencySpec{DependsOnID: a.ID(), GapModel: model.ModelEffort})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAggregates_StayConsistentAcrossMutations(t *testing.T) {
	p, _ := newTestProduction(t)
	root := mustCreate(t, p, TaskSpec{Name: "root"})
	a := mustCreate(t, p, TaskSpec{Name: "a", ParentID: root.ID()})
	b := mustCreate(t, p, TaskSpec{Name: "b", ParentID: root.ID(), ScheduleTiming: 3})
	a1 := mustCreate(t, p, TaskSpec{Name: "a1", ParentID: a.ID(), ScheduleTiming: 90, ScheduleUnit: model.UnitMinute})
	a2 := mustCreate(t, p, TaskSpec{Name: "a2", ParentID: a.ID(), ScheduleTiming: 2, ScheduleUnit: model.UnitDay})
	assertAggregates(t, p)

	l1 := mustLog(t, p, a1.ID(), "alice", 0, 45*time.Minute)
	mustLog(t, p, b.ID(), "bob", 0, 2*time.Hour)
	assertAggregates(t, p)

	require.NoError(t, p.ResizeTimeLog(l1.ID, t0, t0.Add(80*time.Minute)))
	require.NoError(t, p.SetSchedule(a2.ID(), 1.5, model.UnitWeek, model.ModelEffort))
	assertAggregates(t, p)

	require.NoError(t, p.SetParent(b.ID(), a.ID()))
	assertAggregates(t, p)

	require.NoError(t, p.SetParent(a2.ID(), ""))
	c := mustCreate(t, p, TaskSpec{Name: "c", ParentID: root.ID(), ScheduleTiming: 7})
	mustLog(t, p, c.ID(), "carol", time.Hour, 4*time.Hour)
	require.NoError(t, p.DeleteTask(a1.ID()))
	assertAggregates(t, p)

	assert.InDelta(t, b.ScheduleSeconds()+c.ScheduleSeconds(), root.ScheduleSeconds(), aggregateTolerance)
	assert.InDelta(t, 2*3600.0+3*3600.0, root.TotalLoggedSeconds(), aggregateTolerance)
	assert.False(t, p.RecomputeAggregates(), "incremental values must match a full recompute")
}

func TestRecomputeAggregates_RepairsStaleCache(t *testing.T) {
	p, _ := newTestProduction(t)
	root := mustCreate(t, p, TaskSpec{Name: "root"})
	leaf := mustCreate(t, p, TaskSpec{Name: "leaf", ParentID: root.ID(), ScheduleTiming: 2})

	root.scheduleSeconds = 42
	leaf.loggedSeconds = 99

	assert.True(t, p.RecomputeAggregates())
	assert.Equal(t, 7200.0, root.ScheduleSeconds())
	assert.Equal(t, 0.0, leaf.TotalLoggedSeconds())
	assert.False(t, p.RecomputeAggregates())
}
