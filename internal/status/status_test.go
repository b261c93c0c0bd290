package status

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/eoyilmaz/stalker-sub003/internal/model"
	"github.com/eoyilmaz/stalker-sub003/internal/task"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newProduction(t *testing.T) *task.Production {
	t.Helper()
	p := task.New("seq010", task.WithClock(func() time.Time { return t0 }))
	mk := func(spec task.TaskSpec) {
		if _, err := p.CreateTask(spec); err != nil {
			t.Fatalf("create %s: %v", spec.ID, err)
		}
	}
	mk(task.TaskSpec{ID: "task_seq", Name: "seq010", Responsible: []string{"alice"}})
	mk(task.TaskSpec{ID: "task_layout", Name: "layout", ParentID: "task_seq", ScheduleTiming: 4, Resources: []string{"bob"}})
	mk(task.TaskSpec{ID: "task_anim", Name: "anim", ParentID: "task_seq", ScheduleTiming: 4,
		DependsOn: []task.DependencySpec{{DependsOnID: "task_layout"}}})
	mk(task.TaskSpec{ID: "task_edit", Name: "edit", ScheduleTiming: 2})

	if _, err := p.CreateTimeLog("task_layout", "bob", t0, t0.Add(2*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := p.RequestReview("task_layout"); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestBuild(t *testing.T) {
	s := Build(newProduction(t))

	if s.Production != "seq010" || s.Tasks != 4 {
		t.Fatalf("unexpected header: %+v", s)
	}
	if s.ScheduledHours != 10 || s.LoggedHours != 2 {
		t.Errorf("totals = %.1f/%.1f, want 2/10", s.LoggedHours, s.ScheduledHours)
	}
	if s.Percent != 20 {
		t.Errorf("percent = %.1f, want 20", s.Percent)
	}
	want := map[string]int{"WIP": 1, "PREV": 1, "WFD": 1, "RTS": 1}
	for k, v := range want {
		if s.ByStatus[k] != v {
			t.Errorf("by_status[%s] = %d, want %d", k, s.ByStatus[k], v)
		}
	}

	var order []string
	for _, r := range s.Rows {
		order = append(order, r.ID)
	}
	if got := strings.Join(order, ","); got != "task_edit,task_seq,task_anim,task_layout" {
		t.Errorf("row order = %s", got)
	}
	anim := s.Rows[2]
	if anim.Depth != 1 || anim.Status != model.StatusWaitingForDependency || len(anim.DependsOn) != 1 {
		t.Errorf("unexpected anim row %+v", anim)
	}
	if !s.Rows[1].Container {
		t.Error("seq should be marked as a container")
	}

	if len(s.OpenReviews) != 1 || s.OpenReviews[0].Reviewer != "alice" || s.OpenReviews[0].Number != 1 {
		t.Errorf("unexpected open reviews %+v", s.OpenReviews)
	}
}

func TestRun_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Run(&buf, newProduction(t), true); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var got ProductionStatus
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if got.Tasks != 4 || len(got.Rows) != 4 {
		t.Errorf("unexpected decoded status %+v", got)
	}
}

func TestRun_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := Run(&buf, newProduction(t), false); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"Production: seq010  tasks=4",
		"Statuses: WFD=1 RTS=1 WIP=1 PREV=1",
		"  seq010/",
		"    layout",
		"Open reviews:",
		"reviewer=alice",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRun_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := Run(&buf, task.New("empty"), false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Tasks: none") {
		t.Errorf("unexpected output %q", buf.String())
	}
}
