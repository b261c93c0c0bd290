package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eoyilmaz/stalker-sub003/internal/config"
	"github.com/eoyilmaz/stalker-sub003/internal/model"
	"github.com/eoyilmaz/stalker-sub003/internal/status"
	"github.com/eoyilmaz/stalker-sub003/internal/task"
	yamlutil "github.com/eoyilmaz/stalker-sub003/internal/yaml"
)

func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--dir", dir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func mustExecute(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := execute(t, dir, args...)
	require.NoError(t, err, "stalker %s\n%s", strings.Join(args, " "), out)
	return out
}

func statusOf(t *testing.T, dir string) map[string]model.Status {
	t.Helper()
	var s status.ProductionStatus
	require.NoError(t, json.Unmarshal([]byte(mustExecute(t, dir, "status", "--json")), &s))
	out := make(map[string]model.Status, len(s.Rows))
	for _, r := range s.Rows {
		out[r.ID] = r.Status
	}
	return out
}

func auditLines(t *testing.T, dir string) int {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, ".stalker", "logs", "audit.jsonl"))
	require.NoError(t, err)
	defer f.Close()
	n := 0
	for s := bufio.NewScanner(f); s.Scan(); {
		n++
	}
	return n
}

func TestWorkflow(t *testing.T) {
	for _, driver := range []string{"yaml", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			dir := t.TempDir()
			out := mustExecute(t, dir, "init", dir, "--name", "seq010", "--driver", driver)
			assert.Contains(t, out, "Initialized")

			mustExecute(t, dir, "task", "add", "seq", "--id", "task_seq", "--responsible", "alice")
			out = mustExecute(t, dir, "task", "add", "layout", "--id", "task_layout", "--parent", "task_seq", "--timing", "2", "--resource", "bob")
			assert.Contains(t, out, "task_layout\tRTS")
			mustExecute(t, dir, "task", "add", "anim", "--id", "task_anim", "--parent", "task_seq", "--depends", "task_layout")

			assert.Equal(t, map[string]model.Status{
				"task_seq":    model.StatusReadyToStart,
				"task_layout": model.StatusReadyToStart,
				"task_anim":   model.StatusWaitingForDependency,
			}, statusOf(t, dir))

			_, err := execute(t, dir, "log", "add", "task_anim", "--resource", "bob", "--start", "2026-03-02T09:00:00Z", "--duration", "1h")
			assert.True(t, errors.Is(err, task.ErrStatus), "got %v", err)

			out = mustExecute(t, dir, "log", "add", "task_layout", "--resource", "bob", "--start", "2026-03-02T09:00:00Z", "--duration", "2h")
			assert.Contains(t, out, "2.0h")
			_, err = execute(t, dir, "log", "add", "task_layout", "--resource", "bob", "--start", "2026-03-02T10:00:00Z", "--end", "2026-03-02T12:00:00Z")
			assert.True(t, errors.Is(err, task.ErrOverBooked), "got %v", err)

			out = mustExecute(t, dir, "review", "request", "task_layout")
			fields := strings.Fields(out)
			require.Len(t, fields, 3, out)
			assert.Equal(t, "alice", fields[1])
			mustExecute(t, dir, "review", "approve", fields[0])

			got := statusOf(t, dir)
			assert.Equal(t, model.StatusCompleted, got["task_layout"])
			assert.Equal(t, model.StatusReadyToStart, got["task_anim"])
			assert.Equal(t, model.StatusWorkInProgress, got["task_seq"])

			out = mustExecute(t, dir, "task", "show", "task_layout")
			assert.Contains(t, out, "status:     CMPL")
			assert.Contains(t, out, "responsible: alice")

			out = mustExecute(t, dir, "log", "list", "--resource", "bob")
			assert.Equal(t, 1, strings.Count(out, "\n"))
		})
	}
}

func TestFailedCommandLeavesNoAuditTrail(t *testing.T) {
	dir := t.TempDir()
	mustExecute(t, dir, "init", dir)
	mustExecute(t, dir, "task", "add", "a", "--id", "task_a")
	mustExecute(t, dir, "task", "add", "b", "--id", "task_b", "--depends", "task_a")
	before := auditLines(t, dir)
	require.Greater(t, before, 0)

	_, err := execute(t, dir, "depend", "add", "task_a", "task_b")
	assert.True(t, errors.Is(err, task.ErrCircularDependency), "got %v", err)
	assert.Equal(t, before, auditLines(t, dir))

	mustExecute(t, dir, "task", "add", "c")
	assert.Greater(t, auditLines(t, dir), before)
}

func TestTaskSetAndControl(t *testing.T) {
	dir := t.TempDir()
	mustExecute(t, dir, "init", dir)
	mustExecute(t, dir, "task", "add", "comp", "--id", "task_comp", "--timing", "4")
	mustExecute(t, dir, "task", "set", "task_comp", "--name", "comp v2", "--timing", "1", "--unit", "d", "--priority", "900", "--resource", "carol")
	mustExecute(t, dir, "log", "add", "task_comp", "--resource", "carol", "--start", "2026-03-02T09:00:00Z", "--duration", "3h")
	mustExecute(t, dir, "stop", "task_comp")

	out := mustExecute(t, dir, "task", "show", "task_comp")
	assert.Contains(t, out, "task_comp  comp v2")
	assert.Contains(t, out, "status:     STOP")
	assert.Contains(t, out, "priority:   900")
	assert.Contains(t, out, "3.0h scheduled, 3.0h logged")

	mustExecute(t, dir, "resume", "task_comp")
	assert.Equal(t, model.StatusWorkInProgress, statusOf(t, dir)["task_comp"])

	_, err := execute(t, dir, "task", "set", "task_comp", "--unit", "fortnight")
	assert.Error(t, err)
	mustExecute(t, dir, "task", "rm", "task_comp")
	assert.Empty(t, statusOf(t, dir))
}

func TestScheduleAndProject(t *testing.T) {
	dir := t.TempDir()
	mustExecute(t, dir, "init", dir)
	mustExecute(t, dir, "task", "add", "layout", "--id", "task_layout")

	out := mustExecute(t, dir, "project")
	var req struct {
		Production string `json:"production"`
		Tasks      []struct {
			ID string `json:"id"`
		} `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &req))
	require.Len(t, req.Tasks, 1)
	assert.Equal(t, "task_layout", req.Tasks[0].ID)

	_, err := execute(t, dir, "schedule")
	assert.ErrorContains(t, err, "scheduler.command")

	cfgPath := filepath.Join(dir, ".stalker", config.FileName)
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	cfg.Scheduler.Command = "sh"
	cfg.Scheduler.Args = []string{"-c", `cat >/dev/null; echo '{"tasks":[{"id":"task_layout","computed_start":"2026-04-01T09:00:00Z","computed_end":"2026-04-01T18:00:00Z","computed_resources":["bob"]}]}'`}
	require.NoError(t, yamlutil.AtomicWrite(cfgPath, cfg))

	out = mustExecute(t, dir, "schedule")
	assert.Contains(t, out, "Scheduled 1 of 1 tasks")
	out = mustExecute(t, dir, "task", "show", "task_layout")
	assert.Contains(t, out, "range:      2026-04-01 09:00 - 2026-04-01 18:00")
}

func TestParseSpan(t *testing.T) {
	tests := map[string]time.Duration{
		"90m": 90 * time.Minute,
		"3d":  72 * time.Hour,
		"2w":  14 * 24 * time.Hour,
		"1h":  time.Hour,
	}
	for in, want := range tests {
		got, err := parseSpan(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseSpan("xd")
	assert.Error(t, err)
}
