package task

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eoyilmaz/stalker-sub003/internal/events"
	"github.com/eoyilmaz/stalker-sub003/internal/model"
)

// Monday 09:00 UTC, aligned to the default one hour resolution.
var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestProduction(t *testing.T, opts ...Option) (*Production, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: t0}
	return New("test", append([]Option{WithClock(clock.Now)}, opts...)...), clock
}

func mustCreate(t *testing.T, p *Production, spec TaskSpec) *Task {
	t.Helper()
	task, err := p.CreateTask(spec)
	require.NoError(t, err)
	return task
}

func mustLog(t *testing.T, p *Production, taskID, resource string, from, to time.Duration) *TimeLog {
	t.Helper()
	tl, err := p.CreateTimeLog(taskID, resource, t0.Add(from), t0.Add(to))
	require.NoError(t, err)
	return tl
}

func at(d time.Duration) *time.Time {
	v := t0.Add(d)
	return &v
}

func dur(d time.Duration) *time.Duration { return &d }

func dependsOn(ids ...string) []DependencySpec {
	out := make([]DependencySpec, 0, len(ids))
	for _, id := range ids {
		out = append(out, DependencySpec{DependsOnID: id})
	}
	return out
}

func assertStatus(t *testing.T, want model.Status, task *Task) {
	t.Helper()
	assert.Equal(t, want, task.Status(), "status of %s", task.Name())
}

// assertAggregates checks every container against the live values of its
// children.
func assertAggregates(t *testing.T, p *Production) {
	t.Helper()
	for _, task := range p.Tasks() {
		if !task.IsContainer() {
			continue
		}
		var schedule, logged float64
		for _, id := range task.Children() {
			c, err := p.Task(id)
			require.NoError(t, err)
			schedule += c.ScheduleSeconds()
			logged += c.TotalLoggedSeconds()
		}
		assert.InDelta(t, schedule, task.ScheduleSeconds(), aggregateTolerance, "schedule of %s", task.Name())
		assert.InDelta(t, logged, task.TotalLoggedSeconds(), aggregateTolerance, "logged of %s", task.Name())
	}
}

type recordedEvent struct {
	Type events.EventType
	Data map[string]interface{}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingNotifier) Publish(eventType events.EventType, data map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Type: eventType, Data: data})
}

func (r *recordingNotifier) ofType(eventType events.EventType) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fakeBackstop struct {
	reserveErr error
	releaseErr error
	reserved   map[string]TimeLog
	released   []string
}

func newFakeBackstop() *fakeBackstop {
	return &fakeBackstop{reserved: make(map[string]TimeLog)}
}

func (b *fakeBackstop) Reserve(tl TimeLog) error {
	if b.reserveErr != nil {
		return b.reserveErr
	}
	b.reserved[tl.ID] = tl
	return nil
}

func (b *fakeBackstop) Release(id string) error {
	if b.releaseErr != nil {
		return b.releaseErr
	}
	delete(b.reserved, id)
	b.released = append(b.released, id)
	return nil
}
