// Package task implements the production engine: tasks kept in an id-keyed
// arena, the parent/child and depends-on graphs between them, the cached
// schedule and logged-time roll-up, the status workflow and time booking.
//
// A Production is not safe for concurrent use. Every exported mutation is
// one atomic unit: it validates first, then applies and settles every
// derived value before returning, so a rejected mutation leaves the
// production unchanged.
package task

import (
	"log"
	"sort"
	"time"

	"github.com/eoyilmaz/stalker-sub003/internal/events"
	"github.com/eoyilmaz/stalker-sub003/internal/graph"
	"github.com/eoyilmaz/stalker-sub003/internal/timing"
)

const (
	DefaultPriority = 500
	MaxPriority     = 1000
)

// Notifier receives engine events. *events.Bus satisfies it.
type Notifier interface {
	Publish(eventType events.EventType, data map[string]interface{})
}

// Backstop is the persistence-side guard consulted before a booking is
// committed. Reserve is called with the final state of a new or resized
// time log; returning an error matching ErrBookingConflict rejects it as an
// overbooking.
type Backstop interface {
	Reserve(tl TimeLog) error
	Release(timeLogID string) error
}

type depKey struct {
	taskID      string
	dependsOnID string
}

// Production is one tree of tasks with its dependency graph and bookings.
type Production struct {
	name            string
	settings        timing.Settings
	now             func() time.Time
	logger          *log.Logger
	logLevel        LogLevel
	notifier        Notifier
	backstop        Backstop
	defaultPriority int

	tasks        map[string]*Task
	children     *graph.Edges // parent -> child
	depends      *graph.Edges // task -> task it depends on
	dependencies map[depKey]*Dependency

	timeLogs     map[string]*TimeLog
	taskLogs     map[string]map[string]struct{}
	resourceLogs map[string]map[string]struct{}

	reviews     map[string]*Review
	taskReviews map[string][]string
}

// Option configures a Production.
type Option func(*Production)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Production) { p.now = now }
}

func WithSettings(s timing.Settings) Option {
	return func(p *Production) { p.settings = s }
}

func WithLogger(logger *log.Logger, level LogLevel) Option {
	return func(p *Production) {
		p.logger = logger
		p.logLevel = level
	}
}

func WithNotifier(n Notifier) Option {
	return func(p *Production) { p.notifier = n }
}

func WithBackstop(b Backstop) Option {
	return func(p *Production) { p.backstop = b }
}

func WithDefaultPriority(priority int) Option {
	return func(p *Production) {
		if priority >= 0 && priority <= MaxPriority {
			p.defaultPriority = priority
		}
	}
}

// New creates an empty production.
func New(name string, opts ...Option) *Production {
	p := &Production{
		name:            name,
		settings:        timing.DefaultSettings(),
		now:             time.Now,
		defaultPriority: DefaultPriority,
		tasks:           make(map[string]*Task),
		children:        graph.NewEdges(),
		depends:         graph.NewEdges(),
		dependencies:    make(map[depKey]*Dependency),
		timeLogs:        make(map[string]*TimeLog),
		taskLogs:        make(map[string]map[string]struct{}),
		resourceLogs:    make(map[string]map[string]struct{}),
		reviews:         make(map[string]*Review),
		taskReviews:     make(map[string][]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Production) Name() string { return p.name }

func (p *Production) Settings() timing.Settings { return p.settings }

// Now returns the production clock.
func (p *Production) Now() time.Time { return p.now() }

// Task returns the task with the given id.
func (p *Production) Task(id string) (*Task, error) {
	t, ok := p.tasks[id]
	if !ok {
		return nil, notFound("task", id)
	}
	return t, nil
}

// Tasks returns every task ordered by id.
func (p *Production) Tasks() []*Task {
	ids := make([]string, 0, len(p.tasks))
	for id := range p.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*Task, 0, len(ids))
	for _, id := range ids {
		out = append(out, p.tasks[id])
	}
	return out
}

// Roots returns the tasks without a parent, ordered by id.
func (p *Production) Roots() []*Task {
	var out []*Task
	for _, t := range p.Tasks() {
		if p.parentOf(t.id) == "" {
			out = append(out, t)
		}
	}
	return out
}

func (p *Production) parentOf(id string) string {
	parents := p.children.Predecessors(id)
	if len(parents) == 0 {
		return ""
	}
	return parents[0]
}

// ancestors returns the parent chain of id, nearest first.
func (p *Production) ancestors(id string) []string {
	var out []string
	for cur := p.parentOf(id); cur != ""; cur = p.parentOf(cur) {
		out = append(out, cur)
	}
	return out
}

// subtree returns id followed by every descendant.
func (p *Production) subtree(id string) []string {
	return append([]string{id}, graph.Closure(p.children, id)...)
}

func (p *Production) isContainer(id string) bool {
	return p.children.OutDegree(id) > 0
}

// waitsFor is the combined relation used for cycle checks: a container
// waits for its children and a task waits for its dependencies.
func (p *Production) waitsFor() graph.Relation {
	return graph.Union(p.children, p.depends)
}

func (p *Production) notify(eventType events.EventType, data map[string]interface{}) {
	if p.notifier == nil {
		return
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	data["production"] = p.name
	p.notifier.Publish(eventType, data)
}
