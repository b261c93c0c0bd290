package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/eoyilmaz/stalker-sub003/internal/config"
	"github.com/eoyilmaz/stalker-sub003/internal/events"
	"github.com/eoyilmaz/stalker-sub003/internal/model"
	"github.com/eoyilmaz/stalker-sub003/internal/notify"
	"github.com/eoyilmaz/stalker-sub003/internal/store"
	"github.com/eoyilmaz/stalker-sub003/internal/task"
	"github.com/eoyilmaz/stalker-sub003/internal/timing"
)

const busBufferSize = 1024

// app is the per-invocation wiring of config, store, logging and audit.
type app struct {
	dir    string
	cfg    model.Config
	store  store.Store
	logger *log.Logger

	logFile  *os.File
	bus      *events.Bus
	audit    *events.AuditLogger
	notifier *deferredNotifier
}

func openApp(projectDir string) (*app, error) {
	dir, err := config.FindDir(projectDir)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(filepath.Join(dir, config.FileName))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logPath := filepath.Join(dir, "logs", "stalker.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}

	a := &app{
		dir:      dir,
		cfg:      cfg,
		logger:   log.New(logFile, "", 0),
		logFile:  logFile,
		bus:      events.NewBus(busBufferSize),
		notifier: &deferredNotifier{},
	}
	if cfg.Audit.Enabled {
		audit, err := events.NewAuditLogger(filepath.Join(dir, "logs", "audit.jsonl"), cfg.Audit.MaxSizeBytes)
		if err != nil {
			a.Close()
			return nil, err
		}
		audit.EnableChecksum(cfg.Audit.Checksum)
		audit.Attach(a.bus, func(err error) { a.logger.Printf("audit: %v", err) })
		a.audit = audit
	}

	name := cfg.Project.Name
	if name == "" {
		name = filepath.Base(filepath.Dir(dir))
	}
	if cfg.Notify.Enabled {
		notify.Attach(a.bus, name, notify.Desktop{}, func(err error) { a.logger.Printf("notify: %v", err) })
	}
	st, err := store.Open(cfg.Store, dir, name,
		task.WithSettings(timing.FromConfig(cfg.Studio)),
		task.WithDefaultPriority(cfg.Studio.DefaultPriority),
		task.WithLogger(a.logger, task.ParseLogLevel(cfg.Logging.Level)),
		task.WithNotifier(a.notifier),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = st
	return a, nil
}

// load returns the stored production; events raised while restoring it are
// not published.
func (a *app) load(ctx context.Context) (*task.Production, error) {
	p, err := a.store.Load(ctx)
	a.notifier.discard()
	return p, err
}

// update runs fn in a store update. Engine events reach the bus only when
// the update was saved.
func (a *app) update(ctx context.Context, fn func(*task.Production) error) error {
	a.notifier.discard()
	err := a.store.Update(ctx, fn)
	if err != nil {
		a.notifier.discard()
		return err
	}
	a.notifier.flush(a.bus)
	return nil
}

// Close drains the bus before closing the audit trail.
func (a *app) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.bus != nil {
		a.bus.Close()
	}
	if a.audit != nil {
		errs = append(errs, a.audit.Close())
	}
	if a.logFile != nil {
		errs = append(errs, a.logFile.Close())
	}
	return errors.Join(errs...)
}

type pendingEvent struct {
	eventType events.EventType
	data      map[string]interface{}
}

// deferredNotifier holds engine events until the surrounding update is
// known to have been saved.
type deferredNotifier struct {
	mu      sync.Mutex
	pending []pendingEvent
}

func (n *deferredNotifier) Publish(eventType events.EventType, data map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = append(n.pending, pendingEvent{eventType, data})
}

func (n *deferredNotifier) flush(bus *events.Bus) {
	n.mu.Lock()
	pending := n.pending
	n.pending = nil
	n.mu.Unlock()
	for _, e := range pending {
		bus.Publish(e.eventType, e.data)
	}
}

func (n *deferredNotifier) discard() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = nil
}

// storeAdapter hands the app's event-aware load and update to packages that
// expect a store.
type storeAdapter struct{ a *app }

func (s storeAdapter) Load(ctx context.Context) (*task.Production, error) { return s.a.load(ctx) }

func (s storeAdapter) Update(ctx context.Context, fn func(*task.Production) error) error {
	return s.a.update(ctx, fn)
}
