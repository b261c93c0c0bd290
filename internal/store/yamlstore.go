package store

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/eoyilmaz/stalker-sub003/internal/lock"
	"github.com/eoyilmaz/stalker-sub003/internal/task"
	yamlutil "github.com/eoyilmaz/stalker-sub003/internal/yaml"
)

// pathLocks serializes updates of the same file within this process; the
// file lock does the same across processes.
var pathLocks = lock.NewMutexMap()

// YAMLStore keeps a production as a single snapshot file.
type YAMLStore struct {
	path     string
	stateDir string
	name     string
	opts     []task.Option
	lockPoll time.Duration
}

func NewYAMLStore(path, stateDir, name string, opts ...task.Option) *YAMLStore {
	return &YAMLStore{
		path:     path,
		stateDir: stateDir,
		name:     name,
		opts:     opts,
		lockPoll: 20 * time.Millisecond,
	}
}

func (s *YAMLStore) Path() string { return s.path }

func (s *YAMLStore) Load(ctx context.Context) (*task.Production, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap, found, err := s.read()
	if err != nil {
		return nil, err
	}
	if !found {
		return task.New(s.name, s.opts...), nil
	}
	p, err := task.Restore(snap, s.opts...)
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", s.path, err)
	}
	return p, nil
}

func (s *YAMLStore) Update(ctx context.Context, fn func(*task.Production) error) error {
	pathLocks.Lock(s.path)
	defer pathLocks.Unlock(s.path)

	if err := os.MkdirAll(s.stateDir, 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	fl := lock.NewFileLock(s.path + ".lock")
	if err := fl.Lock(ctx, s.lockPoll); err != nil {
		return err
	}
	defer fl.Unlock()

	p, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if err := fn(p); err != nil {
		return err
	}
	if err := yamlutil.AtomicWrite(s.path, p.Snapshot()); err != nil {
		return fmt.Errorf("save %s: %w", s.path, err)
	}
	return nil
}

func (s *YAMLStore) Close() error { return nil }

// read decodes the snapshot file. A file that is not a readable snapshot is
// quarantined and replaced by its backup or an empty skeleton.
func (s *YAMLStore) read() (task.Snapshot, bool, error) {
	content, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return task.Snapshot{}, false, nil
	}
	if err != nil {
		return task.Snapshot{}, false, fmt.Errorf("read %s: %w", s.path, err)
	}

	snap, err := decodeSnapshot(content)
	if err == nil {
		return snap, true, nil
	}
	log.Printf("snapshot %s is unreadable: %v", s.path, err)
	how, rerr := yamlutil.RecoverCorruptedFile(s.stateDir, s.path, task.SnapshotFileType, s.name, func(b []byte) error {
		_, err := decodeSnapshot(b)
		return err
	})
	if rerr != nil {
		return task.Snapshot{}, false, fmt.Errorf("recover %s: %w", s.path, rerr)
	}
	log.Printf("snapshot %s recovered from %s", s.path, how)

	content, err = os.ReadFile(s.path)
	if err != nil {
		return task.Snapshot{}, false, fmt.Errorf("read %s: %w", s.path, err)
	}
	snap, err = decodeSnapshot(content)
	if err != nil {
		return task.Snapshot{}, false, fmt.Errorf("decode recovered %s: %w", s.path, err)
	}
	return snap, true, nil
}

func decodeSnapshot(content []byte) (task.Snapshot, error) {
	if err := yamlutil.ValidateSchemaHeaderFromBytes(content, task.SnapshotFileType); err != nil {
		return task.Snapshot{}, err
	}
	var snap task.Snapshot
	if err := yamlv3.Unmarshal(content, &snap); err != nil {
		return task.Snapshot{}, fmt.Errorf("parse snapshot: %w", err)
	}
	return snap, nil
}
