// Package store persists productions. Every mutation runs as one
// load, mutate, save cycle; a mutation that returns an error saves nothing.
package store

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/eoyilmaz/stalker-sub003/internal/model"
	"github.com/eoyilmaz/stalker-sub003/internal/task"
)

const (
	DriverYAML   = "yaml"
	DriverSQLite = "sqlite"
)

// Store loads and saves a single production.
type Store interface {
	// Load returns the current production. Changes made to it are not saved.
	Load(ctx context.Context) (*task.Production, error)
	// Update hands the current production to fn and saves it when fn
	// succeeds. Concurrent updates of the same store are serialized.
	Update(ctx context.Context, fn func(*task.Production) error) error
	// Path is the file the production lives in.
	Path() string
	Close() error
}

// Open builds the store described by cfg. Relative paths resolve against
// stateDir; name is used for a production that was never saved.
func Open(cfg model.StoreConfig, stateDir, name string, opts ...task.Option) (Store, error) {
	path := cfg.Path
	if path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(stateDir, path)
	}
	switch cfg.Driver {
	case "", DriverYAML:
		if path == "" {
			path = filepath.Join(stateDir, "production.yaml")
		}
		return NewYAMLStore(path, stateDir, name, opts...), nil
	case DriverSQLite:
		if path == "" {
			path = filepath.Join(stateDir, "production.db")
		}
		return OpenSQLite(path, name, opts...)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
