// Package setup handles stalker project initialization.
package setup

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/eoyilmaz/stalker-sub003/internal/config"
	"github.com/eoyilmaz/stalker-sub003/internal/model"
	atomicyaml "github.com/eoyilmaz/stalker-sub003/internal/yaml"
	"github.com/eoyilmaz/stalker-sub003/templates"
)

// Options override template values at init time. Empty fields keep the
// template's value.
type Options struct {
	ProjectName string
	Driver      string
}

// Run initializes the .stalker/ directory in projectDir and returns its path.
// The project name defaults to the directory basename.
func Run(projectDir string, opts Options) (string, error) {
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return "", fmt.Errorf("resolve project dir: %w", err)
	}

	base := filepath.Join(absDir, config.DirName)
	if _, err := os.Stat(base); err == nil {
		return "", fmt.Errorf("%s already exists", base)
	}

	cfg, err := generateConfig(absDir, opts)
	if err != nil {
		return "", fmt.Errorf("generate config: %w", err)
	}
	if err := config.Validate(*cfg); err != nil {
		return "", err
	}

	for _, d := range []string{"logs", "quarantine"} {
		if err := os.MkdirAll(filepath.Join(base, d), 0755); err != nil {
			return "", fmt.Errorf("create directory %s: %w", d, err)
		}
	}
	if err := atomicyaml.AtomicWrite(filepath.Join(base, config.FileName), cfg); err != nil {
		return "", fmt.Errorf("write %s: %w", config.FileName, err)
	}
	return base, nil
}

func generateConfig(projectDir string, opts Options) (*model.Config, error) {
	data, err := fs.ReadFile(templates.FS, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("read config template: %w", err)
	}

	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config template: %w", err)
	}

	if opts.ProjectName != "" {
		cfg.Project.Name = opts.ProjectName
	} else {
		cfg.Project.Name = filepath.Base(projectDir)
	}
	if opts.Driver != "" {
		cfg.Store.Driver = opts.Driver
	}
	cfg.Project.Created = time.Now().Format(time.RFC3339)
	return &cfg, nil
}
