// Package config loads and watches the .stalker/config.yaml file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/eoyilmaz/stalker-sub003/internal/model"
	"github.com/eoyilmaz/stalker-sub003/internal/store"
	"github.com/eoyilmaz/stalker-sub003/internal/task"
)

const (
	DirName  = ".stalker"
	FileName = "config.yaml"
)

// Defaults returns the configuration used for every field left empty.
func Defaults() model.Config {
	return model.Config{
		Studio: model.StudioConfig{
			DailyWorkingHours:   9,
			WeeklyWorkingDays:   5,
			YearlyWorkingDays:   261,
			TimingResolutionMin: 60,
			DefaultDurationDays: 10,
			DefaultPriority:     task.DefaultPriority,
		},
		Store:     model.StoreConfig{Driver: store.DriverYAML},
		Scheduler: model.SchedulerConfig{TimeoutSec: 60},
		Logging:   model.LoggingConfig{Level: "info"},
		Audit:     model.AuditConfig{Enabled: true, MaxSizeBytes: 100 * 1024 * 1024},
	}
}

// Load reads path, fills the defaults and validates the result.
func Load(path string) (model.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Config{}, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return Parse(data)
}

func Parse(data []byte) (model.Config, error) {
	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return model.Config{}, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return model.Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *model.Config) {
	d := Defaults()
	s := &cfg.Studio
	if s.DailyWorkingHours == 0 {
		s.DailyWorkingHours = d.Studio.DailyWorkingHours
	}
	if s.WeeklyWorkingDays == 0 {
		s.WeeklyWorkingDays = d.Studio.WeeklyWorkingDays
	}
	if s.YearlyWorkingDays == 0 {
		s.YearlyWorkingDays = d.Studio.YearlyWorkingDays
	}
	if s.TimingResolutionMin == 0 {
		s.TimingResolutionMin = d.Studio.TimingResolutionMin
	}
	if s.DefaultDurationDays == 0 {
		s.DefaultDurationDays = d.Studio.DefaultDurationDays
	}
	if s.DefaultPriority == 0 {
		s.DefaultPriority = d.Studio.DefaultPriority
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = d.Store.Driver
	}
	if cfg.Scheduler.TimeoutSec == 0 {
		cfg.Scheduler.TimeoutSec = d.Scheduler.TimeoutSec
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Audit.MaxSizeBytes == 0 {
		cfg.Audit.MaxSizeBytes = d.Audit.MaxSizeBytes
	}
}

// Validate reports every out-of-range field at once.
func Validate(cfg model.Config) error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	s := cfg.Studio
	check(s.DailyWorkingHours >= 1 && s.DailyWorkingHours <= 24, "studio.daily_working_hours must be 1-24, got %d", s.DailyWorkingHours)
	check(s.WeeklyWorkingDays >= 1 && s.WeeklyWorkingDays <= 7, "studio.weekly_working_days must be 1-7, got %d", s.WeeklyWorkingDays)
	check(s.YearlyWorkingDays >= 1 && s.YearlyWorkingDays <= 366, "studio.yearly_working_days must be 1-366, got %d", s.YearlyWorkingDays)
	check(s.TimingResolutionMin >= 1 && s.TimingResolutionMin <= 24*60, "studio.timing_resolution_min must be 1-1440, got %d", s.TimingResolutionMin)
	check(s.DefaultDurationDays >= 1, "studio.default_duration_days must be positive, got %d", s.DefaultDurationDays)
	check(s.DefaultPriority >= 0 && s.DefaultPriority <= task.MaxPriority, "studio.default_priority must be 0-%d, got %d", task.MaxPriority, s.DefaultPriority)

	switch cfg.Store.Driver {
	case store.DriverYAML, store.DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("store.driver must be yaml or sqlite, got %q", cfg.Store.Driver))
	}
	check(cfg.Scheduler.TimeoutSec > 0, "scheduler.timeout_sec must be positive, got %d", cfg.Scheduler.TimeoutSec)
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", cfg.Logging.Level))
	}
	check(cfg.Audit.MaxSizeBytes > 0, "audit.max_size_bytes must be positive, got %d", cfg.Audit.MaxSizeBytes)
	return errors.Join(errs...)
}

// FindDir walks up from dir looking for a .stalker directory.
func FindDir(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s directory found; run `stalker init` first", DirName)
		}
		dir = parent
	}
}
