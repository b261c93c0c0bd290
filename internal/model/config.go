// Package model defines the configuration, workflow statuses, schedule enums and ids
// shared by the stalker packages.
package model

type Config struct {
	Project   ProjectConfig   `yaml:"project"`
	Studio    StudioConfig    `yaml:"studio"`
	Store     StoreConfig     `yaml:"store"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
	Audit     AuditConfig     `yaml:"audit"`
	Notify    NotifyConfig    `yaml:"notify"`
}

type ProjectConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Created     string `yaml:"created"`
}

// StudioConfig carries the working-time figures used by timing conversion.
type StudioConfig struct {
	DailyWorkingHours   int `yaml:"daily_working_hours"`
	WeeklyWorkingDays   int `yaml:"weekly_working_days"`
	YearlyWorkingDays   int `yaml:"yearly_working_days"`
	TimingResolutionMin int `yaml:"timing_resolution_min"`
	DefaultDurationDays int `yaml:"default_duration_days"`
	DefaultPriority     int `yaml:"default_priority"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // "yaml" or "sqlite"
	Path   string `yaml:"path"`   // relative paths resolve against the .stalker directory
}

type SchedulerConfig struct {
	Command    string   `yaml:"command"`
	Args       []string `yaml:"args,omitempty"`
	TimeoutSec int      `yaml:"timeout_sec"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type AuditConfig struct {
	Enabled      bool  `yaml:"enabled"`
	MaxSizeBytes int64 `yaml:"max_size_bytes"`
	Checksum     bool  `yaml:"checksum"`
}

// NotifyConfig turns on desktop notifications for reviews and revisions.
type NotifyConfig struct {
	Enabled bool `yaml:"enabled"`
}
