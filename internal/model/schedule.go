package model

import (
	"fmt"
	"strings"
)

// TimeUnit is the unit a schedule timing is expressed in.
type TimeUnit string

const (
	UnitMinute TimeUnit = "min"
	UnitHour   TimeUnit = "h"
	UnitDay    TimeUnit = "d"
	UnitWeek   TimeUnit = "w"
	UnitMonth  TimeUnit = "m"
	UnitYear   TimeUnit = "y"
)

// TimeUnits lists every unit from the largest to the smallest.
var TimeUnits = []TimeUnit{UnitYear, UnitMonth, UnitWeek, UnitDay, UnitHour, UnitMinute}

var unitAliases = map[string]TimeUnit{
	"min": UnitMinute, "minute": UnitMinute, "minutes": UnitMinute,
	"h": UnitHour, "hour": UnitHour, "hours": UnitHour,
	"d": UnitDay, "day": UnitDay, "days": UnitDay,
	"w": UnitWeek, "week": UnitWeek, "weeks": UnitWeek,
	"m": UnitMonth, "month": UnitMonth, "months": UnitMonth,
	"y": UnitYear, "year": UnitYear, "years": UnitYear,
}

// ParseUnit accepts the short code or the english name of a unit.
func ParseUnit(s string) (TimeUnit, error) {
	u, ok := unitAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown time unit %q", s)
	}
	return u, nil
}

// IsValid reports whether u is a known unit.
func (u TimeUnit) IsValid() bool {
	switch u {
	case UnitMinute, UnitHour, UnitDay, UnitWeek, UnitMonth, UnitYear:
		return true
	}
	return false
}

// ScheduleModel decides how a schedule timing is interpreted.
type ScheduleModel string

const (
	// ModelEffort is work time spent by the resources.
	ModelEffort ScheduleModel = "effort"
	// ModelLength is elapsed work time regardless of resources.
	ModelLength ScheduleModel = "length"
	// ModelDuration is elapsed calendar time.
	ModelDuration ScheduleModel = "duration"
)

func ParseScheduleModel(s string) (ScheduleModel, error) {
	m := ScheduleModel(strings.ToLower(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", fmt.Errorf("unknown schedule model %q", s)
	}
	return m, nil
}

func (m ScheduleModel) IsValid() bool {
	return m == ModelEffort || m == ModelLength || m == ModelDuration
}

// IsWorkTime reports whether timings under m are measured in working hours.
func (m ScheduleModel) IsWorkTime() bool {
	return m == ModelEffort || m == ModelLength
}

// ScheduleConstraint pins the start and/or end of a task for the scheduler.
type ScheduleConstraint string

const (
	ConstraintNone  ScheduleConstraint = "none"
	ConstraintStart ScheduleConstraint = "start"
	ConstraintEnd   ScheduleConstraint = "end"
	ConstraintBoth  ScheduleConstraint = "both"
)

func ParseScheduleConstraint(s string) (ScheduleConstraint, error) {
	c := ScheduleConstraint(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return ConstraintNone, nil
	}
	switch c {
	case ConstraintNone, ConstraintStart, ConstraintEnd, ConstraintBoth:
		return c, nil
	}
	return "", fmt.Errorf("unknown schedule constraint %q", s)
}

// DependencyTarget tells which boundary of the dependency a dependent trails.
type DependencyTarget string

const (
	TargetOnStart DependencyTarget = "onstart"
	TargetOnEnd   DependencyTarget = "onend"
)

func ParseDependencyTarget(s string) (DependencyTarget, error) {
	t := DependencyTarget(strings.ToLower(strings.TrimSpace(s)))
	if t == "" {
		return TargetOnEnd, nil
	}
	if t != TargetOnStart && t != TargetOnEnd {
		return "", fmt.Errorf("unknown dependency target %q", s)
	}
	return t, nil
}
