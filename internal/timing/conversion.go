// Package timing converts schedule timings between units and seconds and
// reconciles start/end/duration triples.
//
// Effort and length timings are measured in studio work time (a day is the
// configured number of working hours), duration timings in calendar time.
package timing

import (
	"math"
	"time"

	"github.com/eoyilmaz/stalker-sub003/internal/model"
)

const (
	minuteSeconds = 60
	hourSeconds   = 3600

	calendarDaySeconds   = 86400
	calendarWeekSeconds  = 604800
	calendarMonthSeconds = 2419200
	calendarYearSeconds  = 31536000
)

// Settings holds the studio figures every conversion depends on.
type Settings struct {
	DailyWorkingHours int
	WeeklyWorkingDays int
	YearlyWorkingDays int
	TimingResolution  time.Duration
	DefaultDuration   time.Duration
}

// DefaultSettings returns a 9 hour day, 5 day week, 261 day year,
// one hour resolution and ten day default span.
func DefaultSettings() Settings {
	return Settings{
		DailyWorkingHours: 9,
		WeeklyWorkingDays: 5,
		YearlyWorkingDays: 261,
		TimingResolution:  time.Hour,
		DefaultDuration:   10 * 24 * time.Hour,
	}
}

// FromConfig builds Settings from the studio section of the config, keeping
// the defaults for every zero field.
func FromConfig(c model.StudioConfig) Settings {
	s := DefaultSettings()
	if c.DailyWorkingHours > 0 {
		s.DailyWorkingHours = c.DailyWorkingHours
	}
	if c.WeeklyWorkingDays > 0 {
		s.WeeklyWorkingDays = c.WeeklyWorkingDays
	}
	if c.YearlyWorkingDays > 0 {
		s.YearlyWorkingDays = c.YearlyWorkingDays
	}
	if c.TimingResolutionMin > 0 {
		s.TimingResolution = time.Duration(c.TimingResolutionMin) * time.Minute
	}
	if c.DefaultDurationDays > 0 {
		s.DefaultDuration = time.Duration(c.DefaultDurationDays) * 24 * time.Hour
	}
	return s
}

// Resolution returns the timing resolution, never less than a minute.
func (s Settings) Resolution() time.Duration {
	if s.TimingResolution < time.Minute {
		return time.Minute
	}
	return s.TimingResolution
}

// ResolutionSeconds is Resolution in seconds.
func (s Settings) ResolutionSeconds() float64 {
	return s.Resolution().Seconds()
}

func (s Settings) workDaySeconds() float64 {
	return float64(s.DailyWorkingHours * hourSeconds)
}

func (s Settings) workWeekSeconds() float64 {
	return float64(s.WeeklyWorkingDays) * s.workDaySeconds()
}

// UnitSeconds returns how many seconds one unit lasts in work or calendar time.
// Unknown units are worth zero seconds.
func (s Settings) UnitSeconds(unit model.TimeUnit, asWorkTime bool) float64 {
	switch unit {
	case model.UnitMinute:
		return minuteSeconds
	case model.UnitHour:
		return hourSeconds
	}
	if asWorkTime {
		switch unit {
		case model.UnitDay:
			return s.workDaySeconds()
		case model.UnitWeek:
			return s.workWeekSeconds()
		case model.UnitMonth:
			return 4 * s.workWeekSeconds()
		case model.UnitYear:
			return float64(s.YearlyWorkingDays) * s.workDaySeconds()
		}
		return 0
	}
	switch unit {
	case model.UnitDay:
		return calendarDaySeconds
	case model.UnitWeek:
		return calendarWeekSeconds
	case model.UnitMonth:
		return calendarMonthSeconds
	case model.UnitYear:
		return calendarYearSeconds
	}
	return 0
}

// ToSeconds converts a timing to seconds under the given schedule model.
func (s Settings) ToSeconds(timing float64, unit model.TimeUnit, m model.ScheduleModel) float64 {
	return timing * s.UnitSeconds(unit, m.IsWorkTime())
}

// ToUnit is the inverse of ToSeconds.
func (s Settings) ToUnit(seconds float64, unit model.TimeUnit, m model.ScheduleModel) float64 {
	us := s.UnitSeconds(unit, m.IsWorkTime())
	if us == 0 {
		return 0
	}
	return seconds / us
}

// LeastMeaningfulUnit expresses seconds in the largest unit that divides it
// evenly. Zero is (0, min); values that are not whole minutes are returned
// as fractional minutes.
func (s Settings) LeastMeaningfulUnit(seconds float64, asWorkTime bool) (float64, model.TimeUnit) {
	whole := int64(math.Round(seconds))
	if whole <= 0 {
		return 0, model.UnitMinute
	}
	if float64(whole) == seconds {
		for _, unit := range model.TimeUnits {
			us := int64(s.UnitSeconds(unit, asWorkTime))
			if us > 0 && whole%us == 0 {
				return float64(whole / us), unit
			}
		}
	}
	return seconds / minuteSeconds, model.UnitMinute
}

// CalendarToWorkSeconds scales elapsed calendar seconds to work seconds using
// the ratio of a work week to a calendar week.
func (s Settings) CalendarToWorkSeconds(calendar float64) float64 {
	return calendar * s.workWeekSeconds() / calendarWeekSeconds
}
