package timing

import "time"

const minimumCorrectedDuration = 24 * time.Hour

// Range is a resolved date range. End is always after Start and Duration
// always equals End - Start.
type Range struct {
	Start    time.Time
	End      time.Time
	Duration time.Duration
}

// RoundTime rounds t to the nearest multiple of the timing resolution,
// halfway values round up.
func (s Settings) RoundTime(t time.Time) time.Time {
	return t.Round(s.Resolution())
}

func (s Settings) defaultDuration() time.Duration {
	if s.DefaultDuration <= 0 {
		return DefaultSettings().DefaultDuration
	}
	return s.DefaultDuration
}

// Reconcile resolves optional start, end and duration into a concrete range.
//
// start and end win over duration; with only one of them the missing side
// is derived from duration (or the default span); with neither, start is
// now. An inverted range is corrected to at least one day, and the result
// is rounded to the timing resolution and never shorter than one resolution
// unit.
func (s Settings) Reconcile(start, end *time.Time, duration *time.Duration, now time.Time) Range {
	var st, en time.Time
	var d time.Duration

	pick := func() time.Duration {
		if duration != nil {
			return *duration
		}
		return s.defaultDuration()
	}

	switch {
	case start != nil && end != nil:
		st, en = *start, *end
		d = en.Sub(st)
	case start != nil:
		st = *start
		d = pick()
		en = st.Add(d)
	case end != nil:
		en = *end
		d = pick()
		st = en.Add(-d)
	default:
		st = now
		d = pick()
		en = st.Add(d)
	}

	if en.Before(st) {
		d = 0
		if duration != nil {
			d = *duration
		}
		if d < minimumCorrectedDuration {
			d = minimumCorrectedDuration
		}
		en = st.Add(d)
	}

	st = s.RoundTime(st)
	en = s.RoundTime(en)
	d = en.Sub(st)

	if res := s.Resolution(); d < res {
		d = res
		en = st.Add(d)
	}
	return Range{Start: st, End: en, Duration: d}
}

// WithStart re-derives r after its start moved, keeping the previous end
// and duration as the other two inputs.
func (s Settings) WithStart(r Range, start time.Time) Range {
	return s.Reconcile(&start, &r.End, &r.Duration, start)
}

// WithEnd re-derives r after its end moved.
func (s Settings) WithEnd(r Range, end time.Time) Range {
	return s.Reconcile(&r.Start, &end, &r.Duration, end)
}

// WithDuration re-derives r from its start and the new duration.
func (s Settings) WithDuration(r Range, d time.Duration) Range {
	return s.Reconcile(&r.Start, nil, &d, r.Start)
}

// DefaultRange is a fresh default span starting at now.
func (s Settings) DefaultRange(now time.Time) Range {
	return s.Reconcile(nil, nil, nil, now)
}
