// Package axis holds the time and spatial axes of a lidar measurement.
package axis

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrTooFewSamples is returned when a time axis cannot infer a bin duration.
var ErrTooFewSamples = errors.New("at least two time samples are required")

// TimeAxis holds paired start/stop timestamps for each time bin.
// start[i] <= stop[i] holds for every bin.
type TimeAxis struct {
	start []time.Time
	stop  []time.Time
}

// New builds a TimeAxis from explicit start/stop pairs.
func New(start, stop []time.Time) (*TimeAxis, error) {
	if len(start) != len(stop) {
		return nil, fmt.Errorf("start has %d entries, stop has %d", len(start), len(stop))
	}
	for i := range start {
		if start[i].After(stop[i]) {
			return nil, fmt.Errorf("time bin %d starts after it stops (%s > %s)", i, start[i], stop[i])
		}
	}
	return &TimeAxis{
		start: append([]time.Time(nil), start...),
		stop:  append([]time.Time(nil), stop...),
	}, nil
}

// FromRaw builds the axis from raw stop times given as a YYYYMMDD date and
// seconds of that day. Each bin starts where the previous one stopped; the
// first bin borrows the duration of the second.
func FromRaw(stopDate []int, stopSeconds []float64) (*TimeAxis, error) {
	if len(stopDate) != len(stopSeconds) {
		return nil, fmt.Errorf("stop date has %d entries, seconds has %d", len(stopDate), len(stopSeconds))
	}
	if len(stopDate) < 2 {
		return nil, ErrTooFewSamples
	}

	stop := make([]time.Time, len(stopDate))
	for i, d := range stopDate {
		day, err := ParseDate(d)
		if err != nil {
			return nil, fmt.Errorf("stop time %d: %w", i, err)
		}
		stop[i] = day.Add(secondsToDuration(stopSeconds[i]))
	}

	start := make([]time.Time, len(stop))
	copy(start[1:], stop[:len(stop)-1])
	start[0] = stop[0].Add(-stop[1].Sub(stop[0]))

	return New(start, stop)
}

// ParseDate converts a YYYYMMDD integer into midnight UTC of that day.
func ParseDate(yyyymmdd int) (time.Time, error) {
	y, m, d := yyyymmdd/10000, (yyyymmdd/100)%100, yyyymmdd%100
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, fmt.Errorf("invalid date %d", yyyymmdd)
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d {
		return time.Time{}, fmt.Errorf("invalid date %d", yyyymmdd)
	}
	return t, nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// Len returns the number of time bins.
func (t *TimeAxis) Len() int {
	return len(t.stop)
}

// Append concatenates other's bins after the current ones. Chronological
// continuity is the caller's responsibility.
func (t *TimeAxis) Append(other *TimeAxis) {
	t.start = append(t.start, other.start...)
	t.stop = append(t.stop, other.stop...)
}

// Start returns a copy of the bin start times.
func (t *TimeAxis) Start() []time.Time {
	return append([]time.Time(nil), t.start...)
}

// Stop returns a copy of the bin stop times.
func (t *TimeAxis) Stop() []time.Time {
	return append([]time.Time(nil), t.stop...)
}

// StartAt returns the start of bin i.
func (t *TimeAxis) StartAt(i int) time.Time { return t.start[i] }

// StopAt returns the stop of bin i.
func (t *TimeAxis) StopAt(i int) time.Time { return t.stop[i] }

// Time returns the [start, stop] pair of every bin.
func (t *TimeAxis) Time() [][2]time.Time {
	out := make([][2]time.Time, len(t.start))
	for i := range t.start {
		out[i] = [2]time.Time{t.start[i], t.stop[i]}
	}
	return out
}

// ElapsedStart returns each bin start relative to the start of bin 0.
func (t *TimeAxis) ElapsedStart() []time.Duration {
	return t.elapsed(t.start)
}

// ElapsedStop returns each bin stop relative to the start of bin 0.
func (t *TimeAxis) ElapsedStop() []time.Duration {
	return t.elapsed(t.stop)
}

func (t *TimeAxis) elapsed(ts []time.Time) []time.Duration {
	out := make([]time.Duration, len(ts))
	if len(t.start) == 0 {
		return out
	}
	t0 := t.start[0]
	for i, v := range ts {
		out[i] = v.Sub(t0)
	}
	return out
}

// Subset returns a new axis holding the selected bins in the given order.
func (t *TimeAxis) Subset(idx []int) *TimeAxis {
	out := &TimeAxis{
		start: make([]time.Time, len(idx)),
		stop:  make([]time.Time, len(idx)),
	}
	for i, j := range idx {
		out.start[i] = t.start[j]
		out.stop[i] = t.stop[j]
	}
	return out
}
