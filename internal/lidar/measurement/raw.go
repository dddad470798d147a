package measurement

import (
	"gonum.org/v1/gonum/mat"
)

// RawFile is the decoded content of one raw instrument file.
type RawFile struct {
	Name string

	Latitude  float64
	Longitude float64
	Altitude  float64
	Points    int

	// StopDate (YYYYMMDD) and StopSeconds (seconds of day) give the end of
	// each time bin.
	StopDate    []int
	StopSeconds []float64

	Shots         []float64
	DepolCalAngle []float64

	BinResolutionNs float64
	ZenithAngleDeg  float64

	// Signals holds one [time, height] matrix per raw channel position.
	Signals []*mat.Dense
}

// TimeLen returns the number of time bins in the file.
func (r *RawFile) TimeLen() int {
	return len(r.StopSeconds)
}

func (r *RawFile) validate() error {
	n := r.TimeLen()
	if n == 0 {
		return malformed("%s: no time bins", r.Name)
	}
	if len(r.StopDate) != n {
		return malformed("%s: measurement_time has %d dates for %d bins", r.Name, len(r.StopDate), n)
	}
	if len(r.Shots) != n {
		return malformed("%s: measurement_shots has %d entries for %d bins", r.Name, len(r.Shots), n)
	}
	if len(r.DepolCalAngle) != n {
		return malformed("%s: depol_cal_angle has %d entries for %d bins", r.Name, len(r.DepolCalAngle), n)
	}
	if r.Points <= 0 {
		return malformed("%s: height dimension is %d", r.Name, r.Points)
	}
	if len(r.Signals) == 0 {
		return malformed("%s: raw_signal has no channels", r.Name)
	}
	for i, s := range r.Signals {
		if s == nil {
			return malformed("%s: raw channel %d missing", r.Name, i)
		}
		rows, cols := s.Dims()
		if rows != n || cols != r.Points {
			return malformed("%s: raw channel %d is %dx%d, want %dx%d", r.Name, i, rows, cols, n, r.Points)
		}
	}
	return nil
}
