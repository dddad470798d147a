// Package signal holds per-channel lidar signal containers.
package signal

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrUnknownOrientation is returned by Append for an unsupported orientation.
var ErrUnknownOrientation = errors.New("unknown append orientation")

// Orientation selects the concatenation direction of Append.
type Orientation int

const (
	// Horizontal concatenates along height (columns).
	Horizontal Orientation = iota
	// Vertical concatenates along time (rows).
	Vertical
)

func (o Orientation) String() string {
	switch o {
	case Horizontal:
		return "horizontal"
	case Vertical:
		return "vertical"
	default:
		return fmt.Sprintf("Orientation(%d)", int(o))
	}
}

// Header is the per-channel metadata copied into every Signal.
type Header struct {
	BGFirst       int
	BGLast        int
	ChannelID     int
	Name          string
	RangeID       int
	FirstValidBin int
}

// Signal is the raw [time, height] return of one channel.
type Signal struct {
	Header Header
	Data   *mat.Dense
}

// FromRaw wraps data without copying it.
func FromRaw(data *mat.Dense, header Header) *Signal {
	return &Signal{Header: header, Data: data}
}

// Rows returns the number of time rows.
func (s *Signal) Rows() int {
	if s.Data == nil {
		return 0
	}
	r, _ := s.Data.Dims()
	return r
}

// Cols returns the number of height bins.
func (s *Signal) Cols() int {
	if s.Data == nil {
		return 0
	}
	_, c := s.Data.Dims()
	return c
}

// Append concatenates rows onto the signal in the given orientation.
func (s *Signal) Append(rows *mat.Dense, o Orientation) error {
	if rows == nil {
		return nil
	}
	if s.Data == nil {
		s.Data = mat.DenseCopyOf(rows)
		return nil
	}
	r, c := s.Data.Dims()
	nr, nc := rows.Dims()

	var out mat.Dense
	switch o {
	case Vertical:
		if nc != c {
			return fmt.Errorf("append %d columns to a %d column signal", nc, c)
		}
		out.Stack(s.Data, rows)
	case Horizontal:
		if nr != r {
			return fmt.Errorf("append %d rows to a %d row signal", nr, r)
		}
		out.Augment(s.Data, rows)
	default:
		return fmt.Errorf("%v: %w", o, ErrUnknownOrientation)
	}
	s.Data = &out
	return nil
}

// Row returns a copy of time row i.
func (s *Signal) Row(i int) []float64 {
	return append([]float64(nil), s.Data.RawRowView(i)...)
}

// PreProcessed is the background-subtracted, range-square-corrected
// variant of a Signal. It is always derived from the full parent signal.
type PreProcessed struct {
	Header     Header
	Data       *mat.Dense
	Background []float64
}

// Derive computes the pre-processed signal. The background of each row is
// the mean over [BGFirst, BGLast); the corrected value is
// (raw - background) * range^2.
func Derive(s *Signal, rangeAxis []float64) (*PreProcessed, error) {
	rows, cols := s.Rows(), s.Cols()
	if rows == 0 {
		return nil, fmt.Errorf("channel %q has no data", s.Header.Name)
	}
	if len(rangeAxis) != cols {
		return nil, fmt.Errorf("channel %q: range axis has %d bins, signal has %d", s.Header.Name, len(rangeAxis), cols)
	}
	h := s.Header
	if h.BGFirst < 0 || h.BGLast > cols || h.BGLast <= h.BGFirst {
		return nil, fmt.Errorf("channel %q: background window [%d,%d) outside %d bins", h.Name, h.BGFirst, h.BGLast, cols)
	}

	r2 := make([]float64, cols)
	for j, r := range rangeAxis {
		r2[j] = r * r
	}

	out := mat.NewDense(rows, cols, nil)
	bg := make([]float64, rows)
	for i := 0; i < rows; i++ {
		raw := s.Data.RawRowView(i)
		bg[i] = stat.Mean(raw[h.BGFirst:h.BGLast], nil)
		dst := out.RawRowView(i)
		for j, v := range raw {
			dst[j] = (v - bg[i]) * r2[j]
		}
	}
	return &PreProcessed{Header: h, Data: out, Background: bg}, nil
}

// Rows returns the number of time rows.
func (p *PreProcessed) Rows() int {
	r, _ := p.Data.Dims()
	return r
}

// Row returns a copy of time row i.
func (p *PreProcessed) Row(i int) []float64 {
	return append([]float64(nil), p.Data.RawRowView(i)...)
}
