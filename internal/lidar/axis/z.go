package axis

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrAboveRange is returned when a height or range lies beyond the last bin.
var ErrAboveRange = errors.New("value above the top of the axis")

// Geometry is the fixed per-measurement spatial geometry.
type Geometry struct {
	Points          int
	BinResolutionNs float64
	ZenithAngleDeg  float64
	Altitude        float64
	FirstValidBin   int
}

// ZAxis derives the slant-range, height and altitude axes from the geometry.
// All three axes are computed at construction and never change.
type ZAxis struct {
	geom     Geometry
	rangeRes float64
	vertRes  float64

	rangeAxis    []float64
	heightAxis   []float64
	altitudeAxis []float64
}

// NewZAxis builds the axes for geom using the given speed of light (m/s).
func NewZAxis(geom Geometry, lightSpeed float64) (*ZAxis, error) {
	if geom.Points <= 0 {
		return nil, fmt.Errorf("points must be positive, got %d", geom.Points)
	}
	if geom.BinResolutionNs <= 0 {
		return nil, fmt.Errorf("bin resolution must be positive, got %g ns", geom.BinResolutionNs)
	}

	z := &ZAxis{geom: geom}
	z.rangeRes = geom.BinResolutionNs * 1e-9 * lightSpeed / 2
	z.vertRes = z.rangeRes * math.Cos(geom.ZenithAngleDeg*math.Pi/180)

	z.rangeAxis = make([]float64, geom.Points)
	z.heightAxis = make([]float64, geom.Points)
	z.altitudeAxis = make([]float64, geom.Points)
	for i := 0; i < geom.Points; i++ {
		offset := float64(i) + 0.5 - float64(geom.FirstValidBin)
		z.rangeAxis[i] = offset * z.rangeRes
		z.heightAxis[i] = offset * z.vertRes
		z.altitudeAxis[i] = z.heightAxis[i] + geom.Altitude
	}
	return z, nil
}

// Geometry returns the geometry the axes were built from.
func (z *ZAxis) Geometry() Geometry { return z.geom }

// RangeResolution is the slant-range bin size in metres.
func (z *ZAxis) RangeResolution() float64 { return z.rangeRes }

// VerticalResolution is the vertical bin size in metres.
func (z *ZAxis) VerticalResolution() float64 { return z.vertRes }

// Points returns the number of height bins.
func (z *ZAxis) Points() int { return z.geom.Points }

// RangeAxis returns the slant range of each bin centre. Callers must not modify it.
func (z *ZAxis) RangeAxis() []float64 { return z.rangeAxis }

// HeightAxis returns the height above the instrument of each bin centre.
func (z *ZAxis) HeightAxis() []float64 { return z.heightAxis }

// AltitudeAxis returns the height above sea level of each bin centre.
func (z *ZAxis) AltitudeAxis() []float64 { return z.altitudeAxis }

// HeightToBin returns the first bin whose height is strictly greater than h.
func (z *ZAxis) HeightToBin(h float64) (int, error) {
	return firstAbove(z.heightAxis, h)
}

// RangeToBin returns the first bin whose range is strictly greater than r.
func (z *ZAxis) RangeToBin(r float64) (int, error) {
	return firstAbove(z.rangeAxis, r)
}

// BinToHeight returns the height of the bottom edge of bin, relative to the
// first valid bin.
func (z *ZAxis) BinToHeight(bin int) float64 {
	return float64(bin-z.geom.FirstValidBin) * z.vertRes
}

func firstAbove(axis []float64, v float64) (int, error) {
	i := sort.Search(len(axis), func(i int) bool { return axis[i] > v })
	if i == len(axis) {
		return 0, fmt.Errorf("%g m: %w", v, ErrAboveRange)
	}
	return i, nil
}
