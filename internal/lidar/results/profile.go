// Package results reads single-profile products returned by the retrieval
// service and combines them into mean profiles, lidar ratios and Ångström
// exponents.
package results

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
)

// CloudFill marks a missing cloud flag.
const CloudFill int8 = -127

var (
	ErrNoProfiles   = errors.New("no profiles to merge")
	ErrEmptyProfile = errors.New("profile has no valid altitude")
	ErrGridMismatch = errors.New("altitude not on reference grid")
)

// Profile is one product on an altitude grid above the station.
type Profile struct {
	FileName   string
	Altitude   []float64
	Data       []float64
	Error      []float64
	VertRes    []float64
	LidarRatio []float64 // nil when not retrieved
	Cloud      []int8
}

// Len returns the number of altitude bins.
func (p *Profile) Len() int { return len(p.Altitude) }

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	c := *p
	c.Altitude = cloneFloats(p.Altitude)
	c.Data = cloneFloats(p.Data)
	c.Error = cloneFloats(p.Error)
	c.VertRes = cloneFloats(p.VertRes)
	c.LidarRatio = cloneFloats(p.LidarRatio)
	if p.Cloud != nil {
		c.Cloud = append([]int8(nil), p.Cloud...)
	}
	return &c
}

// slice returns bins [from, to) of every series.
func (p *Profile) slice(from, to int) *Profile {
	c := &Profile{
		FileName: p.FileName,
		Altitude: p.Altitude[from:to],
		Data:     p.Data[from:to],
		Error:    p.Error[from:to],
		VertRes:  p.VertRes[from:to],
		Cloud:    p.Cloud[from:to],
	}
	if p.LidarRatio != nil {
		c.LidarRatio = p.LidarRatio[from:to]
	}
	return c
}

// trimLeading drops bins before the first finite altitude.
func (p *Profile) trimLeading() *Profile {
	for i, a := range p.Altitude {
		if !math.IsNaN(a) {
			return p.slice(i, len(p.Altitude))
		}
	}
	return p.slice(len(p.Altitude), len(p.Altitude))
}

// MeanProfile merges profiles of the same product into one, weighting each
// sample by |value/error|. Profiles may start at different altitudes as long
// as each first altitude lies on the grid of the lowest-starting profile.
// The result is as long as the longest input; shifted profiles that reach
// past it are cut.
func MeanProfile(profiles []*Profile) (*Profile, error) {
	switch len(profiles) {
	case 0:
		return nil, ErrNoProfiles
	case 1:
		return profiles[0].Clone(), nil
	}

	trimmed := make([]*Profile, len(profiles))
	ref := -1
	maxLen := 0
	for i, p := range profiles {
		t := p.trimLeading()
		if t.Len() == 0 {
			return nil, fmt.Errorf("%s: %w", p.FileName, ErrEmptyProfile)
		}
		trimmed[i] = t
		if t.Len() > maxLen {
			maxLen = t.Len()
		}
		if ref < 0 || t.Altitude[0] < trimmed[ref].Altitude[0] {
			ref = i
		}
	}

	shifts := make([]int, len(trimmed))
	for i, t := range trimmed {
		shift := indexOf(trimmed[ref].Altitude, t.Altitude[0])
		if shift < 0 {
			return nil, fmt.Errorf("%s: first altitude %g: %w", t.FileName, t.Altitude[0], ErrGridMismatch)
		}
		shifts[i] = shift
	}

	withRatio := true
	for _, t := range trimmed {
		if t.LidarRatio == nil {
			withRatio = false
			break
		}
	}

	aligned := make([]*Profile, len(trimmed))
	for i, t := range trimmed {
		aligned[i] = align(t, shifts[i], maxLen, withRatio)
	}

	out := &Profile{
		FileName: aligned[0].FileName,
		Altitude: make([]float64, maxLen),
		Data:     make([]float64, maxLen),
		Error:    make([]float64, maxLen),
		VertRes:  make([]float64, maxLen),
		Cloud:    make([]int8, maxLen),
	}
	if withRatio {
		out.LidarRatio = make([]float64, maxLen)
	}

	weights := make([]float64, len(aligned))
	column := func(i int, get func(*Profile) []float64) []float64 {
		col := make([]float64, len(aligned))
		for k, p := range aligned {
			col[k] = get(p)[i]
		}
		return col
	}
	for i := 0; i < maxLen; i++ {
		for k, p := range aligned {
			weights[k] = math.Abs(p.Data[i] / p.Error[i])
		}
		out.Data[i] = weightedMean(column(i, func(p *Profile) []float64 { return p.Data }), weights)
		out.Error[i] = weightedMean(column(i, func(p *Profile) []float64 { return p.Error }), weights)
		if withRatio {
			out.LidarRatio[i] = weightedMean(column(i, func(p *Profile) []float64 { return p.LidarRatio }), weights)
		}
		out.Altitude[i] = nanMax(column(i, func(p *Profile) []float64 { return p.Altitude }))
		out.VertRes[i] = nanMax(column(i, func(p *Profile) []float64 { return p.VertRes }))

		cloud := int8(math.MinInt8)
		for _, p := range aligned {
			c := p.Cloud[i]
			if c == CloudFill {
				cloud = CloudFill
				break
			}
			if c > cloud {
				cloud = c
			}
		}
		out.Cloud[i] = cloud
	}

	for _, p := range aligned[1:] {
		if p.FileName < out.FileName {
			out.FileName = p.FileName
		}
	}
	return out, nil
}

// align pads p with shift missing bins in front and pads or truncates the
// tail to n bins.
func align(p *Profile, shift, n int, withRatio bool) *Profile {
	keep := min(len(p.Altitude), n-shift)
	pad := func(src []float64) []float64 {
		dst := make([]float64, n)
		for i := range dst {
			dst[i] = math.NaN()
		}
		copy(dst[shift:], src[:keep])
		return dst
	}
	out := &Profile{
		FileName: p.FileName,
		Altitude: pad(p.Altitude),
		Data:     pad(p.Data),
		Error:    pad(p.Error),
		VertRes:  pad(p.VertRes),
		Cloud:    make([]int8, n),
	}
	for i := range out.Cloud {
		out.Cloud[i] = CloudFill
	}
	copy(out.Cloud[shift:], p.Cloud[:keep])
	if withRatio {
		out.LidarRatio = pad(p.LidarRatio)
	}
	return out
}

// weightedMean averages the samples whose value and weight are both finite.
// It is NaN when no such sample carries weight.
func weightedMean(values, weights []float64) float64 {
	var sum, wsum float64
	for i, v := range values {
		w := weights[i]
		if math.IsNaN(v) || math.IsInf(v, 0) || math.IsNaN(w) || math.IsInf(w, 0) {
			continue
		}
		sum += v * w
		wsum += w
	}
	if wsum == 0 {
		return math.NaN()
	}
	return sum / wsum
}

func nanMax(values []float64) float64 {
	m := math.NaN()
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(m) || v > m {
			m = v
		}
	}
	return m
}

func indexOf(s []float64, v float64) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func cloneFloats(s []float64) []float64 {
	if s == nil {
		return nil
	}
	return append([]float64(nil), s...)
}

// LidarRatio divides extinction by backscatter on their common grid. The
// relative errors add in quadrature.
func LidarRatio(ext, bsc *Profile) *Profile {
	n := ext.Len()
	if bsc.Len() < n {
		n = bsc.Len()
	}
	out := &Profile{
		FileName: ext.FileName,
		Altitude: cloneFloats(ext.Altitude[:n]),
		VertRes:  cloneFloats(ext.VertRes[:n]),
		Cloud:    append([]int8(nil), ext.Cloud[:n]...),
		Data:     make([]float64, n),
		Error:    make([]float64, n),
	}
	floats.DivTo(out.Data, ext.Data[:n], bsc.Data[:n])
	for i := 0; i < n; i++ {
		out.Error[i] = out.Data[i] * math.Hypot(ext.Error[i]/ext.Data[i], bsc.Error[i]/bsc.Data[i])
	}
	return out
}

// Angstrom computes the Ångström exponent between a profile at wavelength
// firstWL and one at secondWL. The second profile is shifted onto the first
// grid when it starts on it, otherwise interpolated linearly with NaN outside
// its altitude range.
func Angstrom(first, second *Profile, firstWL, secondWL float64) *Profile {
	f := first.trimLeading()
	s := second.trimLeading()
	factor := 1 / (math.Log(secondWL) - math.Log(firstWL))

	var sData, sErr, sAlt, sRes []float64
	var sCloud []int8
	n := f.Len()
	if s.Len() > 0 {
		if shift := indexOf(f.Altitude, s.Altitude[0]); shift >= 0 {
			n = f.Len() - shift
			if s.Len() < n {
				n = s.Len()
			}
			f = f.slice(shift, shift+n)
			sData, sErr = s.Data[:n], s.Error[:n]
			sAlt, sRes, sCloud = s.Altitude[:n], s.VertRes[:n], s.Cloud[:n]
		} else {
			sData = interpolate(s.Altitude, s.Data, f.Altitude)
			sErr = interpolate(s.Altitude, s.Error, f.Altitude)
		}
	} else {
		sData = nanSlice(n)
		sErr = nanSlice(n)
	}

	out := &Profile{
		FileName: f.FileName,
		Altitude: cloneFloats(f.Altitude),
		VertRes:  cloneFloats(f.VertRes),
		Cloud:    append([]int8(nil), f.Cloud...),
		Data:     make([]float64, n),
		Error:    make([]float64, n),
	}
	for i := 0; i < n; i++ {
		d := (math.Log(f.Data[i]) - math.Log(sData[i])) * factor
		out.Data[i] = d
		out.Error[i] = d * math.Hypot(sErr[i]/sData[i], f.Error[i]/f.Data[i])
		if sAlt != nil {
			out.Altitude[i] = math.Max(out.Altitude[i], sAlt[i])
			out.VertRes[i] = math.Max(out.VertRes[i], sRes[i])
			if sCloud[i] > out.Cloud[i] {
				out.Cloud[i] = sCloud[i]
			}
		}
	}
	return out
}

// interpolate evaluates ys(xs) at at, NaN outside the finite xs range.
func interpolate(xs, ys, at []float64) []float64 {
	var px, py []float64
	for i, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		if len(px) > 0 && x <= px[len(px)-1] {
			continue
		}
		px = append(px, x)
		py = append(py, ys[i])
	}
	out := nanSlice(len(at))
	var pl interp.PiecewiseLinear
	if len(px) < 2 || pl.Fit(px, py) != nil {
		return out
	}
	lo, hi := px[0], px[len(px)-1]
	for i, x := range at {
		if x >= lo && x <= hi {
			out[i] = pl.Predict(x)
		}
	}
	return out
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
