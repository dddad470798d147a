// Package telecover compares the signals recorded through the quadrant
// sectors of a telecover test and exports plots and ASCII profiles.
package telecover

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/lidar.scc/internal/config"
	"github.com/banshee-data/lidar.scc/internal/lidar/measurement"
)

var (
	// ErrNoSectors is returned when no sector interval was marked.
	ErrNoSectors = errors.New("no telecover sectors marked")
	// ErrNoAverageSectors is returned when none of the marked sectors is used for averaging.
	ErrNoAverageSectors = errors.New("no sectors marked for averaging")
)

// Profile is one height profile.
type Profile []float64

// ChannelProfiles holds one profile per channel index.
type ChannelProfiles map[int]Profile

// SectorProfiles is the raw-aggregated stage: the time-averaged
// range-corrected signal of every sector and channel.
type SectorProfiles struct {
	Date time.Time
	// Sectors lists every marked sector; TelecoverSectors and AverageSectors
	// are the subsets from the configuration, all in marking order.
	Sectors          []string
	TelecoverSectors []string
	AverageSectors   []string
	Channels         []int

	RangeAxis  []float64
	HeightAxis []float64
	Profiles   map[string]ChannelProfiles
}

// Smoothed is a block-averaged stage.
type Smoothed struct {
	Block       int
	RangeSmooth []float64
	Profiles    map[string]ChannelProfiles
}

// Normalized is the smoothed profile of every sector divided by its mean
// over the normalization window.
type Normalized struct {
	Window   [2]int
	Profiles map[string]ChannelProfiles
}

// ChannelRatios holds per-sector signal ratios between two channels.
type ChannelRatios struct {
	// Ratios and Deviation are keyed by sector, then ratio name.
	Ratios    map[string]map[string]Profile
	Mean      map[string]Profile
	Deviation map[string]map[string]Profile
}

// Result collects every stage of one analysis.
type Result struct {
	Input       *SectorProfiles
	Smoothed    *Smoothed
	Normalized  *Normalized
	Mean        ChannelProfiles
	Deviation   map[string]ChannelProfiles
	RatioToMean map[string]ChannelProfiles
	RMSD        ChannelProfiles
	Ratios      *ChannelRatios
}

// Analyse runs the full pipeline on the marked sectors of m.
func Analyse(m *measurement.Measurement) (*Result, error) {
	cfg := m.Config()
	tc := cfg.Telecover
	sp, err := Aggregate(m)
	if err != nil {
		return nil, err
	}
	if len(sp.AverageSectors) == 0 {
		return nil, ErrNoAverageSectors
	}
	block := cfg.GetSmoothBins()
	norm, err := Normalize(sp, tc.NormalizationRange, block)
	if err != nil {
		return nil, err
	}
	mean := Mean(norm, sp.AverageSectors, sp.Channels)
	dev := Deviation(norm, mean, sp.TelecoverSectors)
	return &Result{
		Input:       sp,
		Smoothed:    Smooth(sp, block),
		Normalized:  norm,
		Mean:        mean,
		Deviation:   dev,
		RatioToMean: RatioToMean(norm, mean, sp.TelecoverSectors),
		RMSD:        RMSD(dev, sp.AverageSectors, sp.Channels),
		Ratios:      Ratios(norm, tc.Ratios, sp.TelecoverSectors, sp.AverageSectors),
	}, nil
}

// Aggregate averages the pre-processed rows [First, Last) of every marked
// sector. The date is the latest sector start, or the measurement start if
// that is later.
func Aggregate(m *measurement.Measurement) (*SectorProfiles, error) {
	if !m.Ingested() {
		return nil, measurement.ErrNotIngested
	}
	regions := m.TelecoverRegions()
	if len(regions.Used) == 0 {
		return nil, ErrNoSectors
	}
	cfg := m.Config()
	ta := m.TimeAxis()

	sp := &SectorProfiles{
		Date:             ta.StartAt(0),
		Sectors:          regions.Used,
		TelecoverSectors: regions.TelecoverSectors,
		AverageSectors:   regions.AverageSectors,
		Channels:         cfg.Telecover.Channels,
		RangeAxis:        m.ZAxis().RangeAxis(),
		HeightAxis:       m.ZAxis().HeightAxis(),
		Profiles:         make(map[string]ChannelProfiles, len(regions.Used)),
	}
	for _, sector := range regions.Used {
		iv := regions.Intervals[sector]
		if s := ta.StartAt(iv.First); s.After(sp.Date) {
			sp.Date = s
		}
		sp.Profiles[sector] = make(ChannelProfiles, len(sp.Channels))
		for _, ch := range sp.Channels {
			if ch < 0 || ch >= len(cfg.Channels) {
				return nil, fmt.Errorf("telecover channel %d outside [0,%d)", ch, len(cfg.Channels))
			}
			sp.Profiles[sector][ch] = timeAverage(m.PreProcessed(ch), iv.First, iv.Last)
		}
	}
	return sp, nil
}

type rowSource interface {
	Row(i int) []float64
}

func timeAverage(src rowSource, first, last int) Profile {
	var sum []float64
	for i := first; i < last; i++ {
		row := src.Row(i)
		if sum == nil {
			sum = row
			continue
		}
		floats.Add(sum, row)
	}
	floats.Scale(1/float64(last-first), sum)
	return sum
}

// BlockAverage averages consecutive blocks of size block. Trailing points
// that do not fill a whole block are dropped.
func BlockAverage(x []float64, block int) []float64 {
	if block <= 0 {
		block = 1
	}
	n := len(x) / block
	out := make([]float64, n)
	for i := range out {
		out[i] = stat.Mean(x[i*block:(i+1)*block], nil)
	}
	return out
}

// Smooth block-averages every profile and the range axis.
func Smooth(sp *SectorProfiles, block int) *Smoothed {
	out := &Smoothed{
		Block:       block,
		RangeSmooth: BlockAverage(sp.RangeAxis, block),
		Profiles:    make(map[string]ChannelProfiles, len(sp.Profiles)),
	}
	for sector, chs := range sp.Profiles {
		out.Profiles[sector] = make(ChannelProfiles, len(chs))
		for ch, p := range chs {
			out.Profiles[sector][ch] = BlockAverage(p, block)
		}
	}
	return out
}

// Normalize divides each profile by its mean over the height window
// [window[0], window[1]] and block-averages the result.
func Normalize(sp *SectorProfiles, window [2]float64, block int) (*Normalized, error) {
	first, err := firstAbove(sp.HeightAxis, window[0])
	if err != nil {
		return nil, fmt.Errorf("normalization window start: %w", err)
	}
	last, err := firstAbove(sp.HeightAxis, window[1])
	if err != nil {
		return nil, fmt.Errorf("normalization window end: %w", err)
	}
	if last <= first {
		return nil, fmt.Errorf("normalization window %v covers no bins", window)
	}

	out := &Normalized{
		Window:   [2]int{first, last},
		Profiles: make(map[string]ChannelProfiles, len(sp.Profiles)),
	}
	for sector, chs := range sp.Profiles {
		out.Profiles[sector] = make(ChannelProfiles, len(chs))
		for ch, p := range chs {
			norm := stat.Mean(p[first:last], nil)
			scaled := make([]float64, len(p))
			for i, v := range p {
				scaled[i] = v / norm
			}
			out.Profiles[sector][ch] = BlockAverage(scaled, block)
		}
	}
	return out, nil
}

func firstAbove(axis []float64, v float64) (int, error) {
	for i, a := range axis {
		if a > v {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%g is above the axis range", v)
}

// Mean is the element-wise mean of the normalized profiles over sectors.
func Mean(n *Normalized, sectors []string, channels []int) ChannelProfiles {
	out := make(ChannelProfiles, len(channels))
	for _, ch := range channels {
		profiles := make([]Profile, 0, len(sectors))
		for _, s := range sectors {
			profiles = append(profiles, n.Profiles[s][ch])
		}
		out[ch] = elementMean(profiles)
	}
	return out
}

func elementMean(profiles []Profile) Profile {
	if len(profiles) == 0 {
		return nil
	}
	out := make(Profile, len(profiles[0]))
	for _, p := range profiles {
		floats.Add(out, p)
	}
	floats.Scale(1/float64(len(profiles)), out)
	return out
}

// Deviation is (sector - mean) / mean for every telecover sector.
func Deviation(n *Normalized, mean ChannelProfiles, sectors []string) map[string]ChannelProfiles {
	return perSector(n, mean, sectors, func(s, m float64) float64 { return (s - m) / m })
}

// RatioToMean is sector / mean for every telecover sector.
func RatioToMean(n *Normalized, mean ChannelProfiles, sectors []string) map[string]ChannelProfiles {
	return perSector(n, mean, sectors, func(s, m float64) float64 { return s / m })
}

func perSector(n *Normalized, mean ChannelProfiles, sectors []string, f func(s, m float64) float64) map[string]ChannelProfiles {
	out := make(map[string]ChannelProfiles, len(sectors))
	for _, sector := range sectors {
		out[sector] = make(ChannelProfiles, len(mean))
		for ch, m := range mean {
			s := n.Profiles[sector][ch]
			p := make(Profile, len(m))
			for i := range p {
				p[i] = infToNaN(f(s[i], m[i]))
			}
			out[sector][ch] = p
		}
	}
	return out
}

// RMSD is the root mean square of the deviations over the averaging sectors.
func RMSD(dev map[string]ChannelProfiles, sectors []string, channels []int) ChannelProfiles {
	out := make(ChannelProfiles, len(channels))
	for _, ch := range channels {
		var sum Profile
		for _, s := range sectors {
			d := dev[s][ch]
			if sum == nil {
				sum = make(Profile, len(d))
			}
			for i, v := range d {
				sum[i] += v * v
			}
		}
		for i := range sum {
			sum[i] = math.Sqrt(sum[i] / float64(len(sectors)))
		}
		out[ch] = sum
	}
	return out
}

// Ratios computes nominator/denominator of the normalized profiles per
// sector, their mean over the averaging sectors and each sector's deviation
// from that mean.
func Ratios(n *Normalized, defs []config.RatioConfig, sectors, avgSectors []string) *ChannelRatios {
	out := &ChannelRatios{
		Ratios:    make(map[string]map[string]Profile, len(sectors)),
		Mean:      make(map[string]Profile, len(defs)),
		Deviation: make(map[string]map[string]Profile, len(sectors)),
	}
	for _, sector := range sectors {
		out.Ratios[sector] = make(map[string]Profile, len(defs))
		out.Deviation[sector] = make(map[string]Profile, len(defs))
		for _, d := range defs {
			out.Ratios[sector][d.Name] = divide(n.Profiles[sector][d.Nominator], n.Profiles[sector][d.Denominator])
		}
	}
	for _, d := range defs {
		profiles := make([]Profile, 0, len(avgSectors))
		for _, s := range avgSectors {
			if r, ok := out.Ratios[s]; ok {
				profiles = append(profiles, r[d.Name])
			}
		}
		mean := elementMean(profiles)
		out.Mean[d.Name] = mean
		if mean == nil {
			continue
		}
		for _, sector := range sectors {
			r := out.Ratios[sector][d.Name]
			dev := make(Profile, len(r))
			for i := range dev {
				dev[i] = infToNaN((r[i] - mean[i]) / mean[i])
			}
			out.Deviation[sector][d.Name] = dev
		}
	}
	return out
}

func divide(a, b Profile) Profile {
	out := make(Profile, len(a))
	for i := range out {
		out[i] = infToNaN(a[i] / b[i])
	}
	return out
}

func infToNaN(v float64) float64 {
	if math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}
