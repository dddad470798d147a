package telecover

import (
	"bufio"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/lidar.scc/internal/config"
	"github.com/banshee-data/lidar.scc/internal/monitoring"
)

// rangeNames labels the near (0) and far (1) plot ranges.
var rangeNames = [2]string{"near", "far"}

var sectorColors = map[string]color.RGBA{
	"north":  {R: 214, G: 39, B: 40, A: 255},
	"east":   {R: 44, G: 160, B: 44, A: 255},
	"south":  {R: 31, G: 119, B: 180, A: 255},
	"west":   {R: 255, G: 127, B: 14, A: 255},
	"north2": {R: 148, G: 103, B: 189, A: 255},
}

var meanColor = color.RGBA{R: 128, G: 128, B: 128, A: 255}

func sectorColor(sector string, i int) color.Color {
	if c, ok := sectorColors[sector]; ok {
		return c
	}
	palette := []color.RGBA{
		{R: 140, G: 86, B: 75, A: 255},
		{R: 227, G: 119, B: 194, A: 255},
		{R: 188, G: 189, B: 34, A: 255},
		{R: 23, G: 190, B: 207, A: 255},
	}
	return palette[i%len(palette)]
}

// OutputDir returns <base>/<YYYYMMDD>_telecover for the analysis date.
func (r *Result) OutputDir(base string) string {
	return filepath.Join(base, r.Input.Date.Format("20060102")+"_telecover")
}

// Export writes the ASCII profiles and all plots into the output directory
// below cfg.Paths.Telecover and returns the written paths.
func Export(r *Result, cfg *config.LidarConfig) ([]string, error) {
	dir := r.OutputDir(cfg.Paths.Telecover)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create telecover directory: %w", err)
	}
	written, err := WriteASCII(dir, r, cfg)
	if err != nil {
		return written, err
	}
	plots, err := WritePlots(dir, r, cfg)
	written = append(written, plots...)
	if err != nil {
		return written, err
	}
	monitoring.ExportsWritten.WithLabelValues("telecover").Add(float64(len(written)))
	monitoring.Infow("telecover exported", "dir", dir, "files", len(written))
	return written, nil
}

// WriteASCII writes one text file per telecover channel holding the
// full-resolution range-corrected profile of every marked sector, from the
// first positive range up to the maximum output height.
func WriteASCII(dir string, r *Result, cfg *config.LidarConfig) ([]string, error) {
	rng := r.Input.RangeAxis
	first, last := len(rng), len(rng)
	for i, v := range rng {
		if v > 0 && first == len(rng) {
			first = i
		}
		if v > cfg.Telecover.MaxOutputHeight {
			last = i
			break
		}
	}

	date := r.Input.Date
	var written []string
	for _, ch := range r.Input.Channels {
		name := cfg.TelecoverChannelName(ch)
		path := filepath.Join(dir, fmt.Sprintf("telecover_%s_%s.txt", strings.ReplaceAll(name, " ", "_"), date.Format("20060102")))
		f, err := os.Create(path)
		if err != nil {
			return written, err
		}
		w := bufio.NewWriter(f)
		fmt.Fprintln(w, cfg.Telecover.StationName)
		fmt.Fprintln(w, cfg.Instrument+" ")
		fmt.Fprintln(w, name+", photon counting ")
		fmt.Fprintln(w, date.Format("02.01.2006"))
		w.WriteString("range")
		for _, s := range r.Input.Sectors {
			w.WriteString(", " + s)
		}
		w.WriteString("\n")
		for i := first; i < last; i++ {
			w.WriteString(formatFloat(rng[i]))
			for _, s := range r.Input.Sectors {
				w.WriteString(", " + formatFloat(r.Input.Profiles[s][ch][i]))
			}
			w.WriteString("\n")
		}
		if err := w.Flush(); err != nil {
			f.Close()
			return written, err
		}
		if err := f.Close(); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// channelPlot describes one per-channel figure.
type channelPlot struct {
	label      string
	title      string
	data       map[string]ChannelProfiles
	ref        ChannelProfiles
	refName    string
	percentile float64
	fixedY     [2]float64
}

// WritePlots renders per-channel and per-ratio PNG figures for the near
// and far range.
func WritePlots(dir string, r *Result, cfg *config.LidarConfig) ([]string, error) {
	normTitle := fmt.Sprintf(" normalized: %v m", cfg.Telecover.NormalizationRange)
	plots := []channelPlot{
		{label: "rc_signal", data: r.Smoothed.Profiles, percentile: 100, fixedY: [2]float64{0, math.NaN()}},
		{label: "norm_signal", title: normTitle, data: r.Normalized.Profiles, ref: r.Mean, refName: "mean", percentile: 100, fixedY: [2]float64{0, math.NaN()}},
		{label: "deviations", title: normTitle, data: r.Deviation, ref: r.RMSD, refName: "RMSD", percentile: 90, fixedY: [2]float64{-0.3, 0.3}},
		{label: "ratio_to_mean", title: normTitle, data: r.RatioToMean, percentile: 90, fixedY: [2]float64{0, math.NaN()}},
	}

	x := r.Smoothed.RangeSmooth
	date := r.Input.Date.Format("20060102")
	var written []string
	for ri, rname := range rangeNames {
		n := plotBins(x, cfg.Telecover.MaxPlotHeight[ri])
		for _, cp := range plots {
			for _, ch := range r.Input.Channels {
				chName := cfg.TelecoverChannelName(ch)
				p := newPlot(fmt.Sprintf("%s telecover %s %s%s", cfg.Instrument, chName, r.Input.Date.Format("02.01.2006"), cp.title), cp.label)
				var ys []float64
				for i, sector := range r.Input.TelecoverSectors {
					prof, ok := cp.data[sector][ch]
					if !ok {
						continue
					}
					if err := addLine(p, sector, x[:n], prof[:n], sectorColor(sector, i), false); err != nil {
						return written, err
					}
					ys = append(ys, prof[:n]...)
				}
				if cp.ref != nil {
					if err := addLine(p, cp.refName, x[:n], cp.ref[ch][:n], meanColor, true); err != nil {
						return written, err
					}
				}
				setRanges(p, cfg.Telecover.MaxPlotHeight[ri], cp.fixedY, percentile(ys, cp.percentile))

				path := filepath.Join(dir, fmt.Sprintf("telecover_%s_%s_%s_%s.png", cp.label, strings.ReplaceAll(chName, " ", "_"), rname, date))
				if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
					return written, fmt.Errorf("save %s plot: %w", cp.label, err)
				}
				written = append(written, path)
			}
		}

		for _, def := range cfg.Telecover.Ratios {
			for _, dev := range []bool{false, true} {
				label, fixed := "ratios", [2]float64{0, math.NaN()}
				if dev {
					label, fixed = "ratio_deviations", [2]float64{-0.3, 0.3}
				}
				p := newPlot(fmt.Sprintf("%s telecover ratio %s %s", cfg.Instrument, def.Name, r.Input.Date.Format("02.01.2006")), "signal ratio")
				var ys []float64
				for i, sector := range r.Input.TelecoverSectors {
					src := r.Ratios.Ratios[sector]
					if dev {
						src = r.Ratios.Deviation[sector]
					}
					prof, ok := src[def.Name]
					if !ok {
						continue
					}
					if err := addLine(p, sector, x[:n], prof[:n], sectorColor(sector, i), false); err != nil {
						return written, err
					}
					ys = append(ys, prof[:n]...)
				}
				if mean := r.Ratios.Mean[def.Name]; !dev && mean != nil {
					if err := addLine(p, "mean", x[:n], mean[:n], meanColor, true); err != nil {
						return written, err
					}
				}
				setRanges(p, cfg.Telecover.MaxPlotHeight[ri], fixed, percentile(ys, 97))

				path := filepath.Join(dir, fmt.Sprintf("telecover_%s_%s_%s_%s.png", label, sanitize(def.Name), rname, date))
				if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
					return written, fmt.Errorf("save ratio plot: %w", err)
				}
				written = append(written, path)
			}
		}
	}
	return written, nil
}

func sanitize(name string) string {
	return strings.NewReplacer(" ", "_", "/", "-").Replace(name)
}

// plotBins returns the number of smoothed bins up to the first one beyond maxHeight.
func plotBins(x []float64, maxHeight float64) int {
	for i, v := range x {
		if v > maxHeight {
			return i
		}
	}
	return len(x)
}

func newPlot(title, ylabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "height, m"
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p
}

// addLine adds a line skipping non-finite points, which plotter rejects.
func addLine(p *plot.Plot, name string, x, y []float64, c color.Color, dashed bool) error {
	pts := make(plotter.XYs, 0, len(x))
	for i := range x {
		if i >= len(y) || math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: x[i], Y: y[i]})
	}
	if len(pts) == 0 {
		return nil
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = c
	line.Width = vg.Points(1)
	if dashed {
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	}
	p.Add(line)
	p.Legend.Add(name, line)
	return nil
}

func setRanges(p *plot.Plot, maxHeight float64, fixed [2]float64, ymax float64) {
	p.X.Min, p.X.Max = 0, maxHeight
	if !math.IsNaN(fixed[0]) {
		p.Y.Min = fixed[0]
	}
	switch {
	case !math.IsNaN(fixed[1]):
		p.Y.Max = fixed[1]
	case !math.IsNaN(ymax) && ymax > p.Y.Min:
		p.Y.Max = ymax
	}
}

// percentile returns the q-th percentile (0..100) of the finite values, NaN
// when there are none.
func percentile(values []float64, q float64) float64 {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return math.NaN()
	}
	sort.Float64s(finite)
	return stat.Quantile(q/100, stat.Empirical, finite, nil)
}
