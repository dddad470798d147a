// Package quicklook renders an HTML overview of one channel's
// range-corrected signal with go-echarts.
package quicklook

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/lidar.scc/internal/lidar/measurement"
	"github.com/banshee-data/lidar.scc/internal/monitoring"
)

// DefaultMaxPoints bounds the number of scatter points in one page.
const DefaultMaxPoints = 20000

const assetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

var ErrChannel = errors.New("channel out of range")

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// Point is one plotted sample: time index, height above the station and
// log10 of the range-corrected signal.
type Point struct {
	Time   int
	Height float64
	Value  float64
}

// Collect gathers the positive samples of channel below maxAltitude,
// keeping every stride-th one so at most maxPoints remain.
func Collect(m *measurement.Measurement, channel int, maxAltitude float64, maxPoints int) ([]Point, int, error) {
	if !m.Ingested() {
		return nil, 0, measurement.ErrNotIngested
	}
	if channel < 0 || channel >= len(m.Config().Channels) {
		return nil, 0, fmt.Errorf("quicklook channel %d: %w", channel, ErrChannel)
	}
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}

	heights := m.ZAxis().HeightAxis()
	top := len(heights)
	for j, h := range heights {
		if h > maxAltitude {
			top = j
			break
		}
	}
	pp := m.PreProcessed(channel)
	rows := pp.Rows()

	stride := 1
	if total := rows * top; total > maxPoints {
		stride = int(math.Ceil(float64(total) / float64(maxPoints)))
	}

	points := make([]Point, 0, rows*top/stride+1)
	for k := 0; k < rows*top; k += stride {
		i, j := k/top, k%top
		v := pp.Data.At(i, j)
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		points = append(points, Point{Time: i, Height: heights[j], Value: math.Log10(v)})
	}
	return points, stride, nil
}

// Render writes the quicklook page of channel to w.
func Render(w io.Writer, m *measurement.Measurement, channel int, maxAltitude float64, maxPoints int) error {
	points, stride, err := Collect(m, channel, maxAltitude, maxPoints)
	if err != nil {
		return err
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	data := make([]opts.ScatterData, 0, len(points))
	for _, p := range points {
		lo = math.Min(lo, p.Value)
		hi = math.Max(hi, p.Value)
		data = append(data, opts.ScatterData{Value: []interface{}{p.Time, p.Height, p.Value}})
	}
	if len(points) == 0 {
		lo, hi = 0, 1
	}

	h := m.Header()
	name := m.Config().Channels[channel].Name
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Lidar quicklook " + h.Title, Width: "1200px", Height: "700px", AssetsHost: assetsHost}),
		charts.WithTitleOpts(opts.Title{Title: h.Title, Subtitle: fmt.Sprintf("channel=%s points=%d stride=%d", name, len(data), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time bin", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: maxAltitude, Name: "height (m)", NameLocation: "middle", NameGap: 40}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(lo),
			Max:        float32(hi),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries(name, data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
	return scatter.Render(w)
}

// WriteFile renders the configured quicklook channel into dir and returns
// the file path.
func WriteFile(dir string, m *measurement.Measurement, maxAltitude float64) (string, error) {
	if !m.Ingested() {
		return "", measurement.ErrNotIngested
	}
	cfg := m.Config()
	path := filepath.Join(dir, fmt.Sprintf("%s_quicklook_%s.html",
		m.TimeAxis().StartAt(0).Format("20060102_150405"), cfg.Channels[cfg.QuicklookChannel].Name))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := Render(f, m, cfg.QuicklookChannel, maxAltitude, DefaultMaxPoints); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	monitoring.ExportsWritten.WithLabelValues("quicklook").Inc()
	monitoring.Infow("wrote quicklook", "path", path)
	return path, nil
}
