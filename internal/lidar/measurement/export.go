package measurement

import (
	"fmt"
	"time"

	"github.com/banshee-data/lidar.scc/internal/lidar/signal"
	"github.com/banshee-data/lidar.scc/internal/monitoring"
)

// ExportChannel is one channel of an export view.
type ExportChannel struct {
	Name      string
	ChannelID int
	Header    signal.Header
	// Rows holds copies of the raw rows, [time][points].
	Rows [][]float64
	// Shots holds the shot count of each exported row.
	Shots []float64
}

// ExportView is a read-only subset of the measurement prepared for export.
// Nothing in it aliases the measurement's arrays.
type ExportView struct {
	Start []time.Time
	Stop  []time.Time
	// ElapsedStart and ElapsedStop are relative to Start[0].
	ElapsedStart []time.Duration
	ElapsedStop  []time.Duration

	Channels []ExportChannel
	// CloudMask is only set when the mask was edited, [time][points].
	CloudMask [][]CloudType
}

// Len returns the number of exported time rows.
func (v *ExportView) Len() int { return len(v.Start) }

// RawExportView selects the rows passing RawExportMask for every channel.
func (m *Measurement) RawExportView() (*ExportView, error) {
	if !m.Ingested() {
		return nil, ErrNotIngested
	}
	idx := maskIndices(m.RawExportMask())
	if len(idx) == 0 {
		return nil, fmt.Errorf("no time bins left after masking")
	}
	monitoring.TimeBinsMasked.Add(float64(m.Len() - len(idx)))

	v := &ExportView{
		Start: make([]time.Time, len(idx)),
		Stop:  make([]time.Time, len(idx)),
	}
	for t, i := range idx {
		v.Start[t] = m.timeAxis.StartAt(i)
		v.Stop[t] = m.timeAxis.StopAt(i)
	}
	v.fillElapsed()

	shots := m.shots.Subset(idx)
	for ch, sig := range m.signals {
		ec := ExportChannel{
			Name:      sig.Header.Name,
			ChannelID: m.cfg.Channels[ch].ChannelID,
			Header:    sig.Header,
			Rows:      make([][]float64, len(idx)),
			Shots:     append([]float64(nil), shots...),
		}
		for t, i := range idx {
			ec.Rows[t] = sig.Row(i)
		}
		v.Channels = append(v.Channels, ec)
	}

	if m.header.CloudMaskType == ManualCloudMask {
		v.CloudMask = make([][]CloudType, len(idx))
		for t, i := range idx {
			v.CloudMask[t] = append([]CloudType(nil), m.cloudMask[i]...)
		}
	}
	return v, nil
}

// CalibrationExportView pairs the rows of both calibration positions for
// every configured calibration channel. Rows vetoed by CalibrationExportMask
// are dropped first; the view is as long as the shorter position.
func (m *Measurement) CalibrationExportView(cal CalibrationIntervals) (*ExportView, error) {
	if !m.Ingested() {
		return nil, ErrNotIngested
	}
	if len(m.cfg.CalibrationChannels) == 0 {
		return nil, fmt.Errorf("no calibration channels configured")
	}

	keep := m.CalibrationExportMask()
	var pos [2][]int
	for k := range pos {
		for _, i := range cal.Indices[k] {
			if i < 0 || i >= len(keep) {
				return nil, fmt.Errorf("calibration index %d outside [0,%d)", i, len(keep))
			}
			if keep[i] {
				pos[k] = append(pos[k], i)
			}
		}
	}
	n := min(len(pos[0]), len(pos[1]))
	if n == 0 {
		return nil, fmt.Errorf("calibration positions have no valid rows: %w", ErrNoCalibration)
	}

	v := &ExportView{
		Start: make([]time.Time, n),
		Stop:  make([]time.Time, n),
	}
	for t := 0; t < n; t++ {
		v.Start[t] = m.timeAxis.StartAt(pos[0][t])
		v.Stop[t] = m.timeAxis.StopAt(pos[1][t])
	}
	v.fillElapsed()

	for _, cc := range m.cfg.CalibrationChannels {
		src := m.signals[cc.SourceChannel]
		ec := ExportChannel{
			Name:      cc.Name,
			ChannelID: cc.ChannelID,
			Header:    src.Header,
			Rows:      make([][]float64, n),
			Shots:     make([]float64, n),
		}
		for t := 0; t < n; t++ {
			i := pos[cc.Position][t]
			ec.Rows[t] = src.Row(i)
			ec.Shots[t] = m.shots.At(i)
		}
		v.Channels = append(v.Channels, ec)
	}
	return v, nil
}

func (v *ExportView) fillElapsed() {
	v.ElapsedStart = make([]time.Duration, len(v.Start))
	v.ElapsedStop = make([]time.Duration, len(v.Stop))
	t0 := v.Start[0]
	for i := range v.Start {
		v.ElapsedStart[i] = v.Start[i].Sub(t0)
		v.ElapsedStop[i] = v.Stop[i].Sub(t0)
	}
}
