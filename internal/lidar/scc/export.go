// Package scc assembles and writes the raw and depolarization calibration
// files accepted by the Single Calculus Chain.
package scc

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/lidar.scc/internal/lidar/measurement"
)

// Export kinds, also used as metric and catalog labels.
const (
	KindRaw      = "raw"
	KindDepolCal = "depolcal"
)

// FillInt is the NetCDF default fill value for 32-bit integers. channel_ID is
// always written as fill so the service resolves channels by string id.
const FillInt int32 = -2147483647

// ErrNoMeasurementID is returned when a raw export is built without a measurement id.
var ErrNoMeasurementID = errors.New("measurement id is not set")

// Channel holds the per-channel metadata of an export.
type Channel struct {
	StringID        string
	RangeID         int
	BackgroundLow   float64
	BackgroundHigh  float64
	RangeResolution float64
	// CalibRangeMin and CalibRangeMax are only written for depolcal files.
	CalibRangeMin float64
	CalibRangeMax float64
}

// Export is the complete content of one SCC file, independent of encoding.
type Export struct {
	Kind     string
	Filename string

	MeasurementID string
	Comment       string
	SoundingFile  string

	Start time.Time
	Stop  time.Time

	Points        int
	ZenithAngle   float64
	Pressure      float64
	Temperature   float64
	MolecularCalc int32

	Channels []Channel
	// StartSeconds and StopSeconds are relative to the first exported start.
	StartSeconds []int32
	StopSeconds  []int32
	// Shots is [time][channel]; Data is [time][channel][points].
	Shots [][]int32
	Data  [][][]float64

	// CloudMask is [time][points] and only set for manually edited masks.
	CloudMask        [][]int32
	CloudMaskChannel int32
}

// Len returns the number of time rows.
func (e *Export) Len() int { return len(e.StartSeconds) }

// BuildRaw assembles the raw signal export from the rows passing the raw
// export mask.
func BuildRaw(m *measurement.Measurement) (*Export, error) {
	h := m.Header()
	if h.MeasurementID == "" {
		return nil, ErrNoMeasurementID
	}
	v, err := m.RawExportView()
	if err != nil {
		return nil, fmt.Errorf("raw export: %w", err)
	}

	e := newExport(m, v, KindRaw)
	e.Filename = RawFilename(h.MeasurementID, e.Start, e.Stop)

	if v.CloudMask != nil {
		e.CloudMask = make([][]int32, len(v.CloudMask))
		for t, row := range v.CloudMask {
			e.CloudMask[t] = make([]int32, len(row))
			for j, c := range row {
				e.CloudMask[t][j] = int32(c)
			}
		}
		e.CloudMaskChannel = int32(m.Config().CloudMaskChannel)
	}
	return e, nil
}

// BuildDepolCal locates the calibration intervals and assembles the
// depolarization calibration export.
func BuildDepolCal(m *measurement.Measurement) (*Export, error) {
	cal, err := m.FindDepolCalibrationIndices()
	if err != nil {
		return nil, err
	}
	v, err := m.CalibrationExportView(cal)
	if err != nil {
		return nil, fmt.Errorf("depolcal export: %w", err)
	}

	cfg := m.Config()
	e := newExport(m, v, KindDepolCal)
	e.Filename = DepolCalFilename(cfg.DepolCalFilenameBody, e.Start, e.Stop)
	for i := range e.Channels {
		e.Channels[i].CalibRangeMin = cfg.CalibrationRange[0]
		e.Channels[i].CalibRangeMax = cfg.CalibrationRange[1]
	}
	return e, nil
}

func newExport(m *measurement.Measurement, v *measurement.ExportView, kind string) *Export {
	h := m.Header()
	n := v.Len()
	e := &Export{
		Kind:          kind,
		MeasurementID: h.MeasurementID,
		Comment:       h.Comment,
		Start:         v.Start[0],
		Stop:          v.Stop[n-1],
		Points:        h.Points,
		ZenithAngle:   h.ZenithAngleDeg,
		Pressure:      h.Pressure,
		Temperature:   h.Temperature,
		StartSeconds:  make([]int32, n),
		StopSeconds:   make([]int32, n),
		Shots:         make([][]int32, n),
		Data:          make([][][]float64, n),
	}
	if s := m.Sounding(); s != nil {
		e.SoundingFile = s.Header.Filename
		e.MolecularCalc = 1
	}

	rangeRes := m.ZAxis().RangeResolution()
	for _, ch := range v.Channels {
		e.Channels = append(e.Channels, Channel{
			StringID:        ch.Name,
			RangeID:         ch.Header.RangeID,
			BackgroundLow:   float64(ch.Header.BGFirst),
			BackgroundHigh:  float64(ch.Header.BGLast),
			RangeResolution: rangeRes,
		})
	}

	for t := 0; t < n; t++ {
		e.StartSeconds[t] = int32(v.ElapsedStart[t] / time.Second)
		e.StopSeconds[t] = int32(v.ElapsedStop[t] / time.Second)
		e.Shots[t] = make([]int32, len(v.Channels))
		e.Data[t] = make([][]float64, len(v.Channels))
		for c, ch := range v.Channels {
			e.Shots[t][c] = int32(ch.Shots[t])
			e.Data[t][c] = ch.Rows[t]
		}
	}
	return e
}

// RawFilename returns <measurementID>_<HHMMSS start>_<HHMMSS stop>.nc.
func RawFilename(measurementID string, start, stop time.Time) string {
	return fmt.Sprintf("%s_%s_%s.nc", measurementID, start.Format("150405"), stop.Format("150405"))
}

// DepolCalFilename returns <body>_depolcal__<YYYYMMDD>_<HHMMSS>_<HHMMSS>.nc.
func DepolCalFilename(body string, start, stop time.Time) string {
	return fmt.Sprintf("%s_depolcal__%s_%s_%s.nc", body, start.Format("20060102"), start.Format("150405"), stop.Format("150405"))
}
