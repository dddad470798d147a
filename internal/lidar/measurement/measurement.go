// Package measurement implements the Measurement aggregate: one logical
// lidar measurement built from one or more raw files, with its derived
// signals, masks and calibration bookkeeping.
package measurement

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/lidar.scc/internal/config"
	"github.com/banshee-data/lidar.scc/internal/lidar/axis"
	"github.com/banshee-data/lidar.scc/internal/lidar/signal"
	"github.com/banshee-data/lidar.scc/internal/lidar/sonde"
	"github.com/banshee-data/lidar.scc/internal/monitoring"
)

// Header holds the per-measurement metadata.
type Header struct {
	Title         string
	MeasurementID string
	Comment       string

	Latitude    float64
	Longitude   float64
	Altitude    float64
	Points      int
	NumChannels int

	BinResolutionNs float64
	ZenithAngleDeg  float64

	Pressure    float64
	Temperature float64

	CloudMaskType CloudMaskType
}

// Measurement is the root aggregate. It is not safe for concurrent use;
// all mutations must be serialized by the caller.
type Measurement struct {
	cfg    *config.LidarConfig
	header Header

	timeAxis      *axis.TimeAxis
	zAxis         *axis.ZAxis
	signals       []*signal.Signal
	preProcessed  []*signal.PreProcessed
	shots         *signal.TimeSeries
	depolCalAngle *signal.TimeSeries
	mask          []bool
	cloudMask     [][]CloudType

	log      *LidarLog
	shutter  *signal.TimeSeries
	sounding *sonde.Sounding

	telecover TelecoverRegions
}

// New returns an empty measurement for the given instrument.
func New(cfg *config.LidarConfig) *Measurement {
	return &Measurement{
		cfg: cfg,
		header: Header{
			Pressure:    cfg.GroundPressure,
			Temperature: cfg.GroundTemperature,
		},
		telecover: newTelecoverRegions(),
	}
}

// Config returns the instrument configuration.
func (m *Measurement) Config() *config.LidarConfig { return m.cfg }

// Header returns a copy of the measurement header.
func (m *Measurement) Header() Header { return m.header }

// SetRunInfo sets the per-run identifiers written into exports.
func (m *Measurement) SetRunInfo(measurementID, comment string) {
	m.header.MeasurementID = measurementID
	m.header.Comment = comment
}

// SetStationConditions overrides the ground pressure (hPa) and temperature (°C).
func (m *Measurement) SetStationConditions(pressure, temperature float64) {
	m.header.Pressure = pressure
	m.header.Temperature = temperature
}

// Ingested reports whether a raw file has been read.
func (m *Measurement) Ingested() bool { return m.timeAxis != nil }

// Len returns the number of time bins.
func (m *Measurement) Len() int {
	if m.timeAxis == nil {
		return 0
	}
	return m.timeAxis.Len()
}

// TimeAxis returns the time axis.
func (m *Measurement) TimeAxis() *axis.TimeAxis { return m.timeAxis }

// ZAxis returns the spatial axes.
func (m *Measurement) ZAxis() *axis.ZAxis { return m.zAxis }

// Signal returns the raw signal of channel index ch.
func (m *Measurement) Signal(ch int) *signal.Signal { return m.signals[ch] }

// PreProcessed returns the pre-processed signal of channel index ch.
func (m *Measurement) PreProcessed(ch int) *signal.PreProcessed { return m.preProcessed[ch] }

// Shots returns the per-bin shot counts.
func (m *Measurement) Shots() *signal.TimeSeries { return m.shots }

// DepolCalAngle returns the per-bin polarizer calibration angle.
func (m *Measurement) DepolCalAngle() *signal.TimeSeries { return m.depolCalAngle }

// Shutter returns the per-bin count of closed radar shutter log entries, or
// nil if no lidar log was read.
func (m *Measurement) Shutter() *signal.TimeSeries { return m.shutter }

// Sounding returns the attached radiosonde profile, if any.
func (m *Measurement) Sounding() *sonde.Sounding { return m.sounding }

// AttachSounding attaches a radiosonde profile used for molecular calculations.
func (m *Measurement) AttachSounding(s *sonde.Sounding) { m.sounding = s }

// Ingest replaces the measurement content with the content of raw. On error
// the measurement is left unchanged.
func (m *Measurement) Ingest(raw *RawFile) error {
	if err := raw.validate(); err != nil {
		return err
	}

	header := Header{
		Title:           raw.Name,
		MeasurementID:   m.header.MeasurementID,
		Comment:         m.header.Comment,
		Latitude:        raw.Latitude,
		Longitude:       raw.Longitude,
		Altitude:        raw.Altitude,
		Points:          raw.Points,
		NumChannels:     len(raw.Signals) + m.cfg.DoubleChannelCount(),
		BinResolutionNs: raw.BinResolutionNs,
		ZenithAngleDeg:  raw.ZenithAngleDeg,
		Pressure:        m.header.Pressure,
		Temperature:     m.header.Temperature,
		CloudMaskType:   NoCloudMask,
	}

	ta, err := axis.FromRaw(raw.StopDate, raw.StopSeconds)
	if err != nil {
		return malformed("%s: measurement_time: %v", raw.Name, err)
	}
	za, err := axis.NewZAxis(axis.Geometry{
		Points:          raw.Points,
		BinResolutionNs: raw.BinResolutionNs,
		ZenithAngleDeg:  raw.ZenithAngleDeg,
		Altitude:        raw.Altitude,
		FirstValidBin:   m.cfg.FirstValidBin,
	}, m.cfg.LightSpeed)
	if err != nil {
		return malformed("%s: %v", raw.Name, err)
	}

	signals := make([]*signal.Signal, len(m.cfg.Channels))
	pre := make([]*signal.PreProcessed, len(m.cfg.Channels))
	for i, ch := range m.cfg.Channels {
		if ch.RawPosition >= len(raw.Signals) {
			return malformed("%s: channel %q needs raw position %d, file has %d", raw.Name, ch.Name, ch.RawPosition, len(raw.Signals))
		}
		signals[i] = signal.FromRaw(mat.DenseCopyOf(raw.Signals[ch.RawPosition]), m.channelHeader(i))
		pre[i], err = signal.Derive(signals[i], za.RangeAxis())
		if err != nil {
			return malformed("%s: %v", raw.Name, err)
		}
	}

	n := raw.TimeLen()
	m.header = header
	m.timeAxis = ta
	m.zAxis = za
	m.signals = signals
	m.preProcessed = pre
	m.shots = signal.NewTimeSeries(raw.Shots)
	m.depolCalAngle = signal.NewTimeSeries(raw.DepolCalAngle)
	m.mask = trueMask(n)
	m.cloudMask = clearCloudRows(n, raw.Points)
	m.telecover = newTelecoverRegions()
	m.shutter = nil
	if m.log != nil {
		m.shutter = m.log.shutterSeries(m.timeAxis)
	}

	monitoring.FilesIngested.Inc()
	monitoring.Logf("ingested %s: %d time bins, %d points, %d channels", raw.Name, n, raw.Points, header.NumChannels)
	return m.checkInvariant()
}

// Append merges raw into the measurement. The file must describe the same
// physical setup; otherwise a *MismatchError is returned and nothing changes.
// Appending to an empty measurement is the same as Ingest.
func (m *Measurement) Append(raw *RawFile) error {
	if !m.Ingested() {
		return m.Ingest(raw)
	}
	if err := raw.validate(); err != nil {
		return err
	}
	if err := m.compareStructure(raw); err != nil {
		monitoring.FilesRefused.WithLabelValues("structural_mismatch").Inc()
		monitoring.Warnw("append refused", "file", raw.Name, "error", err)
		return err
	}

	newAxis, err := axis.FromRaw(raw.StopDate, raw.StopSeconds)
	if err != nil {
		return malformed("%s: measurement_time: %v", raw.Name, err)
	}

	// Build every grown container before touching the measurement.
	signals := make([]*signal.Signal, len(m.signals))
	pre := make([]*signal.PreProcessed, len(m.signals))
	for i, old := range m.signals {
		grown := signal.FromRaw(old.Data, old.Header)
		pos := m.cfg.Channels[i].RawPosition
		if err := grown.Append(raw.Signals[pos], signal.Vertical); err != nil {
			return malformed("%s: channel %q: %v", raw.Name, old.Header.Name, err)
		}
		signals[i] = grown
		pre[i], err = signal.Derive(grown, m.zAxis.RangeAxis())
		if err != nil {
			return malformed("%s: %v", raw.Name, err)
		}
	}

	n := raw.TimeLen()
	m.timeAxis.Append(newAxis)
	m.shots.Append(raw.Shots...)
	m.depolCalAngle.Append(raw.DepolCalAngle...)
	m.mask = append(m.mask, trueMask(n)...)
	m.cloudMask = append(m.cloudMask, clearCloudRows(n, m.header.Points)...)
	m.signals = signals
	m.preProcessed = pre
	if m.log != nil {
		m.shutter = m.log.shutterSeries(m.timeAxis)
	}

	monitoring.FilesIngested.Inc()
	monitoring.Logf("appended %s: %d new time bins, %d total", raw.Name, n, m.Len())
	return m.checkInvariant()
}

func (m *Measurement) compareStructure(raw *RawFile) error {
	h := m.header
	numChannels := len(raw.Signals) + m.cfg.DoubleChannelCount()
	switch {
	case h.Latitude != raw.Latitude:
		return &MismatchError{Field: "latitude", Have: h.Latitude, Got: raw.Latitude}
	case h.Longitude != raw.Longitude:
		return &MismatchError{Field: "longitude", Have: h.Longitude, Got: raw.Longitude}
	case h.Altitude != raw.Altitude:
		return &MismatchError{Field: "altitude", Have: h.Altitude, Got: raw.Altitude}
	case h.Points != raw.Points:
		return &MismatchError{Field: "points", Have: h.Points, Got: raw.Points}
	case h.NumChannels != numChannels:
		return &MismatchError{Field: "channels", Have: h.NumChannels, Got: numChannels}
	case h.BinResolutionNs != raw.BinResolutionNs:
		return &MismatchError{Field: "bin resolution", Have: h.BinResolutionNs, Got: raw.BinResolutionNs}
	case h.ZenithAngleDeg != raw.ZenithAngleDeg:
		return &MismatchError{Field: "zenith angle", Have: h.ZenithAngleDeg, Got: raw.ZenithAngleDeg}
	}
	return nil
}

// checkInvariant verifies that every per-time array has the same length.
func (m *Measurement) checkInvariant() error {
	n := m.timeAxis.Len()
	lengths := map[string]int{
		"shots":           m.shots.Len(),
		"depol_cal_angle": m.depolCalAngle.Len(),
		"mask":            len(m.mask),
		"cloud_mask":      len(m.cloudMask),
	}
	if m.shutter != nil {
		lengths["shutter"] = m.shutter.Len()
	}
	for i := range m.signals {
		lengths["signal "+m.signals[i].Header.Name] = m.signals[i].Rows()
		lengths["pre-processed "+m.preProcessed[i].Header.Name] = m.preProcessed[i].Rows()
	}
	for name, l := range lengths {
		if l != n {
			return fmt.Errorf("%s has %d rows, time axis has %d: %w", name, l, n, ErrInvariant)
		}
	}
	return nil
}

func (m *Measurement) channelHeader(i int) signal.Header {
	ch := m.cfg.Channels[i]
	return signal.Header{
		BGFirst:       ch.BGFirst,
		BGLast:        ch.BGLast,
		ChannelID:     ch.ChannelID,
		Name:          ch.Name,
		RangeID:       ch.RangeID,
		FirstValidBin: m.cfg.FirstValidBin,
	}
}

func trueMask(n int) []bool {
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = true
	}
	return mask
}
