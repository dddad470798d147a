// Package testutil provides shared test fixtures for the lidar packages.
package testutil

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/lidar.scc/internal/config"
	"github.com/banshee-data/lidar.scc/internal/lidar/measurement"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Config returns a small three-channel instrument: two raw channels and one
// double channel re-exposing raw position 0.
func Config() *config.LidarConfig {
	cfg := config.Default()
	cfg.FirstValidBin = 1
	cfg.Channels = []config.ChannelConfig{
		{Name: "wa_355p", RawPosition: 0, ChannelID: 387, RangeID: 1, BGFirst: 0, BGLast: 2},
		{Name: "wa_532p", RawPosition: 1, ChannelID: 395, RangeID: 1, BGFirst: 0, BGLast: 2},
		{Name: "wa_355total", RawPosition: 0, ChannelID: 999, RangeID: 0, BGFirst: 0, BGLast: 2, Double: true},
	}
	cfg.CloudMaskChannel = 1
	cfg.QuicklookChannel = 1
	cfg.CalibrationChannels = []config.CalibrationChannelConfig{
		{Name: "wa_355p_p45", ChannelID: 909, SourceChannel: 0, Position: 1},
		{Name: "wa_355p_m45", ChannelID: 910, SourceChannel: 0, Position: 0},
		{Name: "wa_532p_p45", ChannelID: 905, SourceChannel: 1, Position: 1},
	}
	cfg.Telecover.Channels = []int{0, 1}
	cfg.Telecover.ChannelNames = []string{"355 p", "532 p"}
	cfg.Telecover.Ratios = []config.RatioConfig{{Name: "355p/532p", Nominator: 0, Denominator: 1}}
	cfg.Telecover.NormalizationRange = [2]float64{20, 60}
	cfg.Telecover.SmoothBins = 2
	cfg.Telecover.MaxOutputHeight = 100
	cfg.Telecover.MaxPlotHeight = [2]float64{60, 100}
	return cfg
}

// RawOptions describes a synthetic raw file.
type RawOptions struct {
	Name string
	// Times is the number of time bins; Points the number of height bins.
	Times  int
	Points int
	// FirstStop is the stop second-of-day of bin 0; bins are Step seconds long.
	FirstStop float64
	Step      float64
	Shots     []float64
	Angles    []float64
	// Channels is the number of raw channel positions, default 2.
	Channels int

	Latitude        float64
	Longitude       float64
	Altitude        float64
	BinResolutionNs float64
	ZenithAngleDeg  float64
}

// DefaultRaw returns options for a 4x12 file recorded on 2015-05-01.
func DefaultRaw() RawOptions {
	return RawOptions{
		Name:            "2015_05_01_Fri_WA_00_00_30.nc",
		Times:           4,
		Points:          12,
		FirstStop:       60,
		Step:            30,
		Channels:        2,
		Latitude:        51.35,
		Longitude:       12.43,
		Altitude:        125,
		BinResolutionNs: 50,
		ZenithAngleDeg:  5,
	}
}

// RawValue is the synthetic raw count at raw channel c, global time row t and bin j.
func RawValue(c, t, j int) float64 {
	return float64(100*(c+1)) + float64(t) + float64(j*j)
}

// RawFile builds a synthetic raw file. Row values follow RawValue with t
// offset by rowOffset so appended files continue the pattern.
func RawFile(o RawOptions, rowOffset int) *measurement.RawFile {
	if o.Channels == 0 {
		o.Channels = 2
	}
	raw := &measurement.RawFile{
		Name:            o.Name,
		Latitude:        o.Latitude,
		Longitude:       o.Longitude,
		Altitude:        o.Altitude,
		Points:          o.Points,
		BinResolutionNs: o.BinResolutionNs,
		ZenithAngleDeg:  o.ZenithAngleDeg,
	}
	for t := 0; t < o.Times; t++ {
		raw.StopDate = append(raw.StopDate, 20150501)
		raw.StopSeconds = append(raw.StopSeconds, o.FirstStop+float64(t)*o.Step)
		shots := 600.0
		if t < len(o.Shots) {
			shots = o.Shots[t]
		}
		angle := 20.0
		if t < len(o.Angles) {
			angle = o.Angles[t]
		}
		raw.Shots = append(raw.Shots, shots)
		raw.DepolCalAngle = append(raw.DepolCalAngle, angle)
	}
	for c := 0; c < o.Channels; c++ {
		m := mat.NewDense(o.Times, o.Points, nil)
		for t := 0; t < o.Times; t++ {
			for j := 0; j < o.Points; j++ {
				m.Set(t, j, RawValue(c, t+rowOffset, j))
			}
		}
		raw.Signals = append(raw.Signals, m)
	}
	return raw
}

// Measurement ingests a synthetic file into a new measurement.
func Measurement(t *testing.T, o RawOptions) *measurement.Measurement {
	t.Helper()
	m := measurement.New(Config())
	AssertNoError(t, m.Ingest(RawFile(o, 0)))
	return m
}
