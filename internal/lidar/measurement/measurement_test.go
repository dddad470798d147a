package measurement_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lidar.scc/internal/config"
	"github.com/banshee-data/lidar.scc/internal/lidar/measurement"
	"github.com/banshee-data/lidar.scc/internal/monitoring"
	"github.com/banshee-data/lidar.scc/internal/testutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func TestIngest(t *testing.T) {
	before := promtest.ToFloat64(monitoring.FilesIngested)
	m := testutil.Measurement(t, testutil.DefaultRaw())

	assert.Equal(t, before+1, promtest.ToFloat64(monitoring.FilesIngested))
	assert.True(t, m.Ingested())
	assert.Equal(t, 4, m.Len())

	h := m.Header()
	assert.Equal(t, "2015_05_01_Fri_WA_00_00_30.nc", h.Title)
	assert.Equal(t, 12, h.Points)
	assert.Equal(t, 3, h.NumChannels)
	assert.Equal(t, 1000.0, h.Pressure)
	assert.Equal(t, measurement.NoCloudMask, h.CloudMaskType)

	ta := m.TimeAxis()
	day := time.Date(2015, 5, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, day.Add(30*time.Second), ta.StartAt(0))
	assert.Equal(t, day.Add(60*time.Second), ta.StopAt(0))
	assert.Equal(t, day.Add(150*time.Second), ta.StopAt(3))

	// the double channel re-exposes raw position 0 under its own id
	double := m.Signal(2)
	assert.Equal(t, "wa_355total", double.Header.Name)
	assert.Equal(t, 999, double.Header.ChannelID)
	assert.Equal(t, testutil.RawValue(0, 2, 5), double.Data.At(2, 5))

	pre := m.PreProcessed(1)
	require.Equal(t, 4, pre.Rows())
	// background window [0,2) of raw channel 1, row 0: mean(200, 201)
	assert.InDelta(t, 200.5, pre.Background[0], 1e-9)
}

func TestIngestMalformed(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*measurement.RawFile)
	}{
		{"shots length", func(r *measurement.RawFile) { r.Shots = r.Shots[:2] }},
		{"angle length", func(r *measurement.RawFile) { r.DepolCalAngle = nil }},
		{"single time bin", func(r *measurement.RawFile) {
			o := testutil.DefaultRaw()
			o.Times = 1
			*r = *testutil.RawFile(o, 0)
		}},
		{"missing raw position", func(r *measurement.RawFile) { r.Signals = r.Signals[:1] }},
		{"bad date", func(r *measurement.RawFile) { r.StopDate[1] = 20151399 }},
		{"no points", func(r *measurement.RawFile) { r.Points = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := testutil.RawFile(testutil.DefaultRaw(), 0)
			tt.modify(raw)
			m := measurement.New(testutil.Config())
			err := m.Ingest(raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, measurement.ErrMalformedFile), "got %v", err)
			assert.False(t, m.Ingested())
		})
	}
}

func TestAppend(t *testing.T) {
	m := testutil.Measurement(t, testutil.DefaultRaw())

	require.NoError(t, m.SetCloudRegion(2, 4, measurement.Cirrus))

	next := testutil.DefaultRaw()
	next.Name = "2015_05_01_Fri_WA_00_02_30.nc"
	next.FirstStop = 180
	require.NoError(t, m.Append(testutil.RawFile(next, 4)))

	assert.Equal(t, 8, m.Len())
	assert.Equal(t, 8, m.Shots().Len())
	assert.Equal(t, 8, m.DepolCalAngle().Len())
	assert.Len(t, m.Mask(), 8)
	assert.Equal(t, 8, m.CloudRows())
	assert.Equal(t, measurement.Cirrus, m.CloudAt(3, 2), "existing rows keep their cloud cells")
	assert.Equal(t, measurement.NoCloud, m.CloudAt(7, 2), "appended rows start cloud free")
	for ch := 0; ch < 3; ch++ {
		assert.Equal(t, 8, m.Signal(ch).Rows())
		assert.Equal(t, 8, m.PreProcessed(ch).Rows())
	}
	assert.Equal(t, testutil.RawValue(1, 5, 2), m.Signal(1).Data.At(5, 2))
	assert.InDelta(t, 204.5, m.PreProcessed(1).Background[4], 1e-9)
	// title stays that of the first file
	assert.Equal(t, "2015_05_01_Fri_WA_00_00_30.nc", m.Header().Title)
}

func TestAppendToEmptyIngests(t *testing.T) {
	m := measurement.New(testutil.Config())
	require.NoError(t, m.Append(testutil.RawFile(testutil.DefaultRaw(), 0)))
	assert.Equal(t, 4, m.Len())
}

func TestAppendStructuralMismatch(t *testing.T) {
	tests := []struct {
		field  string
		modify func(*testutil.RawOptions)
	}{
		{"latitude", func(o *testutil.RawOptions) { o.Latitude = 51.36 }},
		{"longitude", func(o *testutil.RawOptions) { o.Longitude = 12.0 }},
		{"altitude", func(o *testutil.RawOptions) { o.Altitude = 126 }},
		{"points", func(o *testutil.RawOptions) { o.Points = 13 }},
		{"channels", func(o *testutil.RawOptions) { o.Channels = 3 }},
		{"bin resolution", func(o *testutil.RawOptions) { o.BinResolutionNs = 100 }},
		{"zenith angle", func(o *testutil.RawOptions) { o.ZenithAngleDeg = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			m := testutil.Measurement(t, testutil.DefaultRaw())
			before := promtest.ToFloat64(monitoring.FilesRefused.WithLabelValues("structural_mismatch"))

			o := testutil.DefaultRaw()
			o.FirstStop = 180
			tt.modify(&o)
			err := m.Append(testutil.RawFile(o, 4))

			require.Error(t, err)
			assert.True(t, errors.Is(err, measurement.ErrStructuralMismatch))
			var mm *measurement.MismatchError
			require.True(t, errors.As(err, &mm))
			assert.Equal(t, tt.field, mm.Field)

			assert.Equal(t, 4, m.Len())
			assert.Equal(t, 4, m.Signal(0).Rows())
			assert.Equal(t, 4, m.Shots().Len())
			assert.Equal(t, before+1, promtest.ToFloat64(monitoring.FilesRefused.WithLabelValues("structural_mismatch")))
		})
	}
}

func TestMask(t *testing.T) {
	t.Run("not ingested", func(t *testing.T) {
		m := measurement.New(testutil.Config())
		assert.ErrorIs(t, m.SetInvalid(0, 1), measurement.ErrNotIngested)
	})

	t.Run("set and reset", func(t *testing.T) {
		m := testutil.Measurement(t, testutil.DefaultRaw())
		require.NoError(t, m.SetInvalid(1, 3))
		assert.Equal(t, []bool{true, false, false, true}, m.Mask())
		assert.Equal(t, 2, m.ValidCount())
		assert.Equal(t, 2, m.MaskedCount())

		require.NoError(t, m.SetValid(2, 3))
		assert.Equal(t, []bool{true, false, true, true}, m.Mask())

		m.ResetMask()
		assert.Equal(t, 4, m.ValidCount())
	})

	t.Run("out of range", func(t *testing.T) {
		m := testutil.Measurement(t, testutil.DefaultRaw())
		assert.Error(t, m.SetInvalid(-1, 2))
		assert.Error(t, m.SetInvalid(2, 5))
		assert.Error(t, m.SetInvalid(3, 2))
	})

	t.Run("mask is a copy", func(t *testing.T) {
		m := testutil.Measurement(t, testutil.DefaultRaw())
		mask := m.Mask()
		mask[0] = false
		assert.Equal(t, 4, m.ValidCount())
	})

	t.Run("export masks do not touch the operator mask", func(t *testing.T) {
		o := testutil.DefaultRaw()
		o.Shots = []float64{600, 0, 600, 600}
		o.Angles = []float64{20, 20, 45.2, 19.6}
		m := testutil.Measurement(t, o)

		assert.Equal(t, []bool{true, false, true, true}, m.CalibrationExportMask())
		assert.Equal(t, []bool{true, false, false, true}, m.RawExportMask())
		assert.Equal(t, []bool{true, true, true, true}, m.Mask())
	})
}

func calibrationMeasurement(t *testing.T, cfg *config.LidarConfig, shots []float64) *measurement.Measurement {
	t.Helper()
	o := testutil.DefaultRaw()
	o.Times = 13
	o.Angles = []float64{20, 20, 20, 45, 45, 45, 45, 135, 135, 135, 135, 20, 20}
	o.Shots = shots
	m := measurement.New(cfg)
	require.NoError(t, m.Ingest(testutil.RawFile(o, 0)))
	return m
}

func TestFindDepolCalibrationIndices(t *testing.T) {
	tests := []struct {
		order   string
		angles  [2]float64
		indices [2][]int
	}{
		{config.OrderByFrequency, [2]float64{45, 135}, [2][]int{{4, 5, 6}, {8, 9, 10}}},
		{config.OrderAscendingAngle, [2]float64{45, 135}, [2][]int{{4, 5, 6}, {8, 9, 10}}},
		{config.OrderDescendingAngle, [2]float64{135, 45}, [2][]int{{8, 9, 10}, {4, 5, 6}}},
	}
	for _, tt := range tests {
		t.Run(tt.order, func(t *testing.T) {
			cfg := testutil.Config()
			cfg.CalibrationOrder = tt.order
			m := calibrationMeasurement(t, cfg, nil)

			cal, err := m.FindDepolCalibrationIndices()
			require.NoError(t, err)
			assert.Equal(t, tt.angles, cal.Angles)
			assert.Equal(t, tt.indices, cal.Indices)
		})
	}
}

func TestFindDepolCalibrationMostFrequent(t *testing.T) {
	o := testutil.DefaultRaw()
	o.Times = 10
	// 90 appears once and is ignored in favour of the two larger clusters
	o.Angles = []float64{20, 90, 45, 45, 45, 20, 135.4, 134.6, 135, 20}
	m := measurement.New(testutil.Config())
	require.NoError(t, m.Ingest(testutil.RawFile(o, 0)))

	cal, err := m.FindDepolCalibrationIndices()
	require.NoError(t, err)
	assert.Equal(t, [2]float64{45, 135}, cal.Angles)
	assert.Equal(t, [2][]int{{3, 4}, {7, 8}}, cal.Indices)
}

func TestFindDepolCalibrationMissing(t *testing.T) {
	t.Run("not ingested", func(t *testing.T) {
		_, err := measurement.New(testutil.Config()).FindDepolCalibrationIndices()
		assert.ErrorIs(t, err, measurement.ErrNotIngested)
	})
	t.Run("only measurement angle", func(t *testing.T) {
		m := testutil.Measurement(t, testutil.DefaultRaw())
		_, err := m.FindDepolCalibrationIndices()
		assert.ErrorIs(t, err, measurement.ErrNoCalibration)
	})
	t.Run("single angle cluster", func(t *testing.T) {
		o := testutil.DefaultRaw()
		o.Angles = []float64{20, 45, 45, 20}
		m := testutil.Measurement(t, o)
		_, err := m.FindDepolCalibrationIndices()
		assert.ErrorIs(t, err, measurement.ErrNoCalibration)
	})
	t.Run("settling sample only", func(t *testing.T) {
		o := testutil.DefaultRaw()
		o.Angles = []float64{45, 135, 135, 20}
		m := testutil.Measurement(t, o)
		_, err := m.FindDepolCalibrationIndices()
		assert.ErrorIs(t, err, measurement.ErrNoCalibration)
	})
}

func TestRawExportView(t *testing.T) {
	o := testutil.DefaultRaw()
	o.Shots = []float64{600, 0, 600, 600}
	m := testutil.Measurement(t, o)
	require.NoError(t, m.SetInvalid(2, 3))

	v, err := m.RawExportView()
	require.NoError(t, err)
	require.Equal(t, 2, v.Len())
	assert.Equal(t, []time.Duration{0, 90 * time.Second}, v.ElapsedStart)
	assert.Equal(t, []time.Duration{30 * time.Second, 120 * time.Second}, v.ElapsedStop)
	assert.Nil(t, v.CloudMask)

	require.Len(t, v.Channels, 3)
	names := []string{v.Channels[0].Name, v.Channels[1].Name, v.Channels[2].Name}
	assert.Equal(t, []string{"wa_355p", "wa_532p", "wa_355total"}, names)
	assert.Equal(t, testutil.RawValue(0, 3, 4), v.Channels[2].Rows[1][4])
	assert.Equal(t, []float64{600, 600}, v.Channels[0].Shots)

	// the view does not alias the measurement
	v.Channels[0].Rows[0][0] = -1
	assert.Equal(t, testutil.RawValue(0, 0, 0), m.Signal(0).Data.At(0, 0))
}

func TestRawExportViewEmpty(t *testing.T) {
	m := testutil.Measurement(t, testutil.DefaultRaw())
	require.NoError(t, m.SetInvalid(0, 4))
	_, err := m.RawExportView()
	assert.Error(t, err)
}

func TestCalibrationExportView(t *testing.T) {
	shots := make([]float64, 13)
	for i := range shots {
		shots[i] = 600
	}
	shots[9] = 0
	m := calibrationMeasurement(t, testutil.Config(), shots)

	cal, err := m.FindDepolCalibrationIndices()
	require.NoError(t, err)
	v, err := m.CalibrationExportView(cal)
	require.NoError(t, err)

	// position 1 loses bin 9 to the shot veto, so both are cut to two rows
	require.Equal(t, 2, v.Len())
	day := time.Date(2015, 5, 1, 0, 0, 0, 0, time.UTC)
	stop := func(i int) time.Time { return day.Add(time.Duration(60+30*i) * time.Second) }
	assert.Equal(t, []time.Time{stop(3), stop(4)}, v.Start)
	assert.Equal(t, []time.Time{stop(8), stop(10)}, v.Stop)

	require.Len(t, v.Channels, 3)
	plus := v.Channels[0]
	assert.Equal(t, "wa_355p_p45", plus.Name)
	assert.Equal(t, 909, plus.ChannelID)
	assert.Equal(t, testutil.RawValue(0, 10, 3), plus.Rows[1][3])

	minus := v.Channels[1]
	assert.Equal(t, testutil.RawValue(0, 5, 3), minus.Rows[1][3])

	green := v.Channels[2]
	assert.Equal(t, 905, green.ChannelID)
	assert.Equal(t, testutil.RawValue(1, 8, 0), green.Rows[0][0])
}

func TestCalibrationExportViewOutOfRange(t *testing.T) {
	m := testutil.Measurement(t, testutil.DefaultRaw())
	_, err := m.CalibrationExportView(measurement.CalibrationIntervals{Indices: [2][]int{{1}, {7}}})
	assert.Error(t, err)
}

func TestCloudMask(t *testing.T) {
	m := testutil.Measurement(t, testutil.DefaultRaw())

	require.NoError(t, m.SetCloudRegion(2, 5, measurement.Cirrus))
	assert.Equal(t, measurement.ManualCloudMask, m.Header().CloudMaskType)
	assert.Equal(t, measurement.Cirrus, m.CloudAt(3, 4))
	assert.Equal(t, measurement.NoCloud, m.CloudAt(3, 5))

	v, err := m.RawExportView()
	require.NoError(t, err)
	require.Len(t, v.CloudMask, 4)
	assert.Equal(t, measurement.Cirrus, v.CloudMask[0][2])

	assert.Error(t, m.SetCloudRegion(0, 13, measurement.WaterCloud))
	assert.Error(t, m.SetCloudRegion(0, 1, measurement.CloudType(9)))

	m.RemoveCloudMask()
	assert.Equal(t, measurement.NoCloudMask, m.Header().CloudMaskType)
	assert.Equal(t, measurement.NoCloud, m.CloudAt(3, 4))
	assert.Equal(t, "cirrus", measurement.Cirrus.String())
}

func TestTelecoverRegions(t *testing.T) {
	o := testutil.DefaultRaw()
	o.Times = 10
	m := testutil.Measurement(t, o)

	require.NoError(t, m.SetTelecoverRegion(0, 2, "north"))
	require.NoError(t, m.SetTelecoverRegion(2, 4, "east"))
	require.NoError(t, m.SetTelecoverRegion(8, 10, "north2"))
	require.NoError(t, m.SetTelecoverRegion(6, 8, "dark"))
	require.NoError(t, m.SetTelecoverRegion(1, 2, "north"))

	tc := m.TelecoverRegions()
	assert.Equal(t, []string{"north", "east", "north2", "dark"}, tc.Used)
	assert.Equal(t, []string{"north", "east", "north2"}, tc.TelecoverSectors)
	assert.Equal(t, []string{"north", "east"}, tc.AverageSectors)
	assert.Equal(t, measurement.SectorInterval{Name: "north", First: 1, Last: 2}, tc.Intervals["north"])

	tc.Used[0] = "changed"
	assert.Equal(t, "north", m.TelecoverRegions().Used[0])

	assert.Error(t, m.SetTelecoverRegion(3, 3, "south"))
	assert.Error(t, m.SetTelecoverRegion(5, 11, "south"))
}

const lidarLog = `lidar system log
date time T1064 T1 T2 pyro Tout RHout status
---
01.05.2015 00:00:35 20.1 21.0 22.0 0.5 12.0 80.0 6
01.05.2015 00:00:45 20.1 21.0 22.0 0.5 12.0 80.0 2
01.05.2015 00:00:55 -999 21.0 22.0 0.5 12.0 80.0 6
01.05.2015 00:01:05 20.2 21.0 22.0 0.5 12.0 80.0 7
broken row
`

func TestParseLidarLog(t *testing.T) {
	lg, err := measurement.ParseLidarLog(strings.NewReader(lidarLog))
	require.NoError(t, err)
	require.Len(t, lg.Entries, 3)
	assert.Equal(t, 2, lg.Skipped)

	e := lg.Entries[2]
	assert.Equal(t, time.Date(2015, 5, 1, 0, 1, 5, 0, time.UTC), e.Time)
	assert.True(t, e.RoofClosed)
	assert.True(t, e.ShutterClosed)
	assert.False(t, e.Rain)
	assert.True(t, lg.Entries[0].ShutterClosed)
	assert.False(t, lg.Entries[1].ShutterClosed)
}

func TestReadLidarLog(t *testing.T) {
	m := testutil.Measurement(t, testutil.DefaultRaw())

	err := m.ReadLidarLog(filepath.Join(t.TempDir(), "missing.log"))
	assert.ErrorIs(t, err, measurement.ErrPathMissing)
	assert.Nil(t, m.Shutter())

	path := filepath.Join(t.TempDir(), "lidar.log")
	require.NoError(t, os.WriteFile(path, []byte(lidarLog), 0o644))
	require.NoError(t, m.ReadLidarLog(path))

	sh := m.Shutter()
	require.NotNil(t, sh)
	require.Equal(t, 4, sh.Len())
	assert.Equal(t, 1.0, sh.At(0))
	assert.Equal(t, 1.0, sh.At(1))
	assert.True(t, math.IsNaN(sh.At(2)))
	assert.True(t, math.IsNaN(sh.At(3)))

	next := testutil.DefaultRaw()
	next.FirstStop = 180
	require.NoError(t, m.Append(testutil.RawFile(next, 4)))
	assert.Equal(t, 8, m.Shutter().Len())
}

type fakeReader map[string]*measurement.RawFile

func (f fakeReader) ReadFile(path string) (*measurement.RawFile, error) {
	raw, ok := f[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, measurement.ErrPathMissing)
	}
	return raw, nil
}

func TestMergeFiles(t *testing.T) {
	r := fakeReader{}
	var paths []string
	for i := 0; i < 3; i++ {
		o := testutil.DefaultRaw()
		o.FirstStop = 60 + float64(i)*120
		p := fmt.Sprintf("file_%d.nc", i)
		r[p] = testutil.RawFile(o, 4*i)
		paths = append(paths, p)
	}

	t.Run("in order", func(t *testing.T) {
		m := measurement.New(testutil.Config())
		require.NoError(t, m.MergeFiles(context.Background(), r, paths))
		assert.Equal(t, 12, m.Len())
		assert.Equal(t, testutil.RawValue(1, 9, 1), m.Signal(1).Data.At(9, 1))
	})

	t.Run("decode failure merges nothing", func(t *testing.T) {
		m := measurement.New(testutil.Config())
		err := m.MergeFiles(context.Background(), r, append(paths, "missing.nc"))
		assert.ErrorIs(t, err, measurement.ErrPathMissing)
		assert.False(t, m.Ingested())
	})

	t.Run("merge failure keeps earlier files", func(t *testing.T) {
		o := testutil.DefaultRaw()
		o.Points = 20
		r["odd.nc"] = testutil.RawFile(o, 0)
		m := measurement.New(testutil.Config())
		err := m.MergeFiles(context.Background(), r, []string{paths[0], "odd.nc", paths[1]})
		assert.ErrorIs(t, err, measurement.ErrStructuralMismatch)
		assert.Equal(t, 4, m.Len())
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		m := measurement.New(testutil.Config())
		assert.Error(t, m.MergeFiles(ctx, r, paths))
	})
}
