package scc

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lidar.scc/internal/lidar/measurement"
	"github.com/banshee-data/lidar.scc/internal/lidar/ncio"
	"github.com/banshee-data/lidar.scc/internal/lidar/sonde"
	"github.com/banshee-data/lidar.scc/internal/monitoring"
	"github.com/banshee-data/lidar.scc/internal/testutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func TestFilenames(t *testing.T) {
	start := time.Date(2015, 5, 1, 0, 0, 30, 0, time.UTC)
	stop := time.Date(2015, 5, 1, 1, 2, 3, 0, time.UTC)
	assert.Equal(t, "20150501wa00_000030_010203.nc", RawFilename("20150501wa00", start, stop))
	assert.Equal(t, "wa_ADR_depolcal__20150501_000030_010203.nc", DepolCalFilename("wa_ADR", start, stop))
}

func TestBuildRaw(t *testing.T) {
	o := testutil.DefaultRaw()
	o.Shots = []float64{600, 0, 600, 599}
	m := testutil.Measurement(t, o)
	m.SetRunInfo("20150501wa00", "clear sky")

	e, err := BuildRaw(m)
	require.NoError(t, err)

	assert.Equal(t, KindRaw, e.Kind)
	assert.Equal(t, "20150501wa00_000030_000230.nc", e.Filename)
	assert.Equal(t, 3, e.Len())
	assert.Equal(t, []int32{0, 60, 90}, e.StartSeconds)
	assert.Equal(t, []int32{30, 90, 120}, e.StopSeconds)
	assert.Equal(t, []int32{599, 599, 599}, e.Shots[2])
	assert.Equal(t, int32(0), e.MolecularCalc)
	assert.Nil(t, e.CloudMask)

	require.Len(t, e.Channels, 3)
	assert.Equal(t, "wa_532p", e.Channels[1].StringID)
	assert.Equal(t, 0, e.Channels[2].RangeID)
	assert.Equal(t, 2.0, e.Channels[0].BackgroundHigh)
	assert.Equal(t, m.ZAxis().RangeResolution(), e.Channels[0].RangeResolution)

	// row 1 of the export is time bin 2
	assert.Equal(t, testutil.RawValue(1, 2, 7), e.Data[1][1][7])
	assert.Len(t, e.Data[0][0], 12)
}

func TestBuildRawWithoutID(t *testing.T) {
	m := testutil.Measurement(t, testutil.DefaultRaw())
	_, err := BuildRaw(m)
	assert.ErrorIs(t, err, ErrNoMeasurementID)
}

func TestBuildRawCloudMaskAndSounding(t *testing.T) {
	m := testutil.Measurement(t, testutil.DefaultRaw())
	m.SetRunInfo("20150501wa00", "")
	require.NoError(t, m.SetCloudRegion(3, 6, measurement.WaterCloud))
	m.AttachSounding(&sonde.Sounding{Header: sonde.Header{Filename: "rs_20150501wa00.nc"}})

	e, err := BuildRaw(m)
	require.NoError(t, err)
	assert.Equal(t, int32(1), e.MolecularCalc)
	assert.Equal(t, "rs_20150501wa00.nc", e.SoundingFile)
	require.Len(t, e.CloudMask, 4)
	assert.Equal(t, []int32{0, 0, 0, 3, 3, 3, 0, 0, 0, 0, 0, 0}, e.CloudMask[0])
	assert.Equal(t, int32(1), e.CloudMaskChannel)

	doc := e.Document()
	assert.Equal(t, "rs_20150501wa00.nc", doc.Attrs["Sounding_File_Name"])
	assert.NotContains(t, doc.AttrKeys, "Comment")
	require.NotNil(t, doc.Var("cloud_mask"))
	assert.Equal(t, []string{"time", "points"}, doc.Var("cloud_mask").Dimensions)
	assert.Equal(t, int32(1), doc.Var("cloud_mask_channel_idx").Values)
	assert.Equal(t, int32(1), doc.Var("Molecular_Calc").Values)
}

func calibrationMeasurement(t *testing.T) *measurement.Measurement {
	t.Helper()
	o := testutil.DefaultRaw()
	o.Times = 13
	o.Angles = []float64{20, 20, 20, 45, 45, 45, 45, 135, 135, 135, 135, 20, 20}
	m := testutil.Measurement(t, o)
	m.SetRunInfo("20150501wa00", "")
	return m
}

func TestBuildDepolCal(t *testing.T) {
	m := calibrationMeasurement(t)

	e, err := BuildDepolCal(m)
	require.NoError(t, err)
	assert.Equal(t, KindDepolCal, e.Kind)
	assert.Equal(t, "wa_ADR_depolcal__20150501_000230_000600.nc", e.Filename)
	assert.Equal(t, 3, e.Len())
	assert.Equal(t, []int32{0, 30, 60}, e.StartSeconds)
	assert.Equal(t, []int32{150, 180, 210}, e.StopSeconds)

	require.Len(t, e.Channels, 3)
	assert.Equal(t, "wa_355p_p45", e.Channels[0].StringID)
	assert.Equal(t, 1000.0, e.Channels[0].CalibRangeMin)
	assert.Equal(t, 3000.0, e.Channels[2].CalibRangeMax)
	// channel 0 is the second position (bins 8..10), channel 1 the first (4..6)
	assert.Equal(t, testutil.RawValue(0, 9, 2), e.Data[1][0][2])
	assert.Equal(t, testutil.RawValue(0, 5, 2), e.Data[1][1][2])

	doc := e.Document()
	require.NotNil(t, doc.Var("Pol_Calib_Range_Min"))
	assert.Equal(t, []float64{3000, 3000, 3000}, doc.Var("Pol_Calib_Range_Max").Values)
	assert.Nil(t, doc.Var("cloud_mask"))
}

func TestBuildDepolCalWithoutCalibration(t *testing.T) {
	m := testutil.Measurement(t, testutil.DefaultRaw())
	_, err := BuildDepolCal(m)
	assert.True(t, errors.Is(err, measurement.ErrNoCalibration))
}

func TestDocument(t *testing.T) {
	m := testutil.Measurement(t, testutil.DefaultRaw())
	m.SetRunInfo("20150501wa00", "clear sky")
	e, err := BuildRaw(m)
	require.NoError(t, err)

	doc := e.Document()
	assert.Equal(t, []string{
		"Measurement_ID", "RawData_Start_Date", "RawData_Start_Time_UT", "RawData_Stop_Time_UT", "Comment",
	}, doc.AttrKeys)
	assert.Equal(t, "20150501", doc.Attrs["RawData_Start_Date"])
	assert.Equal(t, "000230", doc.Attrs["RawData_Stop_Time_UT"])

	var names []string
	for _, v := range doc.Vars {
		names = append(names, v.Name)
	}
	assert.Equal(t, []string{
		"Background_High", "Background_Low", "Background_Mode", "LR_Input",
		"Laser_Pointing_Angle", "Laser_Pointing_Angle_of_Profiles", "Laser_Shots",
		"Molecular_Calc", "Pressure_at_Lidar_Station", "Temperature_at_Lidar_Station",
		"Raw_Data_Range_Resolution", "Raw_Data_Start_Time", "Raw_Data_Stop_Time",
		"Raw_Lidar_Data", "ID_Range", "channel_ID", "channel_string_ID", "id_timescale",
	}, names)

	assert.Equal(t, []int32{FillInt, FillInt, FillInt}, doc.Var("channel_ID").Values)
	assert.Equal(t, []int32{1, 1, 0}, doc.Var("ID_Range").Values)
	assert.Equal(t, []float64{5}, doc.Var("Laser_Pointing_Angle").Values)
	assert.Equal(t, [][]int32{{0}, {30}, {60}, {90}}, doc.Var("Raw_Data_Start_Time").Values)
	assert.Empty(t, doc.Var("Molecular_Calc").Dimensions)
	assert.Equal(t, 1000.0, doc.Var("Pressure_at_Lidar_Station").Values)

	padded := doc.Var("channel_string_ID").Values.([]string)
	require.Len(t, padded, 3)
	assert.Len(t, padded[0], len("wa_355total"))
}

func TestWrite(t *testing.T) {
	m := testutil.Measurement(t, testutil.DefaultRaw())
	m.SetRunInfo("20150501wa00", "")
	e, err := BuildRaw(m)
	require.NoError(t, err)

	var gotPath string
	var gotDoc *ncio.Document
	orig := writeDocument
	writeDocument = func(path string, doc *ncio.Document) error {
		gotPath, gotDoc = path, doc
		return nil
	}
	t.Cleanup(func() { writeDocument = orig })

	before := promtest.ToFloat64(monitoring.ExportsWritten.WithLabelValues(KindRaw))
	dir := t.TempDir()
	path, err := Write(dir, e)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20150501wa00_000030_000230.nc"), path)
	assert.Equal(t, path, gotPath)
	require.NotNil(t, gotDoc)
	assert.Equal(t, before+1, promtest.ToFloat64(monitoring.ExportsWritten.WithLabelValues(KindRaw)))
}

func TestWriteError(t *testing.T) {
	orig := writeDocument
	writeDocument = func(string, *ncio.Document) error { return errors.New("disk full") }
	t.Cleanup(func() { writeDocument = orig })

	m := testutil.Measurement(t, testutil.DefaultRaw())
	m.SetRunInfo("x", "")
	e, err := BuildRaw(m)
	require.NoError(t, err)
	_, err = Write(t.TempDir(), e)
	assert.EqualError(t, err, "disk full")
}
