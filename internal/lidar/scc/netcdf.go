package scc

import (
	"path/filepath"

	"github.com/banshee-data/lidar.scc/internal/lidar/ncio"
	"github.com/banshee-data/lidar.scc/internal/monitoring"
)

// writeDocument is replaced in tests.
var writeDocument = ncio.Write

// Document encodes the export with the SCC variable and attribute names.
func (e *Export) Document() *ncio.Document {
	doc := &ncio.Document{}
	doc.SetAttr("Measurement_ID", e.MeasurementID)
	doc.SetAttr("RawData_Start_Date", e.Start.Format("20060102"))
	doc.SetAttr("RawData_Start_Time_UT", e.Start.Format("150405"))
	doc.SetAttr("RawData_Stop_Time_UT", e.Stop.Format("150405"))
	if e.SoundingFile != "" {
		doc.SetAttr("Sounding_File_Name", e.SoundingFile)
	}
	if e.Comment != "" {
		doc.SetAttr("Comment", e.Comment)
	}

	nch := len(e.Channels)
	bgHigh := make([]float64, nch)
	bgLow := make([]float64, nch)
	bgMode := make([]int32, nch)
	lrInput := make([]int32, nch)
	rangeRes := make([]float64, nch)
	rangeID := make([]int32, nch)
	chID := make([]int32, nch)
	names := make([]string, nch)
	timescale := make([]int32, nch)
	for i, ch := range e.Channels {
		bgHigh[i] = ch.BackgroundHigh
		bgLow[i] = ch.BackgroundLow
		lrInput[i] = 1
		rangeRes[i] = ch.RangeResolution
		rangeID[i] = int32(ch.RangeID)
		chID[i] = FillInt
		names[i] = ch.StringID
	}

	n := e.Len()
	angleOfProfiles := make([][]int32, n)
	start := make([][]int32, n)
	stop := make([][]int32, n)
	for t := 0; t < n; t++ {
		angleOfProfiles[t] = []int32{0}
		start[t] = []int32{e.StartSeconds[t]}
		stop[t] = []int32{e.StopSeconds[t]}
	}

	doc.AddVar("Background_High", bgHigh, "channels")
	doc.AddVar("Background_Low", bgLow, "channels")
	doc.AddVar("Background_Mode", bgMode, "channels")
	doc.AddVar("LR_Input", lrInput, "channels")
	doc.AddVar("Laser_Pointing_Angle", []float64{e.ZenithAngle}, "scan_angles")
	doc.AddVar("Laser_Pointing_Angle_of_Profiles", angleOfProfiles, "time", "nb_of_time_scales")
	doc.AddVar("Laser_Shots", e.Shots, "time", "channels")
	doc.AddVar("Molecular_Calc", e.MolecularCalc)
	doc.AddVar("Pressure_at_Lidar_Station", e.Pressure)
	doc.AddVar("Temperature_at_Lidar_Station", e.Temperature)
	doc.AddVar("Raw_Data_Range_Resolution", rangeRes, "channels")
	doc.AddVar("Raw_Data_Start_Time", start, "time", "nb_of_time_scales")
	doc.AddVar("Raw_Data_Stop_Time", stop, "time", "nb_of_time_scales")
	doc.AddVar("Raw_Lidar_Data", e.Data, "time", "channels", "points")
	doc.AddVar("ID_Range", rangeID, "channels")
	doc.AddVar("channel_ID", chID, "channels")
	doc.AddVar("channel_string_ID", ncio.PadStrings(names), "channels", "string_length")
	doc.AddVar("id_timescale", timescale, "channels")

	if e.Kind == KindDepolCal {
		calMin := make([]float64, nch)
		calMax := make([]float64, nch)
		for i, ch := range e.Channels {
			calMin[i] = ch.CalibRangeMin
			calMax[i] = ch.CalibRangeMax
		}
		doc.AddVar("Pol_Calib_Range_Min", calMin, "channels")
		doc.AddVar("Pol_Calib_Range_Max", calMax, "channels")
	}
	if e.CloudMask != nil {
		doc.AddVar("cloud_mask", e.CloudMask, "time", "points")
		doc.AddVar("cloud_mask_channel_idx", e.CloudMaskChannel)
	}
	return doc
}

// Write stores the export in dir under its file name and returns the path.
func Write(dir string, e *Export) (string, error) {
	path := filepath.Join(dir, e.Filename)
	if err := writeDocument(path, e.Document()); err != nil {
		return "", err
	}
	monitoring.ExportsWritten.WithLabelValues(e.Kind).Inc()
	monitoring.Infow("wrote scc file", "kind", e.Kind, "path", path, "rows", e.Len(), "channels", len(e.Channels))
	return path, nil
}
