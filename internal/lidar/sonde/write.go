package sonde

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/banshee-data/lidar.scc/internal/lidar/ncio"
	"github.com/banshee-data/lidar.scc/internal/monitoring"
)

// launchLead is how long before the nominal time a sounding is assumed to start.
const launchLead = 2 * time.Hour

// Document builds the export file. Altitudes are written relative to the
// launch station.
func (s *Sounding) Document() *ncio.Document {
	start := s.Header.Time.Add(-launchLead)

	doc := &ncio.Document{}
	doc.SetAttr("Sounding_Start_Date", start.Format("20060102"))
	doc.SetAttr("Sounding_Date_Format", "YYYYMMDD")
	doc.SetAttr("Sounding_Start_Time_UT", start.Format("150405"))
	doc.SetAttr("Sounding_Stop_Time_UT", s.Header.Time.Format("150405"))
	doc.SetAttr("Sounding_Time_Format", "HHMMSS")
	doc.SetAttr("Latitude_degrees_north", s.Header.Latitude)
	doc.SetAttr("Longitude_degrees_east", s.Header.Longitude)
	doc.SetAttr("Altitude_meter_asl", s.Header.Altitude)
	doc.SetAttr("Location", s.Header.Location)

	alt := make([]float64, s.Len())
	for i, a := range s.Altitude {
		alt[i] = a - s.Header.Altitude
	}

	doc.AddVar("Pressure", append([]float64(nil), s.Pressure...), "points").SetAttr("Units", "hPa")
	doc.AddVar("Temperature", append([]float64(nil), s.Temperature...), "points").SetAttr("Units", "C")
	doc.AddVar("Altitude", alt, "points").SetAttr("Units", "m")
	return doc
}

// WriteSCC writes the sounding into dir under Header.Filename and returns the path.
func (s *Sounding) WriteSCC(dir string) (string, error) {
	if s.Header.Filename == "" {
		return "", fmt.Errorf("sounding has no output file name")
	}
	path := filepath.Join(dir, s.Header.Filename)
	if err := ncio.Write(path, s.Document()); err != nil {
		return "", err
	}
	monitoring.ExportsWritten.WithLabelValues("sonde").Inc()
	monitoring.Logf("wrote sounding %s", path)
	return path, nil
}
