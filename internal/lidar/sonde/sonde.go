// Package sonde reads radiosonde profiles and writes them in the format
// expected by the retrieval service.
package sonde

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	geo "github.com/kellydunn/golang-geo"

	"github.com/banshee-data/lidar.scc/internal/config"
	"github.com/banshee-data/lidar.scc/internal/monitoring"
)

var (
	// ErrUnsupportedFormat is returned for sonde files whose name matches no known format.
	ErrUnsupportedFormat = errors.New("unsupported sonde format")
	// ErrUnknownStation is returned when a CSV sounding names a station missing from the table.
	ErrUnknownStation = errors.New("unknown sonde station")
	// ErrNoData is returned when no row of a sounding could be parsed.
	ErrNoData = errors.New("sounding has no data rows")
)

// Format identifies a radiosonde text format.
type Format string

const (
	// FormatWyoming is the fixed-column text listing of historical soundings.
	FormatWyoming Format = "wyoming"
	// FormatGDAS is a forecast-model profile interpolated to the lidar site.
	FormatGDAS Format = "gdas"
	// FormatCSV is the semicolon separated station export.
	FormatCSV Format = "csv"
)

// Header describes where and when the sounding was taken.
type Header struct {
	Location  string
	WMOID     string
	Time      time.Time
	Filename  string
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// Sounding is one radiosonde profile.
type Sounding struct {
	Header Header
	Format Format

	Pressure    []float64 // hPa
	Altitude    []float64 // m asl
	Temperature []float64 // °C
	RelHumidity []float64 // %
	DewPoint    []float64 // °C

	// Skipped counts rows that could not be parsed.
	Skipped int
}

// Len returns the number of levels.
func (s *Sounding) Len() int { return len(s.Pressure) }

// OutputName returns the file name used for the exported sounding.
func OutputName(measurementID string) string {
	return "rs_" + measurementID + ".nc"
}

// DetectFormat picks the parser from the file name.
func DetectFormat(name string) (Format, error) {
	base := filepath.Base(name)
	switch {
	case strings.Contains(base, "gdas"):
		return FormatGDAS, nil
	case strings.HasSuffix(base, ".txt"):
		return FormatWyoming, nil
	case strings.HasSuffix(base, ".csv"):
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%s: %w", base, ErrUnsupportedFormat)
	}
}

// Load reads the sounding name from dir.
func Load(dir, name, measurementID string, cfg *config.LidarConfig) (*Sounding, error) {
	format, err := DetectFormat(name)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, name)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sounding: %w", err)
	}
	defer f.Close()

	var s *Sounding
	switch format {
	case FormatGDAS:
		s, err = ParseGDAS(f)
	case FormatWyoming:
		s, err = ParseWyoming(f, cfg.Sonde.HeaderMarker, cfg.Sonde.BottomMarker)
	case FormatCSV:
		s, err = ParseCSV(f, filepath.Base(name), cfg.Sonde.Stations)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	s.Header.Filename = OutputName(measurementID)

	if s.Skipped > 0 {
		monitoring.SondeRowsSkipped.WithLabelValues(string(format)).Add(float64(s.Skipped))
		monitoring.Warnw("sonde rows skipped", "file", name, "format", format, "skipped", s.Skipped)
	}
	monitoring.Logf("sounding %s: %s %s, %d levels", name, s.Header.WMOID, s.Header.Location, s.Len())
	return s, nil
}

// DistanceKm returns the great-circle distance from the launch site to
// the given position.
func (s *Sounding) DistanceKm(lat, lon float64) float64 {
	site := geo.NewPoint(s.Header.Latitude, s.Header.Longitude)
	return site.GreatCircleDistance(geo.NewPoint(lat, lon))
}

// CheckDistance warns when the launch site is farther than maxKm from the lidar.
func (s *Sounding) CheckDistance(lat, lon, maxKm float64) bool {
	d := s.DistanceKm(lat, lon)
	if maxKm > 0 && d > maxKm {
		monitoring.Warnw("sounding far from lidar", "station", s.Header.WMOID, "distance_km", d, "max_km", maxKm)
		return false
	}
	return true
}
