// Package polly reads raw files of PollyXT-type lidars (NetCDF, optionally
// zipped) into measurement.RawFile values.
package polly

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/lidar.scc/internal/config"
	"github.com/banshee-data/lidar.scc/internal/lidar/measurement"
	"github.com/banshee-data/lidar.scc/internal/lidar/ncio"
)

// Variable and dimension names of the raw file.
const (
	varCoordinates   = "location_coordinates"
	varHeight        = "location_height"
	varTime          = "measurement_time"
	varShots         = "measurement_shots"
	varCalAngle      = "depol_cal_angle"
	varBinResolution = "measurement_height_resolution"
	varZenith        = "zenithangle"
	varSignal        = "raw_signal"

	dimHeight  = "height"
	dimChannel = "channel"
)

// openDataset is replaced in tests.
var openDataset = ncio.Open

// Reader decodes raw files and implements measurement.Reader. Each zip
// archive is extracted into its own directory below TempDir, removed again
// once the file is decoded.
type Reader struct {
	TempDir string
}

// NewReader returns a reader using the configured temp directory.
func NewReader(cfg *config.LidarConfig) *Reader {
	return &Reader{TempDir: cfg.Paths.Temp}
}

// ReadFile decodes a .nc file or the first member of a .zip archive.
func (r *Reader) ReadFile(path string) (*measurement.RawFile, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("raw file %s: %w", path, measurement.ErrPathMissing)
		}
		return nil, err
	}

	ncPath := path
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		dir, err := scratchDir(r.TempDir)
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(dir)
		extracted, err := Unzip(path, dir)
		if err != nil {
			return nil, err
		}
		ncPath = extracted
	case ".nc":
	default:
		return nil, fmt.Errorf("%s: expected .nc or .zip: %w", path, measurement.ErrMalformedFile)
	}

	ds, err := openDataset(ncPath)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, measurement.ErrMalformedFile)
	}
	defer ds.Close()

	return Decode(ds, filepath.Base(path))
}

// Decode converts an open raw dataset. name becomes the measurement title.
func Decode(ds ncio.Dataset, name string) (*measurement.RawFile, error) {
	get := func(v string) (*ncio.Array, error) {
		a, err := ds.Array(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %v: %w", name, err, measurement.ErrMalformedFile)
		}
		if len(a.Values) == 0 {
			return nil, fmt.Errorf("%s: %s is empty: %w", name, v, measurement.ErrMalformedFile)
		}
		return a, nil
	}

	points, ok := ds.Dim(dimHeight)
	if !ok {
		return nil, fmt.Errorf("%s: no %s dimension: %w", name, dimHeight, measurement.ErrMalformedFile)
	}
	channels, ok := ds.Dim(dimChannel)
	if !ok {
		return nil, fmt.Errorf("%s: no %s dimension: %w", name, dimChannel, measurement.ErrMalformedFile)
	}

	coords, err := get(varCoordinates)
	if err != nil {
		return nil, err
	}
	if len(coords.Values) < 2 {
		return nil, fmt.Errorf("%s: %s needs latitude and longitude: %w", name, varCoordinates, measurement.ErrMalformedFile)
	}
	height, err := get(varHeight)
	if err != nil {
		return nil, err
	}
	binRes, err := get(varBinResolution)
	if err != nil {
		return nil, err
	}
	zenith, err := get(varZenith)
	if err != nil {
		return nil, err
	}

	times, err := get(varTime)
	if err != nil {
		return nil, err
	}
	if len(times.Shape) != 2 || times.Shape[1] != 2 {
		return nil, fmt.Errorf("%s: %s has shape %v, want [time 2]: %w", name, varTime, times.Shape, measurement.ErrMalformedFile)
	}
	n := times.Shape[0]

	raw := &measurement.RawFile{
		Name:            name,
		Latitude:        coords.Values[0],
		Longitude:       coords.Values[1],
		Altitude:        height.Scalar(),
		Points:          points,
		BinResolutionNs: binRes.Scalar(),
		ZenithAngleDeg:  zenith.Scalar(),
		StopDate:        make([]int, n),
		StopSeconds:     make([]float64, n),
	}
	for t := 0; t < n; t++ {
		raw.StopDate[t] = int(times.At2(t, 0))
		raw.StopSeconds[t] = times.At2(t, 1)
	}

	shots, err := get(varShots)
	if err != nil {
		return nil, err
	}
	switch {
	case len(shots.Shape) == 1 && shots.Shape[0] == n:
		raw.Shots = append([]float64(nil), shots.Values...)
	case len(shots.Shape) == 2 && shots.Shape[0] == n:
		// every channel counts the same shots; keep the first column
		raw.Shots = make([]float64, n)
		for t := range raw.Shots {
			raw.Shots[t] = shots.At2(t, 0)
		}
	default:
		return nil, fmt.Errorf("%s: %s has shape %v for %d time bins: %w", name, varShots, shots.Shape, n, measurement.ErrMalformedFile)
	}

	angles, err := get(varCalAngle)
	if err != nil {
		return nil, err
	}
	if len(angles.Values) != n {
		return nil, fmt.Errorf("%s: %s has %d values for %d time bins: %w", name, varCalAngle, len(angles.Values), n, measurement.ErrMalformedFile)
	}
	raw.DepolCalAngle = append([]float64(nil), angles.Values...)

	sig, err := get(varSignal)
	if err != nil {
		return nil, err
	}
	if len(sig.Shape) != 3 || sig.Shape[0] != n || sig.Shape[1] != points || sig.Shape[2] != channels {
		return nil, fmt.Errorf("%s: %s has shape %v, want [%d %d %d]: %w", name, varSignal, sig.Shape, n, points, channels, measurement.ErrMalformedFile)
	}
	raw.Signals = make([]*mat.Dense, channels)
	for c := 0; c < channels; c++ {
		m := mat.NewDense(n, points, nil)
		for t := 0; t < n; t++ {
			row := m.RawRowView(t)
			for j := range row {
				row[j] = sig.At3(t, j, c)
			}
		}
		raw.Signals[c] = m
	}
	return raw, nil
}
