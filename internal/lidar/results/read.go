package results

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zip"

	"github.com/banshee-data/lidar.scc/internal/lidar/ncio"
	"github.com/banshee-data/lidar.scc/internal/monitoring"
	"github.com/banshee-data/lidar.scc/internal/security"
)

var (
	ErrUnknownType          = errors.New("unknown result file type")
	ErrBadMeasurementID     = errors.New("unknown format of measurement id")
	ErrMalformedResult      = errors.New("malformed result file")
	ErrArchiveEscapesTarget = errors.New("archive member escapes target directory")
)

// Values above this are the writer's fill value.
const fillThreshold = 1e30

// productsByType maps a result file extension to the variables it may
// carry and the product each one feeds.
var productsByType = map[string]map[string]string{
	"b355": {
		"Backscatter":            "b355",
		"VolumeDepolarization":   "vldr355",
		"ParticleDepolarization": "pldr355",
	},
	"b532": {
		"Backscatter":            "b532",
		"VolumeDepol":            "vldr532",
		"ParticleDepol":          "pldr532",
		"VolumeDepolarization":   "vldr532",
		"ParticleDepolarization": "pldr532",
	},
	"b1064": {"Backscatter": "b1064"},
	"e355":  {"Backscatter": "e355bsc", "Extinction": "e355"},
	"e532":  {"Backscatter": "e532bsc", "Extinction": "e532"},
}

// LidarRatios lists the lidar ratio products by extinction and backscatter
// source.
var LidarRatios = map[string][2]string{
	"lr355": {"e355", "e355bsc"},
	"lr532": {"e532", "e532bsc"},
}

// AngstromPair names two products and their wavelengths in nm.
type AngstromPair struct {
	First, Second     string
	FirstWL, SecondWL float64
}

// Angstroms lists the Ångström exponent products.
var Angstroms = map[string]AngstromPair{
	"aeb_uv_vis": {First: "b355", Second: "b532", FirstWL: 355, SecondWL: 532},
	"aeb_vis_ir": {First: "b532", Second: "b1064", FirstWL: 532, SecondWL: 1064},
	"ae_ext":     {First: "e355", Second: "e532", FirstWL: 355, SecondWL: 532},
}

var openDataset = ncio.Open

// File is one decoded result file.
type File struct {
	Name            string
	Type            string
	Start, Stop     time.Time
	Comments        string
	StationAltitude float64
	Products        map[string]*Profile
}

// ReadResultFile decodes one result file. Its extension selects the
// variables that are read.
func ReadResultFile(path string) (*File, error) {
	name := filepath.Base(path)
	if _, ok := productsByType[fileType(name)]; !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownType)
	}
	ds, err := openDataset(path)
	if err != nil {
		return nil, err
	}
	defer ds.Close()
	return DecodeResultFile(ds, name)
}

func fileType(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimPrefix(ext, ".")
}

// DecodeResultFile converts an open result dataset.
func DecodeResultFile(ds ncio.Dataset, name string) (*File, error) {
	ftype := fileType(name)
	vars, ok := productsByType[ftype]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownType)
	}

	date, err := attrInt(ds, "StartDate")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	startUT, err := attrInt(ds, "StartTime_UT")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	stopUT, err := attrInt(ds, "StopTime_UT")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	stationAlt, err := attrFloat(ds, "Altitude_meter_asl")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	f := &File{
		Name:            name,
		Type:            ftype,
		StationAltitude: stationAlt,
		Comments:        attrString(ds, "Comments"),
		Products:        make(map[string]*Profile),
	}
	if f.Start, err = parseStamp(date, startUT); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if f.Stop, err = parseStamp(date, stopUT); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	alt, err := readSeries(ds, "Altitude")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	for i := range alt {
		alt[i] -= stationAlt
	}
	cloudArr, err := ds.Array("__CloudFlag")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	res, err := readSeries(ds, "VerticalResolution")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if len(cloudArr.Values) != len(alt) || len(res) != len(alt) {
		return nil, fmt.Errorf("%s: altitude, cloud flag and resolution lengths differ: %w", name, ErrMalformedResult)
	}
	cloud := make([]int8, len(alt))
	for i, v := range cloudArr.Values {
		cloud[i] = int8(v)
	}

	for _, v := range sortedKeys(vars) {
		data, err := readSeries(ds, v)
		if errors.Is(err, ncio.ErrNoVariable) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		errs, err := readSeries(ds, "Error"+v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if len(data) != len(alt) || len(errs) != len(alt) {
			return nil, fmt.Errorf("%s: %s length %d, altitude %d: %w", name, v, len(data), len(alt), ErrMalformedResult)
		}
		f.Products[vars[v]] = &Profile{
			FileName: name,
			Altitude: cloneFloats(alt),
			Data:     data,
			Error:    errs,
			VertRes:  cloneFloats(res),
			Cloud:    append([]int8(nil), cloud...),
		}
	}
	return f, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// readSeries reads a 1-D variable with fill values replaced by NaN.
func readSeries(ds ncio.Dataset, name string) ([]float64, error) {
	a, err := ds.Array(name)
	if err != nil {
		return nil, err
	}
	out := cloneFloats(a.Values)
	for i, v := range out {
		if v > fillThreshold {
			out[i] = math.NaN()
		}
	}
	return out, nil
}

func parseStamp(date, hms int64) (time.Time, error) {
	t, err := time.Parse("20060102150405", fmt.Sprintf("%d%06d", date, hms))
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %d %06d: %w", date, hms, ErrMalformedResult)
	}
	return t, nil
}

func attrFloat(ds ncio.Dataset, name string) (float64, error) {
	v, ok := ds.Attr(name)
	if !ok {
		return 0, fmt.Errorf("attribute %s missing: %w", name, ErrMalformedResult)
	}
	values, _, err := ncio.Flatten(v)
	if err != nil || len(values) == 0 {
		return 0, fmt.Errorf("attribute %s not numeric: %w", name, ErrMalformedResult)
	}
	return values[0], nil
}

func attrInt(ds ncio.Dataset, name string) (int64, error) {
	f, err := attrFloat(ds, name)
	return int64(f), err
}

func attrString(ds ncio.Dataset, name string) string {
	v, ok := ds.Attr(name)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimRight(s, "\x00")
	case []byte:
		return strings.TrimRight(string(s), "\x00")
	default:
		return fmt.Sprint(v)
	}
}

// Bundle collects the result files of one measurement.
type Bundle struct {
	MeasurementID   string
	StationID       string
	Start, End      time.Time
	Comments        string
	StationAltitude float64
	MaxAltitude     float64
	Singles         map[string][]*Profile
}

// StationID extracts the station code from a measurement id of the form
// YYYYMMDDssHHMM or YYYYMMDDsssHHMM.
func StationID(measurementID string) (string, error) {
	switch len(measurementID) {
	case 12:
		return measurementID[8:10], nil
	case 15:
		return measurementID[8:11], nil
	}
	return "", fmt.Errorf("%q: %w", measurementID, ErrBadMeasurementID)
}

// NewBundle returns an empty bundle for a measurement id.
func NewBundle(measurementID string) (*Bundle, error) {
	station, err := StationID(measurementID)
	if err != nil {
		return nil, err
	}
	return &Bundle{
		MeasurementID: measurementID,
		StationID:     station,
		MaxAltitude:   math.Inf(-1),
		Singles:       make(map[string][]*Profile),
	}, nil
}

// Add merges a decoded file into the bundle.
func (b *Bundle) Add(f *File) {
	if b.Start.IsZero() || f.Start.Before(b.Start) {
		b.Start = f.Start
	}
	if f.Stop.After(b.End) {
		b.End = f.Stop
	}
	b.Comments = f.Comments
	b.StationAltitude = f.StationAltitude
	for _, p := range f.Products {
		if m := nanMax(p.Altitude); m > b.MaxAltitude {
			b.MaxAltitude = m
		}
	}
	for _, product := range sortedProducts(f.Products) {
		b.Singles[product] = append(b.Singles[product], f.Products[product])
	}
}

func sortedProducts(m map[string]*Profile) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ReadResultDir reads every result file in dir. The directory name is the
// measurement id. Files of unknown type are skipped.
func ReadResultDir(dir string) (*Bundle, error) {
	b, err := NewBundle(filepath.Base(filepath.Clean(dir)))
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := productsByType[fileType(e.Name())]; !ok {
			monitoring.Debugw("skipping non-result file", "file", e.Name())
			continue
		}
		f, err := ReadResultFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		b.Add(f)
	}
	monitoring.Infow("read result bundle", "measurement", b.MeasurementID,
		"station", b.StationID, "products", len(b.Singles))
	return b, nil
}

// ReadResultZip extracts a zipped bundle into tempDir and reads the
// directory named like the archive.
func ReadResultZip(archive, tempDir string) (*Bundle, error) {
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, err
	}
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", archive, err)
	}
	defer zr.Close()

	var total uint64
	for _, f := range zr.File {
		if err := extractMember(f, tempDir); err != nil {
			return nil, fmt.Errorf("extract %s from %s: %w", f.Name, archive, err)
		}
		total += f.UncompressedSize64
	}
	monitoring.Debugw("extracted result bundle", "archive", archive, "members", len(zr.File),
		"size", humanize.Bytes(total))

	base := filepath.Base(archive)
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	return ReadResultDir(filepath.Join(tempDir, base))
}

func extractMember(f *zip.File, dir string) error {
	dst := filepath.Join(dir, filepath.FromSlash(f.Name))
	if err := security.WithinDir(dst, dir); err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveEscapesTarget, err)
	}
	if f.FileInfo().IsDir() {
		return os.MkdirAll(dst, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Means merges the single profiles of every product and derives lidar
// ratios and Ångström exponents where their inputs exist.
func (b *Bundle) Means() (map[string]*Profile, error) {
	out := make(map[string]*Profile, len(b.Singles))
	for product, singles := range b.Singles {
		mean, err := MeanProfile(singles)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", product, err)
		}
		out[product] = mean
	}
	for name, src := range LidarRatios {
		ext, okE := out[src[0]]
		bsc, okB := out[src[1]]
		if okE && okB {
			out[name] = LidarRatio(ext, bsc)
		}
	}
	for name, pair := range Angstroms {
		first, ok1 := out[pair.First]
		second, ok2 := out[pair.Second]
		if ok1 && ok2 {
			out[name] = Angstrom(first, second, pair.FirstWL, pair.SecondWL)
		}
	}
	return out, nil
}
