// Command sccprep reads raw lidar files of one measurement, applies the
// operator's masks and writes the files the retrieval service expects.
//
//	sccprep -config lidar.yaml -id 20150501wa00 -invalid 10-12 raw1.nc raw2.nc.zip
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/lidar.scc/internal/catalog"
	"github.com/banshee-data/lidar.scc/internal/config"
	"github.com/banshee-data/lidar.scc/internal/lidar/measurement"
	"github.com/banshee-data/lidar.scc/internal/lidar/polly"
	"github.com/banshee-data/lidar.scc/internal/lidar/quicklook"
	"github.com/banshee-data/lidar.scc/internal/lidar/scc"
	"github.com/banshee-data/lidar.scc/internal/lidar/sonde"
	"github.com/banshee-data/lidar.scc/internal/lidar/telecover"
	"github.com/banshee-data/lidar.scc/internal/monitoring"
	"github.com/banshee-data/lidar.scc/internal/version"
)

// newReader is replaced in tests.
var newReader = func(cfg *config.LidarConfig) measurement.Reader {
	return polly.NewReader(cfg)
}

// binRange is a half-open bin interval [first, last).
type binRange struct {
	first, last int
}

type cloudRegion struct {
	binRange
	kind measurement.CloudType
}

type sectorRegion struct {
	binRange
	sector string
}

type options struct {
	configPath    string
	measurementID string
	comment       string
	outDir        string
	telecoverDir  string
	catalogPath   string
	metricsFile   string
	logFile       string
	debug         bool
	version       bool

	pressure    float64
	temperature float64

	invalid []binRange
	clouds  []cloudRegion
	sectors []sectorRegion

	sondeFile string
	lidarLog  string

	raw       bool
	depolCal  bool
	quicklook bool

	files []string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{}
	fs := flag.NewFlagSet("sccprep", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&o.configPath, "config", "", "instrument config (JSON or YAML); built-in defaults when empty")
	fs.StringVar(&o.measurementID, "id", "", "measurement id, e.g. 20150501wa00")
	fs.StringVar(&o.comment, "comment", "", "comment written into the raw export")
	fs.StringVar(&o.outDir, "out", "", "output directory (overrides paths.output)")
	fs.StringVar(&o.telecoverDir, "telecover-dir", "", "telecover output directory (overrides paths.telecover)")
	fs.StringVar(&o.catalogPath, "catalog", "", "export catalog database; paths.catalog when empty, \"-\" disables")
	fs.StringVar(&o.metricsFile, "metrics", "", "write counters in textfile format to this path")
	fs.StringVar(&o.logFile, "log-file", "", "also log JSON to this rotated file")
	fs.BoolVar(&o.debug, "debug", false, "enable debug logging")
	fs.BoolVar(&o.version, "version", false, "print the version and exit")
	fs.Float64Var(&o.pressure, "pressure", math.NaN(), "station pressure in hPa (config ground pressure when unset)")
	fs.Float64Var(&o.temperature, "temperature", math.NaN(), "station temperature in °C (config ground temperature when unset)")
	invalid := fs.String("invalid", "", "time bin ranges excluded from the raw export, e.g. 3-5,10-12")
	clouds := fs.String("clouds", "", "height bin cloud regions first-last:type, type one of no-cloud, unknown-cloud, cirrus, water-cloud")
	sectors := fs.String("telecover", "", "telecover sectors name:first-last by time bin, e.g. north:0-10,east:10-20")
	fs.StringVar(&o.sondeFile, "sonde", "", "radiosonde file name below paths.sonde")
	fs.StringVar(&o.lidarLog, "lidar-log", "", "lidar system log used for the shutter series")
	fs.BoolVar(&o.raw, "raw", true, "write the raw signal export")
	fs.BoolVar(&o.depolCal, "depolcal", true, "write the depolarization calibration export when a calibration is found")
	fs.BoolVar(&o.quicklook, "quicklook", false, "write an HTML quicklook of the configured channel")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.version {
		return o, nil
	}
	o.files = fs.Args()
	if len(o.files) == 0 {
		return nil, fmt.Errorf("no raw files given")
	}

	var err error
	if o.invalid, err = parseRanges(*invalid); err != nil {
		return nil, fmt.Errorf("-invalid: %w", err)
	}
	if o.clouds, err = parseClouds(*clouds); err != nil {
		return nil, fmt.Errorf("-clouds: %w", err)
	}
	if o.sectors, err = parseSectors(*sectors); err != nil {
		return nil, fmt.Errorf("-telecover: %w", err)
	}
	return o, nil
}

func parseRange(s string) (binRange, error) {
	a, b, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return binRange{}, fmt.Errorf("invalid range %q, want first-last", s)
	}
	first, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return binRange{}, fmt.Errorf("invalid range start %q: %w", a, err)
	}
	last, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return binRange{}, fmt.Errorf("invalid range end %q: %w", b, err)
	}
	if first > last {
		return binRange{}, fmt.Errorf("range %q is reversed", s)
	}
	return binRange{first: first, last: last}, nil
}

// parseRanges parses a comma-separated list of first-last ranges
func parseRanges(s string) ([]binRange, error) {
	if s == "" {
		return nil, nil
	}
	var out []binRange
	for _, part := range strings.Split(s, ",") {
		r, err := parseRange(part)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

var cloudTypes = map[string]measurement.CloudType{}

func init() {
	for _, ct := range []measurement.CloudType{measurement.NoCloud, measurement.UnknownCloud, measurement.Cirrus, measurement.WaterCloud} {
		cloudTypes[ct.String()] = ct
	}
}

func parseClouds(s string) ([]cloudRegion, error) {
	if s == "" {
		return nil, nil
	}
	var out []cloudRegion
	for _, part := range strings.Split(s, ",") {
		rs, name, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid cloud region %q, want first-last:type", part)
		}
		r, err := parseRange(rs)
		if err != nil {
			return nil, err
		}
		ct, ok := cloudTypes[strings.TrimSpace(name)]
		if !ok {
			return nil, fmt.Errorf("unknown cloud type %q", name)
		}
		out = append(out, cloudRegion{binRange: r, kind: ct})
	}
	return out, nil
}

func parseSectors(s string) ([]sectorRegion, error) {
	if s == "" {
		return nil, nil
	}
	var out []sectorRegion
	for _, part := range strings.Split(s, ",") {
		name, rs, ok := strings.Cut(part, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid sector %q, want name:first-last", part)
		}
		r, err := parseRange(rs)
		if err != nil {
			return nil, err
		}
		out = append(out, sectorRegion{binRange: r, sector: name})
	}
	return out, nil
}

func loadConfig(o *options) (*config.LidarConfig, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadLidarConfig(o.configPath); err != nil {
			return nil, err
		}
	}
	if o.outDir != "" {
		cfg.Paths.Output = o.outDir
	}
	if o.telecoverDir != "" {
		cfg.Paths.Telecover = o.telecoverDir
	}
	switch o.catalogPath {
	case "":
	case "-":
		cfg.Paths.Catalog = ""
	default:
		cfg.Paths.Catalog = o.catalogPath
	}
	return cfg, nil
}

// recorder adds written files to the catalog when one is open.
type recorder struct {
	cat           *catalog.Catalog
	measurementID string
	comment       string
}

func (r *recorder) record(kind, path string, first, last time.Time, rows int) error {
	if r.cat == nil {
		return nil
	}
	_, err := r.cat.Record(catalog.Entry{
		MeasurementID: r.measurementID,
		Kind:          kind,
		Path:          path,
		First:         first,
		Last:          last,
		Rows:          rows,
		Comment:       r.comment,
	})
	return err
}

func run(ctx context.Context, o *options) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Paths.Output, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	m := measurement.New(cfg)
	if err := m.MergeFiles(ctx, newReader(cfg), o.files); err != nil {
		return err
	}
	m.SetRunInfo(o.measurementID, o.comment)
	pressure, temperature := o.pressure, o.temperature
	if math.IsNaN(pressure) {
		pressure = cfg.GroundPressure
	}
	if math.IsNaN(temperature) {
		temperature = cfg.GroundTemperature
	}
	m.SetStationConditions(pressure, temperature)

	for _, r := range o.invalid {
		if err := m.SetInvalid(r.first, r.last); err != nil {
			return err
		}
	}
	for _, c := range o.clouds {
		if err := m.SetCloudRegion(c.first, c.last, c.kind); err != nil {
			return err
		}
	}
	if o.lidarLog != "" {
		if err := m.ReadLidarLog(o.lidarLog); err != nil {
			return err
		}
	}

	rec := &recorder{measurementID: o.measurementID, comment: o.comment}
	if cfg.Paths.Catalog != "" && o.measurementID != "" {
		cat, err := catalog.Open(cfg.Paths.Catalog)
		if err != nil {
			return err
		}
		defer cat.Close()
		rec.cat = cat
	}

	ta := m.TimeAxis()
	first, last := ta.StartAt(0), ta.StopAt(ta.Len()-1)

	if o.sondeFile != "" {
		s, err := sonde.Load(cfg.Paths.Sonde, o.sondeFile, o.measurementID, cfg)
		if err != nil {
			return err
		}
		h := m.Header()
		s.CheckDistance(h.Latitude, h.Longitude, cfg.Sonde.MaxDistanceKm)
		m.AttachSounding(s)
		path, err := s.WriteSCC(cfg.Paths.Output)
		if err != nil {
			return err
		}
		if err := rec.record(catalog.KindSonde, path, first, last, s.Len()); err != nil {
			return err
		}
	}

	if o.raw {
		e, err := scc.BuildRaw(m)
		if err != nil {
			return err
		}
		path, err := scc.Write(cfg.Paths.Output, e)
		if err != nil {
			return err
		}
		if err := rec.record(catalog.KindRaw, path, e.Start, e.Stop, e.Len()); err != nil {
			return err
		}
	}

	if o.depolCal {
		e, err := scc.BuildDepolCal(m)
		switch {
		case errors.Is(err, measurement.ErrNoCalibration):
			monitoring.Infow("no depolarization calibration in measurement", "measurement", o.measurementID)
		case err != nil:
			return err
		default:
			path, err := scc.Write(cfg.Paths.Output, e)
			if err != nil {
				return err
			}
			if err := rec.record(catalog.KindDepolCal, path, e.Start, e.Stop, e.Len()); err != nil {
				return err
			}
		}
	}

	if len(o.sectors) > 0 {
		for _, s := range o.sectors {
			if err := m.SetTelecoverRegion(s.first, s.last, s.sector); err != nil {
				return err
			}
		}
		res, err := telecover.Analyse(m)
		if err != nil {
			return err
		}
		written, err := telecover.Export(res, cfg)
		if err != nil {
			return err
		}
		if err := rec.record(catalog.KindTelecover, res.OutputDir(cfg.Paths.Telecover), first, last, len(written)); err != nil {
			return err
		}
	}

	if o.quicklook {
		path, err := quicklook.WriteFile(cfg.Paths.Output, m, cfg.MaxPlotAltitude)
		if err != nil {
			return err
		}
		if err := rec.record(catalog.KindQuicklook, path, first, last, m.Len()); err != nil {
			return err
		}
	}

	if o.metricsFile != "" {
		if err := monitoring.WriteTextfile(o.metricsFile); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func main() {
	o, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if o.version {
		fmt.Println(version.String("sccprep"))
		return
	}
	if err := monitoring.Init(monitoring.Options{Debug: o.debug, File: o.logFile}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer monitoring.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o); err != nil {
		monitoring.Errorw("sccprep failed", "error", err)
		monitoring.Sync()
		os.Exit(1)
	}
}
