// Command sccmean merges the single-profile products of one retrieval result
// bundle into mean profiles and writes them as CSV, together with the
// derived lidar ratios and Ångström exponents.
//
//	sccmean -out means/ 20150501wa00.zip
package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/banshee-data/lidar.scc/internal/lidar/results"
	"github.com/banshee-data/lidar.scc/internal/monitoring"
	"github.com/banshee-data/lidar.scc/internal/security"
	"github.com/banshee-data/lidar.scc/internal/version"
)

// Replaced in tests.
var (
	readDir = results.ReadResultDir
	readZip = results.ReadResultZip
)

type options struct {
	outDir   string
	tempDir  string
	products []string
	debug    bool
	version  bool
	logFile  string
	input    string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{}
	fs := flag.NewFlagSet("sccmean", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.outDir, "out", ".", "directory for the CSV files")
	fs.StringVar(&o.tempDir, "temp", "", "directory zipped bundles are extracted to; a fresh temp dir when empty")
	products := fs.String("products", "", "comma-separated products to write, all when empty")
	fs.BoolVar(&o.debug, "debug", false, "enable debug logging")
	fs.BoolVar(&o.version, "version", false, "print the version and exit")
	fs.StringVar(&o.logFile, "log-file", "", "also log JSON to this rotated file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.version {
		return o, nil
	}
	if fs.NArg() != 1 {
		return nil, fmt.Errorf("expected one result directory or zip file, got %d arguments", fs.NArg())
	}
	o.input = fs.Arg(0)
	if *products != "" {
		for _, p := range strings.Split(*products, ",") {
			o.products = append(o.products, strings.TrimSpace(p))
		}
	}
	return o, nil
}

func load(o *options) (*results.Bundle, error) {
	if !strings.EqualFold(filepath.Ext(o.input), ".zip") {
		return readDir(o.input)
	}
	tmp := o.tempDir
	if tmp == "" {
		var err error
		if tmp, err = os.MkdirTemp("", "sccmean-"); err != nil {
			return nil, err
		}
		defer os.RemoveAll(tmp)
	}
	return readZip(o.input, tmp)
}

func run(o *options, stdout io.Writer) error {
	b, err := load(o)
	if err != nil {
		return err
	}
	means, err := b.Means()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(o.outDir, 0o755); err != nil {
		return err
	}

	names := o.products
	if len(names) == 0 {
		for name := range means {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	for _, name := range names {
		p, ok := means[name]
		if !ok {
			monitoring.Warnw("product not in bundle", "measurement", b.MeasurementID, "product", name)
			continue
		}
		path := filepath.Join(o.outDir, fmt.Sprintf("%s_%s_mean.csv", b.MeasurementID, security.SanitizeFilename(name)))
		if err := writeCSVFile(path, p); err != nil {
			return err
		}
		singles := len(b.Singles[name])
		fmt.Fprintf(stdout, "%s\t%s\t%d bins from %d profiles\n", name, path, p.Len(), singles)
		monitoring.ExportsWritten.WithLabelValues("mean").Inc()
	}
	monitoring.Infow("mean profiles written", "measurement", b.MeasurementID, "station", b.StationID,
		"start", b.Start, "end", b.End, "products", len(names))
	return nil
}

func writeCSVFile(path string, p *results.Profile) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeCSV(f, p); err != nil {
		f.Close()
		return err
	}
	info, err := f.Stat()
	if err == nil {
		monitoring.Debugw("wrote mean profile", "path", path, "size", humanize.Bytes(uint64(info.Size())))
	}
	return f.Close()
}

// writeCSV writes one row per altitude bin. Missing values are empty cells.
func writeCSV(w io.Writer, p *results.Profile) error {
	cw := csv.NewWriter(w)
	header := []string{"altitude_m", "value", "error", "vertical_resolution_m", "cloud_flag"}
	if p.LidarRatio != nil {
		header = append(header, "lidar_ratio")
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := range p.Altitude {
		row := []string{
			formatFloat(p.Altitude[i]),
			formatFloat(p.Data[i]),
			formatFloat(p.Error[i]),
			formatFloat(p.VertRes[i]),
			formatCloud(p.Cloud[i]),
		}
		if p.LidarRatio != nil {
			row = append(row, formatFloat(p.LidarRatio[i]))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatCloud(c int8) string {
	if c == results.CloudFill {
		return ""
	}
	return strconv.Itoa(int(c))
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
		fmt.Println(version.String("sccmean"))
		return
	}
	if err := monitoring.Init(monitoring.Options{Debug: o.debug, File: o.logFile}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer monitoring.Sync()

	if err := run(o, os.Stdout); err != nil {
		monitoring.Errorw("sccmean failed", "error", err)
		monitoring.Sync()
		os.Exit(1)
	}
}
