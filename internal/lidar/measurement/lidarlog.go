package measurement

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/lidar.scc/internal/lidar/axis"
	"github.com/banshee-data/lidar.scc/internal/lidar/signal"
	"github.com/banshee-data/lidar.scc/internal/monitoring"
)

const (
	logHeaderLines = 3
	logTimeLayout  = "02.01.2006 15:04:05"
	logMinValue    = -100
)

// Status bits of the lidar system log.
const (
	StatusRoofClosed    = 1
	StatusNoRain        = 2
	StatusShutterClosed = 4
)

// LogEntry is one row of the lidar system log.
type LogEntry struct {
	Time          time.Time
	T1064         float64
	T1            float64
	T2            float64
	Pyro          float64
	TOut          float64
	RHOut         float64
	Status        int
	RoofClosed    bool
	Rain          bool
	ShutterClosed bool
}

// LidarLog is a parsed lidar system log.
type LidarLog struct {
	Entries []LogEntry
	Skipped int
}

// ParseLidarLog reads a lidar system log. Rows with a sensor value below
// -100 are sensor dropouts and are skipped, as are rows that do not parse.
func ParseLidarLog(r io.Reader) (*LidarLog, error) {
	out := &LidarLog{}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		if line <= logHeaderLines {
			continue
		}
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		e, ok := parseLogRow(strings.Fields(text))
		if !ok {
			out.Skipped++
			continue
		}
		out.Entries = append(out.Entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read lidar log: %w", err)
	}
	return out, nil
}

func parseLogRow(f []string) (LogEntry, bool) {
	if len(f) < 9 {
		return LogEntry{}, false
	}
	vals := make([]float64, len(f)-2)
	for i, s := range f[2:] {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < logMinValue {
			return LogEntry{}, false
		}
		vals[i] = v
	}
	ts, err := time.Parse(logTimeLayout, f[0]+" "+f[1])
	if err != nil {
		return LogEntry{}, false
	}
	status, err := strconv.Atoi(f[8])
	if err != nil {
		return LogEntry{}, false
	}
	return LogEntry{
		Time:          ts,
		T1064:         vals[0],
		T1:            vals[1],
		T2:            vals[2],
		Pyro:          vals[3],
		TOut:          vals[4],
		RHOut:         vals[5],
		Status:        status,
		RoofClosed:    status&StatusRoofClosed != 0,
		Rain:          status&StatusNoRain == 0,
		ShutterClosed: status&StatusShutterClosed != 0,
	}, true
}

// ReadLidarLog parses the lidar system log at path and derives the shutter
// series. A missing file returns ErrPathMissing.
func (m *Measurement) ReadLidarLog(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("lidar log %s: %w", path, ErrPathMissing)
		}
		return fmt.Errorf("open lidar log: %w", err)
	}
	defer f.Close()

	lg, err := ParseLidarLog(f)
	if err != nil {
		return err
	}
	if lg.Skipped > 0 {
		monitoring.Warnw("lidar log rows skipped", "file", path, "skipped", lg.Skipped)
	}
	m.log = lg
	if m.Ingested() {
		m.shutter = lg.shutterSeries(m.timeAxis)
	}
	return nil
}

// shutterSeries counts closed-shutter entries between the first log row at
// or after each bin start and the last row before its stop. Bins with no log
// rows on either side are NaN.
func (l *LidarLog) shutterSeries(ta *axis.TimeAxis) *signal.TimeSeries {
	out := make([]float64, ta.Len())
	for t := range out {
		start, stop := ta.StartAt(t), ta.StopAt(t)
		first, last := -1, -1
		for i, e := range l.Entries {
			if first < 0 && !e.Time.Before(start) {
				first = i
			}
			if e.Time.Before(stop) {
				last = i
			}
		}
		if first < 0 || last < 0 {
			out[t] = math.NaN()
			continue
		}
		n := 0
		for i := first; i <= last; i++ {
			if l.Entries[i].ShutterClosed {
				n++
			}
		}
		out[t] = float64(n)
	}
	return signal.NewTimeSeries(out)
}
