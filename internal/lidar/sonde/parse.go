package sonde

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/lidar.scc/internal/config"
)

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// column parses line[from:to]; a field cut short by the end of the line is
// parsed as far as it goes.
func column(line string, from, to int) (float64, error) {
	if from >= len(line) {
		return 0, fmt.Errorf("line too short for columns %d:%d", from, to)
	}
	to = min(to, len(line))
	return strconv.ParseFloat(strings.TrimSpace(line[from:to]), 64)
}

func keyValue(line string) (float64, bool) {
	_, v, ok := strings.Cut(line, ":")
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f, err == nil
}

// ParseWyoming reads the fixed-column listing. The first non-empty line
// holds "<WMO> <location> ... HHZ DD Mon YYYY"; data rows start two lines
// below the first line containing headerMarker and end two lines before the
// first line containing bottomMarker.
func ParseWyoming(r io.Reader, headerMarker, bottomMarker string) (*Sounding, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}

	first := 0
	for first < len(lines) && len(strings.Fields(lines[first])) == 0 {
		first++
	}
	if first == len(lines) {
		return nil, fmt.Errorf("empty sounding: %w", ErrNoData)
	}
	head := strings.Fields(lines[first])
	if len(head) < 6 {
		return nil, fmt.Errorf("header line %q too short", lines[first])
	}
	ts, err := time.Parse("15Z 02 Jan 2006", strings.Join(head[len(head)-4:], " "))
	if err != nil {
		return nil, fmt.Errorf("header time: %w", err)
	}

	s := &Sounding{
		Format: FormatWyoming,
		Header: Header{WMOID: head[0], Location: head[1], Time: ts},
	}

	dataFirst, dataLast := 0, 0
	for i, l := range lines {
		if dataFirst == 0 && strings.Contains(l, headerMarker) {
			dataFirst = i + 2
		}
		if dataLast == 0 && strings.Contains(l, bottomMarker) {
			dataLast = i - 1
		}
		if strings.Contains(l, "latitude") {
			if v, ok := keyValue(l); ok {
				s.Header.Latitude = v
			}
		}
		if strings.Contains(l, "longitude") {
			if v, ok := keyValue(l); ok {
				s.Header.Longitude = v
			}
		}
		if strings.Contains(l, "elevation") {
			if v, ok := keyValue(l); ok {
				s.Header.Altitude = v
			}
		}
	}
	if dataLast == 0 {
		dataLast = len(lines)
	}

	for i := dataFirst; i < dataLast && i < len(lines); i++ {
		l := lines[i]
		pp, err1 := column(l, 0, 7)
		alt, err2 := column(l, 7, 14)
		tt, err3 := column(l, 14, 21)
		rh, err4 := column(l, 28, 35)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			s.Skipped++
			continue
		}
		s.Pressure = append(s.Pressure, pp)
		s.Altitude = append(s.Altitude, alt)
		s.Temperature = append(s.Temperature, tt)
		s.RelHumidity = append(s.RelHumidity, rh)
	}
	if s.Len() == 0 {
		return nil, ErrNoData
	}
	return s, nil
}

// ParseGDAS reads a forecast-model profile. The first line carries the
// date, hour and position; data rows start five lines below the first
// blank line.
func ParseGDAS(r io.Reader) (*Sounding, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrNoData
	}
	head := strings.Fields(lines[0])
	if len(head) < 8 {
		return nil, fmt.Errorf("header line %q too short", lines[0])
	}
	var ymdh [4]int
	for k, idx := range []int{1, 3, 5, 7} {
		v, err := strconv.Atoi(head[idx])
		if err != nil {
			return nil, fmt.Errorf("header field %d: %w", idx, err)
		}
		ymdh[k] = v
	}
	lat, err := strconv.ParseFloat(head[len(head)-3], 64)
	if err != nil {
		return nil, fmt.Errorf("header latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(head[len(head)-1], 64)
	if err != nil {
		return nil, fmt.Errorf("header longitude: %w", err)
	}
	if ymdh[0] < 100 {
		ymdh[0] += 2000
	}

	s := &Sounding{
		Format: FormatGDAS,
		Header: Header{
			WMOID:     "_____",
			Location:  "GDAS_interpolated_to_lidar_site",
			Time:      time.Date(ymdh[0], time.Month(ymdh[1]), ymdh[2], ymdh[3], 0, 0, 0, time.UTC),
			Latitude:  lat,
			Longitude: lon,
		},
	}

	blank := 0
	for blank < len(lines) && len(strings.Fields(lines[blank])) > 0 {
		blank++
	}
	for i := blank + 5; i < len(lines); i++ {
		f := strings.Fields(lines[i])
		if len(f) < 4 {
			continue
		}
		pp, err1 := strconv.ParseFloat(f[0], 64)
		altInt, _, _ := strings.Cut(f[1], ".")
		alt, err2 := strconv.ParseFloat(altInt, 64)
		tt, err3 := strconv.ParseFloat(f[2], 64)
		td, err4 := strconv.ParseFloat(f[3], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			s.Skipped++
			continue
		}
		s.Pressure = append(s.Pressure, pp)
		s.Altitude = append(s.Altitude, alt)
		s.Temperature = append(s.Temperature, tt)
		s.DewPoint = append(s.DewPoint, td)
	}
	if s.Len() == 0 {
		return nil, ErrNoData
	}
	// station altitude is the lowest model level
	s.Header.Altitude = s.Altitude[0]
	return s, nil
}

// ParseCSV reads a semicolon separated export named "YYMMDD_WMO_HHz...".
// Rows are read bottom-up and a row is kept only when both pressure and
// altitude differ from the previously kept row. Altitude is given in km
// with a decimal point and converted to metres.
func ParseCSV(r io.Reader, name string, stations []config.SondeStation) (*Sounding, error) {
	parts := strings.Split(name, "_")
	if len(parts) < 3 {
		return nil, fmt.Errorf("file name %q is not YYMMDD_WMO_HHz", name)
	}
	hour, _, _ := strings.Cut(parts[2], "z")
	ts, err := time.Parse("06010215", parts[0]+hour)
	if err != nil {
		return nil, fmt.Errorf("file name time: %w", err)
	}

	wmo := parts[1]
	var st *config.SondeStation
	for i := range stations {
		if stations[i].WMOID == wmo {
			st = &stations[i]
			break
		}
	}
	if st == nil {
		return nil, fmt.Errorf("%s: %w", wmo, ErrUnknownStation)
	}

	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}

	s := &Sounding{
		Format: FormatCSV,
		Header: Header{
			WMOID:     wmo,
			Location:  st.Name,
			Time:      ts,
			Latitude:  st.Latitude,
			Longitude: st.Longitude,
			Altitude:  st.Altitude,
		},
	}

	// line 0 is the column header
	for i := len(lines) - 1; i > 0; i-- {
		f := strings.Split(lines[i], ";")
		if len(f) < 5 {
			s.Skipped++
			continue
		}
		pp, err1 := strconv.ParseFloat(strings.TrimSpace(f[0]), 64)
		alt, err2 := csvAltitude(strings.TrimSpace(f[1]))
		tt, err3 := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(f[2]), ",", "."), 64)
		rh, err4 := strconv.ParseFloat(strings.TrimSpace(f[4]), 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			s.Skipped++
			continue
		}
		if n := s.Len(); n > 0 && (pp == s.Pressure[n-1] || alt == s.Altitude[n-1]) {
			continue
		}
		s.Pressure = append(s.Pressure, pp)
		s.Altitude = append(s.Altitude, alt)
		s.Temperature = append(s.Temperature, tt)
		s.RelHumidity = append(s.RelHumidity, rh)
	}
	if s.Len() == 0 {
		return nil, ErrNoData
	}
	return s, nil
}

// csvAltitude pads the value to three decimals and drops the point,
// turning "1.23" into 1230.
func csvAltitude(v string) (float64, error) {
	width := strings.LastIndex(v, ".") + 4
	for len(v) < width {
		v += "0"
	}
	return strconv.ParseFloat(strings.ReplaceAll(v, ".", ""), 64)
}
