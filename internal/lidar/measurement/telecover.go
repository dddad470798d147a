package measurement

import (
	"fmt"
	"slices"
)

// SectorInterval is an operator-marked time interval [First, Last) during
// which the telescope looked through one telecover sector.
type SectorInterval struct {
	Name  string
	First int
	Last  int
}

// TelecoverRegions holds the marked sectors in order of first appearance.
type TelecoverRegions struct {
	Used             []string
	TelecoverSectors []string
	AverageSectors   []string
	Intervals        map[string]SectorInterval
}

func newTelecoverRegions() TelecoverRegions {
	return TelecoverRegions{Intervals: make(map[string]SectorInterval)}
}

// SetTelecoverRegion records the time interval of a sector. Marking a sector
// again replaces its interval but keeps its position in Used.
func (m *Measurement) SetTelecoverRegion(first, last int, sector string) error {
	if !m.Ingested() {
		return ErrNotIngested
	}
	if first < 0 || last > m.Len() || first >= last {
		return fmt.Errorf("sector %q: time bin range [%d,%d) outside [0,%d)", sector, first, last, m.Len())
	}
	tc := &m.telecover
	if !slices.Contains(tc.Used, sector) {
		tc.Used = append(tc.Used, sector)
		if slices.Contains(m.cfg.Telecover.Sectors, sector) {
			tc.TelecoverSectors = append(tc.TelecoverSectors, sector)
		}
		if slices.Contains(m.cfg.Telecover.AverageSectors, sector) {
			tc.AverageSectors = append(tc.AverageSectors, sector)
		}
	}
	tc.Intervals[sector] = SectorInterval{Name: sector, First: first, Last: last}
	return nil
}

// TelecoverRegions returns a copy of the marked sectors.
func (m *Measurement) TelecoverRegions() TelecoverRegions {
	out := TelecoverRegions{
		Used:             slices.Clone(m.telecover.Used),
		TelecoverSectors: slices.Clone(m.telecover.TelecoverSectors),
		AverageSectors:   slices.Clone(m.telecover.AverageSectors),
		Intervals:        make(map[string]SectorInterval, len(m.telecover.Intervals)),
	}
	for k, v := range m.telecover.Intervals {
		out.Intervals[k] = v
	}
	return out
}
