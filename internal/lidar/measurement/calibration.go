package measurement

import (
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/lidar.scc/internal/config"
)

// CalibrationIntervals holds the time indices of the two polarization
// calibration positions. Index 0 is the first calibration position.
type CalibrationIntervals struct {
	Angles  [2]float64
	Indices [2][]int
}

// FindDepolCalibrationIndices locates the two calibration positions in the
// calibration-angle series. The first sample of each position is a settling
// sample and is dropped.
func (m *Measurement) FindDepolCalibrationIndices() (CalibrationIntervals, error) {
	if !m.Ingested() {
		return CalibrationIntervals{}, ErrNotIngested
	}
	angles := m.depolCalAngle.Values()
	for i, a := range angles {
		angles[i] = math.Round(a)
	}
	return findCalibration(angles, m.cfg.MeasurementCalAngle, m.cfg.GetCalibrationOrder())
}

type angleCount struct {
	angle float64
	count int
	first int
}

func findCalibration(rounded []float64, measurementAngle float64, order string) (CalibrationIntervals, error) {
	var counts []*angleCount
	byAngle := make(map[float64]*angleCount)
	for i, a := range rounded {
		if a == measurementAngle {
			continue
		}
		c, ok := byAngle[a]
		if !ok {
			c = &angleCount{angle: a, first: i}
			byAngle[a] = c
			counts = append(counts, c)
		}
		c.count++
	}
	if len(counts) < 2 {
		return CalibrationIntervals{}, fmt.Errorf("%d calibration angle(s) found: %w", len(counts), ErrNoCalibration)
	}

	// most frequent first, ties by first occurrence
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].count > counts[j].count })
	top := []*angleCount{counts[0], counts[1]}

	switch order {
	case config.OrderAscendingAngle:
		sort.Slice(top, func(i, j int) bool { return top[i].angle < top[j].angle })
	case config.OrderDescendingAngle:
		sort.Slice(top, func(i, j int) bool { return top[i].angle > top[j].angle })
	}

	var out CalibrationIntervals
	for k, c := range top {
		out.Angles[k] = c.angle
		for i, a := range rounded {
			if a == c.angle && i != c.first {
				out.Indices[k] = append(out.Indices[k], i)
			}
		}
		if len(out.Indices[k]) == 0 {
			return CalibrationIntervals{}, fmt.Errorf("calibration angle %g has only a settling sample: %w", c.angle, ErrNoCalibration)
		}
	}
	return out, nil
}
