package measurement

import (
	"fmt"
	"math"
)

// SetInvalid excludes time bins [first, last) from export.
func (m *Measurement) SetInvalid(first, last int) error {
	return m.setMask(first, last, false)
}

// SetValid re-includes time bins [first, last).
func (m *Measurement) SetValid(first, last int) error {
	return m.setMask(first, last, true)
}

// ResetMask includes every time bin again.
func (m *Measurement) ResetMask() {
	m.mask = trueMask(len(m.mask))
}

func (m *Measurement) setMask(first, last int, v bool) error {
	if !m.Ingested() {
		return ErrNotIngested
	}
	if first < 0 || last > len(m.mask) || first > last {
		return fmt.Errorf("time bin range [%d,%d) outside [0,%d)", first, last, len(m.mask))
	}
	for i := first; i < last; i++ {
		m.mask[i] = v
	}
	return nil
}

// Mask returns a copy of the operator mask (true = include).
func (m *Measurement) Mask() []bool {
	return append([]bool(nil), m.mask...)
}

// RawExportMask combines the operator mask with the shot-count and
// calibration-angle vetoes. The stored mask is not modified.
func (m *Measurement) RawExportMask() []bool {
	out := m.CalibrationExportMask()
	for i := range out {
		if math.Round(m.depolCalAngle.At(i)) != m.cfg.MeasurementCalAngle {
			out[i] = false
		}
	}
	return out
}

// CalibrationExportMask combines the operator mask with the shot-count veto.
func (m *Measurement) CalibrationExportMask() []bool {
	out := m.Mask()
	for i := range out {
		if m.shots.At(i) <= 0 {
			out[i] = false
		}
	}
	return out
}

// ValidCount returns how many bins the operator mask includes.
func (m *Measurement) ValidCount() int {
	n := 0
	for _, v := range m.mask {
		if v {
			n++
		}
	}
	return n
}

// MaskedCount returns how many bins the operator mask excludes.
func (m *Measurement) MaskedCount() int {
	return len(m.mask) - m.ValidCount()
}

func maskIndices(mask []bool) []int {
	idx := make([]int, 0, len(mask))
	for i, v := range mask {
		if v {
			idx = append(idx, i)
		}
	}
	return idx
}
