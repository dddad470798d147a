package measurement

import "fmt"

// CloudType classifies one (time, height) cell.
type CloudType int8

const (
	NoCloud CloudType = iota
	UnknownCloud
	Cirrus
	WaterCloud
)

func (c CloudType) String() string {
	switch c {
	case NoCloud:
		return "no-cloud"
	case UnknownCloud:
		return "unknown-cloud"
	case Cirrus:
		return "cirrus"
	case WaterCloud:
		return "water-cloud"
	default:
		return fmt.Sprintf("CloudType(%d)", int8(c))
	}
}

// CloudMaskType records whether the cloud mask was edited.
type CloudMaskType int

const (
	NoCloudMask CloudMaskType = iota
	ManualCloudMask
)

// SetCloudRegion marks height bins [first, last) of every time bin.
func (m *Measurement) SetCloudRegion(first, last int, ct CloudType) error {
	if !m.Ingested() {
		return ErrNotIngested
	}
	if ct < NoCloud || ct > WaterCloud {
		return fmt.Errorf("unknown cloud type %d", ct)
	}
	if first < 0 || last > m.header.Points || first > last {
		return fmt.Errorf("height bin range [%d,%d) outside [0,%d)", first, last, m.header.Points)
	}
	for _, row := range m.cloudMask {
		for j := first; j < last; j++ {
			row[j] = ct
		}
	}
	m.header.CloudMaskType = ManualCloudMask
	return nil
}

// RemoveCloudMask clears every cell to NoCloud.
func (m *Measurement) RemoveCloudMask() {
	for _, row := range m.cloudMask {
		for j := range row {
			row[j] = NoCloud
		}
	}
	m.header.CloudMaskType = NoCloudMask
}

// CloudAt returns the classification of time bin t, height bin z.
func (m *Measurement) CloudAt(t, z int) CloudType {
	return m.cloudMask[t][z]
}

// CloudRows is the number of time bins covered by the cloud mask.
func (m *Measurement) CloudRows() int {
	return len(m.cloudMask)
}

func clearCloudRows(n, points int) [][]CloudType {
	rows := make([][]CloudType, n)
	for i := range rows {
		rows[i] = make([]CloudType, points)
	}
	return rows
}
