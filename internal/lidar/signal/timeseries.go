package signal

// TimeSeries is a one-dimensional per-time-bin series.
type TimeSeries struct {
	values []float64
}

// NewTimeSeries copies values into a new series.
func NewTimeSeries(values []float64) *TimeSeries {
	return &TimeSeries{values: append([]float64(nil), values...)}
}

// Len returns the number of samples.
func (t *TimeSeries) Len() int { return len(t.values) }

// At returns sample i.
func (t *TimeSeries) At(i int) float64 { return t.values[i] }

// Values returns a copy of the samples.
func (t *TimeSeries) Values() []float64 {
	return append([]float64(nil), t.values...)
}

// Append adds samples at the end.
func (t *TimeSeries) Append(v ...float64) {
	t.values = append(t.values, v...)
}

// Subset returns the selected samples in the given order.
func (t *TimeSeries) Subset(idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = t.values[j]
	}
	return out
}
