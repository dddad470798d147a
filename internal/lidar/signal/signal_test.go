package signal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func rawFixture() *mat.Dense {
	return mat.NewDense(3, 4, []float64{
		1, 2, 3, 4,
		11, 22, 33, 44,
		111, 222, 333, 444,
	})
}

func TestDeriveBackgroundAndRangeCorrection(t *testing.T) {
	sig := FromRaw(rawFixture(), Header{BGFirst: 0, BGLast: 2, Name: "wa_355p"})
	rangeAxis := []float64{10, 20, 30, 40}

	pp, err := Derive(sig, rangeAxis)
	require.NoError(t, err)

	assert.Equal(t, []float64{1.5, 16.5, 166.5}, pp.Background)
	// row 0: (raw - 1.5) * r^2
	assert.Equal(t, []float64{-0.5 * 100, 0.5 * 400, 1.5 * 900, 2.5 * 1600}, pp.Row(0))
	// row 2, bin 3: (444 - 166.5) * 1600
	assert.InDelta(t, 277.5*1600, pp.Data.At(2, 3), 1e-9)
	assert.Equal(t, "wa_355p", pp.Header.Name)
}

func TestDeriveDoesNotTouchRaw(t *testing.T) {
	raw := rawFixture()
	sig := FromRaw(raw, Header{BGFirst: 0, BGLast: 2})
	_, err := Derive(sig, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.True(t, mat.Equal(rawFixture(), sig.Data))
}

func TestDeriveErrors(t *testing.T) {
	sig := FromRaw(rawFixture(), Header{BGFirst: 0, BGLast: 2})
	_, err := Derive(sig, []float64{1, 2, 3})
	assert.Error(t, err, "range axis length mismatch")

	sig.Header.BGLast = 5
	_, err = Derive(sig, []float64{1, 2, 3, 4})
	assert.Error(t, err, "background window outside signal")

	_, err = Derive(&Signal{}, nil)
	assert.Error(t, err, "empty signal")
}

func TestAppendVertical(t *testing.T) {
	sig := FromRaw(rawFixture(), Header{})
	more := mat.NewDense(2, 4, []float64{5, 6, 7, 8, 9, 10, 11, 12})

	require.NoError(t, sig.Append(more, Vertical))
	assert.Equal(t, 5, sig.Rows())
	assert.Equal(t, 4, sig.Cols())
	assert.Equal(t, []float64{9, 10, 11, 12}, sig.Row(4))
}

func TestAppendHorizontal(t *testing.T) {
	sig := FromRaw(rawFixture(), Header{})
	more := mat.NewDense(3, 1, []float64{-1, -2, -3})

	require.NoError(t, sig.Append(more, Horizontal))
	assert.Equal(t, 3, sig.Rows())
	assert.Equal(t, 5, sig.Cols())
	assert.Equal(t, []float64{11, 22, 33, 44, -2}, sig.Row(1))
}

func TestAppendErrors(t *testing.T) {
	sig := FromRaw(rawFixture(), Header{})

	err := sig.Append(mat.NewDense(1, 3, nil), Vertical)
	assert.Error(t, err)

	err = sig.Append(mat.NewDense(2, 1, nil), Horizontal)
	assert.Error(t, err)

	err = sig.Append(mat.NewDense(1, 4, nil), Orientation(7))
	assert.True(t, errors.Is(err, ErrUnknownOrientation))
	assert.Equal(t, 3, sig.Rows(), "failed append must not change the signal")
}

func TestAppendToEmpty(t *testing.T) {
	sig := &Signal{}
	require.NoError(t, sig.Append(rawFixture(), Vertical))
	assert.Equal(t, 3, sig.Rows())
}

func TestTimeSeries(t *testing.T) {
	ts := NewTimeSeries([]float64{1, 2, 3})
	ts.Append(4, 5)
	assert.Equal(t, 5, ts.Len())
	assert.Equal(t, 4.0, ts.At(3))
	assert.Equal(t, []float64{5, 1}, ts.Subset([]int{4, 0}))

	v := ts.Values()
	v[0] = 99
	assert.Equal(t, 1.0, ts.At(0))
}
