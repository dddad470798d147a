package ncio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenNested(t *testing.T) {
	v := [][]float32{{1, 2, 3}, {4, 5, 6}}
	values, shape, err := Flatten(v)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, shape)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, values)

	a := &Array{Values: values, Shape: shape}
	assert.Equal(t, 6.0, a.At2(1, 2))
}

func TestFlattenCube(t *testing.T) {
	v := [][][]int32{
		{{1, 2}, {3, 4}},
		{{5, 6}, {7, 8}},
	}
	values, shape, err := Flatten(v)
	require.NoError(t, err)
	a := &Array{Values: values, Shape: shape}
	assert.Equal(t, []int{2, 2, 2}, shape)
	assert.Equal(t, 7.0, a.At3(1, 1, 0))
}

func TestFlattenScalar(t *testing.T) {
	values, shape, err := Flatten(int16(7))
	require.NoError(t, err)
	assert.Nil(t, shape)
	assert.Equal(t, []float64{7}, values)
}

func TestFlattenErrors(t *testing.T) {
	_, _, err := Flatten([][]float64{{1, 2}, {3}})
	assert.Error(t, err, "ragged")

	_, _, err = Flatten("abc")
	assert.Error(t, err)

	_, _, err = Flatten(nil)
	assert.Error(t, err)
}

func TestDocumentOrdering(t *testing.T) {
	var doc Document
	doc.SetAttr("Measurement_ID", "20150501wa00")
	doc.SetAttr("Comment", "x")
	doc.SetAttr("Measurement_ID", "20150501wa01")
	assert.Equal(t, []string{"Measurement_ID", "Comment"}, doc.AttrKeys)
	assert.Equal(t, "20150501wa01", doc.Attrs["Measurement_ID"])

	doc.AddVar("Pressure", []float64{1000}, "points").SetAttr("Units", "hPa")
	v := doc.Var("Pressure")
	require.NotNil(t, v)
	assert.Equal(t, "hPa", v.Attrs["Units"])
	assert.Nil(t, doc.Var("Temperature"))
}

func TestPadStrings(t *testing.T) {
	out := PadStrings([]string{"wa_355p", "wa_1064", "wa_387_fr"})
	for _, s := range out {
		assert.Len(t, s, 9)
	}
	assert.Equal(t, "wa_355p\x00\x00", out[0])
}
