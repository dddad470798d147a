// Package ncio wraps NetCDF reading and writing behind small interfaces so
// decoders and encoders can be tested without files.
package ncio

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// ErrNoVariable is returned when a variable is absent.
var ErrNoVariable = errors.New("variable not found")

// Array is a numeric variable flattened in row-major order.
type Array struct {
	Values []float64
	Shape  []int
}

// At2 returns element (i, j) of a two-dimensional array.
func (a *Array) At2(i, j int) float64 {
	return a.Values[i*a.Shape[1]+j]
}

// At3 returns element (i, j, k) of a three-dimensional array.
func (a *Array) At3(i, j, k int) float64 {
	return a.Values[(i*a.Shape[1]+j)*a.Shape[2]+k]
}

// Scalar returns the first value, for scalar variables.
func (a *Array) Scalar() float64 {
	return a.Values[0]
}

// Dataset is a read-only view of a NetCDF file.
type Dataset interface {
	Array(name string) (*Array, error)
	Dim(name string) (int, bool)
	Attr(name string) (interface{}, bool)
	Close() error
}

type fileDataset struct {
	g api.Group
}

// Open opens a NetCDF classic or NetCDF-4 file.
func Open(path string) (Dataset, error) {
	g, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open netcdf %s: %w", path, err)
	}
	return &fileDataset{g: g}, nil
}

func (d *fileDataset) Array(name string) (*Array, error) {
	v, err := d.g.GetVariable(name)
	if err != nil || v == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrNoVariable)
	}
	values, shape, err := Flatten(v.Values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &Array{Values: values, Shape: shape}, nil
}

func (d *fileDataset) Dim(name string) (int, bool) {
	n, ok := d.g.GetDimension(name)
	return int(n), ok
}

func (d *fileDataset) Attr(name string) (interface{}, bool) {
	attrs := d.g.Attributes()
	if attrs == nil {
		return nil, false
	}
	return attrs.Get(name)
}

func (d *fileDataset) Close() error {
	d.g.Close()
	return nil
}

// Flatten converts a numeric scalar or nested slice into row-major float64
// values and its shape. Ragged slices are rejected.
func Flatten(v interface{}) ([]float64, []int, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, nil, fmt.Errorf("nil value")
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		f, err := toFloat(rv)
		if err != nil {
			return nil, nil, err
		}
		return []float64{f}, nil, nil
	}

	var shape []int
	for t := rv; t.Kind() == reflect.Slice || t.Kind() == reflect.Array; {
		shape = append(shape, t.Len())
		if t.Len() == 0 {
			break
		}
		t = t.Index(0)
	}

	out := make([]float64, 0, product(shape))
	var walk func(x reflect.Value, depth int) error
	walk = func(x reflect.Value, depth int) error {
		if depth == len(shape) {
			f, err := toFloat(x)
			if err != nil {
				return err
			}
			out = append(out, f)
			return nil
		}
		if x.Kind() != reflect.Slice && x.Kind() != reflect.Array {
			return fmt.Errorf("unexpected %s at depth %d", x.Kind(), depth)
		}
		if x.Len() != shape[depth] {
			return fmt.Errorf("ragged array: length %d at depth %d, want %d", x.Len(), depth, shape[depth])
		}
		for i := 0; i < x.Len(); i++ {
			if err := walk(x.Index(i), depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(rv, 0); err != nil {
		return nil, nil, err
	}
	return out, shape, nil
}

func toFloat(v reflect.Value) (float64, error) {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), nil
	case reflect.Interface:
		return toFloat(v.Elem())
	default:
		return 0, fmt.Errorf("non-numeric value of kind %s", v.Kind())
	}
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}
