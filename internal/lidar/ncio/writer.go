package ncio

import (
	"fmt"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
)

// Var is one variable to write.
type Var struct {
	Name       string
	Values     interface{}
	Dimensions []string
	// AttrKeys fixes the attribute order.
	AttrKeys []string
	Attrs    map[string]interface{}
}

// Document is a complete file: ordered global attributes and variables.
type Document struct {
	AttrKeys []string
	Attrs    map[string]interface{}
	Vars     []Var
}

// SetAttr appends or replaces a global attribute.
func (d *Document) SetAttr(key string, value interface{}) {
	if d.Attrs == nil {
		d.Attrs = make(map[string]interface{})
	}
	if _, ok := d.Attrs[key]; !ok {
		d.AttrKeys = append(d.AttrKeys, key)
	}
	d.Attrs[key] = value
}

// AddVar appends a variable.
func (d *Document) AddVar(name string, values interface{}, dims ...string) *Var {
	d.Vars = append(d.Vars, Var{Name: name, Values: values, Dimensions: dims})
	return &d.Vars[len(d.Vars)-1]
}

// Var returns the named variable, or nil.
func (d *Document) Var(name string) *Var {
	for i := range d.Vars {
		if d.Vars[i].Name == name {
			return &d.Vars[i]
		}
	}
	return nil
}

// SetAttr appends or replaces a variable attribute.
func (v *Var) SetAttr(key string, value interface{}) *Var {
	if v.Attrs == nil {
		v.Attrs = make(map[string]interface{})
	}
	if _, ok := v.Attrs[key]; !ok {
		v.AttrKeys = append(v.AttrKeys, key)
	}
	v.Attrs[key] = value
	return v
}

// Write stores doc as a NetCDF classic file at path.
func Write(path string, doc *Document) error {
	cw, err := cdf.OpenWriter(path)
	if err != nil {
		return fmt.Errorf("create netcdf %s: %w", path, err)
	}
	if len(doc.AttrKeys) > 0 {
		attrs, err := util.NewOrderedMap(doc.AttrKeys, doc.Attrs)
		if err != nil {
			cw.Close()
			return fmt.Errorf("global attributes: %w", err)
		}
		if err := cw.AddGlobalAttrs(attrs); err != nil {
			cw.Close()
			return fmt.Errorf("global attributes: %w", err)
		}
	}
	for _, v := range doc.Vars {
		var attrs api.AttributeMap
		if len(v.AttrKeys) > 0 {
			om, err := util.NewOrderedMap(v.AttrKeys, v.Attrs)
			if err != nil {
				cw.Close()
				return fmt.Errorf("%s attributes: %w", v.Name, err)
			}
			attrs = om
		}
		if err := cw.AddVar(v.Name, api.Variable{
			Values:     v.Values,
			Dimensions: v.Dimensions,
			Attributes: attrs,
		}); err != nil {
			cw.Close()
			return fmt.Errorf("add variable %s: %w", v.Name, err)
		}
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("close netcdf %s: %w", path, err)
	}
	return nil
}

// PadStrings right-pads values with NUL bytes to a common length so they
// form a regular char matrix.
func PadStrings(values []string) []string {
	width := 0
	for _, s := range values {
		width = max(width, len(s))
	}
	out := make([]string, len(values))
	for i, s := range values {
		b := make([]byte, width)
		copy(b, s)
		out[i] = string(b)
	}
	return out
}
