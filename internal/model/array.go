package model

import (
	"encoding/json"
	"fmt"
	"math"
)

// Array is a portable n-dimensional numeric array: an explicit shape and a
// row-major flat buffer. A scalar has an empty shape and one element.
type Array struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// NewArray builds an array, checking that data matches the shape.
func NewArray(shape []int, data []float64) (*Array, error) {
	want, ok := elementCount(shape)
	if !ok {
		return nil, fmt.Errorf("shape %v is too large", shape)
	}
	if want != len(data) {
		return nil, fmt.Errorf("shape %v needs %d elements, got %d", shape, want, len(data))
	}
	if want == 0 && emptyExtent(shape) > maxEmptyExtent {
		return nil, fmt.Errorf("shape %v is too large", shape)
	}
	return &Array{Shape: shape, Data: data}, nil
}

// maxEmptyExtent bounds the nested lists built for an array with a zero
// dimension.
const maxEmptyExtent = 1 << 16

// Vector is a one-dimensional array.
func Vector(data ...float64) *Array {
	return &Array{Shape: []int{len(data)}, Data: data}
}

// Scalar is a zero-dimensional array.
func Scalar(f float64) *Array {
	return &Array{Data: []float64{f}}
}

// elementCount returns the product of the dimensions, and false when a
// dimension is negative or the product overflows.
func elementCount(shape []int) (int, bool) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, false
		}
		if d != 0 && n > math.MaxInt/d {
			return 0, false
		}
		n *= d
	}
	return n, true
}

// emptyExtent is the number of list slots nest allocates ahead of the first
// zero dimension.
func emptyExtent(shape []int) int {
	total, n := 0, 1
	for _, d := range shape {
		if d == 0 {
			break
		}
		if n > math.MaxInt/d {
			return math.MaxInt
		}
		n *= d
		if total > math.MaxInt-n {
			return math.MaxInt
		}
		total += n
	}
	return total
}

// ArrayFromValue decodes an encoded array. Accepted encodings are null
// (returns nil), a number, a rectangular nested list of numbers, or an
// object {"shape": [...], "data": [...]}.
func ArrayFromValue(v Value) (*Array, error) {
	switch v.Kind() {
	case KindNull:
		return nil, nil
	case KindNumber:
		f, _ := v.Float()
		return Scalar(f), nil
	case KindArray:
		shape, err := nestedShape(v)
		if err != nil {
			return nil, err
		}
		n, _ := elementCount(shape)
		data := make([]float64, 0, n)
		data, err = flatten(v, data)
		if err != nil {
			return nil, err
		}
		return &Array{Shape: shape, Data: data}, nil
	case KindObject:
		shapeVal, ok := v.Get("shape")
		if !ok {
			return nil, fmt.Errorf("encoded array is missing shape")
		}
		dataVal, ok := v.Get("data")
		if !ok {
			return nil, fmt.Errorf("encoded array is missing data")
		}
		shape := make([]int, 0, len(shapeVal.Items()))
		for _, d := range shapeVal.Items() {
			n, ok := d.Int64()
			if !ok || n < 0 {
				return nil, fmt.Errorf("invalid dimension %v", d.Interface())
			}
			shape = append(shape, int(n))
		}
		data := make([]float64, 0, len(dataVal.Items()))
		for _, d := range dataVal.Items() {
			f, ok := d.Float()
			if !ok {
				return nil, fmt.Errorf("array element is %s, not number", d.Kind())
			}
			data = append(data, f)
		}
		return NewArray(shape, data)
	}
	return nil, fmt.Errorf("cannot decode %s as array", v.Kind())
}

func nestedShape(v Value) ([]int, error) {
	if v.Kind() != KindArray {
		return nil, nil
	}
	items := v.Items()
	shape := []int{len(items)}
	if len(items) == 0 {
		return shape, nil
	}
	inner, err := nestedShape(items[0])
	if err != nil {
		return nil, err
	}
	for _, item := range items[1:] {
		other, err := nestedShape(item)
		if err != nil {
			return nil, err
		}
		if !sameShape(inner, other) {
			return nil, fmt.Errorf("ragged nested array")
		}
	}
	return append(shape, inner...), nil
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func flatten(v Value, out []float64) ([]float64, error) {
	if v.Kind() == KindArray {
		var err error
		for _, item := range v.Items() {
			if out, err = flatten(item, out); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	f, ok := v.Float()
	if !ok {
		return nil, fmt.Errorf("array element is %s, not number", v.Kind())
	}
	return append(out, f), nil
}

// Nested returns the array as nested []any of float64 preserving shape; a
// scalar returns its float64.
func (a *Array) Nested() any {
	if len(a.Shape) == 0 {
		if len(a.Data) == 0 {
			return []any{}
		}
		return a.Data[0]
	}
	if n, ok := elementCount(a.Shape); !ok || n != len(a.Data) || (n == 0 && emptyExtent(a.Shape) > maxEmptyExtent) {
		return []any{}
	}
	out, _ := nest(a.Shape, a.Data)
	return out
}

func nest(shape []int, data []float64) (any, []float64) {
	if len(shape) == 0 {
		return data[0], data[1:]
	}
	out := make([]any, shape[0])
	for i := range out {
		out[i], data = nest(shape[1:], data)
	}
	return out, data
}

// Value encodes the array in its explicit shape/data form.
func (a *Array) Value() Value {
	if a == nil {
		return Null()
	}
	shape := make([]Value, len(a.Shape))
	for i, d := range a.Shape {
		shape[i] = Int(int64(d))
	}
	data := make([]Value, len(a.Data))
	for i, f := range a.Data {
		data[i] = Number(f)
	}
	return Object(Field{Key: "shape", Value: List(shape...)}, Field{Key: "data", Value: List(data...)})
}

func (a *Array) UnmarshalJSON(b []byte) error {
	v, err := ParseJSON(b)
	if err != nil {
		return err
	}
	decoded, err := ArrayFromValue(v)
	if err != nil {
		return err
	}
	if decoded == nil {
		*a = Array{}
		return nil
	}
	*a = *decoded
	return nil
}

var _ json.Unmarshaler = (*Array)(nil)

// RecordValues converts an array to the record-axis list form used by the
// UI: nil becomes [], a scalar x becomes [x], and an n-dimensional array
// becomes a single-element list holding its nested form.
func RecordValues(a *Array) []any {
	if a == nil {
		return []any{}
	}
	return []any{a.Nested()}
}
