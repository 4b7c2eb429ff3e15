package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, raw string) Value {
	t.Helper()
	v, err := ParseJSON([]byte(raw))
	require.NoError(t, err)
	return v
}

func TestArrayFromValue(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		shape []int
		data  []float64
	}{
		{"scalar", `3.5`, nil, []float64{3.5}},
		{"vector", `[1, 2]`, []int{2}, []float64{1, 2}},
		{"matrix", `[[1, 2, 3], [4, 5, 6]]`, []int{2, 3}, []float64{1, 2, 3, 4, 5, 6}},
		{"empty", `[]`, []int{0}, []float64{}},
		{"explicit", `{"shape": [2, 1], "data": [7, 8]}`, []int{2, 1}, []float64{7, 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ArrayFromValue(parse(t, tt.raw))
			require.NoError(t, err)
			assert.Equal(t, len(tt.shape), len(a.Shape))
			if len(tt.shape) > 0 {
				assert.Equal(t, tt.shape, a.Shape)
			}
			assert.Equal(t, tt.data, a.Data)
		})
	}
}

func TestArrayFromValue_Null(t *testing.T) {
	a, err := ArrayFromValue(Null())
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.Equal(t, []any{}, RecordValues(a))
}

func TestArrayFromValue_Invalid(t *testing.T) {
	for _, raw := range []string{
		`[[1, 2], [3]]`,
		`[1, "x"]`,
		`"text"`,
		`{"shape": [3], "data": [1, 2]}`,
		`{"shape": [-1], "data": []}`,
		`{"data": [1]}`,
		`{"shape": [3, 4611686018427387904, 4], "data": []}`,
		`{"shape": [4611686018427387904, 0], "data": []}`,
	} {
		_, err := ArrayFromValue(parse(t, raw))
		assert.Error(t, err, raw)
	}
}

func TestNewArray(t *testing.T) {
	_, err := NewArray([]int{2, 2}, []float64{1, 2, 3})
	require.Error(t, err)

	a, err := NewArray([]int{2, 2}, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{1.0, 2.0}, []any{3.0, 4.0}}, a.Nested())
}

func TestNewArray_OverflowingShape(t *testing.T) {
	_, err := NewArray([]int{3, 1 << 62, 4}, nil)
	require.Error(t, err)

	a, err := NewArray([]int{2, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{}, []any{}}, a.Nested())
}

func TestNested_InconsistentArray(t *testing.T) {
	a := &Array{Shape: []int{3, 1 << 62, 4}}
	assert.NotPanics(t, func() {
		assert.Equal(t, []any{}, a.Nested())
	})
}

func TestRecordValues(t *testing.T) {
	assert.Equal(t, []any{2.5}, RecordValues(Scalar(2.5)))
	assert.Equal(t, []any{[]any{5.0, 2.0}}, RecordValues(Vector(5, 2)))
}

func TestArray_JSONRoundTrip(t *testing.T) {
	a := Vector(1, 2, 3)
	out, err := json.Marshal(a.Value())
	require.NoError(t, err)
	assert.JSONEq(t, `{"shape":[3],"data":[1,2,3]}`, string(out))

	var back Array
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, *a, back)
}
