package iteration

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/chirino/case-recorder/internal/model"
	registrystore "github.com/chirino/case-recorder/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metadata(tags map[string][]string) *model.Metadata {
	m := &model.Metadata{Abs2Meta: map[string]model.VariableMeta{}}
	for name, t := range tags {
		m.Abs2Meta[name] = model.VariableMeta{Type: t}
	}
	return m
}

func payload(t *testing.T, raw string) model.Payload {
	t.Helper()
	var p model.Payload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return p
}

func TestDecode_SingleDesvar(t *testing.T) {
	p := payload(t, `{
		"iteration_coordinate": "rank0:SLSQP|0",
		"counter": 1,
		"timestamp": 1524508766.5,
		"success": 1,
		"msg": "",
		"inputs": {},
		"outputs": {"pz.z": [5.0, 2.0]}
	}`)
	raw, err := FromPayload(p)
	require.NoError(t, err)

	rec, err := Decode(raw, metadata(map[string][]string{"pz.z": {"desvar", "output"}}))
	require.NoError(t, err)

	require.Equal(t, []model.VariableValues{{Name: "pz.z", Values: []any{[]any{5.0, 2.0}}}}, rec.Desvars)
	require.Equal(t, []model.CoordinateNode{{Name: "rank0:SLSQP", Iteration: "0"}}, rec.Coordinates)
	require.Equal(t, int64(1), rec.Counter)
	require.True(t, rec.Success)
	require.Empty(t, rec.Objectives)
	require.NotNil(t, rec.Objectives)
	require.Empty(t, rec.Sysincludes)
}

func TestDecode_Classification(t *testing.T) {
	raw := model.RawIteration{
		Coordinate: "rank0:SLSQP|3",
		Counter:    4,
		Outputs: []model.NamedArray{
			{Name: "obj_cmp.obj", Array: model.Scalar(3.18)},
			{Name: "pz.z", Array: model.Vector(1.97, 0)},
			{Name: "con1", Array: model.Scalar(-1e-9)},
			{Name: "dual", Array: model.Scalar(1)},
			{Name: "y2", Array: model.Scalar(3.75)},
			{Name: "watch", Array: nil},
		},
		Inputs: []model.NamedArray{
			{Name: "d1.x", Array: model.Scalar(0)},
		},
	}
	meta := metadata(map[string][]string{
		"obj_cmp.obj": {"objective", "output"},
		"pz.z":        {"desvar", "response", "output"},
		"con1":        {"constraint", "output"},
		"dual":        {"response", "output"},
		"y2":          {"output"},
		"watch":       {"output"},
	})

	rec, err := Decode(raw, meta)
	require.NoError(t, err)

	names := func(vs []model.VariableValues) []string {
		out := []string{}
		for _, v := range vs {
			out = append(out, v.Name)
		}
		return out
	}
	assert.Equal(t, []string{"pz.z"}, names(rec.Desvars))
	assert.Equal(t, []string{"obj_cmp.obj"}, names(rec.Objectives))
	assert.Equal(t, []string{"con1"}, names(rec.Constraints))
	assert.Equal(t, []string{"pz.z", "dual"}, names(rec.Responses))
	assert.Equal(t, []string{"dual", "y2", "watch"}, names(rec.Sysincludes))
	assert.Equal(t, []string{"d1.x"}, names(rec.Inputs))

	// scalar -> [x], null -> []
	assert.Equal(t, []any{3.18}, rec.Objectives[0].Values)
	assert.Equal(t, []any{}, rec.Sysincludes[2].Values)
}

func TestDecode_ResidualsAreNotClassified(t *testing.T) {
	raw := model.RawIteration{
		Coordinate: "rank0:root._solve_nonlinear|0|NLRunOnce|0",
		Residuals:  []model.NamedArray{{Name: "y1", Array: model.Scalar(0.5)}},
	}
	rec, err := Decode(raw, metadata(nil))
	require.NoError(t, err)
	require.Equal(t, []model.VariableValues{{Name: "y1", Values: []any{0.5}}}, rec.Residuals)
	require.Len(t, rec.Coordinates, 2)
}

func TestDecode_MissingMetadataIsMalformed(t *testing.T) {
	raw := model.RawIteration{
		Coordinate: "rank0:SLSQP|0",
		Outputs:    []model.NamedArray{{Name: "unknown", Array: model.Scalar(1)}},
	}
	_, err := Decode(raw, metadata(nil))
	var malformed *registrystore.MalformedError
	require.True(t, errors.As(err, &malformed))
	require.Equal(t, "unknown", malformed.ID)

	_, err = Decode(raw, nil)
	require.True(t, errors.As(err, &malformed))
}

func TestFromPayload_Multidimensional(t *testing.T) {
	p := payload(t, `{
		"iteration_coordinate": "rank0:SLSQP|0",
		"counter": 2,
		"outputs": {"mat": {"shape": [2, 2], "data": [1, 2, 3, 4]}, "m2": [[1, 2], [3, 4]]}
	}`)
	raw, err := FromPayload(p)
	require.NoError(t, err)
	require.Len(t, raw.Outputs, 2)
	require.Equal(t, "mat", raw.Outputs[0].Name)

	rec, err := Decode(raw, metadata(map[string][]string{"mat": {"output"}, "m2": {"output"}}))
	require.NoError(t, err)
	want := []any{[]any{[]any{1.0, 2.0}, []any{3.0, 4.0}}}
	require.Equal(t, want, rec.Sysincludes[0].Values)
	require.Equal(t, want, rec.Sysincludes[1].Values)
}

func TestFromPayload_RejectsBadInput(t *testing.T) {
	_, err := FromPayload(payload(t, `{"counter": 1.5}`))
	require.Error(t, err)

	_, err = FromPayload(payload(t, `{"outputs": [1, 2]}`))
	require.Error(t, err)

	_, err = FromPayload(payload(t, `{"outputs": {"x": [[1, 2], [3]]}}`))
	var malformed *registrystore.MalformedError
	require.True(t, errors.As(err, &malformed))
	require.Equal(t, "x", malformed.ID)
}

func TestDecodeAll_StopsOnOddCoordinate(t *testing.T) {
	_, err := DecodeAll([]model.RawIteration{
		{Coordinate: "rank0:SLSQP|0"},
		{Coordinate: "rank0:SLSQP|1|dangling"},
	}, metadata(nil))
	var malformed *registrystore.MalformedError
	require.True(t, errors.As(err, &malformed))
	require.Equal(t, "rank0:SLSQP|1|dangling", malformed.ID)
}
