// Package iteration turns stored iteration documents into the grouped view
// the visualization consumes. Everything here is a pure function.
package iteration

import (
	"fmt"

	"github.com/chirino/case-recorder/internal/model"
	registrystore "github.com/chirino/case-recorder/internal/registry/store"
)

// Payload field names of a stored iteration.
const (
	FieldTimestamp = "timestamp"
	FieldSuccess   = "success"
	FieldMsg       = "msg"
	FieldInputs    = "inputs"
	FieldOutputs   = "outputs"
	FieldResiduals = "residuals"
)

// FromPayload reads a stored iteration document. Variable maps keep their
// stored order.
func FromPayload(p model.Payload) (model.RawIteration, error) {
	var raw model.RawIteration
	if v, ok := p.Get(model.FieldIterationCoordinate); ok {
		s, ok := v.Str()
		if !ok && !v.IsNull() {
			return raw, malformed("iteration", "", "iteration_coordinate is not a string")
		}
		raw.Coordinate = s
	}
	if v, ok := p.Get(model.FieldCounter); ok && !v.IsNull() {
		n, ok := v.Int64()
		if !ok {
			return raw, malformed("iteration", raw.Coordinate, "counter is not an integer")
		}
		raw.Counter = n
	}
	if v, ok := p.Get(FieldTimestamp); ok {
		raw.Timestamp, _ = v.Float()
	}
	if v, ok := p.Get(FieldSuccess); ok {
		if b, ok := v.Boolean(); ok {
			raw.Success = b
		} else if f, ok := v.Float(); ok {
			raw.Success = f != 0
		}
	}
	if v, ok := p.Get(FieldMsg); ok {
		raw.Msg, _ = v.Str()
	}

	var err error
	if raw.Inputs, err = variables(p, FieldInputs, raw.Coordinate); err != nil {
		return raw, err
	}
	if raw.Outputs, err = variables(p, FieldOutputs, raw.Coordinate); err != nil {
		return raw, err
	}
	if raw.Residuals, err = variables(p, FieldResiduals, raw.Coordinate); err != nil {
		return raw, err
	}
	return raw, nil
}

func variables(p model.Payload, field, coord string) ([]model.NamedArray, error) {
	v, ok := p.Get(field)
	if !ok || v.IsNull() {
		return nil, nil
	}
	if v.Kind() != model.KindObject {
		return nil, malformed("iteration", coord, field+" is not an object")
	}
	out := make([]model.NamedArray, 0, len(v.Fields()))
	for _, f := range v.Fields() {
		arr, err := model.ArrayFromValue(f.Value)
		if err != nil {
			return nil, &registrystore.MalformedError{Resource: "variable", ID: f.Key, Reason: err.Error()}
		}
		out = append(out, model.NamedArray{Name: f.Key, Array: arr})
	}
	return out, nil
}

// Decode classifies the variables of one iteration using the case metadata.
//
// Outputs tagged "response" are listed under responses and are still placed
// in exactly one of desvars, objectives, constraints, or sysincludes. Inputs
// and residuals are taken as they are.
func Decode(raw model.RawIteration, meta *model.Metadata) (model.IterationRecord, error) {
	coords, err := ParseCoordinate(raw.Coordinate)
	if err != nil {
		return model.IterationRecord{}, err
	}
	rec := model.IterationRecord{
		IterationCoordinate: raw.Coordinate,
		Coordinates:         coords,
		Counter:             raw.Counter,
		Timestamp:           raw.Timestamp,
		Success:             raw.Success,
		Msg:                 raw.Msg,
		Desvars:             []model.VariableValues{},
		Objectives:          []model.VariableValues{},
		Constraints:         []model.VariableValues{},
		Responses:           []model.VariableValues{},
		Sysincludes:         []model.VariableValues{},
		Inputs:              []model.VariableValues{},
	}

	for _, out := range raw.Outputs {
		vm, ok := lookup(meta, out.Name)
		if !ok {
			return model.IterationRecord{}, &registrystore.MalformedError{
				Resource: "variable",
				ID:       out.Name,
				Reason:   fmt.Sprintf("no abs2meta entry (iteration %q)", raw.Coordinate),
			}
		}
		vv := values(out)
		if vm.HasTag(model.TagResponse) {
			rec.Responses = append(rec.Responses, vv)
		}
		switch {
		case vm.HasTag(model.TagDesvar):
			rec.Desvars = append(rec.Desvars, vv)
		case vm.HasTag(model.TagObjective):
			rec.Objectives = append(rec.Objectives, vv)
		case vm.HasTag(model.TagConstraint):
			rec.Constraints = append(rec.Constraints, vv)
		default:
			rec.Sysincludes = append(rec.Sysincludes, vv)
		}
	}
	for _, in := range raw.Inputs {
		rec.Inputs = append(rec.Inputs, values(in))
	}
	for _, res := range raw.Residuals {
		rec.Residuals = append(rec.Residuals, values(res))
	}
	return rec, nil
}

// DecodeAll decodes iterations in order, stopping at the first malformed one.
func DecodeAll(raws []model.RawIteration, meta *model.Metadata) ([]model.IterationRecord, error) {
	out := make([]model.IterationRecord, 0, len(raws))
	for _, raw := range raws {
		rec, err := Decode(raw, meta)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func lookup(meta *model.Metadata, name string) (model.VariableMeta, bool) {
	if meta == nil {
		return model.VariableMeta{}, false
	}
	vm, ok := meta.Abs2Meta[name]
	return vm, ok
}

func values(na model.NamedArray) model.VariableValues {
	return model.VariableValues{Name: na.Name, Values: model.RecordValues(na.Array)}
}

func malformed(resource, id, reason string) error {
	return &registrystore.MalformedError{Resource: resource, ID: id, Reason: reason}
}
