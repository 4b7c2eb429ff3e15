package model

import (
	"encoding/json"
	"fmt"
)

// Payload is the caller-defined body of a stored document. It is opaque to
// the store apart from the few fields used to pick a replace key.
type Payload []Field

// PayloadFromMap converts a decoded JSON object into a Payload.
func PayloadFromMap(m map[string]any) (Payload, error) {
	v, err := FromInterface(m)
	if err != nil {
		return nil, err
	}
	return Payload(v.Fields()), nil
}

func (p Payload) Get(key string) (Value, bool) {
	for _, f := range p {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

func (p Payload) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

// Set returns p with key bound to v, replacing any previous binding.
func (p Payload) Set(key string, v Value) Payload {
	return Payload(setField([]Field(p), key, v))
}

// Without returns a copy of p with the given keys removed.
func (p Payload) Without(keys ...string) Payload {
	out := make(Payload, 0, len(p))
	for _, f := range p {
		skip := false
		for _, k := range keys {
			if f.Key == k {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, f)
		}
	}
	return out
}

// Clone returns a shallow copy whose field slice can be modified freely.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	copy(out, p)
	return out
}

func (p Payload) Value() Value {
	return Object([]Field(p)...)
}

// Map converts the payload to plain Go values.
func (p Payload) Map() map[string]any {
	out := make(map[string]any, len(p))
	for _, f := range p {
		out[f.Key] = f.Value.Interface()
	}
	return out
}

func (p Payload) MarshalJSON() ([]byte, error) {
	return p.Value().MarshalJSON()
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	v, err := ParseJSON(data)
	if err != nil {
		return err
	}
	switch v.Kind() {
	case KindObject:
		*p = Payload(v.Fields())
		return nil
	case KindNull:
		*p = nil
		return nil
	}
	return fmt.Errorf("payload must be a JSON object, got %s", v.Kind())
}

var _ json.Marshaler = Payload(nil)
