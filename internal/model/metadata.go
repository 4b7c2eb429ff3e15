package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Variable type tags carried in abs2meta.
const (
	TagDesvar     = "desvar"
	TagObjective  = "objective"
	TagConstraint = "constraint"
	TagResponse   = "response"
	TagInput      = "input"
	TagOutput     = "output"
)

// PromotionMap maps absolute variable paths to promoted names.
type PromotionMap struct {
	Input  map[string]string `json:"input"`
	Output map[string]string `json:"output"`
}

// AbsoluteMap maps promoted names back to the absolute paths they cover.
type AbsoluteMap struct {
	Input  map[string][]string `json:"input"`
	Output map[string][]string `json:"output"`
}

// VariableMeta describes a single variable.
type VariableMeta struct {
	Type  []string `json:"type"`
	Units *string  `json:"units,omitempty"`
	Shape []int    `json:"shape,omitempty"`
}

func (m VariableMeta) HasTag(tag string) bool {
	return slices.Contains(m.Type, tag)
}

// Metadata is the per-case variable naming and typing snapshot.
type Metadata struct {
	FormatVersion int                     `json:"format_version,omitempty"`
	Abs2Prom      PromotionMap            `json:"abs2prom"`
	Prom2Abs      AbsoluteMap             `json:"prom2abs"`
	Abs2Meta      map[string]VariableMeta `json:"abs2meta"`
}

// DecodeMetadata reads a metadata document payload.
func DecodeMetadata(p Payload) (*Metadata, error) {
	raw, err := p.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &m, nil
}

// KeySeparator replaces "." in keys stored where dots are not allowed.
const KeySeparator = "___"

// Normalized returns abs2prom and prom2abs with stored key separators turned
// back into dots.
func (m Metadata) Normalized() Metadata {
	out := m
	out.Abs2Prom = PromotionMap{Input: normalizeKeys(m.Abs2Prom.Input), Output: normalizeKeys(m.Abs2Prom.Output)}
	out.Prom2Abs = AbsoluteMap{Input: normalizeKeys(m.Prom2Abs.Input), Output: normalizeKeys(m.Prom2Abs.Output)}
	return out
}

func normalizeKeys[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[strings.ReplaceAll(k, KeySeparator, ".")] = v
	}
	return out
}
