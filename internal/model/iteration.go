package model

// NamedArray is one variable of a raw iteration.
type NamedArray struct {
	Name  string
	Array *Array
}

// RawIteration is an iteration as stored, before classification.
type RawIteration struct {
	Coordinate string
	Counter    int64
	Timestamp  float64
	Success    bool
	Msg        string
	Inputs     []NamedArray
	Outputs    []NamedArray
	Residuals  []NamedArray
}

// CoordinateNode is one (name, iteration) pair of an iteration coordinate.
type CoordinateNode struct {
	Name      string `json:"name"`
	Iteration string `json:"iteration"`
}

// VariableValues is a variable with its record-axis values.
type VariableValues struct {
	Name   string `json:"name"`
	Values []any  `json:"values"`
}

// IterationRecord is a decoded iteration grouped for visualization.
type IterationRecord struct {
	IterationCoordinate string           `json:"iteration_coordinate"`
	Coordinates         []CoordinateNode `json:"coordinates"`
	Counter             int64            `json:"counter"`
	Timestamp           float64          `json:"timestamp"`
	Success             bool             `json:"success"`
	Msg                 string           `json:"msg"`
	Desvars             []VariableValues `json:"desvars"`
	Objectives          []VariableValues `json:"objectives"`
	Constraints         []VariableValues `json:"constraints"`
	Responses           []VariableValues `json:"responses"`
	Sysincludes         []VariableValues `json:"sysincludes"`
	Inputs              []VariableValues `json:"inputs"`
	Residuals           []VariableValues `json:"residuals,omitempty"`
}

// VariableKind tags which group a variable sample came from.
type VariableKind string

const (
	VarDesvar     VariableKind = "desvar"
	VarObjective  VariableKind = "objective"
	VarConstraint VariableKind = "constraint"
	VarSysinclude VariableKind = "sysinclude"
	VarInput      VariableKind = "input"
)

// VariableSample is one occurrence of a variable across iterations.
type VariableSample struct {
	Name      string           `json:"name"`
	Values    []any            `json:"values"`
	Type      VariableKind     `json:"type"`
	Counter   int64            `json:"counter"`
	Iteration []CoordinateNode `json:"iteration"`
}

// VariableCatalog lists unique variable names per group. A name is listed
// only under the first group it was seen in.
type VariableCatalog struct {
	Desvars     []string `json:"desvars"`
	Objectives  []string `json:"objectives"`
	Constraints []string `json:"constraints"`
	Sysincludes []string `json:"sysincludes"`
	Inputs      []string `json:"inputs"`
}
