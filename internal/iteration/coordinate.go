package iteration

import (
	"strings"

	"github.com/chirino/case-recorder/internal/model"
	registrystore "github.com/chirino/case-recorder/internal/registry/store"
)

// CoordinateDelimiter separates the alternating name and index tokens of an
// iteration coordinate.
const CoordinateDelimiter = "|"

// ParseCoordinate splits an iteration coordinate such as
// "rank0:SLSQP|0|root._solve_nonlinear|0" into (name, iteration) pairs.
// An empty coordinate has no nodes. An odd number of tokens is malformed.
func ParseCoordinate(coord string) ([]model.CoordinateNode, error) {
	if coord == "" {
		return []model.CoordinateNode{}, nil
	}
	tokens := strings.Split(coord, CoordinateDelimiter)
	if len(tokens)%2 != 0 {
		return nil, &registrystore.MalformedError{
			Resource: "iteration_coordinate",
			ID:       coord,
			Reason:   "odd number of name/iteration tokens",
		}
	}
	nodes := make([]model.CoordinateNode, 0, len(tokens)/2)
	for i := 0; i < len(tokens); i += 2 {
		nodes = append(nodes, model.CoordinateNode{Name: tokens[i], Iteration: tokens[i+1]})
	}
	return nodes, nil
}
