package iteration

import (
	"testing"

	"github.com/chirino/case-recorder/internal/model"
	"github.com/stretchr/testify/require"
)

func TestParseCoordinate(t *testing.T) {
	cases := []struct {
		name  string
		coord string
		want  []model.CoordinateNode
	}{
		{"empty", "", []model.CoordinateNode{}},
		{"driver", "rank0:SLSQP|0", []model.CoordinateNode{{Name: "rank0:SLSQP", Iteration: "0"}}},
		{"nested", "rank0:SLSQP|2|root._solve_nonlinear|2|NLRunOnce|0", []model.CoordinateNode{
			{Name: "rank0:SLSQP", Iteration: "2"},
			{Name: "root._solve_nonlinear", Iteration: "2"},
			{Name: "NLRunOnce", Iteration: "0"},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseCoordinate(tc.coord)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestParseCoordinate_Odd(t *testing.T) {
	_, err := ParseCoordinate("rank0:SLSQP")
	require.ErrorContains(t, err, "odd number")
}
