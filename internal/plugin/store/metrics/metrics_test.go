package metrics

import (
	"context"
	"testing"

	"github.com/chirino/case-recorder/internal/model"
	"github.com/chirino/case-recorder/internal/plugin/store/memory"
	"github.com/chirino/case-recorder/internal/security"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestWrapRecordsLatency(t *testing.T) {
	security.InitMetrics(prometheus.Labels{"service": "metrics-test"})
	s := Wrap(memory.New())
	ctx := context.Background()

	require.NoError(t, s.InsertCase(ctx, model.Case{ID: 1, Owners: []string{"AAAAAAAAAA"}}))
	_, err := s.FindCase(ctx, 1)
	require.NoError(t, err)

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	ops := map[string]uint64{}
	for _, mf := range families {
		if mf.GetName() != "case_recorder_store_latency_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "operation" {
					ops[lp.GetValue()] = m.GetHistogram().GetSampleCount()
				}
			}
		}
	}
	require.Equal(t, uint64(1), ops["insert_case"])
	require.Equal(t, uint64(1), ops["find_case"])
}
