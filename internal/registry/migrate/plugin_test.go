package migrate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingMigrator struct {
	name string
	runs *[]string
	err  error
}

func (m recordingMigrator) Name() string { return m.name }

func (m recordingMigrator) Migrate(context.Context) error {
	*m.runs = append(*m.runs, m.name)
	return m.err
}

func withPlugins(t *testing.T, ps ...Plugin) {
	t.Helper()
	saved := plugins
	plugins = ps
	t.Cleanup(func() { plugins = saved })
}

func TestRunAllOrdersByOrder(t *testing.T) {
	var runs []string
	withPlugins(t,
		Plugin{Order: 20, Migrator: recordingMigrator{name: "indexes", runs: &runs}},
		Plugin{Order: 10, Migrator: recordingMigrator{name: "collections", runs: &runs}},
	)

	require.NoError(t, RunAll(context.Background()))
	require.Equal(t, []string{"collections", "indexes"}, runs)
	require.Equal(t, []string{"collections", "indexes"}, Names())
}

func TestRunAllStopsOnError(t *testing.T) {
	var runs []string
	withPlugins(t,
		Plugin{Order: 1, Migrator: recordingMigrator{name: "first", runs: &runs, err: errors.New("boom")}},
		Plugin{Order: 2, Migrator: recordingMigrator{name: "second", runs: &runs}},
	)

	err := RunAll(context.Background())
	require.ErrorContains(t, err, "migration first failed: boom")
	require.Equal(t, []string{"first"}, runs)
}
