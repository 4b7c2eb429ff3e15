package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/chirino/case-recorder/internal/model"
	registrystore "github.com/chirino/case-recorder/internal/registry/store"
	"github.com/chirino/case-recorder/internal/testutil/testrecord"
	"github.com/stretchr/testify/require"
)

func sellar(t *testing.T) *testrecord.Builder {
	t.Helper()
	return testrecord.New(t).
		Metadata(map[string][]string{
			"pz.z":        {"desvar", "output"},
			"obj_cmp.obj": {"objective", "output"},
			"px.x":        {"input"},
		}).
		DriverIteration(testrecord.Iteration{
			Coordinate: "rank0:SLSQP|0",
			Counter:    1,
			Success:    true,
			Inputs:     []testrecord.Var{{Name: "px.x", Value: 1.0}},
			Outputs: []testrecord.Var{
				{Name: "pz.z", Value: []any{5.0, 2.0}},
				{Name: "obj_cmp.obj", Value: 28.58},
			},
		}).
		DriverIteration(testrecord.Iteration{
			Coordinate: "rank0:SLSQP|1",
			Counter:    2,
			Outputs:    []testrecord.Var{{Name: "pz.z", Value: []any{4.0, 1.5}}},
		})
}

func TestValidateHeader(t *testing.T) {
	dir := t.TempDir()

	small := filepath.Join(dir, "small")
	require.NoError(t, os.WriteFile(small, []byte("SQLite format 3\x00"), 0o644))
	require.ErrorIs(t, ValidateHeader(small), ErrNotRecordFile)

	text := filepath.Join(dir, "text")
	require.NoError(t, os.WriteFile(text, make([]byte, 200), 0o644))
	require.ErrorIs(t, ValidateHeader(text), ErrNotRecordFile)

	require.ErrorIs(t, ValidateHeader(filepath.Join(dir, "missing")), ErrNotRecordFile)
	require.ErrorIs(t, ValidateHeader(dir), ErrNotRecordFile)

	require.NoError(t, ValidateHeader(sellar(t).Path))
}

func TestRecordFile_Disconnected(t *testing.T) {
	f := New(0)
	ctx := context.Background()
	require.False(t, f.Connected())

	_, err := f.IterationPayloads(ctx, model.CollectionDriverIterations, 0)
	require.ErrorIs(t, err, registrystore.ErrNotConnected)
	_, err = f.CounterAbove(ctx, model.CollectionDriverIterations, 0, 0)
	require.ErrorIs(t, err, registrystore.ErrNotConnected)
	_, err = f.Metadata(ctx, 0)
	require.ErrorIs(t, err, registrystore.ErrNotConnected)
	require.ErrorIs(t, f.UpdateLayout(ctx, model.Object()), registrystore.ErrNotConnected)
	require.NoError(t, f.Disconnect())
}

func TestRecordFile_ReadsIterations(t *testing.T) {
	ctx := context.Background()
	f := New(0)
	require.NoError(t, f.Connect(ctx, sellar(t).Path))
	t.Cleanup(func() { f.Disconnect() })

	docs, err := f.IterationPayloads(ctx, model.CollectionDriverIterations, 0)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	coord, _ := docs[0].Get(model.FieldIterationCoordinate)
	require.True(t, coord.Equal(model.String("rank0:SLSQP|0")))
	outputs, _ := docs[0].Get("outputs")
	require.Equal(t, "pz.z", outputs.Fields()[0].Key)

	meta, err := f.Metadata(ctx, 0)
	require.NoError(t, err)
	require.True(t, meta.Abs2Meta["pz.z"].HasTag(model.TagDesvar))
	require.Equal(t, "pz.z", meta.Abs2Prom.Output["pz.z"])

	above, err := f.CounterAbove(ctx, model.CollectionDriverIterations, 0, 1)
	require.NoError(t, err)
	require.True(t, above)
	above, err = f.CounterAbove(ctx, model.CollectionDriverIterations, 0, 2)
	require.NoError(t, err)
	require.False(t, above)

	none, err := f.IterationPayloads(ctx, model.CollectionSolverIterations, 0)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestRecordFile_SystemResiduals(t *testing.T) {
	ctx := context.Background()
	b := testrecord.New(t).
		Metadata(map[string][]string{"y1": {"output"}}).
		SystemIteration(testrecord.Iteration{
			Coordinate: "rank0:root._solve_nonlinear|0",
			Counter:    1,
			Outputs:    []testrecord.Var{{Name: "y1", Value: 25.5}},
			Residuals:  []testrecord.Var{{Name: "y1", Value: 0.0}},
		})
	f := New(0)
	require.NoError(t, f.Connect(ctx, b.Path))
	t.Cleanup(func() { f.Disconnect() })

	docs, err := f.IterationPayloads(ctx, model.CollectionSystemIterations, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.True(t, docs[0].Has("residuals"))
}

func TestRecordFile_Layout(t *testing.T) {
	ctx := context.Background()
	f := New(0)
	require.NoError(t, f.Connect(ctx, sellar(t).Path))
	t.Cleanup(func() { f.Disconnect() })

	_, ok, err := f.Layout(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	list, err := f.Layouts(ctx)
	require.NoError(t, err)
	require.Empty(t, list)

	first := model.Object(model.Field{Key: "content", Value: model.String("plot")})
	second := model.Object(model.Field{Key: "content", Value: model.String("n2")})
	require.NoError(t, f.UpdateLayout(ctx, first))
	require.NoError(t, f.UpdateLayout(ctx, second))

	got, ok, err := f.Layout(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.Equal(second))

	list, err = f.Layouts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.True(t, list[0].Equal(second))
}

func TestRecordFile_DriverMetadata(t *testing.T) {
	ctx := context.Background()
	b := sellar(t)
	f := New(0)
	require.NoError(t, f.Connect(ctx, b.Path))
	t.Cleanup(func() { f.Disconnect() })

	_, ok, err := f.DriverMetadata(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	list, err := f.DriverMetadataList(ctx)
	require.NoError(t, err)
	require.Empty(t, list)

	b.DriverMetadata(map[string]any{"tree": map[string]any{"name": "root"}})
	v, ok, err := f.DriverMetadata(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	tree, _ := v.Get("tree")
	name, _ := tree.Get("name")
	require.True(t, name.Equal(model.String("root")))

	list, err = f.DriverMetadataList(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	wrapped, ok := list[0].Get("model_viewer_data")
	require.True(t, ok)
	require.True(t, wrapped.Equal(v))
}

func TestRecordFile_FailedConnectKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	good := sellar(t).Path
	f := New(0)
	require.NoError(t, f.Connect(ctx, good))
	t.Cleanup(func() { f.Disconnect() })

	bogus := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(bogus, make([]byte, 512), 0o644))
	err := f.Connect(ctx, bogus)
	require.True(t, errors.Is(err, ErrNotRecordFile))

	require.Equal(t, good, f.Path())
	docs, err := f.IterationPayloads(ctx, model.CollectionDriverIterations, 0)
	require.NoError(t, err)
	require.Len(t, docs, 2)
}

func TestRecordFile_ReconnectDuringReads(t *testing.T) {
	ctx := context.Background()
	a := sellar(t).Path
	b := sellar(t).Path
	f := New(0)
	require.NoError(t, f.Connect(ctx, a))
	t.Cleanup(func() { f.Disconnect() })

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				docs, err := f.IterationPayloads(ctx, model.CollectionDriverIterations, 0)
				if err != nil {
					errs <- err
					return
				}
				if len(docs) != 2 {
					errs <- errors.New("torn read")
					return
				}
			}
		}()
	}
	for i := 0; i < 5; i++ {
		next := a
		if i%2 == 0 {
			next = b
		}
		require.NoError(t, f.Connect(ctx, next))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}
