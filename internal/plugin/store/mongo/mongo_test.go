package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/case-recorder/internal/model"
	registrystore "github.com/chirino/case-recorder/internal/registry/store"
	"github.com/chirino/case-recorder/internal/testutil/testmongo"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func newTestStore(t *testing.T) *MongoStore {
	t.Helper()
	ctx := context.Background()
	db := testmongo.Database(t)
	s := New(db.Client(), db.Name())
	require.NoError(t, EnsureSchema(ctx, s.db))
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestMongoStore_UsersAreUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertUser(ctx, model.User{Token: "AAAAAAAAAA", Name: "a", Email: "a@example.com"}))
	err := s.InsertUser(ctx, model.User{Token: "BBBBBBBBBB", Name: "b", Email: "a@example.com"})
	require.True(t, registrystore.IsConflict(err))

	require.NoError(t, s.SetUserActive(ctx, "AAAAAAAAAA", true))
	u, err := s.FindUserByToken(ctx, "AAAAAAAAAA")
	require.NoError(t, err)
	require.True(t, u.Active)

	_, err = s.FindUserByToken(ctx, "missing")
	require.True(t, registrystore.IsNotFound(err))

	deleted, err := s.DeleteUser(ctx, "AAAAAAAAAA")
	require.NoError(t, err)
	require.True(t, deleted)
}

func TestMongoStore_CaseRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	c := model.Case{
		ID:     42,
		Name:   "sellar",
		Date:   now,
		Owners: []string{"AAAAAAAAAA"},
		Payload: model.Payload{
			{Key: "case_name", Value: model.String("sellar")},
			{Key: "driver", Value: model.String("ScipyOptimizeDriver")},
		},
	}
	require.NoError(t, s.InsertCase(ctx, c))
	require.True(t, registrystore.IsConflict(s.InsertCase(ctx, c)))

	got, err := s.FindCase(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, "sellar", got.Name)
	require.Equal(t, now, got.Date)
	require.Equal(t, []string{"AAAAAAAAAA"}, got.Owners)
	v, ok := got.Payload.Get("driver")
	require.True(t, ok)
	require.True(t, v.Equal(model.String("ScipyOptimizeDriver")))

	renamed, err := s.UpdateCaseName(ctx, 42, "renamed")
	require.NoError(t, err)
	require.True(t, renamed)

	cases, err := s.ListCasesByOwner(ctx, "AAAAAAAAAA")
	require.NoError(t, err)
	require.Len(t, cases, 1)
	require.Equal(t, "renamed", cases[0].Name)

	deleted, err := s.DeleteCase(ctx, 42)
	require.NoError(t, err)
	require.True(t, deleted)
	_, err = s.FindCase(ctx, 42)
	require.True(t, registrystore.IsNotFound(err))
}

func TestMongoStore_Documents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	coll := model.CollectionDriverIterations

	for i, coord := range []string{"rank0:SLSQP|0", "rank0:SLSQP|1"} {
		require.NoError(t, s.InsertDocument(ctx, coll, model.Document{
			CaseID:    7,
			Timestamp: time.Now(),
			Owners:    []string{"AAAAAAAAAA"},
			Payload: model.Payload{
				{Key: model.FieldIterationCoordinate, Value: model.String(coord)},
				{Key: model.FieldCounter, Value: model.Int(int64(i + 1))},
				{Key: "outputs", Value: model.Object(model.Field{Key: "pz.z", Value: model.List(model.Number(5), model.Number(2))})},
			},
		}))
	}

	docs, err := s.FindDocuments(ctx, coll, registrystore.DocumentQuery{CaseID: 7, Owner: "AAAAAAAAAA"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.NotEmpty(t, docs[0].ID)
	outputs, ok := docs[0].Payload.Get("outputs")
	require.True(t, ok)
	require.Equal(t, model.KindObject, outputs.Kind())

	docs, err = s.FindDocuments(ctx, coll, registrystore.DocumentQuery{CaseID: 7, Owner: "BBBBBBBBBB"})
	require.NoError(t, err)
	require.Empty(t, docs)

	maxCounter, found, err := s.MaxCounter(ctx, coll, 7)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(2), maxCounter)

	_, found, err = s.MaxCounter(ctx, coll, 8)
	require.NoError(t, err)
	require.False(t, found)

	removed, err := s.DeleteDocuments(ctx, coll, registrystore.DocumentQuery{
		CaseID: 7,
		Field:  model.FieldIterationCoordinate,
		Value:  model.String("rank0:SLSQP|0"),
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)
}

func TestValueBSONRoundTrip(t *testing.T) {
	v := model.Object(
		model.Field{Key: "b", Value: model.List(model.Number(1.5), model.Null(), model.Bool(true))},
		model.Field{Key: "a", Value: model.Int(3)},
	)
	raw := valueToBSON(v)
	d, ok := raw.(bson.D)
	require.True(t, ok)
	require.Equal(t, "b", d[0].Key)

	back, err := valueFromBSON(raw)
	require.NoError(t, err)
	require.True(t, v.Equal(back))
	require.Equal(t, "b", back.Fields()[0].Key)

	n, err := valueFromBSON(int32(4))
	require.NoError(t, err)
	require.True(t, n.Equal(model.Int(4)))
}
