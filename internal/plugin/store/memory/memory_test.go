package memory

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/case-recorder/internal/model"
	registrystore "github.com/chirino/case-recorder/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.InsertUser(ctx, model.User{Token: "t1", Email: "a@example.com"}))
	require.True(t, registrystore.IsConflict(s.InsertUser(ctx, model.User{Token: "t1", Email: "b@example.com"})))
	require.True(t, registrystore.IsConflict(s.InsertUser(ctx, model.User{Token: "t2", Email: "a@example.com"})))

	u, err := s.FindUserByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "t1", u.Token)

	require.NoError(t, s.SetUserActive(ctx, "t1", true))
	u, err = s.FindUserByToken(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, u.Active)

	assert.True(t, registrystore.IsNotFound(s.SetUserActive(ctx, "nope", true)))

	deleted, err := s.DeleteUser(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = s.FindUserByToken(ctx, "t1")
	assert.True(t, registrystore.IsNotFound(err))
}

func TestCases(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()

	require.NoError(t, s.InsertCase(ctx, model.Case{ID: 2, Date: now.Add(time.Second), Owners: []string{"a"}}))
	require.NoError(t, s.InsertCase(ctx, model.Case{ID: 1, Date: now, Owners: []string{"a", "b"}}))
	require.True(t, registrystore.IsConflict(s.InsertCase(ctx, model.Case{ID: 1})))

	cases, err := s.ListCasesByOwner(ctx, "a")
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, int64(1), cases[0].ID)

	ok, err := s.UpdateCaseName(ctx, 1, "renamed")
	require.NoError(t, err)
	assert.True(t, ok)
	c, err := s.FindCase(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "renamed", c.Name)

	c.Owners[0] = "mutated"
	c, err = s.FindCase(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, c.Owners)

	ok, err = s.DeleteCase(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.DeleteCase(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func doc(caseID int64, owner string, fields ...model.Field) model.Document {
	return model.Document{CaseID: caseID, Owners: []string{owner}, Payload: model.Payload(fields)}
}

func TestDocuments(t *testing.T) {
	ctx := context.Background()
	s := New()
	coll := model.CollectionDriverIterations

	require.NoError(t, s.InsertDocument(ctx, coll, doc(1, "a", model.Field{Key: "counter", Value: model.Int(1)})))
	require.NoError(t, s.InsertDocument(ctx, coll, doc(1, "b", model.Field{Key: "counter", Value: model.Int(5)})))
	require.NoError(t, s.InsertDocument(ctx, coll, doc(1, "a", model.Field{Key: "counter", Value: model.Int(3)})))
	require.NoError(t, s.InsertDocument(ctx, coll, doc(2, "a", model.Field{Key: "counter", Value: model.Int(9)})))

	all, err := s.FindDocuments(ctx, coll, registrystore.DocumentQuery{CaseID: 1})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	owned, err := s.FindDocuments(ctx, coll, registrystore.DocumentQuery{CaseID: 1, Owner: "a"})
	require.NoError(t, err)
	assert.Len(t, owned, 2)

	limited, err := s.FindDocuments(ctx, coll, registrystore.DocumentQuery{CaseID: 1, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	byField, err := s.FindDocuments(ctx, coll, registrystore.DocumentQuery{CaseID: 1, Field: "counter", Value: model.Int(3)})
	require.NoError(t, err)
	require.Len(t, byField, 1)

	maxCounter, ok, err := s.MaxCounter(ctx, coll, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(5), maxCounter)

	_, ok, err = s.MaxCounter(ctx, coll, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.DeleteDocuments(ctx, coll, registrystore.DocumentQuery{CaseID: 1, Owner: "a"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rest, err := s.FindDocuments(ctx, coll, registrystore.DocumentQuery{CaseID: 1})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, []string{"b"}, rest[0].Owners)

	other, err := s.FindDocuments(ctx, coll, registrystore.DocumentQuery{CaseID: 2})
	require.NoError(t, err)
	assert.Len(t, other, 1)
}
