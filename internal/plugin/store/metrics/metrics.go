package metrics

import (
	"context"
	"time"

	"github.com/chirino/case-recorder/internal/model"
	"github.com/chirino/case-recorder/internal/registry/store"
	"github.com/chirino/case-recorder/internal/security"
)

// Wrap returns a Backend that records StoreLatency for every operation.
func Wrap(inner store.Backend) store.Backend {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.Backend
}

func observe(op string, start time.Time) {
	if security.StoreLatency == nil {
		return
	}
	security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *metricsStore) InsertUser(ctx context.Context, user model.User) error {
	defer observe("insert_user", time.Now())
	return m.inner.InsertUser(ctx, user)
}

func (m *metricsStore) FindUserByToken(ctx context.Context, token string) (*model.User, error) {
	defer observe("find_user", time.Now())
	return m.inner.FindUserByToken(ctx, token)
}

func (m *metricsStore) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	defer observe("find_user", time.Now())
	return m.inner.FindUserByEmail(ctx, email)
}

func (m *metricsStore) SetUserActive(ctx context.Context, token string, active bool) error {
	defer observe("set_user_active", time.Now())
	return m.inner.SetUserActive(ctx, token, active)
}

func (m *metricsStore) DeleteUser(ctx context.Context, token string) (bool, error) {
	defer observe("delete_user", time.Now())
	return m.inner.DeleteUser(ctx, token)
}

func (m *metricsStore) InsertCase(ctx context.Context, c model.Case) error {
	defer observe("insert_case", time.Now())
	return m.inner.InsertCase(ctx, c)
}

func (m *metricsStore) FindCase(ctx context.Context, caseID int64) (*model.Case, error) {
	defer observe("find_case", time.Now())
	return m.inner.FindCase(ctx, caseID)
}

func (m *metricsStore) ListCasesByOwner(ctx context.Context, token string) ([]model.Case, error) {
	defer observe("list_cases", time.Now())
	return m.inner.ListCasesByOwner(ctx, token)
}

func (m *metricsStore) UpdateCaseName(ctx context.Context, caseID int64, name string) (bool, error) {
	defer observe("update_case_name", time.Now())
	return m.inner.UpdateCaseName(ctx, caseID, name)
}

func (m *metricsStore) DeleteCase(ctx context.Context, caseID int64) (bool, error) {
	defer observe("delete_case", time.Now())
	return m.inner.DeleteCase(ctx, caseID)
}

func (m *metricsStore) FindDocuments(ctx context.Context, coll model.Collection, q store.DocumentQuery) ([]model.Document, error) {
	defer observe("find_documents", time.Now())
	return m.inner.FindDocuments(ctx, coll, q)
}

func (m *metricsStore) InsertDocument(ctx context.Context, coll model.Collection, doc model.Document) error {
	defer observe("insert_document", time.Now())
	return m.inner.InsertDocument(ctx, coll, doc)
}

func (m *metricsStore) DeleteDocuments(ctx context.Context, coll model.Collection, q store.DocumentQuery) (int64, error) {
	defer observe("delete_documents", time.Now())
	return m.inner.DeleteDocuments(ctx, coll, q)
}

func (m *metricsStore) MaxCounter(ctx context.Context, coll model.Collection, caseID int64) (int64, bool, error) {
	defer observe("max_counter", time.Now())
	return m.inner.MaxCounter(ctx, coll, caseID)
}

func (m *metricsStore) Close(ctx context.Context) error {
	return m.inner.Close(ctx)
}

var _ store.Backend = (*metricsStore)(nil)
