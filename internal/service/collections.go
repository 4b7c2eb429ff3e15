package service

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/case-recorder/internal/model"
	registrycache "github.com/chirino/case-recorder/internal/registry/cache"
	registrystore "github.com/chirino/case-recorder/internal/registry/store"
	"github.com/chirino/case-recorder/internal/security"
)

// replaceKeyPrecedence is the order in which payload fields are tried as the
// replace key of an update write.
var replaceKeyPrecedence = []string{
	model.FieldIterationCoordinate,
	model.FieldCounter,
	model.FieldSolverClass,
}

// CreateOptions controls how Create treats existing documents.
type CreateOptions struct {
	// Update replaces existing documents of the case that share the replace
	// key with the new payload.
	Update bool
	// ReplaceKey names the payload field to match on. When empty it is
	// picked from the payload: iteration_coordinate, then counter, then
	// solver_class. A payload with none of them replaces every document of
	// the case in the collection.
	ReplaceKey string
}

// CollectionStore is owner-scoped CRUD over the case collections.
type CollectionStore struct {
	backend registrystore.Backend
	tokens  *TokenRegistry
	cases   *CaseStore
	cache   registrycache.IterationCache
	now     func() time.Time
}

func NewCollectionStore(backend registrystore.Backend, tokens *TokenRegistry, cases *CaseStore, cache registrycache.IterationCache) *CollectionStore {
	return &CollectionStore{backend: backend, tokens: tokens, cases: cases, cache: cache, now: time.Now}
}

func (s *CollectionStore) query(ctx context.Context, caseID int64, token string) registrystore.DocumentQuery {
	q := registrystore.DocumentQuery{CaseID: caseID}
	if !security.IsBypass(ctx, token) {
		q.Owner = token
	}
	return q
}

// Get returns the documents of caseID in coll that token owns. The bypass
// token sees every document of the case.
func (s *CollectionStore) Get(ctx context.Context, coll model.Collection, caseID int64, token string) ([]model.Document, error) {
	if token == "" {
		return nil, nil
	}
	return s.backend.FindDocuments(ctx, coll, s.query(ctx, caseID, token))
}

// GetOne returns the first matching document, or a NotFoundError.
func (s *CollectionStore) GetOne(ctx context.Context, coll model.Collection, caseID int64, token string) (*model.Document, error) {
	if token == "" {
		return nil, &registrystore.NotFoundError{Resource: string(coll), ID: "case"}
	}
	q := s.query(ctx, caseID, token)
	q.Limit = 1
	docs, err := s.backend.FindDocuments(ctx, coll, q)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, &registrystore.NotFoundError{Resource: string(coll), ID: "case"}
	}
	return &docs[0], nil
}

// Create stores payload in coll under caseID, owned by token. The bypass
// token cannot write.
func (s *CollectionStore) Create(ctx context.Context, coll model.Collection, payload model.Payload, caseID int64, token string, opts CreateOptions) error {
	if security.IsBypass(ctx, token) {
		security.RecordDenied("create_document")
		return &registrystore.ForbiddenError{Reason: "read-only token"}
	}
	exists, err := s.tokens.Exists(ctx, token)
	if err != nil {
		return err
	}
	if !exists {
		security.RecordDenied("create_document")
		log.Warn("Unknown token, not storing document", "collection", coll, "case", caseID)
		return &registrystore.ForbiddenError{Reason: "unknown token"}
	}

	if opts.Update {
		visible, err := s.cases.visible(ctx, caseID, token)
		if err != nil {
			return err
		}
		if !visible {
			security.RecordDenied("update_document")
			return &registrystore.ForbiddenError{Reason: "case is not accessible"}
		}
		q := ReplaceQuery(caseID, payload, opts.ReplaceKey)
		n, err := s.backend.DeleteDocuments(ctx, coll, q)
		if err != nil {
			return err
		}
		log.Debug("Replaced documents", "collection", coll, "case", caseID, "key", q.Field, "count", n)
	}

	doc := model.Document{
		CaseID:    caseID,
		Timestamp: s.now().UTC(),
		Owners:    []string{token},
		Payload:   payload.Without(model.EnvelopeFields...),
	}
	if err := s.backend.InsertDocument(ctx, coll, doc); err != nil {
		return err
	}
	invalidate(ctx, s.cache, coll, caseID)
	return nil
}

// ReplaceQuery selects the documents an update write of payload replaces.
// An explicit key is used only when the payload carries it.
func ReplaceQuery(caseID int64, payload model.Payload, explicitKey string) registrystore.DocumentQuery {
	q := registrystore.DocumentQuery{CaseID: caseID}
	keys := replaceKeyPrecedence
	if explicitKey != "" {
		keys = append([]string{explicitKey}, replaceKeyPrecedence...)
	}
	for _, key := range keys {
		if v, ok := payload.Get(key); ok {
			q.Field, q.Value = key, v
			return q
		}
	}
	return q
}

// Delete removes the documents of caseID in coll that token owns and reports
// whether any were removed. The bypass token cannot delete, including the
// layouts stored under it.
func (s *CollectionStore) Delete(ctx context.Context, coll model.Collection, caseID int64, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	if security.IsBypass(ctx, token) {
		security.RecordDenied("delete_document")
		return false, &registrystore.ForbiddenError{Reason: "read-only token"}
	}
	n, err := s.backend.DeleteDocuments(ctx, coll, registrystore.DocumentQuery{CaseID: caseID, Owner: token})
	if err != nil {
		return false, err
	}
	if n > 0 {
		invalidate(ctx, s.cache, coll, caseID)
	}
	return n > 0, nil
}
