package service

import (
	"context"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/case-recorder/internal/model"
	registrycache "github.com/chirino/case-recorder/internal/registry/cache"
	registrystore "github.com/chirino/case-recorder/internal/registry/store"
	"github.com/chirino/case-recorder/internal/security"
)

// CaseStore manages case documents and their ownership.
type CaseStore struct {
	backend     registrystore.Backend
	tokens      *TokenRegistry
	cache       registrycache.IterationCache
	maxAttempts int
	now         func() time.Time
}

func NewCaseStore(backend registrystore.Backend, tokens *TokenRegistry, cache registrycache.IterationCache, maxAttempts int) *CaseStore {
	return &CaseStore{backend: backend, tokens: tokens, cache: cache, maxAttempts: maxAttempts, now: time.Now}
}

// Create stores payload as a new case owned by token and returns its id.
func (s *CaseStore) Create(ctx context.Context, payload model.Payload, token string) (int64, error) {
	active, err := s.tokens.IsActive(ctx, token)
	if err != nil {
		return 0, err
	}
	if !active {
		security.RecordDenied("create_case")
		return 0, &registrystore.ForbiddenError{Reason: "token is unknown or inactive"}
	}

	c := model.Case{
		Date:    s.now().UTC(),
		Owners:  []string{token},
		Payload: payload.Without(model.EnvelopeFields...),
	}
	if v, ok := payload.Get(model.FieldCaseName); ok {
		c.Name, _ = v.Str()
	}

	for retry := 0; ; retry++ {
		c.ID, err = Allocate(ctx, "case", s.maxAttempts, RandomCaseID, s.exists)
		if err != nil {
			return 0, err
		}
		err = s.backend.InsertCase(ctx, c)
		if err == nil {
			log.Info("Created case", "case", c.ID, "owner", security.Redact(token))
			return c.ID, nil
		}
		if !registrystore.IsConflict(err) || retry >= insertRetries {
			return 0, err
		}
	}
}

func (s *CaseStore) exists(ctx context.Context, caseID int64) (bool, error) {
	_, err := s.backend.FindCase(ctx, caseID)
	return found(err)
}

// Get returns the case when token owns it or is the bypass token. Missing
// and inaccessible cases both yield a NotFoundError.
func (s *CaseStore) Get(ctx context.Context, caseID int64, token string) (*model.Case, error) {
	c, err := s.backend.FindCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !c.HasOwner(token) && !security.IsBypass(ctx, token) {
		security.RecordDenied("get_case")
		return nil, &registrystore.NotFoundError{Resource: "case", ID: strconv.FormatInt(caseID, 10)}
	}
	return c, nil
}

// visible reports whether token may read caseID.
func (s *CaseStore) visible(ctx context.Context, caseID int64, token string) (bool, error) {
	_, err := s.Get(ctx, caseID, token)
	return found(err)
}

// ListForToken returns every case token owns, oldest first.
func (s *CaseStore) ListForToken(ctx context.Context, token string) ([]model.Case, error) {
	if token == "" {
		return nil, nil
	}
	return s.backend.ListCasesByOwner(ctx, token)
}

// Rename sets the display name of an existing case. No token is checked.
func (s *CaseStore) Rename(ctx context.Context, caseID int64, name string) (bool, error) {
	return s.backend.UpdateCaseName(ctx, caseID, name)
}

// Delete removes every document of the case from all collections and then
// the case itself. Only an owner may delete. The sequence is not atomic: a
// failure part way leaves the remaining documents behind.
func (s *CaseStore) Delete(ctx context.Context, caseID int64, token string) (bool, error) {
	c, err := s.backend.FindCase(ctx, caseID)
	if registrystore.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !c.HasOwner(token) {
		security.RecordDenied("delete_case")
		return false, nil
	}

	for _, coll := range model.Collections() {
		n, err := s.backend.DeleteDocuments(ctx, coll, registrystore.DocumentQuery{CaseID: caseID})
		if err != nil {
			log.Error("Failed deleting case documents", "case", caseID, "collection", coll, "err", err)
			continue
		}
		invalidate(ctx, s.cache, coll, caseID)
		if n > 0 {
			log.Debug("Deleted case documents", "case", caseID, "collection", coll, "count", n)
		}
	}

	deleted, err := s.backend.DeleteCase(ctx, caseID)
	if err != nil {
		return false, err
	}
	if deleted {
		log.Info("Deleted case", "case", caseID)
	}
	return deleted, nil
}
