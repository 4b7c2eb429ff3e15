package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/case-recorder/internal/config"
	"github.com/chirino/case-recorder/internal/model"
	"github.com/chirino/case-recorder/internal/plugin/cache/noop"
	"github.com/chirino/case-recorder/internal/plugin/store/metrics"
	registrycache "github.com/chirino/case-recorder/internal/registry/cache"
	registrymigrate "github.com/chirino/case-recorder/internal/registry/migrate"
	registrystore "github.com/chirino/case-recorder/internal/registry/store"
	"github.com/chirino/case-recorder/internal/security"
)

// Service is the operation surface consumed by the presentation layer.
// Failures collapse to the empty results callers expect: -1 for case ids,
// empty objects and lists, and false. The underlying kind is logged.
type Service struct {
	backend registrystore.Backend
	cache   registrycache.IterationCache

	Tokens      *TokenRegistry
	Cases       *CaseStore
	Collections *CollectionStore
	Iterations  *IterationService
	Changes     *ChangeTracker
}

// New assembles a Service over backend. Limits come from the config in ctx.
// A nil cache disables caching.
func New(ctx context.Context, backend registrystore.Backend, cache registrycache.IterationCache) *Service {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		d := config.DefaultConfig()
		cfg = &d
	}
	if cache == nil {
		cache = noop.New()
	}
	guarded := guardCache(cache)
	maxAttempts := cfg.ResolvedMaxIDAttempts()

	tokens := NewTokenRegistry(backend, maxAttempts, cfg.TokenLength)
	cases := NewCaseStore(backend, tokens, guarded, maxAttempts)
	tokens.cases = cases
	source := BackendSource(backend)

	return &Service{
		backend:     backend,
		cache:       guarded,
		Tokens:      tokens,
		Cases:       cases,
		Collections: NewCollectionStore(backend, tokens, cases, guarded),
		Iterations:  NewIterationService(source, guarded, cfg.CacheTTL),
		Changes:     NewChangeTracker(source),
	}
}

// Load selects the configured store and cache plugins and builds a Service.
// Migrations run first when DatastoreMigrateAtStart is set.
func Load(ctx context.Context) (*Service, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, errors.New("service: no config in context")
	}
	labels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("metrics labels: %w", err)
	}
	security.InitMetrics(labels)

	if cfg.DatastoreMigrateAtStart {
		if err := registrymigrate.RunAll(ctx); err != nil {
			return nil, err
		}
	}
	storeLoader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	backend, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", cfg.DatastoreType, err)
	}
	cacheLoader, err := registrycache.Select(cfg.CacheType)
	if err != nil {
		backend.Close(ctx)
		return nil, err
	}
	cache, err := cacheLoader(ctx)
	if err != nil {
		backend.Close(ctx)
		return nil, fmt.Errorf("cache %s: %w", cfg.CacheType, err)
	}
	log.Info("Case store ready", "store", cfg.DatastoreType, "cache", cfg.CacheType)
	return New(ctx, metrics.Wrap(backend), cache), nil
}

// Close releases the backend.
func (s *Service) Close(ctx context.Context) error {
	return s.backend.Close(ctx)
}

func collapse(op string, err error) {
	var (
		notFound  *registrystore.NotFoundError
		forbidden *registrystore.ForbiddenError
		exhausted *registrystore.ExhaustedError
		malformed *registrystore.MalformedError
	)
	switch {
	case errors.As(err, &notFound):
		log.Debug("Operation found nothing", "op", op, "err", err)
	case errors.As(err, &forbidden), errors.As(err, &exhausted), errors.As(err, &malformed):
		log.Warn("Operation refused", "op", op, "err", err)
	case errors.Is(err, registrystore.ErrNotConnected):
		log.Warn("Operation on disconnected store", "op", op)
	default:
		log.Error("Operation failed", "op", op, "err", err)
	}
}

// RegisterUser creates an inactive user and returns the new token.
func (s *Service) RegisterUser(ctx context.Context, name, email string) (string, error) {
	return s.Tokens.Register(ctx, name, email)
}

func (s *Service) Activate(ctx context.Context, token string) {
	if err := s.Tokens.Activate(ctx, token); err != nil {
		collapse("activate", err)
	}
}

func (s *Service) TokenExists(ctx context.Context, token string) bool {
	ok, err := s.Tokens.Exists(ctx, token)
	if err != nil {
		collapse("token_exists", err)
	}
	return ok
}

func (s *Service) IsActive(ctx context.Context, token string) bool {
	ok, err := s.Tokens.IsActive(ctx, token)
	if err != nil {
		collapse("is_active", err)
	}
	return ok
}

// GetUser returns the user owning token, or nil.
func (s *Service) GetUser(ctx context.Context, token string) *model.User {
	u, err := s.Tokens.Get(ctx, token)
	if err != nil {
		collapse("get_user", err)
		return nil
	}
	return u
}

// DeleteToken removes token and every case it can access.
func (s *Service) DeleteToken(ctx context.Context, token string) {
	if err := s.Tokens.Delete(ctx, token); err != nil {
		collapse("delete_token", err)
	}
}

// CreateCase returns the new case id, or -1.
func (s *Service) CreateCase(ctx context.Context, payload model.Payload, token string) int64 {
	id, err := s.Cases.Create(ctx, payload, token)
	if err != nil {
		collapse("create_case", err)
		return -1
	}
	return id
}

// GetCase returns the case as a flat object, or an empty object.
func (s *Service) GetCase(ctx context.Context, caseID int64, token string) map[string]any {
	c, err := s.Cases.Get(ctx, caseID, token)
	if err != nil {
		collapse("get_case", err)
		return map[string]any{}
	}
	return c.Flatten()
}

// ListCases returns the cases token owns.
func (s *Service) ListCases(ctx context.Context, token string) []map[string]any {
	cases, err := s.Cases.ListForToken(ctx, token)
	if err != nil {
		collapse("list_cases", err)
	}
	out := make([]map[string]any, 0, len(cases))
	for _, c := range cases {
		out = append(out, c.Flatten())
	}
	return out
}

// RenameCase is not token checked.
func (s *Service) RenameCase(ctx context.Context, caseID int64, name string) bool {
	ok, err := s.Cases.Rename(ctx, caseID, name)
	if err != nil {
		collapse("rename_case", err)
	}
	return ok
}

func (s *Service) DeleteCase(ctx context.Context, caseID int64, token string) bool {
	ok, err := s.Cases.Delete(ctx, caseID, token)
	if err != nil {
		collapse("delete_case", err)
	}
	return ok
}

// GenericGet returns a list of flat documents when many is set, otherwise
// the first document or an empty object.
func (s *Service) GenericGet(ctx context.Context, collection string, caseID int64, token string, many bool) any {
	coll, err := model.ParseCollection(collection)
	if err != nil {
		log.Warn("Unknown collection", "collection", collection)
		if many {
			return []map[string]any{}
		}
		return map[string]any{}
	}
	if !many {
		doc, err := s.Collections.GetOne(ctx, coll, caseID, token)
		if err != nil {
			collapse("generic_get", err)
			return map[string]any{}
		}
		return doc.Flatten()
	}
	docs, err := s.Collections.Get(ctx, coll, caseID, token)
	if err != nil {
		collapse("generic_get", err)
	}
	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Flatten())
	}
	return out
}

// GenericCreate stores payload, replacing by the payload-derived key when
// update is set.
func (s *Service) GenericCreate(ctx context.Context, collection string, payload model.Payload, caseID int64, token string, update bool) bool {
	return s.GenericCreateWith(ctx, collection, payload, caseID, token, CreateOptions{Update: update})
}

// GenericCreateWith is GenericCreate with explicit options.
func (s *Service) GenericCreateWith(ctx context.Context, collection string, payload model.Payload, caseID int64, token string, opts CreateOptions) bool {
	coll, err := model.ParseCollection(collection)
	if err != nil {
		log.Warn("Unknown collection", "collection", collection)
		return false
	}
	if err := s.Collections.Create(ctx, coll, payload, caseID, token, opts); err != nil {
		collapse("generic_create", err)
		return false
	}
	return true
}

func (s *Service) GenericDelete(ctx context.Context, collection string, caseID int64, token string) bool {
	coll, err := model.ParseCollection(collection)
	if err != nil {
		log.Warn("Unknown collection", "collection", collection)
		return false
	}
	ok, err := s.Collections.Delete(ctx, coll, caseID, token)
	if err != nil {
		collapse("generic_delete", err)
	}
	return ok
}

func (s *Service) GetDriverIterationData(ctx context.Context, caseID int64) []model.IterationRecord {
	return s.iterations(ctx, "driver_iterations", model.CollectionDriverIterations, caseID)
}

func (s *Service) GetSystemIterationData(ctx context.Context, caseID int64) []model.IterationRecord {
	return s.iterations(ctx, "system_iterations", model.CollectionSystemIterations, caseID)
}

func (s *Service) iterations(ctx context.Context, op string, coll model.Collection, caseID int64) []model.IterationRecord {
	records, err := s.Iterations.Iterations(ctx, coll, caseID)
	if err != nil {
		collapse(op, err)
		return []model.IterationRecord{}
	}
	return records
}

// IsNewData reports whether a driver iteration newer than since exists.
func (s *Service) IsNewData(ctx context.Context, caseID int64, since int64) bool {
	ok, err := s.Changes.HasNewData(ctx, caseID, since)
	if err != nil {
		collapse("is_new_data", err)
	}
	return ok
}

// GetMetadata returns abs2prom and prom2abs with dotted keys, or an empty
// object.
func (s *Service) GetMetadata(ctx context.Context, caseID int64) map[string]any {
	meta, err := s.Iterations.Metadata(ctx, caseID)
	if err != nil {
		collapse("get_metadata", err)
		return map[string]any{}
	}
	return map[string]any{"abs2prom": meta.Abs2Prom, "prom2abs": meta.Prom2Abs}
}

func (s *Service) GetVariables(ctx context.Context, caseID int64) model.VariableCatalog {
	cat, err := s.Iterations.Variables(ctx, caseID)
	if err != nil {
		collapse("get_variables", err)
	}
	return cat
}

// GetVariableHistory returns the samples of variable. With since >= 0 it
// returns nothing unless newer driver iterations exist.
func (s *Service) GetVariableHistory(ctx context.Context, caseID int64, variable string, since int64) []model.VariableSample {
	var (
		samples []model.VariableSample
		err     error
	)
	if since >= 0 {
		samples, err = s.Iterations.VariableHistorySince(ctx, caseID, variable, since)
	} else {
		samples, err = s.Iterations.VariableHistory(ctx, caseID, variable)
	}
	if err != nil {
		collapse("get_variable_history", err)
		return []model.VariableSample{}
	}
	return samples
}

// UpdateLayout replaces the layout of an existing case.
func (s *Service) UpdateLayout(ctx context.Context, caseID int64, layout model.Payload) bool {
	bypass := security.BypassToken(ctx)
	if _, err := s.Cases.Get(ctx, caseID, bypass); err != nil {
		collapse("update_layout", err)
		return false
	}
	if _, err := s.backend.DeleteDocuments(ctx, model.CollectionLayouts, registrystore.DocumentQuery{CaseID: caseID}); err != nil {
		collapse("update_layout", err)
		return false
	}
	err := s.backend.InsertDocument(ctx, model.CollectionLayouts, model.Document{
		CaseID:    caseID,
		Timestamp: time.Now().UTC(),
		Owners:    []string{bypass},
		Payload:   layout.Without(model.EnvelopeFields...),
	})
	if err != nil {
		collapse("update_layout", err)
		return false
	}
	return true
}

// GetLayout reads the case layout with the bypass token.
func (s *Service) GetLayout(ctx context.Context, caseID int64) []map[string]any {
	docs, _ := s.GenericGet(ctx, string(model.CollectionLayouts), caseID, security.BypassToken(ctx), true).([]map[string]any)
	return docs
}
