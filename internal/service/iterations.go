package service

import (
	"context"
	"slices"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/case-recorder/internal/iteration"
	"github.com/chirino/case-recorder/internal/model"
	"github.com/chirino/case-recorder/internal/plugin/cache/noop"
	registrycache "github.com/chirino/case-recorder/internal/registry/cache"
	registrystore "github.com/chirino/case-recorder/internal/registry/store"
	"github.com/chirino/case-recorder/internal/security"
)

// IterationSource supplies stored iterations and metadata of a case. The
// networked backends and recording files both implement it.
type IterationSource interface {
	IterationPayloads(ctx context.Context, coll model.Collection, caseID int64) ([]model.Payload, error)
	Metadata(ctx context.Context, caseID int64) (*model.Metadata, error)
	// CounterAbove reports whether any iteration of coll has a counter
	// greater than since, without loading iteration bodies.
	CounterAbove(ctx context.Context, coll model.Collection, caseID int64, since int64) (bool, error)
}

// BackendSource reads iterations from a Backend. Reads are not owner
// scoped.
func BackendSource(b registrystore.Backend) IterationSource {
	return backendSource{backend: b}
}

type backendSource struct {
	backend registrystore.Backend
}

func (s backendSource) IterationPayloads(ctx context.Context, coll model.Collection, caseID int64) ([]model.Payload, error) {
	docs, err := s.backend.FindDocuments(ctx, coll, registrystore.DocumentQuery{CaseID: caseID})
	if err != nil {
		return nil, err
	}
	out := make([]model.Payload, len(docs))
	for i, d := range docs {
		out[i] = d.Payload
	}
	slices.SortStableFunc(out, func(a, b model.Payload) int {
		return compareCounter(a, b)
	})
	return out, nil
}

func compareCounter(a, b model.Payload) int {
	ca, _ := a.Get(model.FieldCounter)
	cb, _ := b.Get(model.FieldCounter)
	fa, _ := ca.Float()
	fb, _ := cb.Float()
	switch {
	case fa < fb:
		return -1
	case fa > fb:
		return 1
	}
	return 0
}

func (s backendSource) Metadata(ctx context.Context, caseID int64) (*model.Metadata, error) {
	docs, err := s.backend.FindDocuments(ctx, model.CollectionMetadata, registrystore.DocumentQuery{CaseID: caseID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, &registrystore.NotFoundError{Resource: "metadata", ID: strconv.FormatInt(caseID, 10)}
	}
	return model.DecodeMetadata(docs[0].Payload)
}

func (s backendSource) CounterAbove(ctx context.Context, coll model.Collection, caseID int64, since int64) (bool, error) {
	maxCounter, ok, err := s.backend.MaxCounter(ctx, coll, caseID)
	if err != nil || !ok {
		return false, err
	}
	return maxCounter > since, nil
}

// IterationService decodes iterations for the visualization, caching the
// decoded form per case collection.
type IterationService struct {
	source IterationSource
	cache  *generationCache
	ttl    time.Duration
}

func NewIterationService(source IterationSource, cache registrycache.IterationCache, ttl time.Duration) *IterationService {
	if cache == nil {
		cache = noop.New()
	}
	return &IterationService{source: source, cache: guardCache(cache), ttl: ttl}
}

// DriverIterations returns the decoded driver iterations of caseID.
func (s *IterationService) DriverIterations(ctx context.Context, caseID int64) ([]model.IterationRecord, error) {
	return s.Iterations(ctx, model.CollectionDriverIterations, caseID)
}

// SystemIterations returns the decoded system iterations of caseID,
// including residuals.
func (s *IterationService) SystemIterations(ctx context.Context, caseID int64) ([]model.IterationRecord, error) {
	return s.Iterations(ctx, model.CollectionSystemIterations, caseID)
}

// Iterations decodes every iteration of coll in counter order. A cached
// result is reused until an iteration with a higher counter is stored.
func (s *IterationService) Iterations(ctx context.Context, coll model.Collection, caseID int64) ([]model.IterationRecord, error) {
	key := registrycache.Key(coll, caseID)
	gen := s.cache.generation(key)
	if s.cache.Available() {
		cached, err := s.cache.Get(ctx, key)
		if err != nil {
			log.Warn("Iteration cache read failed", "key", key, "err", err)
		}
		if cached != nil {
			stale, err := s.source.CounterAbove(ctx, coll, caseID, cached.MaxCounter)
			if err != nil {
				return nil, err
			}
			if !stale {
				security.RecordCacheHit(true)
				return cached.Records, nil
			}
		}
		security.RecordCacheHit(false)
	}

	payloads, err := s.source.IterationPayloads(ctx, coll, caseID)
	if err != nil {
		return nil, err
	}
	records := []model.IterationRecord{}
	maxCounter := int64(-1)
	if len(payloads) > 0 {
		meta, err := s.source.Metadata(ctx, caseID)
		if err != nil {
			return nil, err
		}
		raws := make([]model.RawIteration, 0, len(payloads))
		for _, p := range payloads {
			raw, err := iteration.FromPayload(p)
			if err != nil {
				return nil, err
			}
			raws = append(raws, raw)
			maxCounter = max(maxCounter, raw.Counter)
		}
		if records, err = iteration.DecodeAll(raws, meta); err != nil {
			return nil, err
		}
	}

	if s.cache.Available() {
		value := registrycache.CachedIterations{Records: records, MaxCounter: maxCounter}
		if err := s.cache.setIfCurrent(ctx, key, gen, value, s.ttl); err != nil {
			log.Warn("Iteration cache write failed", "key", key, "err", err)
		}
	}
	return records, nil
}

// Metadata returns the case metadata with stored key separators restored
// to dots.
func (s *IterationService) Metadata(ctx context.Context, caseID int64) (*model.Metadata, error) {
	meta, err := s.source.Metadata(ctx, caseID)
	if err != nil {
		return nil, err
	}
	normalized := meta.Normalized()
	return &normalized, nil
}

// VariableHistory returns every driver iteration sample of variable.
func (s *IterationService) VariableHistory(ctx context.Context, caseID int64, variable string) ([]model.VariableSample, error) {
	records, err := s.DriverIterations(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return iteration.VariableHistory(records, variable), nil
}

// VariableHistorySince is VariableHistory when a driver iteration newer than
// counter exists, and empty otherwise.
func (s *IterationService) VariableHistorySince(ctx context.Context, caseID int64, variable string, counter int64) ([]model.VariableSample, error) {
	fresh, err := s.source.CounterAbove(ctx, model.CollectionDriverIterations, caseID, counter)
	if err != nil {
		return nil, err
	}
	if !fresh {
		return []model.VariableSample{}, nil
	}
	return s.VariableHistory(ctx, caseID, variable)
}

// Variables lists the variable names recorded by the driver, by group.
func (s *IterationService) Variables(ctx context.Context, caseID int64) (model.VariableCatalog, error) {
	records, err := s.DriverIterations(ctx, caseID)
	if err != nil {
		return iteration.Catalog(nil), err
	}
	return iteration.Catalog(records), nil
}
