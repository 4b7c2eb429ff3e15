package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/chirino/case-recorder/internal/model"
)

// CachedIterations holds the decoded iterations of one case collection
// together with the highest counter they cover.
type CachedIterations struct {
	Records    []model.IterationRecord `json:"records"`
	MaxCounter int64                   `json:"max_counter"`
}

// Key identifies a cached collection of one case.
func Key(coll model.Collection, caseID int64) string {
	return "case-iterations:" + string(coll) + ":" + strconv.FormatInt(caseID, 10)
}

// IterationCache caches decoded iteration records so repeated polls skip the
// decode step.
type IterationCache interface {
	Available() bool
	Get(ctx context.Context, key string) (*CachedIterations, error)
	Set(ctx context.Context, key string, value CachedIterations, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
}

// Loader creates a cache from config.
type Loader func(ctx context.Context) (IterationCache, error)

// Plugin represents a cache plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a cache plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered cache plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named cache plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown cache %q; valid: %v", name, Names())
}
