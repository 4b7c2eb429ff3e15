package service

import (
	"context"

	"github.com/chirino/case-recorder/internal/model"
)

// ChangeTracker answers polling clients without decoding any iteration.
type ChangeTracker struct {
	source IterationSource
}

func NewChangeTracker(source IterationSource) *ChangeTracker {
	return &ChangeTracker{source: source}
}

// HasNewData reports whether caseID has a driver iteration with a counter
// above since.
func (t *ChangeTracker) HasNewData(ctx context.Context, caseID int64, since int64) (bool, error) {
	return t.HasNewDataIn(ctx, model.CollectionDriverIterations, caseID, since)
}

// HasNewDataIn is HasNewData for any iteration collection.
func (t *ChangeTracker) HasNewDataIn(ctx context.Context, coll model.Collection, caseID int64, since int64) (bool, error) {
	if !coll.IsIteration() {
		return false, nil
	}
	return t.source.CounterAbove(ctx, coll, caseID, since)
}
