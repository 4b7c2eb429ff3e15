package model

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Collection names one of the fixed document groups scoped by case.
type Collection string

const (
	CollectionDriverIterations Collection = "driver_iterations"
	CollectionDriverMetadata   Collection = "driver_metadata"
	CollectionGlobalIterations Collection = "global_iterations"
	CollectionMetadata         Collection = "metadata"
	CollectionSolverIterations Collection = "solver_iterations"
	CollectionSolverMetadata   Collection = "solver_metadata"
	CollectionSystemIterations Collection = "system_iterations"
	CollectionSystemMetadata   Collection = "system_metadata"
	CollectionLayouts          Collection = "layouts"
)

// dependentCollections is the order in which a case's documents are removed
// before the case itself.
var dependentCollections = []Collection{
	CollectionDriverIterations,
	CollectionDriverMetadata,
	CollectionGlobalIterations,
	CollectionMetadata,
	CollectionSolverIterations,
	CollectionSolverMetadata,
	CollectionSystemIterations,
	CollectionSystemMetadata,
	CollectionLayouts,
}

// Collections returns every document collection in cascade-delete order.
func Collections() []Collection {
	return slices.Clone(dependentCollections)
}

// ParseCollection validates a collection name.
func ParseCollection(name string) (Collection, error) {
	c := Collection(strings.TrimSpace(name))
	if slices.Contains(dependentCollections, c) {
		return c, nil
	}
	return "", fmt.Errorf("unknown collection %q", name)
}

// IsIteration reports whether documents in c carry an iteration counter.
func (c Collection) IsIteration() bool {
	switch c {
	case CollectionDriverIterations, CollectionSystemIterations, CollectionSolverIterations, CollectionGlobalIterations:
		return true
	}
	return false
}

// Envelope field names stamped onto every stored document.
const (
	FieldCaseID = "case_id"
	FieldDate   = "date"
	FieldOwners = "owners"
	FieldID     = "_id"

	FieldCaseName            = "case_name"
	FieldIterationCoordinate = "iteration_coordinate"
	FieldCounter             = "counter"
	FieldSolverClass         = "solver_class"
)

// EnvelopeFields are never taken from a caller payload.
var EnvelopeFields = []string{FieldID, FieldCaseID, FieldDate, FieldOwners}

// User is a registered token holder.
type User struct {
	Token  string `json:"token"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Active bool   `json:"active"`
}

// Case is one recorded optimization run.
type Case struct {
	ID      int64     `json:"case_id"`
	Name    string    `json:"case_name"`
	Date    time.Time `json:"date"`
	Owners  []string  `json:"owners"`
	Payload Payload   `json:"-"`
}

// HasOwner reports whether token is in the case's owner set.
func (c Case) HasOwner(token string) bool {
	return slices.Contains(c.Owners, token)
}

// Flatten renders the case the way callers wrote it, with the envelope
// merged into the payload.
func (c Case) Flatten() map[string]any {
	out := c.Payload.Map()
	out[FieldCaseID] = c.ID
	out[FieldCaseName] = c.Name
	out[FieldDate] = c.Date.UTC().Format(time.RFC3339Nano)
	out[FieldOwners] = slices.Clone(c.Owners)
	return out
}

// Document is the generic envelope around a payload stored in a collection.
type Document struct {
	ID        string    `json:"-"`
	CaseID    int64     `json:"case_id"`
	Timestamp time.Time `json:"date"`
	Owners    []string  `json:"owners"`
	Payload   Payload   `json:"-"`
}

func (d Document) HasOwner(token string) bool {
	return slices.Contains(d.Owners, token)
}

// Flatten merges the envelope into the payload for the wire.
func (d Document) Flatten() map[string]any {
	out := d.Payload.Map()
	out[FieldCaseID] = d.CaseID
	out[FieldDate] = d.Timestamp.UTC().Format(time.RFC3339Nano)
	out[FieldOwners] = slices.Clone(d.Owners)
	return out
}
