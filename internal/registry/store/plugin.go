package store

import (
	"context"
	"fmt"

	"github.com/chirino/case-recorder/internal/model"
)

// DocumentQuery selects documents of one case by exact match.
type DocumentQuery struct {
	CaseID int64
	// Owner restricts matches to documents whose owner set contains it.
	// Empty matches any owner.
	Owner string
	// Field, when set, additionally requires payload[Field] == Value.
	Field string
	Value model.Value
	// Limit caps the number of documents returned; zero means no limit.
	Limit int
}

// Backend is the storage primitive set the case services are built on.
// Implementations perform exact-match queries only; authorization is
// decided by the caller.
type Backend interface {
	// Users
	InsertUser(ctx context.Context, user model.User) error
	FindUserByToken(ctx context.Context, token string) (*model.User, error)
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
	SetUserActive(ctx context.Context, token string, active bool) error
	DeleteUser(ctx context.Context, token string) (bool, error)

	// Cases
	InsertCase(ctx context.Context, c model.Case) error
	FindCase(ctx context.Context, caseID int64) (*model.Case, error)
	ListCasesByOwner(ctx context.Context, token string) ([]model.Case, error)
	UpdateCaseName(ctx context.Context, caseID int64, name string) (bool, error)
	DeleteCase(ctx context.Context, caseID int64) (bool, error)

	// Documents
	FindDocuments(ctx context.Context, coll model.Collection, q DocumentQuery) ([]model.Document, error)
	InsertDocument(ctx context.Context, coll model.Collection, doc model.Document) error
	DeleteDocuments(ctx context.Context, coll model.Collection, q DocumentQuery) (int64, error)
	// MaxCounter returns the highest counter stored for the case, and
	// false when the case has no counted documents in coll.
	MaxCounter(ctx context.Context, coll model.Collection, caseID int64) (int64, bool, error)

	Close(ctx context.Context) error
}

// Loader creates a Backend from config.
type Loader func(ctx context.Context) (Backend, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
