package service

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/case-recorder/internal/model"
	registrystore "github.com/chirino/case-recorder/internal/registry/store"
	"github.com/chirino/case-recorder/internal/security"
)

// DefaultTokenLength is the length of generated tokens.
const DefaultTokenLength = 10

// insertRetries bounds re-allocation after a storage-level uniqueness
// conflict on insert.
const insertRetries = 3

// TokenRegistry manages users and their tokens.
type TokenRegistry struct {
	backend     registrystore.Backend
	maxAttempts int
	tokenLength int
	cases       *CaseStore
}

func NewTokenRegistry(backend registrystore.Backend, maxAttempts, tokenLength int) *TokenRegistry {
	if tokenLength <= 0 {
		tokenLength = DefaultTokenLength
	}
	return &TokenRegistry{backend: backend, maxAttempts: maxAttempts, tokenLength: tokenLength}
}

// Register creates an inactive user and returns its new token. It fails with
// a ConflictError when the email is already registered.
func (r *TokenRegistry) Register(ctx context.Context, name, email string) (string, error) {
	for retry := 0; ; retry++ {
		exists, err := r.EmailExists(ctx, email)
		if err != nil {
			return "", err
		}
		if exists {
			return "", &registrystore.ConflictError{Message: fmt.Sprintf("email %q already registered", email)}
		}

		token, err := Allocate(ctx, "token", r.maxAttempts, func() (string, error) {
			return RandomToken(r.tokenLength)
		}, r.Exists)
		if err != nil {
			return "", err
		}

		err = r.backend.InsertUser(ctx, model.User{Token: token, Name: name, Email: email, Active: false})
		if err == nil {
			log.Info("Registered user", "token", security.Redact(token))
			return token, nil
		}
		if !registrystore.IsConflict(err) || retry >= insertRetries {
			return "", err
		}
		log.Debug("Token insert conflicted, retrying", "retry", retry+1)
	}
}

// Exists reports whether token belongs to a registered user.
func (r *TokenRegistry) Exists(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	_, err := r.backend.FindUserByToken(ctx, token)
	return found(err)
}

// EmailExists reports whether a user with email is registered.
func (r *TokenRegistry) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := r.backend.FindUserByEmail(ctx, email)
	return found(err)
}

// Get returns the user owning token, or a NotFoundError.
func (r *TokenRegistry) Get(ctx context.Context, token string) (*model.User, error) {
	return r.backend.FindUserByToken(ctx, token)
}

// Activate marks the user owning token as active.
func (r *TokenRegistry) Activate(ctx context.Context, token string) error {
	if err := r.backend.SetUserActive(ctx, token, true); err != nil {
		return err
	}
	log.Info("Activated user", "token", security.Redact(token))
	return nil
}

// IsActive is false for unknown tokens.
func (r *TokenRegistry) IsActive(ctx context.Context, token string) (bool, error) {
	u, err := r.backend.FindUserByToken(ctx, token)
	if registrystore.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.Active, nil
}

// Delete removes token and every case it can access. A case shared with
// other owners is deleted for all of them.
func (r *TokenRegistry) Delete(ctx context.Context, token string) error {
	exists, err := r.Exists(ctx, token)
	if err != nil || !exists {
		return err
	}
	if r.cases != nil {
		owned, err := r.cases.ListForToken(ctx, token)
		if err != nil {
			return err
		}
		for _, c := range owned {
			if _, err := r.cases.Delete(ctx, c.ID, token); err != nil {
				log.Error("Failed deleting case of removed token", "case", c.ID, "err", err)
			}
		}
	}
	if _, err := r.backend.DeleteUser(ctx, token); err != nil {
		return err
	}
	log.Info("Deleted user", "token", security.Redact(token))
	return nil
}

// found turns a lookup error into an existence answer.
func found(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if registrystore.IsNotFound(err) {
		return false, nil
	}
	return false, err
}
