package service

import (
	"context"
	"crypto/rand"
	"math/big"

	"github.com/charmbracelet/log"
	registrystore "github.com/chirino/case-recorder/internal/registry/store"
	"github.com/chirino/case-recorder/internal/security"
)

// DefaultMaxIDAttempts bounds identifier allocation when no config is given.
const DefaultMaxIDAttempts = 1000

// maxCaseID is the largest case identifier, 2^31-1.
const maxCaseID = 1<<31 - 1

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Allocate returns the first generated value for which exists reports false.
// It gives up with an ExhaustedError after maxAttempts candidates.
func Allocate[V any](ctx context.Context, resource string, maxAttempts int, generate func() (V, error), exists func(ctx context.Context, v V) (bool, error)) (V, error) {
	var zero V
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxIDAttempts
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		candidate, err := generate()
		if err != nil {
			return zero, err
		}
		taken, err := exists(ctx, candidate)
		if err != nil {
			return zero, err
		}
		if !taken {
			security.RecordAllocation(resource, attempt)
			return candidate, nil
		}
	}
	security.RecordAllocation(resource, maxAttempts)
	log.Warn("Identifier allocation exhausted", "resource", resource, "attempts", maxAttempts)
	return zero, &registrystore.ExhaustedError{Resource: resource, Attempts: maxAttempts}
}

// RandomToken returns length characters drawn from A-Z and 0-9.
func RandomToken(length int) (string, error) {
	out := make([]byte, length)
	limit := big.NewInt(int64(len(tokenAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		out[i] = tokenAlphabet[n.Int64()]
	}
	return string(out), nil
}

// RandomCaseID returns a uniformly chosen integer in [0, 2^31-1].
func RandomCaseID() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(maxCaseID+1))
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}
