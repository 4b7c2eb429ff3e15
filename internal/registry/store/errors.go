package store

import (
	"errors"
	"fmt"
)

// NotFoundError indicates the resource was not found (or the token lacks access).
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ForbiddenError indicates the token is unknown, inactive, or not an owner.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	if e.Reason == "" {
		return "forbidden"
	}
	return "forbidden: " + e.Reason
}

// ExhaustedError indicates that no unused identifier was found within the
// attempt bound.
type ExhaustedError struct {
	Resource string
	Attempts int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("could not allocate a unique %s after %d attempts", e.Resource, e.Attempts)
}

// MalformedError indicates stored data that cannot be decoded.
type MalformedError struct {
	Resource string
	ID       string
	Reason   string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed %s %q: %s", e.Resource, e.ID, e.Reason)
}

// ConflictError indicates a uniqueness violation.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// ErrNotConnected is returned by the local-file backend when no file is open.
var ErrNotConnected = errors.New("not connected to a recording file")

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}
