package diafano

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/eldiafano/diafano/internal/storage"
)

// ErrNotFound is returned when a story, outlet or personaje does not exist.
var ErrNotFound = storage.ErrNotFound

// AuthError means the caller did not present the shared write secret.
type AuthError struct{}

func (*AuthError) Error() string { return "Unauthorized" }

// Issue is one failed validation rule, addressed by JSON field name.
type Issue struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError carries every rule a payload broke.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "invalid payload"
	}
	first := e.Issues[0]
	if len(e.Issues) == 1 {
		return fmt.Sprintf("invalid payload: %s %s", first.Path, first.Message)
	}
	return fmt.Sprintf("invalid payload: %s %s (and %d more)", first.Path, first.Message, len(e.Issues)-1)
}

// DatabaseError wraps a storage failure on a write path. Its message is
// safe to show; the cause is only for logs.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string { return e.Op + ": database error" }

func (e *DatabaseError) Unwrap() error { return e.Err }

// HTTPStatus maps an engine error to the status a write endpoint answers with.
func HTTPStatus(err error) int {
	var (
		authErr  *AuthError
		validErr *ValidationError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &validErr):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
