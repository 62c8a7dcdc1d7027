package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/charlie0129/lcqe/pkg/errdefs"
	"github.com/charlie0129/lcqe/pkg/result"
	"github.com/charlie0129/lcqe/pkg/types"
)

var (
	// ErrDaemonNotRunning is returned when the daemon is not running
	ErrDaemonNotRunning = errors.New("daemon not running")

	// ErrPermissionDenied is returned when the user does not have permission to perform the requested action
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned when 404 is returned from the daemon
	ErrNotFound = errors.New("404 not found")

	// ErrSuperseded is returned when a newer request replaced ours in the same session.
	ErrSuperseded = errors.New("superseded by a newer request")
)

// APIError is a failed daemon response.
type APIError struct {
	Status  int
	Kind    string
	Message string
	// Partial is set on ConvergenceError, holding the last iterate.
	Partial *result.Set
}

func newAPIError(status int, body []byte) *APIError {
	e := &APIError{Status: status}
	var eb types.ErrorResponse
	if err := json.Unmarshal(body, &eb); err != nil || eb.Kind == "" {
		e.Message = string(body)
		return e
	}
	e.Kind, e.Message = eb.Kind, eb.Message
	if eb.Partial != nil {
		if p, err := result.FromDocument(*eb.Partial); err == nil {
			e.Partial = p
		}
	}
	return e
}

func (e *APIError) Error() string {
	return fmt.Sprintf("got %d: %s", e.Status, e.Message)
}

// Is maps the error onto the sentinels of this package and of errdefs, so
// callers can use errors.Is the same way against the daemon or the library.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrSuperseded:
		return e.Status == http.StatusConflict
	case errdefs.ErrValidation:
		return e.Kind == "ValidationError"
	case errdefs.ErrGridMismatch:
		return e.Kind == "GridMismatchError"
	case errdefs.ErrInvalidCoupling:
		return e.Kind == "InvalidCouplingError"
	case errdefs.ErrConvergence:
		return e.Kind == "ConvergenceError"
	}
	return false
}
