package reason

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrEmptyQuestion is returned when there is no question text.
	ErrEmptyQuestion = errors.New("reason: empty question")

	// ErrProtocol is returned when the collaborator's response shape
	// violates the contract: a payload with neither an answer nor an
	// error field.
	ErrProtocol = errors.New("reason: response contained neither answer nor error")
)

// ModelError is a failure the collaborator itself reported in the
// error field of an otherwise well-formed response.
type ModelError struct {
	Message string
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("reason: model error: %s", e.Message)
}

// APIError represents a transport-level error response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("reason: API error %d: %s", e.StatusCode, e.Message)
}

// WrapError adds package context to an error.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("reason: %w", err)
}
