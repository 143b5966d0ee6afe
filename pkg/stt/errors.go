package stt

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions.
var (
	// ErrEmptyAudio is returned when there is no audio to transcribe.
	ErrEmptyAudio = errors.New("stt: empty audio")

	// ErrEmptyTranscript is returned when the collaborator produced
	// no usable text.
	ErrEmptyTranscript = errors.New("stt: empty transcript")
)

// APIError represents an error response from the transcription API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stt: API error %d: %s", e.StatusCode, e.Message)
}

// IsServerError returns true for server-side failures (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// WrapError adds package context to an error.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("stt: %w", err)
}
