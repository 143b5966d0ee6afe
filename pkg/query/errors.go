package query

import (
	"context"
	"errors"
	"fmt"
)

// Stage identifies one collaborator call in the pipeline.
type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StageReason     Stage = "reason"
	StageSynthesize Stage = "synthesize"
)

// Sentinel errors.
var (
	// ErrNoAudio is returned when a query carries no audio payload.
	ErrNoAudio = errors.New("query: no audio provided")
)

// StageError is a pipeline failure attributed to one stage. It wraps
// the collaborator's error, so errors.Is/As still reach the cause.
type StageError struct {
	Stage Stage
	Err   error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("query: stage %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the stage failed by exceeding its deadline.
func (e *StageError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// StorageError is a failure writing or reading pipeline scratch data.
type StorageError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("query: storage %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage a pipeline error failed in, or "" if the
// error is not a stage failure.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// IsTimeout reports whether a pipeline error was a stage timeout.
func IsTimeout(err error) bool {
	var se *StageError
	return errors.As(err, &se) && se.Timeout()
}
