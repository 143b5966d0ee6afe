// Package stt provides a narrow interface to the transcription
// collaborator, turning a recorded spoken question into text.
//
// The HTTP implementation targets OpenAI-compatible transcription
// endpoints, which covers both the hosted Whisper API and a local
// whisper.cpp server. A function-field Mock is provided for tests.
//
// Example usage:
//
//	provider, _ := stt.NewWhisper(
//	    stt.WithBaseURL("http://localhost:8081/v1"),
//	    stt.WithModel(stt.ModelWhisper1),
//	)
//	defer provider.Close()
//
//	text, _ := provider.Transcribe(ctx, audioReader, "question.wav")
package stt

import (
	"context"
	"io"
)

// Provider defines the transcription collaborator interface.
type Provider interface {
	// Transcribe converts spoken audio into text. The filename hint
	// carries the container format (e.g. "question.wav") so the
	// collaborator can decode the bytes.
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)

	// Health checks collaborator connectivity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}
