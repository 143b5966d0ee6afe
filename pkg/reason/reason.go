// Package reason provides a narrow interface to the vision-reasoning
// collaborator: given a transcribed question and at most one image, it
// returns the model's textual answer.
//
// The HTTP implementation targets the Ollama generate API with a
// multimodal model such as llava. A function-field Mock is provided
// for tests.
package reason

import "context"

// Provider defines the reasoning collaborator interface.
type Provider interface {
	// Generate answers a question, optionally grounded on an image.
	// A nil image means the question is answered without visual
	// context; that is a supported mode, not an error.
	Generate(ctx context.Context, question string, image []byte) (string, error)

	// Health checks collaborator connectivity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}
