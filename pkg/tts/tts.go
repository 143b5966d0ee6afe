// Package tts provides a narrow interface to the speech-synthesis
// collaborator, turning the reasoning model's answer into audio.
//
// The HTTP implementation targets OpenAI-style speech endpoints. A
// function-field Mock is provided for tests.
//
// Example usage:
//
//	provider, _ := tts.NewOpenAI(
//	    tts.WithAPIKey(os.Getenv("TTS_API_KEY")),
//	    tts.WithVoice(tts.VoiceShimmer),
//	)
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, "Hello world")
//	// result.Audio contains MP3 bytes
package tts

import (
	"context"
	"time"
)

// Provider defines the synthesis collaborator interface.
type Provider interface {
	// Synthesize converts text to audio, returning the complete
	// audio buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult represents a complete synthesis result.
type AudioResult struct {
	// Audio contains the raw audio data in the specified format.
	Audio []byte

	// Format describes the audio encoding.
	Format AudioFormat

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the synthesis round-trip time in milliseconds.
	LatencyMs int64
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	// Encoding specifies the audio codec.
	Encoding Encoding

	// SampleRate in Hz.
	SampleRate int

	// Channels is 1 for mono, 2 for stereo.
	Channels int
}

// Encoding represents audio encoding types.
type Encoding string

const (
	// EncodingMP3 is MP3 at 44.1kHz, the default response format.
	EncodingMP3 Encoding = "mp3"

	// EncodingOpus is the Opus codec.
	EncodingOpus Encoding = "opus"

	// EncodingAAC is AAC in an ADTS container.
	EncodingAAC Encoding = "aac"
)

// ContentType returns the HTTP content type for an encoding.
func (e Encoding) ContentType() string {
	switch e {
	case EncodingOpus:
		return "audio/ogg"
	case EncodingAAC:
		return "audio/aac"
	default:
		return "audio/mpeg"
	}
}

// EstimateDuration gives a rough playback length for a synthesized
// answer, assuming conversational pacing.
func EstimateDuration(charCount int) time.Duration {
	return time.Duration(charCount) * 60 * time.Millisecond
}
