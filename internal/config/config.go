// Package config provides environment-driven configuration for the
// sightline server. Values come from the process environment, with an
// optional .env file loaded by the entrypoint before parsing.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

// Config holds all server settings.
type Config struct {
	// Server
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":5080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	// Storage
	DataDir       string `env:"DATA_DIR" envDefault:"data"`
	FrameCapacity int    `env:"FRAME_CAPACITY" envDefault:"10"`

	// Transcription collaborator (OpenAI-compatible Whisper endpoint)
	STTBaseURL string        `env:"STT_BASE_URL" envDefault:"http://localhost:8081/v1"`
	STTAPIKey  string        `env:"STT_API_KEY"`
	STTModel   string        `env:"STT_MODEL" envDefault:"whisper-1"`
	STTTimeout time.Duration `env:"STT_TIMEOUT" envDefault:"60s"`

	// Reasoning collaborator (Ollama generate API)
	ReasonBaseURL string        `env:"REASON_BASE_URL" envDefault:"http://localhost:11434"`
	ReasonModel   string        `env:"REASON_MODEL" envDefault:"llava"`
	ReasonTimeout time.Duration `env:"REASON_TIMEOUT" envDefault:"120s"`

	// Synthesis collaborator (OpenAI-style speech endpoint)
	TTSBaseURL string        `env:"TTS_BASE_URL" envDefault:"https://api.openai.com/v1"`
	TTSAPIKey  string        `env:"TTS_API_KEY"`
	TTSModel   string        `env:"TTS_MODEL" envDefault:"tts-1"`
	TTSVoice   string        `env:"TTS_VOICE" envDefault:"shimmer"`
	TTSTimeout time.Duration `env:"TTS_TIMEOUT" envDefault:"30s"`

	// When true, queries with no visual context have the prompt prefixed
	// with a note telling the model no image is available.
	AnnounceMissingFrame bool `env:"ANNOUNCE_MISSING_FRAME" envDefault:"false"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that cannot be expressed as tag defaults.
func (c *Config) Validate() error {
	if c.FrameCapacity < 1 {
		return fmt.Errorf("config: FRAME_CAPACITY must be at least 1, got %d", c.FrameCapacity)
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: DATA_DIR must not be empty")
	}
	return nil
}
