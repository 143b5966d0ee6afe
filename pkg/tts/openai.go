package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sightline-ai/go-sightline/internal/httpc"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAI voice options.
const (
	VoiceAlloy   = "alloy"
	VoiceEcho    = "echo"
	VoiceNova    = "nova"
	VoiceShimmer = "shimmer"
)

// OpenAI model options.
const (
	ModelTTS1   = "tts-1"    // Standard quality, faster
	ModelTTS1HD = "tts-1-hd" // Higher quality, slower
)

// OpenAI implements Provider against an OpenAI-style speech endpoint.
type OpenAI struct {
	baseURL string
	apiKey  string
	model   string
	voice   string
	format  Encoding
	client  *http.Client
	logger  *slog.Logger
}

// Option configures the OpenAI provider.
type Option func(*OpenAI)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(o *OpenAI) {
		o.baseURL = strings.TrimRight(url, "/")
	}
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *OpenAI) {
		o.apiKey = key
	}
}

// WithModel sets the synthesis model.
func WithModel(model string) Option {
	return func(o *OpenAI) {
		o.model = model
	}
}

// WithVoice sets the voice.
func WithVoice(voice string) Option {
	return func(o *OpenAI) {
		o.voice = voice
	}
}

// WithOutputFormat sets the audio output encoding.
func WithOutputFormat(format Encoding) Option {
	return func(o *OpenAI) {
		o.format = format
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *OpenAI) {
		o.client = client
	}
}

// WithLogger sets the structured logger for the provider.
func WithLogger(logger *slog.Logger) Option {
	return func(o *OpenAI) {
		o.logger = logger
	}
}

// NewOpenAI creates an OpenAI speech-synthesis provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	o := &OpenAI{
		baseURL: defaultOpenAIBaseURL,
		model:   ModelTTS1,
		voice:   VoiceShimmer,
		format:  EncodingMP3,
		client:  httpc.Client,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	o.logger = o.logger.With("component", "tts.openai")
	return o, nil
}

// Synthesize converts text to audio, returning the complete audio buffer.
func (o *OpenAI) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	start := time.Now()

	payload := map[string]any{
		"model":           o.model,
		"voice":           o.voice,
		"input":           text,
		"response_format": string(o.format),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(fmt.Errorf("marshal payload: %w", err))
	}

	url := o.baseURL + "/audio/speech"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, WrapError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, o.parseError(resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(fmt.Errorf("read response: %w", err))
	}

	latency := time.Since(start).Milliseconds()
	o.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", o.voice,
	)

	return &AudioResult{
		Audio: audio,
		Format: AudioFormat{
			Encoding:   o.format,
			SampleRate: 44100,
			Channels:   1,
		},
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

// Health checks API connectivity.
func (o *OpenAI) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/models", nil)
	if err != nil {
		return WrapError(err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return WrapError(fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return o.parseError(resp)
	}
	return nil
}

// Close releases resources.
func (o *OpenAI) Close() error {
	o.client.CloseIdleConnections()
	return nil
}

// parseError reads and parses an error response.
func (o *OpenAI) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	message := strings.TrimSpace(string(body))
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		code = errResp.Error.Code
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
	}
}

// Verify OpenAI implements Provider at compile time.
var _ Provider = (*OpenAI)(nil)
