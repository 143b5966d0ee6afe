package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sightline-ai/go-sightline/internal/httpc"
)

const (
	defaultWhisperBaseURL = "https://api.openai.com/v1"

	// ModelWhisper1 is the hosted Whisper transcription model.
	ModelWhisper1 = "whisper-1"
)

// Whisper implements Provider against an OpenAI-compatible
// /audio/transcriptions endpoint.
type Whisper struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

// Option configures the Whisper provider.
type Option func(*Whisper)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(w *Whisper) {
		w.baseURL = strings.TrimRight(url, "/")
	}
}

// WithAPIKey sets the bearer token. Local whisper.cpp servers need none.
func WithAPIKey(key string) Option {
	return func(w *Whisper) {
		w.apiKey = key
	}
}

// WithModel sets the transcription model.
func WithModel(model string) Option {
	return func(w *Whisper) {
		w.model = model
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(w *Whisper) {
		w.client = client
	}
}

// WithLogger sets the structured logger for the provider.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Whisper) {
		w.logger = logger
	}
}

// NewWhisper creates a Whisper transcription provider.
func NewWhisper(opts ...Option) (*Whisper, error) {
	w := &Whisper{
		baseURL: defaultWhisperBaseURL,
		model:   ModelWhisper1,
		client:  httpc.Client,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "stt.whisper")
	return w, nil
}

// Transcribe converts spoken audio into text.
func (w *Whisper) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	if audio == nil {
		return "", ErrEmptyAudio
	}
	if filename == "" {
		filename = "audio.wav"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", WrapError(fmt.Errorf("create form file: %w", err))
	}
	n, err := io.Copy(part, audio)
	if err != nil {
		return "", WrapError(fmt.Errorf("copy audio: %w", err))
	}
	if n == 0 {
		return "", ErrEmptyAudio
	}
	if err := writer.WriteField("model", w.model); err != nil {
		return "", WrapError(fmt.Errorf("write model field: %w", err))
	}
	if err := writer.WriteField("response_format", "json"); err != nil {
		return "", WrapError(fmt.Errorf("write format field: %w", err))
	}
	if err := writer.Close(); err != nil {
		return "", WrapError(fmt.Errorf("close multipart: %w", err))
	}

	url := w.baseURL + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", WrapError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	start := time.Now()
	resp, err := w.client.Do(req)
	if err != nil {
		return "", WrapError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", w.parseError(resp)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", WrapError(fmt.Errorf("decode response: %w", err))
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}

	w.logger.Debug("transcribed audio",
		"audio_bytes", n,
		"chars", len(text),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

// Health checks API reachability.
func (w *Whisper) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/models", nil)
	if err != nil {
		return WrapError(err)
	}
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return WrapError(fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return w.parseError(resp)
	}
	return nil
}

// Close releases resources.
func (w *Whisper) Close() error {
	w.client.CloseIdleConnections()
	return nil
}

// parseError reads and parses an error response.
func (w *Whisper) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	message := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
	}
}

// Verify Whisper implements Provider at compile time.
var _ Provider = (*Whisper)(nil)
