package reason

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sightline-ai/go-sightline/internal/httpc"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434"

	// ModelLLaVA is the default multimodal reasoning model.
	ModelLLaVA = "llava"
)

// Ollama implements Provider against the Ollama generate API.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

// Option configures the Ollama provider.
type Option func(*Ollama)

// WithBaseURL overrides the default Ollama base URL.
func WithBaseURL(url string) Option {
	return func(o *Ollama) {
		o.baseURL = strings.TrimRight(url, "/")
	}
}

// WithModel sets the reasoning model.
func WithModel(model string) Option {
	return func(o *Ollama) {
		o.model = model
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Ollama) {
		o.client = client
	}
}

// WithLogger sets the structured logger for the provider.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Ollama) {
		o.logger = logger
	}
}

// NewOllama creates an Ollama reasoning provider.
func NewOllama(opts ...Option) (*Ollama, error) {
	o := &Ollama{
		baseURL: defaultOllamaBaseURL,
		model:   ModelLLaVA,
		client:  httpc.Client,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "reason.ollama")
	return o, nil
}

// generateRequest is the wire format of the generate call.
type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images,omitempty"`
	Stream bool     `json:"stream"`
}

// generateResponse distinguishes absent fields from empty ones, since
// the contract turns on which fields are present.
type generateResponse struct {
	Response *string `json:"response"`
	Error    *string `json:"error"`
}

// Generate answers a question, optionally grounded on an image.
func (o *Ollama) Generate(ctx context.Context, question string, image []byte) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", ErrEmptyQuestion
	}

	payload := generateRequest{
		Model:  o.model,
		Prompt: question,
		Stream: false,
	}
	if len(image) > 0 {
		payload.Images = []string{base64.StdEncoding.EncodeToString(image)}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", WrapError(fmt.Errorf("marshal payload: %w", err))
	}

	url := o.baseURL + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", WrapError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := o.client.Do(req)
	if err != nil {
		return "", WrapError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", WrapError(fmt.Errorf("read response: %w", err))
	}

	var result generateResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		// Not even JSON. Transport errors keep their status code.
		if resp.StatusCode != http.StatusOK {
			return "", &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return "", fmt.Errorf("%w: %s", ErrProtocol, truncate(raw))
	}

	// Collaborator-reported failure wins over transport status; Ollama
	// reports model errors with non-200 codes and an error field.
	if result.Error != nil {
		return "", &ModelError{Message: *result.Error}
	}
	if result.Response != nil {
		o.logger.Debug("generated answer",
			"question_chars", len(question),
			"answer_chars", len(*result.Response),
			"has_image", len(image) > 0,
			"latency_ms", time.Since(start).Milliseconds(),
		)
		return *result.Response, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	return "", fmt.Errorf("%w: %s", ErrProtocol, truncate(raw))
}

// Health checks that the Ollama server is reachable.
func (o *Ollama) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return WrapError(err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return WrapError(fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return nil
}

// Close releases resources.
func (o *Ollama) Close() error {
	o.client.CloseIdleConnections()
	return nil
}

func truncate(raw []byte) string {
	const max = 200
	s := strings.TrimSpace(string(raw))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// Verify Ollama implements Provider at compile time.
var _ Provider = (*Ollama)(nil)
