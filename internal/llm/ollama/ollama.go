// Package ollama is the chat transport for a local Ollama server.
//
// Chat requests go straight to /api/chat over net/http using the wire types
// from github.com/ollama/ollama/api, so that a streamed response can be
// consumed as a lazy [Stream] that tolerates malformed lines and only
// completes on an explicit done marker. Model listing and the heartbeat are
// delegated to api.Client.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
)

const (
	// DefaultModel is used when neither the config nor the request names one.
	DefaultModel = "qwen3:4b"

	// maxErrorBody bounds how much of a non-2xx body is read for the message.
	maxErrorBody = 64 << 10

	// maxResponseBody bounds a non-streaming response.
	maxResponseBody = 32 << 20
)

// Client talks to one Ollama server.
type Client struct {
	base   *url.URL
	http   *http.Client
	api    *api.Client
	config Config
	logger *slog.Logger
}

// Config holds Ollama-specific configuration.
type Config struct {
	// Host is the Ollama endpoint (e.g. "http://localhost:11434"). Empty
	// falls back to OLLAMA_HOST and then the Ollama default.
	Host string

	// Model is the default model.
	Model string

	// Timeout bounds each call from connect to the last byte read. Zero
	// means no limit beyond the caller's context.
	Timeout time.Duration

	// KeepAlive controls how long the server keeps the model loaded after
	// the call. Zero uses the server default; negative keeps it loaded.
	KeepAlive time.Duration

	// NumCtx overrides the context window size when positive.
	NumCtx int

	// HTTPClient replaces the default client. Tests use it.
	HTTPClient *http.Client
}

// Message is a single chat message.
type Message struct {
	Role    string
	Content string
}

// Request describes one chat call.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float32

	// JSONMode asks the server to constrain output to JSON. Schema, when
	// set, is sent instead of "json" and constrains output to that schema.
	JSONMode bool
	Schema   json.RawMessage

	// Think enables the model's thinking phase. Thinking text is delivered
	// separately from content.
	Think bool
}

// Chunk is one incremental fragment of a streamed response. Metrics are
// only set on the final chunk.
type Chunk struct {
	Content      string
	Thinking     string
	Done         bool
	DoneReason   string
	Model        string
	PromptTokens int
	EvalTokens   int
}

// Response is a complete chat response.
type Response struct {
	Content       string
	Thinking      string
	Model         string
	DoneReason    string
	PromptTokens  int
	EvalTokens    int
	TotalDuration time.Duration
}

// ModelInfo describes a locally available model.
type ModelInfo struct {
	Name          string    `json:"name" yaml:"name"`
	Size          int64     `json:"size" yaml:"size"`
	ModifiedAt    time.Time `json:"modified_at" yaml:"modified_at"`
	Family        string    `json:"family,omitempty" yaml:"family,omitempty"`
	ParameterSize string    `json:"parameter_size,omitempty" yaml:"parameter_size,omitempty"`
	Quantization  string    `json:"quantization,omitempty" yaml:"quantization,omitempty"`
}

// New creates a client. The logger must not be nil.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	var base *url.URL
	if cfg.Host != "" {
		parsed, err := url.Parse(cfg.Host)
		if err != nil {
			logger.Error("invalid ollama host URL", "host", cfg.Host, "error", err)
			return nil, fmt.Errorf("invalid ollama host: %w", err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("invalid ollama host %q: want scheme://host:port", cfg.Host)
		}
		base = parsed
	} else {
		base = envconfig.Host()
		logger.Debug("using ollama host from environment", "host", base.String())
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}

	if cfg.Model == "" {
		cfg.Model = DefaultModel
		logger.Debug("using default model", "model", cfg.Model)
	}

	return &Client{
		base:   base,
		http:   httpClient,
		api:    api.NewClient(base, httpClient),
		config: cfg,
		logger: logger,
	}, nil
}

// Host returns the server base URL.
func (c *Client) Host() string {
	return c.base.String()
}

// Close releases idle connections held by the client.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// Chat sends a non-streaming request and returns the complete response.
func (c *Client) Chat(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.post(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, classifyRead(ctx, err, 0)
	}

	line, err := decodeLine(bytes.TrimSpace(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if line.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrServer, line.Error)
	}

	c.logger.Debug("chat request completed",
		"model", line.Model,
		"prompt_tokens", line.PromptEvalCount,
		"eval_tokens", line.EvalCount)

	return &Response{
		Content:       line.Message.Content,
		Thinking:      line.Message.Thinking,
		Model:         line.Model,
		DoneReason:    line.DoneReason,
		PromptTokens:  line.PromptEvalCount,
		EvalTokens:    line.EvalCount,
		TotalDuration: line.TotalDuration,
	}, nil
}

// ChatStream sends a streaming request and returns once the server has
// answered with a 2xx status. Chunks are read lazily by the returned Stream,
// which the caller must Close.
func (c *Client) ChatStream(ctx context.Context, req Request) (*Stream, error) {
	ctx, cancel := c.withTimeout(ctx)

	resp, err := c.post(ctx, req, true)
	if err != nil {
		cancel()
		return nil, err
	}

	return newStream(ctx, cancel, resp.Body, c.logger), nil
}

// post validates req, sends it and checks the status. On success the caller
// owns resp.Body.
func (c *Client) post(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	if req.Model == "" {
		req.Model = c.config.Model
	}
	body, err := c.encode(req, stream)
	if err != nil {
		return nil, err
	}

	endpoint := c.base.JoinPath("/api/chat")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "application/x-ndjson")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}

	c.logger.Debug("sending chat request",
		"host", c.base.String(),
		"model", req.Model,
		"messages", len(req.Messages),
		"stream", stream,
		"json_mode", req.JSONMode || len(req.Schema) > 0)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		cerr := classify(ctx, c.base.Host, err)
		c.logger.Error("chat request failed", "error", cerr, "model", req.Model)
		return nil, cerr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var payload struct {
			Error string `json:"error"`
		}
		msg := string(bytes.TrimSpace(data))
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		serr := statusError(resp.StatusCode, resp.Status, msg)
		c.logger.Error("chat request rejected", "status", resp.StatusCode, "error", msg, "model", req.Model)
		return nil, serr
	}

	return resp, nil
}

// encode builds the wire body. It fails with ErrInvalidRequest before any
// network activity.
func (c *Client) encode(req Request, stream bool) ([]byte, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: messages cannot be empty", ErrInvalidRequest)
	}

	messages := make([]api.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = api.Message{Role: m.Role, Content: m.Content}
	}

	wire := api.ChatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   &stream,
		Think:    &api.ThinkValue{Value: req.Think},
		Options: map[string]any{
			"temperature": req.Temperature,
		},
	}
	if c.config.NumCtx > 0 {
		wire.Options["num_ctx"] = c.config.NumCtx
	}
	switch {
	case len(req.Schema) > 0:
		if !json.Valid(req.Schema) {
			return nil, fmt.Errorf("%w: schema is not valid JSON", ErrInvalidRequest)
		}
		wire.Format = req.Schema
	case req.JSONMode:
		wire.Format = json.RawMessage(`"json"`)
	}
	if c.config.KeepAlive != 0 {
		wire.KeepAlive = &api.Duration{Duration: c.config.KeepAlive}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return body, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.Timeout > 0 {
		return context.WithTimeout(ctx, c.config.Timeout)
	}
	return context.WithCancel(ctx)
}

// Heartbeat checks if the Ollama service is reachable.
func (c *Client) Heartbeat(ctx context.Context) error {
	c.logger.Debug("checking ollama heartbeat", "host", c.base.String())

	if err := c.api.Heartbeat(ctx); err != nil {
		c.logger.Error("ollama heartbeat failed", "error", err)
		return classify(ctx, c.base.Host, err)
	}
	return nil
}

// List returns the locally available models.
func (c *Client) List(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.api.List(ctx)
	if err != nil {
		c.logger.Error("failed to list models", "error", err)
		return nil, classify(ctx, c.base.Host, err)
	}

	models := make([]ModelInfo, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, ModelInfo{
			Name:          m.Name,
			Size:          m.Size,
			ModifiedAt:    m.ModifiedAt,
			Family:        m.Details.Family,
			ParameterSize: m.Details.ParameterSize,
			Quantization:  m.Details.QuantizationLevel,
		})
	}
	return models, nil
}

// ModelAvailable reports whether model has been pulled. A bare name matches
// its ":latest" tag.
func (c *Client) ModelAvailable(ctx context.Context, model string) (bool, error) {
	models, err := c.List(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range models {
		if m.Name == model || m.Name == model+":latest" {
			return true, nil
		}
	}
	c.logger.Debug("model not found", "model", model, "available_count", len(models))
	return false, nil
}
