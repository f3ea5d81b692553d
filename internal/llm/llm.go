package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/bimmerbailey/crashdoc/internal/config"
	"github.com/bimmerbailey/crashdoc/internal/llm/ollama"
)

// Provider defines the interface for model interactions.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Chat sends messages and returns a complete response.
	Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error)

	// ChatStream sends messages and returns a lazy stream of chunks. The
	// caller must Close the stream.
	ChatStream(ctx context.Context, messages []Message, opts *ChatOptions) (Stream, error)

	// Heartbeat checks if the provider is reachable.
	Heartbeat(ctx context.Context) error

	// ModelAvailable reports whether model is ready to use locally.
	ModelAvailable(ctx context.Context, model string) (bool, error)

	// ListModels returns the locally available models.
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// Stream is a lazy, finite, non-restartable sequence of chunks. It completes
// only on an explicit done marker from the server.
type Stream interface {
	Next() bool
	Chunk() Chunk
	Err() error
	Close() error
	All() iter.Seq2[Chunk, error]
}

// Chunk is one incremental fragment of a streamed response. Concatenating
// Content in arrival order reproduces the full response.
type Chunk = ollama.Chunk

// ModelInfo describes a locally available model.
type ModelInfo = ollama.ModelInfo

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	// Role is RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the message text.
	Content string
}

// ChatOptions configures chat behavior.
// All fields are optional; nil opts uses provider defaults.
type ChatOptions struct {
	// Model overrides the configured model.
	Model string

	// Temperature controls randomness. Diagnosis uses 0.1.
	Temperature float32

	// JSONMode constrains output to a JSON object.
	JSONMode bool

	// Schema constrains output to a JSON schema. It implies JSONMode.
	Schema json.RawMessage

	// Think enables the model's thinking phase where supported.
	Think bool
}

// Response represents a complete model response.
type Response struct {
	Content      string
	Thinking     string
	Model        string
	DoneReason   string
	PromptTokens int
	EvalTokens   int
	Duration     time.Duration
}

// Errors returned by providers. They are shared with the ollama package so
// errors.Is works across the boundary.
var (
	// ErrUnavailable indicates the model runtime is not reachable.
	ErrUnavailable = ollama.ErrUnavailable

	// ErrTimeout indicates the per-call timeout expired.
	ErrTimeout = ollama.ErrTimeout

	// ErrProtocol indicates a response with no valid chunk.
	ErrProtocol = ollama.ErrProtocol

	// ErrStreamClosed indicates the stream ended before the done marker.
	ErrStreamClosed = ollama.ErrStreamClosed

	// ErrInvalidRequest indicates the request was rejected before sending.
	ErrInvalidRequest = ollama.ErrInvalidRequest

	// ErrModelNotFound indicates the requested model is not available.
	ErrModelNotFound = ollama.ErrModelNotFound

	// ErrCanceled indicates the operation was canceled via context.
	ErrCanceled = ollama.ErrCanceled

	// ErrServer indicates the runtime reported an error mid-response.
	ErrServer = ollama.ErrServer
)

// ValidateMessages checks a conversation before it is sent: it must not be
// empty, every role must be known, and a system message may only appear
// first.
func ValidateMessages(messages []Message) error {
	if len(messages) == 0 {
		return fmt.Errorf("%w: messages cannot be empty", ErrInvalidRequest)
	}
	for i, m := range messages {
		switch m.Role {
		case RoleSystem:
			if i != 0 {
				return fmt.Errorf("%w: system message at position %d, must be first", ErrInvalidRequest, i)
			}
		case RoleUser, RoleAssistant:
		default:
			return fmt.Errorf("%w: unknown role %q at position %d", ErrInvalidRequest, m.Role, i)
		}
	}
	return nil
}

// NewProvider creates a provider from the configuration.
// The logger is used for debug and error messages.
func NewProvider(cfg *config.Config, logger *slog.Logger) (Provider, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	timeout, err := cfg.LLM.TimeoutDuration()
	if err != nil {
		return nil, err
	}

	var keepAlive time.Duration
	if cfg.LLM.Ollama.KeepAlive != "" {
		keepAlive, err = config.ParseDuration(cfg.LLM.Ollama.KeepAlive)
		if err != nil {
			return nil, fmt.Errorf("invalid llm.ollama.keep_alive: %w", err)
		}
	}

	logger.Debug("creating llm provider", "host", cfg.LLM.Ollama.Host, "model", cfg.LLM.Model, "timeout", timeout)

	client, err := ollama.New(ollama.Config{
		Host:      cfg.LLM.Ollama.Host,
		Model:     cfg.LLM.Model,
		Timeout:   timeout,
		KeepAlive: keepAlive,
		NumCtx:    cfg.LLM.Ollama.NumCtx,
	}, logger)
	if err != nil {
		return nil, err
	}
	return &ollamaProviderAdapter{client: client}, nil
}

// ollamaProviderAdapter adapts ollama.Client to the Provider interface.
type ollamaProviderAdapter struct {
	client *ollama.Client
}

func toRequest(messages []Message, opts *ChatOptions) (ollama.Request, error) {
	if err := ValidateMessages(messages); err != nil {
		return ollama.Request{}, err
	}

	req := ollama.Request{Messages: make([]ollama.Message, len(messages))}
	for i, m := range messages {
		req.Messages[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}
	if opts != nil {
		req.Model = opts.Model
		req.Temperature = opts.Temperature
		req.JSONMode = opts.JSONMode || len(opts.Schema) > 0
		req.Schema = opts.Schema
		req.Think = opts.Think
	}
	return req, nil
}

func (a *ollamaProviderAdapter) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error) {
	req, err := toRequest(messages, opts)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Chat(ctx, req)
	if err != nil {
		return nil, err
	}

	return &Response{
		Content:      resp.Content,
		Thinking:     resp.Thinking,
		Model:        resp.Model,
		DoneReason:   resp.DoneReason,
		PromptTokens: resp.PromptTokens,
		EvalTokens:   resp.EvalTokens,
		Duration:     resp.TotalDuration,
	}, nil
}

func (a *ollamaProviderAdapter) ChatStream(ctx context.Context, messages []Message, opts *ChatOptions) (Stream, error) {
	req, err := toRequest(messages, opts)
	if err != nil {
		return nil, err
	}

	s, err := a.client.ChatStream(ctx, req)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (a *ollamaProviderAdapter) Heartbeat(ctx context.Context) error {
	return a.client.Heartbeat(ctx)
}

func (a *ollamaProviderAdapter) ModelAvailable(ctx context.Context, model string) (bool, error) {
	return a.client.ModelAvailable(ctx, model)
}

func (a *ollamaProviderAdapter) ListModels(ctx context.Context) ([]ModelInfo, error) {
	return a.client.List(ctx)
}
