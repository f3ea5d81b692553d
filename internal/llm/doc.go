// Package llm is the model-facing boundary of crashdoc.
//
// # Overview
//
// The package defines a Provider interface so the analyzer never depends on
// the transport directly. The only implementation is the local Ollama
// runtime in the ollama subpackage; NewProvider builds it from configuration.
//
//	┌──────────────┐
//	│ llm package  │  ← Provider interface, Message, errors
//	│              │  ← Factory: NewProvider()
//	└──────┬───────┘
//	       │
//	┌──────▼──────┐
//	│ llm/ollama  │  ← /api/chat over net/http, NDJSON Stream
//	└─────────────┘
//
// # Usage
//
//	provider, err := llm.NewProvider(cfg, logger)
//	if err != nil {
//	    return err
//	}
//
//	messages := []llm.Message{
//	    {Role: llm.RoleSystem, Content: systemPrompt},
//	    {Role: llm.RoleUser, Content: userPrompt},
//	}
//
//	stream, err := provider.ChatStream(ctx, messages, &llm.ChatOptions{
//	    Model:       "qwen3:4b",
//	    Temperature: 0.1,
//	})
//	if err != nil {
//	    return err
//	}
//	for chunk, err := range stream.All() {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Print(chunk.Content)
//	}
//
// # Error Handling
//
// Errors are sentinels wrapped with context; test them with errors.Is:
//
//   - ErrUnavailable: the runtime refused or could not be dialled
//   - ErrTimeout: the per-call timeout expired
//   - ErrProtocol: no valid chunk was ever received
//   - ErrStreamClosed: the stream ended without its done marker
//   - ErrInvalidRequest: rejected before any network activity
//   - ErrModelNotFound: the model has not been pulled
//   - ErrCanceled: the caller's context was canceled
//   - ErrServer: the runtime reported an error mid-response
//
// Non-2xx responses also carry an api.StatusError from the Ollama client
// library, reachable with errors.As.
package llm
