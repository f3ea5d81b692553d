package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/ollama/ollama/api"
)

// Errors returned by the client. The llm package re-exports them.
var (
	// ErrUnavailable means the Ollama server could not be reached.
	ErrUnavailable = errors.New("ollama is not reachable")

	// ErrTimeout means the per-call timeout expired before the response
	// completed.
	ErrTimeout = errors.New("ollama request timed out")

	// ErrProtocol means the response contained no valid chunk at all.
	ErrProtocol = errors.New("ollama response is not valid")

	// ErrStreamClosed means the connection ended before the done marker.
	ErrStreamClosed = errors.New("stream ended before completion")

	// ErrInvalidRequest means the request was rejected before any network
	// activity.
	ErrInvalidRequest = errors.New("invalid chat request")

	// ErrModelNotFound means the server does not have the requested model.
	ErrModelNotFound = errors.New("model not found")

	// ErrCanceled means the caller canceled the context.
	ErrCanceled = errors.New("request was canceled")

	// ErrServer means the server reported an error in the response body.
	ErrServer = errors.New("ollama reported an error")
)

const serveHint = "start it first: ollama serve"

// classify maps a transport error to one of the package errors, keeping the
// original error in the chain.
func classify(ctx context.Context, host string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, context.Canceled), errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w at %s (%s): %w", ErrUnavailable, host, serveHint, err)
}

// statusError converts a non-2xx response into an api.StatusError. A 404 is
// additionally marked with ErrModelNotFound.
func statusError(code int, status string, message string) error {
	if message == "" {
		message = http.StatusText(code)
	}
	se := api.StatusError{StatusCode: code, Status: status, ErrorMessage: message}
	if code == http.StatusNotFound {
		return fmt.Errorf("%w: %w", ErrModelNotFound, se)
	}
	return se
}
