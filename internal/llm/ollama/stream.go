package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"

	"github.com/ollama/ollama/api"
)

// maxLineSize bounds a single NDJSON line.
const maxLineSize = 4 << 20

// StreamState is the lifecycle position of a Stream.
type StreamState int

const (
	// StateStreaming: connected, zero or more chunks delivered.
	StateStreaming StreamState = iota
	// StateDone: the server sent done:true. Terminal.
	StateDone
	// StateFailed: the stream ended without done:true or hit an error. Terminal.
	StateFailed
	// StateClosed: the consumer closed the stream before it finished. Terminal.
	StateClosed
)

func (s StreamState) String() string {
	switch s {
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("StreamState(%d)", int(s))
	}
}

// Stream is a lazy, finite, non-restartable sequence of chunks read from an
// NDJSON chat response.
//
// Lines that are not valid JSON are skipped. The stream completes only when a
// line carries done:true; after that no further bytes are read and the
// connection is released. If the body ends first the stream fails with
// ErrStreamClosed, or ErrProtocol when no valid chunk was ever seen.
//
// Typical use:
//
//	defer s.Close()
//	for s.Next() {
//	    fmt.Print(s.Chunk().Content)
//	}
//	if err := s.Err(); err != nil { ... }
//
// A Stream is not safe for concurrent use. To abort it from another
// goroutine, cancel the context passed to ChatStream.
type Stream struct {
	ctx     context.Context
	cancel  context.CancelFunc
	body    io.ReadCloser
	scanner *bufio.Scanner
	logger  *slog.Logger

	state     StreamState
	chunk     Chunk
	err       error
	received  int
	malformed int
	line      int

	closeOnce sync.Once
}

func newStream(ctx context.Context, cancel context.CancelFunc, body io.ReadCloser, logger *slog.Logger) *Stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	return &Stream{
		ctx:     ctx,
		cancel:  cancel,
		body:    body,
		scanner: scanner,
		logger:  logger,
		state:   StateStreaming,
	}
}

// Next advances to the next chunk. It returns false once the stream is done,
// failed or closed; check Err to tell them apart.
func (s *Stream) Next() bool {
	if s.state != StateStreaming {
		return false
	}

	for s.scanner.Scan() {
		s.line++
		raw := bytes.TrimSpace(s.scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		line, err := decodeLine(raw)
		if err != nil {
			s.malformed++
			s.logger.Debug("skipping malformed stream line", "line", s.line, "error", err)
			continue
		}
		if line.Error != "" {
			s.fail(fmt.Errorf("%w: %s", ErrServer, line.Error))
			return false
		}

		s.received++
		s.chunk = Chunk{
			Content:  line.Message.Content,
			Thinking: line.Message.Thinking,
			Done:     line.Done,
			Model:    line.Model,
		}
		if line.Done {
			s.chunk.DoneReason = line.DoneReason
			s.chunk.PromptTokens = line.PromptEvalCount
			s.chunk.EvalTokens = line.EvalCount
			s.state = StateDone
			s.logger.Debug("chat stream completed",
				"model", line.Model,
				"chunks", s.received,
				"malformed", s.malformed,
				"prompt_tokens", line.PromptEvalCount,
				"eval_tokens", line.EvalCount)
			s.release()
		}
		return true
	}

	if err := s.scanner.Err(); err != nil {
		s.fail(classifyRead(s.ctx, err, s.received))
		return false
	}
	if s.received == 0 {
		s.fail(fmt.Errorf("%w: no valid chunk in %d lines", ErrProtocol, s.line))
		return false
	}
	s.fail(fmt.Errorf("%w: %d chunks received without done marker", ErrStreamClosed, s.received))
	return false
}

// Chunk returns the chunk produced by the last successful call to Next.
func (s *Stream) Chunk() Chunk {
	return s.chunk
}

// Err returns the error that ended the stream, or nil if it completed or was
// closed by the consumer.
func (s *Stream) Err() error {
	return s.err
}

// State reports where the stream is in its lifecycle.
func (s *Stream) State() StreamState {
	return s.state
}

// Malformed reports how many lines were skipped as invalid JSON.
func (s *Stream) Malformed() int {
	return s.malformed
}

// Close releases the connection. It is idempotent and safe to call after the
// stream has finished. Closing an unfinished stream abandons it.
func (s *Stream) Close() error {
	if s.state == StateStreaming {
		s.state = StateClosed
	}
	s.release()
	return nil
}

// All returns an iterator over the remaining chunks. A terminal error is
// yielded once as the final pair. Breaking out of the loop closes the stream.
func (s *Stream) All() iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		defer s.Close()
		for s.Next() {
			if !yield(s.Chunk(), nil) {
				return
			}
		}
		if err := s.Err(); err != nil {
			yield(Chunk{}, err)
		}
	}
}

func (s *Stream) fail(err error) {
	s.state = StateFailed
	s.err = err
	s.logger.Debug("chat stream failed", "error", err, "chunks", s.received, "malformed", s.malformed)
	s.release()
}

func (s *Stream) release() {
	s.closeOnce.Do(func() {
		s.body.Close()
		s.cancel()
	})
}

// classifyRead maps an error from reading the body.
func classifyRead(ctx context.Context, err error, received int) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, context.Canceled), errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	case errors.Is(err, bufio.ErrTooLong):
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	default:
		return fmt.Errorf("%w after %d chunks: %w", ErrStreamClosed, received, err)
	}
}

var errNotObject = errors.New("line is not a JSON object")

// wireLine is one decoded response object.
type wireLine struct {
	api.ChatResponse
	Error string
}

// decodeLine decodes one response object. Valid JSON that is not an object,
// such as null, is rejected like any other malformed line.
func decodeLine(raw []byte) (wireLine, error) {
	if len(raw) == 0 || raw[0] != '{' {
		return wireLine{}, errNotObject
	}
	var line wireLine
	if err := json.Unmarshal(raw, &line.ChatResponse); err != nil {
		return wireLine{}, err
	}
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &e); err == nil {
		line.Error = e.Error
	}
	return line, nil
}
