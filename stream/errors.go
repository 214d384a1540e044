package stream

import (
	"errors"
	"fmt"
)

// ErrMalformedChunk marks an actionable line whose payload could not be parsed.
var ErrMalformedChunk = errors.New("malformed stream chunk")

// ChunkError describes a line that carried the dialect's data prefix but whose
// payload was not valid JSON for that dialect.
type ChunkError struct {
	Dialect Dialect
	Line    string
	Err     error
}

func (e *ChunkError) Error() string {
	line := e.Line
	if len(line) > 120 {
		line = line[:120] + "..."
	}
	return fmt.Sprintf("%s: %v: %q", e.Dialect, e.Err, line)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// ProviderError is an error the provider reported inside an otherwise
// healthy stream (for example an Anthropic "overloaded_error" event).
type ProviderError struct {
	Dialect Dialect
	Type    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s stream error (%s): %s", e.Dialect, e.Type, e.Message)
	}
	return fmt.Sprintf("%s stream error: %s", e.Dialect, e.Message)
}

// TransportError wraps a failure of the fragment source itself.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stream transport failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StreamError is returned by Collect when the stream ended with an error
// event. Partial holds whatever was accumulated before the failure.
type StreamError struct {
	Partial *Response
	Err     error
}

func (e *StreamError) Error() string {
	if e.Partial == nil {
		return fmt.Sprintf("stream interrupted: %v", e.Err)
	}
	return fmt.Sprintf("stream interrupted after %d bytes: %v", len(e.Partial.Text), e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}
