// Package llm provides chat completion and query analysis via an
// OpenAI-compatible API.
package llm

import (
	"context"
	"errors"
)

// ErrGeneration marks failures of the generation collaborator. Unlike
// analysis and retrieval failures, a generation failure is fatal to the
// query that triggered it.
var ErrGeneration = errors.New("generation failed")

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Client generates chat completions, blocking or streamed.
type Client interface {
	// Generate returns the full completion for messages.
	Generate(ctx context.Context, messages []Message) (string, error)
	// Stream returns a channel of incremental completion text. The channel
	// is closed when the completion ends or ctx is cancelled; a terminal
	// error is delivered on the second channel after close.
	Stream(ctx context.Context, messages []Message) (<-chan string, <-chan error)
	Close() error
}
