// Package embedding provides text embedding via an OpenAI-compatible API or
// a local ONNX model, with caching.
package embedding

import (
	"context"
	"errors"
)

// ErrEmbedding marks failures of the embedding collaborator. During
// ingestion these are per-chunk: the chunk is skipped, the document
// continues.
var ErrEmbedding = errors.New("embedding failed")

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
