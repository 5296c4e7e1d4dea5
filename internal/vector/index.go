// Package vector provides chunk vector storage and cosine similarity search.
package vector

import (
	"context"

	"github.com/hyperjump/tazune/internal/models"
)

// Index defines chunk vector storage and top-K similarity search.
type Index interface {
	Insert(ctx context.Context, chunks []*models.DocumentChunk) error
	Search(ctx context.Context, query []float32, k int) ([]*models.SearchResult, error)
	RemoveDocument(ctx context.Context, documentID string) error
	Save(path string) error
	Load(path string) error
	Size() int
	Close() error
}
