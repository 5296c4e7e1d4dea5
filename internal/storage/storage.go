// Package storage defines the persistence interface for documents and chunks.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/tazune/internal/models"
)

// ErrNotFound is returned when a requested document or chunk does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines document and chunk persistence operations.
type Storage interface {
	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document) error
	UpsertDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)

	// Chunk operations
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.DocumentChunk, error)
	DeleteChunksByDocumentID(ctx context.Context, docID string) error
	BatchCreateChunks(ctx context.Context, chunks []*models.DocumentChunk) error

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
