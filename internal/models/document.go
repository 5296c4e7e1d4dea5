// Package models defines core data structures for documents, queries,
// retrieval results, and ingestion jobs.
package models

import "time"

// Document represents a stored document with source provenance and metadata.
type Document struct {
	ID         string                 `json:"id" db:"id"`
	Title      string                 `json:"title" db:"title"`
	Content    string                 `json:"content" db:"content"`
	SourceType string                 `json:"source_type" db:"source_type"`
	SourceURL  string                 `json:"source_url,omitempty" db:"source_url"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at" db:"updated_at"`
}

// DocumentChunk represents a chunk of a document, used for semantic retrieval.
type DocumentChunk struct {
	ID         string    `json:"id" db:"id"`
	DocumentID string    `json:"document_id" db:"document_id"`
	Content    string    `json:"content" db:"content"`
	ChunkIndex int       `json:"chunk_index" db:"chunk_index"`
	Embedding  []float32 `json:"-" db:"-"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// DocumentInput is the input for creating or updating a document.
type DocumentInput struct {
	ID         string                 `json:"id,omitempty"`
	Title      string                 `json:"title,omitempty"`
	Content    string                 `json:"content"`
	SourceType string                 `json:"source_type,omitempty"`
	SourceURL  string                 `json:"source_url,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}
