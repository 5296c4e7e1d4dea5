// Package chunker splits document text into bounded, overlapping passages
// aligned on sentence boundaries.
package chunker

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hyperjump/tazune/internal/models"
)

const (
	// DefaultMaxSize is the maximum chunk length in characters.
	DefaultMaxSize = 1000
	// DefaultOverlap controls the overlap seed; each new chunk is seeded
	// with the trailing overlap/10 words of its predecessor.
	DefaultOverlap = 200
)

// Chunker splits text into sentence-aligned chunks with word overlap.
type Chunker struct {
	maxSize int
	overlap int
}

// NewChunker creates a chunker with the given size and overlap (in characters).
// Non-positive values fall back to the defaults.
func NewChunker(maxSize, overlap int) *Chunker {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	return &Chunker{
		maxSize: maxSize,
		overlap: overlap,
	}
}

// Split breaks text into chunks of at most maxSize characters. Sentences are
// packed greedily; when a sentence would overflow the current chunk, the
// chunk is closed with a terminal period and the next one is seeded with the
// trailing overlap words of the closed chunk plus the overflowing sentence.
// A single sentence longer than maxSize is emitted whole rather than broken
// mid-sentence. An empty or whitespace-only input yields zero chunks.
func (c *Chunker) Split(text string) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}
	overlapWords := c.overlap / 10
	chunks := make([]string, 0)
	current := ""
	for _, sentence := range sentences {
		if current != "" && len(current)+len(sentence)+1 > c.maxSize {
			chunks = append(chunks, current+".")
			tail := trailingWords(current, overlapWords)
			if tail == "" {
				current = sentence
			} else {
				current = tail + ". " + sentence
			}
			continue
		}
		if current == "" {
			current = sentence
		} else {
			current += ". " + sentence
		}
	}
	if strings.TrimSpace(current) != "" {
		chunks = append(chunks, current+".")
	}
	return chunks
}

// Chunk splits text and wraps each piece in a DocumentChunk with ascending,
// contiguous chunk indices.
func (c *Chunker) Chunk(docID, text string) []*models.DocumentChunk {
	pieces := c.Split(text)
	if len(pieces) == 0 {
		return nil
	}
	chunks := make([]*models.DocumentChunk, 0, len(pieces))
	for i, content := range pieces {
		chunks = append(chunks, &models.DocumentChunk{
			ID:         fmt.Sprintf("%s_%s", docID, uuid.New().String()[:8]),
			DocumentID: docID,
			Content:    content,
			ChunkIndex: i,
		})
	}
	return chunks
}

// splitSentences splits text on sentence terminators and discards
// empty or whitespace-only pieces.
func splitSentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// trailingWords returns the last n space-separated words of s.
func trailingWords(s string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(s)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}
