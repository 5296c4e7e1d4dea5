package vector

import "fmt"

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses in-memory brute-force search. Good for
	// internal knowledge bases (<100k chunks).
	IndexTypeMemory IndexType = "memory"
)

// NewIndex creates a vector index of the specified type.
// Supported types: "memory" (default). The interface leaves room for an
// approximate-nearest-neighbor backend as a drop-in replacement.
func NewIndex(indexType string, dimensions int) (Index, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory)", indexType)
	}
}
