package vector

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/tazune/internal/models"
)

// MemoryIndex is an in-memory vector index using brute-force cosine search.
// Chunks are held in an append-only arena guarded by a read-write lock, so
// concurrent searches proceed in parallel and never observe a partial insert.
type MemoryIndex struct {
	dimensions int
	records    []record
	mu         sync.RWMutex
}

type record struct {
	documentID string
	chunkIndex int
	content    string
	vector     []float32
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		records:    make([]record, 0),
	}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Insert appends chunk vectors. The whole batch is validated before any
// record becomes visible, so a concurrent Search sees either none or all
// of the chunks. Empty-content chunks and dimension mismatches are rejected.
func (m *MemoryIndex) Insert(ctx context.Context, chunks []*models.DocumentChunk) error {
	batch := make([]record, 0, len(chunks))
	for _, ch := range chunks {
		if ch.Content == "" {
			return fmt.Errorf("chunk %d of document %s has empty content", ch.ChunkIndex, ch.DocumentID)
		}
		if len(ch.Embedding) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(ch.Embedding), m.dimensions)
		}
		vec := make([]float32, m.dimensions)
		copy(vec, ch.Embedding)
		batch = append(batch, record{
			documentID: ch.DocumentID,
			chunkIndex: ch.ChunkIndex,
			content:    ch.Content,
			vector:     vec,
		})
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, batch...)
	return nil
}

// Search returns the top-k chunks by cosine similarity, sorted descending.
// Equal similarities are ordered by ascending (documentID, chunkIndex) so
// results are deterministic. An empty index yields an empty result, not an
// error.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]*models.SearchResult, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.records) == 0 {
		return []*models.SearchResult{}, nil
	}
	results := make([]*models.SearchResult, len(m.records))
	for i, rec := range m.records {
		results[i] = &models.SearchResult{
			DocumentID: rec.documentID,
			ChunkIndex: rec.chunkIndex,
			Content:    rec.content,
			Similarity: CosineSimilarity(query, rec.vector),
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		if results[i].DocumentID != results[j].DocumentID {
			return results[i].DocumentID < results[j].DocumentID
		}
		return results[i].ChunkIndex < results[j].ChunkIndex
	})
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// RemoveDocument removes all chunks belonging to documentID by rebuilding
// the arena.
func (m *MemoryIndex) RemoveDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := make([]record, 0, len(m.records))
	for _, rec := range m.records {
		if rec.documentID != documentID {
			kept = append(kept, rec)
		}
	}
	m.records = kept
	return nil
}

// Save persists the index to path. Directory is created if needed.
// Format: dimension (4), n (4), then per record: docIDLen (4), docID bytes,
// chunkIndex (4), contentLen (4), content bytes, vector (dimension*4 bytes).
func (m *MemoryIndex) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(m.records))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, rec := range m.records {
		if err := writeBytes(f, []byte(rec.documentID)); err != nil {
			return fmt.Errorf("write document id: %w", err)
		}
		if err := binary.Write(f, binary.LittleEndian, uint32(rec.chunkIndex)); err != nil {
			return fmt.Errorf("write chunk index: %w", err)
		}
		if err := writeBytes(f, []byte(rec.content)); err != nil {
			return fmt.Errorf("write content: %w", err)
		}
		if _, err := f.Write(float32SliceToBytes(rec.vector)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load reads the index from path and replaces the in-memory contents.
// Dimensions must match. If the file does not exist, no error is returned
// and the index is unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	var dim, n uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, m.dimensions)
	}
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	records := make([]record, 0, n)
	vecBuf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		docID, err := readBytes(f)
		if err != nil {
			return fmt.Errorf("read document id: %w", err)
		}
		var chunkIndex uint32
		if err := binary.Read(f, binary.LittleEndian, &chunkIndex); err != nil {
			return fmt.Errorf("read chunk index: %w", err)
		}
		content, err := readBytes(f)
		if err != nil {
			return fmt.Errorf("read content: %w", err)
		}
		if _, err := io.ReadFull(f, vecBuf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		records = append(records, record{
			documentID: string(docID),
			chunkIndex: int(chunkIndex),
			content:    string(content),
			vector:     bytesToFloat32Slice(vecBuf),
		})
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = records
	return nil
}

// Size returns the number of chunks in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}

// CosineSimilarity returns the cosine similarity between two vectors,
// dot(a,b)/(|a||b|), in [-1,1]. A zero-magnitude vector yields 0 rather
// than NaN.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
