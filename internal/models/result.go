package models

// SearchResult represents a single retrieved chunk with its similarity score.
type SearchResult struct {
	DocumentID string    `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Similarity float64   `json:"similarity"`
	Document   *Document `json:"document,omitempty"`
}

// SourceRef is a citation attached to a generated answer.
type SourceRef struct {
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Type      string  `json:"type"`
	Relevance float64 `json:"relevance"`
	Snippet   string  `json:"snippet"`
}

// RAGResponse is the complete answer to a query: generated text, the
// sources it drew from, and an overall confidence estimate.
type RAGResponse struct {
	Answer     string      `json:"answer"`
	Sources    []SourceRef `json:"sources"`
	Confidence float64     `json:"confidence"`
	QueryTime  int64       `json:"query_time_ms,omitempty"`
}

// Stream event types emitted while an answer is being generated.
const (
	StreamEventSources = "sources"
	StreamEventContent = "content"
	StreamEventDone    = "done"
	StreamEventError   = "error"
)

// StreamEvent is a single frame of a streaming answer. Sources is set only
// on the initial "sources" event, Content only on "content" events.
type StreamEvent struct {
	Type    string      `json:"type"`
	Content string      `json:"content,omitempty"`
	Sources []SourceRef `json:"sources,omitempty"`
	Error   string      `json:"error,omitempty"`
}
