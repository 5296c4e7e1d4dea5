// Package rag orchestrates retrieval-augmented answering: query analysis,
// vector retrieval, context assembly, and LLM generation.
package rag

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/tazune/internal/config"
	"github.com/hyperjump/tazune/internal/embedding"
	"github.com/hyperjump/tazune/internal/llm"
	"github.com/hyperjump/tazune/internal/models"
	"github.com/hyperjump/tazune/internal/storage"
	"github.com/hyperjump/tazune/internal/vector"
)

// Engine answers questions against the indexed knowledge base.
type Engine struct {
	storage  storage.Storage
	embedder embedding.Embedder
	index    vector.Index
	client   llm.Client
	analyzer *llm.Analyzer
	config   *config.RAGConfig
	logger   *zap.Logger
}

// NewEngine creates a RAG engine with the given dependencies.
func NewEngine(
	store storage.Storage,
	embedder embedding.Embedder,
	index vector.Index,
	client llm.Client,
	analyzer *llm.Analyzer,
	cfg *config.RAGConfig,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		storage:  store,
		embedder: embedder,
		index:    index,
		client:   client,
		analyzer: analyzer,
		config:   cfg,
		logger:   logger,
	}
}

// Query runs the full pipeline and returns a complete answer.
func (e *Engine) Query(ctx context.Context, req *models.QueryRequest) (*models.RAGResponse, error) {
	startTime := time.Now()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	analysis, results, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	contextBlock := e.buildContext(ctx, results)
	answer, err := e.client.Generate(ctx, buildMessages(req.Query, contextBlock, analysis))
	if err != nil {
		return nil, fmt.Errorf("answer generation failed: %w", err)
	}

	return &models.RAGResponse{
		Answer:     answer,
		Sources:    e.formatSources(ctx, results),
		Confidence: calculateConfidence(results, analysis),
		QueryTime:  time.Since(startTime).Milliseconds(),
	}, nil
}

// QueryStream runs the pipeline and streams the answer. The returned channel
// carries exactly one sources event before any content, then content events
// as the model produces them, and finally a done or error event. The channel
// is closed when the stream ends.
func (e *Engine) QueryStream(ctx context.Context, req *models.QueryRequest) (<-chan models.StreamEvent, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	analysis, results, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	contextBlock := e.buildContext(ctx, results)
	sources := e.formatSources(ctx, results)
	contentCh, errCh := e.client.Stream(ctx, buildMessages(req.Query, contextBlock, analysis))

	events := make(chan models.StreamEvent)
	go func() {
		defer close(events)
		events <- models.StreamEvent{Type: models.StreamEventSources, Sources: sources}
		for {
			select {
			case chunk, ok := <-contentCh:
				if !ok {
					// A failed stream closes the content channel with the
					// error still pending.
					select {
					case err := <-errCh:
						if err != nil {
							e.logger.Warn("stream failed", zap.Error(err))
							events <- models.StreamEvent{Type: models.StreamEventError, Error: err.Error()}
							return
						}
					default:
					}
					events <- models.StreamEvent{Type: models.StreamEventDone}
					return
				}
				events <- models.StreamEvent{Type: models.StreamEventContent, Content: chunk}
			case err := <-errCh:
				if err != nil {
					e.logger.Warn("stream failed", zap.Error(err))
					events <- models.StreamEvent{Type: models.StreamEventError, Error: err.Error()}
					return
				}
			case <-ctx.Done():
				events <- models.StreamEvent{Type: models.StreamEventError, Error: ctx.Err().Error()}
				return
			}
		}
	}()
	return events, nil
}

// prepare runs query analysis and retrieval concurrently. Analysis never
// fails (it degrades to a default); a retrieval error aborts the query.
func (e *Engine) prepare(ctx context.Context, req *models.QueryRequest) (models.QueryAnalysis, []*models.SearchResult, error) {
	var (
		analysis models.QueryAnalysis
		results  []*models.SearchResult
		retErr   error
		wg       sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		analysis = e.analyzer.Analyze(ctx, req.Query)
	}()
	go func() {
		defer wg.Done()
		results, retErr = e.retrieve(ctx, req)
	}()
	wg.Wait()

	if retErr != nil {
		return models.QueryAnalysis{}, nil, retErr
	}
	return analysis, results, nil
}

// retrieve embeds the query, searches the index, applies the requested
// source-type filter, and keeps only results above the relevance threshold.
func (e *Engine) retrieve(ctx context.Context, req *models.QueryRequest) ([]*models.SearchResult, error) {
	queryEmbedding, err := e.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}

	k := e.config.SearchK
	if req.Limit > 0 {
		k = req.Limit
	}
	candidates, err := e.index.Search(ctx, queryEmbedding, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	candidates = e.filterSourceTypes(ctx, candidates, req.Filters)

	results := candidates[:0]
	for _, r := range candidates {
		if r.Similarity > e.config.RelevanceThreshold {
			results = append(results, r)
		}
	}
	e.logger.Debug("retrieval done",
		zap.Int("candidates", len(candidates)),
		zap.Int("kept", len(results)))
	return results, nil
}

// filterSourceTypes drops candidates whose document is not one of the
// requested source types. An empty filter keeps everything.
func (e *Engine) filterSourceTypes(ctx context.Context, candidates []*models.SearchResult, filters *models.QueryFilters) []*models.SearchResult {
	if filters == nil || len(filters.SourceTypes) == 0 {
		return candidates
	}
	allowed := make(map[string]bool, len(filters.SourceTypes))
	for _, st := range filters.SourceTypes {
		allowed[st] = true
	}
	kept := candidates[:0]
	for _, r := range candidates {
		doc, err := e.storage.GetDocument(ctx, r.DocumentID)
		if err != nil {
			continue
		}
		if allowed[doc.SourceType] {
			kept = append(kept, r)
		}
	}
	return kept
}

// buildContext renders the top results into the prompt context block.
// Results whose document is missing from storage are skipped.
func (e *Engine) buildContext(ctx context.Context, results []*models.SearchResult) string {
	if len(results) == 0 {
		return noContextSentinel
	}

	var b strings.Builder
	b.WriteString("Relevant documentation and information:\n\n")
	for _, r := range e.top(results) {
		doc, err := e.storage.GetDocument(ctx, r.DocumentID)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "Source: %s (%s)\n", doc.Title, doc.SourceType)
		fmt.Fprintf(&b, "Content: %s\n", r.Content)
		if doc.SourceURL != "" {
			fmt.Fprintf(&b, "URL: %s\n", doc.SourceURL)
		}
		fmt.Fprintf(&b, "Relevance: %.1f%%\n\n", r.Similarity*100)
	}
	return b.String()
}

func (e *Engine) formatSources(ctx context.Context, results []*models.SearchResult) []models.SourceRef {
	sources := make([]models.SourceRef, 0, e.config.ContextLimit)
	for _, r := range e.top(results) {
		doc, err := e.storage.GetDocument(ctx, r.DocumentID)
		if err != nil {
			continue
		}
		sources = append(sources, models.SourceRef{
			Title:     doc.Title,
			URL:       doc.SourceURL,
			Type:      doc.SourceType,
			Relevance: r.Similarity,
			Snippet:   snippet(r.Content, 200),
		})
	}
	return sources
}

func (e *Engine) top(results []*models.SearchResult) []*models.SearchResult {
	if len(results) > e.config.ContextLimit {
		return results[:e.config.ContextLimit]
	}
	return results
}

// calculateConfidence blends average retrieval similarity with the query
// analyzer's own confidence, clamped to [0.1, 0.95].
func calculateConfidence(results []*models.SearchResult, analysis models.QueryAnalysis) float64 {
	if len(results) == 0 {
		return 0.1
	}
	var sum float64
	for _, r := range results {
		sum += r.Similarity
	}
	avg := sum / float64(len(results))
	return math.Min(0.95, math.Max(0.1, avg*0.7+analysis.Confidence*0.3))
}

func snippet(content string, max int) string {
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	return string(runes[:max]) + "..."
}
