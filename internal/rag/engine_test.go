package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/tazune/internal/config"
	"github.com/hyperjump/tazune/internal/embedding"
	"github.com/hyperjump/tazune/internal/llm"
	"github.com/hyperjump/tazune/internal/models"
	"github.com/hyperjump/tazune/internal/storage"
)

// fakeIndex returns canned search results.
type fakeIndex struct {
	results []*models.SearchResult
	err     error
}

func (f *fakeIndex) Insert(ctx context.Context, chunks []*models.DocumentChunk) error { return nil }
func (f *fakeIndex) Search(ctx context.Context, vec []float32, k int) ([]*models.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) > k {
		return f.results[:k], nil
	}
	return f.results, nil
}
func (f *fakeIndex) RemoveDocument(ctx context.Context, documentID string) error { return nil }
func (f *fakeIndex) Save(path string) error                                      { return nil }
func (f *fakeIndex) Load(path string) error                                      { return nil }
func (f *fakeIndex) Size() int                                                   { return len(f.results) }
func (f *fakeIndex) Close() error                                                { return nil }

// fakeStore serves documents by ID.
type fakeStore struct {
	storage.Storage
	docs map[string]*models.Document
}

func (f *fakeStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, storage.ErrNotFound)
	}
	return doc, nil
}

func testConfig() *config.RAGConfig {
	return &config.RAGConfig{RelevanceThreshold: 0.7, SearchK: 10, ContextLimit: 5}
}

func result(docID string, sim float64, content string) *models.SearchResult {
	return &models.SearchResult{DocumentID: docID, Content: content, Similarity: sim}
}

func testDocs() map[string]*models.Document {
	return map[string]*models.Document{
		"doc-redis": {
			ID: "doc-redis", Title: "Redis Runbook", SourceType: "file",
			SourceURL: "https://wiki.example.com/redis",
		},
		"doc-deploy": {ID: "doc-deploy", Title: "Deploy Guide", SourceType: "upload"},
	}
}

func newTestEngine(index *fakeIndex, answerer, analyzerClient llm.Client) *Engine {
	return NewEngine(
		&fakeStore{docs: testDocs()},
		embedding.NewMockEmbedder(8),
		index,
		answerer,
		llm.NewAnalyzer(analyzerClient, nil),
		testConfig(),
		nil,
	)
}

func TestQuery_AnswersWithSources(t *testing.T) {
	index := &fakeIndex{results: []*models.SearchResult{
		result("doc-redis", 0.9, "Restart redis with systemctl restart redis."),
		result("doc-deploy", 0.8, "Deploys run through the pipeline."),
	}}
	answerer := &llm.MockClient{Response: "Restart redis via systemctl."}
	analyzer := &llm.MockClient{Response: `{"intent":"how_to","entities":["redis"],"confidence":0.8}`}
	engine := newTestEngine(index, answerer, analyzer)

	resp, err := engine.Query(context.Background(), &models.QueryRequest{Query: "how do I restart redis?"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "Restart redis via systemctl." {
		t.Errorf("answer = %q", resp.Answer)
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("sources: %+v", resp.Sources)
	}
	if resp.Sources[0].Title != "Redis Runbook" || resp.Sources[0].Relevance != 0.9 {
		t.Errorf("first source: %+v", resp.Sources[0])
	}
	if resp.Sources[0].URL != "https://wiki.example.com/redis" {
		t.Errorf("source URL: %q", resp.Sources[0].URL)
	}

	// avg similarity 0.85, analyzer confidence 0.8.
	want := 0.85*0.7 + 0.8*0.3
	if diff := resp.Confidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("confidence = %f, want %f", resp.Confidence, want)
	}

	// The prompt context carries the retrieved chunks and their provenance.
	system := answerer.LastMessages[0].Content
	for _, fragment := range []string{
		"Source: Redis Runbook (file)",
		"Restart redis with systemctl restart redis.",
		"URL: https://wiki.example.com/redis",
		"Relevance: 90.0%",
		"Intent: how_to",
	} {
		if !strings.Contains(system, fragment) {
			t.Errorf("system prompt missing %q", fragment)
		}
	}
}

func TestQuery_FiltersBelowThreshold(t *testing.T) {
	index := &fakeIndex{results: []*models.SearchResult{
		result("doc-redis", 0.9, "relevant"),
		result("doc-deploy", 0.5, "irrelevant"),
	}}
	engine := newTestEngine(index, &llm.MockClient{Response: "ok"}, &llm.MockClient{})

	resp, err := engine.Query(context.Background(), &models.QueryRequest{Query: "redis"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Title != "Redis Runbook" {
		t.Errorf("sources: %+v", resp.Sources)
	}
}

func TestQuery_SourceTypeFilter(t *testing.T) {
	index := &fakeIndex{results: []*models.SearchResult{
		result("doc-redis", 0.9, "redis notes"),
		result("doc-deploy", 0.85, "deploy notes"),
	}}
	engine := newTestEngine(index, &llm.MockClient{Response: "ok"}, &llm.MockClient{})

	resp, err := engine.Query(context.Background(), &models.QueryRequest{
		Query:   "redis",
		Filters: &models.QueryFilters{SourceTypes: []string{"upload"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Title != "Deploy Guide" {
		t.Errorf("sources: %+v", resp.Sources)
	}
}

func TestQuery_LimitOverridesSearchDepth(t *testing.T) {
	index := &fakeIndex{results: []*models.SearchResult{
		result("doc-redis", 0.9, "redis notes"),
		result("doc-deploy", 0.85, "deploy notes"),
	}}
	engine := newTestEngine(index, &llm.MockClient{Response: "ok"}, &llm.MockClient{})

	resp, err := engine.Query(context.Background(), &models.QueryRequest{Query: "redis", Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Title != "Redis Runbook" {
		t.Errorf("sources: %+v", resp.Sources)
	}
}

func TestQuery_ConfidenceFloor(t *testing.T) {
	// With the threshold disabled, weakly-negative matches survive
	// retrieval; the blended confidence must not go below 0.1.
	index := &fakeIndex{results: []*models.SearchResult{result("doc-redis", -0.9, "noise")}}
	cfg := &config.RAGConfig{RelevanceThreshold: -1, SearchK: 10, ContextLimit: 5}
	engine := NewEngine(
		&fakeStore{docs: testDocs()},
		embedding.NewMockEmbedder(8),
		index,
		&llm.MockClient{Response: "ok"},
		llm.NewAnalyzer(&llm.MockClient{}, nil),
		cfg,
		nil,
	)

	resp, err := engine.Query(context.Background(), &models.QueryRequest{Query: "anything"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Confidence != 0.1 {
		t.Errorf("confidence = %f, want 0.1", resp.Confidence)
	}
}

func TestQuery_NoResults(t *testing.T) {
	answerer := &llm.MockClient{Response: "I don't have that information."}
	engine := newTestEngine(&fakeIndex{}, answerer, &llm.MockClient{})

	resp, err := engine.Query(context.Background(), &models.QueryRequest{Query: "unknown topic"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Confidence != 0.1 {
		t.Errorf("confidence = %f, want 0.1", resp.Confidence)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("sources: %+v", resp.Sources)
	}
	if !strings.Contains(answerer.LastMessages[0].Content, noContextSentinel) {
		t.Error("system prompt should carry the no-context sentinel")
	}
}

func TestQuery_EmptyQueryRejected(t *testing.T) {
	engine := newTestEngine(&fakeIndex{}, &llm.MockClient{}, &llm.MockClient{})
	if _, err := engine.Query(context.Background(), &models.QueryRequest{Query: "  "}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestQuery_GenerationFailureIsFatal(t *testing.T) {
	index := &fakeIndex{results: []*models.SearchResult{result("doc-redis", 0.9, "content")}}
	answerer := &llm.MockClient{Err: fmt.Errorf("%w: upstream 500", llm.ErrGeneration)}
	engine := newTestEngine(index, answerer, &llm.MockClient{})

	_, err := engine.Query(context.Background(), &models.QueryRequest{Query: "redis"})
	if !errors.Is(err, llm.ErrGeneration) {
		t.Errorf("err = %v", err)
	}
}

func TestQuery_AnalyzerFailureDegrades(t *testing.T) {
	index := &fakeIndex{results: []*models.SearchResult{result("doc-redis", 0.8, "content")}}
	analyzer := &llm.MockClient{Err: errors.New("analyzer down")}
	engine := newTestEngine(index, &llm.MockClient{Response: "ok"}, analyzer)

	resp, err := engine.Query(context.Background(), &models.QueryRequest{Query: "redis"})
	if err != nil {
		t.Fatal(err)
	}
	// Default analysis confidence is 0.5.
	want := 0.8*0.7 + 0.5*0.3
	if diff := resp.Confidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("confidence = %f, want %f", resp.Confidence, want)
	}
}

func TestQueryStream_SourcesBeforeContent(t *testing.T) {
	index := &fakeIndex{results: []*models.SearchResult{result("doc-redis", 0.9, "content")}}
	answerer := &llm.MockClient{Chunks: []string{"Restart ", "redis."}}
	engine := newTestEngine(index, answerer, &llm.MockClient{})

	events, err := engine.QueryStream(context.Background(), &models.QueryRequest{Query: "redis"})
	if err != nil {
		t.Fatal(err)
	}

	var collected []models.StreamEvent
	for ev := range events {
		collected = append(collected, ev)
	}
	if len(collected) < 3 {
		t.Fatalf("events: %+v", collected)
	}
	if collected[0].Type != models.StreamEventSources || len(collected[0].Sources) != 1 {
		t.Errorf("first event: %+v", collected[0])
	}
	var answer strings.Builder
	for _, ev := range collected[1 : len(collected)-1] {
		if ev.Type != models.StreamEventContent {
			t.Errorf("mid-stream event: %+v", ev)
		}
		answer.WriteString(ev.Content)
	}
	if answer.String() != "Restart redis." {
		t.Errorf("streamed answer = %q", answer.String())
	}
	if collected[len(collected)-1].Type != models.StreamEventDone {
		t.Errorf("last event: %+v", collected[len(collected)-1])
	}
}

func TestQueryStream_ErrorEvent(t *testing.T) {
	index := &fakeIndex{results: []*models.SearchResult{result("doc-redis", 0.9, "content")}}
	answerer := &llm.MockClient{Err: errors.New("connection reset")}
	engine := newTestEngine(index, answerer, &llm.MockClient{})

	events, err := engine.QueryStream(context.Background(), &models.QueryRequest{Query: "redis"})
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	var collected []models.StreamEvent
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if len(collected) != 2 || collected[1].Type != models.StreamEventError {
					t.Fatalf("events: %+v", collected)
				}
				return
			}
			collected = append(collected, ev)
		case <-deadline:
			t.Fatal("stream did not terminate")
		}
	}
}

func TestSnippet(t *testing.T) {
	if got := snippet("short", 200); got != "short" {
		t.Errorf("snippet = %q", got)
	}
	long := strings.Repeat("a", 250)
	got := snippet(long, 200)
	if len(got) != 203 || !strings.HasSuffix(got, "...") {
		t.Errorf("snippet length %d", len(got))
	}
}
