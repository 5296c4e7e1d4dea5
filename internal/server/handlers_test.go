package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/tazune/internal/chunker"
	"github.com/hyperjump/tazune/internal/config"
	"github.com/hyperjump/tazune/internal/embedding"
	"github.com/hyperjump/tazune/internal/ingest"
	"github.com/hyperjump/tazune/internal/llm"
	"github.com/hyperjump/tazune/internal/models"
	"github.com/hyperjump/tazune/internal/rag"
	"github.com/hyperjump/tazune/internal/storage"
	"github.com/hyperjump/tazune/internal/vector"
)

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func (m *mockWatchService) AddDirectory(path string, _ bool) error {
	for _, d := range m.dirs {
		if d == path {
			return nil
		}
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *mockWatchService) RemoveDirectory(path string) error {
	for i, d := range m.dirs {
		if d == path {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			return nil
		}
	}
	return nil
}

type testEnv struct {
	srv     *Server
	handler http.Handler
	ingest  *ingest.Service
}

// newTestEnv wires a server against real storage and index with scripted
// LLM clients. The relevance threshold is disabled so the hash-based mock
// embedder always retrieves.
func newTestEnv(t *testing.T, watch WatchService) *testEnv {
	t.Helper()
	answerer := &llm.MockClient{Response: "Here is the answer.", Chunks: []string{"Here is ", "the answer."}}
	return newTestEnvWithAnswerer(t, watch, answerer)
}

func newTestEnvWithAnswerer(t *testing.T, watch WatchService, answerer llm.Client) *testEnv {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(dir + "/db.sqlite")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	embedder := embedding.NewMockEmbedder(8)
	index, err := vector.NewMemoryIndex(8)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { index.Close() })

	ch := chunker.NewChunker(1000, 200)
	svc := ingest.NewService(store, index, embedder, ch, ingest.NewTracker(), nil)

	analyzer := llm.NewAnalyzer(&llm.MockClient{Response: `{"intent":"search_docs","entities":[],"confidence":0.6}`}, nil)
	ragCfg := &config.RAGConfig{RelevanceThreshold: -1, SearchK: 10, ContextLimit: 5}
	engine := rag.NewEngine(store, embedder, index, answerer, analyzer, ragCfg, nil)

	fullCfg := &config.Config{
		Storage:   config.StorageConfig{DatabasePath: dir + "/db.sqlite", VectorIndexPath: dir + "/vectors.bin"},
		Embedding: config.EmbeddingConfig{Provider: "mock", Dimensions: 8},
		Chunking:  config.ChunkingConfig{ChunkSize: 1000, ChunkOverlap: 200},
		RAG:       *ragCfg,
	}
	srv := NewServer(engine, svc, store, index, &config.ServerConfig{Port: 8080}, zap.NewNop(), watch, "", fullCfg)
	return &testEnv{srv: srv, handler: srv.Router(), ingest: svc}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	r := httptest.NewRequest(method, path, reader)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func (e *testEnv) waitForJob(t *testing.T, jobID string) models.IngestionJob {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		job, ok := e.ingest.Tracker().Get(jobID)
		if !ok {
			t.Fatalf("job %s not found", jobID)
		}
		if job.Status == models.JobCompleted || job.Status == models.JobFailed {
			return job
		}
		select {
		case <-deadline:
			t.Fatalf("job %s did not finish", jobID)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func seedDocument(t *testing.T, e *testEnv) {
	t.Helper()
	job := e.do(t, http.MethodPost, "/api/v1/documents", models.DocumentInput{
		Title:   "Redis Runbook",
		Content: "Restart redis with systemctl restart redis.",
	})
	if job.Code != http.StatusCreated {
		t.Fatalf("seed: status %d, body %s", job.Code, job.Body.String())
	}
}

func TestHandleQuery(t *testing.T) {
	e := newTestEnv(t, nil)
	seedDocument(t, e)

	w := e.do(t, http.MethodPost, "/api/v1/query", map[string]string{"query": "how do I restart redis?"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var resp models.RAGResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "Here is the answer." {
		t.Errorf("answer: %q", resp.Answer)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Title != "Redis Runbook" {
		t.Errorf("sources: %+v", resp.Sources)
	}
}

func TestHandleQuery_EmptyQuery(t *testing.T) {
	e := newTestEnv(t, nil)
	w := e.do(t, http.MethodPost, "/api/v1/query", map[string]string{"query": ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestHandleQuery_GenerationFailureIs502(t *testing.T) {
	answerer := &llm.MockClient{Err: fmt.Errorf("%w: upstream 500", llm.ErrGeneration)}
	e := newTestEnvWithAnswerer(t, nil, answerer)

	w := e.do(t, http.MethodPost, "/api/v1/query", map[string]string{"query": "anything"})
	if w.Code != http.StatusBadGateway {
		t.Errorf("status: got %d, want 502", w.Code)
	}
}

func TestHandleQueryStream(t *testing.T) {
	e := newTestEnv(t, nil)
	seedDocument(t, e)

	w := e.do(t, http.MethodPost, "/api/v1/query/stream", map[string]string{"query": "restart redis"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type: %q", ct)
	}

	var events []models.StreamEvent
	for _, line := range strings.Split(w.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			events = append(events, models.StreamEvent{Type: "terminator"})
			continue
		}
		var ev models.StreamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			t.Fatalf("bad event %q: %v", payload, err)
		}
		events = append(events, ev)
	}
	if len(events) < 4 {
		t.Fatalf("events: %+v", events)
	}
	if events[0].Type != models.StreamEventSources {
		t.Errorf("first event: %+v", events[0])
	}
	var answer strings.Builder
	for _, ev := range events {
		if ev.Type == models.StreamEventContent {
			answer.WriteString(ev.Content)
		}
	}
	if answer.String() != "Here is the answer." {
		t.Errorf("streamed answer: %q", answer.String())
	}
	if events[len(events)-2].Type != models.StreamEventDone {
		t.Errorf("penultimate event: %+v", events[len(events)-2])
	}
	if events[len(events)-1].Type != "terminator" {
		t.Error("stream should end with [DONE]")
	}
}

func TestDocumentLifecycle(t *testing.T) {
	e := newTestEnv(t, nil)
	seedDocument(t, e)

	w := e.do(t, http.MethodGet, "/api/v1/documents", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status: %d", w.Code)
	}
	var list struct {
		Documents []*models.Document `json:"documents"`
		Count     int                `json:"count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if list.Count != 1 {
		t.Fatalf("count: %d", list.Count)
	}
	id := list.Documents[0].ID

	w = e.do(t, http.MethodGet, "/api/v1/documents/"+id, nil)
	if w.Code != http.StatusOK {
		t.Errorf("get status: %d", w.Code)
	}

	w = e.do(t, http.MethodDelete, "/api/v1/documents/"+id, nil)
	if w.Code != http.StatusOK {
		t.Errorf("delete status: %d", w.Code)
	}

	w = e.do(t, http.MethodGet, "/api/v1/documents/"+id, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete: %d", w.Code)
	}
}

func TestHandleCreateDocument_MissingContent(t *testing.T) {
	e := newTestEnv(t, nil)
	w := e.do(t, http.MethodPost, "/api/v1/documents", map[string]string{"title": "empty"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestHandleUpload(t *testing.T) {
	e := newTestEnv(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range map[string]string{
		"guide.md":  "# Guide\n\nUpload pipeline content.",
		"notes.txt": "Plain notes content.",
	} {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		fmt.Fprint(part, content)
	}
	mw.Close()

	r := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}

	job := e.waitForJob(t, out.JobID)
	if job.Status != models.JobCompleted || job.ProcessedItems != 2 {
		t.Errorf("job: %+v", job)
	}

	w = e.do(t, http.MethodGet, "/api/v1/jobs/"+out.JobID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("get job status: %d", w.Code)
	}
}

func TestHandleSourcesSync_Confluence(t *testing.T) {
	e := newTestEnv(t, nil)

	w := e.do(t, http.MethodPost, "/api/v1/sources/sync", map[string]interface{}{
		"source_type": "confluence",
		"pages": []map[string]string{{
			"id":    "99",
			"title": "Oncall Handbook",
			"body":  "<p>Page the secondary after 10 minutes.</p>",
			"url":   "https://wiki.example.com/pages/99",
		}},
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	job := e.waitForJob(t, out.JobID)
	if job.Status != models.JobCompleted {
		t.Fatalf("job: %+v", job)
	}
	if job.Kind != models.JobKindConnectorSync {
		t.Errorf("kind: %s", job.Kind)
	}

	list := e.do(t, http.MethodGet, "/api/v1/documents", nil)
	var docs struct {
		Documents []*models.Document `json:"documents"`
	}
	if err := json.NewDecoder(list.Body).Decode(&docs); err != nil {
		t.Fatal(err)
	}
	if len(docs.Documents) != 1 || docs.Documents[0].SourceType != "confluence" {
		t.Errorf("documents: %+v", docs.Documents)
	}
}

func TestHandleSourcesSync_UnknownSource(t *testing.T) {
	e := newTestEnv(t, nil)
	w := e.do(t, http.MethodPost, "/api/v1/sources/sync", map[string]interface{}{
		"source_type": "gitlab",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestHandleGetJob_NotFound(t *testing.T) {
	e := newTestEnv(t, nil)
	w := e.do(t, http.MethodGet, "/api/v1/jobs/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	e := newTestEnv(t, nil)
	seedDocument(t, e)

	w := e.do(t, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out struct {
		Documents       int64  `json:"documents"`
		Chunks          int64  `json:"chunks"`
		VectorIndexSize int    `json:"vector_index_size"`
		DiskUsageBytes  *int64 `json:"disk_usage_bytes"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Documents != 1 {
		t.Errorf("documents: got %d, want 1", out.Documents)
	}
	if out.Chunks < 1 || out.VectorIndexSize < 1 {
		t.Errorf("chunks=%d vector_index_size=%d", out.Chunks, out.VectorIndexSize)
	}
	if out.DiskUsageBytes == nil || *out.DiskUsageBytes < 1 {
		t.Error("expected disk_usage_bytes")
	}
}

func TestHandleHealth(t *testing.T) {
	e := newTestEnv(t, nil)
	w := e.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleWatchDirectories(t *testing.T) {
	mock := &mockWatchService{dirs: []string{"/tmp/docs"}}
	e := newTestEnv(t, mock)

	w := e.do(t, http.MethodGet, "/api/v1/watch/directories", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status: %d", w.Code)
	}
	var out struct {
		Directories []string `json:"directories"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Directories) != 1 || out.Directories[0] != "/tmp/docs" {
		t.Errorf("directories: %v", out.Directories)
	}

	dir := t.TempDir()
	w = e.do(t, http.MethodPost, "/api/v1/watch/directories", map[string]string{"path": dir})
	if w.Code != http.StatusCreated {
		t.Errorf("add status: %d, body: %s", w.Code, w.Body.String())
	}
	if len(mock.Directories()) != 2 {
		t.Errorf("directories after add: %v", mock.Directories())
	}

	w = e.do(t, http.MethodDelete, "/api/v1/watch/directories?path="+dir, nil)
	if w.Code != http.StatusOK {
		t.Errorf("remove status: %d", w.Code)
	}
	if len(mock.Directories()) != 1 {
		t.Errorf("directories after remove: %v", mock.Directories())
	}
}

func TestHandleWatchDirectories_NotEnabled(t *testing.T) {
	e := newTestEnv(t, nil)
	w := e.do(t, http.MethodGet, "/api/v1/watch/directories", nil)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("status: got %d, want 501", w.Code)
	}
}

func TestHandleWatchDirectoriesAdd_MissingPath(t *testing.T) {
	e := newTestEnv(t, &mockWatchService{})
	w := e.do(t, http.MethodPost, "/api/v1/watch/directories", map[string]string{"path": t.TempDir() + "/nonexistent"})
	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", w.Code)
	}
}
