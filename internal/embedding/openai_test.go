package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization=%q", got)
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if len(req.Input) != 2 {
			t.Errorf("expected 2 inputs, got %d", len(req.Input))
		}
		// Deliberately out of order to exercise index-based reassembly.
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"embedding": []float32{0, 1, 0}, "index": 1},
				{"embedding": []float32{1, 0, 0}, "index": 0},
			},
		})
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(srv.URL, "test-key", "", 3)
	vecs, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatal(err)
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("embeddings not reordered by index: %v", vecs)
	}
}

func TestOpenAIEmbedder_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(srv.URL, "", "", 3)
	_, err := e.Embed(context.Background(), "x")
	if !errors.Is(err, ErrEmbedding) {
		t.Errorf("expected ErrEmbedding, got %v", err)
	}
}

func TestOpenAIEmbedder_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{},
		})
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(srv.URL, "", "", 3)
	_, err := e.Embed(context.Background(), "x")
	if !errors.Is(err, ErrEmbedding) {
		t.Errorf("expected ErrEmbedding, got %v", err)
	}
}

func TestOpenAIEmbedder_Defaults(t *testing.T) {
	e := NewOpenAIEmbedder("http://localhost:11434/v1", "", "", 0)
	if e.Dimensions() != DefaultOpenAIDimensions {
		t.Errorf("Dimensions=%d", e.Dimensions())
	}
	if e.model != DefaultOpenAIModel {
		t.Errorf("model=%s", e.model)
	}
}
