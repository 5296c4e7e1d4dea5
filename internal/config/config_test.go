package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
embedding:
  provider: "mock"
  dimensions: 8
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Embedding.Provider != "mock" || cfg.Embedding.Dimensions != 8 {
		t.Errorf("unexpected embedding config: %+v", cfg.Embedding)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: "./data/db/documents.db"
  vector_index_path: "./data/indices/vectors.bin"
watch:
  directories: ["./dev/sample"]
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "db", "documents.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	wantIdx := filepath.Join(dir, "data", "indices", "vectors.bin")
	if cfg.Storage.VectorIndexPath != wantIdx {
		t.Errorf("vector_index_path = %s, want %s", cfg.Storage.VectorIndexPath, wantIdx)
	}
	if len(cfg.Watch.Directories) != 1 {
		t.Fatalf("watch directories: got %d", len(cfg.Watch.Directories))
	}
	wantWatch := filepath.Join(dir, "dev", "sample")
	if cfg.Watch.Directories[0] != wantWatch {
		t.Errorf("watch directory = %s, want %s", cfg.Watch.Directories[0], wantWatch)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Embedding.Provider != "openai" {
		t.Errorf("default embedding provider: got %s", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" || cfg.Embedding.Dimensions != 1536 {
		t.Errorf("default embedding model config: %+v", cfg.Embedding)
	}
	if cfg.LLM.Model != "gpt-4o" {
		t.Errorf("default llm model: got %s", cfg.LLM.Model)
	}
	if cfg.LLM.Temperature != 0.7 || cfg.LLM.MaxTokens != 2000 {
		t.Errorf("default llm tuning: %+v", cfg.LLM)
	}
	if cfg.RAG.RelevanceThreshold != 0.7 {
		t.Errorf("default relevance_threshold: got %f", cfg.RAG.RelevanceThreshold)
	}
	if cfg.RAG.SearchK != 10 || cfg.RAG.ContextLimit != 5 {
		t.Errorf("default rag config: %+v", cfg.RAG)
	}
	if cfg.Chunking.ChunkSize != 1000 || cfg.Chunking.ChunkOverlap != 200 {
		t.Errorf("default chunking config: %+v", cfg.Chunking)
	}
	if cfg.Watch.Extensions == nil {
		t.Error("watch extensions should be set by default")
	}
	if cfg.Watch.Extensions[0] != ".txt" {
		t.Errorf("watch extensions: got %v", cfg.Watch.Extensions)
	}
}

func TestApplyDefaults_WatchRecursiveWhenDirectoriesSet(t *testing.T) {
	cfg := &Config{Watch: WatchConfig{Directories: []string{"/tmp/docs"}}}
	ApplyDefaults(cfg)
	if cfg.Watch.Recursive == nil || !*cfg.Watch.Recursive {
		t.Error("recursive should default to true when directories are set")
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		w := &WatchConfig{}
		if got := w.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		w := &WatchConfig{Recursive: &f}
		if got := w.RecursiveOrDefault(); got {
			t.Errorf("RecursiveOrDefault() = %v, want false", got)
		}
	})
}

func TestAPIKeyFromEnv(t *testing.T) {
	t.Setenv("TAZUNE_TEST_KEY", "sk-test")
	e := &EmbeddingConfig{APIKeyEnv: "TAZUNE_TEST_KEY"}
	if got := e.APIKey(); got != "sk-test" {
		t.Errorf("APIKey() = %q", got)
	}
	l := &LLMConfig{APIKeyEnv: "TAZUNE_MISSING_KEY"}
	if got := l.APIKey(); got != "" {
		t.Errorf("APIKey() for unset env = %q", got)
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
}
