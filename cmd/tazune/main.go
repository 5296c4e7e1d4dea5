// Package main is the Tazune CLI entry point.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/tazune/internal/chunker"
	"github.com/hyperjump/tazune/internal/cli"
	"github.com/hyperjump/tazune/internal/config"
	"github.com/hyperjump/tazune/internal/embedding"
	"github.com/hyperjump/tazune/internal/ingest"
	"github.com/hyperjump/tazune/internal/llm"
	"github.com/hyperjump/tazune/internal/models"
	"github.com/hyperjump/tazune/internal/rag"
	"github.com/hyperjump/tazune/internal/server"
	"github.com/hyperjump/tazune/internal/storage"
	"github.com/hyperjump/tazune/internal/vector"
	"github.com/hyperjump/tazune/internal/watcher"
	"github.com/hyperjump/tazune/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/tazune/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "tazune server" from the project dir uses the project's config (including debug).
// Returns the config and the path that was actually loaded (for saving, etc.).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "ingest":
		runIngest()
	case "delete":
		runDelete()
	case "jobs":
		runJobs()
	case "watch":
		runWatch()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("tazune version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (directory changes, chunking, retrieval scores, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	svc := components.Ingest
	watchOpts := []watcher.WatcherOption{}
	if debugMode {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	watchSvc := watcher.NewWatcher(
		cfg.Watch.Directories,
		cfg.Watch.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		func(path string) {
			if _, err := svc.IngestPath(context.Background(), path); err != nil {
				logger.Warn("watch ingest file failed", zap.String("path", path), zap.Error(err))
			}
		},
		func(path string) {
			if err := svc.RemovePath(context.Background(), path); err != nil {
				logger.Warn("watch remove by path failed", zap.String("path", path), zap.Error(err))
			}
		},
		watchOpts...,
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	watchSvc.SyncExistingFiles()

	srv := server.NewServer(
		components.Engine,
		components.Ingest,
		components.Storage,
		components.VectorIndex,
		&cfg.Server,
		logger,
		watchSvc,
		resolvedConfigPath,
		cfg,
	)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if cfg.Storage.VectorIndexPath != "" && components.VectorIndex != nil {
		if err := components.VectorIndex.Save(cfg.Storage.VectorIndexPath); err != nil {
			logger.Warn("vector index save failed", zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
		}
	}
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// printAskUsage prints ask subcommand usage.
func printAskUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: tazune ask [flags] <question>\n\n")
	fmt.Fprintf(fs.Output(), "Question is all remaining arguments joined by spaces. Multi-word questions work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
The answer is generated from documents in the knowledge base; sources and a
confidence estimate are printed after it.
  • Use --stream to print the answer token by token as it is generated.
  • Use --output json for a parseable response.
  • Use --server "" to answer directly from local storage when the server is not running.

Examples:
  tazune ask how do I restart the redis cluster
  tazune ask "how do I restart the redis cluster"    # same as above
  tazune ask --stream what does the deploy pipeline do
  tazune ask --output json "rollback procedure"
`)
}

// buildQuestion joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// askArgsReorder moves any flags (and their values) that appear after the
// question to the front of the slice so that flag.Parse() sees them. Go's flag
// package stops at the first non-flag argument, so "tazune ask \"question\" -stream"
// would otherwise leave -stream unparsed.
func askArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runAsk() {
	askArgs := askArgsReorder(os.Args[2:])

	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (used for direct storage mode)")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage when server is not running)")
	streamFlag := fs.Bool("stream", false, "stream the answer token by token (server mode only)")
	outputFormat := fs.String("output", "text", "output format: text (human-readable) or json (parseable)")
	fs.Usage = func() { printAskUsage(fs) }
	_ = fs.Parse(askArgs)

	if fs.NArg() < 1 {
		printAskUsage(fs)
		os.Exit(1)
	}
	question := buildQuestion(fs.Args())
	if question == "" {
		printAskUsage(fs)
		os.Exit(1)
	}

	format := cli.OutputText
	switch *outputFormat {
	case "json":
		format = cli.OutputJSON
	case "text":
		format = cli.OutputText
	default:
		fmt.Printf("Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}

	req := &models.QueryRequest{Query: question}

	if *serverURL != "" {
		if *streamFlag {
			if err := askStreamViaHTTP(*serverURL, req); err != nil {
				fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
				os.Exit(1)
			}
			return
		}
		response, err := askViaHTTP(*serverURL, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteAnswer(os.Stdout, response, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Direct storage access (when server is not running).
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	response, err := components.Engine.Query(context.Background(), req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAnswer(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func askViaHTTP(serverURL string, req *models.QueryRequest) (*models.RAGResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/query", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.RAGResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

// askStreamViaHTTP consumes the SSE stream endpoint and prints content tokens
// as they arrive, followed by the sources the answer drew from.
func askStreamViaHTTP(serverURL string, req *models.QueryRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	resp, err := http.Post(serverURL+"/api/v1/query/stream", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}

	var sources []models.SourceRef
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}
		var event models.StreamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		switch event.Type {
		case models.StreamEventSources:
			sources = event.Sources
		case models.StreamEventContent:
			fmt.Print(event.Content)
		case models.StreamEventError:
			fmt.Println()
			return fmt.Errorf("%s", event.Error)
		case models.StreamEventDone:
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	fmt.Println()
	if len(sources) > 0 {
		fmt.Println("\n--- Sources ---")
		for i, src := range sources {
			fmt.Printf("%d. %s (%s, relevance %.1f%%)\n", i+1, src.Title, src.Type, src.Relevance*100)
			if src.URL != "" {
				fmt.Printf("   %s\n", src.URL)
			}
		}
	}
	return nil
}

// statusConfigResponse holds configuration info returned by status.
type statusConfigResponse struct {
	EmbeddingProvider   string  `json:"embedding_provider,omitempty"`
	EmbeddingDimensions int     `json:"embedding_dimensions,omitempty"`
	ChunkSize           int     `json:"chunk_size,omitempty"`
	ChunkOverlap        int     `json:"chunk_overlap,omitempty"`
	RelevanceThreshold  float64 `json:"relevance_threshold,omitempty"`
	DatabasePath        string  `json:"database_path,omitempty"`
	VectorIndexPath     string  `json:"vector_index_path,omitempty"`
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	Documents       int64                 `json:"documents"`
	Chunks          int64                 `json:"chunks"`
	VectorIndexSize int                   `json:"vector_index_size"`
	DiskUsageBytes  *int64                `json:"disk_usage_bytes,omitempty"`
	Config          *statusConfigResponse `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		ctx := context.Background()
		docCount, err := components.Storage.CountDocuments(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count documents failed: %v\n", err)
			os.Exit(1)
		}
		chunkCount, err := components.Storage.CountChunks(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count chunks failed: %v\n", err)
			os.Exit(1)
		}
		status = statusResponse{
			Documents:       docCount,
			Chunks:          chunkCount,
			VectorIndexSize: components.VectorIndex.Size(),
			Config: &statusConfigResponse{
				EmbeddingProvider:   cfg.Embedding.Provider,
				EmbeddingDimensions: cfg.Embedding.Dimensions,
				ChunkSize:           cfg.Chunking.ChunkSize,
				ChunkOverlap:        cfg.Chunking.ChunkOverlap,
				RelevanceThreshold:  cfg.RAG.RelevanceThreshold,
				DatabasePath:        cfg.Storage.DatabasePath,
				VectorIndexPath:     cfg.Storage.VectorIndexPath,
			},
		}
		diskBytes, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.VectorIndexPath)
		if err == nil {
			status.DiskUsageBytes = &diskBytes
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("documents:          %d   # count of ingested documents\n", status.Documents)
		fmt.Printf("chunks:             %d   # count of text chunks\n", status.Chunks)
		fmt.Printf("vector_index_size:  %d   # count of vectors in semantic index\n", status.VectorIndexSize)
		if status.DiskUsageBytes != nil {
			fmt.Printf("disk_usage_bytes:   %d   # storage + index on disk\n", *status.DiskUsageBytes)
		}
		if status.Config != nil {
			fmt.Println()
			fmt.Println("# configuration")
			if status.Config.EmbeddingProvider != "" {
				fmt.Printf("embedding_provider: %s\n", status.Config.EmbeddingProvider)
			}
			if status.Config.EmbeddingDimensions > 0 {
				fmt.Printf("embedding_dims:     %d\n", status.Config.EmbeddingDimensions)
			}
			if status.Config.ChunkSize > 0 {
				fmt.Printf("chunk_size:         %d\n", status.Config.ChunkSize)
			}
			if status.Config.ChunkOverlap > 0 {
				fmt.Printf("chunk_overlap:      %d\n", status.Config.ChunkOverlap)
			}
			if status.Config.RelevanceThreshold > 0 {
				fmt.Printf("relevance_threshold: %.2f\n", status.Config.RelevanceThreshold)
			}
			if status.Config.DatabasePath != "" {
				fmt.Printf("database_path:      %s\n", status.Config.DatabasePath)
			}
			if status.Config.VectorIndexPath != "" {
				fmt.Printf("vector_index_path:  %s\n", status.Config.VectorIndexPath)
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: tazune ingest [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	if info.IsDir() {
		items, err := collectIngestItems(path, cfg.Watch.Extensions)
		if err != nil {
			fmt.Printf("Scanning directory failed: %v\n", err)
			os.Exit(1)
		}
		if len(items) == 0 {
			fmt.Printf("No ingestable files found in %s\n", path)
			return
		}
		job := components.Ingest.Ingest(ctx, models.JobKindUpload, items)
		if err := cli.WriteJobs(os.Stdout, []models.IngestionJob{job}, cli.OutputText); err != nil {
			fmt.Printf("Output failed: %v\n", err)
			os.Exit(1)
		}
		if job.Status == models.JobFailed {
			os.Exit(1)
		}
		return
	}
	job, err := components.Ingest.IngestPath(ctx, path)
	if err != nil {
		fmt.Printf("Ingestion failed: %v\n", err)
		os.Exit(1)
	}
	if job.Status == models.JobFailed {
		for _, e := range job.Errors {
			fmt.Fprintf(os.Stderr, "  %s\n", e)
		}
		fmt.Println("Ingestion failed")
		os.Exit(1)
	}
	fmt.Printf("Document ingested successfully: %s\n", path)

	if cfg.Storage.VectorIndexPath != "" {
		if err := components.VectorIndex.Save(cfg.Storage.VectorIndexPath); err != nil {
			logger.Warn("vector index save failed", zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
		}
	}
}

// collectIngestItems walks dir and returns one ingest item per file whose
// extension is in extensions (all files when extensions is empty).
func collectIngestItems(dir string, extensions []string) ([]ingest.Item, error) {
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = true
	}
	var items []ingest.Item
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if len(allowed) > 0 && !allowed[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		items = append(items, ingest.Item{
			Name:       filepath.Base(abs),
			Path:       abs,
			SourceType: "file",
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func runJobs() {
	fs := flag.NewFlagSet("jobs", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format := cli.OutputText
	switch *outputFormat {
	case "json":
		format = cli.OutputJSON
	case "text":
		format = cli.OutputText
	default:
		fmt.Printf("Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}

	// Job state lives in the server process, so this command is server-only.
	resp, err := http.Get(*serverURL + "/api/v1/jobs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Jobs failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var out struct {
		Jobs []models.IngestionJob `json:"jobs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteJobs(os.Stdout, out.Jobs, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: tazune watch <add|remove|list> [path]")
		fmt.Println("  tazune watch add <path>     Add directory to watch")
		fmt.Println("  tazune watch remove <path>  Remove directory from watch")
		fmt.Println("  tazune watch list           List watched directories")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[3:])
	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fmt.Println("Usage: tazune watch add <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		body, _ := json.Marshal(map[string]interface{}{"path": path, "sync": true})
		resp, err := http.Post(*serverURL+"/api/v1/watch/directories", "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Add failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fmt.Println("Usage: tazune watch remove <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		req, _ := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/watch/directories?path="+url.QueryEscape(path), nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Remove failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		resp, err := http.Get(*serverURL + "/api/v1/watch/directories")
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("List failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var out struct {
			Directories []string `json:"directories"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fmt.Printf("Parse failed: %v\n", err)
			os.Exit(1)
		}
		for _, d := range out.Directories {
			fmt.Println(d)
		}
	default:
		fmt.Printf("Unknown watch subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: tazune delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	if err := components.Ingest.DeleteDocument(context.Background(), docID); err != nil {
		fmt.Printf("Deletion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

// Components holds initialized services.
type Components struct {
	Storage     storage.Storage
	Embedder    embedding.Embedder
	VectorIndex vector.Index
	LLM         llm.Client
	Engine      *rag.Engine
	Ingest      *ingest.Service
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
	if c.LLM != nil {
		_ = c.LLM.Close()
	}
}

// newEmbedder builds the embedder for the configured provider. Providers that
// cannot initialize (missing API key, missing model file) degrade to the mock
// embedder so that the rest of the pipeline stays usable in development.
func newEmbedder(cfg *config.Config, logger *zap.Logger) embedding.Embedder {
	switch cfg.Embedding.Provider {
	case "openai":
		apiKey := cfg.Embedding.APIKey()
		if apiKey == "" {
			logger.Warn("embedding API key not set, using mock embedder",
				zap.String("env", cfg.Embedding.APIKeyEnv))
			return embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
		}
		var embedder embedding.Embedder = embedding.NewOpenAIEmbedder(
			cfg.Embedding.BaseURL,
			apiKey,
			cfg.Embedding.Model,
			cfg.Embedding.Dimensions,
		)
		if cfg.Embedding.CacheSize > 0 {
			embedder = embedding.NewCachedEmbedder(embedder, cfg.Embedding.CacheSize)
		}
		return embedder
	case "onnx":
		onnxEmbedder, err := embedding.NewONNXEmbedder(
			cfg.Embedding.ModelPath,
			cfg.Embedding.Dimensions,
			cfg.Embedding.MaxTokens,
		)
		if err != nil {
			logger.Warn("onnx embedder unavailable, using mock embedder", zap.Error(err))
			return embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
		}
		var embedder embedding.Embedder = onnxEmbedder
		if cfg.Embedding.CacheSize > 0 {
			embedder = embedding.NewCachedEmbedder(embedder, cfg.Embedding.CacheSize)
		}
		return embedder
	default:
		return embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embedder := newEmbedder(cfg, logger)

	vectorIndex, err := vector.NewIndex("memory", cfg.Embedding.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	if cfg.Storage.VectorIndexPath != "" {
		if loadErr := vectorIndex.Load(cfg.Storage.VectorIndexPath); loadErr != nil {
			logger.Warn("vector index load skipped (re-ingest to rebuild)",
				zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(loadErr))
		}
	}
	logger.Info("vector index initialized",
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.Int("size", vectorIndex.Size()))

	client := llm.NewOpenAIClient(
		cfg.LLM.BaseURL,
		cfg.LLM.APIKey(),
		cfg.LLM.Model,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
	)
	analyzer := llm.NewAnalyzer(client, logger)

	ch := chunker.NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)
	tracker := ingest.NewTracker()
	svc := ingest.NewService(store, vectorIndex, embedder, ch, tracker, logger)

	engine := rag.NewEngine(store, embedder, vectorIndex, client, analyzer, &cfg.RAG, logger)

	return &Components{
		Storage:     store,
		Embedder:    embedder,
		VectorIndex: vectorIndex,
		LLM:         client,
		Engine:      engine,
		Ingest:      svc,
	}, nil
}

func printUsage() {
	fmt.Println(`tazune - Local RAG assistant for team knowledge bases

Usage:
  tazune server [flags]            Start the HTTP server
  tazune ask [flags] <question>    Ask a question against the knowledge base
  tazune ingest [flags] <path>     Ingest a file or directory
  tazune delete [flags] <id>       Delete a document
  tazune jobs [flags]              List ingestion jobs
  tazune status [flags]            Show storage/index status
  tazune watch <add|remove|list>   Manage watched directories
  tazune version                   Show version
  tazune help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/tazune/config.yaml)
  --debug            Enable debug logging (directory changes, chunking, retrieval scores, etc.)

Ask Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") to answer directly from local storage.
  --stream           Stream the answer token by token (server mode only)
  --output string    Output format: text or json (default: text)

Ingest Flags:
  --config string    Config file path

Jobs Flags:
  --server string    Server URL (default: http://localhost:8080)
  --output string    Output format: text or json (default: text)

Status Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage.
  --output string    Output format: text or json (default: text)

Watch Flags:
  --server string    Server URL (default: http://localhost:8080)

Examples:
  tazune server
  tazune ask "how do I restart the redis cluster"
  tazune ask --stream what does the deploy pipeline do
  tazune ask --output json "rollback procedure"
  tazune ingest runbooks/
  tazune ingest --config ./config.yaml notes.md
  tazune delete doc-123
  tazune jobs
  tazune status --output json
  tazune watch add /path/to/docs
  tazune watch list`)
}
