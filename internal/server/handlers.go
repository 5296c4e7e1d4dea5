package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/tazune/internal/config"
	"github.com/hyperjump/tazune/internal/ingest"
	"github.com/hyperjump/tazune/internal/llm"
	"github.com/hyperjump/tazune/internal/models"
	"github.com/hyperjump/tazune/internal/storage"
)

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("query request", zap.String("query", req.Query))
	response, err := s.engine.Query(r.Context(), &req)
	if err != nil {
		s.logger.Error("query failed", zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, llm.ErrGeneration) {
			status = http.StatusBadGateway
		}
		s.respondError(w, status, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := s.engine.QueryStream(r.Context(), &req)
	if err != nil {
		s.logger.Error("stream setup failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var input models.DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if input.Content == "" {
		s.respondError(w, http.StatusBadRequest, "content is required")
		return
	}
	title := input.Title
	if title == "" {
		title = "Untitled"
	}
	sourceType := input.SourceType
	if sourceType == "" {
		sourceType = "api"
	}
	s.logger.Debug("create document request", zap.String("title", title))

	job := s.ingest.Ingest(r.Context(), models.JobKindUpload, []ingest.Item{{
		Name: title,
		Processed: &ingest.ProcessedDocument{
			Title:    title,
			Content:  input.Content,
			Metadata: input.Metadata,
		},
		SourceType: sourceType,
		SourceURL:  input.SourceURL,
	}})
	if job.Status == models.JobFailed {
		s.respondError(w, http.StatusInternalServerError, job.Errors[0])
		return
	}
	s.respondJSON(w, http.StatusCreated, job)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		s.respondError(w, http.StatusBadRequest, "no files provided")
		return
	}

	items := make([]ingest.Item, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("%s: %v", header.Filename, err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("%s: %v", header.Filename, err))
			return
		}
		items = append(items, ingest.Item{
			Name:       header.Filename,
			Content:    data,
			SourceType: "upload",
		})
	}

	jobID := s.ingest.Start(models.JobKindUpload, items)
	s.logger.Info("upload accepted", zap.String("job_id", jobID), zap.Int("files", len(items)))
	s.respondJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

type confluencePagePayload struct {
	ingest.ConfluencePage
	URL string `json:"url,omitempty"`
}

type repoFilePayload struct {
	Repo    string `json:"repo"`
	Path    string `json:"path"`
	Content string `json:"content"`
	URL     string `json:"url,omitempty"`
}

type jiraIssuePayload struct {
	Key  string          `json:"key"`
	URL  string          `json:"url,omitempty"`
	Data json.RawMessage `json:"data"`
}

type syncRequest struct {
	SourceType string                  `json:"source_type"`
	Pages      []confluencePagePayload `json:"pages,omitempty"`
	Files      []repoFilePayload       `json:"files,omitempty"`
	Issues     []jiraIssuePayload      `json:"issues,omitempty"`
}

func (s *Server) handleSourcesSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var items []ingest.Item
	switch req.SourceType {
	case "confluence":
		for i := range req.Pages {
			page := req.Pages[i]
			items = append(items, ingest.Item{
				Name:       page.Title,
				Processed:  s.ingest.Processor().ProcessConfluencePage(&page.ConfluencePage),
				SourceType: "confluence",
				SourceURL:  page.URL,
			})
		}
	case "github":
		for _, file := range req.Files {
			items = append(items, ingest.Item{
				Name:       file.Repo + "/" + file.Path,
				Processed:  s.ingest.Processor().ProcessRepoFile(file.Content, file.Path, file.Repo),
				SourceType: "github",
				SourceURL:  file.URL,
			})
		}
	case "jira":
		for _, issue := range req.Issues {
			items = append(items, ingest.Item{
				Name:       issue.Key + ".json",
				Content:    issue.Data,
				SourceType: "jira",
				SourceURL:  issue.URL,
			})
		}
	default:
		s.respondError(w, http.StatusBadRequest, "unknown source_type: "+req.SourceType)
		return
	}
	if len(items) == 0 {
		s.respondError(w, http.StatusBadRequest, "no items to sync")
		return
	}

	jobID := s.ingest.Start(models.JobKindConnectorSync, items)
	s.logger.Info("source sync accepted",
		zap.String("job_id", jobID),
		zap.String("source_type", req.SourceType),
		zap.Int("items", len(items)))
	s.respondJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.ingest.Tracker().List()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := s.ingest.Tracker().Get(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	s.respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)
	if limit > 200 {
		limit = 200
	}
	docs, err := s.storage.ListDocuments(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs, "count": len(docs)})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.storage.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "document not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := s.ingest.DeleteDocument(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "document not found")
			return
		}
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.storage.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	chunkCount, err := s.storage.CountChunks(ctx)
	if err != nil {
		s.logger.Error("status: count chunks failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"documents":         docCount,
		"chunks":            chunkCount,
		"vector_index_size": s.index.Size(),
	}

	if s.fullConfig != nil {
		resp["config"] = map[string]interface{}{
			"embedding_provider":   s.fullConfig.Embedding.Provider,
			"embedding_dimensions": s.fullConfig.Embedding.Dimensions,
			"chunk_size":           s.fullConfig.Chunking.ChunkSize,
			"chunk_overlap":        s.fullConfig.Chunking.ChunkOverlap,
			"relevance_threshold":  s.fullConfig.RAG.RelevanceThreshold,
			"database_path":        s.fullConfig.Storage.DatabasePath,
			"vector_index_path":    s.fullConfig.Storage.VectorIndexPath,
		}
		diskBytes, err := storage.DiskUsageBytes(
			s.fullConfig.Storage.DatabasePath,
			s.fullConfig.Storage.VectorIndexPath,
		)
		if err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Path != "" {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatchDirectories() {
	if s.configPath == "" || s.fullConfig == nil {
		return
	}
	s.fullConfigM.Lock()
	s.fullConfig.Watch.Directories = s.watch.Directories()
	err := config.Save(s.configPath, s.fullConfig)
	s.fullConfigM.Unlock()
	if err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
