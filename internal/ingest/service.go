package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/tazune/internal/chunker"
	"github.com/hyperjump/tazune/internal/embedding"
	"github.com/hyperjump/tazune/internal/extract"
	"github.com/hyperjump/tazune/internal/models"
	"github.com/hyperjump/tazune/internal/sourceid"
	"github.com/hyperjump/tazune/internal/storage"
	"github.com/hyperjump/tazune/internal/vector"
)

// Item is one unit of ingestion work. Exactly one of Processed, Path, or
// Content should be set: connectors hand over pre-normalized documents,
// the watcher and CLI hand over paths, uploads hand over raw bytes.
type Item struct {
	Name       string
	Path       string
	Content    []byte
	Processed  *ProcessedDocument
	SourceType string
	SourceURL  string
}

// Service runs the chunk-embed-index pipeline over batches of items with
// per-item error isolation: one bad file never blocks the rest of a batch.
type Service struct {
	store     storage.Storage
	index     vector.Index
	embedder  embedding.Embedder
	chunker   *chunker.Chunker
	extractor *extract.Extractor
	processor *Processor
	tracker   *Tracker
	logger    *zap.Logger
}

// NewService wires the ingestion pipeline.
func NewService(store storage.Storage, index vector.Index, embedder embedding.Embedder, ch *chunker.Chunker, tracker *Tracker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		index:     index,
		embedder:  embedder,
		chunker:   ch,
		extractor: extract.NewExtractor(),
		processor: NewProcessor(),
		tracker:   tracker,
		logger:    logger,
	}
}

// Tracker exposes the job registry for status endpoints.
func (s *Service) Tracker() *Tracker {
	return s.tracker
}

// Processor exposes the document normalizer so connectors can pre-process
// payloads before handing them to the pipeline.
func (s *Service) Processor() *Processor {
	return s.processor
}

// Ingest processes items synchronously and returns the finished job
// snapshot. Items are attempted in order; failures are recorded on the job
// and processing continues.
func (s *Service) Ingest(ctx context.Context, kind models.JobKind, items []Item) models.IngestionJob {
	job := s.tracker.Create(kind, len(items))
	s.run(ctx, job, items)
	return job.Snapshot()
}

// Start registers a job for items and processes them in the background,
// returning the job ID immediately. Progress is observable through the
// tracker while the batch runs.
func (s *Service) Start(kind models.JobKind, items []Item) string {
	job := s.tracker.Create(kind, len(items))
	go s.run(context.Background(), job, items)
	return job.ID()
}

func (s *Service) run(ctx context.Context, job *Job, items []Item) {
	if err := job.Start(); err != nil {
		s.logger.Error("job start rejected", zap.String("job_id", job.ID()), zap.Error(err))
		return
	}
	for _, item := range items {
		if err := s.processItem(ctx, job, item); err != nil {
			job.ItemFailed(item.Name, err)
			s.logger.Warn("item failed",
				zap.String("job_id", job.ID()),
				zap.String("item", item.Name),
				zap.Error(err))
			continue
		}
		job.ItemSucceeded()
	}
	job.Finish()

	snap := job.Snapshot()
	s.logger.Info("ingestion finished",
		zap.String("job_id", snap.ID),
		zap.String("status", string(snap.Status)),
		zap.Int("processed", snap.ProcessedItems),
		zap.Int("total", snap.TotalItems),
		zap.Int("errors", len(snap.Errors)))
}

// processItem normalizes one item, chunks and embeds it, and lands the
// result in the vector index and the store. Embedding failures skip the
// affected chunk only.
func (s *Service) processItem(ctx context.Context, job *Job, item Item) error {
	processed, err := s.normalize(item)
	if err != nil {
		return err
	}
	if strings.TrimSpace(processed.Content) == "" {
		return ErrEmptyDocument
	}

	docID := s.documentID(item)
	doc := &models.Document{
		ID:         docID,
		Title:      processed.Title,
		Content:    processed.Content,
		SourceType: item.SourceType,
		SourceURL:  item.SourceURL,
		Metadata:   processed.Metadata,
	}

	chunks := s.chunker.Chunk(docID, processed.Content)
	if len(chunks) == 0 {
		return ErrEmptyDocument
	}

	embedded := make([]*models.DocumentChunk, 0, len(chunks))
	for _, ch := range chunks {
		vec, err := s.embedder.Embed(ctx, ch.Content)
		if err != nil {
			job.RecordError(item.Name, fmt.Errorf("chunk %d: %w", ch.ChunkIndex, err))
			continue
		}
		ch.Embedding = vec
		embedded = append(embedded, ch)
	}

	// Re-ingesting replaces the previous chunk set before the new one
	// becomes searchable.
	if err := s.index.RemoveDocument(ctx, docID); err != nil {
		return fmt.Errorf("remove stale vectors: %w", err)
	}
	if len(embedded) > 0 {
		if err := s.index.Insert(ctx, embedded); err != nil {
			return fmt.Errorf("index chunks: %w", err)
		}
	}

	if err := s.store.UpsertDocument(ctx, doc); err != nil {
		return fmt.Errorf("store document: %w", err)
	}
	if err := s.store.DeleteChunksByDocumentID(ctx, docID); err != nil {
		return fmt.Errorf("clear stale chunks: %w", err)
	}
	if len(embedded) > 0 {
		if err := s.store.BatchCreateChunks(ctx, embedded); err != nil {
			return fmt.Errorf("store chunks: %w", err)
		}
	}

	s.logger.Debug("item ingested",
		zap.String("document_id", docID),
		zap.String("title", doc.Title),
		zap.Int("chunks", len(chunks)),
		zap.Int("embedded", len(embedded)))
	return nil
}

// normalize resolves an item to a processed document, whichever way its
// content arrived.
func (s *Service) normalize(item Item) (*ProcessedDocument, error) {
	if item.Processed != nil {
		return item.Processed, nil
	}

	name := item.Name
	raw := item.Content
	if item.Path != "" {
		if name == "" {
			name = filepath.Base(item.Path)
		}
		text, err := s.extractor.Extract(item.Path)
		if err != nil {
			return nil, err
		}
		return s.processText(name, text)
	}

	ext := strings.ToLower(filepath.Ext(name))
	text, err := s.extractor.ExtractBytes(raw, ext)
	if err != nil {
		return nil, err
	}
	return s.processText(name, text)
}

// processText applies the extension-specific normalization to extracted
// text.
func (s *Service) processText(name, text string) (*ProcessedDocument, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return s.processor.ProcessMarkdown(name, text), nil
	case ".json":
		return s.processor.ProcessJSON(name, text)
	default:
		return s.processor.ProcessText(name, text), nil
	}
}

// documentID derives a stable ID so re-ingesting a source updates in place.
func (s *Service) documentID(item Item) string {
	if item.Path != "" {
		return sourceid.FileDocID(item.Path)
	}
	ref := item.SourceURL
	if ref == "" {
		ref = item.Name
	}
	sourceType := item.SourceType
	if sourceType == "" {
		sourceType = "upload"
	}
	return sourceid.RemoteDocID(sourceType, ref)
}

// DeleteDocument removes a document from the index and the store.
func (s *Service) DeleteDocument(ctx context.Context, docID string) error {
	if err := s.index.RemoveDocument(ctx, docID); err != nil {
		return fmt.Errorf("remove vectors: %w", err)
	}
	if err := s.store.DeleteDocument(ctx, docID); err != nil {
		return err
	}
	s.logger.Info("document deleted", zap.String("document_id", docID))
	return nil
}

// IngestPath ingests a single on-disk file synchronously. Used by the
// watcher and the CLI.
func (s *Service) IngestPath(ctx context.Context, path string) (models.IngestionJob, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return models.IngestionJob{}, err
	}
	item := Item{
		Name:       filepath.Base(abs),
		Path:       abs,
		SourceType: "file",
	}
	return s.Ingest(ctx, models.JobKindUpload, []Item{item}), nil
}

// RemovePath removes the document previously ingested from path.
func (s *Service) RemovePath(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	return s.DeleteDocument(ctx, sourceid.FileDocID(abs))
}
