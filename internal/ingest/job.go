// Package ingest drives the chunk-embed-index pipeline and tracks job state.
package ingest

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hyperjump/tazune/internal/models"
)

// Job is the mutable state of one ingestion run. Transitions follow
// pending -> processing -> completed|failed. Progress is derived from
// attempted items (successes plus failures) so a finished job always
// reads 100 even when some items failed.
type Job struct {
	mu        sync.Mutex
	id        string
	kind      models.JobKind
	status    models.JobStatus
	total     int
	processed int
	attempted int
	errors    []string
	startedAt time.Time
	completed *time.Time
}

func newJob(kind models.JobKind, total int) *Job {
	return &Job{
		id:        uuid.New().String(),
		kind:      kind,
		status:    models.JobPending,
		total:     total,
		startedAt: time.Now(),
	}
}

// ID returns the job identifier.
func (j *Job) ID() string {
	return j.id
}

// Start moves the job from pending to processing. It must be called before
// the first item is attempted; starting a job twice or after it finished is
// an error.
func (j *Job) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != models.JobPending {
		return fmt.Errorf("job %s: cannot start from %s", j.id, j.status)
	}
	j.status = models.JobProcessing
	return nil
}

// ItemSucceeded records one fully-processed item.
func (j *Job) ItemSucceeded() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.processed++
	j.attempted++
}

// ItemFailed records a whole-item failure as "<item>: <message>" and moves
// on; the failing item counts toward progress but not processedItems.
func (j *Job) ItemFailed(item string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, fmt.Sprintf("%s: %s", item, err.Error()))
	j.attempted++
}

// RecordError appends a non-fatal error (a skipped chunk) without affecting
// item counts.
func (j *Job) RecordError(item string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, fmt.Sprintf("%s: %s", item, err.Error()))
}

// Finish moves the job to its terminal state: failed if any error was
// recorded, completed otherwise.
func (j *Job) Finish() {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	j.completed = &now
	if len(j.errors) > 0 {
		j.status = models.JobFailed
	} else {
		j.status = models.JobCompleted
	}
}

// Snapshot returns an immutable copy of the job for callers.
func (j *Job) Snapshot() models.IngestionJob {
	j.mu.Lock()
	defer j.mu.Unlock()

	progress := 100
	if j.total > 0 {
		progress = int(float64(j.attempted)/float64(j.total)*100 + 0.5)
	} else if j.status == models.JobPending || j.status == models.JobProcessing {
		progress = 0
	}

	errs := make([]string, len(j.errors))
	copy(errs, j.errors)

	snap := models.IngestionJob{
		ID:             j.id,
		Kind:           j.kind,
		Status:         j.status,
		TotalItems:     j.total,
		ProcessedItems: j.processed,
		Progress:       progress,
		Errors:         errs,
		StartedAt:      j.startedAt,
	}
	if j.completed != nil {
		t := *j.completed
		snap.CompletedAt = &t
	}
	return snap
}
