package ingest

import (
	"sort"
	"sync"

	"github.com/hyperjump/tazune/internal/models"
)

// Tracker is an in-memory registry of ingestion jobs. Jobs live for the
// process lifetime; there is no eviction, matching the scale of an internal
// knowledge base.
type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]*Job)}
}

// Create registers a new pending job for total items.
func (t *Tracker) Create(kind models.JobKind, total int) *Job {
	job := newJob(kind, total)
	t.mu.Lock()
	t.jobs[job.ID()] = job
	t.mu.Unlock()
	return job
}

// Get returns a snapshot of the job with the given ID.
func (t *Tracker) Get(id string) (models.IngestionJob, bool) {
	t.mu.RLock()
	job, ok := t.jobs[id]
	t.mu.RUnlock()
	if !ok {
		return models.IngestionJob{}, false
	}
	return job.Snapshot(), true
}

// List returns snapshots of all jobs, newest first.
func (t *Tracker) List() []models.IngestionJob {
	t.mu.RLock()
	snaps := make([]models.IngestionJob, 0, len(t.jobs))
	for _, job := range t.jobs {
		snaps = append(snaps, job.Snapshot())
	}
	t.mu.RUnlock()

	sort.Slice(snaps, func(i, j int) bool {
		if !snaps[i].StartedAt.Equal(snaps[j].StartedAt) {
			return snaps[i].StartedAt.After(snaps[j].StartedAt)
		}
		return snaps[i].ID < snaps[j].ID
	})
	return snaps
}
