package models

import "time"

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// JobKind distinguishes direct uploads from connector sync runs.
type JobKind string

const (
	JobKindUpload        JobKind = "upload"
	JobKindConnectorSync JobKind = "connector-sync"
)

// IngestionJob tracks the progress of a batch ingestion. Progress is a
// whole percentage derived from ProcessedItems/TotalItems. Errors holds
// one "<item>: <message>" entry per failed item.
type IngestionJob struct {
	ID             string     `json:"id"`
	Kind           JobKind    `json:"kind"`
	Status         JobStatus  `json:"status"`
	TotalItems     int        `json:"total_items"`
	ProcessedItems int        `json:"processed_items"`
	Progress       int        `json:"progress"`
	Errors         []string   `json:"errors,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}
