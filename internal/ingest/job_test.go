package ingest

import (
	"errors"
	"testing"

	"github.com/hyperjump/tazune/internal/models"
)

func TestJob_Lifecycle(t *testing.T) {
	tracker := NewTracker()
	job := tracker.Create(models.JobKindUpload, 2)

	snap := job.Snapshot()
	if snap.Status != models.JobPending {
		t.Errorf("new job status=%s", snap.Status)
	}
	if snap.Progress != 0 {
		t.Errorf("new job progress=%d", snap.Progress)
	}

	if err := job.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if got := job.Snapshot().Status; got != models.JobProcessing {
		t.Errorf("after Start status=%s", got)
	}

	job.ItemSucceeded()
	if got := job.Snapshot().Progress; got != 50 {
		t.Errorf("after 1/2 items progress=%d", got)
	}

	job.ItemSucceeded()
	job.Finish()
	snap = job.Snapshot()
	if snap.Status != models.JobCompleted {
		t.Errorf("status=%s", snap.Status)
	}
	if snap.Progress != 100 || snap.ProcessedItems != 2 {
		t.Errorf("progress=%d processed=%d", snap.Progress, snap.ProcessedItems)
	}
	if snap.CompletedAt == nil {
		t.Error("CompletedAt should be set")
	}
}

func TestJob_IllegalStartRejected(t *testing.T) {
	tracker := NewTracker()
	job := tracker.Create(models.JobKindUpload, 1)

	if err := job.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if err := job.Start(); err == nil {
		t.Error("starting a processing job should fail")
	}

	job.ItemSucceeded()
	job.Finish()
	if err := job.Start(); err == nil {
		t.Error("starting a finished job should fail")
	}
	if got := job.Snapshot().Status; got != models.JobCompleted {
		t.Errorf("rejected start must not change status, got %s", got)
	}
}

func TestJob_PartialFailure(t *testing.T) {
	tracker := NewTracker()
	job := tracker.Create(models.JobKindUpload, 3)
	job.Start()

	job.ItemSucceeded()
	job.ItemFailed("broken.json", errors.New("parse error"))
	job.ItemSucceeded()
	job.Finish()

	snap := job.Snapshot()
	if snap.Status != models.JobFailed {
		t.Errorf("status=%s, want failed", snap.Status)
	}
	if len(snap.Errors) != 1 {
		t.Errorf("errors=%v", snap.Errors)
	}
	if snap.Errors[0] != "broken.json: parse error" {
		t.Errorf("error string=%q", snap.Errors[0])
	}
	if snap.ProcessedItems != 2 {
		t.Errorf("processed=%d, want 2", snap.ProcessedItems)
	}
	if snap.Progress != 100 {
		t.Errorf("progress=%d, want 100", snap.Progress)
	}
}

func TestJob_ChunkErrorStillFailsJob(t *testing.T) {
	tracker := NewTracker()
	job := tracker.Create(models.JobKindUpload, 1)
	job.Start()
	job.RecordError("doc.md", errors.New("chunk 3: embedding failed"))
	job.ItemSucceeded()
	job.Finish()

	snap := job.Snapshot()
	if snap.Status != models.JobFailed {
		t.Errorf("status=%s", snap.Status)
	}
	if snap.ProcessedItems != 1 {
		t.Errorf("item with chunk errors still counts as processed, got %d", snap.ProcessedItems)
	}
}

func TestJob_ProgressMonotonic(t *testing.T) {
	tracker := NewTracker()
	job := tracker.Create(models.JobKindConnectorSync, 7)
	job.Start()
	last := 0
	for i := 0; i < 7; i++ {
		if i%2 == 0 {
			job.ItemSucceeded()
		} else {
			job.ItemFailed("x", errors.New("nope"))
		}
		p := job.Snapshot().Progress
		if p < last {
			t.Fatalf("progress decreased: %d -> %d", last, p)
		}
		last = p
	}
	if last != 100 {
		t.Errorf("final progress=%d", last)
	}
}

func TestTracker_GetAndList(t *testing.T) {
	tracker := NewTracker()
	if _, ok := tracker.Get("missing"); ok {
		t.Error("expected miss for unknown job")
	}

	a := tracker.Create(models.JobKindUpload, 1)
	b := tracker.Create(models.JobKindConnectorSync, 2)

	snap, ok := tracker.Get(a.ID())
	if !ok || snap.ID != a.ID() {
		t.Errorf("Get(%s) = %+v, %v", a.ID(), snap, ok)
	}
	if snap.Kind != models.JobKindUpload {
		t.Errorf("Kind=%s", snap.Kind)
	}

	list := tracker.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(list))
	}
	_ = b
}
