package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"lab-notebook/notebook_go/pkg/logger"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := NewQueue(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("failed to open test queue: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func testJob(name string) ConversionJob {
	return ConversionJob{
		ProjectID:     "proj-1",
		ExperimentID:  "exp-1",
		ExperimentDir: "/data/proj/exp_001",
		OriginalName:  name,
		OriginalPath:  "originals/" + name,
	}
}

func TestClaimTakesOldestPendingOnce(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, testJob("a.pdf"))
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := q.Enqueue(ctx, testJob("b.pdf")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	claimed, err := q.Claim(ctx, "worker-1")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("Claim took %v, want oldest job %s", claimed, first.ID)
	}
	if claimed.Status != StatusProcessing || claimed.Attempts != 1 {
		t.Errorf("claimed job status=%s attempts=%d, want processing/1", claimed.Status, claimed.Attempts)
	}

	// Second claim gets the other job, third gets nothing.
	if second, _ := q.Claim(ctx, "worker-2"); second == nil || second.OriginalName != "b.pdf" {
		t.Errorf("second claim = %v, want b.pdf", second)
	}
	if third, _ := q.Claim(ctx, "worker-3"); third != nil {
		t.Errorf("third claim = %v, want nil", third)
	}
}

func TestFailRetriesUntilAttemptsExhausted(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	job, _ := q.Enqueue(ctx, testJob("broken.pdf"))
	cause := errors.New("converter crashed")

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		claimed, err := q.Claim(ctx, "worker-1")
		if err != nil || claimed == nil {
			t.Fatalf("claim %d failed: %v, %v", attempt, claimed, err)
		}
		if err := q.Fail(ctx, claimed.ID, cause); err != nil {
			t.Fatalf("Fail failed: %v", err)
		}
	}

	got, err := q.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusFailed {
		t.Errorf("status after %d attempts = %q, want failed", MaxAttempts, got.Status)
	}
	if got.Error == "" {
		t.Error("failed job lost its error message")
	}
	if next, _ := q.Claim(ctx, "worker-1"); next != nil {
		t.Errorf("exhausted job was claimed again: %v", next)
	}
}

func TestResetStuckReturnsProcessingJobsToPending(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	q.Enqueue(ctx, testJob("stuck.pdf"))
	if _, err := q.Claim(ctx, "crashed-worker"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	n, err := q.ResetStuck(ctx)
	if err != nil {
		t.Fatalf("ResetStuck failed: %v", err)
	}
	if n != 1 {
		t.Errorf("ResetStuck reset %d jobs, want 1", n)
	}
	if job, _ := q.Claim(ctx, "worker-2"); job == nil {
		t.Error("reset job is not claimable again")
	}
}

func TestPoolProcessesJobs(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	var processed atomic.Int32
	handler := func(ctx context.Context, job *ConversionJob) error {
		processed.Add(1)
		return nil
	}

	pool := NewPool(q, handler, 2, logger.CreateTestLogger(filepath.Join(t.TempDir(), "test.log"), "info"))
	if err := pool.Start(ctx); err != nil {
		t.Fatalf("pool start failed: %v", err)
	}
	defer pool.Stop()

	for _, name := range []string{"a.csv", "b.csv", "c.csv"} {
		if _, err := q.Enqueue(ctx, testJob(name)); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for processed.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("pool processed %d of 3 jobs before timeout", processed.Load())
		case <-time.After(50 * time.Millisecond):
		}
	}
}
