package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgallion1/bookvoice/internal/chunker"
	"github.com/dgallion1/bookvoice/internal/extractor"
	"github.com/dgallion1/bookvoice/internal/synth"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBackend struct {
	calls   int
	failure error
}

func (b *fakeBackend) Synthesize(_ context.Context, req synth.Request) (synth.Audio, error) {
	b.calls++
	if b.failure != nil {
		return synth.Audio{}, b.failure
	}
	return synth.Audio{Samples: make([]float32, len(req.Text)), SampleRate: 24000}, nil
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&synth.RetryableError{StatusCode: 429, Message: "rate limited"}) {
		t.Error("429 should be retryable")
	}
	if IsRetryable(errors.New("boom")) {
		t.Error("generic errors should not be retryable")
	}
	if IsRetryable(synth.ErrInputTooLong) {
		t.Error("too-long errors belong to the split path, not backoff")
	}
}

func TestBackoff_GrowsAndCaps(t *testing.T) {
	if Backoff(0) < time.Second {
		t.Error("attempt 0 below base")
	}
	for attempt := 0; attempt < 10; attempt++ {
		if d := Backoff(attempt); d > 45*time.Second {
			t.Errorf("attempt %d: backoff %v above cap+jitter", attempt, d)
		}
	}
}

func TestRetryingSynthesizer_PassesThroughTooLong(t *testing.T) {
	backend := &fakeBackend{failure: synth.ErrInputTooLong}
	r := &RetryingSynthesizer{Backend: backend}
	_, err := r.Synthesize(context.Background(), synth.Request{Text: "x"})
	if !errors.Is(err, synth.ErrInputTooLong) {
		t.Fatalf("expected ErrInputTooLong, got %v", err)
	}
	if backend.calls != 1 {
		t.Errorf("too-long must not be retried, got %d calls", backend.calls)
	}
}

func TestRetryingSynthesizer_StopsOnCancel(t *testing.T) {
	backend := &fakeBackend{failure: &synth.RetryableError{StatusCode: 503, Message: "unavailable"}}
	r := &RetryingSynthesizer{Backend: backend}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Synthesize(ctx, synth.Request{Text: "x"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if backend.calls != 1 {
		t.Errorf("calls after cancel: got %d, want 1", backend.calls)
	}
}

func newTestJob(t *testing.T, content string) *Job {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "book.txt")
	if err := os.WriteFile(src, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	job := &Job{
		ID:        "job-1",
		Status:    StatusQueued,
		Filename:  "book.txt",
		Voice:     "af_sky",
		Speed:     1.0,
		Lang:      "en-us",
		Format:    "wav",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	job.SetPaths(src, filepath.Join(dir, "out"))
	return job
}

func newTestWorker(backend synth.Synthesizer) *Worker {
	driver := synth.NewDriver(backend, nil, nil)
	return NewWorker(driver, chunker.Config{TargetSize: 40}, extractor.DefaultOptions(), nil, testLogger())
}

func TestWorker_ProcessCompletes(t *testing.T) {
	backend := &fakeBackend{}
	w := newTestWorker(backend)
	job := newTestJob(t, "First sentence of the book. Second sentence follows it. Third closes it out.")

	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("status: got %q, want %q (errors: %v)", snap.Status, StatusCompleted, snap.Progress.Errors)
	}
	if snap.Progress.TotalChapters != 1 {
		t.Errorf("chapters: got %d, want 1", snap.Progress.TotalChapters)
	}
	if snap.Progress.ChunksCompleted != snap.Progress.TotalChunks {
		t.Errorf("completed %d of %d chunks", snap.Progress.ChunksCompleted, snap.Progress.TotalChunks)
	}
	if snap.Progress.MergedFiles != 1 {
		t.Errorf("merged files: got %d, want 1", snap.Progress.MergedFiles)
	}
	if _, err := os.Stat(filepath.Join(job.OutputDir(), "chapter_001", "chunk_001.wav")); err != nil {
		t.Errorf("chunk artifact missing: %v", err)
	}
	srts, err := filepath.Glob(filepath.Join(job.OutputDir(), "*.srt"))
	if err != nil {
		t.Fatal(err)
	}
	if len(srts) != 1 {
		t.Errorf("caption tracks next to merged audio: got %d, want 1", len(srts))
	}
}

func TestWorker_InvalidVoiceFailsBeforeWork(t *testing.T) {
	backend := &fakeBackend{}
	w := newTestWorker(backend)
	job := newTestJob(t, "Some text.")
	job.Voice = "a:1,b:2,c:3"

	w.Process(context.Background(), job)

	if got := job.Snapshot().Status; got != StatusFailed {
		t.Fatalf("status: got %q, want failed", got)
	}
	if backend.calls != 0 {
		t.Errorf("backend called %d times before config validation", backend.calls)
	}
}

func TestWorker_BackendFailureIsPartialOrFailed(t *testing.T) {
	backend := &fakeBackend{failure: errors.New("backend exploded")}
	w := newTestWorker(backend)
	job := newTestJob(t, "Only sentence.")

	w.Process(context.Background(), job)

	if got := job.Snapshot().Status; got != StatusFailed {
		t.Fatalf("status: got %q, want failed when nothing synthesized", got)
	}
}
