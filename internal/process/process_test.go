package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/dgallion1/bookvoice/internal/audio"
	"github.com/dgallion1/bookvoice/internal/chunker"
	"github.com/dgallion1/bookvoice/internal/document"
	"github.com/dgallion1/bookvoice/internal/synth"
)

// countingBackend emits one sample per input character and records how
// many synthesis calls were made.
type countingBackend struct {
	mu     sync.Mutex
	calls  int
	failOn string
}

func (b *countingBackend) Synthesize(_ context.Context, req synth.Request) (synth.Audio, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.failOn != "" && strings.Contains(req.Text, b.failOn) {
		return synth.Audio{}, errors.New("backend exploded")
	}
	return synth.Audio{
		Samples:    make([]float32, len(req.Text)),
		SampleRate: 24000,
	}, nil
}

func (b *countingBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func testChapters() []document.Chapter {
	return []document.Chapter{
		{Title: "The First Step", Content: "One sentence here. Another sentence there. A third for good measure.", Order: 1},
		{Title: "The Second Step", Content: "Entirely different text in chapter two. It also has sentences.", Order: 2},
	}
}

func newTestProcessor(root string, backend synth.Synthesizer) *Processor {
	driver := synth.NewDriver(backend, nil, nil)
	return NewProcessor(driver, Config{
		OutputRoot: root,
		Format:     "wav",
		Chunk:      chunker.Config{TargetSize: 40},
		Speed:      1.0,
		Lang:       "en-us",
	})
}

func TestProcess_WritesChapterLayout(t *testing.T) {
	root := t.TempDir()
	backend := &countingBackend{}
	p := newTestProcessor(root, backend)

	report, err := p.Process(context.Background(), testChapters())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !report.Complete() {
		t.Fatalf("report not complete: %d/%d", report.ChunksCompleted(), report.ChunksExpected())
	}

	info, err := os.ReadFile(filepath.Join(root, "chapter_001", "info.txt"))
	if err != nil {
		t.Fatalf("read info.txt: %v", err)
	}
	if string(info) != "Title: The First Step\n" {
		t.Errorf("info.txt: got %q", info)
	}
	if _, err := os.Stat(filepath.Join(root, "chapter_001", "chunk_001.wav")); err != nil {
		t.Errorf("first chunk artifact missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "chapter_002", "chunk_001.wav")); err != nil {
		t.Errorf("second chapter artifact missing: %v", err)
	}
}

func TestProcess_IdempotentResume(t *testing.T) {
	root := t.TempDir()
	backend := &countingBackend{}
	p := newTestProcessor(root, backend)

	first, err := p.Process(context.Background(), testChapters())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	callsAfterFirst := backend.callCount()
	if callsAfterFirst == 0 {
		t.Fatal("first run made no synthesis calls")
	}

	second, err := p.Process(context.Background(), testChapters())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := backend.callCount(); got != callsAfterFirst {
		t.Errorf("second run made %d extra synthesis calls", got-callsAfterFirst)
	}
	if second.ChunksCompleted() != first.ChunksCompleted() {
		t.Errorf("completion changed across runs: %d then %d",
			first.ChunksCompleted(), second.ChunksCompleted())
	}
	for _, ch := range second.Chapters {
		if !ch.AlreadyComplete {
			t.Errorf("chapter %q not marked already complete on resume", ch.Title)
		}
	}
}

func TestProcess_ResumesOnlyMissingChunks(t *testing.T) {
	root := t.TempDir()
	backend := &countingBackend{failOn: "Another"}
	p := newTestProcessor(root, backend)

	report, err := p.Process(context.Background(), testChapters())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if report.Complete() {
		t.Fatal("expected an incomplete first run")
	}
	missing := report.ChunksExpected() - report.ChunksCompleted()

	// Clear the failure and resume. Only the missing chunks may be
	// synthesized again.
	backend.mu.Lock()
	backend.failOn = ""
	callsAfterFirst := backend.calls
	backend.mu.Unlock()

	second, err := p.Process(context.Background(), testChapters())
	if err != nil {
		t.Fatalf("resume run: %v", err)
	}
	if !second.Complete() {
		t.Fatalf("resume did not complete: %d/%d", second.ChunksCompleted(), second.ChunksExpected())
	}
	if extra := backend.callCount() - callsAfterFirst; extra != missing {
		t.Errorf("resume made %d synthesis calls, want %d", extra, missing)
	}
}

func TestProcess_ResumeRewritesEmptyArtifact(t *testing.T) {
	root := t.TempDir()
	backend := &countingBackend{}
	p := newTestProcessor(root, backend)

	if _, err := p.Process(context.Background(), testChapters()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	callsAfterFirst := backend.callCount()

	// Simulate a crash mid-write: the artifact exists but holds no audio.
	truncated := filepath.Join(root, "chapter_001", "chunk_002.wav")
	if err := os.WriteFile(truncated, nil, 0644); err != nil {
		t.Fatal(err)
	}

	report, err := p.Process(context.Background(), testChapters())
	if err != nil {
		t.Fatalf("resume run: %v", err)
	}
	if report.Chapters[0].AlreadyComplete {
		t.Error("chapter with an empty artifact marked already complete")
	}
	if !report.Complete() {
		t.Fatalf("resume did not complete: %d/%d", report.ChunksCompleted(), report.ChunksExpected())
	}
	if extra := backend.callCount() - callsAfterFirst; extra != 1 {
		t.Errorf("resume made %d synthesis calls, want 1", extra)
	}

	fi, err := os.Stat(truncated)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() <= wavHeaderBytes {
		t.Errorf("artifact not rewritten: %d bytes", fi.Size())
	}
	if _, _, err := NewMerger("wav", nil).MergeChapter(filepath.Join(root, "chapter_001")); err != nil {
		t.Errorf("chapter unmergeable after resume: %v", err)
	}
}

func TestProcess_CancelledBetweenChunks(t *testing.T) {
	root := t.TempDir()
	backend := &countingBackend{}
	ctx, cancel := context.WithCancel(context.Background())

	driver := synth.NewDriver(backend, nil, nil)
	p := NewProcessor(driver, Config{
		OutputRoot: root,
		Format:     "wav",
		Chunk:      chunker.Config{TargetSize: 40},
		Progress: func(ProgressEvent) {
			cancel()
		},
	})

	_, err := p.Process(ctx, testChapters())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if backend.callCount() != 1 {
		t.Errorf("calls after cancel: got %d, want 1", backend.callCount())
	}
}

func TestProcess_ChunkFailureDoesNotAbort(t *testing.T) {
	root := t.TempDir()
	backend := &countingBackend{failOn: "third"}
	p := newTestProcessor(root, backend)

	report, err := p.Process(context.Background(), testChapters())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if report.Complete() {
		t.Fatal("expected at least one failed chunk")
	}
	// The second chapter must still have been processed in full.
	last := report.Chapters[len(report.Chapters)-1]
	if last.ChunksCompleted != last.ChunksExpected {
		t.Errorf("second chapter incomplete: %d/%d", last.ChunksCompleted, last.ChunksExpected)
	}
}

func writeChunk(t *testing.T, dir string, index int, n int, rate int) {
	t.Helper()
	if err := audio.WriteWAV(filepath.Join(dir, ChunkFileName(index, "wav")), make([]float32, n), rate); err != nil {
		t.Fatal(err)
	}
}

func TestMergeChapter_Concatenates(t *testing.T) {
	dir := t.TempDir()
	writeChunk(t, dir, 1, 100, 24000)
	writeChunk(t, dir, 2, 50, 24000)

	m := NewMerger("wav", nil)
	samples, rate, err := m.MergeChapter(dir)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if rate != 24000 {
		t.Errorf("rate: got %d", rate)
	}
	if len(samples) != 150 {
		t.Errorf("sample count: got %d, want 150", len(samples))
	}
}

func TestMergeChapter_GapFails(t *testing.T) {
	dir := t.TempDir()
	writeChunk(t, dir, 1, 10, 24000)
	writeChunk(t, dir, 2, 10, 24000)
	writeChunk(t, dir, 4, 10, 24000)

	m := NewMerger("wav", nil)
	_, _, err := m.MergeChapter(dir)
	var missing *MissingChunkError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingChunkError, got %v", err)
	}
	if missing.Index != 3 {
		t.Errorf("missing index: got %d, want 3", missing.Index)
	}
}

func TestMergeChapter_RateMismatchSkipsChunk(t *testing.T) {
	dir := t.TempDir()
	writeChunk(t, dir, 1, 100, 24000)
	writeChunk(t, dir, 2, 100, 22050)
	writeChunk(t, dir, 3, 100, 24000)

	m := NewMerger("wav", nil)
	samples, rate, err := m.MergeChapter(dir)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if rate != 24000 {
		t.Errorf("rate: got %d", rate)
	}
	if len(samples) != 200 {
		t.Errorf("sample count: got %d, want 200 (mismatched chunk skipped)", len(samples))
	}
}

func TestMergeAll_NamesFromInfoTitle(t *testing.T) {
	root := t.TempDir()
	backend := &countingBackend{}
	p := newTestProcessor(root, backend)
	if _, err := p.Process(context.Background(), testChapters()); err != nil {
		t.Fatal(err)
	}

	m := NewMerger("wav", nil)
	written, err := m.MergeAll(root)
	if err != nil {
		t.Fatalf("merge all: %v", err)
	}
	if len(written) != 2 {
		t.Fatalf("written count: got %d, want 2", len(written))
	}
	if got := filepath.Base(written[0]); got != "The First Step.wav" {
		t.Errorf("first merged name: got %q", got)
	}
}

func TestMergeAll_WritesCaptionTracks(t *testing.T) {
	root := t.TempDir()
	backend := &countingBackend{}
	p := newTestProcessor(root, backend)
	chapters := testChapters()
	if _, err := p.Process(context.Background(), chapters); err != nil {
		t.Fatal(err)
	}

	cfg := chunker.Config{TargetSize: 40}
	m := NewMerger("wav", nil)
	m.Captions = CaptionsFor(chapters, cfg)
	written, err := m.MergeAll(root)
	if err != nil {
		t.Fatalf("merge all: %v", err)
	}

	for _, path := range written {
		srt := strings.TrimSuffix(path, filepath.Ext(path)) + ".srt"
		if _, err := os.Stat(srt); err != nil {
			t.Errorf("caption track missing for %s: %v", path, err)
		}
	}

	data, err := os.ReadFile(strings.TrimSuffix(written[0], ".wav") + ".srt")
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "1\n00:00:00,000 --> ") {
		t.Errorf("first cue malformed: %q", content)
	}
	firstChapterChunks := chunker.Split(chapters[0].Content, cfg)
	if !strings.Contains(content, firstChapterChunks[0]) {
		t.Errorf("caption track missing first chunk text %q", firstChapterChunks[0])
	}
	if got := strings.Count(content, " --> "); got != len(firstChapterChunks) {
		t.Errorf("cue count: got %d, want %d", got, len(firstChapterChunks))
	}
}

func TestMergeAll_NoCaptionsWithoutTexts(t *testing.T) {
	root := t.TempDir()
	backend := &countingBackend{}
	p := newTestProcessor(root, backend)
	if _, err := p.Process(context.Background(), testChapters()); err != nil {
		t.Fatal(err)
	}

	m := NewMerger("wav", nil)
	written, err := m.MergeAll(root)
	if err != nil {
		t.Fatalf("merge all: %v", err)
	}
	for _, path := range written {
		srt := strings.TrimSuffix(path, filepath.Ext(path)) + ".srt"
		if _, err := os.Stat(srt); err == nil {
			t.Errorf("unexpected caption track %s", srt)
		}
	}
}

func TestSafeTitle(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"The First Step", "The First Step"},
		{"What? A Title!", "What A Title"},
		{"  spaced   out  ", "spaced out"},
		{"under_score-dash", "under_score-dash"},
		{"???", ""},
	}
	for _, tc := range cases {
		if got := SafeTitle(tc.in); got != tc.want {
			t.Errorf("SafeTitle(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}
