// Package process orchestrates extraction, chunking, and synthesis
// over a whole document, persisting one audio artifact per chunk so an
// interrupted run can be resumed without redoing finished work.
package process

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/bookvoice/internal/audio"
	"github.com/dgallion1/bookvoice/internal/chunker"
	"github.com/dgallion1/bookvoice/internal/document"
	"github.com/dgallion1/bookvoice/internal/synth"
)

// Config carries the knobs for one processing run. OutputRoot and the
// chunking target must stay stable across resumed runs; changing the
// chunk target silently invalidates the resume cache.
type Config struct {
	OutputRoot string
	Format     string // wav or mp3
	Chunk      chunker.Config
	Voice      synth.Voice
	Speed      float64
	Lang       string
	Log        *slog.Logger

	// Progress, when set, is called after every chunk attempt. It must
	// not block; it exists purely for user feedback.
	Progress func(ProgressEvent)
}

// ProgressEvent describes the position of the run after one chunk.
type ProgressEvent struct {
	ChapterTitle string
	ChapterIndex int
	ChapterCount int
	ChunkIndex   int
	ChunkCount   int
	ChunkDone    bool
}

// ChapterReport is the per-chapter outcome of a run.
type ChapterReport struct {
	Title           string
	Dir             string
	ChunksExpected  int
	ChunksCompleted int
	AlreadyComplete bool
}

// Report summarizes a whole run.
type Report struct {
	Chapters []ChapterReport
}

// ChunksExpected totals the chunk counts across chapters.
func (r Report) ChunksExpected() int {
	n := 0
	for _, ch := range r.Chapters {
		n += ch.ChunksExpected
	}
	return n
}

// ChunksCompleted totals the completed chunk artifacts across chapters.
func (r Report) ChunksCompleted() int {
	n := 0
	for _, ch := range r.Chapters {
		n += ch.ChunksCompleted
	}
	return n
}

// Complete reports whether every expected chunk has an artifact.
func (r Report) Complete() bool {
	return r.ChunksExpected() == r.ChunksCompleted()
}

// Processor drives chapters through chunking and synthesis, one chunk
// at a time. The synthesis backend is typically GPU-bound, so chunks
// are deliberately not parallelized.
type Processor struct {
	driver *synth.Driver
	cfg    Config
	log    *slog.Logger
}

func NewProcessor(driver *synth.Driver, cfg Config) *Processor {
	if cfg.Format == "" {
		cfg.Format = "wav"
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Processor{driver: driver, cfg: cfg, log: log}
}

// Process synthesizes every chapter into the on-disk layout
// chapter_NNN/chunk_MMM.<ext>, skipping chunks whose artifacts already
// exist. Cancellation is honored at chunk and chapter boundaries;
// artifacts already written stay valid for the next resume.
func (p *Processor) Process(ctx context.Context, chapters []document.Chapter) (Report, error) {
	var report Report
	for i, chapter := range chapters {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		cr, err := p.processChapter(ctx, chapter, i, len(chapters))
		report.Chapters = append(report.Chapters, cr)
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

func (p *Processor) processChapter(ctx context.Context, chapter document.Chapter, idx, total int) (ChapterReport, error) {
	chunks := chunker.Split(chapter.Content, p.cfg.Chunk)
	dir := filepath.Join(p.cfg.OutputRoot, ChapterDirName(chapter.Order))
	cr := ChapterReport{
		Title:          chapter.Title,
		Dir:            dir,
		ChunksExpected: len(chunks),
	}

	if done, err := countChunkArtifacts(dir, p.cfg.Format); err == nil && done == len(chunks) && len(chunks) > 0 {
		p.log.Info("chapter already complete, skipping",
			"chapter", chapter.Title, "chunks", len(chunks))
		cr.ChunksCompleted = done
		cr.AlreadyComplete = true
		return cr, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return cr, fmt.Errorf("create chapter directory: %w", err)
	}
	if err := writeInfoFile(dir, chapter.Title); err != nil {
		return cr, err
	}

	for j, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return cr, err
		}
		artifact := filepath.Join(dir, ChunkFileName(j+1, p.cfg.Format))
		if artifactComplete(artifact) {
			// A resumed run: a non-empty artifact is trusted as-is.
			cr.ChunksCompleted++
			p.notify(chapter.Title, idx, total, j, len(chunks), true)
			continue
		}

		result, err := p.driver.SynthesizeChunk(ctx, synth.Request{
			Text:  chunk,
			Voice: p.cfg.Voice,
			Speed: p.cfg.Speed,
			Lang:  p.cfg.Lang,
		})
		if err != nil {
			if ctx.Err() != nil {
				return cr, ctx.Err()
			}
			p.log.Error("chunk synthesis failed, continuing",
				"chapter", chapter.Title, "chunk", j+1, "error", err)
			p.notify(chapter.Title, idx, total, j, len(chunks), false)
			continue
		}

		if err := audio.WriteFile(artifact, result.Samples, result.SampleRate, p.cfg.Format); err != nil {
			p.log.Error("writing chunk artifact failed",
				"chapter", chapter.Title, "chunk", j+1, "error", err)
			p.notify(chapter.Title, idx, total, j, len(chunks), false)
			continue
		}
		cr.ChunksCompleted++
		p.notify(chapter.Title, idx, total, j, len(chunks), true)
	}
	return cr, nil
}

func (p *Processor) notify(title string, chIdx, chTotal, ckIdx, ckTotal int, done bool) {
	if p.cfg.Progress == nil {
		return
	}
	p.cfg.Progress(ProgressEvent{
		ChapterTitle: title,
		ChapterIndex: chIdx + 1,
		ChapterCount: chTotal,
		ChunkIndex:   ckIdx + 1,
		ChunkCount:   ckTotal,
		ChunkDone:    done,
	})
}

// ChapterDirName returns the zero-padded chapter directory name for a
// 1-based chapter order.
func ChapterDirName(order int) string {
	return fmt.Sprintf("chapter_%03d", order)
}

// ChunkFileName returns the zero-padded artifact name for a 1-based
// chunk index.
func ChunkFileName(index int, format string) string {
	return fmt.Sprintf("chunk_%03d.%s", index, strings.ToLower(format))
}

func writeInfoFile(dir, title string) error {
	path := filepath.Join(dir, "info.txt")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte("Title: "+title+"\n"), 0644)
}

// readInfoTitle reads the chapter title back from info.txt.
func readInfoTitle(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "info.txt"))
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if rest, ok := strings.CutPrefix(line, "Title:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// wavHeaderBytes is the size of a bare PCM WAV header. An artifact at
// or below this size holds no audio.
const wavHeaderBytes = 44

// artifactComplete reports whether a chunk artifact exists and holds
// audio payload. Empty or truncated files left by an interrupted write
// do not count as done and are re-synthesized on resume.
func artifactComplete(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Size() > wavHeaderBytes
}

func countChunkArtifacts(dir, format string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	suffix := "." + strings.ToLower(format)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "chunk_") || !strings.HasSuffix(name, suffix) {
			continue
		}
		fi, err := e.Info()
		if err != nil || fi.Size() <= wavHeaderBytes {
			continue
		}
		n++
	}
	return n, nil
}
