package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgallion1/bookvoice/internal/chunker"
	"github.com/dgallion1/bookvoice/internal/extractor"
	"github.com/dgallion1/bookvoice/internal/process"
	"github.com/dgallion1/bookvoice/internal/store"
	"github.com/dgallion1/bookvoice/internal/synth"
)

// Worker processes a single narration job end to end: extract chapters,
// synthesize chunk artifacts, merge chapters, record the result.
type Worker struct {
	driver      *synth.Driver
	chunkCfg    chunker.Config
	extractOpts extractor.Options
	registry    *store.Store
	log         *slog.Logger
}

func NewWorker(driver *synth.Driver, chunkCfg chunker.Config, extractOpts extractor.Options, registry *store.Store, log *slog.Logger) *Worker {
	return &Worker{
		driver:      driver,
		chunkCfg:    chunkCfg,
		extractOpts: extractOpts,
		registry:    registry,
		log:         log,
	}
}

// Process runs the full narration pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "filename", job.Filename)

	voice, err := synth.ParseVoice(job.Voice)
	if err != nil {
		log.Error("invalid voice selector", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "configuration")
		return
	}

	// Phase 1: Extract chapters.
	job.SetStatus(StatusExtracting, "extracting chapters")
	ext, err := extractor.ForFile(job.SourcePath(), w.extractOpts)
	if err != nil {
		log.Error("unsupported format", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "extracting")
		return
	}
	chapters, err := ext.Extract(job.SourcePath())
	if err != nil {
		log.Error("extraction failed", "error", err)
		job.AddError(fmt.Sprintf("extract: %s", err))
		job.SetStatus(StatusFailed, "extracting")
		return
	}

	totalChunks := 0
	totalWords := 0
	for _, ch := range chapters {
		totalChunks += len(chunker.Split(ch.Content, w.chunkCfg))
		totalWords += ch.WordCount()
	}
	job.SetCounts(len(chapters), totalChunks)
	log.Info("extracted chapters",
		"chapters", len(chapters), "chunks", totalChunks, "words", totalWords)

	if w.registry != nil {
		n, err := w.registry.Add(store.Narration{
			SourcePath: job.Filename,
			OutputDir:  job.OutputDir(),
			Voice:      job.Voice,
			Speed:      job.Speed,
			Lang:       job.Lang,
			Format:     job.Format,
			Chapters:   len(chapters),
			Chunks:     totalChunks,
		})
		if err != nil {
			log.Warn("registry write failed", "error", err)
		} else {
			job.SetNarrationID(n.ID)
		}
	}

	// Phase 2: Synthesize chunk artifacts, resuming past work under
	// the same output directory.
	job.SetStatus(StatusSynthesizing, "synthesizing chunks")
	proc := process.NewProcessor(w.driver, process.Config{
		OutputRoot: job.OutputDir(),
		Format:     job.Format,
		Chunk:      w.chunkCfg,
		Voice:      voice,
		Speed:      job.Speed,
		Lang:       job.Lang,
		Log:        w.log,
	})
	report, err := proc.Process(ctx, chapters)
	job.SetChunksCompleted(report.ChunksCompleted())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("job cancelled, artifacts remain for resume")
			job.SetStatus(StatusFailed, "cancelled")
		} else {
			log.Error("synthesis failed", "error", err)
			job.AddError(fmt.Sprintf("synthesize: %s", err))
			job.SetStatus(StatusFailed, "synthesizing")
		}
		return
	}

	// Phase 3: Merge chapter chunks into per-chapter audio files, each
	// with an SRT caption track alongside.
	job.SetStatus(StatusMerging, "merging chapters")
	merger := process.NewMerger(job.Format, w.log)
	merger.Captions = process.CaptionsFor(chapters, w.chunkCfg)
	written, mergeErr := merger.MergeAll(job.OutputDir())
	job.SetMergedFiles(len(written))
	if mergeErr != nil {
		log.Warn("merge incomplete", "written", len(written), "error", mergeErr)
		job.AddError(fmt.Sprintf("merge: %s", mergeErr))
	}

	if narrationID := job.Snapshot().NarrationID; w.registry != nil && narrationID != "" {
		if _, err := w.registry.Update(narrationID, func(n *store.Narration) {
			n.ChunksDone = report.ChunksCompleted()
		}); err != nil {
			log.Warn("registry update failed", "error", err)
		}
	}

	switch {
	case report.Complete() && mergeErr == nil:
		job.SetStatus(StatusCompleted, "done")
	case report.ChunksCompleted() > 0:
		job.SetStatus(StatusPartial, "done")
	default:
		job.SetStatus(StatusFailed, "synthesizing")
	}
	log.Info("job finished",
		"status", job.Snapshot().Status,
		"chunks_completed", report.ChunksCompleted(),
		"chunks_expected", report.ChunksExpected(),
		"merged", len(written),
	)
}
