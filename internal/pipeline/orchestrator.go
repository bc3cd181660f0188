// Package pipeline runs narration jobs through extraction, synthesis,
// and merging on a bounded worker pool.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/bookvoice/internal/chunker"
	"github.com/dgallion1/bookvoice/internal/config"
	"github.com/dgallion1/bookvoice/internal/extractor"
	"github.com/dgallion1/bookvoice/internal/store"
	"github.com/dgallion1/bookvoice/internal/synth"
)

// Orchestrator manages the narration pipeline: a job queue, a worker
// pool, and the shared synthesis driver and stats.
type Orchestrator struct {
	jobs     *JobStore
	queue    chan *Job
	driver   *synth.Driver
	stats    *synth.Stats
	registry *store.Store
	log      *slog.Logger
	cfg      config.Config
	chunkCfg chunker.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline around an injected synthesis
// backend. Transient backend errors are retried with backoff before
// they reach the split-retry driver.
func NewOrchestrator(cfg config.Config, backend synth.Synthesizer, registry *store.Store, log *slog.Logger) *Orchestrator {
	stats := synth.NewStats()
	retrying := &RetryingSynthesizer{Backend: backend, Log: log}
	return &Orchestrator{
		jobs:     NewJobStore(cfg.JobTTL),
		queue:    make(chan *Job, cfg.MaxQueueSize),
		driver:   synth.NewDriver(retrying, stats, log),
		stats:    stats,
		registry: registry,
		log:      log,
		cfg:      cfg,
		chunkCfg: chunker.Config{TargetSize: cfg.ChunkTargetSize},
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	extractOpts := extractor.Options{
		MinChapterChars: o.cfg.MinChapterChars,
		Log:             o.log,
	}

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.driver, o.chunkCfg, extractOpts, o.registry, o.log)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline. In-flight jobs stop at the
// next chunk boundary; their artifacts stay valid for resume.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Stats returns the shared synthesis counters.
func (o *Orchestrator) Stats() *synth.Stats {
	return o.stats
}

// Registry returns the narration registry for direct use by API handlers.
func (o *Orchestrator) Registry() *store.Store {
	return o.registry
}
