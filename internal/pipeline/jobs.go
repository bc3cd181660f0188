package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// JobStatus represents the state of a narration job.
type JobStatus string

const (
	StatusQueued       JobStatus = "queued"
	StatusExtracting   JobStatus = "extracting"
	StatusSynthesizing JobStatus = "synthesizing"
	StatusMerging      JobStatus = "merging"
	StatusCompleted    JobStatus = "completed"
	StatusFailed       JobStatus = "failed"
	StatusPartial      JobStatus = "partial"
)

// Job tracks the state of a single document narration.
type Job struct {
	mu sync.Mutex

	ID          string `json:"job_id"`
	NarrationID string `json:"narration_id,omitempty"`

	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Filename string    `json:"filename"`

	Voice  string  `json:"voice"`
	Speed  float64 `json:"speed"`
	Lang   string  `json:"lang"`
	Format string  `json:"format"`

	Progress Progress `json:"progress"`

	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	sourcePath string
	outputDir  string
	errors     []string
}

// Progress tracks how far a narration has gotten.
type Progress struct {
	TotalChapters   int      `json:"total_chapters"`
	TotalChunks     int      `json:"total_chunks"`
	ChunksCompleted int      `json:"chunks_completed"`
	MergedFiles     int      `json:"merged_files"`
	Errors          []string `json:"errors"`
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetCounts records the chapter and chunk totals.
func (j *Job) SetCounts(chapters, chunks int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.TotalChapters = chapters
	j.Progress.TotalChunks = chunks
	j.UpdatedAt = time.Now()
}

// SetChunksCompleted records the completed chunk artifact count.
func (j *Job) SetChunksCompleted(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.ChunksCompleted = n
	j.UpdatedAt = time.Now()
}

// SetMergedFiles records how many chapter files were merged.
func (j *Job) SetMergedFiles(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.MergedFiles = n
	j.UpdatedAt = time.Now()
}

// SetNarrationID links the job to its registry entry.
func (j *Job) SetNarrationID(id string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.NarrationID = id
	j.UpdatedAt = time.Now()
}

// SetPaths sets the on-disk source and output locations.
func (j *Job) SetPaths(source, output string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sourcePath = source
	j.outputDir = output
}

// SourcePath returns the uploaded document's path.
func (j *Job) SourcePath() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sourcePath
}

// OutputDir returns the chapter-layout output root.
func (j *Job) OutputDir() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.outputDir
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string    `json:"job_id"`
	NarrationID string    `json:"narration_id,omitempty"`
	Status      JobStatus `json:"status"`
	Phase       string    `json:"phase"`
	Filename    string    `json:"filename"`
	Voice       string    `json:"voice"`
	Speed       float64   `json:"speed"`
	Lang        string    `json:"lang"`
	Format      string    `json:"format"`
	Progress    Progress  `json:"progress"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := j.Progress.Errors
	if errs == nil {
		errs = []string{}
	}
	return JobSnapshot{
		ID:          j.ID,
		NarrationID: j.NarrationID,
		Status:      j.Status,
		Phase:       j.Phase,
		Filename:    j.Filename,
		Voice:       j.Voice,
		Speed:       j.Speed,
		Lang:        j.Lang,
		Format:      j.Format,
		Progress: Progress{
			TotalChapters:   j.Progress.TotalChapters,
			TotalChunks:     j.Progress.TotalChunks,
			ChunksCompleted: j.Progress.ChunksCompleted,
			MergedFiles:     j.Progress.MergedFiles,
			Errors:          errs,
		},
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		if now.Sub(job.UpdatedAt) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
// Resubmitting the same document hashes to the same output directory,
// so its finished chunks are reused instead of resynthesized.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
