package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dgallion1/bookvoice/internal/extractor"
	"github.com/dgallion1/bookvoice/internal/pipeline"
	"github.com/dgallion1/bookvoice/internal/synth"
)

func (s *Server) handleNarrate(w http.ResponseWriter, r *http.Request) {
	// Limit total request size, with headroom for form overhead.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !extractor.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	voice := r.FormValue("voice")
	if voice == "" {
		voice = s.cfg.DefaultVoice
	}
	if _, err := synth.ParseVoice(voice); err != nil {
		jsonError(w, "invalid voice: "+err.Error(), http.StatusBadRequest)
		return
	}

	speed := s.cfg.DefaultSpeed
	if v := r.FormValue("speed"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			jsonError(w, "invalid speed: "+v, http.StatusBadRequest)
			return
		}
		speed = f
	}

	lang := r.FormValue("lang")
	if lang == "" {
		lang = s.cfg.DefaultLang
	}

	format := strings.ToLower(r.FormValue("format"))
	if format == "" {
		format = s.cfg.DefaultFormat
	}
	if format != "wav" && format != "mp3" {
		jsonError(w, "format must be wav or mp3", http.StatusBadRequest)
		return
	}

	// Content-addressed output directory: resubmitting the same
	// document resumes its unfinished chunks.
	hash := pipeline.ContentHashHex(data)
	srcPath := filepath.Join(s.cfg.DataDir, "uploads", hash[:16]+"_"+filename)
	outputDir := filepath.Join(s.cfg.DataDir, "narrations", hash[:16])
	if err := os.MkdirAll(filepath.Dir(srcPath), 0755); err != nil {
		jsonError(w, "failed to store upload", http.StatusInternalServerError)
		return
	}
	if err := os.WriteFile(srcPath, data, 0644); err != nil {
		jsonError(w, "failed to store upload", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	job := &pipeline.Job{
		ID:          uuid.NewString(),
		Status:      pipeline.StatusQueued,
		Phase:       "queued",
		Filename:    filename,
		Voice:       voice,
		Speed:       speed,
		Lang:        lang,
		Format:      format,
		ContentHash: hash,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	job.SetPaths(srcPath, outputDir)

	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":   job.ID,
		"status":   job.Status,
		"poll_url": fmt.Sprintf("/api/narrate/%s/status", job.ID),
	})
}

func (s *Server) handleNarrateStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	snap := job.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
