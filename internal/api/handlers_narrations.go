package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/bookvoice/internal/store"
)

// handleListNarrations lists all registered narrations, newest first.
func (s *Server) handleListNarrations(w http.ResponseWriter, r *http.Request) {
	registry := s.orchestrator.Registry()
	if registry == nil {
		jsonError(w, "narration registry unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"narrations": registry.List()})
}

func (s *Server) handleGetNarration(w http.ResponseWriter, r *http.Request) {
	registry := s.orchestrator.Registry()
	if registry == nil {
		jsonError(w, "narration registry unavailable", http.StatusServiceUnavailable)
		return
	}
	n, err := registry.Get(chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, "narration not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(n)
}

// handleDeleteNarration removes a registry entry. The audio artifacts
// on disk are left alone; they may still be serving a resume.
func (s *Server) handleDeleteNarration(w http.ResponseWriter, r *http.Request) {
	registry := s.orchestrator.Registry()
	if registry == nil {
		jsonError(w, "narration registry unavailable", http.StatusServiceUnavailable)
		return
	}
	err := registry.Remove(chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, "narration not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
