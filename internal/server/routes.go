package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/polymath/internal/engine"
	"github.com/lazypower/polymath/internal/ingest"
	"github.com/lazypower/polymath/internal/store"
)

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not configured")
		return
	}

	s.genMu.Lock()
	result, err := s.engine.Run(r.Context(), userID)
	s.genMu.Unlock()

	if errors.Is(err, engine.ErrFatalPrecondition) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		log.Printf("server: generate for %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if result.Suggestions == nil {
		result.Suggestions = []store.Suggestion{}
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListSuggestions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	suggestions, err := s.db.RecentSuggestions(r.Context(), userID, queryLimit(r, 20))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if suggestions == nil {
		suggestions = []store.Suggestion{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (s *Server) handleGetSuggestion(w http.ResponseWriter, r *http.Request) {
	sug, err := s.db.GetSuggestion(r.Context(), chi.URLParam(r, "suggestionID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sug == nil || sug.UserID != chi.URLParam(r, "userID") {
		writeError(w, http.StatusNotFound, "suggestion not found")
		return
	}
	writeJSON(w, http.StatusOK, sug)
}

func (s *Server) handleInterests(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not configured")
		return
	}

	interests, err := s.engine.Interests(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if interests == nil {
		interests = []store.Interest{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"interests": interests})
}

func (s *Server) handleListCapabilities(w http.ResponseWriter, r *http.Request) {
	caps, err := s.db.ListCapabilities(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if caps == nil {
		caps = []store.Capability{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"capabilities": caps})
}

func (s *Server) handleUpsertCapability(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req struct {
		Name          string  `json:"name"`
		Description   string  `json:"description"`
		Strength      float64 `json:"strength"`
		SourceProject string  `json:"source_project"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}
	if req.Strength < 0 {
		writeError(w, http.StatusBadRequest, "strength must not be negative")
		return
	}

	c := store.Capability{
		Name:          strings.TrimSpace(req.Name),
		Description:   req.Description,
		Strength:      req.Strength,
		SourceProject: req.SourceProject,
	}
	if err := s.db.UpsertCapability(r.Context(), userID, &c); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleAddNote(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req struct {
		Body      string         `json:"body"`
		Topics    []ingest.Topic `json:"topics"`
		CreatedAt *time.Time     `json:"created_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		writeError(w, http.StatusBadRequest, "body required")
		return
	}
	for _, t := range req.Topics {
		if strings.TrimSpace(t.Name) == "" {
			writeError(w, http.StatusBadRequest, "topic name required")
			return
		}
	}

	in := ingest.NoteInput{Body: req.Body, Topics: req.Topics}
	if req.CreatedAt != nil {
		in.CreatedAt = *req.CreatedAt
	}
	note, err := s.ingest.AddNote(r.Context(), userID, in)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"note":   note,
		"topics": len(req.Topics),
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.db.ListRuns(r.Context(), chi.URLParam(r, "userID"), queryLimit(r, 20))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.db.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil || run.UserID != chi.URLParam(r, "userID") {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	suggestions, err := s.db.SuggestionsForRun(r.Context(), run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if suggestions == nil {
		suggestions = []store.Suggestion{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run":         run,
		"suggestions": suggestions,
	})
}

// queryLimit reads a positive ?limit=, falling back to def.
func queryLimit(r *http.Request, def int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			return n
		}
	}
	return def
}
