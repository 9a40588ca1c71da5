package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"geoquery/pkg/apisession"
	"geoquery/pkg/model"
	"geoquery/pkg/tracker"
	"geoquery/pkg/version"
)

// Pipeline is the request-handling surface the server needs.
type Pipeline interface {
	Handle(ctx context.Context, q model.Query) *model.FinalResponse
	HandleWithSink(ctx context.Context, q model.Query, sink func(string)) *model.FinalResponse
}

// sessionTTL is how long an idle client session keeps its history.
const sessionTTL = 30 * time.Minute

// historyEntry is one past query within a session.
type historyEntry struct {
	Query     string          `json:"query"`
	Summary   string          `json:"summary"`
	Success   bool            `json:"success"`
	ErrorType model.ErrorType `json:"error_type,omitempty"`
	At        time.Time       `json:"at"`
}

// sessionHistory is the per-session state: a bounded list of recent
// queries, newest last.
type sessionHistory struct {
	mu      sync.Mutex
	entries []historyEntry
}

const maxHistoryEntries = 20

func (h *sessionHistory) add(e historyEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
	if len(h.entries) > maxHistoryEntries {
		h.entries = h.entries[len(h.entries)-maxHistoryEntries:]
	}
}

func (h *sessionHistory) list() []historyEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]historyEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Server exposes the HTTP API.
type Server struct {
	agent    Pipeline
	tracker  *tracker.Tracker
	sessions *apisession.Store[sessionHistory]
}

// New creates a Server.
func New(agent Pipeline, tr *tracker.Tracker) *Server {
	return &Server{
		agent:    agent,
		tracker:  tr,
		sessions: apisession.New(sessionTTL, func() *sessionHistory { return &sessionHistory{} }),
	}
}

// Routes builds the request mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /api/analyze/stream", s.handleStream)
	mux.HandleFunc("GET /api/session/history", s.handleSessionHistory)
	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// statusFor maps the error taxonomy onto HTTP status codes. Degraded
// fallbacks arrive with Success=true and map to 200.
func statusFor(resp *model.FinalResponse) int {
	if resp.Success {
		return http.StatusOK
	}
	switch resp.ErrorType {
	case model.ErrValidation:
		return http.StatusBadRequest
	case model.ErrAreaTooLarge:
		return http.StatusRequestEntityTooLarge
	case model.ErrQuotaExceeded:
		return http.StatusTooManyRequests
	case model.ErrTimeout:
		return http.StatusRequestTimeout
	case model.ErrNoData:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type analyzeRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "invalid request body",
			"error_type": model.ErrValidation,
		})
		return
	}

	resp := s.agent.Handle(r.Context(), model.Query{Text: req.Query, SessionID: req.SessionID})
	s.recordHistory(req, resp)
	writeJSON(w, statusFor(resp), resp)
}

func (s *Server) recordHistory(req analyzeRequest, resp *model.FinalResponse) {
	if req.SessionID == "" {
		return
	}
	s.sessions.Cleanup()
	s.sessions.Get(req.SessionID).add(historyEntry{
		Query:     req.Query,
		Summary:   resp.Summary,
		Success:   resp.Success,
		ErrorType: resp.ErrorType,
		At:        time.Now().UTC(),
	})
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "session_id is required",
			"error_type": model.ErrValidation,
		})
		return
	}

	hist, ok := s.sessions.Peek(id)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "history": []historyEntry{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "history": hist.list()})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": version.Version})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
