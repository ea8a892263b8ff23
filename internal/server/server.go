// Package server exposes the verification pipeline over HTTP: submit
// text with citation spans, poll task status, fetch rendered output.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/citewatch/citewatch/internal/highlight"
	"github.com/citewatch/citewatch/internal/model"
	"github.com/citewatch/citewatch/internal/task"
	"github.com/citewatch/citewatch/internal/usage"
)

// Server wires the task registry and usage tracker behind a chi router
type Server struct {
	registry *task.Registry
	tracker  *usage.Tracker
	started  time.Time
	router   chi.Router
}

// New builds the HTTP surface. The registry stays owned by the caller;
// shutting it down is not the server's job.
func New(registry *task.Registry, tracker *usage.Tracker) *Server {
	s := &Server{
		registry: registry,
		tracker:  tracker,
		started:  time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Post("/verify", s.handleVerify)
	r.Route("/task/{taskID}", func(r chi.Router) {
		r.Get("/", s.handleTaskStatus)
		r.Get("/render", s.handleTaskRender)
		r.Post("/cancel", s.handleTaskCancel)
		r.Delete("/", s.handleTaskClear)
	})
	r.Get("/system/status", s.handleSystemStatus)
	r.Get("/usage/stats", s.handleUsageStats)

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe runs the server until the listener fails
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

type verifyRequest struct {
	Text  string               `json:"text"`
	Spans []model.CitationSpan `json:"citations"`
}

type verifyResponse struct {
	TaskID *string `json:"task_id"`
}

// handleVerify accepts a submission and returns the task identifier
// immediately. No detected citations is a successful no-op: the client
// gets a null task id and nothing to poll.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := s.registry.Submit(req.Text, req.Spans)
	switch {
	case errors.Is(err, task.ErrEmptyInput):
		writeJSON(w, http.StatusOK, verifyResponse{TaskID: nil})
	case errors.Is(err, task.ErrRegistryClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, verifyResponse{TaskID: &id})
	}
}

type taskStatusResponse struct {
	TaskID     string                      `json:"task_id"`
	Status     model.TaskStatus            `json:"status"`
	Progress   float64                     `json:"progress"`
	Completed  bool                        `json:"completed"`
	HasPartial bool                        `json:"has_partial"`
	Error      string                      `json:"error,omitempty"`
	Outcomes   []model.VerificationOutcome `json:"results"`
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, taskStatusResponse{
		TaskID:     snap.ID,
		Status:     snap.Status,
		Progress:   snap.Progress,
		Completed:  snap.Completed(),
		HasPartial: snap.HasPartial(),
		Error:      snap.Error,
		Outcomes:   snap.OrderedOutcomes(),
	})
}

type renderResponse struct {
	TaskID string `json:"task_id"`
	HTML   string `json:"html"`
	Panel  string `json:"panel"`
}

// handleTaskRender returns the source text with verification markup
// spliced in. Works on running tasks too: unresolved spans render as
// pending.
func (s *Server) handleTaskRender(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.lookup(w, r)
	if !ok {
		return
	}

	anns, err := highlight.Annotate(snap.SourceText, snap.Spans, snap.OrderedOutcomes())
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	var renderer highlight.HTMLRenderer
	html, err := renderer.RenderText(snap.SourceText, anns)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, renderResponse{
		TaskID: snap.ID,
		HTML:   html,
		Panel:  renderer.RenderPanel(anns),
	})
}

func (s *Server) handleTaskCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	if err := s.registry.Cancel(id); err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"task_id": id, "status": "cancelled"})
}

func (s *Server) handleTaskClear(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	if err := s.registry.Clear(id); err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active_tasks":   s.registry.ActiveTasks(),
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleUsageStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Stats())
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (model.TaskSnapshot, bool) {
	id := chi.URLParam(r, "taskID")
	snap, err := s.registry.Snapshot(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return model.TaskSnapshot{}, false
	}
	return snap, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
