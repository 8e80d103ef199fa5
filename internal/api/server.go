package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"

	"wildcut/internal/config"
	"wildcut/internal/joblog"
	"wildcut/internal/jobs"
	"wildcut/internal/logging"
	"wildcut/internal/preflight"
)

// Version is reported by /api/status.
const Version = "0.1.0"

// Server exposes the job orchestrator over HTTP.
type Server struct {
	cfg    *config.Config
	store  *jobs.Store
	runner *jobs.Runner
	hub    *jobs.Hub
	logger *slog.Logger
}

// NewServer builds a Server over the shared store, runner, and hub.
func NewServer(cfg *config.Config, store *jobs.Store, runner *jobs.Runner, hub *jobs.Hub, logger *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		store:  store,
		runner: runner,
		hub:    hub,
		logger: logging.WithComponent(logger, "api"),
	}
}

// Router wires the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/files", s.handleFiles)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Post("/", s.handleCreateJob)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetJob)
				r.Delete("/", s.handleDeleteJob)
				r.Post("/cancel", s.handleCancelJob)
				r.Post("/retry", s.handleRetryJob)
				r.Get("/log", s.handleJobLog)
				r.Get("/events", s.handleJobEvents)
			})
		})
	})
	return r
}

// Serve runs the HTTP server on the configured bind address until ctx is
// cancelled.
func (s *Server) Serve(ctx context.Context) error {
	bind := strings.TrimSpace(s.cfg.Paths.APIBind)
	if bind == "" {
		<-ctx.Done()
		return nil
	}

	srv := &http.Server{
		Addr:              bind,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("api server listening", logging.String("address", bind))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	statuses := preflight.CheckSystemDeps(r.Context(), s.cfg)
	depViews := make([]DependencyStatus, 0, len(statuses))
	for _, status := range statuses {
		depViews = append(depViews, DependencyStatus{
			Name:      status.Name,
			Command:   status.Command,
			Available: status.Available,
			Detail:    status.Detail,
		})
	}

	s.writeJSON(w, http.StatusOK, StatusResponse{
		Version:      Version,
		JobDBPath:    s.store.Path(),
		ActiveJobs:   s.runner.ActiveCount(),
		JobCounts:    counts,
		Dependencies: depViews,
	})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	jobType, err := jobs.ParseType(strings.TrimSpace(req.Type))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	args, err := jobs.DecodeArguments(jobType, req.Arguments)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.store.Create(r.Context(), jobType, strings.TrimSpace(req.Camera), args)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("job created",
		logging.String("job_id", job.ID),
		logging.String("type", string(job.Type)),
		logging.String("camera", job.Camera))
	s.writeJSON(w, http.StatusCreated, JobResponse{Job: job})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.Filter{
		Status: jobs.Status(strings.TrimSpace(query.Get("status"))),
		Camera: strings.TrimSpace(query.Get("camera")),
		Type:   jobs.Type(strings.TrimSpace(query.Get("type"))),
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}

	list, err := s.store.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, JobListResponse{Jobs: list})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, JobResponse{Job: job})
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	if err := s.runner.Cancel(r.Context(), job.ID); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	updated, err := s.store.GetByID(r.Context(), job.ID)
	if err != nil || updated == nil {
		updated = job
	}
	s.writeJSON(w, http.StatusOK, JobResponse{Job: updated})
}

func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	clone, err := s.runner.Retry(r.Context(), job.ID)
	if err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, JobResponse{Job: clone})
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	if err := s.runner.Delete(r.Context(), job.ID); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJobLog(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	if job.LogFile == "" {
		s.writeJSON(w, http.StatusOK, LogResponse{Lines: nil, Offset: 0})
		return
	}

	query := r.URL.Query()
	opts := joblog.TailOptions{Offset: -1, Limit: 100}
	if lines, err := strconv.Atoi(query.Get("lines")); err == nil && lines > 0 {
		opts.Limit = lines
	}
	if offset, err := strconv.ParseInt(query.Get("offset"), 10, 64); err == nil && offset >= 0 {
		opts.Offset = offset
	}
	if query.Get("follow") == "1" || strings.EqualFold(query.Get("follow"), "true") {
		opts.Follow = true
		opts.Wait = 10 * time.Second
	}

	result, err := joblog.Tail(r.Context(), job.LogFile, opts)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, LogResponse{Lines: result.Lines, Offset: result.Offset})
}

// handleJobEvents streams hub events for one job as newline-delimited JSON.
// The first event is always the job's latest known state.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	flusher, canFlush := w.(http.Flusher)

	ch, cancel := s.hub.Subscribe(job.ID)
	defer cancel()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	encoder := json.NewEncoder(w)

	// A hub that has never seen this job (it finished before a daemon
	// restart) will not deliver anything, so the snapshot comes from the
	// stored record instead.
	if _, ok := s.hub.Snapshot(job.ID); !ok {
		seed := jobs.Event{
			JobID:    job.ID,
			Status:   job.Status,
			Progress: job.Progress,
			Time:     time.Now().UTC(),
		}
		if err := encoder.Encode(seed); err != nil {
			return
		}
		if canFlush {
			flusher.Flush()
		}
		if job.Status.Terminal() {
			return
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-ch:
			if !open {
				return
			}
			if err := encoder.Encode(event); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
			if event.Status.Terminal() {
				return
			}
		}
	}
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.cfg.Paths.OutputDir)
	if err != nil {
		if os.IsNotExist(err) {
			s.writeJSON(w, http.StatusOK, FileListResponse{Files: nil})
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	files := make([]FileEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".mp4" && ext != ".m3u8" && ext != ".json" && ext != ".txt" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileEntry{
			Name:     entry.Name(),
			Size:     info.Size(),
			Modified: info.ModTime().UTC().Format(time.RFC3339),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Modified > files[j].Modified })
	s.writeJSON(w, http.StatusOK, FileListResponse{Files: files})
}

// lookupJob resolves the {id} route param, writing the error response itself
// when the job cannot be served.
func (s *Server) lookupJob(w http.ResponseWriter, r *http.Request) (*jobs.Job, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "missing job id")
		return nil, false
	}
	job, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return nil, false
	}
	return job, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
