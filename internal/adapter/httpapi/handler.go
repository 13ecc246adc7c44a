// Package httpapi exposes the job control surface: status, health, history
// and manual triggers. It is a thin JSON layer over the jobs usecase.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pcervantes/patrimonio-backend/internal/domain"
	"github.com/pcervantes/patrimonio-backend/internal/usecase/jobs"
)

// staleAfter is how long after its start a price-update run may be the
// latest one before the pipeline is reported unhealthy. The job is daily;
// the extra hour absorbs schedule drift.
const staleAfter = 25 * time.Hour

const defaultHistoryLimit = 20
const maxHistoryLimit = 100

// Server handles the job API requests
type Server struct {
	tracker  *jobs.Tracker
	runner   *jobs.Runner
	schedule []jobs.Entry
	timezone string
	log      zerolog.Logger
	mux      *http.ServeMux
	now      func() time.Time
}

// NewServer creates a new Server instance with its routes registered.
// schedule and timezone are echoed back by the status endpoint.
func NewServer(tracker *jobs.Tracker, runner *jobs.Runner, schedule []jobs.Entry, timezone string, log zerolog.Logger) *Server {
	s := &Server{
		tracker:  tracker,
		runner:   runner,
		schedule: schedule,
		timezone: timezone,
		log:      log,
		mux:      http.NewServeMux(),
		now:      time.Now,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/jobs/status", s.handleStatus)
	s.mux.HandleFunc("/api/jobs/health", s.handleHealth)
	s.mux.HandleFunc("/api/jobs/history", s.handleHistory)
	s.mux.HandleFunc("/api/jobs/trigger/", s.handleTrigger)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// runDTO is the wire shape of a job run
type runDTO struct {
	ID           string         `json:"id"`
	JobName      string         `json:"jobName"`
	Status       string         `json:"status"`
	StartedAt    time.Time      `json:"startedAt"`
	CompletedAt  *time.Time     `json:"completedAt,omitempty"`
	DurationMS   *int64         `json:"durationMs,omitempty"`
	Processed    int            `json:"processed"`
	Succeeded    int            `json:"succeeded"`
	Failed       int            `json:"failed"`
	Details      map[string]any `json:"details,omitempty"`
	ErrorMessage *string        `json:"errorMessage,omitempty"`
}

func toRunDTO(run *domain.JobRun) *runDTO {
	if run == nil {
		return nil
	}
	return &runDTO{
		ID:           run.ID.String(),
		JobName:      string(run.JobName),
		Status:       string(run.Status),
		StartedAt:    run.StartedAt,
		CompletedAt:  run.CompletedAt,
		DurationMS:   run.DurationMS,
		Processed:    run.Processed,
		Succeeded:    run.Succeeded,
		Failed:       run.Failed,
		Details:      run.Details,
		ErrorMessage: run.ErrorMessage,
	}
}

type jobStatus struct {
	ScheduledAt string  `json:"scheduledAt,omitempty"`
	Running     bool    `json:"running"`
	LatestRun   *runDTO `json:"latestRun"`
}

// handleStatus reports, per job, whether a run is active and the latest run
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	statuses := make(map[string]jobStatus)
	for _, name := range []domain.JobName{domain.JobPriceUpdate, domain.JobSnapshotCreation} {
		running, err := s.tracker.IsRunning(r.Context(), name)
		if err != nil {
			s.log.Error().Str("job", string(name)).Err(err).Msg("status lookup failed")
			httpError(w, http.StatusInternalServerError, "failed to read job status")
			return
		}
		latest, err := s.tracker.GetLatest(r.Context(), name)
		if err != nil {
			s.log.Error().Str("job", string(name)).Err(err).Msg("status lookup failed")
			httpError(w, http.StatusInternalServerError, "failed to read job status")
			return
		}
		statuses[string(name)] = jobStatus{
			ScheduledAt: s.scheduledAt(name),
			Running:     running,
			LatestRun:   toRunDTO(latest),
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"timezone": s.timezone,
		"jobs":     statuses,
	})
}

func (s *Server) scheduledAt(name domain.JobName) string {
	for _, entry := range s.schedule {
		if entry.Job == name {
			return entry.At
		}
	}
	return ""
}

// handleHealth reports whether the price pipeline is alive: the latest
// price-update run must exist, must not have failed, and must have started
// within the staleness window. Anything else is 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	latest, err := s.tracker.GetLatest(r.Context(), domain.JobPriceUpdate)
	if err != nil {
		s.log.Error().Err(err).Msg("health lookup failed")
		httpError(w, http.StatusInternalServerError, "failed to read job status")
		return
	}

	reason := ""
	switch {
	case latest == nil:
		reason = "price update has never run"
	case latest.Status == domain.JobStatusFailed:
		reason = "latest price update failed"
	case s.now().Sub(latest.StartedAt) > staleAfter:
		reason = "latest price update is stale"
	}

	if reason != "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "unhealthy",
			"reason":    reason,
			"latestRun": toRunDTO(latest),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"latestRun": toRunDTO(latest),
	})
}

// handleHistory returns the last runs of one job, most recent first.
// GET /api/jobs/history?job=price-update&limit=20
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := domain.JobPriceUpdate
	if raw := r.URL.Query().Get("job"); raw != "" {
		name = domain.JobName(raw)
		if !name.Valid() {
			httpError(w, http.StatusBadRequest, "unknown job name")
			return
		}
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httpError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	runs, err := s.tracker.GetHistory(r.Context(), name, limit)
	if err != nil {
		s.log.Error().Str("job", string(name)).Err(err).Msg("history lookup failed")
		httpError(w, http.StatusInternalServerError, "failed to read job history")
		return
	}

	dtos := make([]*runDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": name, "runs": dtos})
}

// handleTrigger runs a job synchronously.
// POST /api/jobs/trigger/{price-update|snapshot-creation}
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := domain.JobName(strings.TrimPrefix(r.URL.Path, "/api/jobs/trigger/"))
	if !name.Valid() {
		httpError(w, http.StatusBadRequest, "unknown job name")
		return
	}

	s.log.Info().Str("job", string(name)).Msg("manual trigger received")

	result, err := s.runner.Run(r.Context(), name)
	if err != nil {
		if errors.Is(err, domain.ErrJobAlreadyRunning) {
			httpError(w, http.StatusConflict, "job already running")
			return
		}
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if result.Skipped {
		writeJSON(w, http.StatusConflict, map[string]any{
			"skipped": true,
			"reason":  result.Reason,
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func httpError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
