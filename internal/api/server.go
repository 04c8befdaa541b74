package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"video-concat-service/internal/config"
	"video-concat-service/internal/pipeline"
	"video-concat-service/internal/ratelimit"
	"video-concat-service/internal/store"
	"video-concat-service/internal/telemetry"
)

// Server wires HTTP handlers for the concat service.
type Server struct {
	cfg     config.Config
	store   store.Store
	runner  *pipeline.Runner
	limiter *ratelimit.CampaignLimiter
	logger  zerolog.Logger
	// sem bounds concurrently running jobs; each request handler blocks
	// here until a slot frees or the caller goes away.
	sem chan struct{}
}

// New constructs the API server. limiter may be nil to disable rate limiting.
func New(cfg config.Config, st store.Store, runner *pipeline.Runner, limiter *ratelimit.CampaignLimiter, logger zerolog.Logger) *Server {
	maxJobs := cfg.MaxConcurrentJobs
	if maxJobs <= 0 {
		maxJobs = 4
	}
	return &Server{
		cfg:     cfg,
		store:   st,
		runner:  runner,
		limiter: limiter,
		logger:  logger,
		sem:     make(chan struct{}, maxJobs),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(RequestLogger(s.logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Mount("/metrics", telemetry.Handler())

	r.Post("/concat", s.handleConcat)
	r.Get("/jobs/{id}", s.handleGetJob)
	return r
}

type concatResponse struct {
	Success      bool   `json:"success"`
	OutputURL    string `json:"output_url"`
	JobID        string `json:"job_id"`
	SceneCount   int    `json:"scene_count"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

type errorResponse struct {
	Detail string `json:"detail"`
	Kind   string `json:"kind"`
}

func (s *Server) handleConcat(w http.ResponseWriter, r *http.Request) {
	var req concatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "invalid json body")
		return
	}

	job, err := validateConcatRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}

	if s.limiter != nil {
		allowed, _, err := s.limiter.Allow(r.Context(), job.CampaignID)
		if err != nil {
			s.logger.Error().Err(err).Msg("rate limiter unavailable")
			writeError(w, http.StatusInternalServerError, "internal", "rate limit error")
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			writeError(w, http.StatusTooManyRequests, "rate_limit", "campaign rate limited")
			return
		}
	}

	// Bound per-request concurrency. The caller disconnecting while
	// queued abandons the slot without starting the job.
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-r.Context().Done():
		return
	}

	if err := s.store.CreateJob(r.Context(), job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("create job record failed")
		writeError(w, http.StatusInternalServerError, "internal", "failed to record job")
		return
	}

	// Terminal record writes survive a caller disconnect.
	recordCtx := context.WithoutCancel(r.Context())

	artifact, err := s.runner.Run(r.Context(), job)
	if err != nil {
		detail := err.Error()
		if mErr := s.store.MarkFailed(recordCtx, job.ID, detail); mErr != nil {
			s.logger.Error().Err(mErr).Str("job_id", job.ID).Msg("mark failed errored")
		}
		status := http.StatusInternalServerError
		var vErr *pipeline.ValidationError
		if errors.As(err, &vErr) {
			status = http.StatusBadRequest
		}
		writeError(w, status, pipeline.StageOf(err), detail)
		return
	}

	if err := s.store.MarkCompleted(recordCtx, job.ID, artifact.OutputURL); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("mark completed errored")
	}
	_ = s.store.AppendAudit(recordCtx, job.ID, "completed", artifact.OutputURL)

	writeJSON(w, http.StatusOK, concatResponse{
		Success:      true,
		OutputURL:    artifact.OutputURL,
		JobID:        artifact.JobID,
		SceneCount:   artifact.SceneCount,
		ThumbnailURL: artifact.ThumbnailURL,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, kind, detail string) {
	writeJSON(w, code, errorResponse{Detail: detail, Kind: kind})
}
