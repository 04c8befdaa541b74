package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"video-concat-service/internal/config"
	"video-concat-service/internal/models"
	"video-concat-service/internal/store"
	"video-concat-service/internal/telemetry"
)

// Runner drives one job through its stages: acquire workspace, fetch
// segments in order, concatenate, publish, release. Stages within a job
// are strictly sequential; concurrent jobs share nothing but the
// workspace namespace, which Acquire allocates atomically.
type Runner struct {
	workspaces *WorkspaceManager
	fetcher    *Fetcher
	engine     *Engine
	thumbs     *Thumbnailer
	publisher  Publisher
	store      store.Store
	logger     zerolog.Logger
}

func NewRunner(cfg config.Config, st store.Store, pub Publisher, logger zerolog.Logger) *Runner {
	return &Runner{
		workspaces: NewWorkspaceManager(cfg.WorkDir),
		fetcher:    NewFetcher(cfg, logger),
		engine:     NewEngine(cfg.FFmpegBin, cfg.ConcatTimeout, logger),
		thumbs:     NewThumbnailer(cfg.ThumbnailWidth),
		publisher:  pub,
		store:      st,
		logger:     logger,
	}
}

// Engine returns the concatenation engine, so callers can inject a
// command runner in tests.
func (r *Runner) Engine() *Engine { return r.engine }

// Run executes the job end to end and returns the published artifact.
// The workspace is released exactly once on every exit path, including
// cancellation; the artifact is copied out before release so cleanup
// never destroys the result.
func (r *Runner) Run(ctx context.Context, job models.Job) (models.Artifact, error) {
	logger := r.logger.With().Str("job_id", job.ID).Str("campaign_id", job.CampaignID).Logger()
	// Record keeping must outlive caller cancellation: a job aborted by a
	// disconnect still gets its terminal state written.
	recordCtx := context.WithoutCancel(ctx)
	start := time.Now()
	telemetry.JobsStarted.Inc()
	telemetry.InFlightGauge.Inc()
	defer func() {
		telemetry.InFlightGauge.Dec()
		telemetry.JobDuration.Observe(time.Since(start).Seconds())
	}()

	ws, err := r.workspaces.Acquire(job.ID)
	if err != nil {
		r.failed(recordCtx, job.ID, err)
		return models.Artifact{}, err
	}
	defer func() {
		if relErr := ws.Release(); relErr != nil {
			logger.Error().Err(relErr).Msg("workspace release failed")
		}
	}()

	r.transition(recordCtx, job.ID, models.StatusFetching)
	segments, err := r.fetcher.FetchAll(ctx, ws, job.Scenes)
	if err != nil {
		r.failed(recordCtx, job.ID, err)
		return models.Artifact{}, err
	}
	logger.Info().Int("segments", len(segments)).Msg("segments fetched")

	r.transition(recordCtx, job.ID, models.StatusConcatenating)
	outPath, err := r.engine.Concat(ctx, ws, segments)
	if err != nil {
		r.failed(recordCtx, job.ID, err)
		return models.Artifact{}, err
	}

	outputURL, err := r.publisher.Publish(ctx, job.ID+".mp4", outPath, "video/mp4")
	if err != nil {
		perr := &PublishError{Err: err}
		r.failed(recordCtx, job.ID, perr)
		return models.Artifact{}, perr
	}

	artifact := models.Artifact{
		OutputURL:  outputURL,
		JobID:      job.ID,
		SceneCount: len(job.Scenes),
	}

	// Thumbnail generation is best-effort; a missing poster never fails a
	// job whose video already published.
	if r.thumbs != nil {
		if thumbURL, err := r.publishThumbnail(ctx, ws, outPath, job.ID); err != nil {
			logger.Warn().Err(err).Msg("thumbnail generation failed")
		} else {
			artifact.ThumbnailURL = thumbURL
		}
	}

	telemetry.JobsCompleted.Inc()
	logger.Info().Str("output_url", outputURL).Dur("elapsed", time.Since(start)).Msg("job completed")
	return artifact, nil
}

func (r *Runner) publishThumbnail(ctx context.Context, ws *Workspace, videoPath, jobID string) (string, error) {
	posterPath, err := r.engine.ExtractPoster(ctx, ws, videoPath)
	if err != nil {
		return "", err
	}
	thumbPath, err := r.thumbs.Render(ctx, ws, posterPath)
	if err != nil {
		return "", err
	}
	return r.publisher.Publish(ctx, jobID+".jpg", thumbPath, "image/jpeg")
}

func (r *Runner) transition(ctx context.Context, jobID, status string) {
	if err := r.store.SetStatus(ctx, jobID, status); err != nil {
		r.logger.Error().Err(err).Str("job_id", jobID).Str("status", status).Msg("status update failed")
	}
}

func (r *Runner) failed(ctx context.Context, jobID string, err error) {
	telemetry.JobsFailed.WithLabelValues(StageOf(err)).Inc()
	_ = r.store.AppendAudit(ctx, jobID, "failed", err.Error())
}

// StageOf classifies an error by the pipeline stage that raised it.
func StageOf(err error) string {
	var (
		vErr *ValidationError
		wErr *WorkspaceError
		dErr *DownloadError
		cErr *ConcatenationError
		pErr *PublishError
	)
	switch {
	case errors.As(err, &vErr):
		return "validation"
	case errors.As(err, &wErr):
		return "workspace"
	case errors.As(err, &dErr):
		return "download"
	case errors.As(err, &cErr):
		return "concatenation"
	case errors.As(err, &pErr):
		return "publish"
	default:
		return "internal"
	}
}
