package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"video-concat-service/internal/models"
)

// Postgres persists job records via pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a pooled connection to Postgres.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id          TEXT PRIMARY KEY,
		campaign_id TEXT NOT NULL,
		output_path TEXT NOT NULL,
		scenes      JSONB NOT NULL,
		status      TEXT NOT NULL,
		output_url  TEXT,
		last_error  TEXT,
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_campaign ON jobs (campaign_id)`,
	`CREATE TABLE IF NOT EXISTS job_audit (
		job_id TEXT NOT NULL,
		event  TEXT NOT NULL,
		detail TEXT NOT NULL,
		ts     TIMESTAMPTZ NOT NULL
	)`,
}

// RunMigrations executes the schema statements in order.
func (p *Postgres) RunMigrations(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("exec migration %d: %w", i, err)
		}
	}
	return nil
}

func (p *Postgres) CreateJob(ctx context.Context, job models.Job) error {
	scenesJSON, err := json.Marshal(job.Scenes)
	if err != nil {
		return fmt.Errorf("marshal scenes: %w", err)
	}
	now := time.Now().UTC()
	created := job.CreatedAt
	if created.IsZero() {
		created = now
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO jobs (id, campaign_id, output_path, scenes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, job.ID, job.CampaignID, job.OutputPath, scenesJSON, job.Status, created, now)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (p *Postgres) GetJob(ctx context.Context, id string) (models.Job, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, campaign_id, output_path, scenes, status, output_url, last_error, created_at, updated_at
		FROM jobs WHERE id = $1
	`, id)

	var job models.Job
	var scenesJSON []byte
	var outputURL pgtype.Text
	var lastErr pgtype.Text

	if err := row.Scan(&job.ID, &job.CampaignID, &job.OutputPath, &scenesJSON, &job.Status, &outputURL, &lastErr, &job.CreatedAt, &job.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Job{}, ErrNotFound
		}
		return models.Job{}, fmt.Errorf("scan job: %w", err)
	}
	if err := json.Unmarshal(scenesJSON, &job.Scenes); err != nil {
		return models.Job{}, fmt.Errorf("unmarshal scenes: %w", err)
	}
	job.OutputURL = textPtr(outputURL)
	job.LastError = textPtr(lastErr)
	return job, nil
}

// SetStatus advances a job's lifecycle state. The update reloads the
// current row so forward-only ordering is enforced at one place.
func (p *Postgres) SetStatus(ctx context.Context, id, status string) error {
	job, err := p.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if !transitionAllowed(job.Status, status) {
		return fmt.Errorf("illegal transition %s -> %s for job %s", job.Status, status, id)
	}
	_, err = p.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, updated_at = NOW() WHERE id = $1 AND status = $3
	`, id, status, job.Status)
	return err
}

func (p *Postgres) MarkCompleted(ctx context.Context, id, outputURL string) error {
	job, err := p.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if !transitionAllowed(job.Status, models.StatusCompleted) {
		return fmt.Errorf("illegal transition %s -> %s for job %s", job.Status, models.StatusCompleted, id)
	}
	_, err = p.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, output_url = $3, last_error = NULL, updated_at = NOW() WHERE id = $1
	`, id, models.StatusCompleted, outputURL)
	return err
}

func (p *Postgres) MarkFailed(ctx context.Context, id, detail string) error {
	job, err := p.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if !transitionAllowed(job.Status, models.StatusFailed) {
		return fmt.Errorf("illegal transition %s -> %s for job %s", job.Status, models.StatusFailed, id)
	}
	_, err = p.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, last_error = $3, updated_at = NOW() WHERE id = $1
	`, id, models.StatusFailed, detail)
	return err
}

func (p *Postgres) AppendAudit(ctx context.Context, jobID, event, detail string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO job_audit (job_id, event, detail, ts) VALUES ($1, $2, $3, NOW())
	`, jobID, event, detail)
	return err
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}
