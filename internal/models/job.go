package models

import (
	"time"
)

// Job status lifecycle. Transitions are strictly forward; a job never
// re-enters an earlier state and is terminal once completed or failed.
const (
	StatusValidating    = "validating"
	StatusFetching      = "fetching"
	StatusConcatenating = "concatenating"
	StatusCompleted     = "completed"
	StatusFailed        = "failed"
)

// Scene is one input segment. Index is the position in the requested
// sequence and determines final ordering end-to-end.
type Scene struct {
	Index    int     `json:"index"`
	URL      string  `json:"url"`
	Duration float64 `json:"duration"`
}

// Job represents one concatenation request in flight.
type Job struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	OutputPath string    `json:"output_path"`
	Scenes     []Scene   `json:"scenes"`
	Status     string    `json:"status"`
	OutputURL  *string   `json:"output_url,omitempty"`
	LastError  *string   `json:"last_error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Artifact is the published result of a successful job.
type Artifact struct {
	OutputURL    string
	ThumbnailURL string
	JobID        string
	SceneCount   int
}

// AuditLog is a simple audit event row.
type AuditLog struct {
	JobID    string    `json:"job_id"`
	Event    string    `json:"event"`
	Detail   string    `json:"detail"`
	Recorded time.Time `json:"recorded_at"`
}
