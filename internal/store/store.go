package store

import (
	"context"
	"errors"

	"video-concat-service/internal/models"
)

// ErrNotFound is returned when a job ID has no record.
var ErrNotFound = errors.New("job not found")

// Store persists job records and their audit trail. Implementations must
// keep status transitions strictly forward: a terminal job never changes
// again and no job moves to an earlier lifecycle state.
type Store interface {
	CreateJob(ctx context.Context, job models.Job) error
	GetJob(ctx context.Context, id string) (models.Job, error)
	SetStatus(ctx context.Context, id, status string) error
	MarkCompleted(ctx context.Context, id, outputURL string) error
	MarkFailed(ctx context.Context, id, detail string) error
	AppendAudit(ctx context.Context, jobID, event, detail string) error
	Close()
}

// statusRank orders lifecycle states for forward-only enforcement.
// Completed and failed share a rank: both are terminal.
var statusRank = map[string]int{
	models.StatusValidating:    0,
	models.StatusFetching:      1,
	models.StatusConcatenating: 2,
	models.StatusCompleted:     3,
	models.StatusFailed:        3,
}

func transitionAllowed(from, to string) bool {
	fromRank, okFrom := statusRank[from]
	toRank, okTo := statusRank[to]
	if !okFrom || !okTo {
		return false
	}
	// Terminal states admit no further transitions.
	if fromRank == statusRank[models.StatusCompleted] {
		return false
	}
	return toRank > fromRank
}
