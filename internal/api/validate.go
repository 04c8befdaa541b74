package api

import (
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"video-concat-service/internal/models"
	"video-concat-service/internal/pipeline"
)

type sceneRequest struct {
	URL      string  `json:"url"`
	Duration float64 `json:"duration"`
}

type concatRequest struct {
	Scenes     []sceneRequest `json:"scenes"`
	OutputPath string         `json:"output_path"`
	CampaignID string         `json:"campaign_id"`
}

// validateConcatRequest checks the decoded request and builds the job
// descriptor. It has no side effects: no workspace or record exists for
// an invalid request, and every accepted job gets a fresh ID even when
// two submissions carry identical bodies.
func validateConcatRequest(req concatRequest) (models.Job, error) {
	if len(req.Scenes) == 0 {
		return models.Job{}, &pipeline.ValidationError{Reason: "scenes must be a non-empty list"}
	}
	if req.CampaignID == "" {
		return models.Job{}, &pipeline.ValidationError{Reason: "campaign_id is required"}
	}
	if req.OutputPath == "" {
		return models.Job{}, &pipeline.ValidationError{Reason: "output_path is required"}
	}

	scenes := make([]models.Scene, len(req.Scenes))
	for i, s := range req.Scenes {
		if s.URL == "" {
			return models.Job{}, &pipeline.ValidationError{Reason: fmt.Sprintf("scenes[%d].url is required", i)}
		}
		u, err := url.Parse(s.URL)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
			return models.Job{}, &pipeline.ValidationError{Reason: fmt.Sprintf("scenes[%d].url must be an absolute http(s) URL", i)}
		}
		if s.Duration < 0 {
			return models.Job{}, &pipeline.ValidationError{Reason: fmt.Sprintf("scenes[%d].duration must be non-negative", i)}
		}
		scenes[i] = models.Scene{Index: i, URL: s.URL, Duration: s.Duration}
	}

	return models.Job{
		ID:         uuid.NewString(),
		CampaignID: req.CampaignID,
		OutputPath: req.OutputPath,
		Scenes:     scenes,
		Status:     models.StatusValidating,
		CreatedAt:  time.Now().UTC(),
	}, nil
}
