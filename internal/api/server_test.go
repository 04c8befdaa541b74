package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"video-concat-service/internal/config"
	"video-concat-service/internal/models"
	"video-concat-service/internal/pipeline"
	"video-concat-service/internal/ratelimit"
	"video-concat-service/internal/store"
)

type testEnv struct {
	cfg      config.Config
	store    *store.Memory
	handler  http.Handler
	segments *httptest.Server
	failSeg  map[string]bool
}

func newTestEnv(t *testing.T, limiter *ratelimit.CampaignLimiter, concatFails bool) *testEnv {
	t.Helper()

	env := &testEnv{failSeg: make(map[string]bool)}
	env.segments = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if env.failSeg[r.URL.Path] {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprintf(w, "segment:%s", r.URL.Path)
	}))
	t.Cleanup(env.segments.Close)

	env.cfg = config.Config{
		WorkDir:           filepath.Join(t.TempDir(), "work"),
		PublishDir:        t.TempDir(),
		DownloadTimeout:   5 * time.Second,
		SegmentMaxBytes:   1 << 20,
		ConcatTimeout:     time.Minute,
		FFmpegBin:         "ffmpeg",
		ThumbnailWidth:    0,
		MaxConcurrentJobs: 2,
	}
	env.store = store.NewMemory()

	runner := pipeline.NewRunner(env.cfg, env.store, pipeline.NewLocalPublisher(env.cfg.PublishDir), zerolog.Nop())
	if concatFails {
		runner.Engine().WithCommandRunner(func(_ context.Context, _ string, _ ...string) ([]byte, error) {
			return []byte("Invalid data found when processing input"), errors.New("exit status 1")
		})
	} else {
		runner.Engine().WithCommandRunner(func(_ context.Context, _ string, args ...string) ([]byte, error) {
			return nil, os.WriteFile(args[len(args)-1], []byte("joined"), 0o644)
		})
	}

	env.handler = New(env.cfg, env.store, runner, limiter, zerolog.Nop()).Router()
	return env
}

func (e *testEnv) concatBody(n int) []byte {
	scenes := make([]map[string]any, n)
	for i := range scenes {
		scenes[i] = map[string]any{"url": fmt.Sprintf("%s/seg/%d", e.segments.URL, i), "duration": 5}
	}
	body, _ := json.Marshal(map[string]any{
		"scenes":      scenes,
		"output_path": "x",
		"campaign_id": "c1",
	})
	return body
}

func (e *testEnv) post(t *testing.T, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/concat", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil, false)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "healthy", body["status"])
}

func TestConcatSuccess(t *testing.T) {
	env := newTestEnv(t, nil, false)

	rec := env.post(t, env.concatBody(2))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Success    bool   `json:"success"`
		OutputURL  string `json:"output_url"`
		JobID      string `json:"job_id"`
		SceneCount int    `json:"scene_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, 2, resp.SceneCount)
	_, err := uuid.Parse(resp.JobID)
	require.NoError(t, err, "job_id must be a valid uuid")

	// Artifact survives workspace cleanup.
	published := strings.TrimPrefix(resp.OutputURL, "file://")
	_, err = os.Stat(published)
	require.NoError(t, err)

	// Job record reflects completion.
	job, err := env.store.GetJob(context.Background(), resp.JobID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, job.Status)
	require.NotNil(t, job.OutputURL)
}

func TestConcatEmptyScenesRejectedBeforeAnyResource(t *testing.T) {
	env := newTestEnv(t, nil, false)

	body, _ := json.Marshal(map[string]any{
		"scenes":      []any{},
		"output_path": "x",
		"campaign_id": "c1",
	})
	rec := env.post(t, body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Detail string `json:"detail"`
		Kind   string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "validation", resp.Kind)

	// No workspace was ever created.
	entries, err := os.ReadDir(env.cfg.WorkDir)
	if err == nil {
		require.Empty(t, entries)
	} else {
		require.True(t, os.IsNotExist(err))
	}
}

func TestConcatDownloadFailure(t *testing.T) {
	env := newTestEnv(t, nil, false)
	env.failSeg["/seg/1"] = true

	rec := env.post(t, env.concatBody(3))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp struct {
		Detail string `json:"detail"`
		Kind   string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "download", resp.Kind)
	require.Contains(t, resp.Detail, "segment 1")

	// Workspace removed after failure.
	entries, err := os.ReadDir(env.cfg.WorkDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestConcatFfmpegFailure(t *testing.T) {
	env := newTestEnv(t, nil, true)

	rec := env.post(t, env.concatBody(2))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp struct {
		Detail string `json:"detail"`
		Kind   string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "concatenation", resp.Kind)
	require.Contains(t, resp.Detail, "Invalid data")

	entries, err := os.ReadDir(env.cfg.WorkDir)
	require.NoError(t, err)
	require.Empty(t, entries, "workspace and downloaded segments must be removed")
}

func TestConcatIdenticalBodiesGetDistinctJobs(t *testing.T) {
	env := newTestEnv(t, nil, false)
	body := env.concatBody(1)

	var ids []string
	for i := 0; i < 2; i++ {
		rec := env.post(t, body)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			JobID string `json:"job_id"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		ids = append(ids, resp.JobID)
	}
	require.NotEqual(t, ids[0], ids[1])
}

func TestConcatJobLookup(t *testing.T) {
	env := newTestEnv(t, nil, false)

	rec := env.post(t, env.concatBody(1))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+resp.JobID, nil)
	lookup := httptest.NewRecorder()
	env.handler.ServeHTTP(lookup, req)
	require.Equal(t, http.StatusOK, lookup.Code)

	var job models.Job
	require.NoError(t, json.Unmarshal(lookup.Body.Bytes(), &job))
	require.Equal(t, models.StatusCompleted, job.Status)

	missing := httptest.NewRecorder()
	env.handler.ServeHTTP(missing, httptest.NewRequest(http.MethodGet, "/jobs/nope", nil))
	require.Equal(t, http.StatusNotFound, missing.Code)
}

func TestConcatCampaignRateLimited(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := ratelimit.NewCampaignLimiter(client, 1, 0.0001, time.Minute)
	env := newTestEnv(t, limiter, false)

	first := env.post(t, env.concatBody(1))
	require.Equal(t, http.StatusOK, first.Code)

	second := env.post(t, env.concatBody(1))
	require.Equal(t, http.StatusTooManyRequests, second.Code)

	var resp struct {
		Kind string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	require.Equal(t, "rate_limit", resp.Kind)
}
