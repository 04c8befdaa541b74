package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"video-concat-service/internal/config"
	"video-concat-service/internal/models"
)

type segmentServer struct {
	mu   sync.Mutex
	hits map[string]int
	fail map[string]bool
	srv  *httptest.Server
}

func newSegmentServer() *segmentServer {
	s := &segmentServer{hits: make(map[string]int), fail: make(map[string]bool)}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		shouldFail := s.fail[r.URL.Path]
		s.mu.Unlock()
		if shouldFail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "segment-data:%s", r.URL.Path)
	}))
	return s
}

func (s *segmentServer) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func testFetcher(t *testing.T) *Fetcher {
	t.Helper()
	return NewFetcher(config.Config{
		DownloadTimeout: 5 * time.Second,
		SegmentMaxBytes: 1 << 20,
	}, zerolog.Nop())
}

func scenesFor(base string, n int) []models.Scene {
	scenes := make([]models.Scene, n)
	for i := range scenes {
		scenes[i] = models.Scene{Index: i, URL: fmt.Sprintf("%s/seg/%d", base, i), Duration: 5}
	}
	return scenes
}

func TestFetchAllPreservesOrder(t *testing.T) {
	srv := newSegmentServer()
	defer srv.srv.Close()

	mgr := NewWorkspaceManager(t.TempDir())
	ws, err := mgr.Acquire("job-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	paths, err := testFetcher(t).FetchAll(context.Background(), ws, scenesFor(srv.srv.URL, 3))
	if err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("expected 3 paths, got %d", len(paths))
	}
	for i, p := range paths {
		if !strings.HasSuffix(p, fmt.Sprintf("scene_%d.mp4", i)) {
			t.Fatalf("path %d out of order: %s", i, p)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("segment %d not written: %v", i, err)
		}
		if want := fmt.Sprintf("segment-data:/seg/%d", i); string(data) != want {
			t.Fatalf("segment %d has wrong content: %q", i, data)
		}
	}
}

func TestFetchAllFailFast(t *testing.T) {
	srv := newSegmentServer()
	defer srv.srv.Close()
	srv.fail["/seg/1"] = true

	mgr := NewWorkspaceManager(t.TempDir())
	ws, err := mgr.Acquire("job-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	_, err = testFetcher(t).FetchAll(context.Background(), ws, scenesFor(srv.srv.URL, 4))
	if err == nil {
		t.Fatal("expected fetch failure")
	}
	var dErr *DownloadError
	if !errors.As(err, &dErr) {
		t.Fatalf("expected DownloadError, got %T", err)
	}
	if dErr.Index != 1 {
		t.Fatalf("expected failing index 1, got %d", dErr.Index)
	}
	if srv.hitCount("/seg/0") != 1 {
		t.Fatalf("segment 0 should have been fetched once, got %d", srv.hitCount("/seg/0"))
	}
	if srv.hitCount("/seg/2") != 0 || srv.hitCount("/seg/3") != 0 {
		t.Fatal("segments after the failing index must not be attempted")
	}
}

func TestFetchAllRetriesBeforeBlockingLaterIndices(t *testing.T) {
	srv := newSegmentServer()
	defer srv.srv.Close()
	srv.fail["/seg/0"] = true

	mgr := NewWorkspaceManager(t.TempDir())
	ws, err := mgr.Acquire("job-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	fetcher := NewFetcher(config.Config{
		DownloadTimeout: 5 * time.Second,
		SegmentMaxBytes: 1 << 20,
		DownloadRetries: 2,
		RetryBackoff:    10 * time.Millisecond,
	}, zerolog.Nop())

	_, err = fetcher.FetchAll(context.Background(), ws, scenesFor(srv.srv.URL, 2))
	var dErr *DownloadError
	if !errors.As(err, &dErr) || dErr.Index != 0 {
		t.Fatalf("expected DownloadError at index 0, got %v", err)
	}
	if got := srv.hitCount("/seg/0"); got != 3 {
		t.Fatalf("expected 3 attempts on segment 0, got %d", got)
	}
	if srv.hitCount("/seg/1") != 0 {
		t.Fatal("segment 1 must not be attempted while segment 0 is unresolved")
	}
}

func TestFetchRejectsOversizedSegment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	mgr := NewWorkspaceManager(t.TempDir())
	ws, err := mgr.Acquire("job-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	fetcher := NewFetcher(config.Config{
		DownloadTimeout: 5 * time.Second,
		SegmentMaxBytes: 1024,
	}, zerolog.Nop())

	_, err = fetcher.FetchAll(context.Background(), ws, []models.Scene{{Index: 0, URL: srv.URL}})
	var dErr *DownloadError
	if !errors.As(err, &dErr) {
		t.Fatalf("expected DownloadError for oversized segment, got %v", err)
	}
	if !strings.Contains(dErr.Error(), "too large") {
		t.Fatalf("unexpected error: %v", dErr)
	}
}
