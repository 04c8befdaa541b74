package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWorkspaceAcquireRelease(t *testing.T) {
	mgr := NewWorkspaceManager(filepath.Join(t.TempDir(), "work"))

	ws, err := mgr.Acquire("job-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	info, err := os.Stat(ws.Dir())
	if err != nil || !info.IsDir() {
		t.Fatalf("workspace dir not created: %v", err)
	}

	if err := os.WriteFile(ws.SegmentPath(0), []byte("data"), 0o644); err != nil {
		t.Fatalf("write segment: %v", err)
	}

	if err := ws.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := os.Stat(ws.Dir()); !os.IsNotExist(err) {
		t.Fatalf("workspace still present after release")
	}

	// Release is idempotent.
	if err := ws.Release(); err != nil {
		t.Fatalf("second release: %v", err)
	}
}

func TestWorkspaceAcquireCollision(t *testing.T) {
	mgr := NewWorkspaceManager(t.TempDir())

	if _, err := mgr.Acquire("job-1"); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	_, err := mgr.Acquire("job-1")
	if err == nil {
		t.Fatal("expected collision error for duplicate job id")
	}
	var wErr *WorkspaceError
	if !errors.As(err, &wErr) {
		t.Fatalf("expected WorkspaceError, got %T", err)
	}
}

func TestWorkspaceSegmentNaming(t *testing.T) {
	mgr := NewWorkspaceManager(t.TempDir())
	ws, err := mgr.Acquire("job-xyz")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	got := filepath.Base(ws.SegmentPath(7))
	if got != "scene_7.mp4" {
		t.Fatalf("expected scene_7.mp4, got %s", got)
	}
}
