package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Workspace is the isolated storage area owned by exactly one job. All
// segment, manifest, and output files for the job live under Dir, and the
// whole tree is removed on Release.
type Workspace struct {
	dir     string
	release sync.Once
}

// Dir returns the workspace root.
func (w *Workspace) Dir() string { return w.dir }

// SegmentPath names the local file for the segment at index. Names are
// derived from the index only, so manifest ordering is structural and the
// paths never contain caller-controlled characters.
func (w *Workspace) SegmentPath(index int) string {
	return filepath.Join(w.dir, fmt.Sprintf("scene_%d.mp4", index))
}

// ManifestPath is the concat list consumed by ffmpeg.
func (w *Workspace) ManifestPath() string {
	return filepath.Join(w.dir, "concat.txt")
}

// OutputPath is the concatenated result inside the workspace.
func (w *Workspace) OutputPath() string {
	return filepath.Join(w.dir, "output.mp4")
}

// Release removes the workspace tree. It is idempotent; only the first
// call performs the removal.
func (w *Workspace) Release() error {
	var err error
	w.release.Do(func() {
		if rmErr := os.RemoveAll(w.dir); rmErr != nil {
			err = &WorkspaceError{Op: "release", Err: rmErr}
		}
	})
	return err
}

// WorkspaceManager allocates per-job workspaces under a common parent
// directory, keyed by job ID.
type WorkspaceManager struct {
	baseDir string
}

func NewWorkspaceManager(baseDir string) *WorkspaceManager {
	return &WorkspaceManager{baseDir: baseDir}
}

// Acquire creates an empty workspace for the job. The path is derived
// deterministically from the job ID; an existing directory means two live
// jobs collided on one ID and is an error, never silently shared.
func (m *WorkspaceManager) Acquire(jobID string) (*Workspace, error) {
	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return nil, &WorkspaceError{Op: "create base dir", Err: err}
	}
	dir := filepath.Join(m.baseDir, "concat_"+jobID)
	// os.Mkdir is atomic with respect to concurrent Acquire calls: exactly
	// one caller can create the directory.
	if err := os.Mkdir(dir, 0o755); err != nil {
		if os.IsExist(err) {
			return nil, &WorkspaceError{Op: "acquire", Err: fmt.Errorf("workspace already exists for job %s", jobID)}
		}
		return nil, &WorkspaceError{Op: "acquire", Err: err}
	}
	return &Workspace{dir: dir}, nil
}
