package pipeline

import (
	"fmt"
)

// ValidationError reports a malformed request. It is raised before any
// resource is acquired, so no workspace exists when it surfaces.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + e.Reason
}

// WorkspaceError reports a failure allocating or removing a job workspace.
type WorkspaceError struct {
	Op  string
	Err error
}

func (e *WorkspaceError) Error() string {
	return fmt.Sprintf("workspace %s: %v", e.Op, e.Err)
}

func (e *WorkspaceError) Unwrap() error { return e.Err }

// DownloadError reports the first segment that failed to retrieve.
// Segments after Index were never attempted.
type DownloadError struct {
	Index int
	URL   string
	Err   error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download segment %d (%s): %v", e.Index, e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// ConcatenationError reports a failed ffmpeg invocation together with the
// diagnostic output it produced. Joins are deterministic for identical
// inputs, so this is never retried.
type ConcatenationError struct {
	Output string
	Err    error
}

func (e *ConcatenationError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("concatenation failed: %v", e.Err)
	}
	return fmt.Sprintf("concatenation failed: %v: %s", e.Err, e.Output)
}

func (e *ConcatenationError) Unwrap() error { return e.Err }

// PublishError reports that a successfully encoded artifact could not be
// exposed to the caller.
type PublishError struct {
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish artifact: %v", e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
