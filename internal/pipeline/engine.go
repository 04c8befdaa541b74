package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// commandRunner executes an external command and returns its combined output.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func defaultCommandRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// Engine joins fetched segments into a single container via ffmpeg's
// concat demuxer with stream copy. Inputs must share a compatible codec
// profile; incompatibility surfaces as ffmpeg's own failure report.
type Engine struct {
	ffmpegBin string
	timeout   time.Duration
	run       commandRunner
	logger    zerolog.Logger
}

func NewEngine(ffmpegBin string, timeout time.Duration, logger zerolog.Logger) *Engine {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &Engine{
		ffmpegBin: ffmpegBin,
		timeout:   timeout,
		run:       defaultCommandRunner,
		logger:    logger,
	}
}

// WithCommandRunner injects a custom command runner for tests.
func (e *Engine) WithCommandRunner(r commandRunner) {
	if r != nil {
		e.run = r
	}
}

// BuildManifest renders the concat list: one `file '<path>'` line per
// segment, in the order given. The manifest is the sole ordering
// authority for the join; the engine never reorders it.
func BuildManifest(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&b, "file '%s'\n", p)
	}
	return b.String()
}

// Concat writes the ordered manifest and invokes ffmpeg to stream-copy
// the segments into one output file inside the workspace. Any non-zero
// exit is a ConcatenationError carrying ffmpeg's diagnostic output.
func (e *Engine) Concat(ctx context.Context, ws *Workspace, segments []string) (string, error) {
	abs := make([]string, 0, len(segments))
	for _, p := range segments {
		ap, err := filepath.Abs(p)
		if err != nil {
			return "", &ConcatenationError{Err: fmt.Errorf("resolve segment path: %w", err)}
		}
		abs = append(abs, ap)
	}

	manifestPath := ws.ManifestPath()
	if err := os.WriteFile(manifestPath, []byte(BuildManifest(abs)), 0o644); err != nil {
		return "", &ConcatenationError{Err: fmt.Errorf("write manifest: %w", err)}
	}

	outPath := ws.OutputPath()
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", manifestPath,
		"-c", "copy",
		outPath,
	}

	e.logger.Debug().Str("manifest", manifestPath).Int("segments", len(segments)).Msg("executing ffmpeg concat")

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	output, err := e.run(runCtx, e.ffmpegBin, args...)
	if err != nil {
		return "", &ConcatenationError{Output: strings.TrimSpace(string(output)), Err: err}
	}
	if _, err := os.Stat(outPath); err != nil {
		return "", &ConcatenationError{Err: fmt.Errorf("ffmpeg did not produce output file: %w", err)}
	}
	return outPath, nil
}

// ExtractPoster grabs the first frame of the video into a JPEG inside the
// workspace, for thumbnail generation.
func (e *Engine) ExtractPoster(ctx context.Context, ws *Workspace, videoPath string) (string, error) {
	posterPath := filepath.Join(ws.Dir(), "poster.jpg")
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", videoPath,
		"-frames:v", "1",
		posterPath,
	}
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	output, err := e.run(runCtx, e.ffmpegBin, args...)
	if err != nil {
		return "", fmt.Errorf("extract poster frame: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return posterPath, nil
}
