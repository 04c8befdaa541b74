package pipeline

import (
	"context"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

func TestThumbnailerRendersDownscaledJPEG(t *testing.T) {
	mgr := NewWorkspaceManager(t.TempDir())
	ws, err := mgr.Acquire("job-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	poster := imaging.New(640, 360, color.NRGBA{R: 200, G: 30, B: 30, A: 255})
	posterPath := filepath.Join(ws.Dir(), "poster.jpg")
	if err := imaging.Save(poster, posterPath); err != nil {
		t.Fatalf("save poster: %v", err)
	}

	thumbs := NewThumbnailer(160)
	thumbPath, err := thumbs.Render(context.Background(), ws, posterPath)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	thumb, err := imaging.Open(thumbPath)
	if err != nil {
		t.Fatalf("open thumbnail: %v", err)
	}
	if thumb.Bounds().Dx() != 160 {
		t.Fatalf("expected width 160, got %d", thumb.Bounds().Dx())
	}
	// Aspect ratio preserved: 640x360 -> 160x90.
	if thumb.Bounds().Dy() != 90 {
		t.Fatalf("expected height 90, got %d", thumb.Bounds().Dy())
	}
}

func TestNewThumbnailerDisabled(t *testing.T) {
	if NewThumbnailer(0) != nil {
		t.Fatal("width 0 must disable thumbnailing")
	}
}
