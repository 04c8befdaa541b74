package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// Thumbnailer turns an extracted poster frame into a downscaled JPEG
// thumbnail inside the workspace.
type Thumbnailer struct {
	width int
}

func NewThumbnailer(width int) *Thumbnailer {
	if width <= 0 {
		return nil
	}
	return &Thumbnailer{width: width}
}

// Render downscales the poster frame preserving aspect ratio and writes
// thumb.jpg next to it.
func (t *Thumbnailer) Render(_ context.Context, ws *Workspace, posterPath string) (string, error) {
	img, err := imaging.Open(posterPath)
	if err != nil {
		return "", fmt.Errorf("open poster frame: %w", err)
	}
	thumb := imaging.Resize(img, t.width, 0, imaging.Lanczos)
	thumbPath := filepath.Join(ws.Dir(), "thumb.jpg")
	if err := imaging.Save(thumb, thumbPath, imaging.JPEGQuality(85)); err != nil {
		return "", fmt.Errorf("save thumbnail: %w", err)
	}
	return thumbPath, nil
}
