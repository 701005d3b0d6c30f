package camera

import (
	"context"
	"fmt"

	"facemark/internal/attend"
	"facemark/internal/config"
)

// DirOpener opens DirSource instances for a configured directory.
type DirOpener struct {
	dir  string
	fps  int
	loop bool
}

var _ attend.SourceOpener = (*DirOpener)(nil)

func (o *DirOpener) Open(ctx context.Context) (attend.FrameSource, error) {
	return OpenDirSource(o.dir, o.fps, o.loop)
}

// MJPEGOpener opens MJPEGSource connections to a configured stream URL.
type MJPEGOpener struct {
	url string
}

var _ attend.SourceOpener = (*MJPEGOpener)(nil)

func (o *MJPEGOpener) Open(ctx context.Context) (attend.FrameSource, error) {
	return OpenMJPEG(ctx, o.url)
}

// NewOpenerFromConfig creates a SourceOpener based on the configuration type.
func NewOpenerFromConfig(cfg config.CameraConfig) (attend.SourceOpener, error) {
	switch cfg.Type {
	case "dir":
		return &DirOpener{dir: cfg.Dir, fps: cfg.FPS, loop: cfg.Loop}, nil
	case "mjpeg":
		return &MJPEGOpener{url: cfg.URL}, nil
	default:
		return nil, fmt.Errorf("unknown camera type: %q", cfg.Type)
	}
}
