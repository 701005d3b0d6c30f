package camera

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg" // frame decoders
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"facemark/internal/attend"
	"facemark/internal/model"
)

var frameExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// DirSource replays a directory of still frames at a configured rate,
// simulating a camera. Frames are served in name order. A frame file may
// carry a `<name>.faces.json` sidecar with pre-computed face boxes; frames
// without one report a single whole-frame box, which sends the face
// straight to the classifier the way a tightly-cropped webcam shot would.
type DirSource struct {
	frames []string
	idx    int
	seq    uint64
	loop   bool
	ticker *time.Ticker
}

var _ attend.FrameSource = (*DirSource)(nil)

// OpenDirSource discovers the frame files under dir. fps <= 0 serves
// frames without pacing.
func OpenDirSource(dir string, fps int, loop bool) (*DirSource, error) {
	frames, err := discoverFrames(dir)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frame files in %s: %w", dir, attend.ErrDeviceFailure)
	}

	s := &DirSource{frames: frames, loop: loop}
	if fps > 0 {
		s.ticker = time.NewTicker(time.Duration(float64(time.Second) / float64(fps)))
	}
	return s, nil
}

// discoverFrames lists frame files under dir, sorted by name.
func discoverFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading frame directory: %w: %w", attend.ErrDeviceFailure, err)
	}

	var frames []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if frameExts[strings.ToLower(filepath.Ext(entry.Name()))] {
			frames = append(frames, filepath.Join(dir, entry.Name()))
		}
	}
	return frames, nil
}

// Next returns the next frame, waiting out the frame interval first.
// Returns io.EOF when the directory is exhausted and looping is off.
func (s *DirSource) Next(ctx context.Context) (*attend.Frame, error) {
	if s.ticker != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.ticker.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.idx >= len(s.frames) {
		if !s.loop {
			return nil, io.EOF
		}
		s.idx = 0
	}
	path := s.frames[s.idx]
	s.idx++

	img, err := decodeFrame(path)
	if err != nil {
		return nil, err
	}

	faces, err := sidecarFaces(path)
	if err != nil {
		return nil, err
	}
	if faces == nil {
		faces = []model.Rect{model.RectOf(img.Bounds())}
	}

	s.seq++
	return &attend.Frame{
		Seq:        s.seq,
		CapturedAt: time.Now(),
		Image:      img,
		Faces:      faces,
	}, nil
}

// Stop releases the pacing ticker.
func (s *DirSource) Stop() error {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	return nil
}

func decodeFrame(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening frame %s: %w: %w", filepath.Base(path), attend.ErrDeviceFailure, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding frame %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// sidecarFaces loads `<name>.faces.json` next to a frame file. Returns
// nil with no error when there is no sidecar.
func sidecarFaces(framePath string) ([]model.Rect, error) {
	base := strings.TrimSuffix(framePath, filepath.Ext(framePath))
	data, err := os.ReadFile(base + ".faces.json")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading face sidecar: %w", err)
	}

	var faces []model.Rect
	if err := json.Unmarshal(data, &faces); err != nil {
		return nil, fmt.Errorf("parsing face sidecar for %s: %w", filepath.Base(framePath), err)
	}
	return faces, nil
}
