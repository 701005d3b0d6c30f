package camera

import (
	"context"
	"fmt"
	"image/jpeg"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"facemark/internal/attend"
)

// MJPEGSource reads an HTTP multipart/x-mixed-replace JPEG stream, the
// format IP webcams and `mjpg-streamer` publish. Frames carry no face
// boxes; detection happens downstream.
//
// The request is bound to the context passed at open time, so cancelling
// that context unblocks a pending part read.
type MJPEGSource struct {
	resp   *http.Response
	parts  *multipart.Reader
	seq    uint64
	closed sync.Once
}

var _ attend.FrameSource = (*MJPEGSource)(nil)

// streamClient has no timeout: an MJPEG response body is read for the
// whole session.
var streamClient = &http.Client{
	Transport: &http.Transport{
		ResponseHeaderTimeout: 10 * time.Second,
	},
}

// OpenMJPEG connects to an MJPEG stream URL.
func OpenMJPEG(ctx context.Context, url string) (*MJPEGSource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to stream: %w: %w", attend.ErrDeviceFailure, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream returned %s: %w", resp.Status, attend.ErrDeviceFailure)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		resp.Body.Close()
		return nil, fmt.Errorf("not an MJPEG stream (content-type %q): %w",
			resp.Header.Get("Content-Type"), attend.ErrDeviceFailure)
	}

	return &MJPEGSource{
		resp:  resp,
		parts: multipart.NewReader(resp.Body, params["boundary"]),
	}, nil
}

// Next reads and decodes the next stream part.
func (s *MJPEGSource) Next(ctx context.Context) (*attend.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	part, err := s.parts.NextPart()
	if err != nil {
		// io.EOF means the publisher closed the stream cleanly; a
		// cancelled open context surfaces here as a body read error
		// wrapping context.Canceled.
		return nil, err
	}
	defer part.Close()

	img, err := jpeg.Decode(part)
	if err != nil {
		return nil, fmt.Errorf("decoding stream frame: %w", err)
	}

	s.seq++
	return &attend.Frame{
		Seq:        s.seq,
		CapturedAt: time.Now(),
		Image:      img,
	}, nil
}

// Stop closes the stream connection.
func (s *MJPEGSource) Stop() error {
	var err error
	s.closed.Do(func() {
		err = s.resp.Body.Close()
	})
	return err
}
