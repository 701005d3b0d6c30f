package faceservice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"time"

	"facemark/internal/attend"
	"facemark/internal/model"
)

const defaultTimeout = 5 * time.Second

// Client calls the face service sidecar that hosts the trained recognizer.
// The service exposes three endpoints:
//
//	GET  /healthz     readiness probe
//	POST /detect      {"image": <base64 jpeg>} -> {"faces": [{x,y,w,h}, ...]}
//	POST /recognize   {"image": <base64 jpeg>} -> {"label": n, "confidence": d}
//
// Transport and HTTP failures wrap ErrClassifierUnavailable so the session
// layer can fall back to detection-only mode.
type Client struct {
	baseURL string
	http    *http.Client
}

var (
	_ attend.Classifier = (*Client)(nil)
	_ attend.Detector   = (*Client)(nil)
)

// NewClient creates a face service client. timeout <= 0 uses the default.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Ping reports whether the face service is ready.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", attend.ErrClassifierUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: face service unhealthy: %s", attend.ErrClassifierUnavailable, resp.Status)
	}
	return nil
}

// Recognize classifies a cropped face region.
func (c *Client) Recognize(ctx context.Context, face image.Image) (attend.Prediction, error) {
	var out struct {
		Label      int     `json:"label"`
		Confidence float64 `json:"confidence"`
	}
	if err := c.post(ctx, "/recognize", face, &out); err != nil {
		return attend.Prediction{}, err
	}
	return attend.Prediction{Label: out.Label, Confidence: out.Confidence}, nil
}

// Detect locates faces in a full frame.
func (c *Client) Detect(ctx context.Context, frame image.Image) ([]model.Rect, error) {
	var out struct {
		Faces []model.Rect `json:"faces"`
	}
	if err := c.post(ctx, "/detect", frame, &out); err != nil {
		return nil, err
	}
	return out.Faces, nil
}

// post encodes img as base64 JPEG, sends it to path and decodes the JSON
// response into out.
func (c *Client) post(ctx context.Context, path string, img image.Image, out any) error {
	var jpg bytes.Buffer
	if err := jpeg.Encode(&jpg, img, nil); err != nil {
		return fmt.Errorf("encoding image: %w", err)
	}

	body, err := json.Marshal(map[string]string{
		"image": base64.StdEncoding.EncodeToString(jpg.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", attend.ErrClassifierUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: face service error %s: %s", attend.ErrClassifierUnavailable, resp.Status, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %w", attend.ErrClassifierUnavailable, err)
	}
	return nil
}
