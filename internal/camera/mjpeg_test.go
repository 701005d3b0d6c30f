package camera

import (
	"context"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"facemark/internal/attend"
)

// mjpegServer streams n JPEG parts and then ends the response.
func mjpegServer(t *testing.T, n int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mw := multipart.NewWriter(w)
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mw.Boundary())
		w.WriteHeader(http.StatusOK)

		for i := 0; i < n; i++ {
			part, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"image/jpeg"}})
			if err != nil {
				return
			}
			jpeg.Encode(part, image.NewRGBA(image.Rect(0, 0, 16, 16)), nil)
		}
		mw.Close()
	}))
}

func TestMJPEGSource_Next(t *testing.T) {
	srv := mjpegServer(t, 2)
	defer srv.Close()

	s, err := OpenMJPEG(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("OpenMJPEG() error = %v", err)
	}
	defer s.Stop()

	for i := 0; i < 2; i++ {
		frame, err := s.Next(context.Background())
		if err != nil {
			t.Fatalf("Next() #%d error = %v", i, err)
		}
		if frame.Seq != uint64(i+1) {
			t.Errorf("frame %d Seq = %d, want %d", i, frame.Seq, i+1)
		}
		if frame.Image.Bounds().Dx() != 16 {
			t.Errorf("frame %d width = %d, want 16", i, frame.Image.Bounds().Dx())
		}
		if frame.Faces != nil {
			t.Errorf("frame %d carries faces, want nil (detector's job)", i)
		}
	}

	if _, err := s.Next(context.Background()); err != io.EOF {
		t.Errorf("Next() after stream end error = %v, want io.EOF", err)
	}
}

func TestOpenMJPEG_Failures(t *testing.T) {
	t.Run("plain response is not a stream", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html>not a camera</html>"))
		}))
		defer srv.Close()

		_, err := OpenMJPEG(context.Background(), srv.URL)
		if !errors.Is(err, attend.ErrDeviceFailure) {
			t.Errorf("OpenMJPEG() error = %v, want ErrDeviceFailure", err)
		}
	})

	t.Run("http error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "camera offline", http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := OpenMJPEG(context.Background(), srv.URL)
		if !errors.Is(err, attend.ErrDeviceFailure) {
			t.Errorf("OpenMJPEG() error = %v, want ErrDeviceFailure", err)
		}
	})

	t.Run("unreachable host", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		_, err := OpenMJPEG(context.Background(), srv.URL)
		if !errors.Is(err, attend.ErrDeviceFailure) {
			t.Errorf("OpenMJPEG() error = %v, want ErrDeviceFailure", err)
		}
	})
}

func TestMJPEGSource_CancelUnblocksRead(t *testing.T) {
	// Stream one frame, then hold the connection open until the client
	// goes away.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mw := multipart.NewWriter(w)
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mw.Boundary())
		w.WriteHeader(http.StatusOK)

		part, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"image/jpeg"}})
		if err != nil {
			return
		}
		jpeg.Encode(part, image.NewRGBA(image.Rect(0, 0, 16, 16)), nil)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	s, err := OpenMJPEG(ctx, srv.URL)
	if err != nil {
		t.Fatalf("OpenMJPEG() error = %v", err)
	}
	defer s.Stop()

	if _, err := s.Next(context.Background()); err != nil {
		t.Fatalf("Next() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.Next(context.Background())
		done <- err
	}()

	cancel()
	if err := <-done; err == nil {
		t.Error("Next() returned nil error after the open context was cancelled")
	}
}
