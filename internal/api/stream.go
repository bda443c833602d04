package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/smazurov/gokucam/internal/framebus"
)

const mjpegBoundary = "frame"

// handleMJPEG streams frames as multipart/x-mixed-replace until the client
// goes away. Timeouts while the camera is suspended or recovering keep the
// connection open.
func (s *Server) handleMJPEG(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer, err := s.camera.Watch(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer viewer.Release()

	h := w.Header()
	h.Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	_ = rc.Flush()

	for {
		f, err := viewer.Next(ctx)
		if errors.Is(err, framebus.ErrTimeout) {
			continue
		}
		if err != nil {
			return
		}
		if err := writePart(w, f.Data); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// writePart writes one JPEG as a multipart section.
func writePart(w io.Writer, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}
