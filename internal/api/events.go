package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/logfields"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/progress"
)

// handleBuildEvents streams a session's progress as Server-Sent Events. The
// history is replayed first; the stream ends after the terminal event.
func (s *Server) handleBuildEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	events, err := s.builds.Subscribe(ctx, id)
	if err != nil {
		s.Error(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable Nginx buffering
	w.WriteHeader(http.StatusOK)
	flush(w)

	log := s.logger.With(logfields.SessionID(id))
	log.DebugContext(ctx, "Build event stream opened")

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.DebugContext(ctx, "Build event stream closed (client disconnect)")
			return

		case <-ticker.C:
			_, _ = fmt.Fprint(w, ": keepalive\n\n")
			flush(w)

		case e, ok := <-events:
			if !ok {
				return
			}
			if err := sendSSEEvent(w, e); err != nil {
				log.WarnContext(ctx, "Failed to write SSE event", logfields.Error(err))
				return
			}
			if e.Terminal() {
				log.DebugContext(ctx, "Build event stream closed (terminal event)", logfields.Phase(string(e.Phase)))
				return
			}
		}
	}
}

// sendSSEEvent writes e as one SSE message named after its phase.
func sendSSEEvent(w http.ResponseWriter, e progress.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", e.Seq, e.Phase, data); err != nil {
		return err
	}
	flush(w)
	return nil
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
