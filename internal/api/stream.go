package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/storefrontlabs/pricewatch/internal/jobs"
)

// handleStream serves the push channel as server-sent events. The connection
// keeps its own milestone cursor, so each subscriber sees every milestone
// exactly once regardless of when it connected. The stream closes after the
// final snapshot of a terminal job.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	id := chi.URLParam(r, "job_id")
	if _, err := s.store.Get(r.Context(), id); errors.Is(err, jobs.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(s.cfg.StreamInterval)
	defer ticker.Stop()

	cursor := 0
	for {
		snap, err := s.store.Get(r.Context(), id)
		if errors.Is(err, jobs.ErrNotFound) {
			// Swept mid-stream.
			sendEvent(w, "error", map[string]string{"error": "job not found"})
			flusher.Flush()
			return
		}
		if err != nil {
			// Transient read failure: keep the connection and retry on the
			// next tick.
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
			}
			continue
		}

		milestones, err := s.store.MilestonesSince(r.Context(), id, cursor)
		if err == nil {
			for _, m := range milestones {
				sendEvent(w, "milestone", m)
				cursor = m.Seq
			}
		}
		sendEvent(w, "snapshot", snap)
		flusher.Flush()

		if snap.Status.Terminal() {
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func sendEvent(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
