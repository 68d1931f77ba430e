package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// handleSSE is the plain-HTTP alternative to handleWebSocket for clients
// that can't or don't want to negotiate a WebSocket upgrade (e.g. a
// browser EventSource, or an e-reader's progress poller) — both subscribe
// to the same events.Hub, so neither transport sees a different event
// stream than the other.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, err := s.auth.Authenticate(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", string(evt.Kind), data)
			flusher.Flush()
		}
	}
}
