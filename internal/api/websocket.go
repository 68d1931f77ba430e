package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/stump/stump/internal/events"
)

// handleWebSocket upgrades a connection and streams every events.Hub
// broadcast to it — job progress and core events alike — as a
// subscription against the shared Hub so WebSocket and SSE consumers
// see identical traffic.
// Authentication runs before the upgrade: auth.Middleware.Authenticate
// can't be expressed as the usual RequireAuth http.Handler wrapper here
// because a failed auth must respond with a plain 401, not hijack the
// connection first.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if _, err := s.auth.Authenticate(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Printf("ws: accept failed: %v", err)
		return
	}
	defer conn.CloseNow()

	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)

	ctx := conn.CloseRead(r.Context())
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
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
