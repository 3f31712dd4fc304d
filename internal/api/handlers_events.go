package api

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// handleEventsWS streams engine events (check results, alert lifecycle)
// to the client as JSON messages. Slow clients miss events rather than
// stall the engine; the bus drops on a full buffer.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.Server.CORSOrigins,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ch, cancel := s.bus.Subscribe(64)
	defer cancel()

	s.logger.Debug("event subscriber connected", "remote", r.RemoteAddr)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case ev := <-ch:
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				s.logger.Debug("event subscriber gone", "remote", r.RemoteAddr, "error", err)
				return
			}
		}
	}
}
