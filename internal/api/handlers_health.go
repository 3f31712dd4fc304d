package api

import "net/http"

// handleHealth reports liveness of the engine and its database. The
// response is 503 when the store is unreachable so load balancers can
// act on it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	overall := "ok"
	database := "ok"

	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("store ping failed", "error", err)
		status = http.StatusServiceUnavailable
		overall = "degraded"
		database = "unreachable"
	}

	engine := s.engine.EngineHealth()
	if engine.Status != "healthy" && overall == "ok" {
		overall = "degraded"
	}

	writeJSON(w, status, map[string]interface{}{
		"status":    overall,
		"version":   s.version,
		"database":  database,
		"engine":    engine,
		"scheduler": s.scheduler.Status(),
	})
}
