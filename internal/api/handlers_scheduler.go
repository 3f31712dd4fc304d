package api

import "net/http"

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduler.Status())
}

func (s *Server) handleSchedulerStart(w http.ResponseWriter, r *http.Request) {
	if !s.scheduler.Start() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already running"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleSchedulerStop(w http.ResponseWriter, r *http.Request) {
	if !s.scheduler.Stop() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "not running"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}
