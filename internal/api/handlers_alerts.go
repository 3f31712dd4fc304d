package api

import (
	"errors"
	"net/http"

	"github.com/argus-mon/argus/internal/httputil"
	"github.com/argus-mon/argus/internal/storage"
)

// handleListAlerts returns the unresolved alerts: active, acknowledged
// and in recovery.
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.store.ListActiveAlerts(r.Context())
	if err != nil {
		s.logger.Error("list alerts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"total":  len(alerts),
	})
}

// handleListMonitorAlerts returns alert history for one monitor, newest
// first.
func (s *Server) handleListMonitorAlerts(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParseObjectID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := httputil.ParseLimit(r, 50, 500)
	alerts, err := s.store.ListAlerts(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("list monitor alerts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id parameter")
		return
	}

	a, err := s.alerts.Acknowledge(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	s.logger.Info("alert acknowledged", "alert", a.ID, "monitor", a.MonitorName)
	writeJSON(w, http.StatusOK, a)
}
