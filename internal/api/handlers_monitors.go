package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/argus-mon/argus/internal/executor"
	"github.com/argus-mon/argus/internal/httputil"
	"github.com/argus-mon/argus/internal/storage"
	"github.com/argus-mon/argus/internal/validate"
)

func (s *Server) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	monitors, err := s.store.ListMonitors(r.Context())
	if err != nil {
		s.logger.Error("list monitors", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list monitors")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"monitors": monitors,
		"total":    len(monitors),
	})
}

func (s *Server) handleGetMonitor(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParseObjectID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := s.store.GetMonitor(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "monitor not found")
			return
		}
		s.logger.Error("get monitor", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get monitor")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleCreateMonitor(w http.ResponseWriter, r *http.Request) {
	var m storage.Monitor
	if err := readJSON(r, &m); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// A fresh monitor enters the schedulable set; pausing is an update.
	m.Active = true
	m.Running = true
	validate.ApplyDefaults(&m)

	if err := validate.Monitor(s.registry, &m); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.CreateMonitor(r.Context(), &m); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusConflict, "a monitor named "+m.Name+" already exists")
			return
		}
		s.logger.Error("create monitor", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create monitor")
		return
	}

	s.logger.Info("monitor created", "monitor", m.Name, "type", m.Type, "id", m.ID.Hex())
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleUpdateMonitor(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParseObjectID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	existing, err := s.store.GetMonitor(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "monitor not found")
			return
		}
		s.logger.Error("get monitor for update", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get monitor")
		return
	}

	var m storage.Monitor
	if err := readJSON(r, &m); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m.ID = existing.ID
	m.CreationTime = existing.CreationTime
	validate.ApplyDefaults(&m)

	if err := validate.Monitor(s.registry, &m); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.UpdateMonitor(r.Context(), &m); err != nil {
		switch {
		case errors.Is(err, storage.ErrDuplicate):
			writeError(w, http.StatusConflict, "a monitor named "+m.Name+" already exists")
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "monitor not found")
		default:
			s.logger.Error("update monitor", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to update monitor")
		}
		return
	}

	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteMonitor(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParseObjectID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.DeleteMonitor(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "monitor not found")
			return
		}
		s.logger.Error("delete monitor", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete monitor")
		return
	}

	s.logger.Info("monitor deleted", "id", id.Hex())
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListObservations(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParseObjectID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := httputil.ParseLimit(r, 100, 1000)
	obs, err := s.store.ListObservations(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("list observations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list observations")
		return
	}
	writeJSON(w, http.StatusOK, obs)
}

// handleExecute runs a sweep synchronously and returns its summary.
// period=due (default) honours each monitor's check period; period=all
// forces every schedulable monitor.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var (
		summary *executor.Summary
		err     error
	)
	switch period := r.URL.Query().Get("period"); period {
	case "", "due":
		summary, err = s.executor.ExecuteDue(r.Context(), time.Now())
	case "all":
		summary, err = s.executor.ExecuteAll(r.Context(), time.Now())
	default:
		writeError(w, http.StatusBadRequest, "period must be \"due\" or \"all\"")
		return
	}
	if err != nil {
		s.logger.Error("manual sweep", "error", err)
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
