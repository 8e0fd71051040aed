package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/audexa/noisewatch/internal/engine"
	"github.com/audexa/noisewatch/internal/events"
	"github.com/audexa/noisewatch/internal/server"
	"github.com/audexa/noisewatch/internal/types"
)

// API response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeSuccess(w http.ResponseWriter, data any) {
	s.writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: data})
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	verr := types.NewValidationError()
	verr.Add("", message, nil)
	s.writeJSON(w, status, types.APIResponse{Success: false, Error: verr})
}

func (s *Server) writeValidationError(w http.ResponseWriter, verr *types.ValidationError) {
	s.writeJSON(w, http.StatusBadRequest, types.APIResponse{Success: false, Error: verr})
}

// requireMethod enforces the HTTP method for an endpoint.
func (s *Server) requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// handleAPIStatus returns the full monitor status.
// GET /api/status
func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	s.writeSuccess(w, s.buildWSStatus())
}

// handleAPILevels returns the current audio levels.
// GET /api/levels
func (s *Server) handleAPILevels(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	s.writeSuccess(w, s.engine.AudioLevels())
}

// handleAPIEvents returns recent entries from the event journal.
// GET /api/events?limit=50
func (s *Server) handleAPIEvents(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}

	path := s.engine.EventLogPath()
	if path == "" {
		s.writeError(w, http.StatusNotFound, "event journal is disabled")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	recorded, err := events.ReadLast(path, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read event journal: "+err.Error())
		return
	}
	s.writeSuccess(w, recorded)
}

// --- Monitor lifecycle ---

// handleMonitorStart starts the monitoring pipeline.
// POST /api/monitor/start
func (s *Server) handleMonitorStart(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.engine.Start(); err != nil {
		s.writeError(w, lifecycleStatus(err), err.Error())
		return
	}
	s.writeSuccess(w, s.engine.Status())
}

// handleMonitorStop stops the monitoring pipeline.
// POST /api/monitor/stop
func (s *Server) handleMonitorStop(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.engine.Stop(); err != nil {
		s.writeError(w, lifecycleStatus(err), err.Error())
		return
	}
	s.writeSuccess(w, s.engine.Status())
}

// handleMonitorRestart restarts the monitoring pipeline.
// POST /api/monitor/restart
func (s *Server) handleMonitorRestart(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.engine.Restart(); err != nil {
		s.writeError(w, lifecycleStatus(err), err.Error())
		return
	}
	s.writeSuccess(w, s.engine.Status())
}

// lifecycleStatus maps engine lifecycle errors to HTTP status codes.
func lifecycleStatus(err error) int {
	if errors.Is(err, engine.ErrAlreadyRunning) || errors.Is(err, engine.ErrNotRunning) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// --- Settings ---

// handleDetectionUpdate updates the alert threshold and cycle period.
// The detector is built at pipeline construction, so a running monitor
// is restarted to apply the change.
// POST /api/settings/detection
func (s *Server) handleDetectionUpdate(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}

	var req server.DetectionUpdateRequest
	if verr := server.DecodeAndValidate(r, &req); verr != nil {
		s.writeValidationError(w, verr)
		return
	}

	if req.RMSThreshold != nil {
		if err := s.config.SetRMSThreshold(*req.RMSThreshold); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if req.PeriodMs != nil {
		if err := s.config.SetMonitorPeriodMs(*req.PeriodMs); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	if s.engine.State() == types.StateRunning {
		if err := s.engine.Restart(); err != nil {
			s.writeError(w, http.StatusInternalServerError, "settings saved but restart failed: "+err.Error())
			return
		}
	}
	s.writeSuccess(w, nil)
}

// handleWebhookUpdate updates the alert webhook URL.
// POST /api/settings/webhook
func (s *Server) handleWebhookUpdate(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}

	var req server.WebhookUpdateRequest
	if verr := server.DecodeAndValidate(r, &req); verr != nil {
		s.writeValidationError(w, verr)
		return
	}
	if err := s.config.SetWebhookURL(req.URL); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeSuccess(w, nil)
}

// handleLogUpdate updates the alert log path.
// POST /api/settings/log
func (s *Server) handleLogUpdate(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}

	var req server.LogUpdateRequest
	if verr := server.DecodeAndValidate(r, &req); verr != nil {
		s.writeValidationError(w, verr)
		return
	}
	if err := s.config.SetLogPath(req.Path); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeSuccess(w, nil)
}

// handleEmailUpdate updates the Microsoft Graph email settings.
// POST /api/settings/email
func (s *Server) handleEmailUpdate(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}

	var req server.EmailUpdateRequest
	if verr := server.DecodeAndValidate(r, &req); verr != nil {
		s.writeValidationError(w, verr)
		return
	}
	if err := s.config.SetGraphConfig(req.TenantID, req.ClientID, req.ClientSecret, req.FromAddress, req.Recipients); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.engine.InvalidateGraphClient()
	s.writeSuccess(w, nil)
}

// handleZabbixUpdate updates the Zabbix trapper settings.
// POST /api/settings/zabbix
func (s *Server) handleZabbixUpdate(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}

	var req server.ZabbixUpdateRequest
	if verr := server.DecodeAndValidate(r, &req); verr != nil {
		s.writeValidationError(w, verr)
		return
	}
	if err := s.config.SetZabbixConfig(req.Server, req.Port, req.Host, req.Key); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeSuccess(w, nil)
}

// --- Notification tests ---

// handleTest exercises one notification channel end to end.
// POST /api/test/{webhook|email|log|zabbix|s3}
func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}

	channel := strings.TrimPrefix(r.URL.Path, "/api/test/")

	var err error
	switch channel {
	case "webhook":
		err = s.engine.TriggerTestWebhook()
	case "email":
		err = s.engine.TriggerTestEmail()
	case "log":
		err = s.engine.TriggerTestLog()
	case "zabbix":
		err = s.engine.TriggerTestZabbix()
	case "s3":
		err = s.engine.TriggerTestS3()
	default:
		s.writeError(w, http.StatusNotFound, "unknown test channel")
		return
	}

	result := types.WSTestResult{Type: "test_result", TestType: channel, Success: err == nil}
	if err != nil {
		result.Error = err.Error()
		s.writeJSON(w, http.StatusBadGateway, types.APIResponse{Success: false, Data: result})
		return
	}
	s.writeSuccess(w, result)
}
