package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/messenger-wemo/internal/auth"
	"github.com/mattjoyce/messenger-wemo/internal/device"
	"github.com/mattjoyce/messenger-wemo/internal/log"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Devices:       len(s.devices.Devices()),
	})
}

// handleListDevices handles GET /devices.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	snapshots := s.devices.Devices()
	resp := DevicesResponse{Devices: make([]DeviceResponse, 0, len(snapshots))}
	for _, snap := range snapshots {
		resp.Devices = append(resp.Devices, toDeviceResponse(snap))
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleToggle handles POST /devices/{label}/toggle.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")
	principal, _ := auth.PrincipalFromContext(r.Context())

	state, err := s.devices.Toggle(r.Context(), label)
	if err != nil {
		var commErr *device.CommunicationError
		switch {
		case errors.Is(err, device.ErrDeviceNotFound):
			s.writeError(w, http.StatusNotFound, "device not found")
		case errors.As(err, &commErr):
			s.logger.Warn("manual toggle failed", log.Device(label), "phase", string(commErr.Phase), "error", err)
			respondJSON(w, http.StatusBadGateway, ErrorResponse{
				Error:          "device communication failed",
				StateAmbiguous: commErr.StateAmbiguous(),
			})
		default:
			s.logger.Error("manual toggle failed", log.Device(label), "error", err)
			s.writeError(w, http.StatusInternalServerError, "toggle failed")
		}
		return
	}

	s.logger.Info("manual toggle", log.Device(label), "state", state.String(), "token", principal.ID)
	respondJSON(w, http.StatusOK, ToggleResponse{Label: label, State: state.String()})
}

// handleOpenAPI handles GET /openapi.json.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.config.Labels))
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
