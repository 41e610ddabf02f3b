package api

import "github.com/mattjoyce/messenger-wemo/internal/device"

// DeviceResponse describes one registered device.
type DeviceResponse struct {
	Label        string `json:"label"`
	SerialNumber string `json:"serial_number"`
	FriendlyName string `json:"friendly_name,omitempty"`
	BaseURL      string `json:"base_url"`
	// State is "on", "off" or "unknown".
	State string `json:"state"`
}

// DevicesResponse is returned by GET /devices.
type DevicesResponse struct {
	Devices []DeviceResponse `json:"devices"`
}

// ToggleResponse is returned by a successful POST /devices/{label}/toggle.
type ToggleResponse struct {
	Label string `json:"label"`
	State string `json:"state"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
	// StateAmbiguous is set when a command reached the device but was not
	// confirmed; re-read the device before retrying.
	StateAmbiguous bool `json:"state_ambiguous,omitempty"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Devices       int    `json:"devices"`
}

func toDeviceResponse(s device.Snapshot) DeviceResponse {
	state := "unknown"
	if s.LastKnownState != nil {
		state = s.LastKnownState.String()
	}
	return DeviceResponse{
		Label:        s.Label,
		SerialNumber: s.SerialNumber,
		FriendlyName: s.FriendlyName,
		BaseURL:      s.BaseURL,
		State:        state,
	}
}
