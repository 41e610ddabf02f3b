package device

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// BinaryState is a switch's on/off status.
type BinaryState int

const (
	Off BinaryState = 0
	On  BinaryState = 1
)

// Toggle returns the logical complement of s.
func (s BinaryState) Toggle() BinaryState {
	if s == On {
		return Off
	}
	return On
}

func (s BinaryState) String() string {
	if s == On {
		return "on"
	}
	return "off"
}

// ParseBinaryState reads a state value as reported by a device. Only "1"
// counts as on; WeMo Insight appends "|..." detail and reports standby as 8.
func ParseBinaryState(v string) (BinaryState, error) {
	for i := 0; i < len(v); i++ {
		if v[i] == '|' {
			v = v[:i]
			break
		}
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return Off, fmt.Errorf("invalid binary state %q", v)
	}
	if n == 1 {
		return On, nil
	}
	return Off, nil
}

// Info identifies a device found by discovery.
type Info struct {
	SerialNumber string `json:"serial_number"`
	FriendlyName string `json:"friendly_name,omitempty"`
	ModelName    string `json:"model_name,omitempty"`
	// BaseURL is the device's control endpoint root, e.g. http://10.0.0.12:49153.
	BaseURL string `json:"base_url"`
}

// Switch issues state queries and commands to one physical device.
// Implementations must honor ctx deadlines.
type Switch interface {
	GetBinaryState(ctx context.Context) (BinaryState, error)
	SetBinaryState(ctx context.Context, state BinaryState) error
}

// Connector builds a Switch for a discovered device.
type Connector func(info Info) Switch

// Discoverer produces discovered devices until ctx is done, then closes the
// channel.
type Discoverer interface {
	Discover(ctx context.Context) <-chan Info
}

// ErrDeviceNotFound is returned for labels that are unconfigured or not yet
// discovered. Callers cannot tell the two apart.
var ErrDeviceNotFound = errors.New("device not found")

// Phase marks how far a toggle got before failing.
type Phase string

const (
	// PhaseQuery failures happen before any command was sent; the device
	// state is unchanged and the toggle is safe to retry.
	PhaseQuery Phase = "query"
	// PhaseCommand failures happen after the set-state command was issued;
	// the physical state is unknown until queried again.
	PhaseCommand Phase = "command"
)

// CommunicationError reports a failed round trip to a device.
type CommunicationError struct {
	Label string
	Phase Phase
	Err   error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("device %q %s failed: %v", e.Label, e.Phase, e.Err)
}

func (e *CommunicationError) Unwrap() error { return e.Err }

// StateAmbiguous reports whether the device may have changed state.
func (e *CommunicationError) StateAmbiguous() bool {
	return e.Phase == PhaseCommand
}
