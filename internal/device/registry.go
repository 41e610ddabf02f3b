// Package device keeps the set of discovered switches and serializes
// toggles per device.
package device

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mattjoyce/messenger-wemo/internal/events"
	"github.com/mattjoyce/messenger-wemo/internal/log"
)

// DefaultCommandTimeout bounds each device round trip.
const DefaultCommandTimeout = 5 * time.Second

// Device is a registered switch. Serial and label never change after
// registration; client and state are guarded by mu, which is also held for
// the whole read-modify-write of a toggle.
type Device struct {
	SerialNumber string
	Label        string

	mu        sync.Mutex
	info      Info
	client    Switch
	lastKnown *BinaryState
}

// Snapshot is a point-in-time copy of a device for callers outside the
// registry.
type Snapshot struct {
	SerialNumber   string       `json:"serial_number"`
	Label          string       `json:"label"`
	FriendlyName   string       `json:"friendly_name,omitempty"`
	BaseURL        string       `json:"base_url"`
	LastKnownState *BinaryState `json:"last_known_state"`
}

func (d *Device) snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Snapshot{
		SerialNumber: d.SerialNumber,
		Label:        d.Label,
		FriendlyName: d.info.FriendlyName,
		BaseURL:      d.info.BaseURL,
	}
	if d.lastKnown != nil {
		v := *d.lastKnown
		s.LastKnownState = &v
	}
	return s
}

// Registry maps operator labels to discovered devices.
type Registry struct {
	labels  map[string]string // serial -> label, immutable
	connect Connector
	timeout time.Duration
	events  events.Publisher
	logger  *slog.Logger

	mu      sync.RWMutex
	devices map[string]*Device // lowercased label -> device
}

// NewRegistry creates a registry for the given serial -> label map.
func NewRegistry(labels map[string]string, connect Connector, timeout time.Duration, pub events.Publisher, logger *slog.Logger) *Registry {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if pub == nil {
		pub = events.Discard
	}
	copied := make(map[string]string, len(labels))
	for serial, label := range labels {
		copied[serial] = label
	}
	return &Registry{
		labels:  copied,
		connect: connect,
		timeout: timeout,
		events:  pub,
		logger:  logger,
		devices: make(map[string]*Device),
	}
}

// Run consumes discovered devices until ctx is done or found is closed.
// It is the only writer of the label map.
func (r *Registry) Run(ctx context.Context, found <-chan Info) error {
	r.logger.Info("device registry consuming discoveries", "configured", len(r.labels))
	defer r.logger.Info("device registry stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case info, ok := <-found:
			if !ok {
				return nil
			}
			r.Register(info)
		}
	}
}

// Register adds or refreshes the device for info. Devices whose serial has
// no configured label are ignored and false is returned.
func (r *Registry) Register(info Info) bool {
	label, ok := r.labels[info.SerialNumber]
	if !ok {
		r.logger.Debug("ignoring unconfigured device", "serial", info.SerialNumber, "base_url", info.BaseURL)
		return false
	}

	client := r.connect(info)

	r.mu.Lock()
	existing, found := r.devices[labelKey(label)]
	if !found {
		r.devices[labelKey(label)] = &Device{
			SerialNumber: info.SerialNumber,
			Label:        label,
			info:         info,
			client:       client,
		}
	}
	r.mu.Unlock()

	if found {
		// Waits for any in-flight toggle so the handle is never swapped
		// between its query and command.
		existing.mu.Lock()
		existing.info = info
		existing.client = client
		existing.mu.Unlock()
		r.logger.Debug("device handle refreshed", log.Device(label), "serial", info.SerialNumber)
		return true
	}

	r.logger.Info("device registered", log.Device(label), "serial", info.SerialNumber, "base_url", info.BaseURL)
	r.events.Publish(events.TypeDeviceRegistered, map[string]string{
		"label":  label,
		"serial": info.SerialNumber,
	})
	return true
}

// Lookup returns a snapshot of the device registered under label.
func (r *Registry) Lookup(label string) (Snapshot, bool) {
	d, ok := r.get(label)
	if !ok {
		return Snapshot{}, false
	}
	return d.snapshot(), true
}

// Devices returns snapshots of all registered devices sorted by label.
func (r *Registry) Devices() []Snapshot {
	r.mu.RLock()
	list := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		list = append(list, d)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(list))
	for _, d := range list {
		out = append(out, d.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// Toggle flips the device registered under label and returns the new state.
// Events and errors carry the configured label.
//
// The query and command are serialized per device. Cancellation of ctx does
// not abort a toggle once started; each round trip is bounded by the
// registry's command timeout instead.
func (r *Registry) Toggle(ctx context.Context, label string) (BinaryState, error) {
	d, ok := r.get(label)
	if !ok {
		return Off, ErrDeviceNotFound
	}
	label = d.Label
	ctx = context.WithoutCancel(ctx)
	logger := r.logger.With(log.Device(label))

	d.mu.Lock()
	defer d.mu.Unlock()

	qctx, cancel := context.WithTimeout(ctx, r.timeout)
	current, err := d.client.GetBinaryState(qctx)
	cancel()
	if err != nil {
		logger.Warn("device state query failed", "error", err)
		return Off, r.failed(&CommunicationError{Label: label, Phase: PhaseQuery, Err: err})
	}

	target := current.Toggle()
	logger.Debug("applying state change", "from", current, "to", target)

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	err = d.client.SetBinaryState(cctx, target)
	cancel()
	if err != nil {
		d.lastKnown = nil
		logger.Error("device command failed, state unknown", "target", target, "error", err)
		return Off, r.failed(&CommunicationError{Label: label, Phase: PhaseCommand, Err: err})
	}

	d.lastKnown = &target
	logger.Info("device toggled", "state", target)
	r.events.Publish(events.TypeDeviceToggled, map[string]any{
		"label": label,
		"state": int(target),
	})
	return target, nil
}

func (r *Registry) failed(err *CommunicationError) error {
	r.events.Publish(events.TypeDeviceToggleFailed, map[string]any{
		"label":           err.Label,
		"phase":           err.Phase,
		"state_ambiguous": err.StateAmbiguous(),
	})
	return err
}

func (r *Registry) get(label string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[labelKey(label)]
	return d, ok
}

// Labels match case-insensitively.
func labelKey(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
