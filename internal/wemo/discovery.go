// Package wemo discovers Belkin WeMo switches with SSDP and controls them
// through their UPnP basicevent service.
package wemo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/huin/goupnp"
	"github.com/huin/goupnp/httpu"
	"github.com/huin/goupnp/ssdp"

	"github.com/mattjoyce/messenger-wemo/internal/device"
)

const (
	DefaultSearchTarget = basicEventService
	DefaultInterval     = 30 * time.Second
	DefaultWait         = 3 * time.Second

	searchSends     = 2
	describeTimeout = 5 * time.Second
)

// multicastClient sends one HTTPU request and gathers the replies.
type multicastClient interface {
	Do(req *http.Request, timeout time.Duration, numSends int) ([]*http.Response, error)
	Close() error
}

// DiscoveryConfig tunes the SSDP search loop.
type DiscoveryConfig struct {
	SearchTarget string
	Interval     time.Duration // pause between search rounds
	Wait         time.Duration // how long each round collects responses
}

// Discoverer repeatedly multicasts M-SEARCH requests and emits every
// responding device after reading its setup.xml.
type Discoverer struct {
	config DiscoveryConfig
	logger *slog.Logger

	dial   func() (multicastClient, error)
	search func(ctx context.Context) ([]string, error)
}

func NewDiscoverer(cfg DiscoveryConfig, logger *slog.Logger) *Discoverer {
	if cfg.SearchTarget == "" {
		cfg.SearchTarget = DefaultSearchTarget
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Wait <= 0 {
		cfg.Wait = DefaultWait
	}
	d := &Discoverer{
		config: cfg,
		logger: logger,
		dial: func() (multicastClient, error) {
			return httpu.NewHTTPUClient()
		},
	}
	d.search = d.searchSSDP
	return d
}

// Discover runs search rounds until ctx is done. Failed rounds and
// unreadable devices are logged and skipped.
func (d *Discoverer) Discover(ctx context.Context) <-chan device.Info {
	out := make(chan device.Info)
	go func() {
		defer close(out)
		d.logger.Info("device discovery started", "search_target", d.config.SearchTarget, "interval", d.config.Interval)

		for {
			d.round(ctx, out)

			select {
			case <-ctx.Done():
				d.logger.Info("device discovery stopped")
				return
			case <-time.After(d.config.Interval):
			}
		}
	}()
	return out
}

// Once runs a single search round and returns what it found.
func (d *Discoverer) Once(ctx context.Context) ([]device.Info, error) {
	locations, err := d.search(ctx)
	if err != nil {
		return nil, err
	}
	var found []device.Info
	for _, loc := range locations {
		info, err := d.describe(ctx, loc)
		if err != nil {
			d.logger.Warn("reading device description failed", "location", loc, "error", err)
			continue
		}
		found = append(found, info)
	}
	return found, nil
}

func (d *Discoverer) round(ctx context.Context, out chan<- device.Info) {
	locations, err := d.search(ctx)
	if err != nil {
		if ctx.Err() == nil {
			d.logger.Warn("ssdp search failed", "error", err)
		}
		return
	}

	for _, loc := range locations {
		info, err := d.describe(ctx, loc)
		if err != nil {
			d.logger.Warn("reading device description failed", "location", loc, "error", err)
			continue
		}
		d.logger.Debug("device found", "serial", info.SerialNumber, "name", info.FriendlyName)

		select {
		case out <- info:
		case <-ctx.Done():
			return
		}
	}
}

// searchSSDP multicasts an M-SEARCH for the configured target and returns
// the distinct LOCATION of every matching reply.
func (d *Discoverer) searchSSDP(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, err := d.dial()
	if err != nil {
		return nil, fmt.Errorf("open ssdp socket: %w", err)
	}
	defer client.Close()

	wait := d.config.Wait
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < wait {
		wait = time.Until(dl)
	}
	mx := int(wait / time.Second)
	if mx < 1 {
		mx = 1
	}

	responses, err := ssdp.SSDPRawSearch(client, d.config.SearchTarget, mx, searchSends)
	if err != nil {
		return nil, fmt.Errorf("m-search: %w", err)
	}

	seen := make(map[string]bool)
	var locations []string
	for _, resp := range responses {
		loc := resp.Header.Get("Location")
		if loc == "" {
			d.logger.Debug("ignoring ssdp response without location", "usn", resp.Header.Get("USN"))
			continue
		}
		if !seen[loc] {
			seen[loc] = true
			locations = append(locations, loc)
		}
	}
	return locations, nil
}

// describe fetches the device description at location.
func (d *Discoverer) describe(ctx context.Context, location string) (device.Info, error) {
	loc, err := url.Parse(location)
	if err != nil {
		return device.Info{}, fmt.Errorf("invalid location %q: %w", location, err)
	}
	if loc.Scheme == "" || loc.Host == "" {
		return device.Info{}, fmt.Errorf("invalid location %q", location)
	}

	ctx, cancel := context.WithTimeout(ctx, describeTimeout)
	defer cancel()

	root, err := goupnp.DeviceByURLCtx(ctx, loc)
	if err != nil {
		return device.Info{}, fmt.Errorf("fetching setup: %w", err)
	}
	return infoFromRoot(root)
}

func infoFromRoot(root *goupnp.RootDevice) (device.Info, error) {
	serial := strings.TrimSpace(root.Device.SerialNumber)
	if serial == "" {
		return device.Info{}, errors.New("setup has no serial number")
	}
	base, err := baseURL(&root.URLBase)
	if err != nil {
		return device.Info{}, err
	}
	return device.Info{
		SerialNumber: serial,
		FriendlyName: strings.TrimSpace(root.Device.FriendlyName),
		ModelName:    strings.TrimSpace(root.Device.ModelName),
		BaseURL:      base,
	}, nil
}

func baseURL(u *url.URL) (string, error) {
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid device url %q", u.String())
	}
	return u.Scheme + "://" + u.Host, nil
}
