package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/mattjoyce/messenger-wemo/internal/api"
	"github.com/mattjoyce/messenger-wemo/internal/auth"
	"github.com/mattjoyce/messenger-wemo/internal/config"
	"github.com/mattjoyce/messenger-wemo/internal/device"
	"github.com/mattjoyce/messenger-wemo/internal/dispatch"
	"github.com/mattjoyce/messenger-wemo/internal/events"
	"github.com/mattjoyce/messenger-wemo/internal/lock"
	"github.com/mattjoyce/messenger-wemo/internal/log"
	"github.com/mattjoyce/messenger-wemo/internal/messenger"
	"github.com/mattjoyce/messenger-wemo/internal/state"
	"github.com/mattjoyce/messenger-wemo/internal/storage"
	"github.com/mattjoyce/messenger-wemo/internal/webhook"
	"github.com/mattjoyce/messenger-wemo/internal/wemo"
)

const version = "0.1.0"

const (
	hubCapacity   = 256
	pruneInterval = time.Hour
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "system":
		os.Exit(runSystemNoun(args))
	case "config":
		os.Exit(runConfigNoun(args))
	case "device":
		os.Exit(runDeviceNoun(args))

	case "start":
		os.Exit(runStart(args))
	case "version":
		fmt.Printf("messenger-wemo version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`messenger-wemo - Messenger chat commands for WeMo switches

Usage:
  messenger-wemo <noun> <action> [flags]

Nouns:
  system    Relay lifecycle
  config    Configuration validation and integrity
  device    WeMo devices on the local network

System Commands:
  system start      Start the relay in the foreground (alias: start)

Config Commands:
  config check      Load and validate the configuration
  config lock       Record the configuration's BLAKE3 hash in .checksums

Device Commands:
  device discover   Run one SSDP search and list responding devices

General:
  version           Show version information
  help              Show this help message

Use 'messenger-wemo <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runDeviceNoun(args []string) int {
	if len(args) < 1 {
		printDeviceNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printDeviceNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "discover":
		if hasHelpFlag(actionArgs) {
			printDeviceDiscoverHelp()
			return 0
		}
		return runDeviceDiscover(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown device action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: messenger-wemo system <action>")
	fmt.Fprintln(w, "Actions: start")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: messenger-wemo config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock")
}

func printDeviceNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: messenger-wemo device <action> [flags]")
	fmt.Fprintln(w, "Actions: discover")
}

func printSystemStartHelp() {
	fmt.Println("Usage: messenger-wemo system start [--config PATH]")
	fmt.Println("Start the webhook listener, discovery loop and dispatcher in the foreground.")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: messenger-wemo config check [--config PATH] [--json]")
	fmt.Println("Load, interpolate and validate the configuration, including the integrity hash.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: messenger-wemo config lock [--config PATH] [--dry-run]")
	fmt.Println("Write the configuration's BLAKE3 hash to .checksums beside it.")
}

func printDeviceDiscoverHelp() {
	fmt.Println("Usage: messenger-wemo device discover [--config PATH] [--wait DURATION] [--target URN] [--json]")
	fmt.Println("Run one SSDP search and list serial numbers for wemo.devices.")
}

// --- ACTION IMPLEMENTATIONS ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultFilename, "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("messenger-wemo starting", "version", version, "config", cfg.SourcePath)

	pidLock, err := lock.Acquire(lock.PathFor(cfg.State.Path))
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "error", err)
		return 1
	}
	defer pidLock.Release()

	webhookConfig, err := webhook.FromGlobalConfig(cfg)
	if err != nil {
		logger.Error("failed to configure webhook", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	store := state.NewStore(db)
	hub := events.NewHub(hubCapacity)

	registry := device.NewRegistry(
		cfg.Wemo.Devices,
		wemo.Connector(cfg.Wemo.CommandTimeout),
		cfg.Wemo.CommandTimeout,
		hub,
		log.WithComponent("registry"),
	)
	discoverer := wemo.NewDiscoverer(wemo.DiscoveryConfig{
		SearchTarget: cfg.Wemo.SearchTarget,
		Interval:     cfg.Wemo.DiscoveryInterval,
		Wait:         cfg.Wemo.DiscoveryWait,
	}, log.WithComponent("discovery"))

	sender := messenger.NewClient(
		cfg.Messenger.GraphURL,
		cfg.Messenger.PageAccessToken,
		cfg.Messenger.SendTimeout,
		log.WithComponent("send"),
	)
	router := dispatch.NewRouter(dispatch.DefaultCommands, registry, sender, hub, log.WithComponent("router"))
	disp := dispatch.New(router, sender, store, hub, dispatch.Options{
		QueueSize: cfg.Webhook.QueueSize,
		Workers:   cfg.Webhook.Workers,
	}, log.WithComponent("dispatch"))

	errCh := make(chan error, 4)

	go func() {
		if err := registry.Run(ctx, discoverer.Discover(ctx)); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("registry: %w", err)
		}
	}()

	go store.RunPruner(ctx, cfg.Service.DedupeTTL, pruneInterval, func(err error) {
		logger.Warn("pruning processed events failed", "error", err)
	})

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		if err := disp.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("dispatcher: %w", err)
		}
	}()

	webhookServer := webhook.New(webhookConfig, disp, log.WithComponent("webhook"))
	go func() {
		if err := webhookServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("webhook: %w", err)
		}
	}()
	logger.Info("webhook server enabled", "listen", webhookConfig.Listen)

	if cfg.API.Enabled {
		tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
		for _, t := range cfg.API.Auth.Tokens {
			tokens = append(tokens, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
		}
		apiServer := api.New(api.Config{
			Listen: cfg.API.Listen,
			Tokens: tokens,
			Labels: configuredLabels(cfg),
		}, registry, hub, log.WithComponent("api"))
		go func() {
			if err := apiServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("messenger-wemo running (press Ctrl+C to stop)", "devices", len(cfg.Wemo.Devices))

	code := 0
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		code = 1
	}
	stop()

	// Queued events finish before the database closes.
	<-dispatchDone
	logger.Info("messenger-wemo stopped")
	return code
}

func runConfigCheck(args []string) int {
	var configPath string
	var jsonOut bool

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", config.DefaultFilename, "Path to configuration")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	result := checkResult{Valid: true}
	cfg, err := config.Load(configPath)
	if err == nil {
		_, err = webhook.FromGlobalConfig(cfg)
	}
	if err != nil {
		result.Valid = false
		result.Error = err.Error()
	} else {
		result.Path = cfg.SourcePath
		result.Devices = configuredLabels(cfg)
		result.APIEnabled = cfg.API.Enabled
	}

	if jsonOut {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(string(out))
	} else if result.Valid {
		fmt.Printf("Configuration OK: %s\n", result.Path)
		fmt.Printf("  devices: %d\n", len(result.Devices))
		for _, label := range result.Devices {
			fmt.Printf("    - %s\n", label)
		}
		fmt.Printf("  api: %t\n", result.APIEnabled)
	} else {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %s\n", result.Error)
	}

	if !result.Valid {
		return 1
	}
	return 0
}

type checkResult struct {
	Valid      bool     `json:"valid"`
	Path       string   `json:"path,omitempty"`
	Devices    []string `json:"devices,omitempty"`
	APIEnabled bool     `json:"api_enabled"`
	Error      string   `json:"error,omitempty"`
}

func runConfigLock(args []string) int {
	var configPath string
	var dryRun bool

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", config.DefaultFilename, "Path to configuration")
	fs.BoolVar(&dryRun, "dry-run", false, "Compute hashes without writing .checksums")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	report, err := config.Lock(configPath, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Lock failed: %v\n", err)
		return 1
	}

	fmt.Printf("HASH %s: %s\n", filepath.Base(report.ConfigPath), report.Hash)
	if !report.Written {
		fmt.Printf("DRY-RUN %s: not written\n", config.ChecksumFilename)
		fmt.Println("Dry run completed")
		return 0
	}
	fmt.Printf("WROTE %s: %s\n", config.ChecksumFilename, report.ChecksumPath)
	fmt.Println("Successfully locked configuration")
	return 0
}

func runDeviceDiscover(args []string) int {
	var configPath, target string
	var wait time.Duration
	var jsonOut bool

	fs := flag.NewFlagSet("discover", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Configuration whose labels annotate the results")
	fs.StringVar(&target, "target", wemo.DefaultSearchTarget, "SSDP search target")
	fs.DurationVar(&wait, "wait", wemo.DefaultWait, "How long to collect responses")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	labels := map[string]string{}
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return 1
		}
		labels = cfg.Wemo.Devices
	}

	log.Setup("warn", "text")
	d := wemo.NewDiscoverer(wemo.DiscoveryConfig{SearchTarget: target, Wait: wait}, log.WithComponent("discovery"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	found, err := d.Once(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Discovery failed: %v\n", err)
		return 1
	}
	return printDiscovered(found, labels, jsonOut)
}

type discoveredDevice struct {
	SerialNumber string `json:"serial_number"`
	FriendlyName string `json:"friendly_name,omitempty"`
	BaseURL      string `json:"base_url"`
	Label        string `json:"label,omitempty"`
}

func printDiscovered(found []device.Info, labels map[string]string, jsonOut bool) int {
	out := make([]discoveredDevice, 0, len(found))
	for _, info := range found {
		out = append(out, discoveredDevice{
			SerialNumber: info.SerialNumber,
			FriendlyName: info.FriendlyName,
			BaseURL:      info.BaseURL,
			Label:        labels[info.SerialNumber],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SerialNumber < out[j].SerialNumber })

	if jsonOut {
		b, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(string(b))
		return 0
	}

	if len(out) == 0 {
		fmt.Println("No devices responded.")
		return 0
	}
	for _, d := range out {
		label := d.Label
		if label == "" {
			label = "(unconfigured)"
		}
		fmt.Printf("%s\t%s\t%s\t%s\n", d.SerialNumber, label, d.FriendlyName, d.BaseURL)
	}
	return 0
}

func configuredLabels(cfg *config.Config) []string {
	labels := make([]string, 0, len(cfg.Wemo.Devices))
	for _, label := range cfg.Wemo.Devices {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
