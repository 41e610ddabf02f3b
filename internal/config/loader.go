package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFilename is looked up when Load is given a directory.
const DefaultFilename = "config.yaml"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, interpolates, defaults, verifies and validates the config file.
// A directory argument resolves to config.yaml inside it.
func Load(configPath string) (*Config, error) {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg.SourcePath = absPath

	cfg = applyConfigDefaults(cfg)

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ResolvePath returns the absolute config file path for a file or directory.
func ResolvePath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, DefaultFilename)
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but %s not found: %s", DefaultFilename, absPath)
		}
	}
	return absPath, nil
}

func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

// verifyConfigHash checks the file against .checksums beside it. A missing
// manifest skips verification.
func verifyConfigHash(path string) error {
	dir := filepath.Dir(path)
	manifest, err := LoadChecksums(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	basename := filepath.Base(path)
	expectedHash, ok := manifest.Hashes[basename]
	if !ok {
		return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
			"Run: messenger-wemo config lock --config %s", basename, dir, path)
	}

	if err := VerifyFileHash(path, expectedHash); err != nil {
		return fmt.Errorf("config verification failed for %s: %w\n"+
			"This indicates tampering or unauthorized modification.\n"+
			"If you edited this file intentionally, run: messenger-wemo config lock --config %s", path, err, path)
	}
	return nil
}

// applyConfigDefaults fills every zero value from Defaults.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.Service.DedupeTTL == 0 {
		cfg.Service.DedupeTTL = defaults.Service.DedupeTTL
	}

	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}

	if cfg.Webhook.Listen == "" {
		cfg.Webhook.Listen = defaults.Webhook.Listen
	}
	if cfg.Webhook.SignatureHeader == "" {
		cfg.Webhook.SignatureHeader = defaults.Webhook.SignatureHeader
	}
	if cfg.Webhook.MaxBodySize == "" {
		cfg.Webhook.MaxBodySize = defaults.Webhook.MaxBodySize
	}
	if cfg.Webhook.QueueSize == 0 {
		cfg.Webhook.QueueSize = defaults.Webhook.QueueSize
	}
	if cfg.Webhook.Workers == 0 {
		cfg.Webhook.Workers = defaults.Webhook.Workers
	}

	if cfg.Messenger.GraphURL == "" {
		cfg.Messenger.GraphURL = defaults.Messenger.GraphURL
	}
	if cfg.Messenger.SendTimeout == 0 {
		cfg.Messenger.SendTimeout = defaults.Messenger.SendTimeout
	}

	if cfg.Wemo.Devices == nil {
		cfg.Wemo.Devices = defaults.Wemo.Devices
	}
	if cfg.Wemo.SearchTarget == "" {
		cfg.Wemo.SearchTarget = defaults.Wemo.SearchTarget
	}
	if cfg.Wemo.DiscoveryInterval == 0 {
		cfg.Wemo.DiscoveryInterval = defaults.Wemo.DiscoveryInterval
	}
	if cfg.Wemo.DiscoveryWait == 0 {
		cfg.Wemo.DiscoveryWait = defaults.Wemo.DiscoveryWait
	}
	if cfg.Wemo.CommandTimeout == 0 {
		cfg.Wemo.CommandTimeout = defaults.Wemo.CommandTimeout
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Left in place so validate can name the missing variable.
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}
	if cfg.Service.DedupeTTL < 0 {
		return fmt.Errorf("service.dedupe_ttl must not be negative")
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	if cfg.Webhook.Workers < 1 {
		return fmt.Errorf("webhook.workers must be at least 1")
	}
	if cfg.Webhook.QueueSize < 1 {
		return fmt.Errorf("webhook.queue_size must be at least 1")
	}

	secrets := []struct {
		field string
		value string
	}{
		{"messenger.app_secret", cfg.Messenger.AppSecret},
		{"messenger.validation_token", cfg.Messenger.ValidationToken},
		{"messenger.page_access_token", cfg.Messenger.PageAccessToken},
	}
	for _, s := range secrets {
		if err := requireResolved(s.field, s.value); err != nil {
			return err
		}
	}
	if cfg.Messenger.SendTimeout < 0 {
		return fmt.Errorf("messenger.send_timeout must not be negative")
	}

	if len(cfg.Wemo.Devices) == 0 {
		return fmt.Errorf("wemo.devices must map at least one serial number to a label")
	}
	seen := make(map[string]string, len(cfg.Wemo.Devices))
	for serial, label := range cfg.Wemo.Devices {
		if err := requireResolved("wemo.devices key", serial); err != nil {
			return err
		}
		if err := requireResolved(fmt.Sprintf("wemo.devices[%s]", serial), label); err != nil {
			return err
		}
		key := strings.ToLower(strings.TrimSpace(label))
		if other, dup := seen[key]; dup {
			return fmt.Errorf("wemo.devices: label %q used by both %s and %s", label, other, serial)
		}
		seen[key] = serial
	}
	if cfg.Wemo.CommandTimeout < 0 || cfg.Wemo.DiscoveryInterval < 0 || cfg.Wemo.DiscoveryWait < 0 {
		return fmt.Errorf("wemo durations must not be negative")
	}

	if cfg.API.Enabled {
		if len(cfg.API.Auth.Tokens) == 0 {
			return fmt.Errorf("api.auth.tokens must be non-empty when the API is enabled")
		}
		for i, tok := range cfg.API.Auth.Tokens {
			if err := requireResolved(fmt.Sprintf("api.auth.tokens[%d].token", i), tok.Token); err != nil {
				return err
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("api.auth.tokens[%d].scopes must be non-empty", i)
			}
		}
	}

	return nil
}

// requireResolved fails on empty values and on ${VAR} placeholders that
// interpolation could not resolve. Secret values never appear in the error.
func requireResolved(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", field)
	}
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}
