package config

import "time"

// Config represents the complete messenger-wemo configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	State     StateConfig     `yaml:"state"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Messenger MessengerConfig `yaml:"messenger"`
	Wemo      WemoConfig      `yaml:"wemo"`
	API       APIConfig       `yaml:"api,omitempty"`

	// SourcePath is the absolute path Load read the config from.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string        `yaml:"name"`
	LogLevel  string        `yaml:"log_level"`
	LogFormat string        `yaml:"log_format"`
	DedupeTTL time.Duration `yaml:"dedupe_ttl"`
}

// StateConfig defines the delivery ledger database location.
type StateConfig struct {
	Path string `yaml:"path"`
}

// WebhookConfig defines the Messenger callback listener.
type WebhookConfig struct {
	Listen          string `yaml:"listen"`
	SignatureHeader string `yaml:"signature_header"`
	MaxBodySize     string `yaml:"max_body_size"`
	QueueSize       int    `yaml:"queue_size"`
	Workers         int    `yaml:"workers"`
}

// MessengerConfig holds the page credentials. All three secrets are
// expected to come from ${VAR} interpolation.
type MessengerConfig struct {
	AppSecret       string        `yaml:"app_secret"`
	ValidationToken string        `yaml:"validation_token"`
	PageAccessToken string        `yaml:"page_access_token"`
	GraphURL        string        `yaml:"graph_url"`
	SendTimeout     time.Duration `yaml:"send_timeout"`
}

// WemoConfig defines device discovery and control.
type WemoConfig struct {
	// Devices maps serial number to the label users address it by.
	Devices           map[string]string `yaml:"devices"`
	SearchTarget      string            `yaml:"search_target"`
	DiscoveryInterval time.Duration     `yaml:"discovery_interval"`
	DiscoveryWait     time.Duration     `yaml:"discovery_wait"`
	CommandTimeout    time.Duration     `yaml:"command_timeout"`
}

// APIConfig defines the operator HTTP API.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// Defaults returns a Config populated with every default value.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "messenger-wemo",
			LogLevel:  "info",
			LogFormat: "json",
			DedupeTTL: 24 * time.Hour,
		},
		State: StateConfig{
			Path: "./data/state.db",
		},
		Webhook: WebhookConfig{
			Listen:          "0.0.0.0:5000",
			SignatureHeader: "X-Hub-Signature",
			MaxBodySize:     "1MB",
			QueueSize:       64,
			Workers:         4,
		},
		Messenger: MessengerConfig{
			GraphURL:    "https://graph.facebook.com/v2.6",
			SendTimeout: 10 * time.Second,
		},
		Wemo: WemoConfig{
			Devices:           map[string]string{},
			SearchTarget:      "urn:Belkin:service:basicevent:1",
			DiscoveryInterval: 30 * time.Second,
			DiscoveryWait:     3 * time.Second,
			CommandTimeout:    5 * time.Second,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
	}
}
