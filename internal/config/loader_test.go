package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
messenger:
  app_secret: s3cret
  validation_token: verify-me
  page_access_token: page-token
wemo:
  devices:
    "221517K0101769": lamp
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "minimal config gets defaults",
			yaml: minimalYAML,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Service.Name != "messenger-wemo" {
					t.Errorf("service.name = %q", cfg.Service.Name)
				}
				if cfg.Service.DedupeTTL != 24*time.Hour {
					t.Errorf("service.dedupe_ttl = %v", cfg.Service.DedupeTTL)
				}
				if cfg.Webhook.SignatureHeader != "X-Hub-Signature" {
					t.Errorf("webhook.signature_header = %q", cfg.Webhook.SignatureHeader)
				}
				if cfg.Webhook.Workers != 4 || cfg.Webhook.QueueSize != 64 {
					t.Errorf("webhook workers/queue = %d/%d", cfg.Webhook.Workers, cfg.Webhook.QueueSize)
				}
				if cfg.Wemo.CommandTimeout != 5*time.Second {
					t.Errorf("wemo.command_timeout = %v", cfg.Wemo.CommandTimeout)
				}
				if cfg.Messenger.GraphURL != "https://graph.facebook.com/v2.6" {
					t.Errorf("messenger.graph_url = %q", cfg.Messenger.GraphURL)
				}
				if cfg.Wemo.Devices["221517K0101769"] != "lamp" {
					t.Errorf("wemo.devices = %v", cfg.Wemo.Devices)
				}
				if cfg.API.Enabled {
					t.Error("api should be disabled by default")
				}
			},
		},
		{
			name: "env interpolation in values and keys",
			yaml: `
service:
  dedupe_ttl: 1h
messenger:
  app_secret: ${TEST_MW_SECRET}
  validation_token: ${TEST_MW_VERIFY}
  page_access_token: ${TEST_MW_PAGE}
  send_timeout: 2s
wemo:
  devices:
    ${TEST_MW_SERIAL}: lamp
  command_timeout: 750ms
`,
			env: map[string]string{
				"TEST_MW_SECRET": "from-env",
				"TEST_MW_VERIFY": "verify",
				"TEST_MW_PAGE":   "page",
				"TEST_MW_SERIAL": "SERIAL1",
			},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Messenger.AppSecret != "from-env" {
					t.Errorf("app_secret = %q", cfg.Messenger.AppSecret)
				}
				if cfg.Wemo.Devices["SERIAL1"] != "lamp" {
					t.Errorf("devices = %v", cfg.Wemo.Devices)
				}
				if cfg.Service.DedupeTTL != time.Hour {
					t.Errorf("dedupe_ttl = %v", cfg.Service.DedupeTTL)
				}
				if cfg.Wemo.CommandTimeout != 750*time.Millisecond {
					t.Errorf("command_timeout = %v", cfg.Wemo.CommandTimeout)
				}
				if cfg.Messenger.SendTimeout != 2*time.Second {
					t.Errorf("send_timeout = %v", cfg.Messenger.SendTimeout)
				}
			},
		},
		{
			name: "unset secret variable",
			yaml: `
messenger:
  app_secret: ${TEST_MW_UNSET_SECRET}
  validation_token: v
  page_access_token: p
wemo:
  devices:
    S1: lamp
`,
			wantErr: "${TEST_MW_UNSET_SECRET} is not set",
		},
		{
			name:    "invalid yaml",
			yaml:    "service: [unclosed",
			wantErr: "failed to parse YAML",
		},
		{
			name: "no devices",
			yaml: `
messenger:
  app_secret: s
  validation_token: v
  page_access_token: p
`,
			wantErr: "wemo.devices",
		},
		{
			name: "api enabled without tokens",
			yaml: minimalYAML + `
api:
  enabled: true
`,
			wantErr: "api.auth.tokens",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load(writeConfig(t, tt.yaml))
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("Load() error = nil, want containing %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestLoadDirectoryUsesConfigYAML(t *testing.T) {
	path := writeConfig(t, minimalYAML)

	cfg, err := Load(filepath.Dir(path))
	if err != nil {
		t.Fatalf("Load(dir) error = %v", err)
	}
	if cfg.SourcePath != path {
		t.Fatalf("SourcePath = %q, want %q", cfg.SourcePath, path)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestLoadVerifiesLockedConfig(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	if _, err := Lock(path, false); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	if _, err := Load(path); err != nil {
		t.Fatalf("Load() of locked config error = %v", err)
	}

	if err := os.WriteFile(path, []byte(minimalYAML+"\nservice:\n  log_level: debug\n"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "config verification failed") {
		t.Fatalf("Load() of tampered config error = %v, want verification failure", err)
	}
}

func TestInterpolateEnv(t *testing.T) {
	tests := []struct {
		name  string
		input string
		env   map[string]string
		want  string
	}{
		{
			name:  "simple replacement",
			input: "path: ${TEST_MW_HOME}/data",
			env:   map[string]string{"TEST_MW_HOME": "/users/test"},
			want:  "path: /users/test/data",
		},
		{
			name:  "multiple vars",
			input: "${TEST_MW_USER}:${TEST_MW_PASS}",
			env:   map[string]string{"TEST_MW_USER": "admin", "TEST_MW_PASS": "secret"},
			want:  "admin:secret",
		},
		{
			name:  "undefined var unchanged",
			input: "key: ${TEST_MW_UNDEFINED}",
			want:  "key: ${TEST_MW_UNDEFINED}",
		},
		{
			name:  "no vars",
			input: "plain text",
			want:  "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if got := interpolateEnv(tt.input); got != tt.want {
				t.Errorf("interpolateEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := applyConfigDefaults(&Config{
			Messenger: MessengerConfig{
				AppSecret:       "s",
				ValidationToken: "v",
				PageAccessToken: "p",
			},
			Wemo: WemoConfig{Devices: map[string]string{"S1": "lamp"}},
		})
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "bad log level", mutate: func(c *Config) { c.Service.LogLevel = "verbose" }, wantErr: true},
		{name: "bad log format", mutate: func(c *Config) { c.Service.LogFormat = "xml" }, wantErr: true},
		{name: "missing app secret", mutate: func(c *Config) { c.Messenger.AppSecret = "" }, wantErr: true},
		{name: "zero workers", mutate: func(c *Config) { c.Webhook.Workers = -1 }, wantErr: true},
		{name: "empty label", mutate: func(c *Config) { c.Wemo.Devices["S2"] = " " }, wantErr: true},
		{
			name:    "duplicate label ignoring case",
			mutate:  func(c *Config) { c.Wemo.Devices["S2"] = "Lamp" },
			wantErr: true,
		},
		{
			name: "api token without scopes",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Auth.Tokens = []APIToken{{Token: "t"}}
			},
			wantErr: true,
		},
		{
			name: "api token with scopes",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Auth.Tokens = []APIToken{{Token: "t", Scopes: []string{"devices:ro"}}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
