package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/messenger-wemo/internal/config"
)

func TestParseMaxBodySize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "", want: DefaultMaxBodySize},
		{in: "2048", want: 2048},
		{in: "512KB", want: 512 * 1024},
		{in: "1mb", want: 1024 * 1024},
		{in: "2GB", want: 2 * 1024 * 1024 * 1024},
		{in: "0", wantErr: true},
		{in: "-5KB", wantErr: true},
		{in: "lots", wantErr: true},
		{in: "9999999999999GB", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseMaxBodySize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromGlobalConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Messenger.AppSecret = "secret"
	cfg.Messenger.ValidationToken = "verify"
	cfg.Webhook.MaxBodySize = "64KB"

	wc, err := FromGlobalConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:5000", wc.Listen)
	assert.Equal(t, "secret", wc.AppSecret)
	assert.Equal(t, "verify", wc.VerifyToken)
	assert.Equal(t, "X-Hub-Signature", wc.SignatureHeader)
	assert.Equal(t, int64(64*1024), wc.MaxBodySize)

	cfg.Webhook.MaxBodySize = "huge"
	_, err = FromGlobalConfig(cfg)
	assert.Error(t, err)

	_, err = FromGlobalConfig(nil)
	assert.Error(t, err)
}
