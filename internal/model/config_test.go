package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Backend.Kind)
	assert.Equal(t, 3, cfg.Sync.ReadRetries)
	assert.Equal(t, 6, cfg.Sync.BulkConcurrency)
	assert.Equal(t, []string{"kaspa:", "kaspatest:"}, cfg.Wallet.AddressPrefixes)
	assert.Equal(t, RelayNone, cfg.Relay.Kind)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
backend:
  kind: http
  base_url: https://entities.example.com/api/apps/abc
sync:
  bulk_concurrency: 2
relay:
  kind: smtp
  smtp_host: smtp.example.com
inbound:
  sources:
    - id: work
      type: imap
      name: Work
      base_url: imap.example.com:993
      config:
        username: me@example.com
        target_address: kaspa:qme
    - id: old
      type: imap
      enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, BackendHTTP, cfg.Backend.Kind)
	assert.Equal(t, "https://entities.example.com/api/apps/abc", cfg.Backend.BaseURL)
	assert.Equal(t, 30, cfg.Backend.TimeoutSec)
	assert.Equal(t, 2, cfg.Sync.BulkConcurrency)
	assert.Equal(t, RelaySMTP, cfg.Relay.Kind)
	assert.Equal(t, 587, cfg.Relay.SMTPPort)

	require.Len(t, cfg.Inbound.Sources, 2)
	assert.True(t, cfg.Inbound.Sources[0].Enabled)
	assert.Equal(t, 60, cfg.Inbound.Sources[0].PollIntervalSec)
	assert.Equal(t, "kaspa:qme", cfg.Inbound.Sources[0].Config["target_address"])
	assert.False(t, cfg.Inbound.Sources[1].Enabled)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("KMAIL_RELAY_URL", "https://relay.example.com/send")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "https://relay.example.com/send", cfg.Relay.URL)
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: [unterminated"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
