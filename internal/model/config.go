package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Backend kinds.
const (
	BackendHTTP   = "http"
	BackendSQLite = "sqlite"
)

// Relay kinds.
const (
	RelayHTTP = "http"
	RelaySMTP = "smtp"
	RelayNone = "none"
)

// BackendConfig selects and configures the entity store.
type BackendConfig struct {
	// Kind is "http" for the hosted entity API or "sqlite" for a local file.
	Kind string `mapstructure:"kind" yaml:"kind"`

	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	AppID   string `mapstructure:"app_id" yaml:"app_id"`

	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`

	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// WalletConfig configures the wallet bridge.
type WalletConfig struct {
	RPCURL string `mapstructure:"rpc_url" yaml:"rpc_url"`

	// AddressPrefixes decide which recipients are wallet addresses and
	// therefore get an inbox copy instead of a relay delivery.
	AddressPrefixes []string `mapstructure:"address_prefixes" yaml:"address_prefixes"`

	// SignChallenge asks the wallet to sign a login challenge on connect.
	SignChallenge bool `mapstructure:"sign_challenge" yaml:"sign_challenge"`
}

// RelayConfig configures delivery to recipients outside the wallet network.
type RelayConfig struct {
	Kind string `mapstructure:"kind" yaml:"kind"`
	URL  string `mapstructure:"url" yaml:"url"`

	SMTPHost     string `mapstructure:"smtp_host" yaml:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port" yaml:"smtp_port"`
	SMTPUsername string `mapstructure:"smtp_username" yaml:"smtp_username"`
	FromAddress  string `mapstructure:"from_address" yaml:"from_address"`

	// SMTPSecurity is "starttls", "tls" or "none".
	SMTPSecurity string `mapstructure:"smtp_security" yaml:"smtp_security"`
}

// SyncConfig tunes the mailbox synchronizer.
type SyncConfig struct {
	ReadRetries     int `mapstructure:"read_retries" yaml:"read_retries"`
	ReadTimeoutSec  int `mapstructure:"read_timeout_sec" yaml:"read_timeout_sec"`
	BulkConcurrency int `mapstructure:"bulk_concurrency" yaml:"bulk_concurrency"`
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
}

// SourceConfig holds one inbound mail source polled into an identity's inbox.
type SourceConfig struct {
	ID   string `mapstructure:"id" yaml:"id"`
	Type string `mapstructure:"type" yaml:"type"`
	Name string `mapstructure:"name" yaml:"name"`

	// BaseURL is host:port for IMAP sources.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	Enabled         bool `mapstructure:"enabled" yaml:"enabled"`
	PollIntervalSec int  `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// Config holds source specific settings (username, mailbox, target_address).
	Config map[string]string `mapstructure:"config" yaml:"config"`
}

// InboundConfig configures the inbound receiver and imported sources.
type InboundConfig struct {
	ListenAddr string         `mapstructure:"listen_addr" yaml:"listen_addr"`
	Sources    []SourceConfig `mapstructure:"sources" yaml:"sources"`
}

// ScanConfig holds settings for the message security scan.
type ScanConfig struct {
	Model     string `mapstructure:"model" yaml:"model"`
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// LogConfig controls logrus output.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Backend BackendConfig `mapstructure:"backend" yaml:"backend"`
	Wallet  WalletConfig  `mapstructure:"wallet" yaml:"wallet"`
	Relay   RelayConfig   `mapstructure:"relay" yaml:"relay"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Inbound InboundConfig `mapstructure:"inbound" yaml:"inbound"`
	Scan    ScanConfig    `mapstructure:"scan" yaml:"scan"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// ConfigDir returns ~/.config/kmail.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "kmail")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/kmail/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Backend: BackendConfig{
			Kind:       BackendSQLite,
			SQLitePath: filepath.Join(ConfigDir(), "kmail.db"),
			TimeoutSec: 30,
		},
		Wallet: WalletConfig{
			RPCURL:          "http://127.0.0.1:8787/rpc",
			AddressPrefixes: []string{"kaspa:", "kaspatest:"},
			SignChallenge:   true,
		},
		Relay: RelayConfig{
			Kind:         RelayNone,
			SMTPPort:     587,
			SMTPSecurity: "starttls",
		},
		Sync: SyncConfig{
			ReadRetries:     3,
			ReadTimeoutSec:  15,
			BulkConcurrency: 6,
			PollIntervalSec: 60,
		},
		Inbound: InboundConfig{
			ListenAddr: ":8025",
			Sources:    []SourceConfig{},
		},
		Scan: ScanConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 1024,
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(ConfigDir(), "kmail.log"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("backend.kind", d.Backend.Kind)
	v.SetDefault("backend.base_url", d.Backend.BaseURL)
	v.SetDefault("backend.app_id", d.Backend.AppID)
	v.SetDefault("backend.sqlite_path", d.Backend.SQLitePath)
	v.SetDefault("backend.timeout_sec", d.Backend.TimeoutSec)
	v.SetDefault("wallet.rpc_url", d.Wallet.RPCURL)
	v.SetDefault("wallet.address_prefixes", d.Wallet.AddressPrefixes)
	v.SetDefault("wallet.sign_challenge", d.Wallet.SignChallenge)
	v.SetDefault("relay.kind", d.Relay.Kind)
	v.SetDefault("relay.url", d.Relay.URL)
	v.SetDefault("relay.smtp_host", d.Relay.SMTPHost)
	v.SetDefault("relay.smtp_port", d.Relay.SMTPPort)
	v.SetDefault("relay.smtp_username", d.Relay.SMTPUsername)
	v.SetDefault("relay.from_address", d.Relay.FromAddress)
	v.SetDefault("relay.smtp_security", d.Relay.SMTPSecurity)
	v.SetDefault("sync.read_retries", d.Sync.ReadRetries)
	v.SetDefault("sync.read_timeout_sec", d.Sync.ReadTimeoutSec)
	v.SetDefault("sync.bulk_concurrency", d.Sync.BulkConcurrency)
	v.SetDefault("sync.poll_interval_sec", d.Sync.PollIntervalSec)
	v.SetDefault("inbound.listen_addr", d.Inbound.ListenAddr)
	v.SetDefault("scan.model", d.Scan.Model)
	v.SetDefault("scan.max_tokens", d.Scan.MaxTokens)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Values can be overridden with KMAIL_ prefixed environment variables
// (KMAIL_BACKEND_KIND, KMAIL_RELAY_URL, ...). A missing file yields the
// defaults.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("KMAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	for i := range cfg.Inbound.Sources {
		src := &cfg.Inbound.Sources[i]
		if src.PollIntervalSec == 0 {
			src.PollIntervalSec = cfg.Sync.PollIntervalSec
		}
		// Viper unmarshals missing bools as false; treat unset as true.
		if !src.Enabled && !v.IsSet(fmt.Sprintf("inbound.sources.%d.enabled", i)) {
			src.Enabled = true
		}
	}
	if cfg.Sync.BulkConcurrency < 1 {
		cfg.Sync.BulkConcurrency = 1
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("backend", cfg.Backend)
	v.Set("wallet", cfg.Wallet)
	v.Set("relay", cfg.Relay)
	v.Set("sync", cfg.Sync)
	v.Set("inbound", cfg.Inbound)
	v.Set("scan", cfg.Scan)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
