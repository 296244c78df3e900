// Package config loads runtime configuration for the passkey vault client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c/-config.
//  3. Command-line flags, which override earlier values.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds runtime settings for the client.
//
// Fields:
//   - ServerEndpointAddr: base URL of the sync server.
//   - VaultDir: directory holding the sealed vault, identity cache, and
//     sync state.
//   - RequestTimeout: bound for auxiliary sync fetches.
//   - SyncRetryAttempts: retry budget for one sync cycle.
type Config struct {
	ServerEndpointAddr string
	VaultDir           string
	RequestTimeout     time.Duration
	SyncRetryAttempts  uint64
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "http://127.0.0.1:8080"
	c.VaultDir = defaultVaultDir()
	c.RequestTimeout = 5 * time.Second
	c.SyncRetryAttempts = 3
}

// Load constructs a Config from defaults, an optional JSON file, and flags.
// It returns the remaining non-flag arguments (the subcommand and its args).
func Load(args []string) (*Config, []string, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	fs := flag.NewFlagSet("passkeyvault", flag.ContinueOnError)
	var (
		configFile  string
		addr        = fs.String("a", cfg.ServerEndpointAddr, "base URL of the sync server")
		vaultDir    = fs.String("d", cfg.VaultDir, "vault directory")
		timeoutSecs = fs.Int("t", int(cfg.RequestTimeout.Seconds()), "sync request timeout (in seconds)")
		attempts    = fs.Uint64("r", cfg.SyncRetryAttempts, "sync retry attempts")
	)
	fs.StringVar(&configFile, "c", "", "path to JSON config file")
	fs.StringVar(&configFile, "config", "", "path to JSON config file")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	if configFile != "" {
		if err := cfg.loadJSON(configFile); err != nil {
			return nil, nil, err
		}
	}

	// re-apply flags explicitly set so they win over the JSON file
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "a":
			cfg.ServerEndpointAddr = *addr
		case "d":
			cfg.VaultDir = *vaultDir
		case "t":
			cfg.RequestTimeout = time.Duration(*timeoutSecs) * time.Second
		case "r":
			cfg.SyncRetryAttempts = *attempts
		}
	})

	return cfg, fs.Args(), nil
}

// jsonConfig is a DTO used exclusively for JSON unmarshalling. Durations are
// strings like "5s".
type jsonConfig struct {
	ServerEndpointAddr string `json:"server_endpoint_addr"`
	VaultDir           string `json:"vault_dir"`
	RequestTimeout     string `json:"request_timeout"`
	SyncRetryAttempts  uint64 `json:"sync_retry_attempts"`
}

func (c *Config) loadJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var jc jsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if jc.ServerEndpointAddr != "" {
		c.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.VaultDir != "" {
		c.VaultDir = jc.VaultDir
	}
	if jc.RequestTimeout != "" {
		d, err := time.ParseDuration(jc.RequestTimeout)
		if err != nil {
			return fmt.Errorf("parse request_timeout: %w", err)
		}
		c.RequestTimeout = d
	}
	if jc.SyncRetryAttempts != 0 {
		c.SyncRetryAttempts = jc.SyncRetryAttempts
	}
	return nil
}

func defaultVaultDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "passkeyvault"
	}
	return filepath.Join(base, "passkeyvault")
}
