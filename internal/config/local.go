package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// LocalConfig holds configuration for local daemon mode. The JSON tags
// mirror the YAML ones because the daemon's config endpoints carry the
// same structure.
type LocalConfig struct {
	Daemon  DaemonConfig  `yaml:"daemon" json:"daemon"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Content ContentConfig `yaml:"content" json:"content"`
	Runtime RuntimeConfig `yaml:"runtime" json:"runtime"`
	Launch  LaunchConfig  `yaml:"launch" json:"launch"`
	Webhook WebhookConfig `yaml:"webhook" json:"webhook"`
}

// DaemonConfig holds daemon server settings
type DaemonConfig struct {
	Port     int    `yaml:"port" json:"port"`
	Bind     string `yaml:"bind" json:"bind"`
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// StorageConfig picks the persistence backend for registrations and
// reports. The json backend needs nothing installed; sqlite keeps
// everything in one file.
type StorageConfig struct {
	Backend string `yaml:"backend" json:"backend"`                 // json or sqlite
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`   // overrides the default location
}

// ContentConfig holds content package settings
type ContentConfig struct {
	Path string `yaml:"path,omitempty" json:"path,omitempty"` // overrides ~/.lectern/packages
}

// RuntimeConfig holds settings for the SCORM runtime sessions the daemon
// hosts.
type RuntimeConfig struct {
	// AutoSaveSeconds is how often a live session flushes unsaved changes
	// on its own. Zero or negative disables background commits; content
	// then only persists when it calls Commit or Terminate itself.
	AutoSaveSeconds int `yaml:"auto_save_seconds" json:"auto_save_seconds"`
}

// LaunchConfig holds launch token settings
type LaunchConfig struct {
	TokenTTLMinutes int `yaml:"token_ttl_minutes" json:"token_ttl_minutes"`
}

// WebhookConfig holds webhook delivery settings
type WebhookConfig struct {
	URL            string `yaml:"url,omitempty" json:"url,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// SecretsConfig holds the launch token secret loaded from secrets.yaml.
// Without one, tokens are signed with an ephemeral key and stop
// verifying when the daemon restarts.
type SecretsConfig struct {
	Launch struct {
		Secret string `yaml:"secret"`
	} `yaml:"launch"`
}

// LecternDir returns the path to ~/.lectern
func LecternDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".lectern"), nil
}

// EnsureLecternDir creates ~/.lectern and subdirectories if they don't exist
func EnsureLecternDir() (string, error) {
	dir, err := LecternDir()
	if err != nil {
		return "", err
	}

	subdirs := []string{
		"",
		"logs",
		"packages",
		"data",
	}

	for _, subdir := range subdirs {
		path := filepath.Join(dir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", fmt.Errorf("create dir %s: %w", path, err)
		}
	}

	return dir, nil
}

// DefaultLocalConfig returns sensible defaults for local mode
func DefaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		Daemon: DaemonConfig{
			Port:     7531,
			Bind:     "127.0.0.1",
			LogLevel: "info",
		},
		Storage: StorageConfig{
			Backend: "json",
		},
		Runtime: RuntimeConfig{
			AutoSaveSeconds: 30,
		},
		Launch: LaunchConfig{
			TokenTTLMinutes: 120,
		},
		Webhook: WebhookConfig{
			TimeoutSeconds: 10,
		},
	}
}

// StoragePath resolves where the configured backend keeps its data
func (c *LocalConfig) StoragePath(lecternDir string) string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	if c.Storage.Backend == "sqlite" {
		return filepath.Join(lecternDir, "lectern.db")
	}
	return filepath.Join(lecternDir, "data")
}

// ContentPath resolves where content packages live
func (c *LocalConfig) ContentPath(lecternDir string) string {
	if c.Content.Path != "" {
		return c.Content.Path
	}
	return filepath.Join(lecternDir, "packages")
}

// AutoSaveInterval returns the runtime auto-save period, zero when the
// feature is disabled.
func (c *LocalConfig) AutoSaveInterval() time.Duration {
	if c.Runtime.AutoSaveSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Runtime.AutoSaveSeconds) * time.Second
}

// TokenTTL returns the launch token lifetime
func (c *LocalConfig) TokenTTL() time.Duration {
	if c.Launch.TokenTTLMinutes <= 0 {
		return 120 * time.Minute
	}
	return time.Duration(c.Launch.TokenTTLMinutes) * time.Minute
}

// LoadLocalConfig loads configuration from ~/.lectern/config.yaml
func LoadLocalConfig() (*LocalConfig, error) {
	dir, err := LecternDir()
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(dir, "config.yaml")

	// If config doesn't exist, return defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultLocalConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultLocalConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// LoadLaunchSecret loads the launch token secret from secrets.yaml.
// Missing file means no secret, which is not an error.
func LoadLaunchSecret() ([]byte, error) {
	dir, err := LecternDir()
	if err != nil {
		return nil, err
	}

	secretsPath := filepath.Join(dir, "secrets.yaml")
	if _, err := os.Stat(secretsPath); os.IsNotExist(err) {
		return nil, nil
	}

	data, err := os.ReadFile(secretsPath)
	if err != nil {
		return nil, fmt.Errorf("read secrets: %w", err)
	}

	var secrets SecretsConfig
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parse secrets: %w", err)
	}

	if secrets.Launch.Secret == "" {
		return nil, nil
	}
	return []byte(secrets.Launch.Secret), nil
}

// SaveLocalConfig saves configuration to ~/.lectern/config.yaml
func SaveLocalConfig(cfg *LocalConfig) error {
	dir, err := EnsureLecternDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(dir, "config.yaml")

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// SaveLaunchSecret saves the launch token secret to ~/.lectern/secrets.yaml
func SaveLaunchSecret(secret string) error {
	dir, err := EnsureLecternDir()
	if err != nil {
		return err
	}

	secretsPath := filepath.Join(dir, "secrets.yaml")

	var secrets SecretsConfig
	secrets.Launch.Secret = secret

	data, err := yaml.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}

	// Owner read/write only
	if err := os.WriteFile(secretsPath, data, 0600); err != nil {
		return fmt.Errorf("write secrets: %w", err)
	}

	return nil
}
