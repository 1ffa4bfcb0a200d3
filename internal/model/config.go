package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// SyncConfig holds the knobs for the background sync engine. These are
// process-level settings; credentials live in the credential store.
type SyncConfig struct {
	// TenantID overrides the tenant id from the credential store.
	TenantID string `mapstructure:"tenant_id" yaml:"tenant_id"`

	// InitialFetchLimit caps how many recent messages the first
	// mailbox snapshot ingests.
	InitialFetchLimit int `mapstructure:"initial_fetch_limit" yaml:"initial_fetch_limit"`
}

// BootstrapConfig holds settings for contact rule seeding.
type BootstrapConfig struct {
	// KnowledgeBasePath is the root of the knowledge base directory
	// tree scanned for client folders.
	KnowledgeBasePath string `mapstructure:"knowledge_base_path" yaml:"knowledge_base_path"`

	// InternalDomain is the operator's own mail domain, seeded as an
	// internal contact rule.
	InternalDomain string `mapstructure:"internal_domain" yaml:"internal_domain"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	// DatabasePath is the location of the SQLite metadata store.
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	Sync      SyncConfig      `mapstructure:"sync" yaml:"sync"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap" yaml:"bootstrap"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailsync/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailsync", "config.yaml")
}

// DefaultDatabasePath returns the default location of the metadata store,
// ~/.mailsync/outlook/emails.db.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "emails.db")
	}
	return filepath.Join(home, ".mailsync", "outlook", "emails.db")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		DatabasePath: DefaultDatabasePath(),
		Sync: SyncConfig{
			InitialFetchLimit: 500,
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("database_path", DefaultDatabasePath())
	v.SetDefault("sync.initial_fetch_limit", 500)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Sync.InitialFetchLimit <= 0 {
		cfg.Sync.InitialFetchLimit = 500
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

	v.Set("database_path", cfg.DatabasePath)
	v.Set("sync", cfg.Sync)
	v.Set("bootstrap", cfg.Bootstrap)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
