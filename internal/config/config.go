// Package config provides configuration loading and structs for Shirabe.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/shirabe/internal/engine"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Vault   VaultConfig   `yaml:"vault"`
	Index   IndexConfig   `yaml:"index"`
	Search  SearchConfig  `yaml:"search"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the persistent data directory. The journal and index
// snapshots live in subdirectories of it.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// JournalDir returns the journal chunk directory.
func (s *StorageConfig) JournalDir() string {
	return filepath.Join(s.DataDir, "journal")
}

// IndexDir returns the engine snapshot directory.
func (s *StorageConfig) IndexDir() string {
	return filepath.Join(s.DataDir, "index")
}

// VaultConfig describes the watched document collection.
type VaultConfig struct {
	Roots      []string `yaml:"roots"`
	Extensions []string `yaml:"extensions"`
	Exclusions []string `yaml:"exclusions"` // path prefixes kept out of the index
	Recursive  *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (v *VaultConfig) RecursiveOrDefault() bool {
	if v.Recursive != nil {
		return *v.Recursive
	}
	return true
}

// IndexConfig holds indexing and maintenance settings.
type IndexConfig struct {
	// Engine selects the active engine: fuse, mini, or hybrid.
	Engine string `yaml:"engine"`
	// PrebuildAll keeps both engines warm so switching costs nothing, at
	// the price of double index memory.
	PrebuildAll bool `yaml:"prebuild_all"`
	// ForceRebuild skips the snapshot fast path once on next startup.
	ForceRebuild bool `yaml:"force_rebuild"`
	// DebounceMillis is the per-path change coalescing window.
	DebounceMillis int `yaml:"debounce_millis"`
	// JournalFlushMillis is the journal write debounce.
	JournalFlushMillis int `yaml:"journal_flush_millis"`
	// BatchSize is how many queued changes are processed between yields.
	BatchSize int `yaml:"batch_size"`
}

// SearchConfig holds query-side settings.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// EngineName returns the validated engine selection.
func (c *Config) EngineName() (engine.Name, error) {
	return engine.ParseName(c.Index.Engine)
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	ApplyDefaults(&cfg)
	if _, err := cfg.EngineName(); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir, configDir)
	for i := range cfg.Vault.Roots {
		cfg.Vault.Roots[i] = expandPath(cfg.Vault.Roots[i], configDir)
	}
	return &cfg, nil
}

// Save writes the config to path. Used for persisting settings changes.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8686
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "/usr/local/var/shirabe/data"
	}
	if cfg.Vault.Extensions == nil {
		cfg.Vault.Extensions = []string{".md", ".txt", ".canvas", ".pdf", ".png", ".jpg"}
	}
	if len(cfg.Vault.Roots) > 0 && cfg.Vault.Recursive == nil {
		t := true
		cfg.Vault.Recursive = &t
	}
	if cfg.Index.Engine == "" {
		cfg.Index.Engine = string(engine.Hybrid)
	}
	if cfg.Index.DebounceMillis == 0 {
		cfg.Index.DebounceMillis = 350
	}
	if cfg.Index.JournalFlushMillis == 0 {
		cfg.Index.JournalFlushMillis = 500
	}
	if cfg.Index.BatchSize == 0 {
		cfg.Index.BatchSize = 25
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 50
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 500
	}
}

// NormalizeExclusions cleans exclusion prefixes: trims whitespace, drops
// empties, and deduplicates. Matching is plain prefix matching on paths.
func NormalizeExclusions(prefixes []string) []string {
	seen := make(map[string]struct{}, len(prefixes))
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
