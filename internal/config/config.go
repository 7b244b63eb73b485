package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for pcat.
type Config struct {
	DataRoot   string           `toml:"data_root"`
	LogDir     string           `toml:"log_dir"`
	Catalog    CatalogConfig    `toml:"catalog"`
	Backup     BackupConfig     `toml:"backup"`
	Vaults     []VaultConfig    `toml:"vaults"`
	Ledger     LedgerConfig     `toml:"ledger"`
	Encryption EncryptionConfig `toml:"encryption"`
	Log        LogConfig        `toml:"log"`
	Filesystem FilesystemConfig `toml:"filesystem"`
}

// CatalogConfig tunes the in-memory catalog and its on-disk format.
type CatalogConfig struct {
	FormatVersion          string `toml:"format_version"`
	BatchSize              int    `toml:"batch_size"`               // dirty assets before an automatic flush; 0 disables
	ThumbnailCacheCapacity int    `toml:"thumbnail_cache_capacity"` // resident folders; 0 persists eagerly
	ThumbnailMaxWidth      int    `toml:"thumbnail_max_width"`
	ThumbnailMaxHeight     int    `toml:"thumbnail_max_height"`
}

// BackupConfig controls snapshot rotation.
type BackupConfig struct {
	Generations int      `toml:"generations"`
	MinInterval Duration `toml:"min_interval"`
	Encrypt     bool     `toml:"encrypt"`
}

// EncryptionConfig holds paths to the age key pair used for encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// LogConfig sets the minimum level written to the log file and console.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn or error
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore"`
}

// LedgerConfig selects where the backup ledger lives.
type LedgerConfig struct {
	Type string `toml:"type,omitempty"` // "sqlite" (default) or "memory"
}

// VaultConfig represents configuration for a backup destination.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
// The first vault is the primary; later ones receive mirror copies.
type VaultConfig struct {
	Type string `toml:"type"` // "filesystem" (default), "memory" or "s3"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem").
	// Empty means the store's own Backup directory.
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// Duration is a time.Duration written as a string such as "12h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// NewConfig creates a new Config rooted at baseDir with default settings.
func NewConfig(baseDir string) *Config {
	return &Config{
		DataRoot: filepath.Join(baseDir, "data"),
		LogDir:   filepath.Join(baseDir, "log"),
		Catalog: CatalogConfig{
			FormatVersion:          "v1.0",
			BatchSize:              100,
			ThumbnailCacheCapacity: 2,
			ThumbnailMaxWidth:      200,
			ThumbnailMaxHeight:     150,
		},
		Backup: BackupConfig{Generations: 2},
		Vaults: []VaultConfig{{Type: "filesystem", Name: "local"}},
		Ledger: LedgerConfig{Type: "sqlite"},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "pcat.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "pcat.key"),
		},
		Log: LogConfig{Level: "info"},
	}
}

// Validate rejects settings no component can honour.
func (c *Config) Validate() error {
	if c.DataRoot == "" {
		return fmt.Errorf("data_root is required")
	}
	if c.Catalog.FormatVersion == "" {
		return fmt.Errorf("catalog.format_version is required")
	}
	if c.Catalog.BatchSize < 0 {
		return fmt.Errorf("catalog.batch_size must not be negative")
	}
	if c.Catalog.ThumbnailCacheCapacity < 0 {
		return fmt.Errorf("catalog.thumbnail_cache_capacity must not be negative")
	}
	if c.Backup.Generations < 0 {
		return fmt.Errorf("backup.generations must not be negative")
	}
	if c.Backup.MinInterval.Duration < 0 {
		return fmt.Errorf("backup.min_interval must not be negative")
	}
	for i, v := range c.Vaults {
		switch v.Type {
		case "", "filesystem", "memory":
		case "s3":
			if v.S3Bucket == "" {
				return fmt.Errorf("vault %d: s3_bucket is required", i)
			}
		default:
			return fmt.Errorf("vault %d: unknown type %q", i, v.Type)
		}
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads and validates a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
