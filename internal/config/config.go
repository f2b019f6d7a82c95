package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for storyfeed.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Session    SessionConfig    `toml:"session"`
	Remote     RemoteConfig     `toml:"remote"`
	Cache      CacheConfig      `toml:"cache"`
	Encryption EncryptionConfig `toml:"encryption"`
	Moderation ModerationConfig `toml:"moderation"`
}

// SessionConfig identifies the signed-in user. Either Token (a signed
// access token) or the explicit fields are used.
type SessionConfig struct {
	Token       string `toml:"token,omitempty"`
	SecretEnv   string `toml:"secret_env,omitempty"` // env var holding the HS256 token secret
	UserID      string `toml:"user_id,omitempty"`
	Role        string `toml:"role,omitempty"`
	DisplayName string `toml:"display_name,omitempty"`
	Moderator   bool   `toml:"moderator"`
	Offline     bool   `toml:"offline"`
}

// RemoteConfig represents configuration for the relational data service.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RemoteConfig struct {
	Type           string `toml:"type"`               // "sqlite", "postgres", or "memory"
	DataDir        string `toml:"data_dir,omitempty"` // only used for type=sqlite
	DSN            string `toml:"dsn,omitempty"`      // only used for type=postgres
	DSNEnv         string `toml:"dsn_env,omitempty"`  // env var overriding DSN
	TimeoutSeconds int    `toml:"timeout_seconds"`    // per-call deadline; defaults to 15
}

// CacheConfig represents configuration for the durable local cache.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type CacheConfig struct {
	Type string `toml:"type"` // "memory", "filesystem", or "s3"

	// FileSystem-specific fields (only used when Type == "filesystem")
	Dir string `toml:"dir,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket       string `toml:"s3_bucket,omitempty"`
	S3Prefix       string `toml:"s3_prefix,omitempty"`
	S3Region       string `toml:"s3_region,omitempty"`
	S3Endpoint     string `toml:"s3_endpoint,omitempty"`       // S3-compatible endpoint override
	S3AccessKeyEnv string `toml:"s3_access_key_env,omitempty"` // env vars for static credentials
	S3SecretKeyEnv string `toml:"s3_secret_key_env,omitempty"`
}

// EncryptionConfig controls encryption of the cache at rest.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default), "age", or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
	PassphraseEnv  string `toml:"passphrase_env,omitempty"` // env var holding the key passphrase
}

// ModerationConfig represents configuration for automated content checks.
type ModerationConfig struct {
	Type           string  `toml:"type"` // "none" or "http"
	Endpoint       string  `toml:"endpoint,omitempty"`
	APIKeyEnv      string  `toml:"api_key_env,omitempty"`
	RatePerSecond  float64 `toml:"rate_per_second"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	ScreenStories  bool    `toml:"screen_stories"`
}

// NewConfig creates a new Config with the provided base directory and defaults.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Remote: RemoteConfig{
			Type:           "sqlite",
			DataDir:        filepath.Join(baseDir, "db"),
			TimeoutSeconds: 15,
		},
		Cache: CacheConfig{
			Type: "filesystem",
			Dir:  filepath.Join(baseDir, "cache"),
		},
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "storyfeed.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "storyfeed.key"),
		},
		Moderation: ModerationConfig{
			Type:           "none",
			RatePerSecond:  2,
			TimeoutSeconds: 10,
		},
	}
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

// ReadFromFile reads a Config from the specified file path.
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
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
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

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
