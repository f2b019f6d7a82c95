package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths are the locations the CLI uses when no flags override them.
type Paths struct {
	ConfigPath string // STORYFEED_CONFIG_PATH, default ~/.config/storyfeed.toml
	BaseDir    string // STORYFEED_HOME, default ~/.local/share/storyfeed
	LogDir     string // <BaseDir>/log
}

// DefaultPaths resolves Paths, checking environment variables first.
func DefaultPaths() (Paths, error) {
	configPath, err := envOrHome("STORYFEED_CONFIG_PATH", ".config", "storyfeed.toml")
	if err != nil {
		return Paths{}, err
	}
	baseDir, err := envOrHome("STORYFEED_HOME", ".local", "share", "storyfeed")
	if err != nil {
		return Paths{}, err
	}
	return Paths{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}, nil
}

// envOrHome returns the value of env if set, otherwise rel joined under
// the user's home directory.
func envOrHome(env string, rel ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, rel...)...), nil
}
