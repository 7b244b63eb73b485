package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - PCAT_CONFIG_PATH: config file location (default: ~/.config/pcat.toml)
//   - PCAT_HOME: base directory for pcat data (default: ~/.local/share/pcat)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"data_root":   filepath.Join(baseDir, "data"),
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking PCAT_CONFIG_PATH first,
// then falling back to ~/.config/pcat.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("PCAT_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "pcat.toml"), nil
}

// getBaseDir returns the base directory for pcat data, checking PCAT_HOME first,
// then falling back to the XDG default ~/.local/share/pcat.
func getBaseDir() (string, error) {
	if path := os.Getenv("PCAT_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "pcat"), nil
}
