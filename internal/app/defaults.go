package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - NOWA_CONFIG_PATH: config file location (default: ~/.config/nowa.toml)
//   - NOWA_HOME: base directory for nowa's own files (default: ~/.local/share/nowa)
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
		"key_dir":     filepath.Join(baseDir, "keys"),
		"work_dir":    filepath.Join(baseDir, "work"),
	}, nil
}

func getConfigPath() (string, error) {
	if path := os.Getenv("NOWA_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "nowa.toml"), nil
}

func getBaseDir() (string, error) {
	if path := os.Getenv("NOWA_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "nowa"), nil
}
