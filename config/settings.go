package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// UserConfigPath returns <dataDir>/config.toml.
func UserConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config.toml")
}

func LoadSystemConfig() (*SystemConfig, error) {
	cfg := DefaultSystemConfig()
	settingsPath := GetSettingsFilePath()

	if !FileExists(settingsPath) {
		if err := EnsureDir(GetConfigDir()); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := writeTemplate(settingsPath, GenerateSystemConfigTemplate()); err != nil {
			return nil, fmt.Errorf("failed to create system config: %w", err)
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(settingsPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse system config: %w", err)
	}
	return cfg, nil
}

// LoadUserConfig reads <dataDir>/config.toml, writing the commented template
// first when the file does not exist.
func LoadUserConfig(dataDir string) (*UserConfig, error) {
	cfg := DefaultUserConfig()
	path := UserConfigPath(dataDir)

	if !FileExists(path) {
		if err := EnsureDir(dataDir); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		if err := writeTemplate(path, GenerateUserConfigTemplate()); err != nil {
			return nil, fmt.Errorf("failed to create user config: %w", err)
		}
		return cfg, nil
	}

	return decodeUserConfig(path)
}

func decodeUserConfig(path string) (*UserConfig, error) {
	// Decoding into an empty value keeps [[providers]] from merging with the
	// default list; Load fills gaps afterwards.
	cfg := &UserConfig{}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 && DebugLog != nil {
		DebugLog.Printf("[Config] ignoring unknown keys in %s: %v", path, undecoded)
	}
	return cfg, nil
}

func SaveSystemConfig(cfg *SystemConfig) error {
	if err := EnsureDir(GetConfigDir()); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := encodeFile(GetSettingsFilePath(), cfg); err != nil {
		return fmt.Errorf("failed to save system config: %w", err)
	}
	return nil
}

func SaveUserConfig(cfg *UserConfig, dataDir string) error {
	if err := EnsureDir(dataDir); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := encodeFile(UserConfigPath(dataDir), cfg); err != nil {
		return fmt.Errorf("failed to save user config: %w", err)
	}
	return nil
}

// encodeFile writes v as TOML with 0600 permissions.
func encodeFile(path string, v any) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeTemplate(path, content string) error {
	if FileExists(path) {
		return nil
	}
	return os.WriteFile(path, []byte(content), 0600)
}
