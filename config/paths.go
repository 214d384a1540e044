package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const appName = "polychat"

// GetConfigDir returns the platform-specific configuration directory
// Linux/Mac: ~/.config/polychat
// Windows: C:\Users\username\.config\polychat
func GetConfigDir() string {
	return filepath.Join(GetHomeDir(), ".config", appName)
}

// GetSettingsFilePath returns the path to settings.toml
func GetSettingsFilePath() string {
	return filepath.Join(GetConfigDir(), "settings.toml")
}

// GetConversationsDir returns where the file store keeps conversation documents.
func GetConversationsDir(dataDir string) string {
	return filepath.Join(dataDir, "conversations")
}

// GetDatabasePath returns the SQLite store's database file.
func GetDatabasePath(dataDir string) string {
	return filepath.Join(dataDir, "conversations.db")
}

// GetHomeDir returns the user's home directory across platforms
// Windows: %USERPROFILE% (C:\Users\username)
// Linux/Mac: $HOME (/home/username)
func GetHomeDir() string {
	if runtime.GOOS == "windows" {
		home := os.Getenv("USERPROFILE")
		if home == "" {
			home = os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH")
		}
		if home == "" {
			home = "C:\\"
		}
		return home
	}
	home := os.Getenv("HOME")
	if home == "" {
		home = "/"
	}
	return home
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		path = filepath.Join(GetHomeDir(), path[2:])
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// EnsureDir creates a directory if it doesn't exist (0700 - user-only access)
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0700)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnsureDataDirPermissions ensures data directory has 0700 permissions
func EnsureDataDirPermissions(dataDir string) error {
	info, err := os.Stat(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(dataDir, 0700)
		}
		return err
	}
	if info.Mode().Perm() != 0700 {
		return os.Chmod(dataDir, 0700)
	}
	return nil
}
