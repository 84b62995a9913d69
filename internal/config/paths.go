package config

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.wabridge.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wabridge")
}

// Dir returns the session-specific directory.
func Dir(session string) string {
	return filepath.Join(BaseDir(), "sessions", session)
}

// BridgeDBPath returns the bridge's credential store path.
func BridgeDBPath(session string) string {
	return filepath.Join(Dir(session), "bridge.db")
}

// MediaCacheDir returns the decrypted-media cache directory.
func MediaCacheDir(session string) string {
	return filepath.Join(Dir(session), "media-cache")
}

// LogPath returns the daemon log file path.
func LogPath(session string) string {
	return filepath.Join(Dir(session), "logs", "wabridged.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDirs creates the session directory tree with owner-only
// permissions.
func EnsureDirs(session string) error {
	dirs := []string{
		Dir(session),
		MediaCacheDir(session),
		filepath.Join(Dir(session), "logs"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
