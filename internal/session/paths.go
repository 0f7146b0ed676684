package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.livechat, or $LIVECHAT_HOME when set.
func BaseDir() string {
	if dir := os.Getenv("LIVECHAT_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".livechat")
}

// Dir returns the session-specific directory.
func Dir(id string) string {
	return filepath.Join(BaseDir(), "sessions", id)
}

// SocketPath returns the UDS socket path for a session daemon.
func SocketPath(id string) string {
	return filepath.Join(Dir(id), "chatd.sock")
}

// CacheDBPath returns the local message cache path.
func CacheDBPath(id string) string {
	return filepath.Join(Dir(id), "cache.db")
}

// LogDir returns the log directory for a session.
func LogDir(id string) string {
	return filepath.Join(Dir(id), "logs")
}

// LogPath returns the log file path for the named binary.
func LogPath(id, binary string) string {
	return filepath.Join(LogDir(id), binary+".log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the session directory tree with proper permissions.
func EnsureDir(id string) error {
	dirs := []string{
		Dir(id),
		LogDir(id),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
