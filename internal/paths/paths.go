package paths

import (
	"os"
	"path/filepath"
)

// AppName names the per-user directories.
const AppName = "pingmon"

// HomeDir returns the user's home directory. PINGMON_HOME overrides it, which
// keeps tests and portable installs out of the real home.
func HomeDir() (string, error) {
	if home := os.Getenv("PINGMON_HOME"); home != "" {
		return home, nil
	}
	return os.UserHomeDir()
}

// CacheDir returns ~/.cache/pingmon, creating it if needed.
// The TUI writes its log file here.
func CacheDir() (string, error) {
	return ensure(".cache")
}

// DataDir returns ~/.local/share/pingmon, creating it if needed.
// It holds the device snapshot and the history database.
func DataDir() (string, error) {
	return ensure(".local", "share")
}

// ConfigDir returns ~/.config/pingmon, creating it if needed.
func ConfigDir() (string, error) {
	return ensure(".config")
}

func ensure(elem ...string) (string, error) {
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(append(append([]string{home}, elem...), AppName)...)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
