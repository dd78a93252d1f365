package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.tflmirror/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".tflmirror", "logs")
	}
	return filepath.Join(home, ".tflmirror", "logs")
}

// DefaultLogPath returns the default sync log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "sync.log")
}
