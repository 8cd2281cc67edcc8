package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the global log directory (~/.codeqa/logs/).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".codeqa", "logs")
	}
	return filepath.Join(home, ".codeqa", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "codeqa.log")
}

// ProjectLogPath returns the log file path for a project root
// (<root>/.codeqa/logs/codeqa.log).
func ProjectLogPath(root string) string {
	return filepath.Join(root, ".codeqa", "logs", "codeqa.log")
}
