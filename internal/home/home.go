package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the docdesk home directory.
	DefaultDirName = ".docdesk"

	// DownloadsDirName is the subdirectory for downloaded book files.
	DownloadsDirName = "downloads"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// StateFileName is the sqlite database holding persisted client state.
	StateFileName = "state.db"
)

// Dir represents the docdesk home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.docdesk).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// StatePath returns the path to the persisted state database.
func (d *Dir) StatePath() string {
	return filepath.Join(d.path, StateFileName)
}

// DownloadsDir returns the directory for downloaded book files.
func (d *Dir) DownloadsDir() string {
	return filepath.Join(d.path, DownloadsDirName)
}

// DownloadPath returns the local path for a book's original file.
func (d *Dir) DownloadPath(bookID, docName string) string {
	name := docName
	if name == "" {
		name = bookID
	}
	if filepath.Ext(name) == "" {
		name += ".pdf"
	}
	return filepath.Join(d.DownloadsDir(), bookID, filepath.Base(name))
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	// Creating the downloads directory also creates the parent
	if err := os.MkdirAll(d.DownloadsDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create downloads directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
