package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Storage defines the filesystem operations the folder and ledger layers need
type Storage interface {
	// Exists reports whether a path exists
	Exists(path string) (bool, error)

	// ListDirs returns the names of the immediate child directories of path
	// in listing order. A missing path has no children.
	ListDirs(path string) ([]string, error)

	// MkdirAll creates a directory and any missing parents
	MkdirAll(path string) error

	// Append appends data to a file, creating it if needed
	Append(path string, data []byte) error
}

// LocalStorage implements the Storage interface using the local filesystem
// (including mounted network shares)
type LocalStorage struct {
	dirMode  fs.FileMode
	fileMode fs.FileMode
}

// NewLocalStorage creates a new LocalStorage instance
func NewLocalStorage() *LocalStorage {
	return &LocalStorage{
		dirMode:  0755,
		fileMode: 0644,
	}
}

// Exists reports whether a path exists
func (l *LocalStorage) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("checking %s: %w", path, err)
}

// ListDirs returns the names of the child directories of path
func (l *LocalStorage) ListDirs(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", path, err)
	}

	dirs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}
	return dirs, nil
}

// MkdirAll creates a directory and any missing parents
func (l *LocalStorage) MkdirAll(path string) error {
	if err := os.MkdirAll(path, l.dirMode); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	return nil
}

// Append appends data to a file, never truncating existing content
func (l *LocalStorage) Append(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, l.fileMode)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing file: %w", err)
	}
	return nil
}
