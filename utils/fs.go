package utils

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"linkfetch/internal"
)

// TempSuffix marks a download that has not been committed yet.
const TempSuffix = ".tmp"

// FileOperations provides file system utilities
type FileOperations struct{}

// NewFileOperations creates a new FileOperations instance
func NewFileOperations() *FileOperations {
	return &FileOperations{}
}

// EnsureDir creates dir and its parents if they don't exist
func (f *FileOperations) EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return internal.NewFileSystemError(dir, err)
	}
	return nil
}

// FileExists checks if a file exists
func (f *FileOperations) FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// GetFileSize returns the size of a file
func (f *FileOperations) GetFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// TempPath returns the sibling path a download is written to before commit.
func (f *FileOperations) TempPath(finalPath string) string {
	return finalPath + TempSuffix
}

// CreateTemp creates or truncates the temporary sibling of finalPath.
func (f *FileOperations) CreateTemp(finalPath string) (*os.File, error) {
	tempPath := f.TempPath(finalPath)
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, internal.NewFileSystemError(tempPath, err)
	}
	return file, nil
}

// CommitTemp replaces any file at finalPath with its temporary sibling.
func (f *FileOperations) CommitTemp(finalPath string) error {
	if err := f.RemoveIfExists(finalPath); err != nil {
		return err
	}
	tempPath := f.TempPath(finalPath)
	if err := os.Rename(tempPath, finalPath); err != nil {
		return internal.NewFileSystemError(finalPath, err)
	}
	return nil
}

// RemoveIfExists deletes path, treating a missing file as success.
func (f *FileOperations) RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return internal.NewFileSystemError(path, err)
	}
	return nil
}

// SafeJoin joins dir and the base name of name. It returns false when the name
// is unusable or would resolve outside dir.
func (f *FileOperations) SafeJoin(dir, name string) (string, bool) {
	base := SanitizeFilename(name)
	if base == "" {
		return "", false
	}

	joined := filepath.Join(dir, base)
	rel, err := filepath.Rel(dir, joined)
	if err != nil || rel != base {
		return "", false
	}
	return joined, true
}

// SanitizeFilename reduces name to a bare file name without path separators or
// control characters. It returns "" when nothing usable remains.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(filepath.FromSlash(name))

	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)

	switch name {
	case "", ".", "..", string(filepath.Separator):
		return ""
	}
	return name
}
