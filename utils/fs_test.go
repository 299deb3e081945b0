package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileOperations_EnsureDir(t *testing.T) {
	fileOps := NewFileOperations()
	dir := filepath.Join(t.TempDir(), "a", "b")

	if err := fileOps.EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	if !fileOps.FileExists(dir) {
		t.Errorf("expected %s to exist", dir)
	}
	if err := fileOps.EnsureDir(dir); err != nil {
		t.Errorf("EnsureDir() on existing dir error = %v", err)
	}
}

func TestFileOperations_TempLifecycle(t *testing.T) {
	fileOps := NewFileOperations()
	finalPath := filepath.Join(t.TempDir(), "archive.zip")

	t.Run("commit_replaces_existing_file", func(t *testing.T) {
		if err := os.WriteFile(finalPath, []byte("old"), 0644); err != nil {
			t.Fatalf("Failed to seed final file: %v", err)
		}

		file, err := fileOps.CreateTemp(finalPath)
		if err != nil {
			t.Fatalf("CreateTemp() error = %v", err)
		}
		if file.Name() != finalPath+".tmp" {
			t.Errorf("expected temp file %s, got %s", finalPath+".tmp", file.Name())
		}
		file.Write([]byte("new content"))
		file.Close()

		if err := fileOps.CommitTemp(finalPath); err != nil {
			t.Fatalf("CommitTemp() error = %v", err)
		}

		data, err := os.ReadFile(finalPath)
		if err != nil {
			t.Fatalf("Failed to read final file: %v", err)
		}
		if string(data) != "new content" {
			t.Errorf("expected committed content, got %q", data)
		}
		if fileOps.FileExists(fileOps.TempPath(finalPath)) {
			t.Error("temp file should not survive commit")
		}
	})

	t.Run("commit_without_temp_fails", func(t *testing.T) {
		if err := fileOps.CommitTemp(filepath.Join(t.TempDir(), "missing.bin")); err == nil {
			t.Error("expected error when no temp file exists")
		}
	})
}

func TestFileOperations_RemoveIfExists(t *testing.T) {
	fileOps := NewFileOperations()
	path := filepath.Join(t.TempDir(), "x.tmp")

	if err := fileOps.RemoveIfExists(path); err != nil {
		t.Errorf("removing a missing file should succeed, got %v", err)
	}

	os.WriteFile(path, []byte("x"), 0644)
	if err := fileOps.RemoveIfExists(path); err != nil {
		t.Fatalf("RemoveIfExists() error = %v", err)
	}
	if fileOps.FileExists(path) {
		t.Error("file should be removed")
	}
}

func TestFileOperations_GetFileSize(t *testing.T) {
	fileOps := NewFileOperations()
	path := filepath.Join(t.TempDir(), "sized.bin")
	os.WriteFile(path, make([]byte, 2048), 0644)

	size, err := fileOps.GetFileSize(path)
	if err != nil {
		t.Fatalf("GetFileSize() error = %v", err)
	}
	if size != 2048 {
		t.Errorf("expected size 2048, got %d", size)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "report.pdf", "report.pdf"},
		{"unicode", "测试 文件.zip", "测试 文件.zip"},
		{"unix_traversal", "../../etc/passwd", "passwd"},
		{"windows_path", `C:\Users\me\file.txt`, "file.txt"},
		{"control_characters", "a\r\nb.txt", "ab.txt"},
		{"dot_dot", "..", ""},
		{"empty", "", ""},
		{"trailing_slash", "dir/", "dir"},
		{"root", "/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := SanitizeFilename(tt.input); result != tt.expected {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFileOperations_SafeJoin(t *testing.T) {
	fileOps := NewFileOperations()
	dir := t.TempDir()

	path, ok := fileOps.SafeJoin(dir, "../escape.bin")
	if !ok {
		t.Fatal("expected traversal to be reduced to a base name")
	}
	if path != filepath.Join(dir, "escape.bin") {
		t.Errorf("unexpected path %s", path)
	}

	if _, ok := fileOps.SafeJoin(dir, ".."); ok {
		t.Error("expected '..' to be rejected")
	}
}
