package fsutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestOSFileSystemRoundTrip(t *testing.T) {
	fs := OSFileSystem{}
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "file.txt")

	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := fs.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if !fs.Exists(path) {
		t.Fatal("Exists = false after WriteFile")
	}

	data, err := fs.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("ReadFile = %q, want %q", data, "hello")
	}

	if err := fs.Remove(path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if fs.Exists(path) {
		t.Error("Exists = true after Remove")
	}
}

func TestMemoryFileSystem(t *testing.T) {
	fs := NewMemoryFileSystem()

	w, err := fs.Create("logs/session.log")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.Write([]byte("line one\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := w.Write([]byte("line two\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Contents become visible at Close.
	if fs.Exists("logs/session.log") {
		t.Error("file visible before Close")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := fs.ReadFile("logs/session.log")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "line one\nline two\n" {
		t.Errorf("ReadFile = %q", data)
	}

	if _, err := fs.ReadFile("missing.txt"); err == nil {
		t.Error("ReadFile on missing file succeeded")
	}

	if err := fs.MkdirAll("a/b/c", 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if !fs.Exists("a/b") {
		t.Error("parent directory not recorded by MkdirAll")
	}

	files := fs.Files()
	if len(files) != 1 || files[0] != "logs/session.log" {
		t.Errorf("Files() = %v", files)
	}
}

func TestMemoryFileSystemRemove(t *testing.T) {
	fs := NewMemoryFileSystem()
	if err := fs.WriteFile("x.txt", []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := fs.Remove("x.txt"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := fs.Remove("x.txt"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("second Remove error = %v, want not-exist", err)
	}
}
