package preflight

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckBackupSourceAccessible(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "data.txt")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := CheckBackupSourceAccessible(dir); err != nil {
		t.Errorf("directory source rejected: %v", err)
	}
	if err := CheckBackupSourceAccessible(file); err != nil {
		t.Errorf("file source rejected: %v", err)
	}
	if err := CheckBackupSourceAccessible(filepath.Join(dir, "gone")); err == nil {
		t.Error("missing source accepted")
	}
}

func TestCheckBackupTargetAccessibleRejectsFileTarget(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "occupied")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := CheckBackupTargetAccessible(file); err == nil {
		t.Error("file target accepted, want error")
	}
}

func TestCheckBackupTargetWritable(t *testing.T) {
	// Arrange: a destination that does not exist yet.
	target := filepath.Join(t.TempDir(), "backups", "docs")

	// Act
	if err := CheckBackupTargetWritable(target); err != nil {
		t.Fatalf("CheckBackupTargetWritable() error = %v", err)
	}

	// Assert: the directory was created and no probe file remains.
	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		t.Fatalf("target was not created: %v", err)
	}
	entries, err := os.ReadDir(target)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("probe file left behind: %v", entries)
	}
}
