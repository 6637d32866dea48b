package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveExplicitRoot(t *testing.T) {
	// Arrange
	root := filepath.Join(t.TempDir(), "state")

	// Act
	layout, err := Resolve(root)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	// Assert
	if layout.Root != root {
		t.Errorf("Root = %q, want %q", layout.Root, root)
	}
	if layout.ConfigFile != filepath.Join(root, "configs.json") {
		t.Errorf("ConfigFile = %q", layout.ConfigFile)
	}
	if layout.HistoryDir != filepath.Join(root, "history") {
		t.Errorf("HistoryDir = %q", layout.HistoryDir)
	}
}

func TestResolveDefaultRoot(t *testing.T) {
	layout, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if filepath.Base(layout.Root) != "smartbackup" {
		t.Errorf("default root %q does not end in smartbackup", layout.Root)
	}
	if !filepath.IsAbs(layout.Root) {
		t.Errorf("default root %q is not absolute", layout.Root)
	}
}

func TestEnsureCreatesDirectories(t *testing.T) {
	// Arrange
	layout, err := Resolve(filepath.Join(t.TempDir(), "state"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	// Act
	if err := layout.Ensure(); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	// Assert
	for _, dir := range []string{layout.Root, layout.HistoryDir, layout.IndexDir, layout.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("directory %q was not created: %v", dir, err)
		}
	}
}
