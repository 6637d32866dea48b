package util

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory available: %v", err)
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no tilde", "/var/backups", "/var/backups"},
		{"bare tilde", "~", home},
		{"tilde with path", "~/backups", filepath.Join(home, "backups")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandPath(tt.in)
			if err != nil {
				t.Fatalf("ExpandPath(%q) returned error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMergeAndDeduplicate(t *testing.T) {
	got := MergeAndDeduplicate([]string{"a", "b"}, []string{"b", "c"}, nil)
	slices.Sort(got)
	want := []string{"a", "b", "c"}
	if !slices.Equal(got, want) {
		t.Errorf("MergeAndDeduplicate = %v, want %v", got, want)
	}
}

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	// First write creates the file.
	if err := AtomicWriteFile(path, []byte("one"), UserWritableFilePerms); err != nil {
		t.Fatalf("AtomicWriteFile: %v", err)
	}

	// Second write replaces it in place.
	if err := AtomicWriteFile(path, []byte("two"), UserWritableFilePerms); err != nil {
		t.Fatalf("AtomicWriteFile (replace): %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "two" {
		t.Errorf("file content = %q, want %q", data, "two")
	}

	// No temp files should remain.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected exactly one file in dir, got %d", len(entries))
	}
}
