package compress

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestParseFormat(t *testing.T) {
	cases := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"tar.gz", TarGz, false},
		{"tar.zst", TarZst, false},
		{"zip", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := ParseFormat(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if err == nil && got != tc.want {
			t.Errorf("ParseFormat(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestCompressExtractRoundTrip(t *testing.T) {
	for _, format := range []Format{TarGz, TarZst} {
		t.Run(format.String(), func(t *testing.T) {
			// Arrange: a small staging tree with a nested file and a symlink.
			srcDir := t.TempDir()
			if err := os.MkdirAll(filepath.Join(srcDir, "docs", "sub"), 0755); err != nil {
				t.Fatal(err)
			}
			content := strings.Repeat("smartbackup test payload\n", 100)
			if err := os.WriteFile(filepath.Join(srcDir, "docs", "report.txt"), []byte(content), 0644); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(filepath.Join(srcDir, "docs", "sub", "notes.md"), []byte("notes"), 0600); err != nil {
				t.Fatal(err)
			}
			withSymlink := runtime.GOOS != "windows"
			if withSymlink {
				if err := os.Symlink("report.txt", filepath.Join(srcDir, "docs", "link.txt")); err != nil {
					t.Fatal(err)
				}
			}

			archivePath := filepath.Join(t.TempDir(), "backup"+format.Extension())

			// Act
			if err := Compress(context.Background(), srcDir, archivePath, format); err != nil {
				t.Fatalf("Compress() error = %v", err)
			}
			trgDir := t.TempDir()
			if err := Extract(context.Background(), archivePath, trgDir, format); err != nil {
				t.Fatalf("Extract() error = %v", err)
			}

			// Assert
			got, err := os.ReadFile(filepath.Join(trgDir, "docs", "report.txt"))
			if err != nil || string(got) != content {
				t.Errorf("report.txt content mismatch: %v", err)
			}
			if _, err := os.Stat(filepath.Join(trgDir, "docs", "sub", "notes.md")); err != nil {
				t.Errorf("nested file missing: %v", err)
			}
			if withSymlink {
				target, err := os.Readlink(filepath.Join(trgDir, "docs", "link.txt"))
				if err != nil || target != "report.txt" {
					t.Errorf("symlink target = %q, %v", target, err)
				}
			}

			// No leftover temp files next to the archive.
			entries, err := os.ReadDir(filepath.Dir(archivePath))
			if err != nil {
				t.Fatal(err)
			}
			for _, e := range entries {
				if strings.HasSuffix(e.Name(), ".tmp") {
					t.Errorf("leftover temp file %q", e.Name())
				}
			}
		})
	}
}

func TestCompressCancelledLeavesNoArchive(t *testing.T) {
	// Arrange
	srcDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	archivePath := filepath.Join(t.TempDir(), "backup.tar.gz")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Act
	err := Compress(ctx, srcDir, archivePath, TarGz)

	// Assert
	if err == nil {
		t.Fatal("Compress() succeeded with cancelled context")
	}
	if _, statErr := os.Stat(archivePath); !os.IsNotExist(statErr) {
		t.Errorf("archive exists after failed compression")
	}
}

func TestCompressEmptyDirectory(t *testing.T) {
	srcDir := t.TempDir()
	archivePath := filepath.Join(t.TempDir(), "backup.tar.gz")

	if err := Compress(context.Background(), srcDir, archivePath, TarGz); err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	info, err := os.Stat(archivePath)
	if err != nil {
		t.Fatalf("archive missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("archive is empty, want valid gzip container")
	}
}
